// Package scheduler submits one-shot ingestion tasks to the external task
// runner. The protocol engine only ever schedules; the ingester reports
// back through the server's private API.
//
// Scheduler is an interface so the queueing backend is pluggable: the NSQ
// backend is used in production and the Memory backend in tests.
package scheduler

import "time"

// A Task describes one deposit to load into the archive.
type Task struct {
	Type      string    `json:"type"`
	OriginURL string    `json:"origin_url"`
	DepositID int64     `json:"deposit_id"`
	Retries   int       `json:"retries"`
	Created   time.Time `json:"created"`
}

// TaskTypeLoadDeposit is the task type of the ingestion hand-off.
const TaskTypeLoadDeposit = "load-deposit"

// DefaultRetries is the retry budget given to every ingestion task.
const DefaultRetries = 3

// A Scheduler accepts one-shot tasks. Schedule returns the identifier the
// task runner assigned, which the deposit records for later inspection.
type Scheduler interface {
	Schedule(task Task) (string, error)
}

// NewLoadTask builds the ingestion task for a deposit.
func NewLoadTask(originURL string, depositID int64) Task {
	return Task{
		Type:      TaskTypeLoadDeposit,
		OriginURL: originURL,
		DepositID: depositID,
		Retries:   DefaultRetries,
		Created:   time.Now().UTC(),
	}
}
