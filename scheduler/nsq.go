package scheduler

import (
	"encoding/json"
	"log"

	nsq "github.com/nsqio/go-nsq"
	"github.com/pkg/errors"
	uuid "github.com/satori/go.uuid"
)

// NSQ publishes tasks to an nsqd topic. The ingestion workers consume the
// topic on their side.
type NSQ struct {
	producer *nsq.Producer
	topic    string
}

var _ Scheduler = &NSQ{}

// NewNSQ connects to the nsqd at addr (host:port of the TCP interface) and
// returns a scheduler publishing to the given topic.
func NewNSQ(addr, topic string) (*NSQ, error) {
	producer, err := nsq.NewProducer(addr, nsq.NewConfig())
	if err != nil {
		return nil, errors.Wrap(err, "connecting to nsqd")
	}
	return &NSQ{producer: producer, topic: topic}, nil
}

// Schedule assigns the task an identifier and publishes it. The identifier
// travels with the task body so the runner's reports can be correlated.
func (s *NSQ) Schedule(task Task) (string, error) {
	id := uuid.NewV4().String()
	body, err := json.Marshal(struct {
		Task
		TaskID string `json:"task_id"`
	}{Task: task, TaskID: id})
	if err != nil {
		return "", err
	}
	if err := s.producer.Publish(s.topic, body); err != nil {
		log.Println("scheduler: publish:", err)
		return "", errors.Wrap(err, "publishing task")
	}
	return id, nil
}

// Stop shuts the producer down.
func (s *NSQ) Stop() {
	s.producer.Stop()
}
