package scheduler

import (
	"fmt"
	"sync"
)

// Memory collects tasks in memory. It is used by tests and by development
// servers without an nsqd to talk to.
type Memory struct {
	m     sync.Mutex
	tasks []Task
	ids   []string
}

var _ Scheduler = &Memory{}

// NewMemory returns an empty in-memory scheduler.
func NewMemory() *Memory {
	return &Memory{}
}

func (s *Memory) Schedule(task Task) (string, error) {
	s.m.Lock()
	defer s.m.Unlock()
	id := fmt.Sprintf("task-%d", len(s.tasks)+1)
	s.tasks = append(s.tasks, task)
	s.ids = append(s.ids, id)
	return id, nil
}

// Tasks returns a copy of everything scheduled so far.
func (s *Memory) Tasks() []Task {
	s.m.Lock()
	defer s.m.Unlock()
	return append([]Task(nil), s.tasks...)
}
