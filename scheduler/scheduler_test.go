package scheduler

import "testing"

func TestNewLoadTask(t *testing.T) {
	task := NewLoadTask("https://forge.example.org/proj", 42)
	if task.Type != TaskTypeLoadDeposit {
		t.Errorf("task type = %q", task.Type)
	}
	if task.DepositID != 42 || task.OriginURL != "https://forge.example.org/proj" {
		t.Errorf("task = %+v", task)
	}
	if task.Retries != DefaultRetries {
		t.Errorf("task retries = %d", task.Retries)
	}
	if task.Created.IsZero() {
		t.Error("task has no creation time")
	}
}

func TestMemorySchedule(t *testing.T) {
	s := NewMemory()
	id1, err := s.Schedule(NewLoadTask("a", 1))
	if err != nil {
		t.Fatal(err)
	}
	id2, err := s.Schedule(NewLoadTask("b", 2))
	if err != nil {
		t.Fatal(err)
	}
	if id1 == id2 {
		t.Error("task ids are not distinct")
	}
	tasks := s.Tasks()
	if len(tasks) != 2 || tasks[0].OriginURL != "a" || tasks[1].OriginURL != "b" {
		t.Errorf("tasks = %+v", tasks)
	}
}
