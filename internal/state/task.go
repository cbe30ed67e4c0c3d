// Shoal is a Redfish aggregator service.
// Copyright (C) 2025  Matthew Burns
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package state

import (
	"container/heap"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TaskState is the Redfish TaskState enum, narrowed to the values this
// bridge ever produces.
type TaskState string

const (
	TaskNew       TaskState = "New"
	TaskStarting  TaskState = "Starting"
	TaskRunning   TaskState = "Running"
	TaskCompleted TaskState = "Completed"
	TaskException TaskState = "Exception"
	TaskCancelled TaskState = "Cancelled"
)

// TaskStatus is the Redfish TaskStatus / health-style severity enum.
type TaskStatus string

const (
	StatusOK       TaskStatus = "OK"
	StatusWarning  TaskStatus = "Warning"
	StatusCritical TaskStatus = "Critical"
)

// TaskMessage is one entry in a Task's Messages[] array.
type TaskMessage struct {
	Severity TaskStatus
	Text     string
}

// Action is the work a Task performs while Running. It returns an error only
// to request the no-failure-contract's Warning annotation — the task still
// completes Completed/OK either way. Action takes no arguments and runs
// exactly once, synchronously, during the transition into Running.
type Action func() error

// Task is one asynchronous Redfish operation.
type Task struct {
	mu sync.RWMutex

	ID              string
	Name            string
	TargetURI       string
	ResultLocation  string
	state           TaskState
	status          TaskStatus
	percentComplete int
	startTime       time.Time
	endTime         time.Time
	messages        []TaskMessage

	action    Action
	stepDelay time.Duration
	stepPct   int
	nextTick  time.Time
	ran       bool
}

func (t *Task) State() TaskState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

func (t *Task) Status() TaskStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

func (t *Task) PercentComplete() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.percentComplete
}

func (t *Task) Times() (start, end time.Time) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.startTime, t.endTime
}

func (t *Task) Messages() []TaskMessage {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]TaskMessage, len(t.messages))
	copy(out, t.messages)
	return out
}

func (t *Task) appendMessage(m TaskMessage) {
	t.messages = append(t.messages, m)
}

// TaskEngine is a lock-protected registry plus a single background worker
// that advances every task through New -> Starting -> Running -> terminal
// on a priority queue keyed by next_tick_time, as suggested in spec.md §9.
type TaskEngine struct {
	mu      sync.Mutex
	tasks   map[string]*Task
	pq      tickQueue
	wake    chan struct{}
	stop    chan struct{}
	stopped bool
}

// NewTaskEngine creates a task registry and starts its background driver.
func NewTaskEngine() *TaskEngine {
	e := &TaskEngine{
		tasks: make(map[string]*Task),
		wake:  make(chan struct{}, 1),
		stop:  make(chan struct{}),
	}
	go e.run()
	return e
}

// Stop halts the background driver. Safe to call once during shutdown.
func (e *TaskEngine) Stop() {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	e.mu.Unlock()
	close(e.stop)
}

// New creates a task in state New and schedules its first tick 100ms out.
// action runs once, synchronously, from the driver goroutine during the
// transition into Running; its error (if any) becomes a Warning message
// rather than a failed task, per the no-failure-contract (spec.md §3, §4.6).
func (e *TaskEngine) New(name, targetURI string, action Action) *Task {
	t := &Task{
		ID:        uuid.NewString(),
		Name:      name,
		TargetURI: targetURI,
		state:     TaskNew,
		status:    StatusOK,
		startTime: time.Now(),
		action:    action,
		stepDelay: 500 * time.Millisecond,
		stepPct:   5,
		nextTick:  time.Now().Add(100 * time.Millisecond),
	}
	t.ResultLocation = "/redfish/v1/TaskService/Tasks/" + t.ID

	e.mu.Lock()
	e.tasks[t.ID] = t
	heap.Push(&e.pq, t)
	e.mu.Unlock()

	e.kick()
	return t
}

// Get looks up a task by ID.
func (e *TaskEngine) Get(id string) (*Task, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.tasks[id]
	return t, ok
}

// All returns every task currently retained (including evicted-soon ones).
func (e *TaskEngine) All() []*Task {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*Task, 0, len(e.tasks))
	for _, t := range e.tasks {
		out = append(out, t)
	}
	return out
}

// SeedCompleted registers a pre-populated, already-terminal task so the
// orchestrator's first TaskService poll is never empty (spec.md §4.5).
func (e *TaskEngine) SeedCompleted(name, targetURI string) *Task {
	now := time.Now()
	t := &Task{
		ID:              uuid.NewString(),
		Name:            name,
		TargetURI:       targetURI,
		state:           TaskCompleted,
		status:          StatusOK,
		percentComplete: 100,
		startTime:       now,
		endTime:         now,
	}
	t.ResultLocation = "/redfish/v1/TaskService/Tasks/" + t.ID
	e.mu.Lock()
	e.tasks[t.ID] = t
	e.mu.Unlock()
	return t
}

func (e *TaskEngine) kick() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

func (e *TaskEngine) run() {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	evictTicker := time.NewTicker(5 * time.Minute)
	defer evictTicker.Stop()

	for {
		select {
		case <-e.stop:
			return
		case <-e.wake:
			e.tick()
		case <-ticker.C:
			e.tick()
		case <-evictTicker.C:
			e.evict()
		}
	}
}

// tick advances every task whose nextTick has elapsed.
func (e *TaskEngine) tick() {
	now := time.Now()
	for {
		e.mu.Lock()
		if e.pq.Len() == 0 {
			e.mu.Unlock()
			return
		}
		top := e.pq[0]
		if top.nextTick.After(now) {
			e.mu.Unlock()
			return
		}
		heap.Pop(&e.pq)
		e.mu.Unlock()

		advance(top)

		if !isTerminal(top.State()) {
			e.mu.Lock()
			heap.Push(&e.pq, top)
			e.mu.Unlock()
		}
	}
}

func isTerminal(s TaskState) bool {
	return s == TaskCompleted || s == TaskException || s == TaskCancelled
}

// advance runs exactly one state transition for t, per the diagram in
// spec.md §4.6. Terminal tasks never revert (checked by the caller skipping
// re-enqueue), and Completed/Cancelled always carry percentComplete=100.
func advance(t *Task) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.state {
	case TaskNew:
		t.state = TaskStarting
		t.nextTick = time.Now().Add(400 * time.Millisecond)
	case TaskStarting:
		t.state = TaskRunning
		if t.action != nil && !t.ran {
			t.ran = true
			if err := t.action(); err != nil {
				t.status = StatusWarning
				t.appendMessage(TaskMessage{Severity: StatusWarning, Text: "Upstream unavailable; operation deferred."})
			}
		}
		t.nextTick = time.Now().Add(t.stepDelay)
	case TaskRunning:
		t.percentComplete += t.stepPct
		if t.percentComplete >= 100 {
			t.percentComplete = 100
			t.state = TaskCompleted
			t.endTime = time.Now()
		} else {
			t.nextTick = time.Now().Add(t.stepDelay)
		}
	}
}

func (e *TaskEngine) evict() {
	cutoff := time.Now().Add(-1 * time.Hour)
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, t := range e.tasks {
		t.mu.RLock()
		end := t.endTime
		terminal := isTerminal(t.state)
		t.mu.RUnlock()
		if terminal && !end.IsZero() && end.Before(cutoff) {
			delete(e.tasks, id)
		}
	}
}

// tickQueue is a container/heap.Interface min-heap on nextTick, giving the
// single background worker O(log n) scheduling across however many tasks
// are in flight.
type tickQueue []*Task

func (q tickQueue) Len() int            { return len(q) }
func (q tickQueue) Less(i, j int) bool  { return q[i].nextTick.Before(q[j].nextTick) }
func (q tickQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i] }
func (q *tickQueue) Push(x interface{}) { *q = append(*q, x.(*Task)) }
func (q *tickQueue) Pop() interface{} {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}
