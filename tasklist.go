package ksatagent

import (
	"fmt"
	"sync"
)

// Fixed labels of the first two phases of every job
const (
	LabelStructureDesign   = "논리 구조 설계"
	LabelPassageGeneration = "지문 생성"
)

// QuestionLabel returns the task label of question n
func QuestionLabel(n int) string {
	return fmt.Sprintf("%d번 문항 생성", n)
}

// TaskLabels returns the task labels of a job with numQuestions questions
func TaskLabels(numQuestions int) []string {
	if numQuestions < 0 {
		numQuestions = 0
	}
	labels := make([]string, 0, numQuestions+2)
	labels = append(labels, LabelStructureDesign, LabelPassageGeneration)
	for i := 1; i <= numQuestions; i++ {
		labels = append(labels, QuestionLabel(i))
	}
	return labels
}

// Progress is the completed/total count of a task list
type Progress struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
}

// Fraction returns the completed share, 0 for an empty list
func (p Progress) Fraction() float64 {
	if p.Total == 0 {
		return 0
	}
	return float64(p.Completed) / float64(p.Total)
}

// TaskList tracks the ordered sub-tasks of one generation job.
// Writes come from a single event path; the lock lets renderers read concurrently.
type TaskList struct {
	mu    sync.RWMutex
	tasks []Task
	index map[string]int
}

// NewTaskList creates a task list with every label pending.
// Duplicate labels after the first are ignored.
func NewTaskList(labels []string) *TaskList {
	tl := &TaskList{
		tasks: make([]Task, 0, len(labels)),
		index: make(map[string]int, len(labels)),
	}
	for _, label := range labels {
		if _, dup := tl.index[label]; dup {
			continue
		}
		tl.index[label] = len(tl.tasks)
		tl.tasks = append(tl.tasks, Task{Label: label, Status: StatusPending})
	}
	return tl
}

// InitTaskList creates the task list of a job with numQuestions questions
func InitTaskList(numQuestions int) *TaskList {
	return NewTaskList(TaskLabels(numQuestions))
}

// SetStatus updates the task with the given label. Unknown labels are ignored
// and a task never moves back to an earlier status.
func (tl *TaskList) SetStatus(label string, status TaskStatus) {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	tl.setLocked(label, status)
}

func (tl *TaskList) setLocked(label string, status TaskStatus) {
	i, ok := tl.index[label]
	if !ok {
		VerboseLog("ignoring status %s for unknown task %q", status, label)
		return
	}
	if status.rank() < tl.tasks[i].Status.rank() {
		return
	}
	tl.tasks[i].Status = status
}

// Start completes every task currently in progress, then marks label in progress
func (tl *TaskList) Start(label string) {
	tl.mu.Lock()
	defer tl.mu.Unlock()

	for i := range tl.tasks {
		if tl.tasks[i].Status == StatusInProgress {
			tl.tasks[i].Status = StatusComplete
		}
	}
	tl.setLocked(label, StatusInProgress)
}

// CompleteAll marks every task complete
func (tl *TaskList) CompleteAll() {
	tl.mu.Lock()
	defer tl.mu.Unlock()

	for i := range tl.tasks {
		tl.tasks[i].Status = StatusComplete
	}
}

// Aggregate counts completed tasks
func (tl *TaskList) Aggregate() Progress {
	tl.mu.RLock()
	defer tl.mu.RUnlock()

	p := Progress{Total: len(tl.tasks)}
	for _, t := range tl.tasks {
		if t.Status == StatusComplete {
			p.Completed++
		}
	}
	return p
}

// Snapshot returns a copy of the tasks in order
func (tl *TaskList) Snapshot() []Task {
	tl.mu.RLock()
	defer tl.mu.RUnlock()

	out := make([]Task, len(tl.tasks))
	copy(out, tl.tasks)
	return out
}

// Status returns the status of label
func (tl *TaskList) Status(label string) (TaskStatus, bool) {
	tl.mu.RLock()
	defer tl.mu.RUnlock()

	i, ok := tl.index[label]
	if !ok {
		return "", false
	}
	return tl.tasks[i].Status, true
}

// InProgress returns the task currently in progress, if any
func (tl *TaskList) InProgress() (Task, bool) {
	tl.mu.RLock()
	defer tl.mu.RUnlock()

	for _, t := range tl.tasks {
		if t.Status == StatusInProgress {
			return t, true
		}
	}
	return Task{}, false
}

// Len returns the number of tasks
func (tl *TaskList) Len() int {
	tl.mu.RLock()
	defer tl.mu.RUnlock()
	return len(tl.tasks)
}
