package models

import (
	"fmt"
	"time"
)

// TaskType names a transformation.
type TaskType string

const (
	TaskTypeExtractText    TaskType = "extract_text"
	TaskTypeMerge          TaskType = "merge"
	TaskTypeConvertToImage TaskType = "convert_to_image"
)

// Valid reports whether t is a known transformation.
func (t TaskType) Valid() bool {
	switch t {
	case TaskTypeExtractText, TaskTypeMerge, TaskTypeConvertToImage:
		return true
	}
	return false
}

type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusProcessing TaskStatus = "processing"
	StatusCompleted  TaskStatus = "completed"
	StatusFailed     TaskStatus = "failed"
)

// IsTerminal reports whether no further transition is allowed.
func (s TaskStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransitionTo reports whether the state machine allows s -> next.
// pending -> failed is reserved for dispatch failures.
func (s TaskStatus) CanTransitionTo(next TaskStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusProcessing || next == StatusFailed
	case StatusProcessing:
		return next == StatusCompleted || next == StatusFailed
	}
	return false
}

// OutputFile references a StoredFile produced by a task.
type OutputFile struct {
	ID       int64  `json:"id"`
	Filename string `json:"filename"`
	Type     string `json:"type"`
}

// TaskParams carries the optional per-kind request options.
type TaskParams struct {
	OutputFilename string `json:"outputFilename,omitempty"`
	Format         string `json:"format,omitempty"`
}

// ProcessingTask is a unit of asynchronous work over one or more stored files.
type ProcessingTask struct {
	ID          int64        `json:"id"`
	Type        TaskType     `json:"type"`
	Status      TaskStatus   `json:"status"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
	InputFiles  []int64      `json:"inputFiles"`
	OutputFiles []OutputFile `json:"outputFiles"`
	Error       *string      `json:"error"`
	Params      TaskParams   `json:"params"`
}

// TaskUpdate is a partial update. Nil fields are left unchanged.
type TaskUpdate struct {
	Status      *TaskStatus
	OutputFiles []OutputFile
	Error       *string
}

// Clone returns a deep copy.
func (t *ProcessingTask) Clone() *ProcessingTask {
	if t == nil {
		return nil
	}
	c := *t
	c.InputFiles = append([]int64{}, t.InputFiles...)
	c.OutputFiles = append([]OutputFile{}, t.OutputFiles...)
	if t.Error != nil {
		msg := *t.Error
		c.Error = &msg
	}
	return &c
}

// Apply merges u into t and refreshes UpdatedAt. It fails with
// ErrInvalidTransition without touching t when the status change is not allowed.
func (t *ProcessingTask) Apply(u TaskUpdate, now time.Time) error {
	if u.Status != nil && *u.Status != t.Status {
		if !t.Status.CanTransitionTo(*u.Status) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, *u.Status)
		}
	} else if t.Status.IsTerminal() {
		return fmt.Errorf("%w: task %d is %s", ErrInvalidTransition, t.ID, t.Status)
	}

	if u.Status != nil {
		t.Status = *u.Status
	}
	if u.OutputFiles != nil {
		t.OutputFiles = append([]OutputFile{}, u.OutputFiles...)
	}
	if u.Error != nil {
		msg := *u.Error
		t.Error = &msg
	}
	t.UpdatedAt = now
	return nil
}

// NewTask builds a pending task with empty outputs.
func NewTask(taskType TaskType, inputIDs []int64, params TaskParams, now time.Time) *ProcessingTask {
	return &ProcessingTask{
		Type:        taskType,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
		InputFiles:  append([]int64{}, inputIDs...),
		OutputFiles: []OutputFile{},
		Params:      params,
	}
}

// StatusPtr is a helper for building TaskUpdate values.
func StatusPtr(s TaskStatus) *TaskStatus { return &s }

// StringPtr is a helper for building TaskUpdate values.
func StringPtr(s string) *string { return &s }
