// Package plan implements the versioned task/plan data model. Plans are
// organized as tasks holding append-only, immutable revisions of plan items;
// every mutation is a pure function returning a new TaskPlan so the whole
// aggregate can be persisted as a single atomic write.
package plan

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors for plan operations.
var (
	// ErrNotFound means a referenced task or item does not exist.
	ErrNotFound = errors.New("plan: not found")
	// ErrInvalidState means a plan invariant is violated (bad revision
	// index). It is never silently repaired.
	ErrInvalidState = errors.New("plan: invalid state")
	// ErrEmptyPlan means the plan holds no tasks.
	ErrEmptyPlan = errors.New("plan: empty plan")
)

// CreatedBy identifies who produced a plan revision.
type CreatedBy string

const (
	CreatedByAgent CreatedBy = "agent"
	CreatedByUser  CreatedBy = "user"
)

// PlanItem is one atomic unit of work within a revision.
type PlanItem struct {
	Index     int    `json:"index"`
	Text      string `json:"text"`
	Completed bool   `json:"completed"`
	Summary   string `json:"summary,omitempty"`
}

// PlanRevision is an immutable snapshot of a task's plan items. Revisions
// are append-only; editing a plan always produces a new revision.
type PlanRevision struct {
	RevisionIndex int        `json:"revision_index"`
	Items         []PlanItem `json:"items"`
	CreatedAt     time.Time  `json:"created_at"`
	CreatedBy     CreatedBy  `json:"created_by"`
}

// Task is one user request with its full revision trail.
//
//nolint:govet // fieldalignment: serialized shape preferred
type Task struct {
	ID                  uuid.UUID      `json:"id"`
	TaskIndex           int            `json:"task_index"`
	Title               string         `json:"title,omitempty"`
	Request             string         `json:"request"`
	CreatedAt           time.Time      `json:"created_at"`
	Completed           bool           `json:"completed"`
	CompletedAt         *time.Time     `json:"completed_at,omitempty"`
	Summary             string         `json:"summary,omitempty"`
	Revisions           []PlanRevision `json:"revisions"`
	ActiveRevisionIndex int            `json:"active_revision_index"`
	ParentTaskID        *uuid.UUID     `json:"parent_task_id,omitempty"`
}

// TaskPlan is the root aggregate. It is owned by the orchestrator; all
// mutation goes through the pure functions in this package.
type TaskPlan struct {
	Tasks           []Task `json:"tasks"`
	ActiveTaskIndex int    `json:"active_task_index"`
}

// NewTaskPlan returns an empty plan.
func NewTaskPlan() TaskPlan {
	return TaskPlan{}
}

// clone deep-copies a plan so mutations never alias the caller's value.
func clone(p TaskPlan) TaskPlan {
	out := TaskPlan{
		Tasks:           make([]Task, len(p.Tasks)),
		ActiveTaskIndex: p.ActiveTaskIndex,
	}
	for i := range p.Tasks {
		out.Tasks[i] = cloneTask(&p.Tasks[i])
	}
	return out
}

func cloneTask(t *Task) Task {
	ct := *t
	ct.Revisions = make([]PlanRevision, len(t.Revisions))
	for i := range t.Revisions {
		rev := t.Revisions[i]
		items := make([]PlanItem, len(rev.Items))
		copy(items, rev.Items)
		rev.Items = items
		ct.Revisions[i] = rev
	}
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		ct.CompletedAt = &at
	}
	if t.ParentTaskID != nil {
		id := *t.ParentTaskID
		ct.ParentTaskID = &id
	}
	return ct
}

// newItems builds indexed, not-completed plan items from raw step texts.
func newItems(texts []string, startIndex int) []PlanItem {
	items := make([]PlanItem, 0, len(texts))
	for i, text := range texts {
		items = append(items, PlanItem{Index: startIndex + i, Text: text})
	}
	return items
}

// CreateTask appends a new task with a single initial revision (index 0)
// and makes it the active task. Returns the new plan and the created task ID.
func CreateTask(p TaskPlan, request, title string, items []string, parentTaskID *uuid.UUID) (TaskPlan, uuid.UUID) {
	out := clone(p)

	task := Task{
		ID:        uuid.New(),
		TaskIndex: len(out.Tasks),
		Title:     title,
		Request:   request,
		CreatedAt: time.Now().UTC(),
		Revisions: []PlanRevision{{
			RevisionIndex: 0,
			Items:         newItems(items, 0),
			CreatedAt:     time.Now().UTC(),
			CreatedBy:     CreatedByAgent,
		}},
	}
	if parentTaskID != nil {
		id := *parentTaskID
		task.ParentTaskID = &id
	}

	out.Tasks = append(out.Tasks, task)
	out.ActiveTaskIndex = len(out.Tasks) - 1
	return out, task.ID
}

func findTask(p *TaskPlan, taskID uuid.UUID) (int, bool) {
	for i := range p.Tasks {
		if p.Tasks[i].ID == taskID {
			return i, true
		}
	}
	return 0, false
}

// activeRevision returns a pointer to the task's active revision, enforcing
// the ActiveRevisionIndex invariant.
func activeRevision(t *Task) (*PlanRevision, error) {
	if t.ActiveRevisionIndex < 0 || t.ActiveRevisionIndex >= len(t.Revisions) {
		return nil, ErrInvalidState
	}
	return &t.Revisions[t.ActiveRevisionIndex], nil
}

// ReviseTask appends a new revision to the named task and makes it active.
// Items already completed in the current active revision are carried over
// unchanged, preserving their indices and order; newItemTexts become the
// not-yet-started tail of the new revision.
func ReviseTask(p TaskPlan, taskID uuid.UUID, newItemTexts []string, createdBy CreatedBy) (TaskPlan, error) {
	out := clone(p)

	ti, ok := findTask(&out, taskID)
	if !ok {
		return TaskPlan{}, ErrNotFound
	}
	task := &out.Tasks[ti]

	active, err := activeRevision(task)
	if err != nil {
		return TaskPlan{}, err
	}

	// Completed items survive every revision, in place.
	kept := make([]PlanItem, 0, len(active.Items))
	for _, item := range active.Items {
		if item.Completed {
			kept = append(kept, item)
		}
	}

	items := append(kept, newItems(newItemTexts, len(kept))...)

	task.Revisions = append(task.Revisions, PlanRevision{
		RevisionIndex: len(task.Revisions),
		Items:         items,
		CreatedAt:     time.Now().UTC(),
		CreatedBy:     createdBy,
	})
	task.ActiveRevisionIndex = len(task.Revisions) - 1
	return out, nil
}

// AppendItems appends new, unstarted items to the active revision of the
// named task by creating a fresh revision that keeps every existing item
// (completed or not) and adds the new tail. Used by the reviewing phase,
// which may only ever inject unstarted work.
func AppendItems(p TaskPlan, taskID uuid.UUID, itemTexts []string, createdBy CreatedBy) (TaskPlan, error) {
	out := clone(p)

	ti, ok := findTask(&out, taskID)
	if !ok {
		return TaskPlan{}, ErrNotFound
	}
	task := &out.Tasks[ti]

	active, err := activeRevision(task)
	if err != nil {
		return TaskPlan{}, err
	}

	items := make([]PlanItem, 0, len(active.Items)+len(itemTexts))
	items = append(items, active.Items...)
	items = append(items, newItems(itemTexts, len(active.Items))...)

	task.Revisions = append(task.Revisions, PlanRevision{
		RevisionIndex: len(task.Revisions),
		Items:         items,
		CreatedAt:     time.Now().UTC(),
		CreatedBy:     createdBy,
	})
	task.ActiveRevisionIndex = len(task.Revisions) - 1
	return out, nil
}

// CompleteItem marks the item with the given index completed in the active
// revision of the named task. Other revisions are untouched.
func CompleteItem(p TaskPlan, taskID uuid.UUID, itemIndex int, summary string) (TaskPlan, error) {
	out := clone(p)

	ti, ok := findTask(&out, taskID)
	if !ok {
		return TaskPlan{}, ErrNotFound
	}
	task := &out.Tasks[ti]

	active, err := activeRevision(task)
	if err != nil {
		return TaskPlan{}, err
	}

	for i := range active.Items {
		if active.Items[i].Index == itemIndex {
			active.Items[i].Completed = true
			if summary != "" {
				active.Items[i].Summary = summary
			}
			return out, nil
		}
	}
	return TaskPlan{}, ErrNotFound
}

// CompleteTask marks the named task completed.
func CompleteTask(p TaskPlan, taskID uuid.UUID, summary string) (TaskPlan, error) {
	out := clone(p)

	ti, ok := findTask(&out, taskID)
	if !ok {
		return TaskPlan{}, ErrNotFound
	}
	task := &out.Tasks[ti]

	now := time.Now().UTC()
	task.Completed = true
	task.CompletedAt = &now
	if summary != "" {
		task.Summary = summary
	}
	return out, nil
}

// GetActiveTask returns the currently active task.
func GetActiveTask(p TaskPlan) (Task, error) {
	if len(p.Tasks) == 0 {
		return Task{}, ErrEmptyPlan
	}
	if p.ActiveTaskIndex < 0 || p.ActiveTaskIndex >= len(p.Tasks) {
		return Task{}, ErrInvalidState
	}
	return cloneTask(&p.Tasks[p.ActiveTaskIndex]), nil
}

// GetActiveItems returns the items of the active task's active revision.
func GetActiveItems(p TaskPlan) ([]PlanItem, error) {
	task, err := GetActiveTask(p)
	if err != nil {
		return nil, err
	}
	active, err := activeRevision(&task)
	if err != nil {
		return nil, err
	}
	items := make([]PlanItem, len(active.Items))
	copy(items, active.Items)
	return items, nil
}

// GetRemainingItems returns the not-yet-completed items of the active
// task's active revision, in execution order.
func GetRemainingItems(p TaskPlan) ([]PlanItem, error) {
	items, err := GetActiveItems(p)
	if err != nil {
		return nil, err
	}
	remaining := make([]PlanItem, 0, len(items))
	for _, item := range items {
		if !item.Completed {
			remaining = append(remaining, item)
		}
	}
	return remaining, nil
}

// NextItem returns the first not-yet-completed item of the active plan.
// The second return is false when every item is done.
func NextItem(p TaskPlan) (PlanItem, bool, error) {
	remaining, err := GetRemainingItems(p)
	if err != nil {
		return PlanItem{}, false, err
	}
	if len(remaining) == 0 {
		return PlanItem{}, false, nil
	}
	return remaining[0], true, nil
}
