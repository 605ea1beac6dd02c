// Package tasks is the read-only boundary to the external task board.
//
// The board owns task storage. phasegate only ever lists a snapshot of
// tasks and never writes back.
package tasks

import (
	"context"
	"fmt"
	"slices"
	"time"
)

// Status is the lifecycle state of a task on the board.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusBlocked    Status = "blocked"
)

var validStatuses = map[Status]bool{
	StatusPending:    true,
	StatusInProgress: true,
	StatusCompleted:  true,
	StatusBlocked:    true,
}

// ValidateStatus returns an error if the status is not recognized.
func ValidateStatus(s Status) error {
	if !validStatuses[s] {
		return fmt.Errorf("invalid task status %q: must be one of: pending, in_progress, completed, blocked", s)
	}
	return nil
}

// Terminal reports whether a task in this status no longer blocks a phase.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusBlocked
}

// MetaProject is the metadata key that ties a task to a project.
const MetaProject = "project"

// Task is one work item as reported by the board.
type Task struct {
	ID        string            `json:"id"`
	Subject   string            `json:"subject"`
	Status    Status            `json:"status"`
	UpdatedAt time.Time         `json:"updated_at"`
	Swimlane  string            `json:"swimlane,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Filter narrows a listing. Zero values match everything.
type Filter struct {
	// Project keeps tasks whose "project" metadata equals it. Tasks without
	// project metadata belong to every project.
	Project string
	Status  []Status
}

// Match reports whether t passes the filter.
func (f Filter) Match(t Task) bool {
	if f.Project != "" {
		if p, ok := t.Metadata[MetaProject]; ok && p != "" && p != f.Project {
			return false
		}
	}
	if len(f.Status) > 0 && !slices.Contains(f.Status, t.Status) {
		return false
	}
	return true
}

// Source lists tasks from a board.
type Source interface {
	List(ctx context.Context, f Filter) ([]Task, error)
}

// Static is an in-memory Source, mostly useful for tests and for callers
// that already hold a snapshot.
type Static []Task

// List returns a filtered copy of the slice.
func (s Static) List(_ context.Context, f Filter) ([]Task, error) {
	out := make([]Task, 0, len(s))
	for _, t := range s {
		if f.Match(t) {
			out = append(out, t)
		}
	}
	return out, nil
}
