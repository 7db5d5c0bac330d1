// Package tasks implements the academic task tracker: a durable list of named
// tasks with due dates and completion state, each optionally backed by a folder
// holding a generated README.
package tasks

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// DateLayout is the on-disk and CLI format of due dates.
const DateLayout = "2006-01-02"

// Status is the completion state of a task.
type Status string

const (
	StatusPending   Status = "Pending"
	StatusCompleted Status = "Completed"
)

// Errors returned by the tracker and its stores.
var (
	ErrTaskNotFound     = errors.New("task not found")
	ErrInvalidID        = errors.New("invalid task id")
	ErrAmbiguousID      = errors.New("task id prefix matches more than one task")
	ErrInvalidDate      = errors.New("invalid due date, expected YYYY-MM-DD")
	ErrEmptyName        = errors.New("task name cannot be empty")
	ErrInvalidStatus    = errors.New("status must be Pending or Completed")
	ErrAlreadyCompleted = errors.New("task is already completed")
)

// Task is one row of the tracker.
type Task struct {
	ID          string // stable UUID
	Name        string
	Due         time.Time // local midnight of the due date
	Description string
	Status      Status
	Course      string
}

// DueString renders the due date in DateLayout, or "" when unset.
func (t Task) DueString() string {
	if t.Due.IsZero() {
		return ""
	}
	return t.Due.Format(DateLayout)
}

// Validate checks the fields a stored task must satisfy.
func (t Task) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return ErrEmptyName
	}
	if t.Status != StatusPending && t.Status != StatusCompleted {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, t.Status)
	}
	return nil
}

// ParseDue parses a YYYY-MM-DD date in local time.
func ParseDue(s string) (time.Time, error) {
	d, err := time.ParseInLocation(DateLayout, strings.TrimSpace(s), time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return d, nil
}

// ParseStatus accepts Pending/Completed case-insensitively.
func ParseStatus(s string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pending":
		return StatusPending, nil
	case "completed", "complete", "done":
		return StatusCompleted, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
}

// SanitizeName replaces commas with semicolons so names never contain the legacy
// field delimiter, and trims surrounding whitespace.
func SanitizeName(name string) string {
	return strings.TrimSpace(strings.ReplaceAll(name, ",", ";"))
}

// DaysUntilDue returns (due - now) in whole days using integer division on Unix
// seconds, which truncates toward zero: a task due in 6.9 days reports 6, and a
// task due earlier today reports 0.
func DaysUntilDue(due, now time.Time) int {
	return int((due.Unix() - now.Unix()) / 86400)
}

// calendarDays returns the number of calendar days from now's date to due's date.
func calendarDays(due, now time.Time) int {
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, due.Location())
	dy, dm, dd := due.Date()
	dueDay := time.Date(dy, dm, dd, 0, 0, 0, 0, due.Location())
	return int(math.Round(dueDay.Sub(today).Hours() / 24))
}
