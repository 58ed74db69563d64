package domain

import (
	"fmt"
	"strings"
	"time"
)

const (
	// DateLayout is the calendar date format used for due dates.
	DateLayout = "2006-01-02"
	// TimeLayout is the clock format used for due times.
	TimeLayout = "15:04"

	endOfDay = "23:59"
)

// Task is a single to-do item owned by a workspace.
type Task struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Completed   bool     `json:"completed"`
	CreatedAt   int64    `json:"createdAt"`
	DueDate     string   `json:"dueDate"`
	DueTime     string   `json:"dueTime,omitempty"`
	Priority    Priority `json:"priority"`
	BoardID     string   `json:"boardId"`
	Description string   `json:"description,omitempty"`
}

// NewTask carries the user supplied fields of a task to be created.
// Zero values select the defaults: Medium priority, the default board and
// a due date of today.
type NewTask struct {
	Title       string
	DueDate     string
	DueTime     string
	Priority    Priority
	BoardID     string
	Description string
}

// ValidationError reports a malformed field on task creation.
type ValidationError struct {
	Field string
	Value string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %q", e.Field, e.Value)
}

// normalize trims the input and fills in defaults. ok is false when the
// title is blank, which callers treat as a silent no-op.
func (n NewTask) normalize(today string) (out NewTask, ok bool, err error) {
	out = NewTask{
		Title:       strings.TrimSpace(n.Title),
		DueDate:     strings.TrimSpace(n.DueDate),
		DueTime:     strings.TrimSpace(n.DueTime),
		Priority:    n.Priority,
		BoardID:     strings.TrimSpace(n.BoardID),
		Description: strings.TrimSpace(n.Description),
	}
	if out.Title == "" {
		return out, false, nil
	}
	if out.DueDate == "" {
		out.DueDate = today
	} else if !ValidDate(out.DueDate) {
		return out, false, &ValidationError{Field: "dueDate", Value: out.DueDate}
	}
	if out.DueTime != "" && !ValidTime(out.DueTime) {
		return out, false, &ValidationError{Field: "dueTime", Value: out.DueTime}
	}
	if out.Priority == "" {
		out.Priority = PriorityMedium
	} else if !out.Priority.Valid() {
		return out, false, &ValidationError{Field: "priority", Value: string(out.Priority)}
	}
	if out.BoardID == "" {
		out.BoardID = DefaultBoardID
	}
	return out, true, nil
}

// IsOverdue reports whether an open task is due before today.
func (t Task) IsOverdue(today string) bool {
	return !t.Completed && t.DueDate != "" && t.DueDate < today
}

// sortTime is the time of day used for ordering; tasks without a due time
// sort at the end of their day.
func (t Task) sortTime() string {
	if t.DueTime == "" {
		return endOfDay
	}
	return t.DueTime
}

// ValidDate reports whether s is a YYYY-MM-DD calendar date.
func ValidDate(s string) bool {
	_, err := time.Parse(DateLayout, s)
	return err == nil
}

// ValidTime reports whether s is an HH:mm clock time.
func ValidTime(s string) bool {
	if len(s) != len(TimeLayout) {
		return false
	}
	_, err := time.Parse(TimeLayout, s)
	return err == nil
}

// DateOf formats t as a due date in t's location.
func DateOf(t time.Time) string {
	return t.Format(DateLayout)
}
