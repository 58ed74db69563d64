package domain

import (
	"fmt"
	"sort"
	"strings"
)

// SortMode selects the ordering of a visible task list.
type SortMode int

const (
	SortByDate SortMode = iota
	SortByPriority
)

// ParseSortMode accepts "date" (the default when empty) or "priority".
func ParseSortMode(s string) (SortMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "date":
		return SortByDate, nil
	case "priority":
		return SortByPriority, nil
	}
	return SortByDate, fmt.Errorf("unknown sort mode %q", s)
}

func (m SortMode) String() string {
	if m == SortByPriority {
		return "priority"
	}
	return "date"
}

// Criteria are the inputs of Visible besides the task collection.
type Criteria struct {
	View View
	// ActiveBoard is used by a board view that does not name its board.
	ActiveBoard string
	Search      string
	Sort        SortMode
	// Today is the YYYY-MM-DD date the date views are evaluated against.
	Today string
}

// Visible derives the ordered subset of tasks selected by c. The input
// slice is not modified. The result is never nil; an empty slice is a
// valid outcome.
//
// A search view applies its query the same way Search does; when both are
// set a task has to match both.
func Visible(tasks []Task, c Criteria) []Task {
	out := make([]Task, 0, len(tasks))
	for _, t := range tasks {
		if !matchesSearch(t, c.Search) {
			continue
		}
		if !c.matchesView(t) {
			continue
		}
		out = append(out, t)
	}

	switch c.Sort {
	case SortByPriority:
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].Priority.Rank() < out[j].Priority.Rank()
		})
	default:
		sort.SliceStable(out, func(i, j int) bool {
			if out[i].DueDate != out[j].DueDate {
				return out[i].DueDate < out[j].DueDate
			}
			return out[i].sortTime() < out[j].sortTime()
		})
	}
	return out
}

func (c Criteria) matchesView(t Task) bool {
	switch c.View.Kind {
	case ViewInbox:
		return true
	case ViewToday:
		return t.DueDate == c.Today
	case ViewUpcoming:
		return t.DueDate >= c.Today
	case ViewBoard:
		id := c.View.BoardID
		if id == "" {
			id = c.ActiveBoard
		}
		return t.BoardID == id
	case ViewSearch:
		return matchesSearch(t, c.View.Query)
	}
	return false
}

func matchesSearch(t Task, query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return true
	}
	return strings.Contains(strings.ToLower(t.Title), q) ||
		strings.Contains(strings.ToLower(t.Description), q)
}
