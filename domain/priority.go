package domain

import (
	"fmt"
	"strings"
)

// Priority orders tasks within a view. High sorts first.
type Priority string

const (
	PriorityHigh   Priority = "High"
	PriorityMedium Priority = "Medium"
	PriorityLow    Priority = "Low"
)

// Rank returns the sort rank of p: High=0, Medium=1, Low=2. Unknown values
// rank with Medium.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityLow:
		return 2
	default:
		return 1
	}
}

func (p Priority) Valid() bool {
	return p == PriorityHigh || p == PriorityMedium || p == PriorityLow
}

// ParsePriority accepts the priority names case-insensitively. An empty
// string yields Medium.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return PriorityMedium, nil
	case "high":
		return PriorityHigh, nil
	case "medium":
		return PriorityMedium, nil
	case "low":
		return PriorityLow, nil
	}
	return "", fmt.Errorf("unknown priority %q", s)
}

// priorityFromTier maps the numeric tiers of older records (1 highest,
// 4 meaning "none") onto the named priorities.
func priorityFromTier(tier int) Priority {
	switch tier {
	case 1:
		return PriorityHigh
	case 3:
		return PriorityLow
	default:
		return PriorityMedium
	}
}
