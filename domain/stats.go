package domain

import (
	"math"
	"time"
)

// Stats summarises progress over a task collection.
type Stats struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Open      int `json:"open"`
	Overdue   int `json:"overdue"`
	// Percent is the rounded share of completed tasks, 0 for no tasks.
	Percent int `json:"percent"`
}

func Summarize(tasks []Task, today string) Stats {
	var s Stats
	for _, t := range tasks {
		s.Total++
		if t.Completed {
			s.Completed++
			continue
		}
		s.Open++
		if t.IsOverdue(today) {
			s.Overdue++
		}
	}
	if s.Total > 0 {
		s.Percent = int(math.Round(float64(s.Completed) / float64(s.Total) * 100))
	}
	return s
}

// CalendarDay is one cell of a month grid.
type CalendarDay struct {
	Date  string `json:"date"`
	Day   int    `json:"day"`
	Due   int    `json:"due"`
	Today bool   `json:"today"`
}

// CalendarMonth is a month grid. Offset is the weekday of the first day
// (Sunday=0), i.e. the number of blank cells before it.
type CalendarMonth struct {
	Year   int           `json:"year"`
	Month  time.Month    `json:"month"`
	Offset int           `json:"offset"`
	Days   []CalendarDay `json:"days"`
}

// Calendar builds the grid for year/month, counting open tasks due on
// each day.
func Calendar(tasks []Task, year int, month time.Month, today string) CalendarMonth {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	daysIn := first.AddDate(0, 1, -1).Day()

	due := make(map[string]int)
	for _, t := range tasks {
		if !t.Completed {
			due[t.DueDate]++
		}
	}

	cm := CalendarMonth{
		Year:   year,
		Month:  month,
		Offset: int(first.Weekday()),
		Days:   make([]CalendarDay, 0, daysIn),
	}
	for d := 1; d <= daysIn; d++ {
		date := DateOf(first.AddDate(0, 0, d-1))
		cm.Days = append(cm.Days, CalendarDay{
			Date:  date,
			Day:   d,
			Due:   due[date],
			Today: date == today,
		})
	}
	return cm
}
