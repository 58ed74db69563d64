package domain

import (
	"reflect"
	"testing"
)

const testToday = "2025-06-15"

func sampleTasks() []Task {
	return []Task{
		{ID: "1", Title: "Plan trip", DueDate: "2025-06-16", Priority: PriorityLow, BoardID: "personal"},
		{ID: "2", Title: "Ship release", DueDate: "2025-06-15", Priority: PriorityHigh, BoardID: "work"},
		{ID: "3", Title: "Standup", DueDate: "2025-06-15", DueTime: "09:00", Priority: PriorityMedium, BoardID: "work", Description: "Daily SYNC with team"},
	}
}

func ids(tasks []Task) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.ID
	}
	return out
}

func TestVisibleDateSort(t *testing.T) {
	got := Visible(sampleTasks(), Criteria{View: Inbox(), Sort: SortByDate, Today: testToday})
	if want := []string{"3", "2", "1"}; !reflect.DeepEqual(ids(got), want) {
		t.Fatalf("date sort = %v, want %v", ids(got), want)
	}
}

func TestVisiblePrioritySort(t *testing.T) {
	got := Visible(sampleTasks(), Criteria{View: Inbox(), Sort: SortByPriority, Today: testToday})
	if want := []string{"2", "3", "1"}; !reflect.DeepEqual(ids(got), want) {
		t.Fatalf("priority sort = %v, want %v", ids(got), want)
	}
}

func TestVisiblePrioritySortIsStable(t *testing.T) {
	tasks := []Task{
		{ID: "a", Priority: PriorityMedium, DueDate: "2025-06-20"},
		{ID: "b", Priority: PriorityHigh, DueDate: "2025-06-20"},
		{ID: "c", Priority: PriorityMedium, DueDate: "2025-06-10"},
		{ID: "d", Priority: PriorityMedium, DueDate: "2025-06-01"},
	}
	got := Visible(tasks, Criteria{View: Inbox(), Sort: SortByPriority, Today: testToday})
	if want := []string{"b", "a", "c", "d"}; !reflect.DeepEqual(ids(got), want) {
		t.Fatalf("priority sort = %v, want %v", ids(got), want)
	}
}

func TestVisibleViews(t *testing.T) {
	tasks := append(sampleTasks(), Task{ID: "4", Title: "Old errand", DueDate: "2025-06-01", BoardID: "personal"})

	tests := []struct {
		name string
		c    Criteria
		want []string
	}{
		{name: "today", c: Criteria{View: Today()}, want: []string{"3", "2"}},
		{name: "upcoming", c: Criteria{View: Upcoming()}, want: []string{"3", "2", "1"}},
		{name: "inbox", c: Criteria{View: Inbox()}, want: []string{"4", "3", "2", "1"}},
		{name: "board", c: Criteria{View: BoardView("personal")}, want: []string{"4", "1"}},
		{name: "board falls back to active board", c: Criteria{View: BoardView(""), ActiveBoard: "work"}, want: []string{"3", "2"}},
		{name: "search view", c: Criteria{View: SearchView("TRIP")}, want: []string{"1"}},
		{name: "search matches description", c: Criteria{View: Inbox(), Search: "sync"}, want: []string{"3"}},
		{name: "search narrows today", c: Criteria{View: Today(), Search: "ship"}, want: []string{"2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.c.Today = testToday
			got := Visible(tasks, tt.c)
			if !reflect.DeepEqual(ids(got), tt.want) {
				t.Fatalf("got %v, want %v", ids(got), tt.want)
			}
		})
	}
}

func TestVisibleTodayTaskAlsoUpcoming(t *testing.T) {
	tasks := []Task{{ID: "x", Title: "x", DueDate: testToday}}
	for _, v := range []View{Today(), Upcoming()} {
		if got := Visible(tasks, Criteria{View: v, Today: testToday}); len(got) != 1 {
			t.Fatalf("view %s: expected task due today, got %v", v, ids(got))
		}
	}
}

func TestVisibleUpcomingNeverMissesFutureTasks(t *testing.T) {
	var tasks []Task
	for _, d := range []string{"2025-06-14", "2025-06-15", "2025-07-01", "2026-01-01", "2025-05-31"} {
		tasks = append(tasks, Task{ID: d, Title: d, DueDate: d})
	}
	got := Visible(tasks, Criteria{View: Upcoming(), Today: testToday})
	for _, task := range tasks {
		in := false
		for _, g := range got {
			if g.ID == task.ID {
				in = true
			}
		}
		if want := task.DueDate >= testToday; in != want {
			t.Fatalf("task due %s: in upcoming=%v, want %v", task.DueDate, in, want)
		}
	}
}

func TestVisibleEmptyResultIsNotNil(t *testing.T) {
	got := Visible(sampleTasks(), Criteria{View: SearchView("nothing matches this")})
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", got)
	}
	if got := Visible(nil, Criteria{}); got == nil {
		t.Fatalf("expected empty non-nil slice for empty store")
	}
}

func TestVisibleDoesNotReorderInput(t *testing.T) {
	tasks := sampleTasks()
	Visible(tasks, Criteria{View: Inbox(), Today: testToday})
	if want := []string{"1", "2", "3"}; !reflect.DeepEqual(ids(tasks), want) {
		t.Fatalf("input reordered: %v", ids(tasks))
	}
}

func TestParseViewAndSort(t *testing.T) {
	v, err := ParseView("board", " work ")
	if err != nil || v != BoardView("work") {
		t.Fatalf("ParseView(board) = %#v, %v", v, err)
	}
	if v, _ := ParseView("", ""); v.Kind != ViewToday {
		t.Fatalf("expected Today as default view, got %v", v)
	}
	if _, err := ParseView("calendar", ""); err == nil {
		t.Fatalf("expected error for unknown view")
	}
	if m, err := ParseSortMode("Priority"); err != nil || m != SortByPriority {
		t.Fatalf("ParseSortMode(Priority) = %v, %v", m, err)
	}
	if _, err := ParseSortMode("title"); err == nil {
		t.Fatalf("expected error for unknown sort mode")
	}
}
