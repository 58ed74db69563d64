package domain

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"
)

// Canonical slot keys. Both are namespaced by user id in the slot medium.
const (
	TasksSlot = "taskflow_todos"
	AuthSlot  = "taskflow_auth"
)

// Slots is the key-value medium state is persisted into. partition
// namespaces the keys of one user.
type Slots interface {
	// Get returns the value stored under key; ok is false when the key is
	// absent.
	Get(ctx context.Context, partition, key string) (value []byte, ok bool, err error)
	Put(ctx context.Context, partition, key string, value []byte) error
	Delete(ctx context.Context, partition, key string) error
}

// TaskStore holds the task collection of one user and mirrors it into the
// TasksSlot. It is not safe for concurrent use; Workspace serialises
// access.
type TaskStore struct {
	slots  Slots
	userID string
	log    log.FieldLogger
	tasks  []Task
}

func NewTaskStore(slots Slots, userID string, logger log.FieldLogger) *TaskStore {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &TaskStore{slots: slots, userID: userID, log: logger, tasks: []Task{}}
}

// Load replaces the in-memory collection with the persisted one. Missing,
// unreadable or malformed data leaves the store empty.
func (s *TaskStore) Load(ctx context.Context) {
	s.tasks = []Task{}
	data, ok, err := s.slots.Get(ctx, s.userID, TasksSlot)
	if err != nil {
		s.log.WithError(err).WithFields(log.Fields{"user": s.userID, "slot": TasksSlot}).Warn("task slot unreadable; starting empty")
		return
	}
	if !ok || len(data) == 0 {
		return
	}
	tasks, err := decodeTasks(data)
	if err != nil {
		s.log.WithError(err).WithFields(log.Fields{"user": s.userID, "slot": TasksSlot}).Warn("task slot malformed; starting empty")
		return
	}
	s.tasks = tasks
}

// Save writes the full collection to the TasksSlot.
func (s *TaskStore) Save(ctx context.Context) error {
	data, err := sonic.Marshal(s.tasks)
	if err != nil {
		return err
	}
	return s.slots.Put(ctx, s.userID, TasksSlot, data)
}

// All returns a copy of the collection in store order.
func (s *TaskStore) All() []Task {
	out := make([]Task, len(s.tasks))
	copy(out, s.tasks)
	return out
}

func (s *TaskStore) replace(tasks []Task) { s.tasks = tasks }

// storedTask accepts the current record shape as well as older ones that
// used "text" for the title, numeric ids and numeric priority tiers.
type storedTask struct {
	ID          any    `json:"id"`
	Title       string `json:"title"`
	Text        string `json:"text"`
	Completed   bool   `json:"completed"`
	CreatedAt   int64  `json:"createdAt"`
	DueDate     string `json:"dueDate"`
	DueTime     string `json:"dueTime"`
	Priority    any    `json:"priority"`
	BoardID     string `json:"boardId"`
	Description string `json:"description"`
}

func decodeTasks(data []byte) ([]Task, error) {
	var raw []storedTask
	if err := sonic.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	// ids repaired below are derived from the record position so that every
	// load of the same collection yields the same ids.
	stored := make(map[string]struct{}, len(raw))
	for _, r := range raw {
		if id := storedID(r.ID); id != "" {
			stored[id] = struct{}{}
		}
	}
	tasks := make([]Task, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for i, r := range raw {
		t := Task{
			ID:          storedID(r.ID),
			Title:       strings.TrimSpace(r.Title),
			Completed:   r.Completed,
			CreatedAt:   r.CreatedAt,
			DueDate:     r.DueDate,
			DueTime:     storedTime(r.DueTime),
			Priority:    storedPriority(r.Priority),
			BoardID:     r.BoardID,
			Description: r.Description,
		}
		if t.Title == "" {
			t.Title = strings.TrimSpace(r.Text)
		}
		if t.Title == "" {
			continue
		}
		if _, dup := seen[t.ID]; t.ID == "" || dup {
			t.ID = repairedID(t.ID, i, stored, seen)
		}
		seen[t.ID] = struct{}{}
		if t.BoardID == "" {
			t.BoardID = DefaultBoardID
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// repairedID names the record at position i whose id is missing or taken.
func repairedID(id string, i int, stored, seen map[string]struct{}) string {
	if id == "" {
		id = "legacy"
	}
	base := id + "-" + strconv.Itoa(i)
	candidate := base
	for n := 1; ; n++ {
		_, isStored := stored[candidate]
		_, isSeen := seen[candidate]
		if !isStored && !isSeen {
			return candidate
		}
		candidate = base + "-" + strconv.Itoa(n)
	}
}

// storedTime normalises a due time to HH:mm. Older records may carry a
// single digit hour; anything unparseable is dropped.
func storedTime(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || ValidTime(s) {
		return s
	}
	parsed, err := time.Parse(TimeLayout, s)
	if err != nil {
		return ""
	}
	return parsed.Format(TimeLayout)
}

func storedID(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(id, 10)
	}
	return ""
}

func storedPriority(v any) Priority {
	switch p := v.(type) {
	case string:
		if parsed, err := ParsePriority(p); err == nil {
			return parsed
		}
	case float64:
		return priorityFromTier(int(p))
	case int64:
		return priorityFromTier(int(p))
	}
	return PriorityMedium
}
