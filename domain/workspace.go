package domain

import (
	"context"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// ChangeKind names a mutation of a workspace.
type ChangeKind string

const (
	TaskCreated    ChangeKind = "task-created"
	TaskToggled    ChangeKind = "task-toggled"
	TaskDeleted    ChangeKind = "task-deleted"
	TasksSuggested ChangeKind = "tasks-suggested"
)

// Change describes a persisted mutation.
type Change struct {
	UserID  string
	Kind    ChangeKind
	TaskIDs []string
	At      time.Time
}

// ChangeFunc observes persisted mutations. It runs after the write and
// outside the workspace lock.
type ChangeFunc func(ctx context.Context, ch Change)

// Workspace is the task engine of one user: a TaskStore plus the
// lifecycle operations over it. Every successful mutation performs exactly
// one full write of the collection. When the write fails the in-memory
// collection is rolled back so it keeps matching what is persisted.
type Workspace struct {
	mu     sync.Mutex
	userID string
	store  *TaskStore
	newID  func() string
	now    func() time.Time
	loc    *time.Location
	notify ChangeFunc
	log    log.FieldLogger
}

// Option configures a Workspace.
type Option func(*Workspace)

func WithClock(now func() time.Time) Option { return func(w *Workspace) { w.now = now } }

func WithIDs(next func() string) Option { return func(w *Workspace) { w.newID = next } }

// WithLocation sets the location "today" is computed in.
func WithLocation(loc *time.Location) Option { return func(w *Workspace) { w.loc = loc } }

func WithChangeFunc(fn ChangeFunc) Option { return func(w *Workspace) { w.notify = fn } }

func WithLogger(l log.FieldLogger) Option { return func(w *Workspace) { w.log = l } }

// OpenWorkspace builds the workspace for userID and loads its tasks.
func OpenWorkspace(ctx context.Context, slots Slots, userID string, opts ...Option) *Workspace {
	w := &Workspace{
		userID: userID,
		newID:  NewID,
		now:    time.Now,
		loc:    time.Local,
		log:    log.StandardLogger(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.store = NewTaskStore(slots, userID, w.log)
	w.store.Load(ctx)
	return w
}

func (w *Workspace) UserID() string { return w.userID }

// Today returns the current date in the workspace location.
func (w *Workspace) Today() string {
	return DateOf(w.now().In(w.loc))
}

// Tasks returns a snapshot of the collection in store order.
func (w *Workspace) Tasks() []Task {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.store.All()
}

// Visible applies Visible to the current collection. An empty c.Today is
// replaced by the workspace's today.
func (w *Workspace) Visible(c Criteria) []Task {
	if c.Today == "" {
		c.Today = w.Today()
	}
	return Visible(w.Tasks(), c)
}

// Titles lists the titles of the collection, restricted to boardID when it
// is not empty.
func (w *Workspace) Titles(boardID string) []string {
	tasks := w.Tasks()
	titles := make([]string, 0, len(tasks))
	for _, t := range tasks {
		if boardID != "" && t.BoardID != boardID {
			continue
		}
		titles = append(titles, t.Title)
	}
	return titles
}

// AddTask creates a task from in and prepends it. A blank title is a
// no-op reported through added=false. Malformed dates, times or priorities
// yield a *ValidationError and change nothing.
func (w *Workspace) AddTask(ctx context.Context, in NewTask) (task Task, added bool, err error) {
	norm, ok, err := in.normalize(w.Today())
	if err != nil || !ok {
		return Task{}, false, err
	}

	w.mu.Lock()
	task = Task{
		ID:          w.newID(),
		Title:       norm.Title,
		CreatedAt:   w.now().UnixMilli(),
		DueDate:     norm.DueDate,
		DueTime:     norm.DueTime,
		Priority:    norm.Priority,
		BoardID:     norm.BoardID,
		Description: norm.Description,
	}
	prev := w.store.All()
	next := make([]Task, 0, len(prev)+1)
	next = append(next, task)
	next = append(next, prev...)
	err = w.commit(ctx, prev, next)
	w.mu.Unlock()
	if err != nil {
		return Task{}, false, err
	}
	w.changed(ctx, TaskCreated, task.ID)
	return task, true, nil
}

// ToggleTask flips the completion of the task with the given id. found is
// false, and nothing is written, when no such task exists.
func (w *Workspace) ToggleTask(ctx context.Context, id string) (task Task, found bool, err error) {
	w.mu.Lock()
	prev := w.store.All()
	next := w.store.All()
	for i := range next {
		if next[i].ID == id {
			next[i].Completed = !next[i].Completed
			task = next[i]
			found = true
			break
		}
	}
	if found {
		err = w.commit(ctx, prev, next)
	}
	w.mu.Unlock()
	if !found || err != nil {
		return Task{}, false, err
	}
	w.changed(ctx, TaskToggled, id)
	return task, true, nil
}

// DeleteTask removes the task with the given id. found is false, and
// nothing is written, when no such task exists.
func (w *Workspace) DeleteTask(ctx context.Context, id string) (found bool, err error) {
	w.mu.Lock()
	prev := w.store.All()
	next := make([]Task, 0, len(prev))
	for _, t := range prev {
		if t.ID == id {
			found = true
			continue
		}
		next = append(next, t)
	}
	if found {
		err = w.commit(ctx, prev, next)
	}
	w.mu.Unlock()
	if !found || err != nil {
		return false, err
	}
	w.changed(ctx, TaskDeleted, id)
	return true, nil
}

// BulkInsertFromSuggestions turns every non-blank title into a Medium
// priority task due today and prepends them in the given order. The batch
// is written once. An empty batch writes nothing.
func (w *Workspace) BulkInsertFromSuggestions(ctx context.Context, titles []string, boardID string) ([]Task, error) {
	boardID = strings.TrimSpace(boardID)
	if boardID == "" {
		boardID = DefaultBoardID
	}
	today := w.Today()

	w.mu.Lock()
	created := make([]Task, 0, len(titles))
	for _, title := range titles {
		title = strings.TrimSpace(title)
		if title == "" {
			continue
		}
		created = append(created, Task{
			ID:        w.newID(),
			Title:     title,
			CreatedAt: w.now().UnixMilli(),
			DueDate:   today,
			Priority:  PriorityMedium,
			BoardID:   boardID,
		})
	}
	if len(created) == 0 {
		w.mu.Unlock()
		return created, nil
	}
	prev := w.store.All()
	next := make([]Task, 0, len(prev)+len(created))
	next = append(next, created...)
	next = append(next, prev...)
	err := w.commit(ctx, prev, next)
	w.mu.Unlock()
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(created))
	for i, t := range created {
		ids[i] = t.ID
	}
	w.changed(ctx, TasksSuggested, ids...)
	return created, nil
}

// commit installs next and writes it through. On a failed write prev is
// restored. Callers hold w.mu.
func (w *Workspace) commit(ctx context.Context, prev, next []Task) error {
	w.store.replace(next)
	if err := w.store.Save(ctx); err != nil {
		w.store.replace(prev)
		w.log.WithError(err).WithField("user", w.userID).Error("persist tasks")
		return err
	}
	return nil
}

func (w *Workspace) changed(ctx context.Context, kind ChangeKind, ids ...string) {
	if w.notify == nil {
		return
	}
	w.notify(ctx, Change{UserID: w.userID, Kind: kind, TaskIDs: ids, At: w.now()})
}
