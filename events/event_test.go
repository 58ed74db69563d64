package events

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"taskflow/domain"
)

func TestFromChange(t *testing.T) {
	at := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	ev := FromChange(domain.Change{UserID: "u1", Kind: domain.TaskToggled, TaskIDs: []string{"a"}, At: at})
	if ev.ID == "" || ev.UserID != "u1" || ev.Type != "task-toggled" || ev.Time != at.UnixMilli() {
		t.Fatalf("unexpected event: %#v", ev)
	}
	if !reflect.DeepEqual(ev.TaskIDs, []string{"a"}) {
		t.Fatalf("unexpected ids: %v", ev.TaskIDs)
	}
	if other := FromChange(domain.Change{UserID: "u1"}); other.ID == ev.ID || other.TaskIDs == nil {
		t.Fatalf("expected a fresh id and non-nil ids: %#v", other)
	}
}

type fakeQueue struct {
	mu       sync.Mutex
	messages []string
	err      error
}

func (f *fakeQueue) EnqueueMessage(_ context.Context, content string, _ *azqueue.EnqueueMessageOptions) (azqueue.EnqueueMessagesResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return azqueue.EnqueueMessagesResponse{}, f.err
	}
	f.messages = append(f.messages, content)
	return azqueue.EnqueueMessagesResponse{}, nil
}

func TestQueuePublisher(t *testing.T) {
	q := &fakeQueue{}
	p := &QueuePublisher{queue: q}
	ev := Event{ID: "e1", UserID: "u1", Type: "task-created", TaskIDs: []string{"t1"}, Time: 42}
	if err := p.Publish(context.Background(), ev); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(q.messages) != 1 {
		t.Fatalf("expected one message, got %d", len(q.messages))
	}
	var got Event
	if err := sonic.UnmarshalString(q.messages[0], &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(got, ev) {
		t.Fatalf("got %#v, want %#v", got, ev)
	}
}

func TestDispatcherLogsFailuresAndContinues(t *testing.T) {
	logger, hook := test.NewNullLogger()
	failing := &fakeQueue{err: errors.New("queue down")}
	var delivered []Event
	d := NewDispatcher("instance-a", logger,
		&QueuePublisher{queue: failing},
		PublisherFunc(func(_ context.Context, ev Event) error {
			delivered = append(delivered, ev)
			return nil
		}),
	)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.OnChange(ctx, domain.Change{UserID: "u1", Kind: domain.TaskCreated, TaskIDs: []string{"t1"}})

	if len(delivered) != 1 || delivered[0].UserID != "u1" || delivered[0].Source != "instance-a" {
		t.Fatalf("expected delivery despite the failing publisher, got %#v", delivered)
	}
	entry := hook.LastEntry()
	if entry == nil || entry.Level != log.ErrorLevel || entry.Data["user"] != "u1" {
		t.Fatalf("expected an error log, got %#v", entry)
	}
}
