package events

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"taskflow/domain"
)

// Event describes one committed workspace mutation.
type Event struct {
	ID      string   `json:"id"`
	Source  string   `json:"source,omitempty"`
	UserID  string   `json:"userId"`
	Type    string   `json:"type"`
	TaskIDs []string `json:"taskIds"`
	Time    int64    `json:"time"`
}

// FromChange converts a workspace change into an event with a fresh id.
func FromChange(ch domain.Change) Event {
	ids := ch.TaskIDs
	if ids == nil {
		ids = []string{}
	}
	return Event{
		ID:      uuid.NewString(),
		UserID:  ch.UserID,
		Type:    string(ch.Kind),
		TaskIDs: ids,
		Time:    ch.At.UnixMilli(),
	}
}

// Publisher delivers events to one destination.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, ev Event) error

func (f PublisherFunc) Publish(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

const publishTimeout = 5 * time.Second

// Dispatcher fans workspace changes out to every publisher. Delivery
// failures are logged and never reach the mutation that caused them.
type Dispatcher struct {
	source     string
	publishers []Publisher
	log        log.FieldLogger
}

// NewDispatcher stamps every event with source, the id of this process.
func NewDispatcher(source string, logger log.FieldLogger, publishers ...Publisher) *Dispatcher {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Dispatcher{source: source, publishers: publishers, log: logger}
}

// OnChange satisfies domain.ChangeFunc.
func (d *Dispatcher) OnChange(ctx context.Context, ch domain.Change) {
	ev := FromChange(ch)
	ev.Source = d.source
	if err := d.Publish(ctx, ev); err != nil {
		d.log.WithError(err).WithFields(log.Fields{"user": ev.UserID, "type": ev.Type, "event": ev.ID}).Error("publish task event")
	}
}

// Publish sends ev to all publishers and joins their errors.
func (d *Dispatcher) Publish(ctx context.Context, ev Event) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	var errs []error
	for _, p := range d.publishers {
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
