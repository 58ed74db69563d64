package events

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// AsyncConfig sizes an AsyncPublisher.
type AsyncConfig struct {
	Workers        int
	Buffer         int
	PublishTimeout time.Duration
	// HandoffTimeout is how long Publish waits for buffer space before
	// delivering inline.
	HandoffTimeout time.Duration
}

func DefaultAsyncConfig() AsyncConfig {
	return AsyncConfig{Workers: 4, Buffer: 256, PublishTimeout: 60 * time.Second, HandoffTimeout: 15 * time.Millisecond}
}

// AsyncPublisher hands events to a pool of workers that deliver them to a
// slow destination such as a storage queue. When the buffer stays full
// past the handoff timeout the event is delivered inline.
type AsyncPublisher struct {
	next Publisher
	cfg  AsyncConfig
	log  log.FieldLogger

	jobs     chan Event
	mu       sync.RWMutex
	closed   bool
	workerWG sync.WaitGroup
}

func NewAsyncPublisher(next Publisher, cfg AsyncConfig, logger log.FieldLogger) *AsyncPublisher {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Buffer < 0 {
		cfg.Buffer = 0
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	p := &AsyncPublisher{next: next, cfg: cfg, log: logger, jobs: make(chan Event, cfg.Buffer)}
	for i := 0; i < cfg.Workers; i++ {
		p.workerWG.Add(1)
		go p.worker(i)
	}
	logger.Infof("event export started, workers: %d, buffer: %d, timeout: %v, handoff: %v", cfg.Workers, cfg.Buffer, cfg.PublishTimeout, cfg.HandoffTimeout)
	return p
}

func (p *AsyncPublisher) worker(id int) {
	defer p.workerWG.Done()
	for ev := range p.jobs {
		if err := p.deliver(ev); err != nil {
			p.log.WithError(err).WithFields(log.Fields{"user": ev.UserID, "event": ev.ID, "worker": id}).Error("event export failed")
		}
	}
}

func (p *AsyncPublisher) deliver(ev Event) error {
	ctx := context.Background()
	if p.cfg.PublishTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.PublishTimeout)
		defer cancel()
	}
	return p.next.Publish(ctx, ev)
}

// Publish queues ev. It only returns an error when the event had to be
// delivered inline and that delivery failed.
func (p *AsyncPublisher) Publish(ctx context.Context, ev Event) error {
	if p.tryEnqueue(ev) {
		return nil
	}
	p.log.WithField("event", ev.ID).Warn("event export buffer saturated; delivering inline")
	return p.next.Publish(ctx, ev)
}

func (p *AsyncPublisher) tryEnqueue(ev Event) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}

	select {
	case p.jobs <- ev:
		return true
	default:
	}

	if p.cfg.HandoffTimeout <= 0 {
		return false
	}
	timer := time.NewTimer(p.cfg.HandoffTimeout)
	defer timer.Stop()
	select {
	case p.jobs <- ev:
		return true
	case <-timer.C:
		return false
	}
}

// Close stops accepting events and waits for queued ones to be delivered.
func (p *AsyncPublisher) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()
	p.workerWG.Wait()
}
