package suggest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Fallback is returned whenever the provider cannot produce suggestions.
var Fallback = []string{"Organize workspace", "Review weekly goals", "Take a short walk"}

// ErrBusy is returned when a suggestion request for the same user is
// already in flight.
var ErrBusy = errors.New("suggestion already in progress")

// Provider proposes new task titles from the current ones.
type Provider interface {
	Suggest(ctx context.Context, titles []string) ([]string, error)
}

// Guard tracks the per-user busy flag.
type Guard interface {
	// Acquire sets the flag. ok is false when it is already set.
	Acquire(ctx context.Context, userID string) (release func(), ok bool, err error)
	Held(ctx context.Context, userID string) (bool, error)
}

// Result of one suggestion request.
type Result struct {
	RequestID   string
	Suggestions []string
	Fallback    bool
}

// Gateway calls the provider on behalf of a user. Failures never reach the
// caller; they are replaced by Fallback.
type Gateway struct {
	provider Provider
	guard    Guard
	timeout  time.Duration
	log      log.FieldLogger
}

// NewGateway wires a provider and a busy guard. A nil provider always
// yields the fallback list; a nil guard uses an in-process LocalGuard.
func NewGateway(provider Provider, guard Guard, timeout time.Duration, logger log.FieldLogger) *Gateway {
	if guard == nil {
		guard = NewLocalGuard()
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Gateway{provider: provider, guard: guard, timeout: timeout, log: logger}
}

// Suggest returns suggested titles for the given current titles. The only
// error it returns is ErrBusy.
func (g *Gateway) Suggest(ctx context.Context, userID string, titles []string) (Result, error) {
	res := Result{RequestID: uuid.NewString()}
	logger := g.log.WithFields(log.Fields{"user": userID, "request": res.RequestID})

	release, ok, err := g.guard.Acquire(ctx, userID)
	switch {
	case err != nil:
		logger.WithError(err).Warn("busy guard unavailable; continuing unguarded")
		release = func() {}
	case !ok:
		return Result{}, ErrBusy
	}
	defer release()

	suggestions, err := g.call(ctx, titles)
	if err != nil {
		logger.WithError(err).Warn("suggestion provider failed; using fallback")
		res.Suggestions = append([]string(nil), Fallback...)
		res.Fallback = true
		return res, nil
	}
	res.Suggestions = suggestions
	logger.WithField("count", len(suggestions)).Debug("suggestions received")
	return res, nil
}

// Busy reports whether a request for userID is in flight.
func (g *Gateway) Busy(ctx context.Context, userID string) bool {
	held, err := g.guard.Held(ctx, userID)
	return err == nil && held
}

func (g *Gateway) call(ctx context.Context, titles []string) (out []string, err error) {
	if g.provider == nil {
		return nil, errors.New("no suggestion provider configured")
	}
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("provider panic: %v", r)
		}
	}()
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	raw, err := g.provider.Suggest(ctx, titles)
	if err != nil {
		return nil, err
	}
	out = make([]string, 0, len(raw))
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out, nil
}
