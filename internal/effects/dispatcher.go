// Package effects runs post-commit side effects. Every effect is best-effort:
// it runs even when an earlier one failed or panicked, and no failure is
// reported to the caller whose write already committed.
package effects

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/TheServizephyr/ServiZephyrTheRealBot-sub000/internal/util"
)

// Kind names a post-commit effect
type Kind string

const (
	KindTrackingSnapshot Kind = "tracking_snapshot"
	KindPublish          Kind = "publish"
	KindInvalidateCache  Kind = "invalidate_cache"
	KindDomainEvent      Kind = "domain_event"
)

// Effect is one post-commit action
type Effect struct {
	Kind Kind
	Run  func(ctx context.Context) error
}

// Dispatcher executes effects in order, isolating each one
type Dispatcher struct {
	timeout time.Duration
	logger  *zap.Logger
}

// NewDispatcher creates a dispatcher whose effects share a detached context bounded by timeout
func NewDispatcher(timeout time.Duration) *Dispatcher {
	return &Dispatcher{
		timeout: timeout,
		logger:  util.GetLogger(),
	}
}

// Run executes every effect and returns how many succeeded. The caller's
// context only contributes its values; cancellation is not propagated.
func (d *Dispatcher) Run(ctx context.Context, effects []Effect) int {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	defer cancel()

	ok := 0
	for _, e := range effects {
		if err := d.runOne(ctx, e); err != nil {
			util.SideEffectFailuresTotal.WithLabelValues(string(e.Kind)).Inc()
			d.logger.Warn("Post-commit effect failed",
				zap.String("effect", string(e.Kind)),
				zap.Error(err))
			continue
		}
		ok++
	}
	return ok
}

func (d *Dispatcher) runOne(ctx context.Context, e Effect) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("effect panicked: %v", r)
		}
	}()
	if e.Run == nil {
		return nil
	}
	return e.Run(ctx)
}
