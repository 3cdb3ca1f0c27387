// Package tasks runs fire-and-forget work (webhook dispatch, view tracking)
// on supervised goroutines that outlive the HTTP request that started them.
//
// Each task gets a context detached from the caller's cancellation but keeping
// its values (request id, trace span), bounded by a per-task timeout. Panics
// are recovered and logged, outcomes are counted in Prometheus, and Wait lets
// the server drain in-flight tasks during shutdown.
package tasks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultTimeout bounds a single task.
const DefaultTimeout = 2 * time.Minute

var tasksTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "background_tasks_total",
		Help: "Background tasks by name and outcome (ok, error, panic).",
	},
	[]string{"task", "outcome"},
)

func init() {
	prometheus.MustRegister(tasksTotal)
}

// Runner supervises background tasks.
type Runner struct {
	Log     zerolog.Logger
	Timeout time.Duration

	wg sync.WaitGroup
}

// New returns a runner logging through the global logger.
func New(timeout time.Duration) *Runner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Runner{Log: log.Logger, Timeout: timeout}
}

// Go runs fn on its own goroutine with a context derived from parent that
// ignores parent's cancellation.
func (r *Runner) Go(parent context.Context, name string, fn func(ctx context.Context) error) {
	if parent == nil {
		parent = context.Background()
	}
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), timeout)
		defer cancel()

		start := time.Now()
		err := r.run(ctx, fn)
		outcome := "ok"
		switch {
		case err == nil:
		case isPanic(err):
			outcome = "panic"
		default:
			outcome = "error"
		}
		tasksTotal.WithLabelValues(name, outcome).Inc()

		if err != nil {
			r.Log.Error().Err(err).Str("task", name).Dur("took", time.Since(start)).Msg("background task failed")
			return
		}
		r.Log.Debug().Str("task", name).Dur("took", time.Since(start)).Msg("background task done")
	}()
}

type panicError struct{ v any }

func (p panicError) Error() string { return fmt.Sprintf("panic: %v", p.v) }

func isPanic(err error) bool {
	_, ok := err.(panicError)
	return ok
}

func (r *Runner) run(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = panicError{v: rec}
		}
	}()
	return fn(ctx)
}

// Wait blocks until all tasks finish or ctx is done.
func (r *Runner) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
