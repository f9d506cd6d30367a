package purge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vk/twinctl/internal/ctxlog"
)

const (
	defaultWorkers    = 4
	defaultRetryLimit = 2
)

// Observer receives progress callbacks. All calls come from the goroutine
// running the purge, after each pass's barrier.
type Observer interface {
	PassStarted(pass int, deletable []string, kept int)
	ModelDeleted(pass int, id string)
	ModelFailed(pass int, id string, err error)
}

type nopObserver struct{}

func (nopObserver) PassStarted(int, []string, int) {}
func (nopObserver) ModelDeleted(int, string)       {}
func (nopObserver) ModelFailed(int, string, error) {}

// Option configures a Purger.
type Option func(*Purger)

// WithWorkers sets how many deletes of one pass run at the same time.
func WithWorkers(n int) Option {
	return func(p *Purger) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithObserver installs a progress observer.
func WithObserver(o Observer) Option {
	return func(p *Purger) {
		if o != nil {
			p.observer = o
		}
	}
}

// WithRetryLimit sets how many consecutive passes may fail every delete
// before the run is declared stuck. Zero means the first such pass is final.
func WithRetryLimit(n int) Option {
	return func(p *Purger) {
		if n >= 0 {
			p.retryLimit = n
		}
	}
}

// WithRetryDelay sets a pause before a pass that retries failed deletes.
func WithRetryDelay(d time.Duration) Option {
	return func(p *Purger) {
		p.retryDelay = d
	}
}

// Purger runs the leaf-first deletion.
type Purger struct {
	deleter    Deleter
	workers    int
	retryLimit int
	retryDelay time.Duration
	observer   Observer
}

// New creates a Purger that deletes through d.
func New(d Deleter, opts ...Option) *Purger {
	p := &Purger{
		deleter:    d,
		workers:    defaultWorkers,
		retryLimit: defaultRetryLimit,
		observer:   nopObserver{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Purge lists the snapshot through l and runs the purge on it. A listing
// error aborts before anything is deleted.
func (p *Purger) Purge(ctx context.Context, l Lister) (*Report, error) {
	models, err := l.ListModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}
	return p.Run(ctx, models)
}

// Run deletes models leaves first until none remain or no pass can make
// progress. The returned error is non-nil only when ctx was cancelled
// between passes; the report is always returned, listing what remains.
func (p *Purger) Run(ctx context.Context, models []Model) (*Report, error) {
	logger := ctxlog.FromContext(ctx)
	remaining := dedupe(models)
	report := &Report{State: Running}
	lastErrors := make(map[string]error)
	idlePasses := 0

	logger.Debug("Purge started.", "models", len(remaining), "workers", p.workers)

	for len(remaining) > 0 {
		if err := ctx.Err(); err != nil {
			report.State = Aborted
			report.Remaining = ids(remaining)
			logger.Warn("Purge aborted between passes.", "remaining", len(remaining), "error", err)
			return report, fmt.Errorf("purge aborted after %d pass(es): %w", report.Passes, err)
		}

		if idlePasses > 0 && p.retryDelay > 0 {
			if err := sleep(ctx, p.retryDelay); err != nil {
				report.State = Aborted
				report.Remaining = ids(remaining)
				return report, fmt.Errorf("purge aborted after %d pass(es): %w", report.Passes, err)
			}
		}

		report.Passes++
		pass := report.Passes
		deletable, kept := Partition(remaining)
		p.observer.PassStarted(pass, ids(deletable), len(kept))

		if len(deletable) == 0 {
			logger.Warn("No deletable models left, purge is stuck.", "pass", pass, "remaining", len(remaining))
			report.State = Stuck
			report.Stuck = Explain(remaining, lastErrors)
			return report, nil
		}
		logger.Info("Model deletion pass started.", "pass", pass, "deletable", len(deletable), "kept", len(kept))

		outcomes := p.runPass(ctx, pass, deletable)

		deleted := make(map[string]bool, len(deletable))
		for i, m := range deletable {
			err := outcomes[i]
			if err == nil || isNotFound(err) {
				deleted[m.ID] = true
				delete(lastErrors, m.ID)
				report.Deleted = append(report.Deleted, m.ID)
				p.observer.ModelDeleted(pass, m.ID)
				continue
			}
			lastErrors[m.ID] = err
			report.Failures = append(report.Failures, Failure{Pass: pass, ID: m.ID, Err: err})
			p.observer.ModelFailed(pass, m.ID, err)
		}

		next := remaining[:0:0]
		for _, m := range remaining {
			if !deleted[m.ID] {
				next = append(next, m)
			}
		}
		remaining = next

		if len(deleted) == 0 {
			idlePasses++
			logger.Warn("Pass deleted nothing.", "pass", pass, "idle_passes", idlePasses)
			if idlePasses > p.retryLimit {
				report.State = Stuck
				report.Stuck = Explain(remaining, lastErrors)
				return report, nil
			}
			continue
		}
		idlePasses = 0
	}

	report.State = Done
	logger.Info("🏁 Purge finished.", "passes", report.Passes, "deleted", len(report.Deleted))
	return report, nil
}

func ids(models []Model) []string {
	out := make([]string, len(models))
	for i, m := range models {
		out[i] = m.ID
	}
	return out
}

// isNotFound reports whether the store says the model is already gone.
func isNotFound(err error) bool {
	var nf interface{ NotFound() bool }
	return errors.As(err, &nf) && nf.NotFound()
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
