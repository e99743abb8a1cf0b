package collector

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"deskhand/internal/task"
	"deskhand/internal/vault"
)

// Default runtime tuning.
const (
	DefaultInterval    = 30 * time.Second
	DefaultMaxWait     = 300 * time.Second
	DefaultMaxFailures = 5
)

// Runtime drives one Source: poll, format, write to Needs_Action, sleep,
// repeat. Poll failures back off exponentially; too many consecutive failures
// stop the collector for good.
type Runtime struct {
	source      Source
	vault       *vault.Vault
	dedupe      *Dedupe
	interval    time.Duration
	maxWait     time.Duration
	maxFailures int
	logger      *slog.Logger

	// sleep is injectable so tests can simulate many cycles without real
	// time passing. It must return early with the context error on cancel.
	sleep func(ctx context.Context, d time.Duration) error

	// now is injectable for deterministic filenames in tests.
	now func() time.Time
}

// Option tweaks a Runtime.
type Option func(*Runtime)

// WithInterval overrides the polling cadence.
func WithInterval(d time.Duration) Option {
	return func(r *Runtime) { r.interval = d }
}

// WithMaxWait caps the backoff wait.
func WithMaxWait(d time.Duration) Option {
	return func(r *Runtime) { r.maxWait = d }
}

// WithMaxFailures overrides the consecutive-failure budget.
func WithMaxFailures(n int) Option {
	return func(r *Runtime) { r.maxFailures = n }
}

// WithSleeper replaces the sleep function (tests).
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(r *Runtime) { r.sleep = sleep }
}

// WithClock replaces the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(r *Runtime) { r.now = now }
}

// NewRuntime wires a source into the polling loop.
func NewRuntime(source Source, v *vault.Vault, dedupe *Dedupe, logger *slog.Logger, opts ...Option) *Runtime {
	r := &Runtime{
		source:      source,
		vault:       v,
		dedupe:      dedupe,
		interval:    DefaultInterval,
		maxWait:     DefaultMaxWait,
		maxFailures: DefaultMaxFailures,
		logger:      logger.With("collector", source.Name()),
		sleep:       sleepContext,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Backoff returns the wait before retry attempt a: min(2^a + 0.1*a, maxWait).
func Backoff(attempt int, maxWait time.Duration) time.Duration {
	seconds := math.Pow(2, float64(attempt)) + 0.1*float64(attempt)
	wait := time.Duration(seconds * float64(time.Second))
	if wait > maxWait {
		return maxWait
	}
	return wait
}

// Run executes the polling loop until the context is cancelled or the
// consecutive-failure budget is exhausted (ErrStopped).
func (r *Runtime) Run(ctx context.Context) error {
	r.logger.Info("collector starting", "interval", r.interval)
	defer func() {
		if err := r.dedupe.Flush(); err != nil {
			r.logger.Error("failed to flush dedupe set on stop", "error", err)
		}
	}()

	attempt := 0
	for {
		if err := ctx.Err(); err != nil {
			r.logger.Info("collector stopping", "reason", "context cancelled")
			return err
		}

		err := r.RunOnce(ctx)
		if err == nil {
			attempt = 0
			if err := r.sleep(ctx, r.interval); err != nil {
				return err
			}
			continue
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		if attempt >= r.maxFailures {
			r.logger.Error("max consecutive failures reached, stopping collector",
				"failures", attempt+1, "error", err)
			return fmt.Errorf("%w: %v", ErrStopped, err)
		}

		wait := Backoff(attempt, r.maxWait)
		r.logger.Warn("poll cycle failed, backing off",
			"attempt", attempt, "wait", wait, "error", err)
		attempt++

		if err := r.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// RunOnce performs a single poll cycle. A formatting failure for one item
// skips only that item; a poll failure is returned to the caller for backoff.
func (r *Runtime) RunOnce(ctx context.Context) error {
	items, err := r.source.CheckForNewItems(ctx)
	if err != nil {
		return fmt.Errorf("check for new items: %w", err)
	}

	fresh := 0
	for _, item := range items {
		key := item.DedupeKey()
		if r.dedupe.Contains(key) {
			continue
		}

		spec, err := r.source.FormatAsTask(item)
		if err != nil {
			// Isolation: one bad item never drops the rest of the batch.
			r.logger.Error("failed to format item as task", "key", key, "error", err)
			continue
		}

		if err := r.writeTask(spec); err != nil {
			r.logger.Error("failed to write task document", "key", key, "error", err)
			continue
		}

		r.dedupe.Add(key)
		fresh++
	}

	if fresh > 0 {
		r.logger.Info("created tasks from new items", "count", fresh)
	}
	return nil
}

// Compact drops dedupe entries for items no longer present at the source.
// Only sources that can enumerate themselves support it.
func (r *Runtime) Compact(ctx context.Context) error {
	lister, ok := r.source.(Lister)
	if !ok {
		return fmt.Errorf("source %s cannot enumerate current items", r.source.Name())
	}
	current, err := lister.ListAllKeys(ctx)
	if err != nil {
		return fmt.Errorf("list current items: %w", err)
	}
	return r.dedupe.Compact(current)
}

func (r *Runtime) writeTask(spec TaskSpec) error {
	created := r.now()
	doc := task.New(r.source.Name(), spec.Title, spec.Body, created)
	if spec.Priority != "" {
		doc.Header.Priority = spec.Priority
	}
	if spec.Category != "" {
		doc.Header.Category = spec.Category
	}
	if len(spec.Extra) > 0 {
		doc.Header.Extra = spec.Extra
	}

	path, err := r.vault.Create(vault.StageNeedsAction, task.Filename(created, spec.Title), doc)
	if err != nil {
		return err
	}
	r.logger.Info("created task file", "path", path)
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
