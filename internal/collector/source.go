// Package collector implements the polling runtime shared by every task
// source. A Source enumerates new items and formats them as task documents;
// the Runtime owns cadence, dedupe persistence, backoff, and graceful stop.
package collector

import (
	"context"
	"errors"
)

// ErrSourceUnavailable marks a transient failure of the remote dependency.
// The runtime recovers from it with exponential backoff.
var ErrSourceUnavailable = errors.New("source unavailable")

// ErrStopped is returned by Runtime.Run when the collector gave up after the
// configured number of consecutive failures. Terminal for this collector,
// not for the process tree.
var ErrStopped = errors.New("collector stopped after repeated failures")

// Item is one unit of new work discovered at a source.
type Item interface {
	// DedupeKey identifies the item across poll cycles, either a remote ID
	// or a content-derived hash.
	DedupeKey() string
}

// TaskSpec is the formatted form of an item, ready to become a task document.
type TaskSpec struct {
	Title    string
	Body     string
	Priority string
	Category string
	Extra    map[string]string
}

// Source is the capability a concrete collector supplies. Implementations are
// composed into the Runtime by injection, not by embedding.
type Source interface {
	// Name tags documents and log lines produced from this source.
	Name() string

	// CheckForNewItems may perform network or filesystem I/O. It returns
	// ErrSourceUnavailable (possibly wrapped) when the remote dependency is
	// unreachable.
	CheckForNewItems(ctx context.Context) ([]Item, error)

	// FormatAsTask is pure. A failure for one item must not abort the batch;
	// the runtime logs and skips only that item.
	FormatAsTask(item Item) (TaskSpec, error)
}

// Lister is an optional Source capability: enumerate the dedupe keys of every
// item currently present at the source, so the dedupe set can be compacted.
type Lister interface {
	ListAllKeys(ctx context.Context) ([]string, error)
}
