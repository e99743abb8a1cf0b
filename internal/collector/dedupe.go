package collector

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"

	"deskhand/internal/fsutil"
)

// defaultPersistBatch is how many new keys accumulate before the set is
// persisted. Batching bounds I/O without risking a large reprocessing window
// on crash.
const defaultPersistBatch = 10

// Dedupe is the persisted set of item keys a collector has already turned
// into tasks. It grows monotonically except for explicit compaction.
type Dedupe struct {
	mu        sync.Mutex
	path      string
	keys      map[string]struct{}
	unsaved   int
	batchSize int
	logger    *slog.Logger
}

// LoadDedupe reads the set from its flat file, tolerating a missing file on
// first run.
func LoadDedupe(path string, logger *slog.Logger) (*Dedupe, error) {
	d := &Dedupe{
		path:      path,
		keys:      map[string]struct{}{},
		batchSize: defaultPersistBatch,
		logger:    logger,
	}

	file, err := os.Open(path)
	if os.IsNotExist(err) {
		return d, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open dedupe file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if key := strings.TrimSpace(scanner.Text()); key != "" {
			d.keys[key] = struct{}{}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read dedupe file: %w", err)
	}

	return d, nil
}

// Contains reports whether key has been seen.
func (d *Dedupe) Contains(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.keys[key]
	return ok
}

// Add records a key and persists the set once enough keys accumulate.
func (d *Dedupe) Add(key string) {
	d.mu.Lock()
	if _, ok := d.keys[key]; ok {
		d.mu.Unlock()
		return
	}
	d.keys[key] = struct{}{}
	d.unsaved++
	flush := d.unsaved >= d.batchSize
	d.mu.Unlock()

	if flush {
		if err := d.Flush(); err != nil {
			d.logger.Error("failed to persist dedupe set", "error", err)
		}
	}
}

// Len returns the number of keys in the set.
func (d *Dedupe) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.keys)
}

// Flush persists the set unconditionally.
func (d *Dedupe) Flush() error {
	d.mu.Lock()
	keys := make([]string, 0, len(d.keys))
	for key := range d.keys {
		keys = append(keys, key)
	}
	d.unsaved = 0
	d.mu.Unlock()

	sort.Strings(keys)
	data := strings.Join(keys, "\n")
	if data != "" {
		data += "\n"
	}

	if err := fsutil.AtomicWrite(d.path, []byte(data)); err != nil {
		return fmt.Errorf("failed to write dedupe file: %w", err)
	}
	return nil
}

// Compact intersects the set with the keys currently observed at the source,
// dropping entries whose underlying item no longer exists.
func (d *Dedupe) Compact(current []string) error {
	currentSet := make(map[string]struct{}, len(current))
	for _, key := range current {
		currentSet[key] = struct{}{}
	}

	d.mu.Lock()
	dropped := 0
	for key := range d.keys {
		if _, ok := currentSet[key]; !ok {
			delete(d.keys, key)
			dropped++
		}
	}
	d.mu.Unlock()

	if dropped > 0 {
		d.logger.Info("compacted dedupe set", "dropped", dropped)
	}
	return d.Flush()
}
