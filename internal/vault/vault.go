// Package vault manages the directory tree that holds every task document.
// Each lifecycle stage is one named directory; a document lives in exactly one
// stage directory at any instant. Stage transitions are atomic renames, and
// the orchestrator is the only writer of transitions.
package vault

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"deskhand/internal/fsutil"
	"deskhand/internal/task"
)

// Stage identifies one lifecycle stage directory.
type Stage string

const (
	StageNeedsAction     Stage = "Needs_Action"
	StagePlans           Stage = "Plans"
	StageInProgress      Stage = "In_Progress"
	StagePendingApproval Stage = "Pending_Approval"
	StageApproved        Stage = "Approved"
	StageRejected        Stage = "Rejected"
	StageDone            Stage = "Done"
)

// Stages lists every lifecycle stage in pipeline order.
var Stages = []Stage{
	StageNeedsAction,
	StagePlans,
	StageInProgress,
	StagePendingApproval,
	StageApproved,
	StageRejected,
	StageDone,
}

// Non-stage areas that live alongside the stage directories.
const (
	LogsDir      = "Logs"
	BriefingsDir = "Briefings"
	ErrorsDir    = "processing_errors"
)

// Status returns the header status value that mirrors a stage.
func (s Stage) Status() string {
	switch s {
	case StageNeedsAction:
		return task.StatusNew
	case StagePlans:
		return task.StatusPlanned
	case StageInProgress:
		return task.StatusInProgress
	case StagePendingApproval:
		return task.StatusPendingApproval
	case StageApproved:
		return task.StatusApproved
	case StageRejected:
		return task.StatusRejected
	case StageDone:
		return task.StatusDone
	}
	return task.StatusNew
}

// Vault is a handle to the directory tree rooted at Root.
type Vault struct {
	Root   string
	logger *slog.Logger
}

// Open creates a vault handle. Call Initialize before use.
func Open(root string, logger *slog.Logger) *Vault {
	return &Vault{Root: root, logger: logger}
}

// Initialize creates every stage directory plus the Logs and Briefings areas.
// Idempotent; safe to call on every startup.
func (v *Vault) Initialize() error {
	dirs := make([]string, 0, len(Stages)+3)
	for _, stage := range Stages {
		dirs = append(dirs, v.StageDir(stage))
	}
	dirs = append(dirs,
		filepath.Join(v.Root, LogsDir),
		filepath.Join(v.Root, LogsDir, ErrorsDir),
		filepath.Join(v.Root, BriefingsDir),
	)

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// StageDir returns the absolute path of a stage directory.
func (v *Vault) StageDir(stage Stage) string {
	return filepath.Join(v.Root, string(stage))
}

// LogsPath returns the absolute path of the Logs area.
func (v *Vault) LogsPath() string {
	return filepath.Join(v.Root, LogsDir)
}

// ErrorsPath returns the error holding area for failed reasoning calls.
func (v *Vault) ErrorsPath() string {
	return filepath.Join(v.Root, LogsDir, ErrorsDir)
}

// BriefingsPath returns the reporting area for digests.
func (v *Vault) BriefingsPath() string {
	return filepath.Join(v.Root, BriefingsDir)
}

// StageOf reports which stage directory contains the given path, or false if
// the path is outside every stage directory.
func (v *Vault) StageOf(path string) (Stage, bool) {
	dir := filepath.Dir(path)
	for _, stage := range Stages {
		if dir == v.StageDir(stage) {
			return stage, true
		}
	}
	return "", false
}

// Create writes a brand-new document into a stage directory. Writes are
// create-only: a filename collision never overwrites, a numeric suffix is
// appended instead. Returns the path actually written.
func (v *Vault) Create(stage Stage, filename string, doc *task.Document) (string, error) {
	data, err := doc.Encode()
	if err != nil {
		return "", fmt.Errorf("failed to encode document: %w", err)
	}

	path, err := fsutil.CreateUnique(filepath.Join(v.StageDir(stage), filename), data)
	if err != nil {
		return "", fmt.Errorf("failed to create document in %s: %w", stage, err)
	}
	return path, nil
}

// Move transitions a document file into the destination stage. The rename is
// atomic; the status rewrite that follows is best effort. A crash between
// the two is repaired by Reconcile on the next startup, which trusts the
// directory over the status field.
func (v *Vault) Move(path string, dest Stage) (string, error) {
	destPath := filepath.Join(v.StageDir(dest), filepath.Base(path))

	if err := os.Rename(path, destPath); err != nil {
		return "", fmt.Errorf("failed to move %s to %s: %w", filepath.Base(path), dest, err)
	}

	if err := v.rewriteStatus(destPath, dest.Status()); err != nil {
		v.logger.Warn("status rewrite failed after move",
			"file", filepath.Base(destPath),
			"stage", dest,
			"error", err)
	}

	return destPath, nil
}

// MoveToErrors places a document in the error holding area under Logs.
func (v *Vault) MoveToErrors(path string) (string, error) {
	destPath := filepath.Join(v.ErrorsPath(), filepath.Base(path))
	if err := os.Rename(path, destPath); err != nil {
		return "", fmt.Errorf("failed to move %s to error area: %w", filepath.Base(path), err)
	}
	if err := v.rewriteStatus(destPath, task.StatusError); err != nil {
		v.logger.Warn("status rewrite failed on error move",
			"file", filepath.Base(destPath), "error", err)
	}
	return destPath, nil
}

// Read parses the document at path.
func (v *Vault) Read(path string) (*task.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	doc, err := task.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}
	return doc, nil
}

// Write rewrites the document at path atomically.
func (v *Vault) Write(path string, doc *task.Document) error {
	data, err := doc.Encode()
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}
	return fsutil.AtomicWrite(path, data)
}

// Count returns the number of task documents in a stage directory.
func (v *Vault) Count(stage Stage) int {
	return len(v.List(stage))
}

// List returns the task document paths in a stage directory, sorted by name.
// Filenames start with a timestamp, so name order is creation order.
func (v *Vault) List(stage Stage) []string {
	entries, err := os.ReadDir(v.StageDir(stage))
	if err != nil {
		return nil
	}
	var paths []string
	for _, entry := range entries {
		if entry.IsDir() || !isTaskFile(entry.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(v.StageDir(stage), entry.Name()))
	}
	return paths
}

// Counts returns the document count per stage.
func (v *Vault) Counts() map[Stage]int {
	counts := make(map[Stage]int, len(Stages))
	for _, stage := range Stages {
		counts[stage] = v.Count(stage)
	}
	return counts
}

// Scan walks every stage directory and returns filename → stages holding it.
// A healthy vault maps every filename to exactly one stage.
func (v *Vault) Scan() map[string][]Stage {
	seen := map[string][]Stage{}
	for _, stage := range Stages {
		for _, path := range v.List(stage) {
			name := filepath.Base(path)
			seen[name] = append(seen[name], stage)
		}
	}
	return seen
}

// Reconcile repairs header status fields that disagree with the directory a
// document sits in. Run once at startup; the directory location is the truth.
func (v *Vault) Reconcile() error {
	repaired := 0
	for _, stage := range Stages {
		want := stage.Status()
		for _, path := range v.List(stage) {
			doc, err := v.Read(path)
			if err != nil {
				v.logger.Warn("skipping unparseable document during reconcile",
					"file", filepath.Base(path), "error", err)
				continue
			}
			if doc.Header.Status == want {
				continue
			}
			doc.Header.Status = want
			if err := v.Write(path, doc); err != nil {
				return fmt.Errorf("failed to repair %s: %w", filepath.Base(path), err)
			}
			repaired++
		}
	}
	if repaired > 0 {
		v.logger.Info("reconciled stale status fields", "count", repaired)
	}
	return nil
}

func isTaskFile(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), ".md") && !strings.HasPrefix(name, ".")
}

func (v *Vault) rewriteStatus(path, status string) error {
	doc, err := v.Read(path)
	if err != nil {
		return err
	}
	doc.Header.Status = status
	return v.Write(path, doc)
}
