package collector

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"deskhand/internal/task"
)

// DropzoneSource watches a scratch directory outside the vault. Every
// supported file that appears there becomes a task asking for the file to be
// processed.
type DropzoneSource struct {
	dir       string
	supported map[string]struct{}
}

var defaultDropzoneTypes = []string{
	".txt", ".pdf", ".doc", ".docx", ".xls", ".xlsx",
	".csv", ".jpg", ".jpeg", ".png", ".gif", ".mp4",
	".mp3", ".wav", ".zip", ".rar", ".eml", ".msg",
}

var dropzonePriority = map[string]string{
	".pdf":  task.PriorityHigh,
	".doc":  task.PriorityMedium,
	".docx": task.PriorityMedium,
	".xls":  task.PriorityHigh,
	".xlsx": task.PriorityHigh,
	".csv":  task.PriorityHigh,
	".eml":  task.PriorityHigh,
	".msg":  task.PriorityHigh,
}

var dropzoneCategory = map[string]string{
	".pdf": "Document", ".doc": "Document", ".docx": "Document",
	".xls": "Spreadsheet", ".xlsx": "Spreadsheet",
	".csv": "Data", ".txt": "Text",
	".jpg": "Image", ".jpeg": "Image", ".png": "Image", ".gif": "Image",
	".mp4": "Video", ".mp3": "Audio", ".wav": "Audio",
	".zip": "Archive", ".rar": "Archive",
	".eml": "Email", ".msg": "Email",
}

// NewDropzoneSource creates the source, ensuring the dropzone directory
// exists. A nil type list gets the default set.
func NewDropzoneSource(dir string, types []string) (*DropzoneSource, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create dropzone: %w", err)
	}
	if types == nil {
		types = defaultDropzoneTypes
	}
	supported := make(map[string]struct{}, len(types))
	for _, ext := range types {
		supported[strings.ToLower(ext)] = struct{}{}
	}
	return &DropzoneSource{dir: dir, supported: supported}, nil
}

// Name implements Source.
func (s *DropzoneSource) Name() string { return "dropzone" }

// fileItem is one discovered dropzone file.
type fileItem struct {
	path    string
	size    int64
	modTime time.Time
}

// DedupeKey hashes path, modification time and size, so an edited file is a
// new item but an untouched one is not.
func (i fileItem) DedupeKey() string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%s_%d_%d", i.path, i.modTime.UnixNano(), i.size))
	return hex.EncodeToString(sum[:])
}

// CheckForNewItems walks the dropzone and returns every supported file. The
// runtime's dedupe set filters out files already turned into tasks.
func (s *DropzoneSource) CheckForNewItems(ctx context.Context) ([]Item, error) {
	var items []Item
	err := filepath.WalkDir(s.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			return nil
		}
		if _, ok := s.supported[strings.ToLower(filepath.Ext(path))]; !ok {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		items = append(items, fileItem{path: path, size: info.Size(), modTime: info.ModTime()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	return items, nil
}

// FormatAsTask implements Source.
func (s *DropzoneSource) FormatAsTask(item Item) (TaskSpec, error) {
	file, ok := item.(fileItem)
	if !ok {
		return TaskSpec{}, fmt.Errorf("unexpected item type %T", item)
	}

	ext := strings.ToLower(filepath.Ext(file.path))
	priority := dropzonePriority[ext]
	if priority == "" {
		priority = task.PriorityMedium
	}
	category := dropzoneCategory[ext]
	if category == "" {
		category = "Unknown"
	}

	name := filepath.Base(file.path)
	body := fmt.Sprintf(`## File Details
- **Name:** %s
- **Path:** %s
- **Size:** %.2f MB
- **Type:** %s (%s)
- **Modified:** %s

## Processing Instructions
1. Review the file content
2. Determine appropriate action based on file type
3. Update status in the vault
`, name, file.path, float64(file.size)/(1024*1024), category, ext, file.modTime.Format(time.RFC3339))

	return TaskSpec{
		Title:    "Process File " + name,
		Body:     body,
		Priority: priority,
		Category: category,
		Extra: map[string]string{
			"file_path": file.path,
			"file_type": ext,
			"file_size": fmt.Sprintf("%d", file.size),
		},
	}, nil
}

// ListAllKeys enumerates the dedupe keys of every file currently in the
// dropzone, for compaction.
func (s *DropzoneSource) ListAllKeys(ctx context.Context) ([]string, error) {
	items, err := s.CheckForNewItems(ctx)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(items))
	for _, item := range items {
		keys = append(keys, item.DedupeKey())
	}
	return keys, nil
}
