// Package task defines the on-disk task document: a YAML frontmatter header
// followed by free-form markdown body. A document's lifecycle stage is implied
// by which vault directory holds it, never by a stored field; the header's
// status field mirrors the stage best-effort and is repaired on startup.
package task

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const delimiter = "---"

// Status values written into the header on stage transitions.
const (
	StatusNew             = "new"
	StatusInProgress      = "in_progress"
	StatusPendingApproval = "pending_approval"
	StatusApproved        = "approved"
	StatusPlanned         = "planned"
	StatusDone            = "done"
	StatusRejected        = "rejected"
	StatusError           = "error"
)

// Priority levels for a task.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

// Header is the structured preamble of a task document. The typed fields form
// the closed set of recognized keys; anything else a writer put in the
// frontmatter is preserved in Extra across rewrites.
type Header struct {
	ID       string    `yaml:"id"`
	Created  time.Time `yaml:"created"`
	Source   string    `yaml:"source"`
	Status   string    `yaml:"status"`
	Priority string    `yaml:"priority"`
	Category string    `yaml:"category"`

	Extra map[string]string `yaml:"-"`
}

// Document is one unit of work in the vault.
type Document struct {
	Header Header
	Body   string
}

// New creates a document born with status "new", deriving the ID from the
// creation instant plus the source tag.
func New(source, title, body string, created time.Time) *Document {
	return &Document{
		Header: Header{
			ID:       fmt.Sprintf("%s-%s", created.Format("20060102T150405"), source),
			Created:  created,
			Source:   source,
			Status:   StatusNew,
			Priority: PriorityMedium,
			Category: "general",
		},
		Body: fmt.Sprintf("# %s\n\n%s", title, body),
	}
}

// Parse decodes a task document from its on-disk form. Documents without a
// frontmatter block, or with frontmatter that is not valid YAML, are rejected
// so the caller can quarantine them instead of defaulting silently.
func Parse(data []byte) (*Document, error) {
	text := string(data)
	if !strings.HasPrefix(text, delimiter+"\n") {
		return nil, fmt.Errorf("document has no frontmatter header")
	}

	rest := text[len(delimiter)+1:]
	end := strings.Index(rest, "\n"+delimiter)
	if end == -1 {
		return nil, fmt.Errorf("frontmatter header is not terminated")
	}

	front := rest[:end]
	body := rest[end+len(delimiter)+1:]
	body = strings.TrimPrefix(body, "\n")

	raw := map[string]any{}
	if err := yaml.Unmarshal([]byte(front), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse frontmatter: %w", err)
	}

	var hdr Header
	for key, rawValue := range raw {
		value := fmt.Sprint(rawValue)
		switch key {
		case "id":
			hdr.ID = value
		case "created":
			if ts, ok := rawValue.(time.Time); ok {
				hdr.Created = ts
				continue
			}
			created, err := parseTimestamp(value)
			if err != nil {
				return nil, fmt.Errorf("invalid created timestamp %q: %w", value, err)
			}
			hdr.Created = created
		case "source":
			hdr.Source = value
		case "status":
			hdr.Status = value
		case "priority":
			hdr.Priority = value
		case "category":
			hdr.Category = value
		default:
			if hdr.Extra == nil {
				hdr.Extra = map[string]string{}
			}
			hdr.Extra[key] = value
		}
	}

	if hdr.ID == "" {
		return nil, fmt.Errorf("document is missing required header key 'id'")
	}
	if hdr.Status == "" {
		return nil, fmt.Errorf("document is missing required header key 'status'")
	}

	return &Document{Header: hdr, Body: body}, nil
}

// Encode renders the document back to its on-disk form. Recognized keys are
// written in a stable order; extra keys follow sorted by yaml marshalling.
func (d *Document) Encode() ([]byte, error) {
	var sb strings.Builder
	sb.WriteString(delimiter + "\n")

	sb.WriteString("id: " + d.Header.ID + "\n")
	if !d.Header.Created.IsZero() {
		sb.WriteString("created: " + d.Header.Created.Format(time.RFC3339) + "\n")
	}
	if d.Header.Source != "" {
		sb.WriteString("source: " + d.Header.Source + "\n")
	}
	sb.WriteString("status: " + d.Header.Status + "\n")
	if d.Header.Priority != "" {
		sb.WriteString("priority: " + d.Header.Priority + "\n")
	}
	if d.Header.Category != "" {
		sb.WriteString("category: " + d.Header.Category + "\n")
	}

	if len(d.Header.Extra) > 0 {
		extra, err := yaml.Marshal(d.Header.Extra)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal extra header keys: %w", err)
		}
		sb.Write(extra)
	}

	sb.WriteString(delimiter + "\n\n")
	sb.WriteString(d.Body)
	if !strings.HasSuffix(d.Body, "\n") {
		sb.WriteString("\n")
	}

	return []byte(sb.String()), nil
}

// Filename derives a collision-resistant filename for a new document:
// timestamp plus the sanitized title, truncated. The vault layer appends a
// numeric suffix if the name is already taken.
func Filename(created time.Time, title string) string {
	return fmt.Sprintf("%s_%s.md", created.Format("20060102_150405"), SanitizeTitle(title))
}

// SanitizeTitle reduces a free-form title to a filesystem-safe slug:
// alphanumerics, spaces, hyphens and underscores survive, spaces become
// underscores, lowered, capped at 100 characters.
func SanitizeTitle(title string) string {
	var sb strings.Builder
	for _, r := range title {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			sb.WriteRune(r)
		case r == ' ', r == '-', r == '_':
			sb.WriteRune(r)
		}
	}
	safe := strings.TrimRight(sb.String(), " ")
	safe = strings.ToLower(strings.ReplaceAll(safe, " ", "_"))
	if len(safe) > 100 {
		safe = safe[:100]
	}
	if safe == "" {
		safe = "task"
	}
	return safe
}

func parseTimestamp(value string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05"} {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp layout")
}
