package task

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDocument(t *testing.T) {
	created := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	doc := New("dropzone", "Process File invoice.pdf", "details here", created)

	assert.Equal(t, "20260314T092653-dropzone", doc.Header.ID)
	assert.Equal(t, "dropzone", doc.Header.Source)
	assert.Equal(t, StatusNew, doc.Header.Status)
	assert.Equal(t, PriorityMedium, doc.Header.Priority)
	assert.Contains(t, doc.Body, "# Process File invoice.pdf")
}

func TestParseRoundTrip(t *testing.T) {
	created := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	doc := New("dropzone", "Quarterly report", "review the numbers", created)
	doc.Header.Extra = map[string]string{"file_path": "/drop/report.xlsx"}

	data, err := doc.Encode()
	require.NoError(t, err)

	parsed, err := Parse(data)
	require.NoError(t, err)

	assert.Equal(t, doc.Header.ID, parsed.Header.ID)
	assert.Equal(t, created, parsed.Header.Created.UTC())
	assert.Equal(t, "dropzone", parsed.Header.Source)
	assert.Equal(t, StatusNew, parsed.Header.Status)
	assert.Equal(t, "/drop/report.xlsx", parsed.Header.Extra["file_path"])
	assert.Contains(t, parsed.Body, "review the numbers")
}

func TestParsePreservesUnrecognizedKeys(t *testing.T) {
	raw := `---
id: 20260314T092653-gmail
status: new
gmail_id: abc123
requires_approval: "true"
---

# Reply to client
`
	doc, err := Parse([]byte(raw))
	require.NoError(t, err)

	assert.Equal(t, "abc123", doc.Header.Extra["gmail_id"])
	assert.Equal(t, "true", doc.Header.Extra["requires_approval"])

	// Rewrite must keep the unrecognized keys.
	data, err := doc.Encode()
	require.NoError(t, err)
	again, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, "abc123", again.Header.Extra["gmail_id"])
}

func TestParseRejectsMissingFrontmatter(t *testing.T) {
	_, err := Parse([]byte("# Just a markdown file\n"))
	assert.Error(t, err)
}

func TestParseRejectsUnterminatedFrontmatter(t *testing.T) {
	_, err := Parse([]byte("---\nid: x\nstatus: new\n"))
	assert.Error(t, err)
}

func TestParseRejectsMissingRequiredKeys(t *testing.T) {
	_, err := Parse([]byte("---\nstatus: new\n---\n\nbody\n"))
	assert.Error(t, err, "missing id must be rejected, not defaulted")

	_, err = Parse([]byte("---\nid: x\n---\n\nbody\n"))
	assert.Error(t, err, "missing status must be rejected, not defaulted")
}

func TestSanitizeTitle(t *testing.T) {
	assert.Equal(t, "process_file_invoicepdf", SanitizeTitle("Process File: invoice.pdf"))
	assert.Equal(t, "a-b_c", SanitizeTitle("a-b_c!!"))
	assert.Equal(t, "task", SanitizeTitle("???"))

	long := SanitizeTitle(strings.Repeat("x", 300))
	assert.Len(t, long, 100)
}

func TestFilename(t *testing.T) {
	created := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	assert.Equal(t, "20260314_092653_new_invoice.md", Filename(created, "New Invoice"))
}
