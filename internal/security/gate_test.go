package security

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestGate(opts ...func(*Params)) *Gate {
	p := Params{
		ThresholdLow:  50,
		ThresholdHigh: 100,
		KnownContacts: []string{"alice@client.com", "bob@vendor.io"},
	}
	for _, opt := range opts {
		opt(&p)
	}
	return NewGate(p, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestEvaluatePaymentThresholdBands(t *testing.T) {
	g := newTestGate()

	level, _ := g.Evaluate(ActionPayment, Context{"amount": 40.0})
	assert.Equal(t, AutoApprove, level, "amount under low threshold")

	level, _ = g.Evaluate(ActionPayment, Context{"amount": 75.0})
	assert.Equal(t, ManualApprove, level, "amount between thresholds")

	level, _ = g.Evaluate(ActionPayment, Context{"amount": 150.0})
	assert.Equal(t, HumanRequired, level, "amount over high threshold")
}

func TestEvaluateFailsClosedWhenNoRuleMatches(t *testing.T) {
	g := newTestGate()

	// No amount and no named condition: nothing in the payment table matches.
	level, reason := g.Evaluate(ActionPayment, Context{})
	assert.Equal(t, ManualApprove, level)
	assert.Contains(t, reason, "no rule matched")

	// Unknown action type has no rules at all.
	level, _ = g.Evaluate(ActionType("telepathy"), Context{})
	assert.Equal(t, ManualApprove, level)
}

func TestEvaluateFirstMatchWins(t *testing.T) {
	g := newTestGate()

	// contact_known and contains_payment_terms both hold; the permissive
	// known-contact rule is listed first and must decide.
	level, reason := g.Evaluate(ActionEmail, Context{
		"contact_known":          true,
		"contains_payment_terms": true,
	})
	assert.Equal(t, AutoApprove, level)
	assert.Equal(t, "Email replies to known contacts", reason)
}

func TestEvaluateExceptionsSuppressRule(t *testing.T) {
	g := newTestGate()

	// The deletion rule would match, but the temporary-files exception holds,
	// so evaluation falls through to the fail-closed default.
	level, reason := g.Evaluate(ActionFileAccess, Context{
		"deletion_operation": true,
		"temporary_files":    true,
	})
	assert.Equal(t, ManualApprove, level)
	assert.Contains(t, reason, "no rule matched")
}

func TestEvaluateSystemConfigRequiresHuman(t *testing.T) {
	g := newTestGate()

	level, _ := g.Evaluate(ActionSystemConfig, Context{"config_change": true})
	assert.Equal(t, HumanRequired, level)
}

func TestIsKnownContact(t *testing.T) {
	g := newTestGate()

	assert.True(t, g.IsKnownContact("alice@client.com"))
	assert.True(t, g.IsKnownContact("  ALICE@CLIENT.COM  "), "match is case-insensitive and trimmed")
	assert.True(t, g.IsKnownContact("carol@client.com"), "same domain as a known contact")
	assert.False(t, g.IsKnownContact("mallory@stranger.net"))
	assert.False(t, g.IsKnownContact("not-an-address"))
}

func TestValidatePayment(t *testing.T) {
	g := newTestGate()

	ok, reason := g.ValidatePayment(150, "alice@client.com", "monthly hosting")
	assert.False(t, ok)
	assert.Contains(t, reason, "high threshold")

	ok, reason = g.ValidatePayment(75, "alice@client.com", "monthly hosting")
	assert.False(t, ok)
	assert.Contains(t, reason, "low threshold")

	ok, reason = g.ValidatePayment(40, "mallory@stranger.net", "monthly hosting")
	assert.False(t, ok)
	assert.Contains(t, reason, "new recipient")

	ok, reason = g.ValidatePayment(40, "alice@client.com", "URGENT wire transfer needed")
	assert.False(t, ok)
	assert.Contains(t, reason, "suspicious keyword")

	ok, _ = g.ValidatePayment(40, "alice@client.com", "monthly hosting")
	assert.True(t, ok)
}

func TestValidateEmail(t *testing.T) {
	g := newTestGate()

	ok, reason := g.ValidateEmail("mallory@stranger.net", "hi", "just checking in")
	assert.False(t, ok)
	assert.Contains(t, reason, "unknown contact")

	ok, reason = g.ValidateEmail("alice@client.com", "account", "your password is attached")
	assert.False(t, ok)
	assert.Contains(t, reason, "sensitive information")

	ok, _ = g.ValidateEmail("alice@client.com", "update", "see https://example.com/report")
	assert.True(t, ok, "links to known contacts are allowed")
}

func TestValidateFileOperation(t *testing.T) {
	g := newTestGate()

	ok, reason := g.ValidateFileOperation("delete", "notes.txt")
	assert.False(t, ok, "deletion is never auto-approved")
	assert.Contains(t, reason, "deletion")

	ok, reason = g.ValidateFileOperation("read", "/srv/app/.env")
	assert.False(t, ok)
	assert.Contains(t, reason, "sensitive")

	ok, reason = g.ValidateFileOperation("write", "/etc/deskhand/deskhand.yaml")
	assert.False(t, ok)
	assert.Contains(t, reason, "system file")

	ok, _ = g.ValidateFileOperation("move", "/drop/invoice.pdf")
	assert.True(t, ok)
}

func TestRecorderReceivesEveryDecision(t *testing.T) {
	var got []ApprovalLevel
	g := newTestGate(func(p *Params) {
		p.Recorder = recorderFunc(func(action ActionType, level ApprovalLevel, reason string) {
			got = append(got, level)
		})
	})

	g.Evaluate(ActionPayment, Context{"amount": 40.0})
	g.Evaluate(ActionPayment, Context{})

	assert.Equal(t, []ApprovalLevel{AutoApprove, ManualApprove}, got)
}

type recorderFunc func(ActionType, ApprovalLevel, string)

func (f recorderFunc) RecordDecision(action ActionType, level ApprovalLevel, reason string) {
	f(action, level, reason)
}
