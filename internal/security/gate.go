// Package security evaluates whether a proposed action may proceed
// automatically, needs asynchronous human sign-off, or must go straight to the
// approval queue. A stricter-than-requested outcome is a normal result, never
// an error; the caller must act on the returned level.
package security

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
)

// ApprovalLevel orders decision strictness: AutoApprove < ManualApprove <
// HumanRequired.
type ApprovalLevel int

const (
	AutoApprove ApprovalLevel = iota
	ManualApprove
	HumanRequired
)

func (l ApprovalLevel) String() string {
	switch l {
	case AutoApprove:
		return "auto_approve"
	case ManualApprove:
		return "manual_approve"
	case HumanRequired:
		return "human_required"
	}
	return fmt.Sprintf("approval_level(%d)", int(l))
}

// ActionType classifies the action being gated.
type ActionType string

const (
	ActionEmail         ActionType = "email"
	ActionPayment       ActionType = "payment"
	ActionFileAccess    ActionType = "file_access"
	ActionSystemConfig  ActionType = "system_config"
	ActionDataAccess    ActionType = "data_access"
	ActionCommunication ActionType = "communication"
)

// Rule is one static policy entry. Rules are evaluated in declaration order:
// the first rule whose conditions hold and whose exceptions do not wins, so
// list order encodes priority.
type Rule struct {
	ActionType     ActionType
	Description    string
	ApprovalLevel  ApprovalLevel
	ThresholdValue float64
	Conditions     []string
	Exceptions     []string
}

// Context carries the facts about a proposed action that rules predicate on.
type Context map[string]any

// Recorder receives every gate decision for durable audit logging.
type Recorder interface {
	RecordDecision(action ActionType, level ApprovalLevel, reason string)
}

// Gate holds the immutable rule table and contact list for the process
// lifetime. Construct once at startup and pass by reference; there is no
// process-global instance.
type Gate struct {
	thresholdLow  float64
	thresholdHigh float64
	rules         []Rule
	knownContacts []string
	logger        *slog.Logger
	recorder      Recorder
}

// Params configures a Gate.
type Params struct {
	ThresholdLow  float64
	ThresholdHigh float64
	Rules         []Rule
	KnownContacts []string
	Recorder      Recorder
}

// NewGate builds a gate from params. A nil rule list gets the default table.
func NewGate(p Params, logger *slog.Logger) *Gate {
	rules := p.Rules
	if rules == nil {
		rules = DefaultRules(p.ThresholdLow, p.ThresholdHigh)
	}
	return &Gate{
		thresholdLow:  p.ThresholdLow,
		thresholdHigh: p.ThresholdHigh,
		rules:         rules,
		knownContacts: p.KnownContacts,
		logger:        logger,
		recorder:      p.Recorder,
	}
}

// DefaultRules returns the built-in rule table. Order matters and is
// first-match-wins; the permissive rules for an action type are deliberately
// listed before the stricter ones.
func DefaultRules(low, high float64) []Rule {
	return []Rule{
		{
			ActionType:    ActionEmail,
			Description:   "Email replies to known contacts",
			ApprovalLevel: AutoApprove,
			Conditions:    []string{"contact_known"},
		},
		{
			ActionType:    ActionEmail,
			Description:   "Emails to unknown contacts",
			ApprovalLevel: ManualApprove,
			Conditions:    []string{"contact_unknown"},
		},
		{
			ActionType:    ActionEmail,
			Description:   "Emails containing payment information",
			ApprovalLevel: ManualApprove,
			Conditions:    []string{"contains_payment_terms"},
		},
		{
			ActionType:    ActionEmail,
			Description:   "Social media interactions",
			ApprovalLevel: ManualApprove,
			Conditions:    []string{"social_media_context"},
			Exceptions:    []string{"scheduled_posts_approved"},
		},
		{
			ActionType:     ActionPayment,
			Description:    "Recurring payments under threshold",
			ApprovalLevel:  AutoApprove,
			ThresholdValue: low,
			Conditions:     []string{"recurring", "amount_less_than_threshold"},
			Exceptions:     []string{"whitelisted_vendors"},
		},
		{
			ActionType:     ActionPayment,
			Description:    "Payments between thresholds",
			ApprovalLevel:  ManualApprove,
			ThresholdValue: high,
			Conditions:     []string{"amount_between_thresholds"},
		},
		{
			ActionType:     ActionPayment,
			Description:    "Payments over high threshold",
			ApprovalLevel:  HumanRequired,
			ThresholdValue: high,
			Conditions:     []string{"amount_greater_than_threshold"},
		},
		{
			ActionType:    ActionPayment,
			Description:   "Payments to new payees",
			ApprovalLevel: ManualApprove,
			Conditions:    []string{"new_payee"},
		},
		{
			ActionType:    ActionFileAccess,
			Description:   "File organization and archiving",
			ApprovalLevel: AutoApprove,
			Conditions:    []string{"archival_operation"},
		},
		{
			ActionType:    ActionFileAccess,
			Description:   "File deletion operations",
			ApprovalLevel: ManualApprove,
			Conditions:    []string{"deletion_operation"},
			Exceptions:    []string{"temporary_files"},
		},
		{
			ActionType:    ActionSystemConfig,
			Description:   "System configuration changes",
			ApprovalLevel: HumanRequired,
			Conditions:    []string{"config_change"},
		},
		{
			ActionType:    ActionDataAccess,
			Description:   "Access to sensitive financial data",
			ApprovalLevel: ManualApprove,
			Conditions:    []string{"access_sensitive_data"},
			Exceptions:    []string{"reporting_purposes"},
		},
		{
			ActionType:    ActionDataAccess,
			Description:   "Sharing of private information",
			ApprovalLevel: HumanRequired,
			Conditions:    []string{"share_private_info"},
		},
	}
}

// Evaluate returns the approval level for a proposed action. Rules for the
// action type are tried in declaration order; the first whose conditions hold
// and whose exceptions do not decides. No match fails closed to ManualApprove.
func (g *Gate) Evaluate(action ActionType, ctx Context) (ApprovalLevel, string) {
	for _, rule := range g.rules {
		if rule.ActionType != action {
			continue
		}
		if g.conditionsMet(rule, ctx) && !g.exceptionsMet(rule, ctx) {
			g.record(action, rule.ApprovalLevel, rule.Description)
			return rule.ApprovalLevel, rule.Description
		}
	}

	const reason = "no rule matched; defaulting to manual approval"
	g.record(action, ManualApprove, reason)
	return ManualApprove, reason
}

func (g *Gate) conditionsMet(rule Rule, ctx Context) bool {
	if len(rule.Conditions) == 0 {
		return true
	}

	amount, hasAmount := contextAmount(ctx)

	for _, cond := range rule.Conditions {
		if truthy(ctx[cond]) {
			return true
		}
		if !hasAmount {
			continue
		}
		switch cond {
		case "amount_less_than_threshold":
			if rule.ThresholdValue > 0 && amount < rule.ThresholdValue {
				return true
			}
		case "amount_between_thresholds":
			if amount >= g.thresholdLow && amount <= g.thresholdHigh {
				return true
			}
		case "amount_greater_than_threshold":
			if rule.ThresholdValue > 0 && amount > rule.ThresholdValue {
				return true
			}
		}
	}
	return false
}

func (g *Gate) exceptionsMet(rule Rule, ctx Context) bool {
	for _, exc := range rule.Exceptions {
		if truthy(ctx[exc]) {
			return true
		}
	}
	return false
}

func (g *Gate) record(action ActionType, level ApprovalLevel, reason string) {
	g.logger.Info("security decision",
		"action", action,
		"level", level.String(),
		"reason", reason)
	if g.recorder != nil {
		g.recorder.RecordDecision(action, level, reason)
	}
}

// IsKnownContact reports whether an address matches the contact list, either
// exactly (case-insensitive) or by sharing a domain with a known address. The
// domain fallback is a deliberately coarse trust model.
func (g *Gate) IsKnownContact(contact string) bool {
	normalized := strings.ToLower(strings.TrimSpace(contact))

	for _, known := range g.knownContacts {
		if normalized == strings.ToLower(strings.TrimSpace(known)) {
			return true
		}
	}

	_, domain, ok := splitAddress(normalized)
	if !ok {
		return false
	}
	for _, known := range g.knownContacts {
		_, knownDomain, ok := splitAddress(strings.ToLower(strings.TrimSpace(known)))
		if ok && domain == knownDomain {
			return true
		}
	}
	return false
}

var suspiciousPaymentKeywords = []string{
	"urgent", "immediate", "wire transfer", "gift card", "bitcoin", "cash",
}

// ValidatePayment checks a payment request against thresholds, the contact
// list, and the suspicious-keyword list.
func (g *Gate) ValidatePayment(amount float64, recipient, description string) (bool, string) {
	if amount > g.thresholdHigh {
		return false, fmt.Sprintf("payment amount $%.2f exceeds high threshold of $%.2f; requires human approval", amount, g.thresholdHigh)
	}
	if amount > g.thresholdLow {
		return false, fmt.Sprintf("payment amount $%.2f exceeds low threshold of $%.2f; requires manual approval", amount, g.thresholdLow)
	}

	if !g.IsKnownContact(recipient) {
		return false, fmt.Sprintf("payment to new recipient %q requires approval", recipient)
	}

	lowered := strings.ToLower(description)
	for _, keyword := range suspiciousPaymentKeywords {
		if strings.Contains(lowered, keyword) {
			return false, fmt.Sprintf("suspicious keyword %q found in payment description; requires approval", keyword)
		}
	}

	return true, "payment request validated"
}

var sensitiveEmailKeywords = []string{
	"password", "credit card", "ssn", "social security", "bank account", "api key",
}

var linkPattern = regexp.MustCompile(`https?://[^\s]+`)

// ValidateEmail checks an outgoing email against the contact list, the
// sensitive-keyword list, and the external-link rule.
func (g *Gate) ValidateEmail(recipient, subject, body string) (bool, string) {
	known := g.IsKnownContact(recipient)
	if !known {
		return false, fmt.Sprintf("email to unknown contact %q requires approval", recipient)
	}

	lowered := strings.ToLower(body)
	for _, keyword := range sensitiveEmailKeywords {
		if strings.Contains(lowered, keyword) {
			return false, fmt.Sprintf("sensitive information %q detected in email content; requires approval", keyword)
		}
	}

	if links := linkPattern.FindAllString(body, -1); len(links) > 0 && !known {
		return false, fmt.Sprintf("email to unknown contact contains %d external links; requires approval", len(links))
	}

	return true, "email request validated"
}

var sensitiveFilePatterns = []string{
	".env", ".pem", ".key", "secrets", "credentials", "config",
}

var protectedFilenames = []string{
	"deskhand.yaml", "security_rules.yaml", "known_contacts.yaml",
}

// ValidateFileOperation checks a file operation. Deletion is never
// auto-approved; sensitive or protected filenames are never auto-approved.
func (g *Gate) ValidateFileOperation(opType, path string) (bool, string) {
	if strings.EqualFold(opType, "delete") {
		return false, "file deletion operations require approval"
	}

	base := strings.ToLower(pathBase(path))
	for _, pattern := range sensitiveFilePatterns {
		if strings.Contains(base, pattern) {
			return false, fmt.Sprintf("access to potentially sensitive file %q requires approval", path)
		}
	}

	for _, name := range protectedFilenames {
		if base == name {
			return false, fmt.Sprintf("modification of system file %q requires human approval", path)
		}
	}

	return true, "file operation validated"
}

func contextAmount(ctx Context) (float64, bool) {
	switch v := ctx["amount"].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	default:
		return true
	}
}

func splitAddress(addr string) (local, domain string, ok bool) {
	at := strings.LastIndex(addr, "@")
	if at <= 0 || at == len(addr)-1 {
		return "", "", false
	}
	return addr[:at], addr[at+1:], true
}

func pathBase(path string) string {
	if i := strings.LastIndexAny(path, `/\`); i >= 0 {
		return path[i+1:]
	}
	return path
}
