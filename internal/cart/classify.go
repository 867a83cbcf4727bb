package cart

import "strings"

// ConflictKind identifies a recoverable platform conflict.
type ConflictKind string

const (
	// ConflictGuestEmail is the platform's duplicate non-account customer error.
	ConflictGuestEmail ConflictKind = "guest_email_exists"
	// ConflictVariantPrice is the platform's missing per-region variant price error.
	ConflictVariantPrice ConflictKind = "variant_price_missing"
)

// conflictRule pairs a conflict kind with its message predicate. The platform
// exposes no typed taxonomy for these conditions, so matching is on message
// text; keeping the rules in one closed table keeps them testable without a
// live platform.
type conflictRule struct {
	Kind  ConflictKind
	Match func(msg string) bool
}

var conflictRules = []conflictRule{
	{
		Kind: ConflictGuestEmail,
		Match: func(msg string) bool {
			return strings.Contains(msg, "guest customer") && strings.Contains(msg, "already exists")
		},
	},
	{
		Kind: ConflictVariantPrice,
		Match: func(msg string) bool {
			return strings.Contains(msg, "does not have a price")
		},
	},
}

// ClassifyConflict maps a raw platform error onto a recoverable conflict
// kind. It reports false for anything else; those errors are terminal.
func ClassifyConflict(err error) (ConflictKind, bool) {
	if err == nil {
		return "", false
	}
	msg := strings.ToLower(err.Error())
	for _, rule := range conflictRules {
		if rule.Match(msg) {
			return rule.Kind, true
		}
	}
	return "", false
}
