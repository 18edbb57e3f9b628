package engine

import (
	"regexp"
	"strconv"
	"strings"
)

// Classifier is a stateless predicate over one event's derived text.
type Classifier interface {
	Match(text string) bool
}

// ClassifierFunc adapts a plain predicate to the Classifier interface.
type ClassifierFunc func(text string) bool

// Match implements Classifier.
func (f ClassifierFunc) Match(text string) bool { return f(text) }

// Recognizer couples a classifier with the finding it emits when matching
// activity clusters in a minute/user/address bucket. The Reason format
// string receives the bucket's user.
type Recognizer struct {
	Name       string
	Kind       string
	Score      float64
	Reason     string
	Classifier Classifier
}

// Vocabulary patterns for identity-provider log lines. Password covers
// reset/change/recovery phrasing; MFA covers factor, OTP, WebAuthn, and
// enrollment vocabulary.
var (
	passwordResetPattern = regexp.MustCompile(`(?i)(password[\s_-]*(reset|change|changed|update|updated)|reset\s+password|pwd[\s_-]*reset|post-change-password|recovery\s+(email|ticket))`)
	mfaActivityPattern   = regexp.MustCompile(`(?i)\b(mfa|multi[-\s]?factor|guardian|otp|one[-\s]?time|webauthn|duo|push|factor|challenge|enroll|enrollment|recovery\s+code)\b`)
)

type regexClassifier struct {
	re *regexp.Regexp
}

func (c regexClassifier) Match(text string) bool { return c.re.MatchString(text) }

// DefaultRecognizers returns the built-in password and MFA activity
// recognizers in their fixed emission order.
func DefaultRecognizers() []Recognizer {
	return []Recognizer{
		{
			Name:       "password_reset",
			Kind:       "auth.password_reset",
			Score:      0.65,
			Reason:     "Password reset/change observed for %s.",
			Classifier: regexClassifier{re: passwordResetPattern},
		},
		{
			Name:       "mfa_activity",
			Kind:       "auth.mfa_activity",
			Score:      0.55,
			Reason:     "MFA activity observed (enroll/challenge/reset) for %s.",
			Classifier: regexClassifier{re: mfaActivityPattern},
		},
	}
}

// eventText concatenates the fields classifiers inspect: action, status,
// URL, user-agent, and raw text, skipping absent values.
func eventText(ev *Event) string {
	parts := make([]string, 0, 5)
	if ev.Action != "" {
		parts = append(parts, ev.Action)
	}
	if ev.Status != nil && *ev.Status != 0 {
		parts = append(parts, strconv.Itoa(*ev.Status))
	}
	if ev.URL != "" {
		parts = append(parts, ev.URL)
	}
	if ev.UserAgent != "" {
		parts = append(parts, ev.UserAgent)
	}
	if ev.Raw != "" {
		parts = append(parts, ev.Raw)
	}
	return strings.Join(parts, " ")
}
