// Package rules classifies messages for report rendering.
package rules

import (
	"strings"

	"mailtriage/internal/config"
)

// Class is the triage classification of a single message.
type Class string

// Classes in precedence order. A message matching several rules takes the
// highest precedence class: suppression beats arrival-only beats high
// priority.
const (
	ClassSuppress     Class = "suppress"
	ClassArrivalOnly  Class = "arrival_only"
	ClassHighPriority Class = "high_priority"
	ClassNormal       Class = "normal"
)

// Classifier applies the configured rules to messages.
type Classifier struct {
	suppress     config.PatternRules
	arrivalOnly  config.PatternRules
	highPriority map[string]bool
}

// NewClassifier builds a Classifier from the rules configuration. Patterns
// are matched case-insensitively; high priority senders match by exact
// normalized email address.
func NewClassifier(rc config.RulesConfig) *Classifier {
	hp := make(map[string]bool, len(rc.HighPrioritySenders))
	for _, s := range rc.HighPrioritySenders {
		hp[normEmail(s)] = true
	}
	return &Classifier{
		suppress:     lowerPatterns(rc.Suppress),
		arrivalOnly:  lowerPatterns(rc.ArrivalOnly),
		highPriority: hp,
	}
}

// Classify returns the class for a message given its raw sender string, the
// parsed sender email, and the subject.
func (c *Classifier) Classify(sender, senderEmail, subject string) Class {
	sender = strings.ToLower(sender)
	subject = strings.ToLower(subject)

	if matchAny(c.suppress, sender, subject) {
		return ClassSuppress
	}
	if matchAny(c.arrivalOnly, sender, subject) {
		return ClassArrivalOnly
	}
	if c.highPriority[normEmail(senderEmail)] {
		return ClassHighPriority
	}
	return ClassNormal
}

// IsHighPrioritySender reports whether an email address is configured as
// high priority.
func (c *Classifier) IsHighPrioritySender(email string) bool {
	return c.highPriority[normEmail(email)]
}

func lowerPatterns(p config.PatternRules) config.PatternRules {
	out := config.PatternRules{
		Senders:  make([]string, len(p.Senders)),
		Subjects: make([]string, len(p.Subjects)),
	}
	for i, s := range p.Senders {
		out.Senders[i] = strings.ToLower(s)
	}
	for i, s := range p.Subjects {
		out.Subjects[i] = strings.ToLower(s)
	}
	return out
}

func matchAny(p config.PatternRules, sender, subject string) bool {
	for _, pat := range p.Senders {
		if pat != "" && strings.Contains(sender, pat) {
			return true
		}
	}
	for _, pat := range p.Subjects {
		if pat != "" && strings.Contains(subject, pat) {
			return true
		}
	}
	return false
}

func normEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
