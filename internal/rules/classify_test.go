package rules

import (
	"testing"

	"mailtriage/internal/config"
)

func testClassifier() *Classifier {
	return NewClassifier(config.RulesConfig{
		HighPrioritySenders: []string{"Boss@Example.com"},
		Suppress: config.PatternRules{
			Senders:  []string{"noreply@"},
			Subjects: []string{"out of office"},
		},
		ArrivalOnly: config.PatternRules{
			Senders:  []string{"newsletter@"},
			Subjects: []string{"[ci]"},
		},
	})
}

func TestClassify(t *testing.T) {
	c := testClassifier()

	tests := []struct {
		name        string
		sender      string
		senderEmail string
		subject     string
		want        Class
	}{
		{"plain message", "Alice <alice@example.com>", "alice@example.com", "lunch?", ClassNormal},
		{"suppressed sender", "NoReply@vendor.com", "noreply@vendor.com", "update", ClassSuppress},
		{"suppressed subject", "alice@example.com", "alice@example.com", "Out of Office: back Monday", ClassSuppress},
		{"arrival only sender", "Newsletter@news.com", "newsletter@news.com", "weekly digest", ClassArrivalOnly},
		{"arrival only subject", "ci@build.example.com", "ci@build.example.com", "[CI] build 123 passed", ClassArrivalOnly},
		{"high priority exact email", "The Boss <boss@example.com>", "boss@example.com", "need this now", ClassHighPriority},
		{"high priority needs exact match", "Not Boss <notboss@example.com>", "notboss@example.com", "hello", ClassNormal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(tt.sender, tt.senderEmail, tt.subject)
			if got != tt.want {
				t.Errorf("Classify = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClassifyPrecedence(t *testing.T) {
	c := NewClassifier(config.RulesConfig{
		HighPrioritySenders: []string{"boss@example.com"},
		Suppress:            config.PatternRules{Senders: []string{"boss@"}},
		ArrivalOnly:         config.PatternRules{Senders: []string{"boss@"}},
	})

	// A sender matching every rule class is suppressed.
	got := c.Classify("boss@example.com", "boss@example.com", "urgent")
	if got != ClassSuppress {
		t.Errorf("Classify = %q, want suppress to win", got)
	}
}

func TestIsHighPrioritySender(t *testing.T) {
	c := testClassifier()
	if !c.IsHighPrioritySender("BOSS@example.com") {
		t.Error("case-insensitive high priority lookup failed")
	}
	if c.IsHighPrioritySender("other@example.com") {
		t.Error("unexpected high priority sender")
	}
}
