package mime

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
)

// messageIDRe matches a complete angle-bracketed Message-ID value. Partial
// or malformed values do not count; they would collide across providers.
var messageIDRe = regexp.MustCompile(`^<[^<>]+>$`)

// replyPrefixRe matches one leading reply or forward marker.
var replyPrefixRe = regexp.MustCompile(`(?i)^(re|fw|fwd)\s*:\s*`)

// CanonicalMessageID returns the Message-ID header value when it is a
// complete <...> token, otherwise a synthetic ID derived from where the
// message was found. The synthetic form is stable across runs so
// re-ingestion stays idempotent.
func CanonicalMessageID(header, accountID, folder string, uid uint32) string {
	header = strings.TrimSpace(header)
	if messageIDRe.MatchString(header) {
		return header
	}
	return fmt.Sprintf("synthetic:%s:%s:%d", accountID, folder, uid)
}

// NormalizeSubject strips repeated reply and forward prefixes, collapses
// whitespace, and lowercases. Used both for thread identity and for
// grouping replies with their original.
func NormalizeSubject(subject string) string {
	s := strings.TrimSpace(subject)
	for {
		stripped := replyPrefixRe.ReplaceAllString(s, "")
		if stripped == s {
			break
		}
		s = strings.TrimSpace(stripped)
	}
	s = strings.Join(strings.Fields(s), " ")
	return strings.ToLower(s)
}

// ThreadID derives the stable thread identity for a message. The root of
// the References chain wins when present; otherwise messages thread by
// normalized subject.
func ThreadID(references []string, subject string) string {
	if len(references) > 0 && references[0] != "" {
		return hashID("ref:" + references[0])
	}
	return hashID("subj:" + NormalizeSubject(subject))
}

func hashID(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
