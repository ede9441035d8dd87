package memory

import "strings"

// topicLexicon is the domain vocabulary the active-topic heuristic matches
// against (authentication, billing, account, technical, security, ...).
// Matching is substring-based against the lowercased message text so
// near-forms (e.g. "billed", "authenticate") still hit their topic.
var topicLexicon = map[string][]string{
	"authentication": {"login", "log in", "signin", "sign in", "password", "2fa", "authenticat", "mfa"},
	"billing":        {"bill", "invoice", "charge", "payment", "refund", "subscription", "price"},
	"account":        {"account", "profile", "settings", "username", "email address"},
	"technical":      {"error", "bug", "crash", "not working", "broken", "fails", "exception"},
	"security":       {"hack", "breach", "unauthorized", "suspicious", "fraud", "phishing"},
	"shipping":       {"delivery", "shipment", "tracking", "package", "courier"},
	"returns":        {"return", "exchange", "refund"},
}

// ExtractTopics lowercases the given messages' content and returns the set of
// lexicon topics they touch on. Callers merge the result into a session's
// monotonic topic set rather than replacing it.
func ExtractTopics(contents []string) map[string]struct{} {
	found := make(map[string]struct{})
	for _, content := range contents {
		lower := strings.ToLower(content)
		for topic, cues := range topicLexicon {
			if _, already := found[topic]; already {
				continue
			}
			for _, cue := range cues {
				if strings.Contains(lower, cue) {
					found[topic] = struct{}{}
					break
				}
			}
		}
	}
	return found
}

func mergeTopics(into map[string]struct{}, found map[string]struct{}) {
	for t := range found {
		into[t] = struct{}{}
	}
}

func topicKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
