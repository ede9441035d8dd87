package memory

import "testing"

func TestExtractTopicsMatchesLexicon(t *testing.T) {
	found := ExtractTopics([]string{"I can't log in, my password reset isn't working"})
	if _, ok := found["authentication"]; !ok {
		t.Fatalf("expected authentication topic, got %v", found)
	}
	if _, ok := found["billing"]; ok {
		t.Fatalf("did not expect billing topic, got %v", found)
	}
}

func TestExtractTopicsMultipleMessages(t *testing.T) {
	found := ExtractTopics([]string{
		"my card was charged twice, need a refund",
		"also the package tracking shows it never shipped",
	})
	if _, ok := found["billing"]; !ok {
		t.Fatalf("expected billing topic, got %v", found)
	}
	if _, ok := found["shipping"]; !ok {
		t.Fatalf("expected shipping topic, got %v", found)
	}
}

func TestMergeTopicsIsMonotonic(t *testing.T) {
	into := map[string]struct{}{"billing": {}}
	mergeTopics(into, map[string]struct{}{"technical": {}})
	if len(into) != 2 {
		t.Fatalf("expected merge to keep prior topics and add new ones, got %v", into)
	}
}

func TestTopicKeysOrderIndependent(t *testing.T) {
	keys := topicKeys(map[string]struct{}{"a": {}, "b": {}})
	if len(keys) != 2 {
		t.Fatalf("expected 2 keys, got %d", len(keys))
	}
}
