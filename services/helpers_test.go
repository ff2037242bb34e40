package services

import "testing"

func TestMatchKeyRoundTrip(t *testing.T) {
	tid, mid, ok := ParseMatchKey(MatchKey(12, 7))
	if !ok || tid != 12 || mid != 7 {
		t.Fatalf("ParseMatchKey = %d, %d, %v", tid, mid, ok)
	}
}

func TestParseMatchKeyRejectsCasualIDs(t *testing.T) {
	for _, key := range []string{
		"",
		"3f2b8f0e-6a43-4b59-9f7f-0d6b4c1e2a11",
		"tournament-x-match-1",
		"tournament-1-match-",
		"tournament-0-match-3",
		"tournament-1-round-2",
	} {
		if _, _, ok := ParseMatchKey(key); ok {
			t.Fatalf("ParseMatchKey(%q) accepted", key)
		}
	}
}
