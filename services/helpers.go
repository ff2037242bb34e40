package services

import (
	"fmt"
	"strconv"
	"strings"
)

const matchKeyPrefix = "tournament-"

// MatchKey is the engine id of a tournament match.
func MatchKey(tournamentID, matchID int) string {
	return fmt.Sprintf("tournament-%d-match-%d", tournamentID, matchID)
}

// ParseMatchKey extracts the tournament and match ids encoded by MatchKey.
func ParseMatchKey(key string) (tournamentID, matchID int, ok bool) {
	rest, found := strings.CutPrefix(key, matchKeyPrefix)
	if !found {
		return 0, 0, false
	}
	tidPart, midPart, found := strings.Cut(rest, "-match-")
	if !found {
		return 0, 0, false
	}
	tid, err := strconv.Atoi(tidPart)
	if err != nil || tid <= 0 {
		return 0, 0, false
	}
	mid, err := strconv.Atoi(midPart)
	if err != nil || mid <= 0 {
		return 0, 0, false
	}
	return tid, mid, true
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func stringPtr(s string) *string {
	return &s
}
