package protocol

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestEncodeStampsMillis(t *testing.T) {
	now := time.UnixMilli(1714564800123)
	b, err := Encode(MsgGameStateUpdate, map[string]int{"score": 3}, now)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	var out struct {
		Type      string         `json:"type"`
		Data      map[string]int `json:"data"`
		Timestamp int64          `json:"timestamp"`
	}
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out.Type != MsgGameStateUpdate || out.Data["score"] != 3 || out.Timestamp != 1714564800123 {
		t.Fatalf("unexpected frame %s", b)
	}
	if _, err := Encode("", nil, now); err == nil {
		t.Fatalf("Encode without type must fail")
	}
}

func TestParseCommandVariants(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		check func(t *testing.T, cmd Command)
	}{
		{
			name:  "create casual",
			frame: `{"type":"game:create","data":{"opponentId":7}}`,
			check: func(t *testing.T, cmd Command) {
				c, ok := cmd.(CreateGame)
				if !ok || c.OpponentID != 7 || c.TournamentID != nil {
					t.Fatalf("unexpected command %#v", cmd)
				}
			},
		},
		{
			name:  "create tournament",
			frame: `{"type":"game:create","data":{"tournamentId":3,"matchId":9}}`,
			check: func(t *testing.T, cmd Command) {
				c := cmd.(CreateGame)
				if *c.TournamentID != 3 || *c.MatchID != 9 {
					t.Fatalf("unexpected command %#v", c)
				}
			},
		},
		{
			name:  "input",
			frame: `{"type":"game:input","data":{"matchId":"m1","action":"up"}}`,
			check: func(t *testing.T, cmd Command) {
				if c := cmd.(GameInput); c.MatchID != "m1" || c.Action != "up" {
					t.Fatalf("unexpected command %#v", c)
				}
			},
		},
		{
			name:  "ready",
			frame: `{"type":"tournament:ready","data":{"tournamentId":1,"matchId":2}}`,
			check: func(t *testing.T, cmd Command) {
				if c := cmd.(TournamentReady); c.TournamentID != 1 || c.MatchID != 2 {
					t.Fatalf("unexpected command %#v", c)
				}
			},
		},
		{
			name:  "forfeit",
			frame: `{"type":"tournament:forfeit","data":{"tournamentId":1,"reason":"tired"}}`,
			check: func(t *testing.T, cmd Command) {
				if c := cmd.(TournamentForfeit); c.Reason != "tired" {
					t.Fatalf("unexpected command %#v", c)
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, err := ParseCommand([]byte(tt.frame))
			if err != nil {
				t.Fatalf("ParseCommand: %v", err)
			}
			tt.check(t, cmd)
		})
	}
}

func TestParseCommandErrors(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		want  error
	}{
		{"unknown type", `{"type":"chat:send","data":{}}`, ErrUnknownType},
		{"empty frame", ``, ErrInvalidPayload},
		{"missing data", `{"type":"game:join"}`, ErrInvalidPayload},
		{"missing match id", `{"type":"game:leave","data":{}}`, ErrInvalidPayload},
		{"half tournament ids", `{"type":"game:create","data":{"tournamentId":1}}`, ErrInvalidPayload},
		{"malformed json", `{"type":`, ErrInvalidPayload},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseCommand([]byte(tt.frame)); !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}
