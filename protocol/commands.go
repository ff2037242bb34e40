package protocol

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownType    = errors.New("unknown message type")
	ErrInvalidPayload = errors.New("invalid payload")
)

// Command is one decoded client intent.
type Command interface {
	Type() string
	validate() error
}

type CreateGame struct {
	OpponentID   int64  `json:"opponentId"`
	OpponentName string `json:"opponentName,omitempty"`
	TournamentID *int   `json:"tournamentId,omitempty"`
	MatchID      *int   `json:"matchId,omitempty"`
}

type JoinGame struct {
	MatchID string `json:"matchId"`
}

type GameInput struct {
	MatchID string `json:"matchId"`
	Action  string `json:"action"`
}

type StartGame struct {
	MatchID string `json:"matchId"`
}

type LeaveGame struct {
	MatchID string `json:"matchId"`
}

type TournamentReady struct {
	TournamentID int `json:"tournamentId"`
	MatchID      int `json:"matchId"`
}

type TournamentForfeit struct {
	TournamentID int    `json:"tournamentId"`
	Reason       string `json:"reason,omitempty"`
}

func (CreateGame) Type() string        { return MsgGameCreate }
func (JoinGame) Type() string          { return MsgGameJoin }
func (GameInput) Type() string         { return MsgGameInput }
func (StartGame) Type() string         { return MsgGameStart }
func (LeaveGame) Type() string         { return MsgGameLeave }
func (TournamentReady) Type() string   { return MsgTournamentReady }
func (TournamentForfeit) Type() string { return MsgTournamentForfeit }

func (c CreateGame) validate() error {
	if c.TournamentID != nil || c.MatchID != nil {
		if c.TournamentID == nil || c.MatchID == nil {
			return fmt.Errorf("tournamentId and matchId must be sent together")
		}
		return nil
	}
	if c.OpponentID == 0 {
		return fmt.Errorf("opponentId is required")
	}
	return nil
}

func (c JoinGame) validate() error  { return requireMatchID(c.MatchID) }
func (c StartGame) validate() error { return requireMatchID(c.MatchID) }
func (c LeaveGame) validate() error { return requireMatchID(c.MatchID) }

func (c GameInput) validate() error {
	if err := requireMatchID(c.MatchID); err != nil {
		return err
	}
	if c.Action == "" {
		return fmt.Errorf("action is required")
	}
	return nil
}

func (c TournamentReady) validate() error {
	if c.TournamentID <= 0 || c.MatchID <= 0 {
		return fmt.Errorf("tournamentId and matchId are required")
	}
	return nil
}

func (c TournamentForfeit) validate() error {
	if c.TournamentID <= 0 {
		return fmt.Errorf("tournamentId is required")
	}
	return nil
}

func requireMatchID(id string) error {
	if id == "" {
		return fmt.Errorf("matchId is required")
	}
	return nil
}

// ParseCommand decodes a raw client frame into its Command variant.
func ParseCommand(b []byte) (Command, error) {
	in, err := DecodeInbound(b)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	var cmd Command
	switch in.Type {
	case MsgGameCreate:
		cmd, err = decode[CreateGame](in)
	case MsgGameJoin:
		cmd, err = decode[JoinGame](in)
	case MsgGameInput:
		cmd, err = decode[GameInput](in)
	case MsgGameStart:
		cmd, err = decode[StartGame](in)
	case MsgGameLeave:
		cmd, err = decode[LeaveGame](in)
	case MsgTournamentReady:
		cmd, err = decode[TournamentReady](in)
	case MsgTournamentForfeit:
		cmd, err = decode[TournamentForfeit](in)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, in.Type)
	}
	if err != nil {
		return nil, err
	}
	if err := cmd.validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, in.Type, err)
	}
	return cmd, nil
}

func decode[T Command](in Inbound) (Command, error) {
	v, err := DecodeData[T](in)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, in.Type, err)
	}
	return v, nil
}
