package protocol

import "encoding/json"

// Inbound game intents.
const (
	MsgGameCreate = "game:create"
	MsgGameJoin   = "game:join"
	MsgGameInput  = "game:input"
	MsgGameStart  = "game:start"
	MsgGameLeave  = "game:leave"
)

// Outbound game events.
const (
	MsgGameStarted            = "game:started"
	MsgGameJoined             = "game:joined"
	MsgGameStateUpdate        = "game:state_update"
	MsgGameFinished           = "game:finished"
	MsgGamePlayerDisconnected = "game:player_disconnected"
	MsgGameCancelled          = "game:cancelled"
)

// Tournament messages. ready and forfeit flow both ways.
const (
	MsgTournamentReady         = "tournament:ready"
	MsgTournamentForfeit       = "tournament:forfeit"
	MsgTournamentMatchReady    = "tournament:match_ready"
	MsgTournamentMatchStarted  = "tournament:match_started"
	MsgTournamentMatchFinished = "tournament:match_finished"
	MsgTournamentRoundComplete = "tournament:round_complete"
	MsgTournamentFinished      = "tournament:finished"
	MsgTournamentCancelled     = "tournament:cancelled"
)

const MsgError = "error"

// Inbound is a client frame.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Outbound is a server frame. Timestamp is Unix milliseconds.
type Outbound struct {
	Type      string `json:"type"`
	Data      any    `json:"data"`
	Timestamp int64  `json:"timestamp"`
}

// ErrorPayload is sent with MsgError. Reason is machine-checkable.
type ErrorPayload struct {
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

// Error reasons.
const (
	ReasonNotFound      = "not_found"
	ReasonIllegalState  = "illegal_state"
	ReasonForbidden     = "forbidden"
	ReasonBadRequest    = "bad_request"
	ReasonSessionExists = "session_exists"
	ReasonInternal      = "internal"
)
