package services

import (
	"errors"

	"github.com/Dosada05/pong-tournament/protocol"
	"github.com/Dosada05/pong-tournament/realtime"
)

// Общие ошибки, используемые в разных сервисах и маппинге HTTP/WebSocket.
var (
	ErrNotFound = errors.New("requested resource not found")

	// Ошибки валидации
	ErrValidationFailed = errors.New("validation failed")
	ErrInvalidAction    = errors.New("invalid paddle action")

	// Ошибки аутентификации и авторизации
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrInvalidToken         = errors.New("invalid or expired token")
	ErrGuestAliasTaken      = errors.New("guest alias is bound to another identity")
	ErrForbiddenOperation   = errors.New("operation not allowed for the current user")
	ErrNotTournamentOwner   = errors.New("only the tournament owner can perform this action")
	ErrNotParticipant       = errors.New("alias is not a participant of this tournament")
	ErrNotMatchParticipant  = errors.New("alias is not a participant of this match")
	ErrNotGamePlayer        = errors.New("user is not a player of this game")

	// Сущности
	ErrTournamentNotFound = errors.New("tournament not found")
	ErrMatchNotFound      = errors.New("tournament match not found")
	ErrGameNotFound       = errors.New("game not found")
	ErrOpponentOffline    = errors.New("opponent is not online")

	// Недопустимые переходы состояний
	ErrIllegalState          = errors.New("operation not allowed in the current state")
	ErrTournamentNotWaiting  = errors.New("tournament has already started")
	ErrTournamentNotActive   = errors.New("tournament is not active")
	ErrTournamentFull        = errors.New("tournament is full")
	ErrAlreadyJoined         = errors.New("already registered for this tournament")
	ErrNotEnoughParticipants = errors.New("tournament does not have the required number of participants")
	ErrMatchNotPending       = errors.New("tournament match is not pending")
	ErrMatchNotActive        = errors.New("tournament match is not active")
	ErrMatchNotLaunched      = errors.New("tournament match has not been launched yet")
	ErrGameNotPlaying        = errors.New("game is not playing")
	ErrGameNotFinished       = errors.New("game is not finished")
	ErrGameResultPending     = errors.New("game result has not been reported yet")
	ErrSelfChallenge         = errors.New("cannot challenge yourself")
)

// ErrorReason maps an error to the machine-checkable reason sent in error events.
func ErrorReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, realtime.ErrIdentityAlreadyConnected):
		return protocol.ReasonSessionExists
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrTournamentNotFound),
		errors.Is(err, ErrMatchNotFound),
		errors.Is(err, ErrGameNotFound),
		errors.Is(err, ErrOpponentOffline):
		return protocol.ReasonNotFound
	case errors.Is(err, ErrForbiddenOperation),
		errors.Is(err, ErrNotTournamentOwner),
		errors.Is(err, ErrNotParticipant),
		errors.Is(err, ErrNotMatchParticipant),
		errors.Is(err, ErrNotGamePlayer),
		errors.Is(err, ErrAuthenticationFailed),
		errors.Is(err, ErrInvalidToken),
		errors.Is(err, ErrGuestAliasTaken):
		return protocol.ReasonForbidden
	case errors.Is(err, ErrValidationFailed),
		errors.Is(err, ErrInvalidAction),
		errors.Is(err, ErrSelfChallenge),
		errors.Is(err, protocol.ErrInvalidPayload),
		errors.Is(err, protocol.ErrUnknownType):
		return protocol.ReasonBadRequest
	case isIllegalState(err):
		return protocol.ReasonIllegalState
	}
	return protocol.ReasonInternal
}

func isIllegalState(err error) bool {
	for _, target := range []error{
		ErrIllegalState, ErrTournamentNotWaiting, ErrTournamentNotActive, ErrTournamentFull,
		ErrAlreadyJoined, ErrNotEnoughParticipants, ErrMatchNotPending, ErrMatchNotActive,
		ErrMatchNotLaunched, ErrGameNotPlaying, ErrGameNotFinished, ErrGameResultPending,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
