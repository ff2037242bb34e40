package services

import (
	"context"
	"log/slog"

	"github.com/Dosada05/pong-tournament/protocol"
	"github.com/Dosada05/pong-tournament/realtime"
)

// Reply is one outbound event addressed to the caller of Dispatch.
type Reply struct {
	Type string
	Data any
}

// Dispatcher routes decoded client commands to the gameplay service and the orchestrator.
type Dispatcher struct {
	hub         *realtime.Hub
	games       MatchService
	tournaments TournamentService
	identities  IdentityResolver
	logger      *slog.Logger
}

func NewDispatcher(hub *realtime.Hub, games MatchService, tournaments TournamentService, identities IdentityResolver, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{hub: hub, games: games, tournaments: tournaments, identities: identities, logger: logger}
}

func errorReply(err error) []Reply {
	return []Reply{{Type: protocol.MsgError, Data: protocol.ErrorPayload{Reason: ErrorReason(err), Message: err.Error()}}}
}

// Dispatch handles one inbound frame and returns the events for the caller. Events for
// other identities are pushed through the hub by the services.
func (d *Dispatcher) Dispatch(ctx context.Context, caller Identity, frame []byte) []Reply {
	cmd, err := protocol.ParseCommand(frame)
	if err != nil {
		return errorReply(err)
	}

	var replies []Reply
	switch c := cmd.(type) {
	case protocol.CreateGame:
		snap, cerr := d.games.CreateGame(ctx, caller, c)
		err = cerr
		msgType := protocol.MsgGameStarted
		if c.TournamentID != nil {
			msgType = protocol.MsgGameJoined
		}
		replies = []Reply{{Type: msgType, Data: snap}}
	case protocol.JoinGame:
		snap, jerr := d.games.JoinGame(ctx, caller, c.MatchID)
		err = jerr
		replies = []Reply{{Type: protocol.MsgGameJoined, Data: snap}}
	case protocol.GameInput:
		err = d.games.Input(ctx, caller, c.MatchID, c.Action)
	case protocol.StartGame:
		snap, serr := d.games.Rematch(ctx, caller, c.MatchID)
		err = serr
		replies = []Reply{{Type: protocol.MsgGameStarted, Data: snap}}
	case protocol.LeaveGame:
		err = d.games.Leave(ctx, caller, c.MatchID)
	case protocol.TournamentReady:
		_, err = d.tournaments.MarkReady(ctx, c.TournamentID, c.MatchID, caller.Alias)
	case protocol.TournamentForfeit:
		reason := c.Reason
		if reason == "" {
			reason = ForfeitReasonRequested
		}
		err = d.tournaments.DeclareForfeit(ctx, c.TournamentID, caller.Alias, reason)
	}

	if err != nil {
		if ErrorReason(err) == protocol.ReasonInternal {
			d.logger.Error("command failed", slog.String("type", cmd.Type()), slog.Int64("user_id", caller.UserID),
				slog.Any("error", err))
		}
		return errorReply(err)
	}
	return replies
}

// Disconnect runs both disconnect policies once the caller's session is gone: the game
// path only notifies the opponent, the tournament path may forfeit.
func (d *Dispatcher) Disconnect(ctx context.Context, caller Identity, sessionID string) {
	matchID, inMatch := d.hub.CurrentMatch(caller.UserID)
	if !d.hub.Unregister(caller.UserID, sessionID) {
		return
	}
	if inMatch {
		d.games.HandleDisconnect(ctx, caller.UserID, matchID)
	}
	d.tournaments.HandleDisconnect(ctx, caller.UserID)
	if caller.Guest && d.identities != nil {
		d.identities.ReleaseGuest(caller.UserID)
	}
}
