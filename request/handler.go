package request

import (
	"context"
	"log/slog"

	"github.com/sacredlabyrinth/clansync/bus"
)

// NewHandler builds the bus handler for the request channel. It runs on
// the scheduler, so it may mutate the manager's state directly.
func NewHandler(m *Manager, logger *slog.Logger) bus.Handler {
	log := logger.WithGroup("requests")
	return func(payload string) {
		msg, ok := DecodeMessage(payload, log)
		if !ok {
			return
		}
		ctx := context.Background()

		switch msg.Action {
		case ActionNew:
			m.AdoptRemote(ctx, msg.Key)
			if m.notifier == nil {
				return
			}
			switch {
			case msg.Type == TypeInvite:
				m.notifier.Deliver(msg.TargetPlayer, msg.Message)
			case msg.Type.InterClan():
				m.notifier.NotifyLeaders(msg.TargetClan, msg.Message)
			default:
				m.notifier.NotifyLeaders(msg.ClanTag, msg.Message, msg.TargetPlayer)
			}

		case ActionVote:
			m.ApplyRemoteVote(ctx, msg.Key, msg.Voter, msg.Vote)

		case ActionRemove:
			m.RemoveLocal(msg.Key)

		case ActionNotify:
			if m.notifier != nil {
				m.notifier.Deliver(msg.TargetPlayer, msg.Message)
			}
		}
	}
}
