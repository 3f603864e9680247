package ledger

import (
	"context"
	"time"
)

const (
	EventPlayerRegistered = "player.registered"
	EventPlayerUpdated    = "player.updated"
	EventPlayerPurged     = "player.purged"
	EventPlayersReset     = "players.reset"
	EventBalanceAdjusted  = "balance.adjusted"
	EventPurchase         = "purchase"
	EventWager            = "wager"
	EventClaim            = "claim"
	EventClaimPurged      = "claim.purged"
	EventBondCreated      = "bond.created"
	EventBondBroken       = "bond.broken"
	EventLinkRecorded     = "link.recorded"
)

// Event describes one committed ledger change. Events are published after
// commit only.
type Event struct {
	Kind     string         `json:"kind"`
	PlayerID string         `json:"player_id,omitempty"`
	Subject  string         `json:"subject,omitempty"`
	Amount   int64          `json:"amount,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
	At       time.Time      `json:"at"`
}

// EventSink receives committed events, e.g. the audit journal or the live feed.
type EventSink interface {
	Publish(ctx context.Context, ev Event) error
}

func (s *Service) publish(ctx context.Context, ev Event) {
	if ev.At.IsZero() {
		ev.At = s.timestamp()
	}
	for _, sink := range s.sinks {
		if err := sink.Publish(ctx, ev); err != nil {
			s.log.Warn("event sink failed", "kind", ev.Kind, "err", err)
		}
	}
}
