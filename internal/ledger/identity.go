package ledger

import (
	"context"
)

// Register creates a new identity. Registration is strict: an existing id
// fails with ErrAlreadyRegistered and the stored record is left untouched.
func (s *Service) Register(ctx context.Context, in RegisterInput) (Identity, error) {
	id, err := ValidatePlayerID(in.ID)
	if err != nil {
		return Identity{}, classify("register", err)
	}
	name, err := validateDisplayName(in.DisplayName)
	if err != nil {
		return Identity{}, classify("register", err)
	}
	category, err := validateCategory(in.Category)
	if err != nil {
		return Identity{}, classify("register", err)
	}
	lang, err := normalizeLanguage(in.Language)
	if err != nil {
		return Identity{}, classify("register", err)
	}

	now := s.timestamp()
	p := Identity{
		ID:          id,
		DisplayName: name,
		Category:    category,
		Language:    lang,
		Level:       StartingLevel,
		Vitality:    StartingVitality,
		Stamina:     StartingStamina,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err = s.inTx(ctx, "register", func(ctx context.Context, tx Tx) error {
		return tx.InsertIdentity(ctx, p)
	})
	if err != nil {
		return Identity{}, err
	}
	s.log.Info("player registered", "player_id", p.ID, "category", p.Category, "language", p.Language)
	s.publish(ctx, Event{Kind: EventPlayerRegistered, PlayerID: p.ID, Subject: p.DisplayName, At: now})
	return p, nil
}

func (s *Service) Get(ctx context.Context, id string) (Identity, error) {
	id, err := ValidatePlayerID(id)
	if err != nil {
		return Identity{}, classify("get player", err)
	}
	var out Identity
	err = s.inTx(ctx, "get player", func(ctx context.Context, tx Tx) error {
		p, err := tx.GetIdentity(ctx, id)
		out = p
		return err
	})
	return out, err
}

// ApplyPartialUpdate overwrites only the fields set in u.
func (s *Service) ApplyPartialUpdate(ctx context.Context, id string, u PartialUpdate) (Identity, error) {
	id, err := ValidatePlayerID(id)
	if err != nil {
		return Identity{}, classify("update player", err)
	}
	if u.Empty() {
		return Identity{}, classify("update player", invalidf("no valid fields to update were provided"))
	}

	var out Identity
	err = s.inTx(ctx, "update player", func(ctx context.Context, tx Tx) error {
		p, err := tx.LockIdentity(ctx, id)
		if err != nil {
			return err
		}
		if err := u.applyTo(&p); err != nil {
			return err
		}
		p.UpdatedAt = s.timestamp()
		if err := tx.UpdateIdentity(ctx, p); err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		return Identity{}, err
	}
	s.publish(ctx, Event{
		Kind:     EventPlayerUpdated,
		PlayerID: id,
		Data:     map[string]any{"fields": u.Fields()},
		At:       out.UpdatedAt,
	})
	return out, nil
}

// Purge deletes an identity and everything that references it. Claims the
// player held go back to unowned. Purging an absent id is a no-op.
func (s *Service) Purge(ctx context.Context, id string) error {
	id, err := ValidatePlayerID(id)
	if err != nil {
		return classify("purge player", err)
	}
	var deleted bool
	err = s.inTx(ctx, "purge player", func(ctx context.Context, tx Tx) error {
		ok, err := tx.DeleteIdentity(ctx, id)
		deleted = ok
		return err
	})
	if err != nil {
		return err
	}
	if deleted {
		s.log.Info("player purged", "player_id", id)
		s.publish(ctx, Event{Kind: EventPlayerPurged, PlayerID: id})
	}
	return nil
}

// Reset purges every identity and returns how many were removed.
func (s *Service) Reset(ctx context.Context) (int64, error) {
	var n int64
	err := s.inTx(ctx, "reset players", func(ctx context.Context, tx Tx) error {
		deleted, err := tx.DeleteAllIdentities(ctx)
		n = deleted
		return err
	})
	if err != nil {
		return 0, err
	}
	s.log.Warn("all players purged", "count", n)
	s.publish(ctx, Event{Kind: EventPlayersReset, Amount: n})
	return n, nil
}
