package ledger

import (
	"context"

	"github.com/google/uuid"
)

const (
	defaultLinksLimit = 100
	maxLinksLimit     = 1000
)

// CreateBond links two distinct identities. For exclusive kinds neither side
// may already hold an active bond of that kind. A pair never holds two active
// bonds of the same kind.
func (s *Service) CreateBond(ctx context.Context, in BondInput) (Bond, error) {
	idA, err := ValidatePlayerID(in.IDA)
	if err != nil {
		return Bond{}, classify("create bond", err)
	}
	idB, err := ValidatePlayerID(in.IDB)
	if err != nil {
		return Bond{}, classify("create bond", err)
	}
	if idA == idB {
		return Bond{}, classify("create bond", invalidf("cannot bond a player with themselves"))
	}
	kind, err := normalizeKind(in.Kind)
	if err != nil {
		return Bond{}, classify("create bond", err)
	}
	spec, ok := s.catalog.BondKind(kind)
	if !ok {
		return Bond{}, classify("create bond", invalidf("unknown bond kind %q", kind))
	}
	initiator := idA
	if in.InitiatorID != "" {
		initiator, err = ValidatePlayerID(in.InitiatorID)
		if err != nil {
			return Bond{}, classify("create bond", err)
		}
		if initiator != idA && initiator != idB {
			return Bond{}, classify("create bond", invalidf("initiator must be one of the bonded players"))
		}
	}

	b := Bond{
		BondID:      uuid.NewString(),
		PlayerID:    idA,
		PartnerID:   idB,
		Kind:        kind,
		InitiatorID: initiator,
		Exclusive:   spec.Exclusive,
		Active:      true,
	}
	err = s.inTx(ctx, "create bond", func(ctx context.Context, tx Tx) error {
		// Lock in id order so two bond requests over the same pair cannot deadlock.
		first, second := idA, idB
		if second < first {
			first, second = second, first
		}
		if _, err := tx.LockIdentity(ctx, first); err != nil {
			return err
		}
		if _, err := tx.LockIdentity(ctx, second); err != nil {
			return err
		}
		for _, id := range []string{idA, idB} {
			active, err := tx.ActiveBonds(ctx, id)
			if err != nil {
				return err
			}
			for _, existing := range active {
				if existing.Kind != kind {
					continue
				}
				if spec.Exclusive || existing.PartnerID == b.PartnerID || existing.PartnerID == b.PlayerID {
					return Errorf(CodeConflict, ReasonAlreadyBonded, "player %s already holds an active %s bond", id, kind)
				}
			}
		}
		b.CreatedAt = s.timestamp()
		if err := tx.InsertBond(ctx, b); err != nil {
			if CodeOf(err) == CodeConflict {
				return Errorf(CodeConflict, ReasonAlreadyBonded, "active %s bond already exists", kind)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return Bond{}, err
	}
	s.log.Info("bond created", "bond_id", b.BondID, "kind", kind, "player_a", idA, "player_b", idB)
	s.publish(ctx, Event{
		Kind:     EventBondCreated,
		PlayerID: idA,
		Subject:  kind,
		Data:     map[string]any{"bond_id": b.BondID, "partner_id": idB, "initiator_id": initiator},
		At:       b.CreatedAt,
	})
	return b, nil
}

// BreakBond ends the active bond of kind between the two identities on both
// sides. Breaking a bond that does not exist is a no-op.
func (s *Service) BreakBond(ctx context.Context, idA, idB, kind string) error {
	idA, err := ValidatePlayerID(idA)
	if err != nil {
		return classify("break bond", err)
	}
	idB, err = ValidatePlayerID(idB)
	if err != nil {
		return classify("break bond", err)
	}
	kind, err = normalizeKind(kind)
	if err != nil {
		return classify("break bond", err)
	}
	var ended int64
	err = s.inTx(ctx, "break bond", func(ctx context.Context, tx Tx) error {
		n, err := tx.EndBond(ctx, idA, idB, kind, s.timestamp())
		ended = n
		return err
	})
	if err != nil {
		return err
	}
	if ended > 0 {
		s.log.Info("bond broken", "kind", kind, "player_a", idA, "player_b", idB)
		s.publish(ctx, Event{
			Kind:     EventBondBroken,
			PlayerID: idA,
			Subject:  kind,
			Data:     map[string]any{"partner_id": idB},
		})
	}
	return nil
}

// Partner resolves the active partner of id for an exclusive bond kind.
func (s *Service) Partner(ctx context.Context, id, kind string) (Bond, error) {
	id, err := ValidatePlayerID(id)
	if err != nil {
		return Bond{}, classify("partner", err)
	}
	kind, err = normalizeKind(kind)
	if err != nil {
		return Bond{}, classify("partner", err)
	}
	if spec, ok := s.catalog.BondKind(kind); !ok || !spec.Exclusive {
		return Bond{}, classify("partner", invalidf("%q is not an exclusive bond kind", kind))
	}
	var out Bond
	err = s.inTx(ctx, "partner", func(ctx context.Context, tx Tx) error {
		if _, err := tx.GetIdentity(ctx, id); err != nil {
			return err
		}
		active, err := tx.ActiveBonds(ctx, id)
		if err != nil {
			return err
		}
		for _, b := range active {
			if b.Kind == kind {
				out = b
				return nil
			}
		}
		return Errorf(CodeNotFound, "", "no active %s bond", kind)
	})
	return out, err
}

// ListBonds returns the active bonds of id, seen from its side.
func (s *Service) ListBonds(ctx context.Context, id string) ([]Bond, error) {
	id, err := ValidatePlayerID(id)
	if err != nil {
		return nil, classify("list bonds", err)
	}
	var out []Bond
	err = s.inTx(ctx, "list bonds", func(ctx context.Context, tx Tx) error {
		if _, err := tx.GetIdentity(ctx, id); err != nil {
			return err
		}
		bonds, err := tx.ActiveBonds(ctx, id)
		out = bonds
		return err
	})
	return out, err
}

// RecordDirectedLink appends a source -> target link such as parent or mentor.
func (s *Service) RecordDirectedLink(ctx context.Context, in LinkInput) (Link, error) {
	src, err := ValidatePlayerID(in.SourceID)
	if err != nil {
		return Link{}, classify("record link", err)
	}
	dst, err := ValidatePlayerID(in.TargetID)
	if err != nil {
		return Link{}, classify("record link", err)
	}
	if src == dst {
		return Link{}, classify("record link", invalidf("source and target must differ"))
	}
	linkType, err := normalizeKind(in.LinkType)
	if err != nil {
		return Link{}, classify("record link", err)
	}
	if !s.catalog.HasLinkType(linkType) {
		return Link{}, classify("record link", invalidf("unknown link type %q", linkType))
	}
	label, err := validateLabel(in.Label)
	if err != nil {
		return Link{}, classify("record link", err)
	}

	l := Link{
		ID:       uuid.NewString(),
		SourceID: src,
		TargetID: dst,
		LinkType: linkType,
		Label:    label,
	}
	err = s.inTx(ctx, "record link", func(ctx context.Context, tx Tx) error {
		if _, err := tx.GetIdentity(ctx, src); err != nil {
			return err
		}
		if _, err := tx.GetIdentity(ctx, dst); err != nil {
			return err
		}
		l.CreatedAt = s.timestamp()
		return tx.InsertLink(ctx, l)
	})
	if err != nil {
		return Link{}, err
	}
	s.publish(ctx, Event{
		Kind:     EventLinkRecorded,
		PlayerID: src,
		Subject:  linkType,
		Data:     map[string]any{"link_id": l.ID, "target_id": dst},
		At:       l.CreatedAt,
	})
	return l, nil
}

func (s *Service) ListLinks(ctx context.Context, id string, dir Direction, limit int) ([]Link, error) {
	id, err := ValidatePlayerID(id)
	if err != nil {
		return nil, classify("list links", err)
	}
	if dir, err = ParseDirection(string(dir)); err != nil {
		return nil, classify("list links", err)
	}
	if limit <= 0 {
		limit = defaultLinksLimit
	}
	if limit > maxLinksLimit {
		limit = maxLinksLimit
	}
	var out []Link
	err = s.inTx(ctx, "list links", func(ctx context.Context, tx Tx) error {
		if _, err := tx.GetIdentity(ctx, id); err != nil {
			return err
		}
		links, err := tx.ListLinks(ctx, id, dir, limit)
		out = links
		return err
	})
	return out, err
}
