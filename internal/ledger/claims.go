package ledger

import "context"

// Claim assigns resource to ownerID when it is unclaimed. An owned resource is
// never transferred, even to the same owner asking again.
func (s *Service) Claim(ctx context.Context, resource, ownerID string) (ClaimRecord, error) {
	name, err := validateResourceName(resource)
	if err != nil {
		return ClaimRecord{}, classify("claim", err)
	}
	ownerID, err = ValidatePlayerID(ownerID)
	if err != nil {
		return ClaimRecord{}, classify("claim", err)
	}

	var out ClaimRecord
	err = s.inTx(ctx, "claim", func(ctx context.Context, tx Tx) error {
		if _, err := tx.GetIdentity(ctx, ownerID); err != nil {
			return err
		}
		ok, err := tx.ClaimResource(ctx, name, ownerID, s.timestamp())
		if err != nil {
			return err
		}
		if !ok {
			return Errorf(CodeConflict, ReasonAlreadyOwned, "resource %q is already owned", name)
		}
		out, err = tx.GetClaim(ctx, name)
		return err
	})
	if err != nil {
		return ClaimRecord{}, err
	}
	s.log.Info("resource claimed", "resource", name, "owner_id", ownerID)
	s.publish(ctx, Event{Kind: EventClaim, PlayerID: ownerID, Subject: name, At: out.ClaimedAt})
	return out, nil
}

func (s *Service) GetClaim(ctx context.Context, resource string) (ClaimRecord, error) {
	name, err := validateResourceName(resource)
	if err != nil {
		return ClaimRecord{}, classify("get claim", err)
	}
	var out ClaimRecord
	err = s.inTx(ctx, "get claim", func(ctx context.Context, tx Tx) error {
		c, err := tx.GetClaim(ctx, name)
		out = c
		return err
	})
	return out, err
}

// ListClaims returns the resources currently held by ownerID.
func (s *Service) ListClaims(ctx context.Context, ownerID string) ([]ClaimRecord, error) {
	ownerID, err := ValidatePlayerID(ownerID)
	if err != nil {
		return nil, classify("list claims", err)
	}
	var out []ClaimRecord
	err = s.inTx(ctx, "list claims", func(ctx context.Context, tx Tx) error {
		if _, err := tx.GetIdentity(ctx, ownerID); err != nil {
			return err
		}
		claims, err := tx.ListClaims(ctx, ownerID)
		out = claims
		return err
	})
	return out, err
}

// PurgeClaim deletes a claim record. Administrative only; purging an absent
// claim is a no-op.
func (s *Service) PurgeClaim(ctx context.Context, resource string) error {
	name, err := validateResourceName(resource)
	if err != nil {
		return classify("purge claim", err)
	}
	var deleted bool
	err = s.inTx(ctx, "purge claim", func(ctx context.Context, tx Tx) error {
		ok, err := tx.DeleteClaim(ctx, name)
		deleted = ok
		return err
	})
	if err != nil {
		return err
	}
	if deleted {
		s.log.Warn("claim purged", "resource", name)
		s.publish(ctx, Event{Kind: EventClaimPurged, Subject: name})
	}
	return nil
}
