package ledger

import (
	"context"
	"time"
)

// PruneRequestKeys forgets idempotency keys recorded more than retention ago.
// A pruned key may be reused.
func (s *Service) PruneRequestKeys(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, classify("prune request keys", invalidf("retention must be positive"))
	}
	cutoff := s.timestamp().Add(-retention)
	var n int64
	err := s.inTx(ctx, "prune request keys", func(ctx context.Context, tx Tx) error {
		var err error
		n, err = tx.PruneRequests(ctx, cutoff)
		return err
	})
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Info("request keys pruned", "count", n, "cutoff", cutoff)
	}
	return n, nil
}
