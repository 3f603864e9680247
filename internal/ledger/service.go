package ledger

import (
	"context"
	"log/slog"
	"time"

	"shadowrealms/internal/catalog"
)

const defaultOpTimeout = 5 * time.Second

type Options struct {
	Catalog   *catalog.Catalog
	Chance    Chance
	Sinks     []EventSink
	OpTimeout time.Duration
	Now       func() time.Time
}

type Service struct {
	store     Store
	log       *slog.Logger
	catalog   *catalog.Catalog
	chance    Chance
	sinks     []EventSink
	opTimeout time.Duration
	now       func() time.Time
}

func NewService(store Store, logger *slog.Logger, opts Options) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		store:     store,
		log:       logger,
		catalog:   opts.Catalog,
		chance:    opts.Chance,
		sinks:     opts.Sinks,
		opTimeout: opts.OpTimeout,
		now:       opts.Now,
	}
	if s.catalog == nil {
		s.catalog = catalog.Default()
	}
	if s.chance == nil {
		s.chance = NewChance(time.Now().UnixNano())
	}
	if s.opTimeout <= 0 {
		s.opTimeout = defaultOpTimeout
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

func (s *Service) Catalog() *catalog.Catalog {
	return s.catalog
}

// Ping checks that the store is reachable.
func (s *Service) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	return classify("ping", s.store.Ping(ctx))
}

// inTx runs fn in one store transaction bounded by the operation timeout.
func (s *Service) inTx(ctx context.Context, op string, fn func(ctx context.Context, tx Tx) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	err := s.store.InTx(ctx, func(tx Tx) error {
		return fn(ctx, tx)
	})
	if err != nil {
		err = classify(op, err)
		if CodeOf(err) == CodeUnavailable {
			s.log.Error("store operation failed", "op", op, "err", err)
		}
		return err
	}
	return nil
}

// timestamp is truncated to milliseconds, the coarsest precision any store keeps.
func (s *Service) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}
