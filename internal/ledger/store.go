package ledger

import (
	"context"
	"time"
)

// Store is a transactional persistent backend. InTx runs fn inside one
// transaction and commits only when fn returns nil; any error, panic or
// context cancellation rolls everything back.
type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
	Ping(ctx context.Context) error
	Close() error
}

// Tx is the row-level API available inside a transaction. Implementations
// return ledger errors for missing rows and uniqueness violations and raw
// driver errors for everything else.
type Tx interface {
	InsertIdentity(ctx context.Context, p Identity) error
	GetIdentity(ctx context.Context, id string) (Identity, error)
	// LockIdentity reads the row and holds an exclusive lock on it until the
	// transaction ends.
	LockIdentity(ctx context.Context, id string) (Identity, error)
	UpdateIdentity(ctx context.Context, p Identity) error
	DeleteIdentity(ctx context.Context, id string) (bool, error)
	DeleteAllIdentities(ctx context.Context) (int64, error)

	ClaimRequest(ctx context.Context, playerID, key, action string, at time.Time) error
	PruneRequests(ctx context.Context, before time.Time) (int64, error)

	InsertSale(ctx context.Context, sale SaleRecord) error
	ListSales(ctx context.Context, buyerID string, limit int) ([]SaleRecord, error)

	// ClaimResource sets ownerID on resource when it is absent or unowned, in
	// one statement, and reports whether it did.
	ClaimResource(ctx context.Context, resource, ownerID string, at time.Time) (bool, error)
	GetClaim(ctx context.Context, resource string) (ClaimRecord, error)
	ListClaims(ctx context.Context, ownerID string) ([]ClaimRecord, error)
	DeleteClaim(ctx context.Context, resource string) (bool, error)

	ActiveBonds(ctx context.Context, playerID string) ([]Bond, error)
	// InsertBond writes both mirrored rows of b.
	InsertBond(ctx context.Context, b Bond) error
	EndBond(ctx context.Context, idA, idB, kind string, at time.Time) (int64, error)

	InsertLink(ctx context.Context, l Link) error
	ListLinks(ctx context.Context, playerID string, dir Direction, limit int) ([]Link, error)
}
