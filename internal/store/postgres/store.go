// Package postgres implements ledger.Store over a pgx connection pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"shadowrealms/internal/ledger"
)

const identityColumns = `id::text, display_name, category, language, balance, experience, level, vitality, stamina, created_at, updated_at`

type Store struct {
	db *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{db: pool}
}

func (s *Store) Close() error {
	s.db.Close()
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// InTx runs fn at READ COMMITTED; read-modify-write paths take row locks
// through LockIdentity.
func (s *Store) InTx(ctx context.Context, fn func(tx ledger.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&txn{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type txn struct {
	tx pgx.Tx
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func scanIdentity(row pgx.Row) (ledger.Identity, error) {
	var p ledger.Identity
	err := row.Scan(&p.ID, &p.DisplayName, &p.Category, &p.Language, &p.Balance, &p.Experience,
		&p.Level, &p.Vitality, &p.Stamina, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return ledger.Identity{}, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}

func (t *txn) InsertIdentity(ctx context.Context, p ledger.Identity) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO players (id, display_name, category, language, balance, experience, level, vitality, stamina, created_at, updated_at)
		VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, p.ID, p.DisplayName, p.Category, p.Language, p.Balance, p.Experience, p.Level, p.Vitality,
		p.Stamina, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ledger.Errorf(ledger.CodeConflict, ledger.ReasonAlreadyRegistered, "player %s already registered", p.ID)
		}
		return fmt.Errorf("insert player: %w", err)
	}
	return nil
}

func (t *txn) selectIdentity(ctx context.Context, id, suffix string) (ledger.Identity, error) {
	p, err := scanIdentity(t.tx.QueryRow(ctx, `SELECT `+identityColumns+` FROM players WHERE id = $1::uuid`+suffix, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Identity{}, ledger.Errorf(ledger.CodeNotFound, "", "player %s not found", id)
	}
	if err != nil {
		return ledger.Identity{}, fmt.Errorf("select player: %w", err)
	}
	return p, nil
}

func (t *txn) GetIdentity(ctx context.Context, id string) (ledger.Identity, error) {
	return t.selectIdentity(ctx, id, "")
}

func (t *txn) LockIdentity(ctx context.Context, id string) (ledger.Identity, error) {
	return t.selectIdentity(ctx, id, " FOR UPDATE")
}

func (t *txn) UpdateIdentity(ctx context.Context, p ledger.Identity) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE players
		SET display_name = $2, category = $3, language = $4, balance = $5, experience = $6,
			level = $7, vitality = $8, stamina = $9, updated_at = $10
		WHERE id = $1::uuid
	`, p.ID, p.DisplayName, p.Category, p.Language, p.Balance, p.Experience, p.Level, p.Vitality,
		p.Stamina, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update player: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ledger.Errorf(ledger.CodeNotFound, "", "player %s not found", p.ID)
	}
	return nil
}

func (t *txn) DeleteIdentity(ctx context.Context, id string) (bool, error) {
	tag, err := t.tx.Exec(ctx, `DELETE FROM players WHERE id = $1::uuid`, id)
	if err != nil {
		return false, fmt.Errorf("delete player: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (t *txn) DeleteAllIdentities(ctx context.Context) (int64, error) {
	tag, err := t.tx.Exec(ctx, `DELETE FROM players`)
	if err != nil {
		return 0, fmt.Errorf("delete players: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (t *txn) ClaimRequest(ctx context.Context, playerID, key, action string, at time.Time) error {
	tag, err := t.tx.Exec(ctx, `
		INSERT INTO request_keys (player_id, idem_key, action, created_at)
		VALUES ($1::uuid, $2, $3, $4)
		ON CONFLICT (player_id, idem_key) DO NOTHING
	`, playerID, key, action, at)
	if err != nil {
		return fmt.Errorf("claim request key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ledger.Errorf(ledger.CodeConflict, ledger.ReasonDuplicateRequest, "request %q already processed", key)
	}
	return nil
}

func (t *txn) PruneRequests(ctx context.Context, before time.Time) (int64, error) {
	tag, err := t.tx.Exec(ctx, `DELETE FROM request_keys WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("prune request keys: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (t *txn) InsertSale(ctx context.Context, sale ledger.SaleRecord) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO sales (id, buyer_id, item_code, price, balance_after, created_at)
		VALUES ($1::uuid, $2::uuid, $3, $4, $5, $6)
	`, sale.ID, sale.BuyerID, sale.ItemCode, sale.Price, sale.Balance, sale.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert sale: %w", err)
	}
	return nil
}

func (t *txn) ListSales(ctx context.Context, buyerID string, limit int) ([]ledger.SaleRecord, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT id::text, buyer_id::text, item_code, price, balance_after, created_at
		FROM sales
		WHERE buyer_id = $1::uuid
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, buyerID, limit)
	if err != nil {
		return nil, fmt.Errorf("list sales: %w", err)
	}
	defer rows.Close()

	out := []ledger.SaleRecord{}
	for rows.Next() {
		var sale ledger.SaleRecord
		if err := rows.Scan(&sale.ID, &sale.BuyerID, &sale.ItemCode, &sale.Price, &sale.Balance, &sale.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan sale: %w", err)
		}
		sale.CreatedAt = sale.CreatedAt.UTC()
		out = append(out, sale)
	}
	return out, rows.Err()
}

// ClaimResource is a single conditional upsert; the row lock Postgres takes on
// conflict serializes concurrent claims on one resource.
func (t *txn) ClaimResource(ctx context.Context, resource, ownerID string, at time.Time) (bool, error) {
	tag, err := t.tx.Exec(ctx, `
		INSERT INTO claims (resource_name, owner_id, claimed_at)
		VALUES ($1, $2::uuid, $3)
		ON CONFLICT (resource_name) DO UPDATE
		SET owner_id = EXCLUDED.owner_id, claimed_at = EXCLUDED.claimed_at
		WHERE claims.owner_id IS NULL
	`, resource, ownerID, at)
	if err != nil {
		return false, fmt.Errorf("claim resource: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func scanClaim(row pgx.Row) (ledger.ClaimRecord, error) {
	var c ledger.ClaimRecord
	var owner *string
	if err := row.Scan(&c.ResourceName, &owner, &c.ClaimedAt); err != nil {
		return ledger.ClaimRecord{}, err
	}
	if owner != nil {
		c.OwnerID = *owner
	}
	c.ClaimedAt = c.ClaimedAt.UTC()
	return c, nil
}

func (t *txn) GetClaim(ctx context.Context, resource string) (ledger.ClaimRecord, error) {
	c, err := scanClaim(t.tx.QueryRow(ctx,
		`SELECT resource_name, owner_id::text, claimed_at FROM claims WHERE resource_name = $1`, resource))
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.ClaimRecord{}, ledger.Errorf(ledger.CodeNotFound, "", "resource %q has never been claimed", resource)
	}
	if err != nil {
		return ledger.ClaimRecord{}, fmt.Errorf("select claim: %w", err)
	}
	return c, nil
}

func (t *txn) ListClaims(ctx context.Context, ownerID string) ([]ledger.ClaimRecord, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT resource_name, owner_id::text, claimed_at
		FROM claims
		WHERE owner_id = $1::uuid
		ORDER BY resource_name
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list claims: %w", err)
	}
	defer rows.Close()

	out := []ledger.ClaimRecord{}
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, fmt.Errorf("scan claim: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (t *txn) DeleteClaim(ctx context.Context, resource string) (bool, error) {
	tag, err := t.tx.Exec(ctx, `DELETE FROM claims WHERE resource_name = $1`, resource)
	if err != nil {
		return false, fmt.Errorf("delete claim: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (t *txn) ActiveBonds(ctx context.Context, playerID string) ([]ledger.Bond, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT bond_id::text, player_id::text, partner_id::text, kind, initiator_id::text, exclusive, created_at
		FROM bonds
		WHERE player_id = $1::uuid AND active
		ORDER BY created_at, bond_id
	`, playerID)
	if err != nil {
		return nil, fmt.Errorf("list bonds: %w", err)
	}
	defer rows.Close()

	out := []ledger.Bond{}
	for rows.Next() {
		b := ledger.Bond{Active: true}
		if err := rows.Scan(&b.BondID, &b.PlayerID, &b.PartnerID, &b.Kind, &b.InitiatorID, &b.Exclusive, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan bond: %w", err)
		}
		b.CreatedAt = b.CreatedAt.UTC()
		out = append(out, b)
	}
	return out, rows.Err()
}

func (t *txn) InsertBond(ctx context.Context, b ledger.Bond) error {
	batch := &pgx.Batch{}
	for _, side := range []ledger.Bond{b, b.Mirror()} {
		batch.Queue(`
			INSERT INTO bonds (bond_id, player_id, partner_id, kind, initiator_id, exclusive, active, created_at)
			VALUES ($1::uuid, $2::uuid, $3::uuid, $4, $5::uuid, $6, TRUE, $7)
		`, side.BondID, side.PlayerID, side.PartnerID, side.Kind, side.InitiatorID, side.Exclusive, side.CreatedAt)
	}
	if err := t.tx.SendBatch(ctx, batch).Close(); err != nil {
		if isUniqueViolation(err) {
			return ledger.Errorf(ledger.CodeConflict, "", "active %s bond already exists", b.Kind)
		}
		return fmt.Errorf("insert bond: %w", err)
	}
	return nil
}

func (t *txn) EndBond(ctx context.Context, idA, idB, kind string, at time.Time) (int64, error) {
	tag, err := t.tx.Exec(ctx, `
		UPDATE bonds
		SET active = FALSE, ended_at = $4
		WHERE active AND kind = $3
			AND ((player_id = $1::uuid AND partner_id = $2::uuid) OR (player_id = $2::uuid AND partner_id = $1::uuid))
	`, idA, idB, kind, at)
	if err != nil {
		return 0, fmt.Errorf("end bond: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (t *txn) InsertLink(ctx context.Context, l ledger.Link) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO links (id, source_id, target_id, link_type, label, created_at)
		VALUES ($1::uuid, $2::uuid, $3::uuid, $4, $5, $6)
	`, l.ID, l.SourceID, l.TargetID, l.LinkType, l.Label, l.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert link: %w", err)
	}
	return nil
}

func (t *txn) ListLinks(ctx context.Context, playerID string, dir ledger.Direction, limit int) ([]ledger.Link, error) {
	column := "source_id"
	if dir == ledger.DirectionIn {
		column = "target_id"
	}
	rows, err := t.tx.Query(ctx, `
		SELECT id::text, source_id::text, target_id::text, link_type, label, created_at
		FROM links
		WHERE `+column+` = $1::uuid
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, playerID, limit)
	if err != nil {
		return nil, fmt.Errorf("list links: %w", err)
	}
	defer rows.Close()

	out := []ledger.Link{}
	for rows.Next() {
		var l ledger.Link
		if err := rows.Scan(&l.ID, &l.SourceID, &l.TargetID, &l.LinkType, &l.Label, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan link: %w", err)
		}
		l.CreatedAt = l.CreatedAt.UTC()
		out = append(out, l)
	}
	return out, rows.Err()
}

var _ ledger.Store = (*Store)(nil)
