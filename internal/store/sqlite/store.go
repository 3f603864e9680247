// Package sqlite implements ledger.Store over an embedded SQLite file. It
// backs local development and the test suites.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"shadowrealms/internal/db"
	"shadowrealms/internal/ledger"
)

const identityColumns = `id, display_name, category, language, balance, experience, level, vitality, stamina, created_at, updated_at`

type Store struct {
	db *sql.DB
}

// Open opens path and applies pending migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	sqlDB, err := db.OpenSQLite(ctx, path)
	if err != nil {
		return nil, err
	}
	if _, err := db.MigrateSQLite(ctx, sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{db: sqlDB}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) InTx(ctx context.Context, fn func(tx ledger.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txn{tx: sqlTx}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type txn struct {
	tx *sql.Tx
}

type scanner interface {
	Scan(dest ...any) error
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

func scanIdentity(row scanner) (ledger.Identity, error) {
	var p ledger.Identity
	var created, updated int64
	err := row.Scan(&p.ID, &p.DisplayName, &p.Category, &p.Language, &p.Balance, &p.Experience,
		&p.Level, &p.Vitality, &p.Stamina, &created, &updated)
	if err != nil {
		return ledger.Identity{}, err
	}
	p.CreatedAt = fromMillis(created)
	p.UpdatedAt = fromMillis(updated)
	return p, nil
}

func (t *txn) InsertIdentity(ctx context.Context, p ledger.Identity) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO players (`+identityColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.DisplayName, p.Category, p.Language, p.Balance, p.Experience, p.Level, p.Vitality,
		p.Stamina, toMillis(p.CreatedAt), toMillis(p.UpdatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return ledger.Errorf(ledger.CodeConflict, ledger.ReasonAlreadyRegistered, "player %s already registered", p.ID)
		}
		return fmt.Errorf("insert player: %w", err)
	}
	return nil
}

func (t *txn) GetIdentity(ctx context.Context, id string) (ledger.Identity, error) {
	p, err := scanIdentity(t.tx.QueryRowContext(ctx, `SELECT `+identityColumns+` FROM players WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Identity{}, ledger.Errorf(ledger.CodeNotFound, "", "player %s not found", id)
	}
	if err != nil {
		return ledger.Identity{}, fmt.Errorf("select player: %w", err)
	}
	return p, nil
}

// LockIdentity is a plain read: the store runs one transaction at a time.
func (t *txn) LockIdentity(ctx context.Context, id string) (ledger.Identity, error) {
	return t.GetIdentity(ctx, id)
}

func (t *txn) UpdateIdentity(ctx context.Context, p ledger.Identity) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE players
		SET display_name = ?, category = ?, language = ?, balance = ?, experience = ?,
			level = ?, vitality = ?, stamina = ?, updated_at = ?
		WHERE id = ?
	`, p.DisplayName, p.Category, p.Language, p.Balance, p.Experience, p.Level, p.Vitality,
		p.Stamina, toMillis(p.UpdatedAt), p.ID)
	if err != nil {
		return fmt.Errorf("update player: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ledger.Errorf(ledger.CodeNotFound, "", "player %s not found", p.ID)
	}
	return nil
}

func (t *txn) DeleteIdentity(ctx context.Context, id string) (bool, error) {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM players WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete player: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (t *txn) DeleteAllIdentities(ctx context.Context) (int64, error) {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM players`)
	if err != nil {
		return 0, fmt.Errorf("delete players: %w", err)
	}
	return res.RowsAffected()
}

func (t *txn) ClaimRequest(ctx context.Context, playerID, key, action string, at time.Time) error {
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO request_keys (player_id, idem_key, action, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (player_id, idem_key) DO NOTHING
	`, playerID, key, action, toMillis(at))
	if err != nil {
		return fmt.Errorf("claim request key: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ledger.Errorf(ledger.CodeConflict, ledger.ReasonDuplicateRequest, "request %q already processed", key)
	}
	return nil
}

func (t *txn) PruneRequests(ctx context.Context, before time.Time) (int64, error) {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM request_keys WHERE created_at < ?`, toMillis(before))
	if err != nil {
		return 0, fmt.Errorf("prune request keys: %w", err)
	}
	return res.RowsAffected()
}

func (t *txn) InsertSale(ctx context.Context, sale ledger.SaleRecord) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO sales (id, buyer_id, item_code, price, balance_after, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, sale.ID, sale.BuyerID, sale.ItemCode, sale.Price, sale.Balance, toMillis(sale.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert sale: %w", err)
	}
	return nil
}

func (t *txn) ListSales(ctx context.Context, buyerID string, limit int) ([]ledger.SaleRecord, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, buyer_id, item_code, price, balance_after, created_at
		FROM sales
		WHERE buyer_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, buyerID, limit)
	if err != nil {
		return nil, fmt.Errorf("list sales: %w", err)
	}
	defer rows.Close()

	out := []ledger.SaleRecord{}
	for rows.Next() {
		var sale ledger.SaleRecord
		var created int64
		if err := rows.Scan(&sale.ID, &sale.BuyerID, &sale.ItemCode, &sale.Price, &sale.Balance, &created); err != nil {
			return nil, fmt.Errorf("scan sale: %w", err)
		}
		sale.CreatedAt = fromMillis(created)
		out = append(out, sale)
	}
	return out, rows.Err()
}

func (t *txn) ClaimResource(ctx context.Context, resource, ownerID string, at time.Time) (bool, error) {
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO claims (resource_name, owner_id, claimed_at)
		VALUES (?, ?, ?)
		ON CONFLICT (resource_name) DO UPDATE
		SET owner_id = excluded.owner_id, claimed_at = excluded.claimed_at
		WHERE claims.owner_id IS NULL
	`, resource, ownerID, toMillis(at))
	if err != nil {
		return false, fmt.Errorf("claim resource: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func scanClaim(row scanner) (ledger.ClaimRecord, error) {
	var c ledger.ClaimRecord
	var owner sql.NullString
	var claimed int64
	if err := row.Scan(&c.ResourceName, &owner, &claimed); err != nil {
		return ledger.ClaimRecord{}, err
	}
	c.OwnerID = owner.String
	c.ClaimedAt = fromMillis(claimed)
	return c, nil
}

func (t *txn) GetClaim(ctx context.Context, resource string) (ledger.ClaimRecord, error) {
	c, err := scanClaim(t.tx.QueryRowContext(ctx,
		`SELECT resource_name, owner_id, claimed_at FROM claims WHERE resource_name = ?`, resource))
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.ClaimRecord{}, ledger.Errorf(ledger.CodeNotFound, "", "resource %q has never been claimed", resource)
	}
	if err != nil {
		return ledger.ClaimRecord{}, fmt.Errorf("select claim: %w", err)
	}
	return c, nil
}

func (t *txn) ListClaims(ctx context.Context, ownerID string) ([]ledger.ClaimRecord, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT resource_name, owner_id, claimed_at
		FROM claims
		WHERE owner_id = ?
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
	res, err := t.tx.ExecContext(ctx, `DELETE FROM claims WHERE resource_name = ?`, resource)
	if err != nil {
		return false, fmt.Errorf("delete claim: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (t *txn) ActiveBonds(ctx context.Context, playerID string) ([]ledger.Bond, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT bond_id, player_id, partner_id, kind, initiator_id, exclusive, created_at
		FROM bonds
		WHERE player_id = ? AND active = 1
		ORDER BY created_at, bond_id
	`, playerID)
	if err != nil {
		return nil, fmt.Errorf("list bonds: %w", err)
	}
	defer rows.Close()

	out := []ledger.Bond{}
	for rows.Next() {
		b := ledger.Bond{Active: true}
		var created int64
		if err := rows.Scan(&b.BondID, &b.PlayerID, &b.PartnerID, &b.Kind, &b.InitiatorID, &b.Exclusive, &created); err != nil {
			return nil, fmt.Errorf("scan bond: %w", err)
		}
		b.CreatedAt = fromMillis(created)
		out = append(out, b)
	}
	return out, rows.Err()
}

func (t *txn) InsertBond(ctx context.Context, b ledger.Bond) error {
	for _, side := range []ledger.Bond{b, b.Mirror()} {
		_, err := t.tx.ExecContext(ctx, `
			INSERT INTO bonds (bond_id, player_id, partner_id, kind, initiator_id, exclusive, active, created_at)
			VALUES (?, ?, ?, ?, ?, ?, 1, ?)
		`, side.BondID, side.PlayerID, side.PartnerID, side.Kind, side.InitiatorID, side.Exclusive, toMillis(side.CreatedAt))
		if err != nil {
			if isUniqueViolation(err) {
				return ledger.Errorf(ledger.CodeConflict, "", "active %s bond already exists for %s", side.Kind, side.PlayerID)
			}
			return fmt.Errorf("insert bond: %w", err)
		}
	}
	return nil
}

func (t *txn) EndBond(ctx context.Context, idA, idB, kind string, at time.Time) (int64, error) {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE bonds
		SET active = 0, ended_at = ?
		WHERE active = 1 AND kind = ?
			AND ((player_id = ? AND partner_id = ?) OR (player_id = ? AND partner_id = ?))
	`, toMillis(at), kind, idA, idB, idB, idA)
	if err != nil {
		return 0, fmt.Errorf("end bond: %w", err)
	}
	return res.RowsAffected()
}

func (t *txn) InsertLink(ctx context.Context, l ledger.Link) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO links (id, source_id, target_id, link_type, label, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, l.ID, l.SourceID, l.TargetID, l.LinkType, l.Label, toMillis(l.CreatedAt))
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
	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, source_id, target_id, link_type, label, created_at
		FROM links
		WHERE `+column+` = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, playerID, limit)
	if err != nil {
		return nil, fmt.Errorf("list links: %w", err)
	}
	defer rows.Close()

	out := []ledger.Link{}
	for rows.Next() {
		var l ledger.Link
		var created int64
		if err := rows.Scan(&l.ID, &l.SourceID, &l.TargetID, &l.LinkType, &l.Label, &created); err != nil {
			return nil, fmt.Errorf("scan link: %w", err)
		}
		l.CreatedAt = fromMillis(created)
		out = append(out, l)
	}
	return out, rows.Err()
}

var _ ledger.Store = (*Store)(nil)
