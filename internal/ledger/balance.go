package ledger

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

const (
	defaultSalesLimit = 50
	maxSalesLimit     = 500
	maxIdempotencyKey = 128
)

// AdjustBalance adds delta to one numeric field of an identity under a row
// lock. Balance debits past zero fail with ErrInsufficientFunds; every other
// field is clamped at its floor.
func (s *Service) AdjustBalance(ctx context.Context, id string, field Field, delta int64) (AdjustResult, error) {
	id, err := ValidatePlayerID(id)
	if err != nil {
		return AdjustResult{}, classify("adjust balance", err)
	}
	if _, err := ParseField(string(field)); err != nil {
		return AdjustResult{}, classify("adjust balance", err)
	}

	res := AdjustResult{PlayerID: id, Field: field}
	err = s.inTx(ctx, "adjust balance", func(ctx context.Context, tx Tx) error {
		p, err := tx.LockIdentity(ctx, id)
		if err != nil {
			return err
		}
		current := p.Value(field)
		next, err := ApplyDelta(field, current, delta)
		if err != nil {
			return err
		}
		p.set(field, next)
		p.UpdatedAt = s.timestamp()
		if err := tx.UpdateIdentity(ctx, p); err != nil {
			return err
		}
		res.Previous = current
		res.Value = next
		res.Clamped = next != current+delta
		return nil
	})
	if err != nil {
		return AdjustResult{}, err
	}
	s.publish(ctx, Event{
		Kind:     EventBalanceAdjusted,
		PlayerID: id,
		Subject:  string(field),
		Amount:   delta,
		Data:     map[string]any{"value": res.Value, "clamped": res.Clamped},
	})
	return res, nil
}

// Purchase debits price from the buyer and appends a sale record in one
// transaction. A zero price is resolved from the catalog.
func (s *Service) Purchase(ctx context.Context, in PurchaseInput) (SaleRecord, error) {
	id, err := ValidatePlayerID(in.PlayerID)
	if err != nil {
		return SaleRecord{}, classify("purchase", err)
	}
	code, err := NormalizeItemCode(in.ItemCode)
	if err != nil {
		return SaleRecord{}, classify("purchase", err)
	}
	price := in.Price
	if price < 0 {
		return SaleRecord{}, classify("purchase", invalidf("price must be > 0"))
	}
	if price == 0 {
		item, ok := s.catalog.Item(code)
		if !ok {
			return SaleRecord{}, classify("purchase", invalidf("unknown item %q and no price given", code))
		}
		price = item.Price
	}
	key := strings.TrimSpace(in.IdempotencyKey)
	if len(key) > maxIdempotencyKey {
		return SaleRecord{}, classify("purchase", invalidf("idempotency key too long"))
	}

	sale := SaleRecord{
		ID:       uuid.NewString(),
		BuyerID:  id,
		ItemCode: code,
		Price:    price,
	}
	err = s.inTx(ctx, "purchase", func(ctx context.Context, tx Tx) error {
		p, err := tx.LockIdentity(ctx, id)
		if err != nil {
			return err
		}
		now := s.timestamp()
		if key != "" {
			if err := tx.ClaimRequest(ctx, id, key, "purchase", now); err != nil {
				return err
			}
		}
		if p.Balance < price {
			return Errorf(CodeInsufficientFunds, "", "insufficient funds: balance %d, price %d", p.Balance, price)
		}
		p.Balance -= price
		p.UpdatedAt = now
		if err := tx.UpdateIdentity(ctx, p); err != nil {
			return err
		}
		sale.Balance = p.Balance
		sale.CreatedAt = now
		return tx.InsertSale(ctx, sale)
	})
	if err != nil {
		return SaleRecord{}, err
	}
	s.log.Info("purchase", "player_id", id, "item", code, "price", price, "balance", sale.Balance)
	s.publish(ctx, Event{
		Kind:     EventPurchase,
		PlayerID: id,
		Subject:  code,
		Amount:   price,
		Data:     map[string]any{"sale_id": sale.ID, "balance": sale.Balance},
		At:       sale.CreatedAt,
	})
	return sale, nil
}

// ListSales returns the buyer's most recent sales first.
func (s *Service) ListSales(ctx context.Context, id string, limit int) ([]SaleRecord, error) {
	id, err := ValidatePlayerID(id)
	if err != nil {
		return nil, classify("list sales", err)
	}
	if limit <= 0 {
		limit = defaultSalesLimit
	}
	if limit > maxSalesLimit {
		limit = maxSalesLimit
	}
	var out []SaleRecord
	err = s.inTx(ctx, "list sales", func(ctx context.Context, tx Tx) error {
		if _, err := tx.GetIdentity(ctx, id); err != nil {
			return err
		}
		sales, err := tx.ListSales(ctx, id, limit)
		out = sales
		return err
	})
	return out, err
}

// Wager stakes amount on an even-odds flip. A win credits the amount, a loss
// debits it.
func (s *Service) Wager(ctx context.Context, id string, amount int64) (WagerResult, error) {
	id, err := ValidatePlayerID(id)
	if err != nil {
		return WagerResult{}, classify("wager", err)
	}
	if amount <= 0 {
		return WagerResult{}, classify("wager", invalidf("wager must be > 0"))
	}

	res := WagerResult{PlayerID: id, Amount: amount}
	err = s.inTx(ctx, "wager", func(ctx context.Context, tx Tx) error {
		p, err := tx.LockIdentity(ctx, id)
		if err != nil {
			return err
		}
		if p.Balance < amount {
			return Errorf(CodeInsufficientFunds, "", "insufficient funds: balance %d, wager %d", p.Balance, amount)
		}
		res.Won = s.chance.Float64() < 0.5
		delta := -amount
		if res.Won {
			delta = amount
		}
		next, err := ApplyDelta(FieldBalance, p.Balance, delta)
		if err != nil {
			return err
		}
		p.Balance = next
		p.UpdatedAt = s.timestamp()
		if err := tx.UpdateIdentity(ctx, p); err != nil {
			return err
		}
		res.Balance = next
		return nil
	})
	if err != nil {
		return WagerResult{}, err
	}
	s.publish(ctx, Event{
		Kind:     EventWager,
		PlayerID: id,
		Amount:   amount,
		Data:     map[string]any{"won": res.Won, "balance": res.Balance},
	})
	return res, nil
}
