package ledger_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"shadowrealms/internal/ledger"
	"shadowrealms/internal/store/sqlite"
)

type recordingSink struct {
	mu     sync.Mutex
	events []ledger.Event
}

func (r *recordingSink) Publish(_ context.Context, ev ledger.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingSink) kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Kind)
	}
	return out
}

func openStore(t *testing.T) *sqlite.Store {
	t.Helper()
	st, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func newService(t *testing.T, opts ledger.Options) *ledger.Service {
	t.Helper()
	return ledger.NewService(openStore(t), slog.New(slog.NewTextHandler(io.Discard, nil)), opts)
}

func register(t *testing.T, svc *ledger.Service, name string) ledger.Identity {
	t.Helper()
	p, err := svc.Register(context.Background(), ledger.RegisterInput{ID: uuid.NewString(), DisplayName: name})
	require.NoError(t, err)
	return p
}

func TestRegisterIsStrict(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, ledger.Options{})
	id := uuid.NewString()

	p, err := svc.Register(ctx, ledger.RegisterInput{ID: id, DisplayName: "Clary", Category: "Shadowhunter"})
	require.NoError(t, err)
	require.Equal(t, int64(0), p.Balance)
	require.Equal(t, ledger.StartingLevel, p.Level)
	require.Equal(t, ledger.StartingVitality, p.Vitality)
	require.Equal(t, ledger.StartingStamina, p.Stamina)
	require.Equal(t, "shadowhunter", p.Category)
	require.Equal(t, "en", p.Language)

	_, err = svc.Register(ctx, ledger.RegisterInput{ID: id, DisplayName: "Someone Else"})
	require.ErrorIs(t, err, ledger.ErrAlreadyRegistered)
	require.ErrorIs(t, err, ledger.ErrConflict)

	got, err := svc.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "Clary", got.DisplayName)
	require.Equal(t, p.CreatedAt, got.CreatedAt)
}

func TestRegisterRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, ledger.Options{})
	cases := []ledger.RegisterInput{
		{ID: "u1", DisplayName: "Clary"},
		{ID: uuid.NewString(), DisplayName: "  "},
		{ID: uuid.NewString(), DisplayName: "the admin"},
		{ID: uuid.NewString(), DisplayName: "Clary", Language: "fr"},
	}
	for _, in := range cases {
		_, err := svc.Register(ctx, in)
		require.ErrorIs(t, err, ledger.ErrInvalidArgument, "input %+v", in)
	}
}

func TestGetUnknownPlayer(t *testing.T) {
	svc := newService(t, ledger.Options{})
	_, err := svc.Get(context.Background(), uuid.NewString())
	require.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestApplyPartialUpdate(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, ledger.Options{})
	p := register(t, svc, "Simon")

	_, err := svc.ApplyPartialUpdate(ctx, p.ID, ledger.PartialUpdate{})
	require.ErrorIs(t, err, ledger.ErrInvalidArgument)

	lang := "es"
	stamina := int64(12)
	got, err := svc.ApplyPartialUpdate(ctx, p.ID, ledger.PartialUpdate{Language: &lang, Stamina: &stamina})
	require.NoError(t, err)
	require.Equal(t, "es", got.Language)
	require.Equal(t, int64(12), got.Stamina)
	require.Equal(t, "Simon", got.DisplayName)
	require.Equal(t, ledger.StartingVitality, got.Vitality)

	neg := int64(-1)
	_, err = svc.ApplyPartialUpdate(ctx, p.ID, ledger.PartialUpdate{Experience: &neg})
	require.ErrorIs(t, err, ledger.ErrInvalidArgument)

	_, err = svc.ApplyPartialUpdate(ctx, uuid.NewString(), ledger.PartialUpdate{Language: &lang})
	require.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestAdjustBalanceClampPolicy(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, ledger.Options{})
	p := register(t, svc, "Luke")

	res, err := svc.AdjustBalance(ctx, p.ID, ledger.FieldVitality, -95)
	require.NoError(t, err)
	require.Equal(t, int64(5), res.Value)

	res, err = svc.AdjustBalance(ctx, p.ID, ledger.FieldVitality, -1_000_000)
	require.NoError(t, err)
	require.Equal(t, int64(5), res.Previous)
	require.Equal(t, int64(0), res.Value)
	require.True(t, res.Clamped)

	res, err = svc.AdjustBalance(ctx, p.ID, ledger.FieldLevel, -50)
	require.NoError(t, err)
	require.Equal(t, int64(1), res.Value)

	_, err = svc.AdjustBalance(ctx, p.ID, ledger.FieldBalance, 5)
	require.NoError(t, err)
	_, err = svc.AdjustBalance(ctx, p.ID, ledger.FieldBalance, -1_000_000)
	require.ErrorIs(t, err, ledger.ErrInsufficientFunds)

	got, err := svc.Get(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, int64(5), got.Balance)
	require.Equal(t, int64(0), got.Vitality)

	_, err = svc.AdjustBalance(ctx, p.ID, ledger.Field("fear"), 1)
	require.ErrorIs(t, err, ledger.ErrInvalidArgument)
	_, err = svc.AdjustBalance(ctx, uuid.NewString(), ledger.FieldBalance, 1)
	require.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestConcurrentPurchasesSerialize(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, ledger.Options{})
	p := register(t, svc, "Magnus")
	_, err := svc.AdjustBalance(ctx, p.ID, ledger.FieldBalance, 100)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Purchase(ctx, ledger.PurchaseInput{PlayerID: p.ID, ItemCode: "x", Price: 60})
		}(i)
	}
	wg.Wait()

	var ok, short int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ledger.ErrInsufficientFunds):
			short++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, 1, ok)
	require.Equal(t, 1, short)

	got, err := svc.Get(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, int64(40), got.Balance)

	sales, err := svc.ListSales(ctx, p.ID, 0)
	require.NoError(t, err)
	require.Len(t, sales, 1)
}

func TestPurchaseScenario(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, ledger.Options{})
	u1 := register(t, svc, "u1")
	require.Equal(t, int64(0), u1.Balance)

	res, err := svc.AdjustBalance(ctx, u1.ID, ledger.FieldBalance, 100)
	require.NoError(t, err)
	require.Equal(t, int64(100), res.Value)

	sale, err := svc.Purchase(ctx, ledger.PurchaseInput{PlayerID: u1.ID, ItemCode: "sword", Price: 75})
	require.NoError(t, err)
	require.Equal(t, u1.ID, sale.BuyerID)
	require.Equal(t, "sword", sale.ItemCode)
	require.Equal(t, int64(75), sale.Price)
	require.Equal(t, int64(25), sale.Balance)

	_, err = svc.Purchase(ctx, ledger.PurchaseInput{PlayerID: u1.ID, ItemCode: "shield", Price: 50})
	require.ErrorIs(t, err, ledger.ErrInsufficientFunds)

	got, err := svc.Get(ctx, u1.ID)
	require.NoError(t, err)
	require.Equal(t, int64(25), got.Balance)

	sales, err := svc.ListSales(ctx, u1.ID, 10)
	require.NoError(t, err)
	require.Len(t, sales, 1)
	require.Equal(t, sale.ID, sales[0].ID)
}

func TestPurchaseResolvesCatalogPrice(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, ledger.Options{})
	p := register(t, svc, "Isabelle")
	_, err := svc.AdjustBalance(ctx, p.ID, ledger.FieldBalance, 200)
	require.NoError(t, err)

	sale, err := svc.Purchase(ctx, ledger.PurchaseInput{PlayerID: p.ID, ItemCode: "Seraph_Blade"})
	require.NoError(t, err)
	require.Equal(t, "seraph_blade", sale.ItemCode)
	require.Equal(t, int64(150), sale.Price)

	_, err = svc.Purchase(ctx, ledger.PurchaseInput{PlayerID: p.ID, ItemCode: "mortal_cup"})
	require.ErrorIs(t, err, ledger.ErrInvalidArgument)
	_, err = svc.Purchase(ctx, ledger.PurchaseInput{PlayerID: p.ID, ItemCode: "sword", Price: -1})
	require.ErrorIs(t, err, ledger.ErrInvalidArgument)
	_, err = svc.Purchase(ctx, ledger.PurchaseInput{PlayerID: uuid.NewString(), ItemCode: "sword"})
	require.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestPurchaseIdempotencyKey(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, ledger.Options{})
	p := register(t, svc, "Alec")
	_, err := svc.AdjustBalance(ctx, p.ID, ledger.FieldBalance, 10)
	require.NoError(t, err)

	in := ledger.PurchaseInput{PlayerID: p.ID, ItemCode: "witchlight", Price: 25, IdempotencyKey: "req-1"}
	_, err = svc.Purchase(ctx, in)
	require.ErrorIs(t, err, ledger.ErrInsufficientFunds)

	// The failed attempt rolled back, so the key is still free.
	_, err = svc.AdjustBalance(ctx, p.ID, ledger.FieldBalance, 40)
	require.NoError(t, err)
	_, err = svc.Purchase(ctx, in)
	require.NoError(t, err)

	_, err = svc.Purchase(ctx, in)
	require.ErrorIs(t, err, ledger.ErrDuplicateRequest)

	got, err := svc.Get(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, int64(25), got.Balance)
}

func TestPruneRequestKeys(t *testing.T) {
	ctx := context.Background()
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := newService(t, ledger.Options{Now: func() time.Time { return clock }})
	p := register(t, svc, "Isabelle")
	_, err := svc.AdjustBalance(ctx, p.ID, ledger.FieldBalance, 200)
	require.NoError(t, err)

	in := ledger.PurchaseInput{PlayerID: p.ID, ItemCode: "stele", IdempotencyKey: "req-7"}
	_, err = svc.Purchase(ctx, in)
	require.NoError(t, err)

	n, err := svc.PruneRequestKeys(ctx, 24*time.Hour)
	require.NoError(t, err)
	require.Zero(t, n)
	_, err = svc.Purchase(ctx, in)
	require.ErrorIs(t, err, ledger.ErrDuplicateRequest)

	clock = clock.Add(25 * time.Hour)
	n, err = svc.PruneRequestKeys(ctx, 24*time.Hour)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	sale, err := svc.Purchase(ctx, in)
	require.NoError(t, err)
	require.Equal(t, int64(80), sale.Balance)

	_, err = svc.PruneRequestKeys(ctx, 0)
	require.ErrorIs(t, err, ledger.ErrInvalidArgument)
}

func TestWagerUsesInjectedChance(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	winner := ledger.NewService(st, logger, ledger.Options{Chance: ledger.FixedChance(0.1)})
	loser := ledger.NewService(st, logger, ledger.Options{Chance: ledger.FixedChance(0.9)})

	p := register(t, winner, "Jace")
	_, err := winner.AdjustBalance(ctx, p.ID, ledger.FieldBalance, 100)
	require.NoError(t, err)

	res, err := winner.Wager(ctx, p.ID, 40)
	require.NoError(t, err)
	require.True(t, res.Won)
	require.Equal(t, int64(140), res.Balance)

	res, err = loser.Wager(ctx, p.ID, 40)
	require.NoError(t, err)
	require.False(t, res.Won)
	require.Equal(t, int64(100), res.Balance)

	_, err = loser.Wager(ctx, p.ID, 101)
	require.ErrorIs(t, err, ledger.ErrInsufficientFunds)
	_, err = loser.Wager(ctx, p.ID, 0)
	require.ErrorIs(t, err, ledger.ErrInvalidArgument)
}

func TestSeededChanceIsReproducible(t *testing.T) {
	a, b := ledger.NewChance(42), ledger.NewChance(42)
	for i := 0; i < 10; i++ {
		require.Equal(t, a.Float64(), b.Float64())
	}
}

func TestClaimExclusivity(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, ledger.Options{})
	a := register(t, svc, "Valentine")
	b := register(t, svc, "Jocelyn")

	c, err := svc.Claim(ctx, "Crown", a.ID)
	require.NoError(t, err)
	require.Equal(t, a.ID, c.OwnerID)

	_, err = svc.Claim(ctx, "Crown", b.ID)
	require.ErrorIs(t, err, ledger.ErrAlreadyOwned)
	require.ErrorIs(t, err, ledger.ErrConflict)

	_, err = svc.Claim(ctx, "Crown", a.ID)
	require.ErrorIs(t, err, ledger.ErrAlreadyOwned)

	got, err := svc.GetClaim(ctx, "Crown")
	require.NoError(t, err)
	require.Equal(t, a.ID, got.OwnerID)

	_, err = svc.GetClaim(ctx, "Mortal Sword")
	require.ErrorIs(t, err, ledger.ErrNotFound)
	_, err = svc.Claim(ctx, "Mortal Sword", uuid.NewString())
	require.ErrorIs(t, err, ledger.ErrNotFound)

	held, err := svc.ListClaims(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, held, 1)

	// Purging the owner releases the claim; the record stays.
	require.NoError(t, svc.Purge(ctx, a.ID))
	got, err = svc.GetClaim(ctx, "Crown")
	require.NoError(t, err)
	require.False(t, got.Owned())

	c, err = svc.Claim(ctx, "Crown", b.ID)
	require.NoError(t, err)
	require.Equal(t, b.ID, c.OwnerID)

	require.NoError(t, svc.PurgeClaim(ctx, "Crown"))
	require.NoError(t, svc.PurgeClaim(ctx, "Crown"))
	_, err = svc.GetClaim(ctx, "Crown")
	require.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestConcurrentClaimsSingleWinner(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, ledger.Options{})
	players := make([]ledger.Identity, 4)
	for i := range players {
		players[i] = register(t, svc, "claimant")
	}

	var wg sync.WaitGroup
	errs := make([]error, len(players))
	for i, p := range players {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, errs[i] = svc.Claim(ctx, "Lake Lynn", id)
		}(i, p.ID)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
			continue
		}
		require.ErrorIs(t, err, ledger.ErrAlreadyOwned)
	}
	require.Equal(t, 1, winners)
}

func TestBondRules(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, ledger.Options{})
	a := register(t, svc, "Jace")
	b := register(t, svc, "Alec")
	c := register(t, svc, "Clary")

	_, err := svc.CreateBond(ctx, ledger.BondInput{IDA: a.ID, IDB: a.ID, Kind: "parabatai"})
	require.ErrorIs(t, err, ledger.ErrInvalidArgument)
	_, err = svc.CreateBond(ctx, ledger.BondInput{IDA: a.ID, IDB: b.ID, Kind: "nemesis"})
	require.ErrorIs(t, err, ledger.ErrInvalidArgument)
	_, err = svc.CreateBond(ctx, ledger.BondInput{IDA: a.ID, IDB: b.ID, Kind: "parabatai", InitiatorID: c.ID})
	require.ErrorIs(t, err, ledger.ErrInvalidArgument)

	bond, err := svc.CreateBond(ctx, ledger.BondInput{IDA: a.ID, IDB: b.ID, Kind: "parabatai"})
	require.NoError(t, err)
	require.True(t, bond.Exclusive)
	require.Equal(t, a.ID, bond.InitiatorID)

	_, err = svc.CreateBond(ctx, ledger.BondInput{IDA: a.ID, IDB: c.ID, Kind: "parabatai"})
	require.ErrorIs(t, err, ledger.ErrAlreadyBonded)
	_, err = svc.CreateBond(ctx, ledger.BondInput{IDA: c.ID, IDB: b.ID, Kind: "parabatai"})
	require.ErrorIs(t, err, ledger.ErrConflict)

	partner, err := svc.Partner(ctx, b.ID, "parabatai")
	require.NoError(t, err)
	require.Equal(t, a.ID, partner.PartnerID)
	require.Equal(t, bond.BondID, partner.BondID)

	require.NoError(t, svc.BreakBond(ctx, b.ID, a.ID, "parabatai"))
	require.NoError(t, svc.BreakBond(ctx, a.ID, b.ID, "parabatai"))

	_, err = svc.Partner(ctx, a.ID, "parabatai")
	require.ErrorIs(t, err, ledger.ErrNotFound)

	_, err = svc.CreateBond(ctx, ledger.BondInput{IDA: a.ID, IDB: c.ID, Kind: "parabatai"})
	require.NoError(t, err)
}

func TestNonExclusiveBonds(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, ledger.Options{})
	a := register(t, svc, "Magnus")
	b := register(t, svc, "Catarina")
	c := register(t, svc, "Ragnor")

	_, err := svc.CreateBond(ctx, ledger.BondInput{IDA: a.ID, IDB: b.ID, Kind: "friendship"})
	require.NoError(t, err)
	_, err = svc.CreateBond(ctx, ledger.BondInput{IDA: a.ID, IDB: c.ID, Kind: "friendship"})
	require.NoError(t, err)
	_, err = svc.CreateBond(ctx, ledger.BondInput{IDA: b.ID, IDB: a.ID, Kind: "friendship"})
	require.ErrorIs(t, err, ledger.ErrAlreadyBonded)

	bonds, err := svc.ListBonds(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, bonds, 2)

	_, err = svc.Partner(ctx, a.ID, "friendship")
	require.ErrorIs(t, err, ledger.ErrInvalidArgument)

	// Purge removes both mirrored rows.
	require.NoError(t, svc.Purge(ctx, b.ID))
	bonds, err = svc.ListBonds(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, bonds, 1)
	require.Equal(t, c.ID, bonds[0].PartnerID)
}

func TestDirectedLinks(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, ledger.Options{})
	parent := register(t, svc, "Jocelyn")
	child := register(t, svc, "Clary")

	l, err := svc.RecordDirectedLink(ctx, ledger.LinkInput{SourceID: parent.ID, TargetID: child.ID, LinkType: "parent", Label: "adopted"})
	require.NoError(t, err)
	require.Equal(t, "adopted", l.Label)

	// Append-only: the same link may be recorded again.
	_, err = svc.RecordDirectedLink(ctx, ledger.LinkInput{SourceID: parent.ID, TargetID: child.ID, LinkType: "parent"})
	require.NoError(t, err)

	_, err = svc.RecordDirectedLink(ctx, ledger.LinkInput{SourceID: child.ID, TargetID: child.ID, LinkType: "parent"})
	require.ErrorIs(t, err, ledger.ErrInvalidArgument)
	_, err = svc.RecordDirectedLink(ctx, ledger.LinkInput{SourceID: parent.ID, TargetID: child.ID, LinkType: "nemesis"})
	require.ErrorIs(t, err, ledger.ErrInvalidArgument)
	_, err = svc.RecordDirectedLink(ctx, ledger.LinkInput{SourceID: parent.ID, TargetID: uuid.NewString(), LinkType: "parent"})
	require.ErrorIs(t, err, ledger.ErrNotFound)

	out, err := svc.ListLinks(ctx, parent.ID, ledger.DirectionOut, 0)
	require.NoError(t, err)
	require.Len(t, out, 2)
	in, err := svc.ListLinks(ctx, child.ID, ledger.DirectionIn, 0)
	require.NoError(t, err)
	require.Len(t, in, 2)
	none, err := svc.ListLinks(ctx, child.ID, ledger.DirectionOut, 0)
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestPurgeAndReset(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, ledger.Options{})
	a := register(t, svc, "Hodge")
	register(t, svc, "Maryse")

	require.NoError(t, svc.Purge(ctx, a.ID))
	require.NoError(t, svc.Purge(ctx, a.ID))
	_, err := svc.Get(ctx, a.ID)
	require.ErrorIs(t, err, ledger.ErrNotFound)

	n, err := svc.Reset(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}

func TestEventsFollowCommits(t *testing.T) {
	ctx := context.Background()
	sink := &recordingSink{}
	svc := newService(t, ledger.Options{Sinks: []ledger.EventSink{sink}})
	p := register(t, svc, "Raphael")

	_, err := svc.Purchase(ctx, ledger.PurchaseInput{PlayerID: p.ID, ItemCode: "sword"})
	require.ErrorIs(t, err, ledger.ErrInsufficientFunds)
	_, err = svc.AdjustBalance(ctx, p.ID, ledger.FieldBalance, 75)
	require.NoError(t, err)
	_, err = svc.Purchase(ctx, ledger.PurchaseInput{PlayerID: p.ID, ItemCode: "sword"})
	require.NoError(t, err)

	require.Equal(t, []string{ledger.EventPlayerRegistered, ledger.EventBalanceAdjusted, ledger.EventPurchase}, sink.kinds())
}

func TestClosedStoreIsUnavailable(t *testing.T) {
	st := openStore(t)
	svc := ledger.NewService(st, slog.New(slog.NewTextHandler(io.Discard, nil)), ledger.Options{})
	require.NoError(t, st.Close())

	_, err := svc.Get(context.Background(), uuid.NewString())
	require.ErrorIs(t, err, ledger.ErrUnavailable)
	require.ErrorIs(t, svc.Ping(context.Background()), ledger.ErrUnavailable)
}

// stallingStore holds InsertSale until the operation deadline passes.
type stallingStore struct {
	ledger.Store
}

func (s stallingStore) InTx(ctx context.Context, fn func(tx ledger.Tx) error) error {
	return s.Store.InTx(ctx, func(tx ledger.Tx) error {
		return fn(stallingTx{Tx: tx})
	})
}

type stallingTx struct {
	ledger.Tx
}

func (t stallingTx) InsertSale(ctx context.Context, _ ledger.SaleRecord) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestOpTimeoutRollsBack(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := ledger.NewService(st, logger, ledger.Options{})
	p := register(t, svc, "Simon")
	_, err := svc.AdjustBalance(ctx, p.ID, ledger.FieldBalance, 100)
	require.NoError(t, err)

	slow := ledger.NewService(stallingStore{Store: st}, logger, ledger.Options{OpTimeout: 20 * time.Millisecond})
	_, err = slow.Purchase(ctx, ledger.PurchaseInput{PlayerID: p.ID, ItemCode: "sword", Price: 75, IdempotencyKey: "req-slow"})
	require.ErrorIs(t, err, ledger.ErrUnavailable)

	got, err := svc.Get(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, int64(100), got.Balance)

	sales, err := svc.ListSales(ctx, p.ID, 0)
	require.NoError(t, err)
	require.Empty(t, sales)

	// The key was released with the rest of the transaction.
	sale, err := svc.Purchase(ctx, ledger.PurchaseInput{PlayerID: p.ID, ItemCode: "sword", Price: 75, IdempotencyKey: "req-slow"})
	require.NoError(t, err)
	require.Equal(t, int64(25), sale.Balance)
}

func TestStoresSharingFileSerializeWriters(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "shared.db")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	services := make([]*ledger.Service, 2)
	for i := range services {
		st, err := sqlite.Open(ctx, path)
		require.NoError(t, err)
		t.Cleanup(func() { _ = st.Close() })
		services[i] = ledger.NewService(st, logger, ledger.Options{})
	}

	p := register(t, services[0], "Alec")
	_, err := services[0].AdjustBalance(ctx, p.ID, ledger.FieldBalance, 100)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 10)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = services[i%2].Purchase(ctx, ledger.PurchaseInput{PlayerID: p.ID, ItemCode: "arrow", Price: 10})
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	got, err := services[1].Get(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, int64(0), got.Balance)

	sales, err := services[0].ListSales(ctx, p.ID, 0)
	require.NoError(t, err)
	require.Len(t, sales, 10)
}
