package service

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Fi44er/giftcase/internal/catalog"
	"github.com/Fi44er/giftcase/internal/market"
	"github.com/Fi44er/giftcase/internal/models"
	"github.com/Fi44er/giftcase/internal/repository"
	"github.com/Fi44er/giftcase/internal/tonapi"
	"github.com/Fi44er/giftcase/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

const testComment = "giftcase"

var testDepositAddress = "0:" + strings.Repeat("ab", 32)

type testEnv struct {
	svc      *Service
	repo     *repository.Repository
	clock    *fakeClock
	rnd      *scriptedRandom
	chain    *fakeChain
	notifier *recordingNotifier
}

func newTestEnv(t *testing.T, options ...Option) *testEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.NewReplacer("/", "_", " ", "_").Replace(t.Name()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormLogger.Default.LogMode(gormLogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(&models.User{}, &models.InventoryItem{}, &models.Deposit{}, &models.PromoRedemption{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	cat, err := catalog.Default()
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}

	env := &testEnv{
		repo:     repository.NewRepository(db, utils.NopLogger()),
		clock:    &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		rnd:      &scriptedRandom{},
		chain:    &fakeChain{},
		notifier: &recordingNotifier{},
	}
	opts := Options{
		DepositAddress:   testDepositAddress,
		DepositComment:   testComment,
		DepositTTL:       30 * time.Minute,
		DepositGrace:     2 * time.Minute,
		DepositMinAmount: decimal.RequireFromString("0.1"),
		DepositScanLimit: 50,
		ReferralPercent:  decimal.NewFromInt(10),
	}
	base := []Option{
		WithRandom(env.rnd),
		WithClock(env.clock.Now),
		WithChainScanner(env.chain),
		WithNotifier(env.notifier),
	}
	env.svc = NewService(env.repo, cat, opts, utils.NopLogger(), append(base, options...)...)
	return env
}

func (e *testEnv) user(t *testing.T, id int64, balance string) *models.User {
	t.Helper()
	u := &models.User{TelegramID: id, Balance: decimal.RequireFromString(balance)}
	if err := e.repo.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("create user %d: %v", id, err)
	}
	return u
}

func (e *testEnv) reload(t *testing.T, id int64) *models.User {
	t.Helper()
	u, err := e.repo.GetUser(context.Background(), id)
	if err != nil || u == nil {
		t.Fatalf("reload user %d: %v", id, err)
	}
	return u
}

func (e *testEnv) item(t *testing.T, userID int64, name, value string) *models.InventoryItem {
	t.Helper()
	entry, _ := e.svc.catalog.Entry(name)
	it := &models.InventoryItem{
		ID:         uuid.New(),
		UserID:     userID,
		Name:       name,
		Value:      decimal.RequireFromString(value),
		Multiplier: decimal.NewFromInt(1),
		Model:      entry.Model,
		Family:     entry.Family,
		External:   entry.External,
	}
	if err := e.repo.CreateItems(context.Background(), []*models.InventoryItem{it}); err != nil {
		t.Fatalf("create item: %v", err)
	}
	return it
}

func (e *testEnv) setWinnings(t *testing.T, id int64, winnings string) {
	t.Helper()
	ctx := context.Background()
	err := e.repo.WithinTransaction(ctx, func(ctx context.Context) error {
		users, err := e.repo.LockUsers(ctx, id)
		if err != nil {
			return err
		}
		users[0].Winnings = decimal.RequireFromString(winnings)
		return e.repo.SaveUser(ctx, users[0])
	})
	if err != nil {
		t.Fatalf("set winnings: %v", err)
	}
}

func assertMoney(t *testing.T, what string, got decimal.Decimal, want string) {
	t.Helper()
	if !got.Equal(decimal.RequireFromString(want)) {
		t.Fatalf("expected %s %s, got %s", what, want, got)
	}
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// scriptedRandom replays queued values and falls back to the global source when empty.
type scriptedRandom struct {
	mu     sync.Mutex
	floats []float64
	ints   []int
}

func (r *scriptedRandom) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.floats) == 0 {
		return rand.Float64()
	}
	f := r.floats[0]
	r.floats = r.floats[1:]
	return f
}

func (r *scriptedRandom) IntN(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.ints) == 0 {
		return rand.IntN(n)
	}
	v := r.ints[0]
	r.ints = r.ints[1:]
	return v % n
}

type fakeChain struct {
	mu        sync.Mutex
	transfers []tonapi.Transfer
	err       error
	calls     int
}

func (f *fakeChain) add(t tonapi.Transfer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transfers = append(f.transfers, t)
}

func (f *fakeChain) IncomingTransfers(ctx context.Context, address string, limit int) ([]tonapi.Transfer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([]tonapi.Transfer, len(f.transfers))
	copy(out, f.transfers)
	return out, nil
}

type fakeMarket struct {
	mu          sync.Mutex
	listings    []market.Listing
	searchErr   error
	receiverErr error
	purchaseErr error
	purchased   []int64
	filters     []market.ListingFilter
}

func (f *fakeMarket) Warmup(ctx context.Context) error { return nil }

func (f *fakeMarket) SearchListings(ctx context.Context, filter market.ListingFilter) ([]market.Listing, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filters = append(f.filters, filter)
	return f.listings, f.searchErr
}

func (f *fakeMarket) CheckReceiver(ctx context.Context, receiverID int64) error {
	return f.receiverErr
}

func (f *fakeMarket) Purchase(ctx context.Context, l market.Listing, receiverID int64) (*market.PurchaseResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.purchaseErr != nil {
		return nil, f.purchaseErr
	}
	f.purchased = append(f.purchased, l.ID)
	return &market.PurchaseResult{ListingID: l.ID, Price: l.Price, Status: "success"}, nil
}

type recordingNotifier struct {
	mu        sync.Mutex
	deposits  []decimal.Decimal
	referrals []decimal.Decimal
	gifts     []string
}

func (n *recordingNotifier) DepositCompleted(userID int64, amount, balance decimal.Decimal) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.deposits = append(n.deposits, amount)
}

func (n *recordingNotifier) ReferralCredited(referrerID int64, bonus decimal.Decimal) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.referrals = append(n.referrals, bonus)
}

func (n *recordingNotifier) GiftSent(userID int64, name string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.gifts = append(n.gifts, name)
}
