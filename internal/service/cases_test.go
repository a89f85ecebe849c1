package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Fi44er/giftcase/internal/upgrade"
	"github.com/google/uuid"
)

func TestOpenSpendsExactBalance(t *testing.T) {
	env := newTestEnv(t)
	env.user(t, 1, "20.00")

	res, err := env.svc.Open(context.Background(), 1, "rich", 1)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	assertMoney(t, "balance", res.Balance, "0.00")
	if len(res.Items) != 1 {
		t.Fatalf("expected one item, got %d", len(res.Items))
	}

	profile, err := env.svc.Profile(context.Background(), 1)
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if len(profile.Items) != 1 {
		t.Fatalf("expected one stored item, got %d", len(profile.Items))
	}
	assertMoney(t, "winnings", profile.User.Winnings, res.Items[0].Value.String())
}

func TestOpenBatchChargesPerDraw(t *testing.T) {
	env := newTestEnv(t)
	env.user(t, 1, "10.00")
	env.rnd.floats = []float64{0.0, 0.5, 0.99}

	res, err := env.svc.Open(context.Background(), 1, "starter", 3)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	assertMoney(t, "cost", res.Cost, "6.00")
	assertMoney(t, "balance", res.Balance, "4.00")
	if len(res.Items) != 3 || res.Items[0].Name != "Lol Pop" || res.Items[2].Name != "Toy Bear" {
		t.Fatalf("unexpected items %v", res.Items)
	}
}

func TestOpenGivesUpWhenContextEndsWhileQueued(t *testing.T) {
	env := newTestEnv(t)
	env.user(t, 1, "20.00")

	unlock, err := env.svc.locks.Lock(context.Background(), 1)
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := env.svc.Open(ctx, 1, "rich", 1); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context.DeadlineExceeded, got %v", err)
	}
	assertMoney(t, "balance", env.reload(t, 1).Balance, "20.00")
}

func TestConcurrentOpensDebitOnce(t *testing.T) {
	env := newTestEnv(t)
	env.user(t, 1, "20.00")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.svc.Open(context.Background(), 1, "rich", 1)
		}(i)
	}
	wg.Wait()

	ok, insufficient := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrInsufficientBalance):
			insufficient++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 || insufficient != 1 {
		t.Fatalf("expected one success and one insufficient balance, got %d/%d", ok, insufficient)
	}
	assertMoney(t, "balance", env.reload(t, 1).Balance, "0")

	items, _ := env.repo.ListItems(context.Background(), 1)
	if len(items) != 1 {
		t.Fatalf("expected exactly one item, got %d", len(items))
	}
}

func TestOpenValidation(t *testing.T) {
	env := newTestEnv(t)
	env.user(t, 1, "1.00")
	ctx := context.Background()

	tests := []struct {
		name   string
		caseID string
		count  int
		want   error
	}{
		{"unknown case", "nope", 1, ErrInvalidParameter},
		{"zero count", "starter", 0, ErrInvalidParameter},
		{"too many", "starter", 4, ErrInvalidParameter},
		{"too poor", "starter", 1, ErrInsufficientBalance},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := env.svc.Open(ctx, 1, tt.caseID, tt.count); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
	assertMoney(t, "balance", env.reload(t, 1).Balance, "1.00")
}

func TestUpgradeOutcomes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.user(t, 1, "0")
	env.setWinnings(t, 1, "50.00")

	win := env.item(t, 1, "Jelly Bunny", "3.10")
	env.rnd.floats = []float64{0.10}
	res, err := env.svc.Upgrade(ctx, 1, win.ID, "2")
	if err != nil {
		t.Fatalf("upgrade: %v", err)
	}
	if !res.Success || res.State != upgrade.Success {
		t.Fatalf("expected success on roll 10 < 35, got %s", res.State)
	}
	assertMoney(t, "new value", res.Item.Value, "6.20")
	assertMoney(t, "factor", res.Item.Multiplier, "2")
	assertMoney(t, "winnings", env.reload(t, 1).Winnings, "53.10")

	env.rnd.floats = []float64{0.90}
	res, err = env.svc.Upgrade(ctx, 1, win.ID, "1.5")
	if err != nil {
		t.Fatalf("upgrade: %v", err)
	}
	if res.Success || res.State != upgrade.Burned {
		t.Fatalf("expected burn on roll 90, got %s", res.State)
	}
	assertMoney(t, "winnings", env.reload(t, 1).Winnings, "46.90")
	if got, _ := env.repo.GetItemForUser(ctx, win.ID, 1); got != nil {
		t.Fatal("expected burned item to be gone")
	}
}

func TestUpgradeBurnFloorsWinnings(t *testing.T) {
	env := newTestEnv(t)
	env.user(t, 1, "0")
	env.setWinnings(t, 1, "1.00")
	it := env.item(t, 1, "Toy Bear", "16.00")

	env.rnd.floats = []float64{0.999}
	if _, err := env.svc.Upgrade(context.Background(), 1, it.ID, "20"); err != nil {
		t.Fatalf("upgrade: %v", err)
	}
	assertMoney(t, "winnings", env.reload(t, 1).Winnings, "0")
}

func TestUpgradeRejections(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.user(t, 1, "0")
	env.user(t, 2, "0")
	ext := env.item(t, 1, "Telegram Premium 3m", "9.50")
	foreign := env.item(t, 2, "Lol Pop", "1.20")
	own := env.item(t, 1, "Lol Pop", "1.20")

	if _, err := env.svc.Upgrade(ctx, 1, own.ID, "4"); !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("expected ErrInvalidParameter for unsupported multiplier, got %v", err)
	}
	if _, err := env.svc.Upgrade(ctx, 1, ext.ID, "2"); !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("expected ErrInvalidParameter for external prize, got %v", err)
	}
	if _, err := env.svc.Upgrade(ctx, 1, foreign.ID, "2"); !errors.Is(err, ErrItemNotFound) {
		t.Fatalf("expected ErrItemNotFound for foreign item, got %v", err)
	}
	if _, err := env.svc.Upgrade(ctx, 1, uuid.New(), "2"); !errors.Is(err, ErrItemNotFound) {
		t.Fatalf("expected ErrItemNotFound for missing item, got %v", err)
	}
}

func TestConvertAndSellAll(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.user(t, 1, "1.00")
	a := env.item(t, 1, "Lol Pop", "1.20")
	env.item(t, 1, "Toy Bear", "16.00")
	env.item(t, 1, "Swiss Watch", "38.00")
	env.setWinnings(t, 1, "40.00")

	conv, err := env.svc.Convert(ctx, 1, a.ID)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	assertMoney(t, "balance", conv.Balance, "2.20")
	assertMoney(t, "winnings after convert", env.reload(t, 1).Winnings, "38.80")
	if _, err := env.svc.Convert(ctx, 1, a.ID); !errors.Is(err, ErrItemNotFound) {
		t.Fatalf("expected ErrItemNotFound on double convert, got %v", err)
	}

	sold, err := env.svc.SellAll(ctx, 1)
	if err != nil {
		t.Fatalf("sell all: %v", err)
	}
	if sold.Sold != 2 {
		t.Fatalf("expected 2 sold, got %d", sold.Sold)
	}
	assertMoney(t, "credited", sold.Credited, "54.00")
	u := env.reload(t, 1)
	assertMoney(t, "balance", u.Balance, "56.20")
	assertMoney(t, "winnings after sell all", u.Winnings, "0")

	empty, err := env.svc.SellAll(ctx, 1)
	if err != nil || empty.Sold != 0 {
		t.Fatalf("expected nothing to sell, got %+v (%v)", empty, err)
	}
}
