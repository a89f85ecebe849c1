package service

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/Fi44er/giftcase/internal/catalog"
	"github.com/Fi44er/giftcase/internal/market"
	"github.com/Fi44er/giftcase/internal/models"
	"github.com/Fi44er/giftcase/internal/tonapi"
	"github.com/Fi44er/giftcase/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Repository interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error

	GetUser(ctx context.Context, telegramID int64) (*models.User, error)
	CreateUser(ctx context.Context, user *models.User) error
	SaveUser(ctx context.Context, user *models.User) error
	UpdateUsername(ctx context.Context, telegramID int64, username string) error
	LockUsers(ctx context.Context, ids ...int64) ([]*models.User, error)

	CreateItems(ctx context.Context, items []*models.InventoryItem) error
	GetItemForUser(ctx context.Context, id uuid.UUID, userID int64) (*models.InventoryItem, error)
	ListItems(ctx context.Context, userID int64) ([]*models.InventoryItem, error)
	SaveItem(ctx context.Context, item *models.InventoryItem) error
	DeleteItem(ctx context.Context, id uuid.UUID) error
	DeleteItems(ctx context.Context, userID int64, ids []uuid.UUID) (int64, error)

	CreateDeposit(ctx context.Context, deposit *models.Deposit) error
	GetDeposit(ctx context.Context, id uuid.UUID) (*models.Deposit, error)
	LockDeposit(ctx context.Context, id uuid.UUID) (*models.Deposit, error)
	GetPendingDepositByUser(ctx context.Context, userID int64) (*models.Deposit, error)
	ListPendingDeposits(ctx context.Context) ([]*models.Deposit, error)
	ListExpiredPendingDeposits(ctx context.Context, now time.Time) ([]*models.Deposit, error)
	FingerprintInUse(ctx context.Context, amountNano int64) (bool, error)
	EventMatched(ctx context.Context, eventID string) (bool, error)
	SaveDeposit(ctx context.Context, deposit *models.Deposit) error

	CreatePromoRedemption(ctx context.Context, redemption *models.PromoRedemption) error
	HasRedeemed(ctx context.Context, userID int64, code string) (bool, error)
}

// Random must be safe for concurrent use.
type Random interface {
	Float64() float64
	IntN(n int) int
}

type ChainScanner interface {
	IncomingTransfers(ctx context.Context, address string, limit int) ([]tonapi.Transfer, error)
}

type Marketplace interface {
	Warmup(ctx context.Context) error
	SearchListings(ctx context.Context, f market.ListingFilter) ([]market.Listing, error)
	CheckReceiver(ctx context.Context, receiverID int64) error
	Purchase(ctx context.Context, l market.Listing, receiverID int64) (*market.PurchaseResult, error)
}

// Notifier is told about committed events. Implementations must not block for long.
type Notifier interface {
	DepositCompleted(userID int64, amount, balance decimal.Decimal)
	ReferralCredited(referrerID int64, bonus decimal.Decimal)
	GiftSent(userID int64, name string)
}

type Options struct {
	DepositAddress   string
	DepositComment   string
	DepositTTL       time.Duration
	DepositGrace     time.Duration
	DepositMinAmount decimal.Decimal
	DepositScanLimit int
	ReferralPercent  decimal.Decimal

	MarketStatusTimeout   time.Duration
	MarketPurchaseTimeout time.Duration
}

type Service struct {
	repo     Repository
	catalog  *catalog.Catalog
	locks    *utils.KeyedMutex
	rnd      Random
	chain    ChainScanner
	market   Marketplace
	notifier Notifier
	opts     Options
	logger   *utils.Logger
	now      func() time.Time

	// fingerprintSem serializes fingerprint allocation so the in-use check sees committed rows.
	fingerprintSem chan struct{}
}

type Option func(*Service)

func WithRandom(r Random) Option { return func(s *Service) { s.rnd = r } }

func WithChainScanner(c ChainScanner) Option { return func(s *Service) { s.chain = c } }

func WithMarketplace(m Marketplace) Option { return func(s *Service) { s.market = m } }

func WithNotifier(n Notifier) Option { return func(s *Service) { s.notifier = n } }

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func NewService(repo Repository, cat *catalog.Catalog, opts Options, logger *utils.Logger, options ...Option) *Service {
	if opts.DepositTTL <= 0 {
		opts.DepositTTL = 30 * time.Minute
	}
	if opts.DepositScanLimit <= 0 {
		opts.DepositScanLimit = 50
	}
	if opts.MarketStatusTimeout <= 0 {
		opts.MarketStatusTimeout = 10 * time.Second
	}
	if opts.MarketPurchaseTimeout <= 0 {
		opts.MarketPurchaseTimeout = 60 * time.Second
	}

	s := &Service{
		repo:     repo,
		catalog:  cat,
		locks:    utils.NewKeyedMutex(),
		rnd:      globalRandom{},
		notifier: nopNotifier{},
		opts:     opts,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },

		fingerprintSem: make(chan struct{}, 1),
	}
	for _, o := range options {
		o(s)
	}
	return s
}

func (s *Service) Catalog() *catalog.Catalog {
	return s.catalog
}

func (s *Service) MarketEnabled() bool {
	return s.market != nil
}

// withAccounts is the only path to a ledger mutation: per-user in-process locks in
// ascending id order, one database transaction, and FOR UPDATE re-reads of every account.
func (s *Service) withAccounts(ctx context.Context, ids []int64, fn func(ctx context.Context, users map[int64]*models.User) error) error {
	unlock, err := s.locks.Lock(ctx, ids...)
	if err != nil {
		return err
	}
	defer unlock()

	return s.repo.WithinTransaction(ctx, func(ctx context.Context) error {
		locked, err := s.repo.LockUsers(ctx, ids...)
		if err != nil {
			return err
		}
		users := make(map[int64]*models.User, len(locked))
		for _, u := range locked {
			users[u.TelegramID] = u
		}
		for _, id := range ids {
			if _, ok := users[id]; !ok {
				return ErrUserNotFound
			}
		}
		return fn(ctx, users)
	})
}

func (s *Service) withAccount(ctx context.Context, userID int64, fn func(ctx context.Context, user *models.User) error) error {
	return s.withAccounts(ctx, []int64{userID}, func(ctx context.Context, users map[int64]*models.User) error {
		return fn(ctx, users[userID])
	})
}

type globalRandom struct{}

func (globalRandom) Float64() float64 { return rand.Float64() }
func (globalRandom) IntN(n int) int   { return rand.IntN(n) }

type nopNotifier struct{}

func (nopNotifier) DepositCompleted(int64, decimal.Decimal, decimal.Decimal) {}
func (nopNotifier) ReferralCredited(int64, decimal.Decimal)                  {}
func (nopNotifier) GiftSent(int64, string)                                   {}
