package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Fi44er/giftcase/internal/models"
	"github.com/Fi44er/giftcase/internal/tonapi"
	"github.com/Fi44er/giftcase/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	fingerprintMin      = 10_000
	fingerprintMax      = 999_999
	fingerprintAttempts = 8
)

type DepositIntent struct {
	ID         uuid.UUID
	Amount     decimal.Decimal
	AmountNano int64
	Comment    string
	Address    string
	ExpiresAt  time.Time
}

// AmountTON is the exact amount the user must send, in TON with nine decimals.
func (d *DepositIntent) AmountTON() string {
	return utils.FromNano(d.AmountNano).StringFixed(9)
}

type DepositStatus struct {
	ID      uuid.UUID
	Status  models.DepositState
	Amount  decimal.Decimal
	Balance *decimal.Decimal
}

type ReconcileReport struct {
	Pending int
	Matched int
	Expired int
}

func (s *Service) InitiateDeposit(ctx context.Context, userID int64, rawAmount string) (*DepositIntent, error) {
	if s.opts.DepositAddress == "" {
		return nil, ErrServiceUnavailable
	}
	amount, err := decimal.NewFromString(rawAmount)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed amount %q", ErrInvalidParameter, rawAmount)
	}
	amount = utils.RoundMoney(amount)
	if !amount.IsPositive() || amount.LessThan(s.opts.DepositMinAmount) {
		return nil, fmt.Errorf("%w: amount must be at least %s", ErrInvalidParameter, s.opts.DepositMinAmount)
	}

	select {
	case s.fingerprintSem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-s.fingerprintSem }()

	var deposit *models.Deposit
	for attempt := 0; attempt < fingerprintAttempts; attempt++ {
		deposit, err = s.createDeposit(ctx, userID, amount)
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			s.logger.Warnf("Fingerprint collision for user %d, retrying (%d)", userID, attempt+1)
			continue
		}
		break
	}
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("failed to allocate a unique deposit amount: %w", err)
		}
		return nil, err
	}

	s.logger.Infof("💰 Deposit %s initiated by %d: %s TON as %d nano", deposit.ID, userID, amount, deposit.AmountNano)
	return &DepositIntent{
		ID:         deposit.ID,
		Amount:     deposit.Amount,
		AmountNano: deposit.AmountNano,
		Comment:    deposit.Comment,
		Address:    tonapi.RawToFriendly(s.opts.DepositAddress),
		ExpiresAt:  deposit.ExpiresAt,
	}, nil
}

func (s *Service) createDeposit(ctx context.Context, userID int64, amount decimal.Decimal) (*models.Deposit, error) {
	var deposit *models.Deposit
	err := s.withAccount(ctx, userID, func(ctx context.Context, user *models.User) error {
		now := s.now()

		existing, err := s.repo.GetPendingDepositByUser(ctx, userID)
		if err != nil {
			return err
		}
		// A lapsed deposit stays pending until a successful scan rules out a late-indexed transfer.
		if existing != nil {
			return fmt.Errorf("%w: %s", ErrConflictingActiveDeposit, existing.ID)
		}

		nano, err := s.allocateFingerprint(ctx, amount)
		if err != nil {
			return err
		}

		deposit = &models.Deposit{
			ID:         uuid.New(),
			UserID:     userID,
			Amount:     amount,
			AmountNano: nano,
			Comment:    s.opts.DepositComment,
			Status:     models.DepositPending,
			CreatedAt:  now,
			ExpiresAt:  now.Add(s.opts.DepositTTL),
		}
		return s.repo.CreateDeposit(ctx, deposit)
	})
	return deposit, err
}

// allocateFingerprint appends a random sub-unit suffix to the nano amount, skipping
// suffixes a pending deposit already uses.
func (s *Service) allocateFingerprint(ctx context.Context, amount decimal.Decimal) (int64, error) {
	base := utils.ToNano(amount)
	for i := 0; i < fingerprintAttempts; i++ {
		nano := base + int64(fingerprintMin+s.rnd.IntN(fingerprintMax-fingerprintMin+1))
		inUse, err := s.repo.FingerprintInUse(ctx, nano)
		if err != nil {
			return 0, err
		}
		if !inUse {
			return nano, nil
		}
	}
	return 0, fmt.Errorf("no free fingerprint after %d attempts: %w", fingerprintAttempts, gorm.ErrDuplicatedKey)
}

// VerifyDeposit reports the current state of a deposit. It never touches the chain
// or changes state; ReconcileDeposits matches and expires.
func (s *Service) VerifyDeposit(ctx context.Context, userID int64, depositID uuid.UUID) (*DepositStatus, error) {
	deposit, err := s.repo.GetDeposit(ctx, depositID)
	if err != nil {
		return nil, err
	}
	if deposit == nil || deposit.UserID != userID {
		return nil, ErrDepositNotFound
	}

	status := &DepositStatus{ID: deposit.ID, Status: deposit.Status, Amount: deposit.Amount}
	if deposit.Status == models.DepositCompleted {
		user, err := s.repo.GetUser(ctx, userID)
		if err != nil {
			return nil, err
		}
		if user != nil {
			status.Balance = &user.Balance
		}
	}
	return status, nil
}

// expireDeposit marks a lapsed deposit expired under the account lock and returns the
// state it ended in, which may be completed if reconciliation won the race.
func (s *Service) expireDeposit(ctx context.Context, d *models.Deposit) (models.DepositState, error) {
	var state models.DepositState
	err := s.withAccount(ctx, d.UserID, func(ctx context.Context, _ *models.User) error {
		current, err := s.repo.LockDeposit(ctx, d.ID)
		if err != nil {
			return err
		}
		if current == nil {
			return ErrDepositNotFound
		}
		state = current.Status
		if current.Status.Terminal() {
			return nil
		}
		current.Status = models.DepositExpired
		state = models.DepositExpired
		return s.repo.SaveDeposit(ctx, current)
	})
	if err != nil {
		return "", err
	}
	if state == models.DepositExpired {
		s.logger.Infof("⌛ Deposit %s of user %d expired", d.ID, d.UserID)
	}
	return state, nil
}

// ReconcileDeposits scans recent inbound transfers and completes pending deposits they
// match. Only a successful scan expires deposits, and only those whose expiry precedes
// the scan by more than the grace window.
func (s *Service) ReconcileDeposits(ctx context.Context) (*ReconcileReport, error) {
	report := &ReconcileReport{}
	if s.chain == nil || s.opts.DepositAddress == "" {
		return report, nil
	}

	pending, err := s.repo.ListPendingDeposits(ctx)
	if err != nil {
		return nil, err
	}
	report.Pending = len(pending)
	if len(pending) == 0 {
		return report, nil
	}

	scannedAt := s.now()
	transfers, err := s.chain.IncomingTransfers(ctx, s.opts.DepositAddress, s.opts.DepositScanLimit)
	if err != nil {
		s.logger.Warnf("Deposit scan failed, expiry sweep skipped: %v", err)
		return report, fmt.Errorf("%w: scan deposit address: %w", ErrExternalTransient, err)
	}
	report.Matched = s.matchTransfers(ctx, pending, transfers)

	expired, err := s.repo.ListExpiredPendingDeposits(ctx, scannedAt.Add(-s.opts.DepositGrace))
	if err != nil {
		return report, err
	}
	for _, d := range expired {
		state, err := s.expireDeposit(ctx, d)
		if err != nil {
			s.logger.Errorf("Failed to expire deposit %s: %v", d.ID, err)
			continue
		}
		if state == models.DepositExpired {
			report.Expired++
		}
	}

	return report, nil
}

func (s *Service) matchTransfers(ctx context.Context, pending []*models.Deposit, transfers []tonapi.Transfer) int {
	used := make(map[string]bool)
	matched := 0
	for _, d := range pending {
		for _, t := range transfers {
			if used[t.EventID] || !s.matches(d, t) {
				continue
			}
			ok, err := s.completeDeposit(ctx, d, t)
			if err != nil {
				s.logger.Errorf("Failed to complete deposit %s with event %s: %v", d.ID, t.EventID, err)
				break
			}
			used[t.EventID] = true
			if ok {
				matched++
			}
			break
		}
	}
	return matched
}

// matches requires the exact fingerprint, the exact comment, and a timestamp inside
// [created - grace, expires].
func (s *Service) matches(d *models.Deposit, t tonapi.Transfer) bool {
	if t.Amount != d.AmountNano || t.Comment != d.Comment {
		return false
	}
	ts := time.Unix(t.Timestamp, 0)
	if ts.Before(d.CreatedAt.Add(-s.opts.DepositGrace)) {
		return false
	}
	return !ts.After(d.ExpiresAt)
}

// completeDeposit credits the requested amount and the referrer bonus once. It reports
// false when the deposit was already terminal or the event already credited another deposit.
func (s *Service) completeDeposit(ctx context.Context, d *models.Deposit, t tonapi.Transfer) (bool, error) {
	owner, err := s.repo.GetUser(ctx, d.UserID)
	if err != nil {
		return false, err
	}
	if owner == nil {
		return false, ErrUserNotFound
	}

	ids := []int64{d.UserID}
	if owner.ReferrerID != nil && *owner.ReferrerID != d.UserID {
		ids = append(ids, *owner.ReferrerID)
	}

	var (
		credited bool
		balance  decimal.Decimal
		bonus    decimal.Decimal
	)
	err = s.withAccounts(ctx, ids, func(ctx context.Context, users map[int64]*models.User) error {
		current, err := s.repo.LockDeposit(ctx, d.ID)
		if err != nil {
			return err
		}
		if current == nil {
			return ErrDepositNotFound
		}
		switch {
		case current.Status == models.DepositCompleted:
			return nil
		case current.Status.Terminal():
			return ErrDepositExpired
		}

		taken, err := s.repo.EventMatched(ctx, t.EventID)
		if err != nil {
			return err
		}
		if taken {
			return nil
		}

		now := s.now()
		eventID := t.EventID
		current.Status = models.DepositCompleted
		current.MatchedEventID = &eventID
		current.CompletedAt = &now
		if err := s.repo.SaveDeposit(ctx, current); err != nil {
			return err
		}

		user := users[d.UserID]
		user.Balance = utils.RoundMoney(user.Balance.Add(current.Amount))
		if err := s.repo.SaveUser(ctx, user); err != nil {
			return err
		}
		balance = user.Balance

		if len(ids) > 1 && s.opts.ReferralPercent.IsPositive() {
			ref := users[ids[1]]
			bonus = utils.RoundMoney(current.Amount.Mul(s.opts.ReferralPercent).Div(decimal.NewFromInt(100)))
			if bonus.IsPositive() {
				ref.ReferralPending = utils.RoundMoney(ref.ReferralPending.Add(bonus))
				ref.ReferralTotal = utils.RoundMoney(ref.ReferralTotal.Add(bonus))
				if err := s.repo.SaveUser(ctx, ref); err != nil {
					return err
				}
			}
		}
		credited = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if !credited {
		return false, nil
	}

	s.logger.Infof("✅ Deposit %s completed by event %s: +%s to user %d", d.ID, t.EventID, d.Amount, d.UserID)
	s.notifier.DepositCompleted(d.UserID, d.Amount, balance)
	if bonus.IsPositive() {
		s.notifier.ReferralCredited(ids[1], bonus)
	}
	return true, nil
}
