package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Fi44er/giftcase/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (r *Repository) CreateDeposit(ctx context.Context, deposit *models.Deposit) error {
	return r.conn(ctx).Create(deposit).Error
}

func (r *Repository) GetDeposit(ctx context.Context, id uuid.UUID) (*models.Deposit, error) {
	var deposit models.Deposit
	err := r.conn(ctx).Where("id = ?", id).First(&deposit).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get deposit %s: %w", id, err)
	}
	return &deposit, nil
}

// LockDeposit re-reads a deposit with a row lock. Call it inside WithinTransaction.
func (r *Repository) LockDeposit(ctx context.Context, id uuid.UUID) (*models.Deposit, error) {
	var deposit models.Deposit
	err := r.conn(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		Take(&deposit).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to lock deposit %s: %w", id, err)
	}
	return &deposit, nil
}

func (r *Repository) GetPendingDepositByUser(ctx context.Context, userID int64) (*models.Deposit, error) {
	var deposit models.Deposit
	err := r.conn(ctx).
		Where("user_id = ? AND status = ?", userID, models.DepositPending).
		First(&deposit).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pending deposit for user %d: %w", userID, err)
	}
	return &deposit, nil
}

func (r *Repository) ListPendingDeposits(ctx context.Context) ([]*models.Deposit, error) {
	var deposits []*models.Deposit
	err := r.conn(ctx).
		Where("status = ?", models.DepositPending).
		Order("created_at ASC").
		Find(&deposits).
		Error
	if err != nil {
		return nil, fmt.Errorf("failed to get pending deposits: %w", err)
	}
	return deposits, nil
}

func (r *Repository) ListExpiredPendingDeposits(ctx context.Context, now time.Time) ([]*models.Deposit, error) {
	var deposits []*models.Deposit
	err := r.conn(ctx).
		Where("status = ? AND expires_at <= ?", models.DepositPending, now).
		Order("expires_at ASC").
		Find(&deposits).
		Error
	if err != nil {
		return nil, fmt.Errorf("failed to get expired deposits: %w", err)
	}
	return deposits, nil
}

// FingerprintInUse reports whether a pending deposit already carries amountNano.
func (r *Repository) FingerprintInUse(ctx context.Context, amountNano int64) (bool, error) {
	var count int64
	err := r.conn(ctx).
		Model(&models.Deposit{}).
		Where("amount_nano = ? AND status = ?", amountNano, models.DepositPending).
		Count(&count).
		Error
	if err != nil {
		return false, fmt.Errorf("failed to check fingerprint %d: %w", amountNano, err)
	}
	return count > 0, nil
}

func (r *Repository) EventMatched(ctx context.Context, eventID string) (bool, error) {
	var count int64
	err := r.conn(ctx).
		Model(&models.Deposit{}).
		Where("matched_event_id = ?", eventID).
		Count(&count).
		Error
	if err != nil {
		return false, fmt.Errorf("failed to check event %s: %w", eventID, err)
	}
	return count > 0, nil
}

func (r *Repository) SaveDeposit(ctx context.Context, deposit *models.Deposit) error {
	if err := r.conn(ctx).Save(deposit).Error; err != nil {
		return fmt.Errorf("failed to save deposit %s: %w", deposit.ID, err)
	}
	return nil
}
