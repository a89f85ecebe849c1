package repository

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/Fi44er/giftcase/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (r *Repository) GetUser(ctx context.Context, telegramID int64) (*models.User, error) {
	var user models.User
	err := r.conn(ctx).First(&user, "telegram_id = ?", telegramID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user %d: %w", telegramID, err)
	}
	return &user, nil
}

func (r *Repository) CreateUser(ctx context.Context, user *models.User) error {
	return r.conn(ctx).Create(user).Error
}

// SaveUser writes the whole row. Only call it on a row read under LockUsers.
func (r *Repository) SaveUser(ctx context.Context, user *models.User) error {
	if err := r.conn(ctx).Save(user).Error; err != nil {
		return fmt.Errorf("failed to save user %d: %w", user.TelegramID, err)
	}
	return nil
}

func (r *Repository) UpdateUsername(ctx context.Context, telegramID int64, username string) error {
	err := r.conn(ctx).
		Model(&models.User{}).
		Where("telegram_id = ?", telegramID).
		Update("username", username).
		Error
	if err != nil {
		return fmt.Errorf("failed to update username for %d: %w", telegramID, err)
	}
	return nil
}

// LockUsers takes a row lock on every requested user, one row at a time in ascending id
// order, and returns the freshly read rows in that order. Missing users are skipped.
func (r *Repository) LockUsers(ctx context.Context, ids ...int64) ([]*models.User, error) {
	ordered := slices.Clone(ids)
	slices.Sort(ordered)
	ordered = slices.Compact(ordered)

	users := make([]*models.User, 0, len(ordered))
	for _, id := range ordered {
		var user models.User
		err := r.conn(ctx).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("telegram_id = ?", id).
			Take(&user).
			Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to lock user %d: %w", id, err)
		}
		users = append(users, &user)
	}
	return users, nil
}
