package repository

import (
	"context"
	"fmt"

	"github.com/Fi44er/giftcase/internal/models"
)

func (r *Repository) CreatePromoRedemption(ctx context.Context, redemption *models.PromoRedemption) error {
	return r.conn(ctx).Create(redemption).Error
}

func (r *Repository) HasRedeemed(ctx context.Context, userID int64, code string) (bool, error) {
	var count int64
	err := r.conn(ctx).
		Model(&models.PromoRedemption{}).
		Where("user_id = ? AND code = ?", userID, code).
		Count(&count).
		Error
	if err != nil {
		return false, fmt.Errorf("failed to check promo %s for user %d: %w", code, userID, err)
	}
	return count > 0, nil
}
