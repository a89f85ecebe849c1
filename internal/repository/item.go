package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/Fi44er/giftcase/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

func (r *Repository) CreateItems(ctx context.Context, items []*models.InventoryItem) error {
	if len(items) == 0 {
		return nil
	}
	if err := r.conn(ctx).Create(&items).Error; err != nil {
		return fmt.Errorf("failed to create %d items: %w", len(items), err)
	}
	return nil
}

// GetItemForUser returns (nil, nil) both when the item is missing and when someone else owns it.
func (r *Repository) GetItemForUser(ctx context.Context, id uuid.UUID, userID int64) (*models.InventoryItem, error) {
	var item models.InventoryItem
	err := r.conn(ctx).Where("id = ? AND user_id = ?", id, userID).First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get item %s for user %d: %w", id, userID, err)
	}
	return &item, nil
}

func (r *Repository) ListItems(ctx context.Context, userID int64) ([]*models.InventoryItem, error) {
	var items []*models.InventoryItem
	err := r.conn(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&items).
		Error
	if err != nil {
		return nil, fmt.Errorf("failed to list items for user %d: %w", userID, err)
	}
	return items, nil
}

func (r *Repository) SaveItem(ctx context.Context, item *models.InventoryItem) error {
	if err := r.conn(ctx).Save(item).Error; err != nil {
		return fmt.Errorf("failed to save item %s: %w", item.ID, err)
	}
	return nil
}

func (r *Repository) DeleteItem(ctx context.Context, id uuid.UUID) error {
	res := r.conn(ctx).Where("id = ?", id).Delete(&models.InventoryItem{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete item %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("failed to delete item %s: %w", id, gorm.ErrRecordNotFound)
	}
	return nil
}

func (r *Repository) DeleteItems(ctx context.Context, userID int64, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.conn(ctx).Where("user_id = ? AND id IN ?", userID, ids).Delete(&models.InventoryItem{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to delete items for user %d: %w", userID, res.Error)
	}
	return res.RowsAffected, nil
}
