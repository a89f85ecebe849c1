package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/Fi44er/giftcase/internal/market"
	"github.com/Fi44er/giftcase/internal/models"
	"github.com/Fi44er/giftcase/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type SettleResult struct {
	ItemID    uuid.UUID
	Name      string
	ListingID int64
	Price     decimal.Decimal
}

// Settle delivers a real gift for an owned item. The item is reserved before any
// marketplace call and only destroyed after the purchase is confirmed. Every failure
// before that releases the reservation and leaves balance and winnings untouched.
func (s *Service) Settle(ctx context.Context, userID int64, itemID uuid.UUID) (*SettleResult, error) {
	if s.market == nil {
		return nil, ErrServiceUnavailable
	}

	item, err := s.reserveItem(ctx, userID, itemID)
	if err != nil {
		return nil, err
	}

	listing, err := s.purchase(ctx, userID, item)
	if err != nil {
		s.releaseItem(context.WithoutCancel(ctx), userID, itemID)
		s.logger.Errorf("Settlement of %s (%s) for user %d failed: %v", item.Name, itemID, userID, err)
		return nil, err
	}

	err = s.withAccount(context.WithoutCancel(ctx), userID, func(ctx context.Context, user *models.User) error {
		current, err := s.repo.GetItemForUser(ctx, itemID, userID)
		if err != nil {
			return err
		}
		if current == nil {
			return ErrItemNotFound
		}
		if err := s.repo.DeleteItem(ctx, itemID); err != nil {
			return err
		}
		user.Winnings = utils.MaxZero(utils.RoundMoney(user.Winnings.Sub(current.Value)))
		return s.repo.SaveUser(ctx, user)
	})
	if err != nil {
		// The gift is already delivered; the reservation stays so the item cannot be spent twice.
		s.logger.Errorf("🚨 Gift %s delivered to %d via listing %d but local finalize failed: %v", item.Name, userID, listing.ID, err)
		return nil, fmt.Errorf("failed to finalize settlement: %w", err)
	}

	s.logger.Infof("🎉 Gift %s delivered to user %d (listing %d, %s)", item.Name, userID, listing.ID, listing.Price)
	s.notifier.GiftSent(userID, item.Name)
	return &SettleResult{ItemID: itemID, Name: item.Name, ListingID: listing.ID, Price: listing.Price}, nil
}

func (s *Service) reserveItem(ctx context.Context, userID int64, itemID uuid.UUID) (*models.InventoryItem, error) {
	var reserved models.InventoryItem
	err := s.withAccount(ctx, userID, func(ctx context.Context, _ *models.User) error {
		item, err := s.ownedItem(ctx, userID, itemID)
		if err != nil {
			return err
		}
		if item.External || item.Family == "" {
			return fmt.Errorf("%w: %s cannot be withdrawn as a gift", ErrInvalidParameter, item.Name)
		}
		now := s.now()
		item.SettlingSince = &now
		if err := s.repo.SaveItem(ctx, item); err != nil {
			return err
		}
		reserved = *item
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &reserved, nil
}

func (s *Service) releaseItem(ctx context.Context, userID int64, itemID uuid.UUID) {
	err := s.withAccount(ctx, userID, func(ctx context.Context, _ *models.User) error {
		item, err := s.repo.GetItemForUser(ctx, itemID, userID)
		if err != nil || item == nil {
			return err
		}
		item.SettlingSince = nil
		return s.repo.SaveItem(ctx, item)
	})
	if err != nil {
		s.logger.Errorf("Failed to release settlement reservation on %s: %v", itemID, err)
	}
}

// purchase runs the marketplace protocol: warmup, listing search, receiver check, purchase.
func (s *Service) purchase(ctx context.Context, userID int64, item *models.InventoryItem) (*market.Listing, error) {
	statusCtx, cancel := context.WithTimeout(ctx, s.opts.MarketStatusTimeout)
	defer cancel()

	if err := s.market.Warmup(statusCtx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoUpstreamInventory, classifyExternal(err))
	}

	listings, err := s.market.SearchListings(statusCtx, market.ListingFilter{Family: item.Family, Model: item.Model})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoUpstreamInventory, classifyExternal(err))
	}
	if len(listings) == 0 {
		return nil, fmt.Errorf("%w: %s %s", ErrNoUpstreamInventory, item.Family, item.Model)
	}
	cheapest := listings[0]
	for _, l := range listings[1:] {
		if l.Price.LessThan(cheapest.Price) {
			cheapest = l
		}
	}

	if err := s.market.CheckReceiver(statusCtx, userID); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReceiverCheckFailed, classifyExternal(err))
	}

	purchaseCtx, cancelPurchase := context.WithTimeout(ctx, s.opts.MarketPurchaseTimeout)
	defer cancelPurchase()

	if _, err := s.market.Purchase(purchaseCtx, cheapest, userID); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPurchaseFailed, classifyExternal(err))
	}
	return &cheapest, nil
}

// classifyExternal tags a marketplace error as a remote rejection or a transient failure.
func classifyExternal(err error) error {
	var apiErr *market.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%w: %w", ErrExternalRemoteRejection, err)
	}
	return fmt.Errorf("%w: %w", ErrExternalTransient, err)
}
