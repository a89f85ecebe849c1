package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/Fi44er/giftcase/internal/catalog"
	"github.com/Fi44er/giftcase/internal/models"
	"github.com/Fi44er/giftcase/internal/upgrade"
	"github.com/Fi44er/giftcase/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OpenResult struct {
	Items   []*models.InventoryItem
	Cost    decimal.Decimal
	Balance decimal.Decimal
}

type UpgradeResult struct {
	Success  bool
	State    upgrade.State
	Chance   float64
	Item     *models.InventoryItem
	Name     string
	OldValue decimal.Decimal
	NewValue decimal.Decimal
}

type ConvertResult struct {
	Credited decimal.Decimal
	Balance  decimal.Decimal
}

type SellAllResult struct {
	Sold     int
	Credited decimal.Decimal
	Balance  decimal.Decimal
}

// Open buys count draws from a case in one debit of price*count.
func (s *Service) Open(ctx context.Context, userID int64, caseID string, count int) (*OpenResult, error) {
	cs, ok := s.catalog.Case(caseID)
	if !ok {
		return nil, fmt.Errorf("%w: unknown case %q", ErrInvalidParameter, caseID)
	}
	if count < 1 || count > catalog.MaxDraws {
		return nil, fmt.Errorf("%w: count must be 1..%d", ErrInvalidParameter, catalog.MaxDraws)
	}
	cost := utils.RoundMoney(cs.Price.Mul(decimal.NewFromInt(int64(count))))

	var res OpenResult
	err := s.withAccount(ctx, userID, func(ctx context.Context, user *models.User) error {
		if user.Balance.LessThan(cost) {
			return ErrInsufficientBalance
		}

		won, err := s.catalog.Draw(caseID, count, s.rnd.Float64)
		if err != nil {
			if errors.Is(err, catalog.ErrIntegrity) {
				s.logger.Errorf("Catalog integrity failure opening %s for user %d: %v", caseID, userID, err)
				return fmt.Errorf("%w: %v", ErrCatalogIntegrity, err)
			}
			return err
		}

		now := s.now()
		items := make([]*models.InventoryItem, 0, len(won))
		total := decimal.Zero
		for _, e := range won {
			items = append(items, &models.InventoryItem{
				ID:         uuid.New(),
				UserID:     userID,
				Name:       e.Name,
				Value:      e.Value,
				Multiplier: decimal.NewFromInt(1),
				Model:      e.Model,
				Family:     e.Family,
				External:   e.External,
				CreatedAt:  now,
			})
			total = total.Add(e.Value)
		}
		if err := s.repo.CreateItems(ctx, items); err != nil {
			return err
		}

		user.Balance = utils.RoundMoney(user.Balance.Sub(cost))
		user.Winnings = utils.RoundMoney(user.Winnings.Add(total))
		if err := s.repo.SaveUser(ctx, user); err != nil {
			return err
		}

		res = OpenResult{Items: items, Cost: cost, Balance: user.Balance}
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrInsufficientBalance) {
			s.logger.Errorf("Open case %s x%d failed for user %d: %v", caseID, count, userID, err)
		}
		return nil, err
	}

	s.logger.Infof("🎁 User %d opened %s x%d for %s, balance %s", userID, caseID, count, cost, res.Balance)
	return &res, nil
}

// ownedItem loads an item that may be mutated: owned by user and not reserved for settlement.
func (s *Service) ownedItem(ctx context.Context, userID int64, itemID uuid.UUID) (*models.InventoryItem, error) {
	item, err := s.repo.GetItemForUser(ctx, itemID, userID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, ErrItemNotFound
	}
	if item.Settling() {
		return nil, ErrItemBusy
	}
	return item, nil
}

func (s *Service) Upgrade(ctx context.Context, userID int64, itemID uuid.UUID, multiplier string) (*UpgradeResult, error) {
	m, err := upgrade.ParseMultiplier(multiplier)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParameter, err)
	}

	var res UpgradeResult
	err = s.withAccount(ctx, userID, func(ctx context.Context, user *models.User) error {
		item, err := s.ownedItem(ctx, userID, itemID)
		if err != nil {
			return err
		}
		if item.External {
			return fmt.Errorf("%w: %s cannot be upgraded", ErrInvalidParameter, item.Name)
		}

		out := upgrade.Attempt(item.Value, item.Multiplier, m, s.rnd.Float64()*100)
		res = UpgradeResult{
			State:    out.State,
			Chance:   m.Percent,
			Name:     item.Name,
			OldValue: item.Value,
			NewValue: out.NewValue,
		}

		switch out.State {
		case upgrade.Success:
			item.Value = out.NewValue
			item.Multiplier = out.NewFactor
			if err := s.repo.SaveItem(ctx, item); err != nil {
				return err
			}
			user.Winnings = utils.RoundMoney(user.Winnings.Add(out.Delta))
			res.Success = true
			res.Item = item
		case upgrade.Burned:
			if err := s.repo.DeleteItem(ctx, item.ID); err != nil {
				return err
			}
			user.Winnings = utils.MaxZero(utils.RoundMoney(user.Winnings.Add(out.Delta)))
		default:
			return fmt.Errorf("upgrade ended in non-terminal state %s", out.State)
		}
		return s.repo.SaveUser(ctx, user)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Infof("⬆️ User %d upgraded %s x%s: %s (%s -> %s)", userID, res.Name, m.Factor, res.State, res.OldValue, res.NewValue)
	return &res, nil
}

func (s *Service) Convert(ctx context.Context, userID int64, itemID uuid.UUID) (*ConvertResult, error) {
	var res ConvertResult
	err := s.withAccount(ctx, userID, func(ctx context.Context, user *models.User) error {
		item, err := s.ownedItem(ctx, userID, itemID)
		if err != nil {
			return err
		}
		if err := s.repo.DeleteItem(ctx, item.ID); err != nil {
			return err
		}
		user.Balance = utils.RoundMoney(user.Balance.Add(item.Value))
		user.Winnings = utils.MaxZero(utils.RoundMoney(user.Winnings.Sub(item.Value)))
		if err := s.repo.SaveUser(ctx, user); err != nil {
			return err
		}
		res = ConvertResult{Credited: item.Value, Balance: user.Balance}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Infof("User %d converted item %s for %s", userID, itemID, res.Credited)
	return &res, nil
}

// SellAll converts every item not reserved for settlement.
func (s *Service) SellAll(ctx context.Context, userID int64) (*SellAllResult, error) {
	var res SellAllResult
	err := s.withAccount(ctx, userID, func(ctx context.Context, user *models.User) error {
		items, err := s.repo.ListItems(ctx, userID)
		if err != nil {
			return err
		}

		ids := make([]uuid.UUID, 0, len(items))
		total := decimal.Zero
		for _, it := range items {
			if it.Settling() {
				continue
			}
			ids = append(ids, it.ID)
			total = total.Add(it.Value)
		}
		if len(ids) == 0 {
			res = SellAllResult{Credited: decimal.Zero, Balance: user.Balance}
			return nil
		}

		n, err := s.repo.DeleteItems(ctx, userID, ids)
		if err != nil {
			return err
		}
		if n != int64(len(ids)) {
			return fmt.Errorf("sell all deleted %d of %d items", n, len(ids))
		}

		user.Balance = utils.RoundMoney(user.Balance.Add(total))
		user.Winnings = utils.MaxZero(utils.RoundMoney(user.Winnings.Sub(total)))
		if err := s.repo.SaveUser(ctx, user); err != nil {
			return err
		}
		res = SellAllResult{Sold: len(ids), Credited: utils.RoundMoney(total), Balance: user.Balance}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Infof("User %d sold %d items for %s", userID, res.Sold, res.Credited)
	return &res, nil
}
