package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/Fi44er/giftcase/internal/catalog"
	"github.com/Fi44er/giftcase/internal/models"
	"github.com/Fi44er/giftcase/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Profile struct {
	User  *models.User
	Items []*models.InventoryItem
}

type PromoResult struct {
	Code    string
	Reward  decimal.Decimal
	Balance decimal.Decimal
}

type ClaimResult struct {
	Claimed decimal.Decimal
	Balance decimal.Decimal
}

// EnsureUser creates the account on first contact. The referrer is only recorded at
// creation and only when it names another existing account.
func (s *Service) EnsureUser(ctx context.Context, telegramID int64, username string, referrerID *int64) (*models.User, error) {
	user, err := s.repo.GetUser(ctx, telegramID)
	if err != nil {
		return nil, err
	}
	if user != nil {
		if username != "" && user.Username != username {
			if err := s.repo.UpdateUsername(ctx, telegramID, username); err != nil {
				s.logger.Warnf("Failed to refresh username for %d: %v", telegramID, err)
			} else {
				user.Username = username
			}
		}
		return user, nil
	}

	user = &models.User{TelegramID: telegramID, Username: username}
	if referrerID != nil && *referrerID != telegramID {
		ref, err := s.repo.GetUser(ctx, *referrerID)
		if err != nil {
			return nil, err
		}
		if ref != nil {
			id := *referrerID
			user.ReferrerID = &id
		}
	}

	if err := s.repo.CreateUser(ctx, user); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return s.repo.GetUser(ctx, telegramID)
		}
		return nil, fmt.Errorf("failed to create user %d: %w", telegramID, err)
	}
	s.logger.Infof("👤 New user %d (%s), referrer %v", telegramID, username, user.ReferrerID)
	return user, nil
}

func (s *Service) Profile(ctx context.Context, userID int64) (*Profile, error) {
	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	items, err := s.repo.ListItems(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Profile{User: user, Items: items}, nil
}

func (s *Service) RedeemPromo(ctx context.Context, userID int64, code string) (*PromoResult, error) {
	promo, ok := s.catalog.Promo(code)
	if !ok {
		return nil, ErrPromoNotFound
	}
	if !promo.Active(s.now()) {
		return nil, ErrPromoExpired
	}

	var res PromoResult
	err := s.withAccount(ctx, userID, func(ctx context.Context, user *models.User) error {
		redeemed, err := s.repo.HasRedeemed(ctx, userID, promo.Code)
		if err != nil {
			return err
		}
		if redeemed {
			return ErrPromoAlreadyRedeemed
		}

		err = s.repo.CreatePromoRedemption(ctx, &models.PromoRedemption{UserID: userID, Code: promo.Code, Reward: promo.Reward})
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrPromoAlreadyRedeemed
		}
		if err != nil {
			return fmt.Errorf("failed to record promo redemption: %w", err)
		}

		user.Balance = utils.RoundMoney(user.Balance.Add(promo.Reward))
		if err := s.repo.SaveUser(ctx, user); err != nil {
			return err
		}
		res = PromoResult{Code: promo.Code, Reward: promo.Reward, Balance: user.Balance}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Infof("🎟 User %d redeemed %s for %s", userID, promo.Code, promo.Reward)
	return &res, nil
}

// ClaimReferral moves accrued referral bonuses into the spendable balance.
func (s *Service) ClaimReferral(ctx context.Context, userID int64) (*ClaimResult, error) {
	var res ClaimResult
	err := s.withAccount(ctx, userID, func(ctx context.Context, user *models.User) error {
		if !user.ReferralPending.IsPositive() {
			return ErrNothingToClaim
		}
		res.Claimed = user.ReferralPending
		user.Balance = utils.RoundMoney(user.Balance.Add(user.ReferralPending))
		user.ReferralPending = decimal.Zero
		if err := s.repo.SaveUser(ctx, user); err != nil {
			return err
		}
		res.Balance = user.Balance
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Infof("User %d claimed %s referral earnings", userID, res.Claimed)
	return &res, nil
}

func (s *Service) Cases() []*catalog.Case {
	return s.catalog.Cases()
}
