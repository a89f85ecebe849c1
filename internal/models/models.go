package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type User struct {
	TelegramID      int64           `gorm:"primaryKey;autoIncrement:false" json:"telegram_id"`
	Username        string          `json:"username"`
	Balance         decimal.Decimal `gorm:"type:numeric(20,2);not null;default:0" json:"balance"`
	ReferralPending decimal.Decimal `gorm:"type:numeric(20,2);not null;default:0" json:"referral_pending"`
	ReferralTotal   decimal.Decimal `gorm:"type:numeric(20,2);not null;default:0" json:"referral_total"`
	Winnings        decimal.Decimal `gorm:"type:numeric(20,2);not null;default:0" json:"winnings"`
	ReferrerID      *int64          `gorm:"index" json:"referrer_id,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// InventoryItem is an owned prize instance. Name references a catalog entry;
// Model and Family are copied from it for marketplace lookup.
type InventoryItem struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	UserID        int64           `gorm:"index;not null" json:"user_id"`
	Name          string          `gorm:"not null" json:"name"`
	Value         decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"value"`
	Multiplier    decimal.Decimal `gorm:"type:numeric(20,4);not null;default:1" json:"multiplier"`
	Model         string          `json:"model,omitempty"`
	Family        string          `json:"family,omitempty"`
	External      bool            `gorm:"not null;default:false" json:"external"`
	SettlingSince *time.Time      `json:"settling_since,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

func (i *InventoryItem) Settling() bool {
	return i.SettlingSince != nil
}

type DepositState string

const (
	DepositPending   DepositState = "pending"
	DepositCompleted DepositState = "completed"
	DepositExpired   DepositState = "expired"
)

func (s DepositState) Terminal() bool {
	return s != DepositPending
}

// Deposit is a pending top-up intent matched against the chain by AmountNano and Comment.
type Deposit struct {
	ID             uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	UserID         int64           `gorm:"not null;index;uniqueIndex:idx_deposit_user_pending,where:status = 'pending'" json:"user_id"`
	Amount         decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"amount"`
	AmountNano     int64           `gorm:"not null;uniqueIndex:idx_deposit_fingerprint_pending,where:status = 'pending'" json:"amount_nano"`
	Comment        string          `gorm:"not null" json:"comment"`
	Status         DepositState    `gorm:"type:varchar(16);not null;index" json:"status"`
	MatchedEventID *string         `gorm:"uniqueIndex" json:"matched_event_id,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	ExpiresAt      time.Time       `gorm:"not null;index" json:"expires_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
}

type PromoRedemption struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	UserID    int64           `gorm:"not null;uniqueIndex:idx_promo_user_code" json:"user_id"`
	Code      string          `gorm:"not null;uniqueIndex:idx_promo_user_code" json:"code"`
	Reward    decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"reward"`
	CreatedAt time.Time       `json:"created_at"`
}
