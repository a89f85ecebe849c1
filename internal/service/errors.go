package service

import "errors"

var (
	ErrInsufficientBalance      = errors.New("insufficient balance")
	ErrItemNotFound             = errors.New("item not found or not owned")
	ErrInvalidParameter         = errors.New("invalid parameter")
	ErrConflictingActiveDeposit = errors.New("an active deposit already exists")
	ErrDepositExpired           = errors.New("deposit expired")
	ErrCatalogIntegrity         = errors.New("catalog integrity error")
	ErrExternalTransient        = errors.New("external service temporarily unavailable")
	ErrExternalRemoteRejection  = errors.New("external service rejected the request")
	ErrServiceUnavailable       = errors.New("service not configured")

	ErrNoUpstreamInventory = errors.New("no inventory available upstream")
	ErrReceiverCheckFailed = errors.New("receiver check failed")
	ErrPurchaseFailed      = errors.New("purchase failed")

	ErrUserNotFound         = errors.New("user not found")
	ErrDepositNotFound      = errors.New("deposit not found")
	ErrPromoNotFound        = errors.New("promo code not found")
	ErrPromoExpired         = errors.New("promo code expired")
	ErrPromoAlreadyRedeemed = errors.New("promo code already redeemed")
	ErrItemBusy             = errors.New("item is being settled")
	ErrNothingToClaim       = errors.New("nothing to claim")
)
