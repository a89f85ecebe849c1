package api

import (
	"errors"

	"github.com/Fi44er/giftcase/internal/service"
	"github.com/gofiber/fiber/v2"
)

type errorClass struct {
	err    error
	status int
	code   string
}

// Order matters: settlement failures are checked before the transient/rejection tags they wrap.
var errorClasses = []errorClass{
	{service.ErrInvalidParameter, fiber.StatusBadRequest, "invalid_parameter"},
	{service.ErrInsufficientBalance, fiber.StatusPaymentRequired, "insufficient_balance"},
	{service.ErrItemNotFound, fiber.StatusNotFound, "item_not_found"},
	{service.ErrDepositNotFound, fiber.StatusNotFound, "deposit_not_found"},
	{service.ErrPromoNotFound, fiber.StatusNotFound, "promo_not_found"},
	{service.ErrUserNotFound, fiber.StatusNotFound, "user_not_found"},
	{service.ErrConflictingActiveDeposit, fiber.StatusConflict, "active_deposit_exists"},
	{service.ErrItemBusy, fiber.StatusConflict, "item_busy"},
	{service.ErrPromoAlreadyRedeemed, fiber.StatusConflict, "promo_already_redeemed"},
	{service.ErrNothingToClaim, fiber.StatusConflict, "nothing_to_claim"},
	{service.ErrDepositExpired, fiber.StatusGone, "deposit_expired"},
	{service.ErrPromoExpired, fiber.StatusGone, "promo_expired"},
	{service.ErrServiceUnavailable, fiber.StatusServiceUnavailable, "service_unavailable"},
	{service.ErrNoUpstreamInventory, fiber.StatusBadGateway, "no_upstream_inventory"},
	{service.ErrReceiverCheckFailed, fiber.StatusBadGateway, "receiver_check_failed"},
	{service.ErrPurchaseFailed, fiber.StatusBadGateway, "purchase_failed"},
	{service.ErrExternalRemoteRejection, fiber.StatusBadGateway, "external_rejected"},
	{service.ErrExternalTransient, fiber.StatusBadGateway, "external_unavailable"},
}

func classify(err error) (errorClass, bool) {
	for _, cl := range errorClasses {
		if errors.Is(err, cl.err) {
			return cl, true
		}
	}
	return errorClass{status: fiber.StatusInternalServerError, code: "internal"}, false
}

// fail maps a service error to a response. Unknown errors are logged and hidden.
func (s *Server) fail(c *fiber.Ctx, op string, uid int64, err error) error {
	cl, known := classify(err)
	if !known {
		s.logger.Errorf("%s failed for user %d (%s %s): %v", op, uid, c.Method(), c.Path(), err)
		return c.Status(cl.status).JSON(fiber.Map{"error": "internal error", "code": cl.code})
	}

	body := fiber.Map{"error": err.Error(), "code": cl.code}
	if cl.status == fiber.StatusBadGateway {
		// upstream bodies stay in the log
		body["error"] = cl.err.Error()
		body["retryable"] = errors.Is(err, service.ErrExternalTransient)
		s.logger.Warnf("%s failed for user %d: %v", op, uid, err)
	}
	return c.Status(cl.status).JSON(body)
}
