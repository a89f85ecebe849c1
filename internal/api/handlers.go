package api

import (
	"encoding/json"
	"time"

	"github.com/Fi44er/giftcase/internal/models"
	"github.com/Fi44er/giftcase/internal/service"
	"github.com/Fi44er/giftcase/internal/upgrade"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type itemView struct {
	ID         uuid.UUID       `json:"id"`
	Name       string          `json:"name"`
	Value      decimal.Decimal `json:"value"`
	Multiplier decimal.Decimal `json:"multiplier"`
	Model      string          `json:"model,omitempty"`
	Family     string          `json:"family,omitempty"`
	Image      string          `json:"image,omitempty"`
	External   bool            `json:"external"`
	Settling   bool            `json:"settling"`
}

func (s *Server) itemView(it *models.InventoryItem) itemView {
	v := itemView{
		ID:         it.ID,
		Name:       it.Name,
		Value:      it.Value,
		Multiplier: it.Multiplier,
		Model:      it.Model,
		Family:     it.Family,
		External:   it.External,
		Settling:   it.Settling(),
	}
	if e, ok := s.svc.Catalog().Entry(it.Name); ok {
		v.Image = e.Image
	}
	return v
}

func (s *Server) itemViews(items []*models.InventoryItem) []itemView {
	out := make([]itemView, 0, len(items))
	for _, it := range items {
		out = append(out, s.itemView(it))
	}
	return out
}

func parseID(c *fiber.Ctx) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Params("id"))
	return id, err == nil
}

func badID(c *fiber.Ctx) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid id", "code": "invalid_parameter"})
}

// flexString accepts a JSON number or string, so clients may send 2, 1.5 or "2x".
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

func badBody(c *fiber.Ctx) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body", "code": "invalid_parameter"})
}

func (s *Server) handleMe(c *fiber.Ctx) error {
	uid := userID(c)
	p, err := s.svc.Profile(c.UserContext(), uid)
	if err != nil {
		return s.fail(c, "profile", uid, err)
	}
	return c.JSON(fiber.Map{
		"telegram_id":      p.User.TelegramID,
		"username":         p.User.Username,
		"balance":          p.User.Balance,
		"winnings":         p.User.Winnings,
		"referral_pending": p.User.ReferralPending,
		"referral_total":   p.User.ReferralTotal,
		"items":            s.itemViews(p.Items),
	})
}

func (s *Server) handleCases(c *fiber.Ctx) error {
	type prizeView struct {
		Name   string          `json:"name"`
		Value  decimal.Decimal `json:"value"`
		Image  string          `json:"image,omitempty"`
		Chance float64         `json:"chance"`
	}
	type caseView struct {
		ID     string          `json:"id"`
		Name   string          `json:"name"`
		Price  decimal.Decimal `json:"price"`
		Prizes []prizeView     `json:"prizes"`
	}

	cat := s.svc.Catalog()
	cases := make([]caseView, 0)
	for _, cs := range s.svc.Cases() {
		cv := caseView{ID: cs.ID, Name: cs.Name, Price: cs.Price}
		for _, p := range cs.Prizes {
			e, _ := cat.Entry(p.Name)
			cv.Prizes = append(cv.Prizes, prizeView{Name: p.Name, Value: e.Value, Image: e.Image, Chance: p.Weight})
		}
		cases = append(cases, cv)
	}

	multipliers := make([]fiber.Map, 0)
	for _, m := range upgrade.Multipliers() {
		multipliers = append(multipliers, fiber.Map{"multiplier": m.Factor, "chance": m.Percent})
	}
	return c.JSON(fiber.Map{"cases": cases, "upgrades": multipliers})
}

func (s *Server) handleOpen(c *fiber.Ctx) error {
	uid := userID(c)
	var req struct {
		Multiplier int `json:"multiplier"`
	}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badBody(c)
		}
	}
	if req.Multiplier == 0 {
		req.Multiplier = 1
	}

	res, err := s.svc.Open(c.UserContext(), uid, c.Params("id"), req.Multiplier)
	if err != nil {
		return s.fail(c, "open", uid, err)
	}
	return c.JSON(fiber.Map{"items": s.itemViews(res.Items), "cost": res.Cost, "balance": res.Balance})
}

func (s *Server) handleUpgrade(c *fiber.Ctx) error {
	uid := userID(c)
	itemID, ok := parseID(c)
	if !ok {
		return badID(c)
	}
	var req struct {
		Multiplier flexString `json:"multiplier"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}

	res, err := s.svc.Upgrade(c.UserContext(), uid, itemID, string(req.Multiplier))
	if err != nil {
		return s.fail(c, "upgrade", uid, err)
	}
	body := fiber.Map{
		"success":   res.Success,
		"result":    res.State.String(),
		"name":      res.Name,
		"chance":    res.Chance,
		"old_value": res.OldValue,
		"new_value": res.NewValue,
	}
	if res.Item != nil {
		body["item"] = s.itemView(res.Item)
	}
	return c.JSON(body)
}

func (s *Server) handleConvert(c *fiber.Ctx) error {
	uid := userID(c)
	itemID, ok := parseID(c)
	if !ok {
		return badID(c)
	}
	res, err := s.svc.Convert(c.UserContext(), uid, itemID)
	if err != nil {
		return s.fail(c, "convert", uid, err)
	}
	return c.JSON(fiber.Map{"credited": res.Credited, "balance": res.Balance})
}

func (s *Server) handleSellAll(c *fiber.Ctx) error {
	uid := userID(c)
	res, err := s.svc.SellAll(c.UserContext(), uid)
	if err != nil {
		return s.fail(c, "sell all", uid, err)
	}
	return c.JSON(fiber.Map{"sold": res.Sold, "credited": res.Credited, "balance": res.Balance})
}

func (s *Server) handleSettle(c *fiber.Ctx) error {
	uid := userID(c)
	itemID, ok := parseID(c)
	if !ok {
		return badID(c)
	}
	res, err := s.svc.Settle(c.UserContext(), uid, itemID)
	if err != nil {
		return s.fail(c, "settle", uid, err)
	}
	return c.JSON(fiber.Map{"status": "success", "item_id": res.ItemID, "name": res.Name})
}

func (s *Server) handleInitiateDeposit(c *fiber.Ctx) error {
	uid := userID(c)
	var req struct {
		Amount flexString `json:"amount"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}

	intent, err := s.svc.InitiateDeposit(c.UserContext(), uid, string(req.Amount))
	if err != nil {
		return s.fail(c, "initiate deposit", uid, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"id":          intent.ID,
		"amount":      intent.Amount,
		"amount_nano": intent.AmountNano,
		"amount_ton":  intent.AmountTON(),
		"comment":     intent.Comment,
		"address":     intent.Address,
		"expires_at":  intent.ExpiresAt.Format(time.RFC3339),
	})
}

func (s *Server) handleVerifyDeposit(c *fiber.Ctx) error {
	uid := userID(c)
	id, ok := parseID(c)
	if !ok {
		return badID(c)
	}
	st, err := s.svc.VerifyDeposit(c.UserContext(), uid, id)
	if err != nil {
		return s.fail(c, "verify deposit", uid, err)
	}
	body := fiber.Map{"id": st.ID, "status": st.Status, "amount": st.Amount}
	if st.Balance != nil {
		body["balance"] = *st.Balance
	}
	return c.JSON(body)
}

func (s *Server) handleRedeemPromo(c *fiber.Ctx) error {
	uid := userID(c)
	var req struct {
		Code string `json:"code"`
	}
	if err := c.BodyParser(&req); err != nil || req.Code == "" {
		return badBody(c)
	}
	res, err := s.svc.RedeemPromo(c.UserContext(), uid, req.Code)
	if err != nil {
		return s.fail(c, "redeem promo", uid, err)
	}
	return c.JSON(fiber.Map{"code": res.Code, "reward": res.Reward, "balance": res.Balance})
}

func (s *Server) handleClaimReferral(c *fiber.Ctx) error {
	uid := userID(c)
	res, err := s.svc.ClaimReferral(c.UserContext(), uid)
	if err != nil {
		return s.fail(c, "claim referral", uid, err)
	}
	return c.JSON(fiber.Map{"claimed": res.Claimed, "balance": res.Balance})
}

var _ Economy = (*service.Service)(nil)
