// Package api serves the Mini App HTTP surface over fiber.
package api

import (
	"context"
	"time"

	"github.com/Fi44er/giftcase/internal/catalog"
	"github.com/Fi44er/giftcase/internal/models"
	"github.com/Fi44er/giftcase/internal/service"
	"github.com/Fi44er/giftcase/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"
)

// Economy is the part of service.Service the HTTP layer drives.
type Economy interface {
	EnsureUser(ctx context.Context, telegramID int64, username string, referrerID *int64) (*models.User, error)
	Profile(ctx context.Context, userID int64) (*service.Profile, error)
	Cases() []*catalog.Case
	Catalog() *catalog.Catalog
	Open(ctx context.Context, userID int64, caseID string, count int) (*service.OpenResult, error)
	Upgrade(ctx context.Context, userID int64, itemID uuid.UUID, multiplier string) (*service.UpgradeResult, error)
	Convert(ctx context.Context, userID int64, itemID uuid.UUID) (*service.ConvertResult, error)
	SellAll(ctx context.Context, userID int64) (*service.SellAllResult, error)
	Settle(ctx context.Context, userID int64, itemID uuid.UUID) (*service.SettleResult, error)
	InitiateDeposit(ctx context.Context, userID int64, amount string) (*service.DepositIntent, error)
	VerifyDeposit(ctx context.Context, userID int64, depositID uuid.UUID) (*service.DepositStatus, error)
	RedeemPromo(ctx context.Context, userID int64, code string) (*service.PromoResult, error)
	ClaimReferral(ctx context.Context, userID int64) (*service.ClaimResult, error)
}

type Config struct {
	BotToken    string
	InitDataTTL time.Duration
	CORSOrigins string
}

type Server struct {
	app         *fiber.App
	svc         Economy
	logger      *utils.Logger
	botToken    string
	initDataTTL time.Duration
	now         func() time.Time
}

func NewServer(svc Economy, cfg Config, logger *utils.Logger) *Server {
	s := &Server{
		svc:         svc,
		logger:      logger,
		botToken:    cfg.BotToken,
		initDataTTL: cfg.InitDataTTL,
		now:         time.Now,
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		AppName:               "giftcase",
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.CORSOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Telegram-Init-Data",
	}))

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api", s.Protected())
	api.Get("/me", s.handleMe)
	api.Get("/cases", s.handleCases)
	api.Post("/cases/:id/open", s.handleOpen)
	api.Post("/items/sell-all", s.handleSellAll)
	api.Post("/items/:id/upgrade", s.handleUpgrade)
	api.Post("/items/:id/convert", s.handleConvert)
	api.Post("/items/:id/settle", s.handleSettle)
	api.Post("/deposits", s.handleInitiateDeposit)
	api.Get("/deposits/:id", s.handleVerifyDeposit)
	api.Post("/promo", s.handleRedeemPromo)
	api.Post("/referral/claim", s.handleClaimReferral)

	s.app = app
	return s
}

func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) Listen(addr string) error {
	s.logger.Infof("🚀 HTTP API listening on %s", addr)
	return s.app.Listen(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
