package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/Fi44er/giftcase/config"
	"github.com/Fi44er/giftcase/db"
	"github.com/Fi44er/giftcase/internal/api"
	"github.com/Fi44er/giftcase/internal/bot"
	"github.com/Fi44er/giftcase/internal/catalog"
	"github.com/Fi44er/giftcase/internal/market"
	"github.com/Fi44er/giftcase/internal/repository"
	"github.com/Fi44er/giftcase/internal/service"
	"github.com/Fi44er/giftcase/internal/tonapi"
	"github.com/Fi44er/giftcase/internal/worker"
	"github.com/Fi44er/giftcase/utils"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"
)

func main() {
	logger := utils.InitLogger("info")
	cfg, err := config.LoadConfig(".env")
	if err != nil {
		logger.Fatal("Failed to load config: ", err)
	}
	logger = utils.InitLogger(cfg.LogLevel)

	if !tonapi.ValidAddress(cfg.DepositAddress) {
		logger.Fatalf("DEPOSIT_ADDRESS %q is not a valid TON address", cfg.DepositAddress)
	}
	minAmount, err := decimal.NewFromString(cfg.DepositMinAmount)
	if err != nil {
		logger.Fatal("Invalid DEPOSIT_MIN_AMOUNT: ", err)
	}
	referralPercent, err := decimal.NewFromString(cfg.ReferralPercent)
	if err != nil {
		logger.Fatal("Invalid REFERRAL_PERCENT: ", err)
	}

	database, err := db.ConnectDb(cfg.DB_URL, logger)
	if err != nil {
		logger.Fatal(err)
	}
	if err := db.Migrate(database, true, logger); err != nil {
		logger.Fatal(err)
	}

	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		logger.Fatal("Failed to load catalog: ", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo := repository.NewRepository(database, logger)
	options := []service.Option{
		service.WithChainScanner(tonapi.NewClient(cfg.TonAPIBaseURL, cfg.TonAPIKey)),
	}

	if cfg.MarketEnabled() {
		mc, err := market.NewClient(cfg.MarketBaseURL, cfg.MarketAuth, cfg.MarketPassphrase, logger)
		if err != nil {
			logger.Fatal("Failed to create market client: ", err)
		}
		options = append(options, service.WithMarketplace(mc))
	} else {
		logger.Warn("Marketplace is not configured, gift settlement is disabled")
	}

	var telegram *bot.Bot
	var botAPI *tgbotapi.BotAPI
	if cfg.TelegramBotToken != "" {
		botAPI, err = tgbotapi.NewBotAPI(cfg.TelegramBotToken)
		if err != nil {
			logger.Fatal("Failed to create bot API: ", err)
		}
		telegram = bot.NewBot(botAPI, nil, logger, bot.Config{
			WebAppURL:   cfg.WebAppURL,
			BotUsername: botAPI.Self.UserName,
			AdminChatID: cfg.AdminChatID,
		})
		options = append(options, service.WithNotifier(telegram))
	} else {
		logger.Warn("TELEGRAM_BOT_TOKEN is empty, notifications are disabled")
	}

	svc := service.NewService(repo, cat, service.Options{
		DepositAddress:        cfg.DepositAddress,
		DepositComment:        cfg.DepositComment,
		DepositTTL:            cfg.DepositTTL,
		DepositGrace:          cfg.DepositGrace,
		DepositMinAmount:      minAmount,
		DepositScanLimit:      cfg.DepositScanLimit,
		ReferralPercent:       referralPercent,
		MarketStatusTimeout:   cfg.MarketStatusTimeout,
		MarketPurchaseTimeout: cfg.MarketPurchaseTimeout,
	}, logger, options...)

	if telegram != nil {
		telegram.SetAccounts(svc)
		go telegram.Run(ctx)
		go telegram.Start(ctx, botAPI.GetUpdatesChan(tgbotapi.NewUpdate(0)))
	}

	go worker.NewDepositPoller(svc, logger).Start(ctx, cfg.DepositPollInterval)

	server := api.NewServer(svc, api.Config{
		BotToken:    cfg.TelegramBotToken,
		InitDataTTL: cfg.InitDataTTL,
		CORSOrigins: cfg.CORSOrigins,
	}, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Listen(":" + cfg.HTTPPort)
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutting down...")
	case err := <-errCh:
		if err != nil {
			logger.Errorf("HTTP server stopped: %v", err)
		}
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Errorf("Failed to stop HTTP server: %v", err)
	}
	if botAPI != nil {
		botAPI.StopReceivingUpdates()
	}
	if sqlDB, err := database.DB(); err == nil {
		_ = sqlDB.Close()
	}
	logger.Info("Stopped")
}
