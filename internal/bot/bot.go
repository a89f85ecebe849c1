// Package bot is the Telegram side of giftcase: the /start entry point that
// opens the Mini App and the outbound notifications sent after ledger commits.
package bot

import (
	"context"

	"github.com/Fi44er/giftcase/internal/models"
	"github.com/Fi44er/giftcase/internal/service"
	"github.com/Fi44er/giftcase/utils"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const outboxSize = 256

// Sender is the slice of tgbotapi.BotAPI used for outgoing messages.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Accounts is what the chat commands need from the economy.
type Accounts interface {
	EnsureUser(ctx context.Context, telegramID int64, username string, referrerID *int64) (*models.User, error)
	Profile(ctx context.Context, userID int64) (*service.Profile, error)
}

type Config struct {
	WebAppURL   string
	BotUsername string
	AdminChatID int64
}

type Bot struct {
	API      Sender
	accounts Accounts
	logger   *utils.Logger
	config   Config
	outbox   chan tgbotapi.Chattable
}

func NewBot(api Sender, accounts Accounts, logger *utils.Logger, config Config) *Bot {
	return &Bot{
		API:      api,
		accounts: accounts,
		logger:   logger,
		config:   config,
		outbox:   make(chan tgbotapi.Chattable, outboxSize),
	}
}

// Start reads updates until ctx is done. updates is usually BotAPI.GetUpdatesChan.
func (b *Bot) Start(ctx context.Context, updates tgbotapi.UpdatesChannel) {
	b.logger.Info("Starting bot...")
	for {
		select {
		case <-ctx.Done():
			b.logger.Info("Bot stopped")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message != nil {
				b.HandleUpdate(ctx, update)
			}
		}
	}
}

// Run delivers queued notifications until ctx is done.
func (b *Bot) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-b.outbox:
			if _, err := b.API.Send(msg); err != nil {
				b.logger.Errorf("Failed to send notification: %v", err)
			}
		}
	}
}

func (b *Bot) sendMessage(chatID int64, text string, replyMarkup interface{}) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if replyMarkup != nil {
		msg.ReplyMarkup = replyMarkup
	}
	if _, err := b.API.Send(msg); err != nil {
		b.logger.Errorf("Failed to send message: %v", err)
	}
}

// enqueue never blocks; a full outbox drops the message.
func (b *Bot) enqueue(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	select {
	case b.outbox <- msg:
	default:
		b.logger.Warnf("Notification outbox full, dropping message for %d", chatID)
	}
}

func (b *Bot) appKeyboard() interface{} {
	if b.config.WebAppURL == "" {
		return nil
	}
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonURL("🎁 Открыть кейсы", b.config.WebAppURL),
		),
	)
}

// SetAccounts attaches the economy after construction; the service and the
// bot reference each other.
func (b *Bot) SetAccounts(accounts Accounts) {
	b.accounts = accounts
}
