package bot

import (
	"context"
	"fmt"

	"github.com/Fi44er/giftcase/internal/models"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	b.withUserCheck(ctx, func(ctx context.Context, update tgbotapi.Update, user *models.User) {
		chatID := update.Message.Chat.ID
		b.logger.Infof("Processing message from user %d: %s", user.TelegramID, update.Message.Text)

		switch update.Message.Command() {
		case "start":
			b.handleStart(chatID, user)
		case "balance":
			b.handleBalance(ctx, chatID, user)
		case "ref":
			b.handleReferral(chatID, user)
		default:
			b.sendMessage(chatID, "Неизвестная команда. Используйте /start.", b.appKeyboard())
		}
	})(update)
}

func (b *Bot) handleStart(chatID int64, user *models.User) {
	text := "Добро пожаловать в *GiftCase*! 🎁\n\n" +
		"Открывайте кейсы, улучшайте подарки и выводите их в Telegram.\n\n" +
		"/balance - баланс и инвентарь\n/ref - реферальная ссылка"
	b.sendMessage(chatID, text, b.appKeyboard())
}

func (b *Bot) handleBalance(ctx context.Context, chatID int64, user *models.User) {
	p, err := b.accounts.Profile(ctx, user.TelegramID)
	if err != nil {
		b.logger.Errorf("Failed to load profile for %d: %v", user.TelegramID, err)
		b.sendMessage(chatID, "Не удалось получить баланс. Попробуйте позже.", nil)
		return
	}
	text := fmt.Sprintf(
		"💰 Баланс: `%s` TON\n🎒 Подарков в инвентаре: `%d`\n🤝 Реферальный бонус к получению: `%s` TON",
		p.User.Balance.StringFixed(2), len(p.Items), p.User.ReferralPending.StringFixed(2),
	)
	b.sendMessage(chatID, text, b.appKeyboard())
}

func (b *Bot) handleReferral(chatID int64, user *models.User) {
	if b.config.BotUsername == "" {
		b.sendMessage(chatID, "Реферальная программа временно недоступна.", nil)
		return
	}
	link := ReferralLink(b.config.BotUsername, user.TelegramID)
	text := fmt.Sprintf(
		"🤝 Ваша ссылка для приглашений:\n`%s`\n\nВсего заработано: `%s` TON",
		link, user.ReferralTotal.StringFixed(2),
	)
	b.sendMessage(chatID, text, nil)
}

// ReferralLink opens the bot with a start payload the Mini App and /start both understand.
func ReferralLink(botUsername string, userID int64) string {
	return fmt.Sprintf("https://t.me/%s?start=ref_%d", botUsername, userID)
}
