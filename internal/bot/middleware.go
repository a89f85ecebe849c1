package bot

import (
	"context"
	"strconv"
	"strings"

	"github.com/Fi44er/giftcase/internal/models"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func (b *Bot) withUserCheck(ctx context.Context, handler func(context.Context, tgbotapi.Update, *models.User)) func(tgbotapi.Update) {
	return func(update tgbotapi.Update) {
		from := update.Message.From
		if from == nil {
			return
		}

		user, err := b.accounts.EnsureUser(ctx, from.ID, from.UserName, startReferrer(update.Message))
		if err != nil {
			b.logger.Errorf("Failed to ensure user %d: %v", from.ID, err)
			b.sendMessage(update.Message.Chat.ID, "Произошла ошибка. Попробуйте позже.", nil)
			return
		}

		handler(ctx, update, user)
	}
}

// startReferrer reads "/start ref_<id>" deep links.
func startReferrer(msg *tgbotapi.Message) *int64 {
	if msg.Command() != "start" {
		return nil
	}
	raw, ok := strings.CutPrefix(msg.CommandArguments(), "ref_")
	if !ok {
		return nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 || id == msg.From.ID {
		return nil
	}
	return &id
}
