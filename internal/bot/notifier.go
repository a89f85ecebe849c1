package bot

import (
	"fmt"

	"github.com/Fi44er/giftcase/internal/service"
	"github.com/shopspring/decimal"
)

func (b *Bot) DepositCompleted(userID int64, amount, balance decimal.Decimal) {
	b.enqueue(userID, fmt.Sprintf(
		"✅ Пополнение на `%s` TON зачислено.\n💰 Баланс: `%s` TON",
		amount.StringFixed(2), balance.StringFixed(2),
	))
}

func (b *Bot) ReferralCredited(referrerID int64, bonus decimal.Decimal) {
	b.enqueue(referrerID, fmt.Sprintf(
		"🤝 Ваш реферал пополнил баланс. Бонус `%s` TON ждет в приложении.",
		bonus.StringFixed(2),
	))
}

func (b *Bot) GiftSent(userID int64, name string) {
	b.enqueue(userID, fmt.Sprintf("🎁 Подарок *%s* отправлен вам в Telegram.", name))
	if b.config.AdminChatID != 0 {
		b.enqueue(b.config.AdminChatID, fmt.Sprintf("📤 Выведен подарок *%s* пользователю `%d`", name, userID))
	}
}

var _ service.Notifier = (*Bot)(nil)
