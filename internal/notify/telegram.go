package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ErlanBelekov/recurring-payments/internal/domain"
	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"
)

type telegramSender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// TelegramChannel sends messages through a bot. Sends are rate limited to
// stay under the bot API's global flood limit.
type TelegramChannel struct {
	bot     telegramSender
	limiter *rate.Limiter
}

type TelegramConfig struct {
	Token      string
	RatePerSec int
}

// NewTelegramChannel builds an offline bot: it only sends, so it never polls
// and does not call getMe at startup.
func NewTelegramChannel(cfg TelegramConfig) (*TelegramChannel, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	b, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		Offline: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return newTelegramChannel(b, cfg.RatePerSec), nil
}

func newTelegramChannel(bot telegramSender, ratePerSec int) *TelegramChannel {
	if ratePerSec <= 0 {
		ratePerSec = 25
	}
	return &TelegramChannel{
		bot:     bot,
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec),
	}
}

func (c *TelegramChannel) Name() string { return "telegram" }

func (c *TelegramChannel) Deliver(ctx context.Context, contact domain.Contact, msg Message) error {
	if contact.TelegramChatID == 0 {
		return ErrNoAddress
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("telegram rate limit: %w", err)
	}
	chat := &tele.Chat{ID: contact.TelegramChatID}
	if _, err := c.bot.Send(chat, msg.Body, &tele.SendOptions{DisableWebPagePreview: true}); err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	return nil
}
