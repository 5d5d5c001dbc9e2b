// Package notify — исходящий порт доставки уведомлений.
// Ядро пишет доменные события в outbox; диспетчер доставляет их
// через Sender. Сбой доставки никогда не откатывает основную мутацию.
package notify

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"
	"go.uber.org/zap"
)

type Sender interface {
	Send(ctx context.Context, recipientID int64, text string) error
}

type TelegramSender struct {
	bot    *bot.Bot
	logger *zap.Logger
}

func NewTelegramSender(token string, logger *zap.Logger) (*TelegramSender, error) {
	b, err := bot.New(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	return &TelegramSender{bot: b, logger: logger}, nil
}

func (s *TelegramSender) Send(ctx context.Context, recipientID int64, text string) error {
	_, err := s.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: recipientID,
		Text:   text,
	})
	if err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}

	return nil
}
