// Package telegramadapter connects the bot to Telegram via long polling.
package telegramadapter

import (
	"context"
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"polybot/internal/domain"
	"polybot/internal/usecase/commands"
)

type MessageHandler interface {
	HandleMessage(ctx context.Context, text string, ec commands.ExecutionContext) string
}

type Adapter struct {
	bot     *tgbotapi.BotAPI
	handler MessageHandler
	prefix  string
	log     *zap.Logger
}

func NewAdapter(bot *tgbotapi.BotAPI, handler MessageHandler, prefix string, log *zap.Logger) *Adapter {
	return &Adapter{bot: bot, handler: handler, prefix: prefix, log: log}
}

// Start polls for updates until ctx is cancelled.
func (a *Adapter) Start(ctx context.Context) error {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = 30
	updates := a.bot.GetUpdatesChan(cfg)

	a.log.Info("telegram connected", zap.String("username", a.bot.Self.UserName))

	for {
		select {
		case <-ctx.Done():
			a.bot.StopReceivingUpdates()
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil || update.Message.From == nil {
				continue
			}
			a.onMessage(ctx, update.Message)
		}
	}
}

func (a *Adapter) onMessage(ctx context.Context, m *tgbotapi.Message) {
	chatID := strconv.FormatInt(m.Chat.ID, 10)
	channel := domain.ChannelIdentifier{Kind: domain.ChannelTelegram, ID: chatID, DisplayName: m.Chat.Title}
	if m.Chat.IsPrivate() {
		channel = domain.ChannelIdentifier{Kind: domain.ChannelAnonymous, ID: chatID}
	}

	ec := executionContext{
		user:        domain.UserIdentifier{Platform: domain.PlatformTelegram, ID: strconv.FormatInt(m.From.ID, 10)},
		channel:     channel,
		displayName: m.From.UserName,
		// Telegram clients send commands as /name; the shared prefix works
		// in group chats too.
		prefixes: []string{a.prefix, "/"},
	}

	go func() {
		response := a.handler.HandleMessage(ctx, m.Text, ec)
		if response == "" {
			return
		}
		reply := tgbotapi.NewMessage(m.Chat.ID, response)
		if _, err := a.bot.Send(reply); err != nil {
			a.log.Warn("telegram send failed", zap.Int64("chat", m.Chat.ID), zap.Error(err))
		}
	}()
}

func (a *Adapter) SendToChannel(_ context.Context, channel domain.ChannelIdentifier, text string) error {
	chatID, err := strconv.ParseInt(channel.ID, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: bad chat id %q: %w", channel.ID, err)
	}
	if _, err := a.bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		return fmt.Errorf("telegram: send: %w", err)
	}
	return nil
}

type executionContext struct {
	user        domain.UserIdentifier
	channel     domain.ChannelIdentifier
	displayName string
	prefixes    []string
}

func (e executionContext) UserIdentifier() domain.UserIdentifier { return e.user }
func (e executionContext) Channel() domain.ChannelIdentifier     { return e.channel }
func (e executionContext) DisplayName() string                   { return e.displayName }
func (e executionContext) Prefixes() []string                    { return e.prefixes }
