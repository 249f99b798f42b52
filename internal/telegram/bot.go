// Package telegram binds the chat service to a Telegram bot using long
// polling. Each chat is one conversation.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"

	"github.com/mymmrac/telego"
	th "github.com/mymmrac/telego/telegohandler"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/mtzanidakis/counterman/internal/chat"
	"github.com/mtzanidakis/counterman/internal/config"
)

type Bot struct {
	bot     *telego.Bot
	handler *th.BotHandler
	chat    *chat.Service
	cfg     config.TelegramConfig
	cancel  context.CancelFunc
}

// NewBot creates the bot and registers it as the service's sender for
// the telegram channel.
func NewBot(cfg config.TelegramConfig, svc *chat.Service) (*Bot, error) {
	bot, err := telego.NewBot(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	b := &Bot{
		bot:  bot,
		chat: svc,
		cfg:  cfg,
	}
	svc.RegisterSender(chat.ChannelTelegram, b)
	return b, nil
}

func (b *Bot) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	b.cancel = cancel

	updates, err := b.bot.UpdatesViaLongPolling(ctx, nil)
	if err != nil {
		cancel()
		return fmt.Errorf("start long polling: %w", err)
	}

	handler, err := th.NewBotHandler(b.bot, updates)
	if err != nil {
		cancel()
		return fmt.Errorf("create handler: %w", err)
	}
	b.handler = handler

	handler.HandleMessage(func(hctx *th.Context, message telego.Message) error {
		b.handleMessage(ctx, message)
		return nil
	})

	go handler.Start()

	<-ctx.Done()
	_ = handler.Stop()
	return nil
}

func (b *Bot) Stop() {
	if b.cancel != nil {
		b.cancel()
	}
	if b.handler != nil {
		_ = b.handler.Stop()
	}
}

func (b *Bot) allowed(userID int64) bool {
	return len(b.cfg.AllowFrom) == 0 || slices.Contains(b.cfg.AllowFrom, userID)
}

func (b *Bot) handleMessage(ctx context.Context, msg telego.Message) {
	if msg.From == nil {
		return
	}
	chatID := msg.Chat.ID
	if !b.allowed(msg.From.ID) {
		slog.Warn("unauthorized telegram user", "user_id", msg.From.ID, "chat_id", chatID)
		return
	}

	text := msg.Text
	if text == "" {
		if msg.Caption != "" {
			text = msg.Caption
		} else {
			return
		}
	}

	// Send thinking indicator
	_ = b.bot.SendChatAction(ctx, tu.ChatAction(tu.ID(chatID), "typing"))

	b.chat.HandleInbound(ctx, chat.Inbound{
		Channel: chat.ChannelTelegram,
		Address: strconv.FormatInt(chatID, 10),
		Text:    text,
	})
}
