package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"

	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/mtzanidakis/counterman/internal/chat"
)

const maxMessageLen = 4096

// Send delivers a reply to the chat whose id is address. The image, if
// any, goes first as a photo; a photo Telegram rejects does not stop the
// text from being sent.
func (b *Bot) Send(ctx context.Context, address string, r chat.Reply) error {
	chatID, err := strconv.ParseInt(address, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat id %q: %w", address, err)
	}

	if r.OutputImage != "" {
		if _, err := b.bot.SendPhoto(ctx, tu.Photo(tu.ID(chatID), tu.FileFromURL(r.OutputImage))); err != nil {
			slog.Warn("send photo failed", "chat_id", chatID, "image", r.OutputImage, "error", err)
		}
	}
	return b.SendMessage(ctx, chatID, r.Message)
}

func (b *Bot) SendMessage(ctx context.Context, chatID int64, text string) error {
	for _, chunk := range chunkMessage(text, maxMessageLen) {
		if _, err := b.bot.SendMessage(ctx, tu.Message(tu.ID(chatID), chunk)); err != nil {
			return fmt.Errorf("send message: %w", err)
		}
	}
	return nil
}

// chunkMessage splits a message into chunks of at most maxLen runes,
// preferring to break after a newline in the second half of a chunk.
func chunkMessage(text string, maxLen int) []string {
	runes := []rune(text)
	if len(runes) <= maxLen {
		return []string{text}
	}

	var chunks []string
	for len(runes) > 0 {
		if len(runes) <= maxLen {
			chunks = append(chunks, string(runes))
			break
		}

		// Try to split at a newline
		cutAt := maxLen
		if idx := lastIndex(runes[:maxLen], '\n'); idx > maxLen/2 {
			cutAt = idx + 1
		}

		chunks = append(chunks, string(runes[:cutAt]))
		runes = runes[cutAt:]
	}

	return chunks
}

func lastIndex(runes []rune, r rune) int {
	for i, v := range slices.Backward(runes) {
		if v == r {
			return i
		}
	}
	return -1
}
