package telegram

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"github.com/mtzanidakis/counterman/internal/config"
)

func TestChunkMessage(t *testing.T) {
	assert.Len(t, chunkMessage("hello", maxMessageLen), 1)
	assert.Len(t, chunkMessage(strings.Repeat("a", maxMessageLen), maxMessageLen), 1, "exact limit")
	assert.Len(t, chunkMessage(strings.Repeat("a", 2*maxMessageLen), maxMessageLen), 2)

	msg := []byte(strings.Repeat("a", 5000))
	msg[3000] = '\n'
	chunks := chunkMessage(string(msg), maxMessageLen)
	assert.Len(t, chunks, 2)
	assert.Len(t, chunks[0], 3001, "split after the newline")
}

func TestChunkMessageMultiByte(t *testing.T) {
	text := strings.Repeat("é", 5000)
	chunks := chunkMessage(text, maxMessageLen)
	assert.Len(t, chunks, 2)
	assert.Equal(t, maxMessageLen, utf8.RuneCountInString(chunks[0]))
	for _, c := range chunks {
		assert.True(t, utf8.ValidString(c))
	}
	assert.Equal(t, text, strings.Join(chunks, ""))

	// Within the rune limit, even when longer in bytes.
	greek := strings.Repeat("Ω", maxMessageLen)
	assert.Equal(t, []string{greek}, chunkMessage(greek, maxMessageLen))
}

func TestAllowed(t *testing.T) {
	open := &Bot{}
	assert.True(t, open.allowed(7))

	b := &Bot{cfg: config.TelegramConfig{AllowFrom: []int64{1, 2}}}
	assert.True(t, b.allowed(2))
	assert.False(t, b.allowed(3))
}
