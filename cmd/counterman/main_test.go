package main

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mtzanidakis/counterman/internal/chat"
	"github.com/mtzanidakis/counterman/internal/config"
	"github.com/mtzanidakis/counterman/internal/conversation"
	"github.com/mtzanidakis/counterman/internal/store"
)

type fakeAnswerer struct {
	seen  [][]conversation.Message
	fail  map[string]bool
	image string
}

func (f *fakeAnswerer) Answer(_ context.Context, msgs []conversation.Message) (chat.Reply, error) {
	f.seen = append(f.seen, msgs)
	last := msgs[len(msgs)-1].Content
	if f.fail[last] {
		return chat.Reply{Message: chat.Apology}, errors.New("boom")
	}
	return chat.Reply{Message: "re: " + last, OutputImage: f.image}, nil
}

func TestChatLoop(t *testing.T) {
	f := &fakeAnswerer{fail: map[string]bool{"break": true}}
	in := strings.NewReader("hello\n\nbreak\nagain\n/clear\nfresh\n")
	var out bytes.Buffer

	require.NoError(t, chatLoop(t.Context(), f, in, &out))

	require.Len(t, f.seen, 4)
	assert.Len(t, f.seen[0], 1)
	assert.Len(t, f.seen[1], 3, "history carries the first exchange")
	assert.Len(t, f.seen[2], 3, "failed turns are not remembered")
	assert.Len(t, f.seen[3], 1, "clear starts over")

	s := out.String()
	assert.Contains(t, s, "re: hello")
	assert.Contains(t, s, chat.Apology)
	assert.Contains(t, s, chat.ClearedReply)
}

func TestChatLoopPrintsImage(t *testing.T) {
	f := &fakeAnswerer{image: "https://example.com/p.jpg"}
	var out bytes.Buffer
	require.NoError(t, chatLoop(t.Context(), f, strings.NewReader("show me\n"), &out))
	assert.Contains(t, out.String(), "[image] https://example.com/p.jpg")
}

func TestExportImport(t *testing.T) {
	src, err := store.New(config.StoreConfig{Path: filepath.Join(t.TempDir(), "src.db")})
	require.NoError(t, err)
	defer src.Close()

	when := time.Now().Add(-time.Hour).Truncate(time.Millisecond)
	require.NoError(t, src.SaveMessage(&store.Message{ConversationKey: "sms:+1", Role: "user", Content: "my oven won't heat", CreatedAt: when}))
	require.NoError(t, src.SaveMessage(&store.Message{ConversationKey: "sms:+1", Role: "assistant", Name: "human_interaction", Content: "Which model?"}))
	require.NoError(t, src.SaveMessage(&store.Message{ConversationKey: "telegram:9", Role: "user", Content: "hi"}))

	var buf bytes.Buffer
	n, err := exportMessages(src, &buf)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	dst, err := store.New(config.StoreConfig{Path: filepath.Join(t.TempDir(), "dst.db")})
	require.NoError(t, err)
	defer dst.Close()

	n, err = importMessages(dst, &buf)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	msgs, err := dst.GetMessages("sms:+1", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "my oven won't heat", msgs[0].Content)
	assert.True(t, when.Equal(msgs[0].CreatedAt))
	assert.Equal(t, "human_interaction", msgs[1].Name)
}

func TestParseFileFlag(t *testing.T) {
	path, err := parseFileFlag([]string{"-f", "out.zst"}, "usage")
	require.NoError(t, err)
	assert.Equal(t, "out.zst", path)

	_, err = parseFileFlag([]string{"-f"}, "usage")
	assert.Error(t, err)
	_, err = parseFileFlag(nil, "usage")
	assert.Error(t, err)
}
