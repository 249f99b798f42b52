package telegram

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/mymmrac/telego"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mtzanidakis/counterman/internal/chat"
)

// fakeBotAPI answers Bot API calls by method name and counts them.
type fakeBotAPI struct {
	mu    sync.Mutex
	calls map[string]int
	fail  map[string]bool
}

func (f *fakeBotAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
	f.mu.Lock()
	f.calls[method]++
	failing := f.fail[method]
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if failing {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: wrong file identifier/HTTP URL specified"}`))
		return
	}
	w.Write([]byte(`{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":42,"type":"private"}}}`))
}

func (f *fakeBotAPI) count(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func newTestBot(t *testing.T, api *fakeBotAPI) *Bot {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	bot, err := telego.NewBot("123456:"+strings.Repeat("A", 35),
		telego.WithAPIServer(srv.URL),
		telego.WithHTTPClient(srv.Client()),
		telego.WithDiscardLogger(),
	)
	require.NoError(t, err)
	return &Bot{bot: bot}
}

func TestSendPhotoFailureStillSendsText(t *testing.T) {
	api := &fakeBotAPI{calls: map[string]int{}, fail: map[string]bool{"sendPhoto": true}}
	b := newTestBot(t, api)

	err := b.Send(t.Context(), "42", chat.Reply{
		Message:     "Here is the door shelf bin you need.",
		OutputImage: "https://example.com/missing.jpg",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, api.count("sendPhoto"))
	assert.Equal(t, 1, api.count("sendMessage"))
}

func TestSendTextFailure(t *testing.T) {
	api := &fakeBotAPI{calls: map[string]int{}, fail: map[string]bool{"sendMessage": true}}
	b := newTestBot(t, api)

	err := b.Send(t.Context(), "42", chat.Reply{Message: "hello"})
	require.Error(t, err)
	assert.Zero(t, api.count("sendPhoto"))
}

func TestSendLongMessageInChunks(t *testing.T) {
	api := &fakeBotAPI{calls: map[string]int{}, fail: map[string]bool{}}
	b := newTestBot(t, api)

	require.NoError(t, b.Send(t.Context(), "42", chat.Reply{Message: strings.Repeat("ü", maxMessageLen+10)}))
	assert.Equal(t, 2, api.count("sendMessage"))
}

func TestSendInvalidChatID(t *testing.T) {
	b := newTestBot(t, &fakeBotAPI{calls: map[string]int{}, fail: map[string]bool{}})
	assert.Error(t, b.Send(t.Context(), "not-a-chat", chat.Reply{Message: "hi"}))
}
