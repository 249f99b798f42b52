package sms

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mtzanidakis/counterman/internal/chat"
	"github.com/mtzanidakis/counterman/internal/config"
)

type twilioStub struct {
	mu    sync.Mutex
	forms []url.Values
	users []string
	fail  bool
}

func (s *twilioStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	user, _, _ := r.BasicAuth()

	s.mu.Lock()
	s.forms = append(s.forms, r.PostForm)
	s.users = append(s.users, user+" "+r.URL.Path)
	s.mu.Unlock()

	if s.fail {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code": 21211, "message": "The 'To' number is not a valid phone number.", "status": 400}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	w.Write([]byte(`{"sid": "SM123", "status": "queued"}`))
}

func newTestSender(t *testing.T, stub *twilioStub) *Sender {
	t.Helper()
	srv := httptest.NewServer(stub)
	t.Cleanup(srv.Close)
	return NewSender(config.SMSConfig{
		AccountSID: "AC123",
		AuthToken:  "secret",
		FromNumber: "+15550000",
		BaseURL:    srv.URL,
	})
}

func TestSend(t *testing.T) {
	stub := &twilioStub{}
	s := newTestSender(t, stub)

	err := s.Send(t.Context(), "+15550100", chat.Reply{Message: "Here is the part.", OutputImage: "https://example.com/p.jpg"})
	require.NoError(t, err)

	require.Len(t, stub.forms, 1)
	form := stub.forms[0]
	assert.Equal(t, "+15550100", form.Get("To"))
	assert.Equal(t, "+15550000", form.Get("From"))
	assert.Equal(t, "Here is the part.", form.Get("Body"))
	assert.Equal(t, "https://example.com/p.jpg", form.Get("MediaUrl"))
	assert.Equal(t, "AC123 /2010-04-01/Accounts/AC123/Messages.json", stub.users[0])
}

func TestSendCanceled(t *testing.T) {
	stub := &twilioStub{}
	s := newTestSender(t, stub)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	require.ErrorIs(t, s.Send(ctx, "+1", chat.Reply{Message: "hi"}), context.Canceled)
	assert.Empty(t, stub.forms)
}

func TestSendChunks(t *testing.T) {
	stub := &twilioStub{}
	s := newTestSender(t, stub)

	long := strings.Repeat("a", MaxBody) + strings.Repeat("b", 10)
	require.NoError(t, s.Send(t.Context(), "+1", chat.Reply{Message: long, OutputImage: "https://example.com/p.jpg"}))

	require.Len(t, stub.forms, 2)
	assert.Len(t, stub.forms[0].Get("Body"), MaxBody)
	assert.Equal(t, "bbbbbbbbbb", stub.forms[1].Get("Body"))
	assert.Empty(t, stub.forms[1].Get("MediaUrl"), "image is sent once")
}

func TestSendAPIError(t *testing.T) {
	s := newTestSender(t, &twilioStub{fail: true})
	err := s.Send(t.Context(), "nope", chat.Reply{Message: "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a valid phone number")
	assert.Contains(t, err.Error(), "21211")
}

func TestChunk(t *testing.T) {
	assert.Equal(t, []string{"hello"}, chunk("hello", 10))

	multi := strings.Repeat("é", 15)
	chunks := chunk(multi, 10)
	require.Len(t, chunks, 2)
	assert.Equal(t, strings.Repeat("é", 10), chunks[0], "runes are never split")

	text := strings.Repeat("a", 7) + "\n" + strings.Repeat("b", 7)
	chunks = chunk(text, 10)
	require.Len(t, chunks, 2)
	assert.Equal(t, "aaaaaaa\n", chunks[0])
	assert.Equal(t, "bbbbbbb", chunks[1])
}

func TestSignature(t *testing.T) {
	// Example from Twilio's webhook security documentation.
	token := "12345"
	fullURL := "https://mycompany.com/myapp.php?foo=1&bar=2"
	params := url.Values{
		"CallSid": {"CA1234567890ABCDE"},
		"Caller":  {"+12349013030"},
		"Digits":  {"1234"},
		"From":    {"+12349013030"},
		"To":      {"+18005551212"},
	}

	sig := "0/KCTR6DLpKmkAf8muzZqo1nDgQ="
	assert.True(t, ValidSignature(token, fullURL, params, sig))
	assert.False(t, ValidSignature("other", fullURL, params, sig))
	assert.False(t, ValidSignature(token, fullURL, params, "bogus"))
	assert.False(t, ValidSignature(token, fullURL, params, ""))

	params.Set("Digits", "9999")
	assert.False(t, ValidSignature(token, fullURL, params, sig))
}
