// Package sms delivers replies through the Twilio Messages API and
// verifies the signatures Twilio puts on inbound webhooks.
package sms

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/twilio/twilio-go"
	twclient "github.com/twilio/twilio-go/client"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/mtzanidakis/counterman/internal/chat"
	"github.com/mtzanidakis/counterman/internal/config"
)

// MaxBody is the longest body Twilio accepts for one message.
const MaxBody = 1600

type Sender struct {
	cfg    config.SMSConfig
	client *twilio.RestClient
}

func NewSender(cfg config.SMSConfig) *Sender {
	hc := &http.Client{Timeout: 15 * time.Second}
	if cfg.BaseURL != "" {
		if base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/")); err == nil {
			hc.Transport = rewriteHost{base: base, next: http.DefaultTransport}
		} else {
			slog.Warn("ignoring invalid sms base url", "base_url", cfg.BaseURL, "error", err)
		}
	}

	c := &twclient.Client{
		Credentials: twclient.NewCredentials(cfg.AccountSID, cfg.AuthToken),
		HTTPClient:  hc,
	}
	c.SetAccountSid(cfg.AccountSID)

	return &Sender{
		cfg:    cfg,
		client: twilio.NewRestClientWithParams(twilio.ClientParams{Client: c}),
	}
}

// Send delivers r to the phone number in address. Long replies go out as
// several messages; the image rides on the first one.
func (s *Sender) Send(ctx context.Context, address string, r chat.Reply) error {
	for i, body := range chunk(r.Message, MaxBody) {
		if err := ctx.Err(); err != nil {
			return err
		}

		params := &openapi.CreateMessageParams{}
		params.SetPathAccountSid(s.cfg.AccountSID)
		params.SetTo(address)
		params.SetFrom(s.cfg.FromNumber)
		params.SetBody(body)
		if i == 0 && r.OutputImage != "" {
			params.SetMediaUrl([]string{r.OutputImage})
		}

		if _, err := s.client.Api.CreateMessage(params); err != nil {
			var apiErr *twclient.TwilioRestError
			if errors.As(err, &apiErr) {
				return fmt.Errorf("send sms: status %d: %s (code %d)", apiErr.Status, apiErr.Message, apiErr.Code)
			}
			return fmt.Errorf("send sms: %w", err)
		}
	}
	slog.Debug("sms sent", "to", address, "turn", r.TurnID)
	return nil
}

// rewriteHost points API requests at a Twilio-compatible endpoint.
type rewriteHost struct {
	base *url.URL
	next http.RoundTripper
}

func (t rewriteHost) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.URL.Scheme = t.base.Scheme
	req.URL.Host = t.base.Host
	req.URL.Path = t.base.Path + req.URL.Path
	req.Host = t.base.Host
	return t.next.RoundTrip(req)
}

// chunk splits text into pieces of at most maxLen runes, preferring
// newline boundaries in the second half of a piece.
func chunk(text string, maxLen int) []string {
	if utf8.RuneCountInString(text) <= maxLen {
		return []string{text}
	}

	var chunks []string
	for text != "" {
		runes := []rune(text)
		if len(runes) <= maxLen {
			chunks = append(chunks, text)
			break
		}

		head := string(runes[:maxLen])
		cutAt := len(head)
		if idx := strings.LastIndex(head, "\n"); idx > len(head)/2 {
			cutAt = idx + 1
		}
		chunks = append(chunks, text[:cutAt])
		text = text[cutAt:]
	}
	return chunks
}
