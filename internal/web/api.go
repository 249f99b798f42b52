package web

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mtzanidakis/counterman/internal/chat"
	"github.com/mtzanidakis/counterman/internal/conversation"
	"github.com/mtzanidakis/counterman/internal/natsbus"
	"github.com/mtzanidakis/counterman/internal/sms"
)

const (
	maxQueryBytes = 1 << 20
	emptyTwiML    = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`
)

func (s *Server) registerAPI(mux *http.ServeMux) {
	// Turns
	mux.HandleFunc("POST /api/query", s.query)
	mux.HandleFunc("POST /api/webhook/sms", s.smsWebhook)

	// History
	mux.HandleFunc("GET /api/conversations", s.listConversations)
	mux.HandleFunc("GET /api/conversations/{key}/messages", s.getConversationMessages)
	mux.HandleFunc("DELETE /api/conversations/{key}", s.clearConversation)

	// Turn audit
	mux.HandleFunc("GET /api/turns", s.listTurns)
	mux.HandleFunc("GET /api/turns/{id}", s.getTurn)

	// System
	mux.HandleFunc("GET /api/status", s.getStatus)
}

type queryRequest struct {
	Messages []conversation.Message `json:"messages"`
}

func (s *Server) query(w http.ResponseWriter, r *http.Request) {
	var body queryRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxQueryBytes)).Decode(&body); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(body.Messages) == 0 {
		jsonError(w, "messages is required", http.StatusBadRequest)
		return
	}
	for i, m := range body.Messages {
		if !m.Role.Valid() {
			jsonError(w, fmt.Sprintf("messages[%d]: invalid role %q", i, m.Role), http.StatusBadRequest)
			return
		}
	}

	// Faults already carry the apology; the caller always gets a reply.
	reply, err := s.chat.Answer(r.Context(), body.Messages)
	if err != nil {
		slog.Warn("query turn failed", "turn", reply.TurnID, "error", err)
	}
	jsonResponse(w, reply)
}

func (s *Server) smsWebhook(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		jsonError(w, "invalid form", http.StatusBadRequest)
		return
	}

	if s.sms.ValidateSignature {
		sig := r.Header.Get(sms.SignatureHeader)
		if !sms.ValidSignature(s.sms.AuthToken, s.webhookURL(r), r.PostForm, sig) {
			slog.Warn("rejected sms webhook with bad signature", "remote", r.RemoteAddr)
			jsonError(w, "invalid signature", http.StatusForbidden)
			return
		}
	}

	from := r.PostForm.Get("From")
	text := r.PostForm.Get("Body")
	if from == "" || strings.TrimSpace(text) == "" {
		jsonError(w, "From and Body are required", http.StatusBadRequest)
		return
	}

	if !s.chat.HandleInbound(r.Context(), chat.Inbound{Channel: chat.ChannelSMS, Address: from, Text: text}) {
		jsonError(w, "shutting down", http.StatusServiceUnavailable)
		return
	}

	// The reply goes out through the REST API once the turn finishes.
	w.Header().Set("Content-Type", "text/xml")
	w.Write([]byte(emptyTwiML))
}

// webhookURL is the URL Twilio signed: the configured public URL, or the
// request URL as seen through any proxy.
func (s *Server) webhookURL(r *http.Request) string {
	if s.sms.PublicURL != "" {
		return s.sms.PublicURL
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if p := r.Header.Get("X-Forwarded-Proto"); p != "" {
		scheme = p
	}
	return (&url.URL{Scheme: scheme, Host: r.Host, Path: r.URL.Path, RawQuery: r.URL.RawQuery}).String()
}

func (s *Server) listConversations(w http.ResponseWriter, r *http.Request) {
	convs, err := s.store.ListConversations()
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	out := make([]map[string]any, 0, len(convs))
	for _, c := range convs {
		out = append(out, map[string]any{
			"key":           c.Key,
			"message_count": c.MessageCount,
			"last_active":   c.LastActive,
			"last_seen":     formatMessageTime(c.LastActive),
		})
	}
	jsonResponse(w, out)
}

func (s *Server) getConversationMessages(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	messages, err := s.store.GetMessages(key, queryInt(r, "limit", 100))
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if len(messages) == 0 {
		jsonError(w, "conversation not found", http.StatusNotFound)
		return
	}
	jsonResponse(w, messages)
}

func (s *Server) clearConversation(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	n, err := s.store.ClearHistory(key)
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if err := s.nats.PublishJSON(natsbus.TopicEventsHistory, map[string]any{"conversation_key": key, "deleted": n}); err != nil {
		slog.Warn("publish history event failed", "error", err)
	}
	jsonResponse(w, map[string]any{"status": "cleared", "deleted": n})
}

func (s *Server) listTurns(w http.ResponseWriter, r *http.Request) {
	turns, err := s.store.ListTurns(r.URL.Query().Get("conversation"), queryInt(r, "limit", 50))
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, turns)
}

func (s *Server) getTurn(w http.ResponseWriter, r *http.Request) {
	turn, err := s.store.GetTurn(r.PathValue("id"))
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if turn == nil {
		jsonError(w, "turn not found", http.StatusNotFound)
		return
	}
	jsonResponse(w, turn)
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"status":            "ok",
		"version":           s.version,
		"profile":           s.profile,
		"uptime":            formatUptime(time.Since(s.startedAt)),
		"websocket_clients": s.hub.Len(),
	}
	if s.bus != nil {
		status["nats_port"] = s.bus.Port()
	}
	if convs, err := s.store.ListConversations(); err == nil {
		status["conversations"] = len(convs)
	}
	jsonResponse(w, status)
}

func queryInt(r *http.Request, name string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func formatMessageTime(t time.Time) string {
	local := t.Local()
	now := time.Now()
	if local.Year() == now.Year() && local.YearDay() == now.YearDay() {
		return local.Format("15:04")
	}
	return local.Format("Jan 2 15:04")
}

func formatUptime(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	mins := int(d.Minutes()) % 60
	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, mins)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, mins)
	}
	return fmt.Sprintf("%dm", mins)
}

func jsonResponse(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
