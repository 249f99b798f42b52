// Package chat runs conversation turns for the transports: it builds the
// initial state, enforces the turn budget, persists history and delivers
// the final reply.
package chat

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mtzanidakis/counterman/internal/conversation"
	"github.com/mtzanidakis/counterman/internal/graph"
	"github.com/mtzanidakis/counterman/internal/metrics"
	"github.com/mtzanidakis/counterman/internal/natsbus"
	"github.com/mtzanidakis/counterman/internal/store"
)

const (
	// DefaultReply is sent when a turn produced no assistant message.
	DefaultReply = "I'm sorry, I'm not sure what you're asking for. Please try again."
	// Apology replaces the reply when a turn fails or runs out of time.
	Apology = "I'm sorry, something went wrong while handling your request. Please try again in a moment."

	ClearCommand = "/clear"
	ClearedReply = "Your conversation history has been cleared."

	DefaultBudget       = 60 * time.Second
	DefaultHistoryLimit = 50
)

// Channel names used as conversation key prefixes.
const (
	ChannelHTTP     = "http"
	ChannelSMS      = "sms"
	ChannelTelegram = "telegram"
	ChannelCLI      = "cli"
)

type Reply struct {
	Message     string `json:"message"`
	OutputImage string `json:"output_image,omitempty"`
	TurnID      string `json:"turn_id,omitempty"`
}

// Inbound is one user message arriving on a history-backed channel.
type Inbound struct {
	Channel string
	Address string
	Text    string
}

// Key identifies the conversation the message belongs to.
func (in Inbound) Key() string {
	return ConversationKey(in.Channel, in.Address)
}

func ConversationKey(channel, address string) string {
	return channel + ":" + address
}

// Sender delivers a reply to an address on one channel.
type Sender interface {
	Send(ctx context.Context, address string, r Reply) error
}

// Runner executes the conversation graph.
type Runner interface {
	Stream(ctx context.Context, st conversation.State) iter.Seq2[graph.Step, error]
}

type Config struct {
	Budget       time.Duration
	HistoryLimit int
}

type Option func(*Service)

func WithStore(s *store.Store) Option {
	return func(svc *Service) { svc.store = s }
}

func WithBus(c *natsbus.Client) Option {
	return func(svc *Service) { svc.bus = c }
}

func WithMetrics(m *metrics.Collector) Option {
	return func(svc *Service) { svc.metrics = m }
}

type Service struct {
	runner  Runner
	cfg     Config
	store   *store.Store
	bus     *natsbus.Client
	metrics *metrics.Collector

	mu      sync.Mutex
	queues  map[string]*conversationQueue
	senders map[string]Sender
	wg      sync.WaitGroup
	closed  bool
}

func New(runner Runner, cfg Config, opts ...Option) *Service {
	if cfg.Budget <= 0 {
		cfg.Budget = DefaultBudget
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = DefaultHistoryLimit
	}
	s := &Service{
		runner:  runner,
		cfg:     cfg,
		queues:  make(map[string]*conversationQueue),
		senders: make(map[string]Sender),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterSender sets the sender used for replies on channel.
func (s *Service) RegisterSender(channel string, snd Sender) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.senders[channel] = snd
}

func (s *Service) sender(channel string) Sender {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.senders[channel]
}

// Answer runs one stateless turn over msgs. On failure the reply carries
// the apology and the error is returned alongside it.
func (s *Service) Answer(ctx context.Context, msgs []conversation.Message) (Reply, error) {
	return s.runTurn(ctx, ChannelHTTP, "", msgs)
}

// HandleInbound accepts a message for a history-backed conversation and
// processes it asynchronously. Messages of the same conversation are
// handled one at a time, in arrival order. It reports false when the
// service is closed and the message was dropped.
func (s *Service) HandleInbound(ctx context.Context, in Inbound) bool {
	ctx = context.WithoutCancel(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		slog.Warn("inbound message dropped, service closed", "conversation", in.Key())
		return false
	}
	q := s.queueLocked(in.Key())
	q.Enqueue(in)
	s.wg.Go(func() { s.processQueue(ctx, q) })
	return true
}

// Close stops accepting inbound messages. Messages already accepted are
// still handled; use Wait to block until they are.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

// Wait blocks until every accepted inbound message has been handled.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) queueLocked(key string) *conversationQueue {
	q, ok := s.queues[key]
	if !ok {
		q = newConversationQueue(key)
		s.queues[key] = q
	}
	return q
}

func (s *Service) processQueue(ctx context.Context, q *conversationQueue) {
	if !q.TryLock() {
		return // Already processing
	}
	for {
		for {
			in, ok := q.Dequeue()
			if !ok {
				break
			}
			if err := s.handle(ctx, in); err != nil {
				slog.Error("inbound message failed", "conversation", q.key, "error", err)
			}
		}
		if q.Unlock() {
			return
		}
	}
}

// handle runs the turn for one inbound message and delivers the reply.
func (s *Service) handle(ctx context.Context, in Inbound) error {
	key := in.Key()
	text := strings.TrimSpace(in.Text)

	var reply Reply
	if text == ClearCommand {
		if err := s.clear(key); err != nil {
			return err
		}
		reply = Reply{Message: ClearedReply}
	} else {
		history, err := s.history(key)
		if err != nil {
			return err
		}
		user := conversation.UserMessage(text)
		msgs := append(history, user)

		var turnErr error
		reply, turnErr = s.runTurn(ctx, in.Channel, key, msgs)
		if err := s.persist(key, reply, user, turnErr == nil); err != nil {
			slog.Error("persist conversation failed", "conversation", key, "error", err)
		}
	}

	snd := s.sender(in.Channel)
	if snd == nil {
		return fmt.Errorf("no sender for channel %s", in.Channel)
	}
	if err := snd.Send(ctx, in.Address, reply); err != nil {
		return fmt.Errorf("send reply: %w", err)
	}
	return nil
}

func (s *Service) clear(key string) error {
	if s.store == nil {
		return nil
	}
	n, err := s.store.ClearHistory(key)
	if err != nil {
		return err
	}
	slog.Info("history cleared", "conversation", key, "messages", n)
	if err := s.bus.PublishJSON(natsbus.TopicEventsHistory, map[string]any{"conversation_key": key, "deleted": n}); err != nil {
		slog.Warn("publish history event failed", "error", err)
	}
	return nil
}

func (s *Service) history(key string) ([]conversation.Message, error) {
	if s.store == nil {
		return nil, nil
	}
	stored, err := s.store.GetMessages(key, s.cfg.HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	msgs := make([]conversation.Message, 0, len(stored)+1)
	for _, m := range stored {
		msgs = append(msgs, conversation.Message{Role: conversation.Role(m.Role), Content: m.Content, Name: m.Name})
	}
	return msgs, nil
}

// persist stores the user message and, for successful turns, the reply.
func (s *Service) persist(key string, reply Reply, user conversation.Message, ok bool) error {
	if s.store == nil {
		return nil
	}
	if err := s.store.SaveMessage(&store.Message{
		ConversationKey: key,
		Role:            string(user.Role),
		Content:         user.Content,
		TurnID:          reply.TurnID,
	}); err != nil {
		return err
	}
	if !ok {
		return nil
	}
	return s.store.SaveMessage(&store.Message{
		ConversationKey: key,
		Role:            string(conversation.RoleAssistant),
		Name:            string(conversation.HumanInteraction),
		Content:         reply.Message,
		TurnID:          reply.TurnID,
	})
}

// runTurn executes the graph under the turn budget. Every step is
// published; the outcome is recorded in the turn audit.
func (s *Service) runTurn(ctx context.Context, channel, key string, msgs []conversation.Message) (Reply, error) {
	turnID := uuid.NewString()
	start := time.Now()
	log := slog.With("turn", turnID, "channel", channel)

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Budget)
	defer cancel()

	audit := &store.Turn{ID: turnID, ConversationKey: key, Channel: channel, StartedAt: start}
	if s.store != nil {
		if err := s.store.StartTurn(audit); err != nil {
			log.Warn("turn audit failed", "error", err)
		}
	}
	s.publish(natsbus.TopicEventsTurnStarted, TurnEvent{TurnID: turnID, Channel: channel, ConversationKey: key, Status: store.TurnRunning})

	var (
		final   = conversation.NewState(msgs)
		turnErr error
		errNote string
	)
	for step, err := range s.runner.Stream(ctx, final) {
		if err != nil {
			turnErr = err
			break
		}
		final = step.State
		if note := step.State.ErrorNote(); note != "" {
			errNote = note
		}
		audit.Path = append(audit.Path, string(step.Node))
		s.publish(natsbus.TopicTurnStep(turnID), newStepEvent(turnID, step))
	}
	audit.Steps = len(audit.Path)

	reply := Reply{TurnID: turnID}
	switch {
	case errors.Is(turnErr, context.DeadlineExceeded), turnErr != nil && errors.Is(ctx.Err(), context.DeadlineExceeded):
		audit.Status = store.TurnTimeout
	case turnErr != nil:
		audit.Status = store.TurnFailed
	default:
		audit.Status = store.TurnCompleted
	}

	if turnErr != nil {
		log.Error("turn failed", "status", audit.Status, "steps", audit.Steps, "error", turnErr)
		audit.Error = turnErr.Error()
		reply.Message = Apology
	} else {
		reply.Message = finalMessage(final.Messages[len(msgs):])
		reply.OutputImage = final.OutputImage
		audit.Error = errNote
		log.Info("turn completed", "steps", audit.Steps, "duration", time.Since(start))
	}
	audit.Reply = reply.Message
	audit.OutputImage = reply.OutputImage

	s.metrics.Turn(audit.Status, time.Since(start), audit.Steps)
	if s.store != nil {
		if err := s.store.FinishTurn(audit); err != nil {
			log.Warn("turn audit failed", "error", err)
		}
	}
	s.publish(natsbus.TopicEventsTurnComplete, TurnEvent{
		TurnID:          turnID,
		Channel:         channel,
		ConversationKey: key,
		Status:          audit.Status,
		Steps:           audit.Steps,
		Path:            audit.Path,
		Reply:           reply.Message,
		OutputImage:     reply.OutputImage,
		Error:           audit.Error,
		DurationMS:      time.Since(start).Milliseconds(),
	})

	if turnErr != nil {
		return reply, fmt.Errorf("turn %s: %w", turnID, turnErr)
	}
	return reply, nil
}

// finalMessage picks the last assistant message the turn produced.
func finalMessage(produced []conversation.Message) string {
	if m, ok := conversation.LastAssistant(produced); ok && strings.TrimSpace(m.Content) != "" {
		return m.Content
	}
	return DefaultReply
}

func (s *Service) publish(topic string, v any) {
	if err := s.bus.PublishJSON(topic, v); err != nil {
		slog.Warn("publish event failed", "topic", topic, "error", err)
	}
}
