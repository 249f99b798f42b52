package store

import (
	"fmt"
	"iter"
	"time"
)

type Message struct {
	ID              int64     `json:"id"`
	ConversationKey string    `json:"conversation_key"`
	Role            string    `json:"role"`
	Name            string    `json:"name,omitempty"`
	Content         string    `json:"content"`
	TurnID          string    `json:"turn_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

func (s *Store) SaveMessage(msg *Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	content, err := s.seal(msg.Content)
	if err != nil {
		return fmt.Errorf("seal message: %w", err)
	}
	result, err := s.db.Exec(`
		INSERT INTO messages (conversation_key, role, name, content, turn_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		msg.ConversationKey, msg.Role, msg.Name, content, msg.TurnID, msg.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("save message: %w", err)
	}
	msg.ID, _ = result.LastInsertId()
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

const messageColumns = `id, conversation_key, role, name, content, turn_id, created_at`

func (s *Store) scanMessage(sc scanner) (Message, error) {
	var m Message
	var created int64
	if err := sc.Scan(&m.ID, &m.ConversationKey, &m.Role, &m.Name, &m.Content, &m.TurnID, &created); err != nil {
		return m, fmt.Errorf("scan message: %w", err)
	}
	m.CreatedAt = time.UnixMilli(created)
	content, err := s.open(m.Content)
	if err != nil {
		return m, fmt.Errorf("message %d: %w", m.ID, err)
	}
	m.Content = content
	return m, nil
}

// GetMessages returns the last limit messages of a conversation in
// chronological order.
func (s *Store) GetMessages(key string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT `+messageColumns+`
		FROM messages
		WHERE conversation_key = ?
		ORDER BY id DESC
		LIMIT ?`, key, limit)
	if err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		m, err := s.scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}

	// Reverse to get chronological order
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, rows.Err()
}

// ClearHistory deletes every message of a conversation.
func (s *Store) ClearHistory(key string) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM messages WHERE conversation_key = ?`, key)
	if err != nil {
		return 0, fmt.Errorf("clear history: %w", err)
	}
	return res.RowsAffected()
}

// DeleteMessagesBefore removes messages older than cutoff.
func (s *Store) DeleteMessagesBefore(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM messages WHERE created_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("delete old messages: %w", err)
	}
	return res.RowsAffected()
}

type Conversation struct {
	Key          string    `json:"key"`
	MessageCount int       `json:"message_count"`
	LastActive   time.Time `json:"last_active"`
}

// ListConversations returns every conversation with stored messages, most
// recently active first.
func (s *Store) ListConversations() ([]Conversation, error) {
	rows, err := s.db.Query(`
		SELECT conversation_key, COUNT(*), MAX(created_at)
		FROM messages
		GROUP BY conversation_key
		ORDER BY MAX(created_at) DESC`)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var out []Conversation
	for rows.Next() {
		var c Conversation
		var last int64
		if err := rows.Scan(&c.Key, &c.MessageCount, &last); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		c.LastActive = time.UnixMilli(last)
		out = append(out, c)
	}
	return out, rows.Err()
}

// AllMessages iterates over every stored message in insertion order.
func (s *Store) AllMessages() iter.Seq2[Message, error] {
	return func(yield func(Message, error) bool) {
		rows, err := s.db.Query(`SELECT ` + messageColumns + ` FROM messages ORDER BY id`)
		if err != nil {
			yield(Message{}, fmt.Errorf("all messages: %w", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			m, err := s.scanMessage(rows)
			if !yield(m, err) || err != nil {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(Message{}, err)
		}
	}
}
