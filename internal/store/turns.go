package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Turn statuses.
const (
	TurnRunning   = "running"
	TurnCompleted = "completed"
	TurnFailed    = "failed"
	TurnTimeout   = "timeout"
)

// Turn is the audit record of one graph run.
type Turn struct {
	ID              string     `json:"id"`
	ConversationKey string     `json:"conversation_key,omitempty"`
	Channel         string     `json:"channel"`
	Status          string     `json:"status"`
	Path            []string   `json:"path,omitempty"`
	Steps           int        `json:"steps"`
	Reply           string     `json:"reply,omitempty"`
	OutputImage     string     `json:"output_image,omitempty"`
	Error           string     `json:"error,omitempty"`
	StartedAt       time.Time  `json:"started_at"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
}

const turnColumns = `id, conversation_key, channel, status, path, steps, reply, output_image, error, started_at, finished_at`

func (s *Store) scanTurn(sc scanner) (*Turn, error) {
	t := &Turn{}
	var path *string
	var started int64
	var finished *int64
	err := sc.Scan(&t.ID, &t.ConversationKey, &t.Channel, &t.Status, &path, &t.Steps, &t.Reply, &t.OutputImage, &t.Error, &started, &finished)
	if err != nil {
		return nil, err
	}
	if path != nil && *path != "" {
		if err := json.Unmarshal([]byte(*path), &t.Path); err != nil {
			return nil, fmt.Errorf("decode turn path: %w", err)
		}
	}
	t.StartedAt = time.UnixMilli(started)
	if finished != nil {
		ft := time.UnixMilli(*finished)
		t.FinishedAt = &ft
	}
	if t.Reply, err = s.open(t.Reply); err != nil {
		return nil, fmt.Errorf("turn %s: %w", t.ID, err)
	}
	return t, nil
}

// StartTurn records a running turn.
func (s *Store) StartTurn(t *Turn) error {
	if t.StartedAt.IsZero() {
		t.StartedAt = time.Now()
	}
	t.Status = TurnRunning
	_, err := s.db.Exec(`
		INSERT INTO turns (id, conversation_key, channel, status, started_at)
		VALUES (?, ?, ?, ?, ?)`,
		t.ID, t.ConversationKey, t.Channel, t.Status, t.StartedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("start turn: %w", err)
	}
	return nil
}

// FinishTurn stores the outcome of t.
func (s *Store) FinishTurn(t *Turn) error {
	if t.FinishedAt == nil {
		now := time.Now()
		t.FinishedAt = &now
	}
	path, err := json.Marshal(t.Path)
	if err != nil {
		return fmt.Errorf("encode turn path: %w", err)
	}
	reply, err := s.seal(t.Reply)
	if err != nil {
		return fmt.Errorf("seal reply: %w", err)
	}
	res, err := s.db.Exec(`
		UPDATE turns SET status = ?, path = ?, steps = ?, reply = ?, output_image = ?, error = ?, finished_at = ?
		WHERE id = ?`,
		t.Status, string(path), t.Steps, reply, t.OutputImage, t.Error, t.FinishedAt.UnixMilli(), t.ID)
	if err != nil {
		return fmt.Errorf("finish turn: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finish turn: %s not found", t.ID)
	}
	return nil
}

func (s *Store) GetTurn(id string) (*Turn, error) {
	row := s.db.QueryRow(`SELECT `+turnColumns+` FROM turns WHERE id = ?`, id)
	t, err := s.scanTurn(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get turn: %w", err)
	}
	return t, nil
}

// ListTurns returns the most recent turns of a conversation, newest first.
// An empty key lists turns of every conversation.
func (s *Store) ListTurns(key string, limit int) ([]Turn, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT `+turnColumns+` FROM turns
		WHERE ? = '' OR conversation_key = ?
		ORDER BY started_at DESC
		LIMIT ?`, key, key, limit)
	if err != nil {
		return nil, fmt.Errorf("list turns: %w", err)
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		t, err := s.scanTurn(rows)
		if err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		turns = append(turns, *t)
	}
	return turns, rows.Err()
}

// DeleteTurnsBefore removes finished turns that started before cutoff.
func (s *Store) DeleteTurnsBefore(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM turns WHERE started_at < ? AND status != ?`, cutoff.UnixMilli(), TurnRunning)
	if err != nil {
		return 0, fmt.Errorf("delete old turns: %w", err)
	}
	return res.RowsAffected()
}
