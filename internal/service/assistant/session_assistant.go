package assistant

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ragchat/internal/models"
	"ragchat/internal/redis"
)

const messagesCacheTTL = 5 * time.Minute

func messagesCacheKey(sessionID string) string {
	return fmt.Sprintf("session:%s:messages", sessionID)
}

// CreateSession inserts a new session and returns the record.
func (s *Service) CreateSession(ctx context.Context, title string) (*models.Session, error) {
	if title == "" {
		title = models.DefaultSessionTitle
	}
	return s.createSessionWithID(ctx, uuid.NewString(), title)
}

func (s *Service) createSessionWithID(ctx context.Context, id, title string) (*models.Session, error) {
	now := time.Now().UTC()
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, title, created_at) VALUES (?, ?, ?)`,
		id, title, now,
	); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return &models.Session{ID: id, Title: title, CreatedAt: now}, nil
}

// ListSessions returns all sessions, newest first.
func (s *Service) ListSessions(ctx context.Context) ([]models.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, created_at FROM sessions ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]models.Session, 0)
	for rows.Next() {
		var se models.Session
		if err := rows.Scan(&se.ID, &se.Title, &se.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, se)
	}
	return sessions, rows.Err()
}

// SessionExists reports whether the session id is present.
func (s *Service) SessionExists(ctx context.Context, sessionID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM sessions WHERE id = ?`, sessionID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check session: %w", err)
	}
	return true, nil
}

// ListMessages returns a session's turns ordered by creation time. Unknown
// sessions yield sql.ErrNoRows. Reads go through the redis cache when one is
// configured.
func (s *Service) ListMessages(ctx context.Context, sessionID string) ([]*models.Message, error) {
	exists, err := s.SessionExists(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, sql.ErrNoRows
	}

	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, messagesCacheKey(sessionID)); err == nil {
			var messages []*models.Message
			if err := json.Unmarshal([]byte(cached), &messages); err == nil {
				return messages, nil
			}
		} else if !errors.Is(err, redis.ErrCacheMiss) {
			s.logger.Warn("message cache read failed", zap.String("session_id", sessionID), zap.Error(err))
		}
	}

	messages, err := s.listMessagesFromDB(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if payload, err := json.Marshal(messages); err == nil {
			if err := s.cache.Set(ctx, messagesCacheKey(sessionID), payload, messagesCacheTTL); err != nil {
				s.logger.Warn("message cache write failed", zap.String("session_id", sessionID), zap.Error(err))
			}
		}
	}
	return messages, nil
}

func (s *Service) listMessagesFromDB(ctx context.Context, sessionID string) ([]*models.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, role, content, created_at FROM messages WHERE session_id = ? ORDER BY created_at ASC, id ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	messages := make([]*models.Message, 0)
	for rows.Next() {
		m := new(models.Message)
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// appendMessage durably records one turn. Appends for the same session are
// serialized and their timestamps clamped non-decreasing.
func (s *Service) appendMessage(ctx context.Context, sessionID string, role models.Role, content string) (*models.Message, error) {
	gate := s.gate(sessionID)
	gate.mu.Lock()
	defer gate.mu.Unlock()

	now := time.Now().UTC()
	if !now.After(gate.lastAppend) {
		now = gate.lastAppend.Add(time.Microsecond)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (session_id, role, content, created_at) VALUES (?, ?, ?, ?)`,
		sessionID, role, content, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("message id: %w", err)
	}
	gate.lastAppend = now

	if s.cache != nil {
		if err := s.cache.Del(ctx, messagesCacheKey(sessionID)); err != nil {
			s.logger.Warn("message cache invalidation failed", zap.String("session_id", sessionID), zap.Error(err))
		}
	}

	return &models.Message{
		ID:        id,
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: now,
	}, nil
}

// DeleteSession removes a session and all its turns as one unit. Returns
// sql.ErrNoRows when the session does not exist; in that case nothing is
// touched.
func (s *Service) DeleteSession(ctx context.Context, sessionID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("session rows affected: %w", err)
	}
	if affected == 0 {
		tx.Rollback()
		return sql.ErrNoRows
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit delete session: %w", err)
	}

	s.dropGate(sessionID)
	if s.cache != nil {
		if err := s.cache.Del(ctx, messagesCacheKey(sessionID)); err != nil {
			s.logger.Warn("message cache invalidation failed", zap.String("session_id", sessionID), zap.Error(err))
		}
	}
	return nil
}
