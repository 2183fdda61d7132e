package assistant

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"go.uber.org/zap"

	"ragchat/internal/models"
	"ragchat/internal/rag"
)

// ErrEmptyMessage rejects chat requests whose message is blank after
// trimming.
var ErrEmptyMessage = errors.New("message cannot be empty")

type chatResult struct {
	reply string
	err   error
}

// Chat handles one conversational turn: resolve the session, assemble the
// prompt, record the user turn, run the completion, record the reply.
// Returns the assistant text and the session id (freshly created when the
// request carried none).
func (s *Service) Chat(ctx context.Context, sessionID, userMessage string) (string, string, error) {
	userMessage = strings.TrimSpace(userMessage)
	if userMessage == "" {
		return "", sessionID, ErrEmptyMessage
	}

	if sessionID == "" {
		se, err := s.CreateSession(ctx, "")
		if err != nil {
			return "", "", err
		}
		sessionID = se.ID
	} else {
		exists, err := s.SessionExists(ctx, sessionID)
		if err != nil {
			return "", sessionID, err
		}
		if !exists {
			if !s.lenient {
				return "", sessionID, sql.ErrNoRows
			}
			if _, err := s.createSessionWithID(ctx, sessionID, models.DefaultSessionTitle); err != nil {
				return "", sessionID, err
			}
		}
	}

	// Retrieval augmentation is best effort: an empty or failing index must
	// never fail the turn.
	var fragments []string
	if s.index != nil && s.index.Size() > 0 {
		var err error
		fragments, err = s.index.Query(ctx, userMessage, rag.DefaultTopK)
		if err != nil {
			s.logger.Warn("retrieval query failed", zap.String("session_id", sessionID), zap.Error(err))
			fragments = nil
		}
	}

	history, err := s.listMessagesFromDB(ctx, sessionID)
	if err != nil {
		return "", sessionID, err
	}

	messages := assembleMessages(SystemPrompt, fragments, history, userMessage)

	// The user turn is recorded before the provider call so a crash after
	// the completion still leaves a recoverable partial record.
	if _, err := s.appendMessage(ctx, sessionID, models.RoleUser, userMessage); err != nil {
		return "", sessionID, err
	}

	resultCh := make(chan chatResult, 1)
	job := func() {
		// Detached from the request context: a successful reply is
		// persisted even when the caller has disconnected.
		jobCtx := context.Background()
		reply, err := s.llm.Complete(jobCtx, messages)
		if err == nil {
			if _, perr := s.appendMessage(jobCtx, sessionID, models.RoleAssistant, reply); perr != nil {
				err = perr
			}
		}
		resultCh <- chatResult{reply: reply, err: err}
	}

	if s.dispatcher != nil {
		if err := s.dispatcher.Submit(job); err != nil {
			return "", sessionID, err
		}
	} else {
		go job()
	}

	res := <-resultCh
	if res.err != nil {
		return "", sessionID, res.err
	}
	return res.reply, sessionID, nil
}
