package assistant

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	openaigo "github.com/meguminnnnnnnnn/go-openai"

	"ragchat/internal/models"
	"ragchat/internal/service/ai"
)

// scriptedModel replays canned replies and records the message lists it was
// handed, so tests can assert on assembled prompts.
type scriptedModel struct {
	mu      sync.Mutex
	replies []string
	err     error
	seen    [][]*schema.Message
}

func (m *scriptedModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := make([]*schema.Message, len(input))
	copy(copied, input)
	m.seen = append(m.seen, copied)
	if m.err != nil {
		return nil, m.err
	}
	reply := "stub reply"
	if len(m.seen) <= len(m.replies) {
		reply = m.replies[len(m.seen)-1]
	}
	return &schema.Message{Role: schema.Assistant, Content: reply}, nil
}

func (m *scriptedModel) lastSeen() []*schema.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.seen) == 0 {
		return nil
	}
	return m.seen[len(m.seen)-1]
}

func TestChatEmptyMessageRecordsNothing(t *testing.T) {
	mdl := &scriptedModel{}
	svc, db := newTestService(t, Options{LLM: ai.NewClientFromModel(mdl, nil)})
	ctx := context.Background()
	se, err := svc.CreateSession(ctx, "")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	if _, _, err := svc.Chat(ctx, se.ID, "   \n"); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("no turn may be recorded for an empty message, got %d", count)
	}
}

func TestChatStrictUnknownSession(t *testing.T) {
	svc, _ := newTestService(t, Options{LLM: ai.NewClientFromModel(&scriptedModel{}, nil)})
	if _, _, err := svc.Chat(context.Background(), "missing", "hello"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows in strict mode, got %v", err)
	}
}

func TestChatLenientAutoCreatesSession(t *testing.T) {
	svc, _ := newTestService(t, Options{
		LLM:             ai.NewClientFromModel(&scriptedModel{}, nil),
		LenientSessions: true,
	})
	ctx := context.Background()
	reply, sessionID, err := svc.Chat(ctx, "fresh-id", "hello")
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if reply == "" || sessionID != "fresh-id" {
		t.Fatalf("unexpected result: %q / %q", reply, sessionID)
	}
	if exists, _ := svc.SessionExists(ctx, "fresh-id"); !exists {
		t.Fatalf("session was not auto-created")
	}
}

func TestChatBlankSessionIDCreatesSession(t *testing.T) {
	svc, _ := newTestService(t, Options{LLM: ai.NewClientFromModel(&scriptedModel{}, nil)})
	_, sessionID, err := svc.Chat(context.Background(), "", "hello")
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if sessionID == "" {
		t.Fatalf("expected a session id for blank request")
	}
}

func TestChatHistoryReplayScenario(t *testing.T) {
	mdl := &scriptedModel{replies: []string{"Nice to meet you, X.", "Your name is X."}}
	svc, _ := newTestService(t, Options{LLM: ai.NewClientFromModel(mdl, nil)})
	ctx := context.Background()
	se, err := svc.CreateSession(ctx, "")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	if _, _, err := svc.Chat(ctx, se.ID, "My name is X"); err != nil {
		t.Fatalf("first chat: %v", err)
	}
	if _, _, err := svc.Chat(ctx, se.ID, "What is my name?"); err != nil {
		t.Fatalf("second chat: %v", err)
	}

	prompt := mdl.lastSeen()
	// system + two prior turns + new user turn
	if len(prompt) != 4 {
		t.Fatalf("expected 4 messages in second prompt, got %d", len(prompt))
	}
	if prompt[1].Role != schema.User || prompt[1].Content != "My name is X" {
		t.Fatalf("first history turn wrong: %+v", prompt[1])
	}
	if prompt[2].Role != schema.Assistant || prompt[2].Content != "Nice to meet you, X." {
		t.Fatalf("second history turn wrong: %+v", prompt[2])
	}
	if prompt[3].Role != schema.User || prompt[3].Content != "What is my name?" {
		t.Fatalf("new turn wrong: %+v", prompt[3])
	}

	messages, err := svc.ListMessages(ctx, se.ID)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(messages) != 4 {
		t.Fatalf("expected 4 recorded turns, got %d", len(messages))
	}
}

func TestChatProviderAuthFailureKeepsUserTurn(t *testing.T) {
	mdl := &scriptedModel{err: &openaigo.APIError{HTTPStatusCode: http.StatusUnauthorized, Message: "bad key"}}
	svc, _ := newTestService(t, Options{LLM: ai.NewClientFromModel(mdl, nil)})
	ctx := context.Background()
	se, err := svc.CreateSession(ctx, "")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	_, _, err = svc.Chat(ctx, se.ID, "hello")
	if kind, ok := ai.KindOf(err); !ok || kind != ai.KindUnauthorized {
		t.Fatalf("expected unauthorized kind, got %v", err)
	}

	messages, lerr := svc.ListMessages(ctx, se.ID)
	if lerr != nil {
		t.Fatalf("list messages: %v", lerr)
	}
	if len(messages) != 1 || messages[0].Role != models.RoleUser {
		t.Fatalf("expected only the user turn recorded, got %+v", messages)
	}
}

func TestChatUnconfiguredClientUnavailable(t *testing.T) {
	svc, db := newTestService(t, Options{})
	ctx := context.Background()
	se, err := svc.CreateSession(ctx, "")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	_, _, err = svc.Chat(ctx, se.ID, "hello")
	if !errors.Is(err, ai.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM messages WHERE role = ?`, models.RoleAssistant).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("no assistant turn may be recorded on failure")
	}
}
