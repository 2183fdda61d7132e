// Package assistant owns conversation state: the session store, the turn
// recorder, and the context assembly that builds each model prompt.
package assistant

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"go.uber.org/zap"

	"ragchat/internal/rag"
	"ragchat/internal/redis"
	"ragchat/internal/service/ai"
	"ragchat/internal/worker"
)

// Options carries the collaborators injected into the Service.
type Options struct {
	LLM        *ai.Client
	Index      *rag.Index
	Dispatcher *worker.Dispatcher
	Cache      *redis.Client
	// LenientSessions auto-creates unknown session ids on /chat instead of
	// rejecting them.
	LenientSessions bool
	Logger          *zap.Logger
}

// Service implements conversation persistence and the chat pipeline on top
// of the relational store.
type Service struct {
	db         *sql.DB
	llm        *ai.Client
	index      *rag.Index
	dispatcher *worker.Dispatcher
	cache      *redis.Client
	lenient    bool
	logger     *zap.Logger

	gatesMu sync.Mutex
	gates   map[string]*sessionGate
}

// sessionGate serializes appends for one session and tracks the last
// recorded timestamp so creation times stay monotonically non-decreasing.
type sessionGate struct {
	mu         sync.Mutex
	lastAppend time.Time
}

// NewService constructs the assistant service.
func NewService(db *sql.DB, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:         db,
		llm:        opts.LLM,
		index:      opts.Index,
		dispatcher: opts.Dispatcher,
		cache:      opts.Cache,
		lenient:    opts.LenientSessions,
		logger:     logger,
		gates:      make(map[string]*sessionGate),
	}
}

func (s *Service) gate(sessionID string) *sessionGate {
	s.gatesMu.Lock()
	defer s.gatesMu.Unlock()
	g, ok := s.gates[sessionID]
	if !ok {
		g = &sessionGate{}
		s.gates[sessionID] = g
	}
	return g
}

func (s *Service) dropGate(sessionID string) {
	s.gatesMu.Lock()
	delete(s.gates, sessionID)
	s.gatesMu.Unlock()
}

// PingDB reports database reachability for health checks.
func (s *Service) PingDB(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// RagReady reports whether the retrieval index holds any fragments.
func (s *Service) RagReady() bool {
	return s.index != nil && s.index.Size() > 0
}

// QueueDepth reports pending completion jobs, for health diagnostics.
func (s *Service) QueueDepth() int {
	if s.dispatcher == nil {
		return 0
	}
	return s.dispatcher.QueueDepth()
}
