package api

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"ragchat/internal/rag"
	"ragchat/internal/service/ai"
	"ragchat/internal/service/assistant"
	"ragchat/internal/worker"
)

const maxUploadBytes = 32 << 20

// Handler wires HTTP routes to the assistant service and retrieval index.
type Handler struct {
	assistant *assistant.Service
	index     *rag.Index
	uploadDir string
	logger    *zap.Logger
}

// NewHandler constructs a Handler instance. index may be nil when retrieval
// is not configured.
func NewHandler(service *assistant.Service, index *rag.Index, uploadDir string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		assistant: service,
		index:     index,
		uploadDir: uploadDir,
		logger:    logger,
	}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.POST("/chat", h.chat)
	router.GET("/sessions", h.listSessions)
	router.POST("/sessions", h.createSession)
	router.DELETE("/sessions/:id", h.deleteSession)
	router.GET("/sessions/:id/messages", h.getSessionMessages)
	router.POST("/upload", h.uploadDocument)
	router.GET("/health", h.health)
}

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId"`
}

func (h *Handler) chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	reply, sessionID, err := h.assistant.Chat(c.Request.Context(), req.SessionID, req.Message)
	if err != nil {
		h.chatError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"response":  reply,
		"sessionId": sessionID,
	})
}

// chatError maps pipeline failures onto HTTP statuses. Classification is by
// error value and kind, never message text.
func (h *Handler) chatError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, assistant.ErrEmptyMessage):
		c.JSON(http.StatusBadRequest, gin.H{"error": "message cannot be empty"})
	case errors.Is(err, sql.ErrNoRows):
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
	case errors.Is(err, worker.ErrDispatcherBusy):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "server is busy, please retry"})
	default:
		if kind, ok := ai.KindOf(err); ok {
			switch kind {
			case ai.KindUnauthorized:
				c.JSON(http.StatusUnauthorized, gin.H{"error": "provider rejected the configured credential"})
				return
			case ai.KindRateLimited:
				c.JSON(http.StatusTooManyRequests, gin.H{"error": "provider rate limit exceeded"})
				return
			}
		}
		h.logger.Error("chat request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func (h *Handler) listSessions(c *gin.Context) {
	sessions, err := h.assistant.ListSessions(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, sessions)
}

func (h *Handler) createSession(c *gin.Context) {
	session, err := h.assistant.CreateSession(c.Request.Context(), "")
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"id":    session.ID,
		"title": session.Title,
	})
}

func (h *Handler) deleteSession(c *gin.Context) {
	sessionID := c.Param("id")
	if err := h.assistant.DeleteSession(c.Request.Context(), sessionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (h *Handler) getSessionMessages(c *gin.Context) {
	messages, err := h.assistant.ListMessages(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	out := make([]gin.H, 0, len(messages))
	for _, m := range messages {
		out = append(out, gin.H{
			"role":       m.Role,
			"content":    m.Content,
			"created_at": m.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) uploadDocument(c *gin.Context) {
	if h.index == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "retrieval index not configured"})
		return
	}
	if err := c.Request.ParseMultipartForm(maxUploadBytes); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid multipart form"})
		return
	}
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}

	src, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read uploaded file"})
		return
	}
	defer src.Close()
	content, err := io.ReadAll(src)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cannot read uploaded file"})
		return
	}

	filename := filepath.Base(file.Filename)
	if h.uploadDir != "" {
		if err := os.MkdirAll(h.uploadDir, 0o755); err == nil {
			if err := os.WriteFile(filepath.Join(h.uploadDir, filename), content, 0o644); err != nil {
				h.logger.Warn("persist upload failed", zap.String("file", filename), zap.Error(err))
			}
		}
	}

	text, err := rag.ExtractText(filename, content)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if _, err := h.index.AddDocument(c.Request.Context(), filename, text); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": fmt.Sprintf("File %s indexed successfully", filename)})
}

func (h *Handler) health(c *gin.Context) {
	dbStatus := "operational"
	status := "ok"
	if err := h.assistant.PingDB(c.Request.Context()); err != nil {
		dbStatus = "unreachable"
		status = "degraded"
	}
	fragments := 0
	if h.index != nil {
		fragments = h.index.Size()
	}
	c.JSON(http.StatusOK, gin.H{
		"status":      status,
		"db":          dbStatus,
		"rag_ready":   h.assistant.RagReady(),
		"fragments":   fragments,
		"queue_depth": h.assistant.QueueDepth(),
		"time":        time.Now().UTC(),
	})
}
