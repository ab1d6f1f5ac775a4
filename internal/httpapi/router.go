// Package httpapi exposes the chat orchestrator over HTTP: the AI SDK data
// stream endpoint, draft confirmation, a WebSocket variant of the chat
// stream, health probes and Prometheus metrics.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/aatumaykin/tradiecrm/internal/agent/session"
	"github.com/aatumaykin/tradiecrm/internal/chat"
	"github.com/aatumaykin/tradiecrm/internal/crm"
	"github.com/aatumaykin/tradiecrm/internal/logger"
	"github.com/aatumaykin/tradiecrm/internal/version"
)

// DefaultConversationID is used when a request names no conversation.
const DefaultConversationID = "default"

// Chatter handles chat messages and draft confirmations.
// *chat.Orchestrator satisfies it.
type Chatter interface {
	Handle(ctx context.Context, req chat.Request, sink chat.Sink) error
	Confirm(ctx context.Context, req chat.ConfirmRequest) (*crm.Deal, error)
}

// Pinger reports whether the store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies are the services behind the router.
type Dependencies struct {
	Chat  Chatter
	Store Pinger
	// Metrics serves MetricsPath when set, usually promhttp.Handler().
	Metrics     http.Handler
	MetricsPath string
	// AllowedOrigins restricts WebSocket upgrades. Empty means same origin only.
	AllowedOrigins []string
	Logger         *logger.Logger
}

type router struct {
	deps Dependencies
	log  *logger.Logger
}

// NewRouter builds the HTTP handler.
func NewRouter(deps Dependencies) http.Handler {
	if deps.Logger == nil {
		deps.Logger = logger.Discard()
	}
	if deps.MetricsPath == "" {
		deps.MetricsPath = "/metrics"
	}
	rt := &router{deps: deps, log: deps.Logger}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.handleHealth)
	mux.HandleFunc("GET /readyz", rt.handleReady)
	mux.HandleFunc("POST /api/chat", rt.handleChat)
	mux.HandleFunc("POST /api/chat/confirm", rt.handleConfirm)
	mux.Handle("GET /api/chat/ws", rt.websocketHandler())
	if deps.Metrics != nil {
		mux.Handle("GET "+deps.MetricsPath, deps.Metrics)
	}
	return rt.logRequests(mux)
}

func (r *router) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": version.Version})
}

func (r *router) handleReady(w http.ResponseWriter, req *http.Request) {
	if r.deps.Store == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not-ready", "error": "store is not configured"})
		return
	}
	if err := r.deps.Store.Ping(req.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not-ready", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatData struct {
	WorkspaceID    string `json:"workspaceId"`
	UserID         string `json:"userId"`
	ConversationID string `json:"conversationId"`
	AuthEmail      string `json:"authEmail"`
}

type chatPayload struct {
	Messages []chatMessage `json:"messages"`
	Data     chatData      `json:"data"`
}

// request turns the payload into an orchestrator request. Only the last
// user message is used; the server keeps the conversation history.
func (p chatPayload) request() (chat.Request, error) {
	var text string
	for i := len(p.Messages) - 1; i >= 0; i-- {
		if p.Messages[i].Role == "user" {
			text = strings.TrimSpace(p.Messages[i].Content)
			break
		}
	}
	if text == "" {
		return chat.Request{}, chat.ErrEmptyMessage
	}
	ws := strings.TrimSpace(p.Data.WorkspaceID)
	if ws == "" {
		return chat.Request{}, errors.New("data.workspaceId is required")
	}
	conv := strings.TrimSpace(p.Data.ConversationID)
	if conv == "" {
		conv = DefaultConversationID
	}
	return chat.Request{
		WorkspaceID:    ws,
		UserID:         strings.TrimSpace(p.Data.UserID),
		ConversationID: conv,
		AuthEmail:      strings.TrimSpace(p.Data.AuthEmail),
		Message:        text,
	}, nil
}

func (r *router) handleChat(w http.ResponseWriter, req *http.Request) {
	var payload chatPayload
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	cr, err := payload.request()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	w.Header().Set("Content-Type", chat.DataStreamContentType)
	w.Header().Set(chat.DataStreamHeader, chat.DataStreamVersion)
	w.WriteHeader(http.StatusOK)

	// Failures were already streamed to the client.
	_ = r.deps.Chat.Handle(req.Context(), cr, chat.NewDataStreamWriter(w))
}

type confirmPayload struct {
	WorkspaceID    string `json:"workspaceId"`
	ConversationID string `json:"conversationId"`
	DraftID        string `json:"draftId"`
}

func (r *router) handleConfirm(w http.ResponseWriter, req *http.Request) {
	var payload confirmPayload
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	if payload.WorkspaceID == "" || payload.DraftID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "workspaceId and draftId are required"})
		return
	}
	if payload.ConversationID == "" {
		payload.ConversationID = DefaultConversationID
	}

	deal, err := r.deps.Chat.Confirm(req.Context(), chat.ConfirmRequest{
		WorkspaceID:    payload.WorkspaceID,
		ConversationID: payload.ConversationID,
		DraftID:        payload.DraftID,
	})
	switch {
	case errors.Is(err, session.ErrNotAwaitingConfirmation), errors.Is(err, session.ErrDraftMismatch):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		return
	case err != nil:
		r.log.ErrorCtx(req.Context(), "draft confirmation failed", err,
			logger.Field{Key: "workspace_id", Value: payload.WorkspaceID},
			logger.Field{Key: "draft_id", Value: payload.DraftID})
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create job"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "created", "deal": deal})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
