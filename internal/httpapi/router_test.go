package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aatumaykin/tradiecrm/internal/agent/session"
	"github.com/aatumaykin/tradiecrm/internal/chat"
	"github.com/aatumaykin/tradiecrm/internal/crm"
	"github.com/aatumaykin/tradiecrm/internal/metrics"
)

type fakeChat struct {
	mu         sync.Mutex
	requests   []chat.Request
	confirmErr error
}

func (f *fakeChat) Handle(_ context.Context, req chat.Request, sink chat.Sink) error {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	for _, ev := range []chat.Event{
		{Type: chat.EventText, Text: "Echo: " + req.Message},
		{Type: chat.EventFinishStep, Finish: &chat.Finish{FinishReason: chat.FinishStop}},
		{Type: chat.EventFinish, Finish: &chat.Finish{FinishReason: chat.FinishStop}},
	} {
		if err := sink.Send(ev); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeChat) Confirm(_ context.Context, req chat.ConfirmRequest) (*crm.Deal, error) {
	if f.confirmErr != nil {
		return nil, f.confirmErr
	}
	return &crm.Deal{ID: "deal-1", WorkspaceID: req.WorkspaceID, Title: "Sink Repair", Stage: crm.StageScheduled}, nil
}

func (f *fakeChat) last() chat.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func newTestRouter(fc *fakeChat, ping error) http.Handler {
	reg := prometheus.NewRegistry()
	m := metrics.New("tradiecrm", reg)
	m.RecordParse(true)
	return NewRouter(Dependencies{
		Chat:    fc,
		Store:   fakePinger{err: ping},
		Metrics: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	h.ServeHTTP(res, req)
	return res
}

func TestChatStreamsDataProtocol(t *testing.T) {
	fc := &fakeChat{}
	h := newTestRouter(fc, nil)

	res := do(t, h, http.MethodPost, "/api/chat", `{
		"messages": [
			{"role": "user", "content": "first"},
			{"role": "assistant", "content": "ok"},
			{"role": "user", "content": "  list my jobs  "}
		],
		"data": {"workspaceId": "ws-1", "userId": "u-1", "authEmail": "a@b.c"}
	}`)

	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "text/plain; charset=utf-8", res.Header().Get("Content-Type"))
	assert.Equal(t, "v1", res.Header().Get("X-Vercel-AI-Data-Stream"))
	assert.Equal(t,
		"0:\"Echo: list my jobs\"\n"+
			"e:{\"finishReason\":\"stop\",\"usage\":{\"promptTokens\":0,\"completionTokens\":0},\"isContinued\":false}\n"+
			"d:{\"finishReason\":\"stop\",\"usage\":{\"promptTokens\":0,\"completionTokens\":0}}\n",
		res.Body.String())

	got := fc.last()
	assert.Equal(t, chat.Request{
		WorkspaceID:    "ws-1",
		UserID:         "u-1",
		ConversationID: DefaultConversationID,
		AuthEmail:      "a@b.c",
		Message:        "list my jobs",
	}, got)
}

func TestChatRejectsBadRequests(t *testing.T) {
	h := newTestRouter(&fakeChat{}, nil)

	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{name: "invalid json", body: `{`, wantErr: "invalid payload"},
		{name: "no user message", body: `{"messages":[{"role":"assistant","content":"hi"}],"data":{"workspaceId":"ws-1"}}`, wantErr: "no user message"},
		{name: "no workspace", body: `{"messages":[{"role":"user","content":"hi"}]}`, wantErr: "data.workspaceId is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := do(t, h, http.MethodPost, "/api/chat", tt.body)
			assert.Equal(t, http.StatusBadRequest, res.Code)
			assert.Contains(t, res.Body.String(), tt.wantErr)
		})
	}

	res := do(t, h, http.MethodGet, "/api/chat", "")
	assert.Equal(t, http.StatusMethodNotAllowed, res.Code)
}

func TestConfirm(t *testing.T) {
	fc := &fakeChat{}
	h := newTestRouter(fc, nil)

	res := do(t, h, http.MethodPost, "/api/chat/confirm", `{"workspaceId":"ws-1","conversationId":"c-1","draftId":"draft_1"}`)
	require.Equal(t, http.StatusOK, res.Code)
	var body struct {
		Status string   `json:"status"`
		Deal   crm.Deal `json:"deal"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &body))
	assert.Equal(t, "created", body.Status)
	assert.Equal(t, "deal-1", body.Deal.ID)

	res = do(t, h, http.MethodPost, "/api/chat/confirm", `{"workspaceId":"ws-1"}`)
	assert.Equal(t, http.StatusBadRequest, res.Code)

	fc.confirmErr = session.ErrNotAwaitingConfirmation
	res = do(t, h, http.MethodPost, "/api/chat/confirm", `{"workspaceId":"ws-1","draftId":"draft_1"}`)
	assert.Equal(t, http.StatusConflict, res.Code)

	fc.confirmErr = errors.New("disk full")
	res = do(t, h, http.MethodPost, "/api/chat/confirm", `{"workspaceId":"ws-1","draftId":"draft_1"}`)
	assert.Equal(t, http.StatusInternalServerError, res.Code)
	assert.NotContains(t, res.Body.String(), "disk full")
}

func TestHealthReadyAndMetrics(t *testing.T) {
	h := newTestRouter(&fakeChat{}, nil)

	res := do(t, h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), `"status":"ok"`)

	res = do(t, h, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, res.Code)

	res = do(t, h, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), `tradiecrm_intake_parse_total{result="matched"} 1`)

	down := newTestRouter(&fakeChat{}, errors.New("database is locked"))
	res = do(t, down, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, res.Code)
	assert.Contains(t, res.Body.String(), "database is locked")
}

func TestWebSocketChat(t *testing.T) {
	fc := &fakeChat{}
	srv := httptest.NewServer(newTestRouter(fc, nil))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/chat/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	require.NoError(t, conn.WriteJSON(map[string]any{
		"messages": []map[string]string{{"role": "user", "content": "hello"}},
		"data":     map[string]string{"workspaceId": "ws-1", "conversationId": "c-9"},
	}))

	var frames []chat.Event
	for {
		var ev chat.Event
		require.NoError(t, conn.ReadJSON(&ev))
		frames = append(frames, ev)
		if ev.Type == chat.EventFinish {
			break
		}
	}
	require.Len(t, frames, 3)
	assert.Equal(t, chat.EventText, frames[0].Type)
	assert.Equal(t, "Echo: hello", frames[0].Text)
	assert.Equal(t, "c-9", fc.last().ConversationID)

	require.NoError(t, conn.WriteJSON(map[string]any{"messages": []any{}}))
	var ev chat.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, chat.EventError, ev.Type)
	assert.Equal(t, "no user message", ev.Error)
}

func TestOriginChecker(t *testing.T) {
	assert.Nil(t, originChecker(nil))

	check := originChecker([]string{"https://app.example.com/"})
	req := httptest.NewRequest(http.MethodGet, "/api/chat/ws", nil)
	req.Header.Set("Origin", "https://app.example.com")
	assert.True(t, check(req))
	req.Header.Set("Origin", "https://evil.example.com")
	assert.False(t, check(req))

	all := originChecker([]string{"*"})
	assert.True(t, all(req))
}
