package client

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newTestClient(t *testing.T, status int, body string) (*Client, *observer.ObservedLogs) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	core, logs := observer.New(zapcore.DebugLevel)
	return NewClient(srv.URL, "test-key", 0, zap.New(core)), logs
}

func TestSubmitRequest(t *testing.T) {
	var (
		gotMethod string
		gotPath   string
		gotHeader http.Header
		gotBody   SubmissionRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotHeader = r.Header.Clone()
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = w.Write([]byte(`{"message":"ok"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "test-key", time.Second, zap.NewNop())
	c.Submit(context.Background(), "coffee 5", "42")

	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "/parse", gotPath)
	assert.Equal(t, "application/json", gotHeader.Get("Content-Type"))
	assert.Equal(t, "test-key", gotHeader.Get("X-API-Key"))
	assert.NotEmpty(t, gotHeader.Get("X-Request-ID"))
	assert.Equal(t, SubmissionRequest{Text: "coffee 5", TelegramID: "42"}, gotBody)
}

func TestSubmit(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		want      Outcome
		wantReply string
		wantOK    bool
	}{
		{
			name:      "success",
			status:    http.StatusOK,
			body:      `{"message":"Logged: coffee, $5"}`,
			want:      Success("Logged: coffee, $5"),
			wantReply: "Logged: coffee, $5",
			wantOK:    true,
		},
		{
			name:      "created counts as success",
			status:    http.StatusCreated,
			body:      `{"message":"Food expense added"}`,
			want:      Success("Food expense added"),
			wantReply: "Food expense added",
			wantOK:    true,
		},
		{
			name:      "incomplete expense",
			status:    http.StatusBadRequest,
			body:      `{"detail":{"error":"incomplete_expense","message":"Incomplete expense query"}}`,
			want:      Rejected(ReasonIncompleteExpense),
			wantReply: "Please provide both the expense and the amount spent.",
			wantOK:    true,
		},
		{
			name:      "user not found",
			status:    http.StatusForbidden,
			body:      `{"detail":{"error":"user_not_found"}}`,
			want:      Rejected(ReasonUserNotWhitelisted),
			wantReply: "You are not whitelisted to use this bot. Please contact the bot owner.",
			wantOK:    true,
		},
		{
			name:   "invalid expense",
			status: http.StatusUnprocessableEntity,
			body:   `{"detail":{"error":"invalid_expense"}}`,
			want:   Rejected(ReasonNotAnExpense),
		},
		{
			name:      "unknown discriminator",
			status:    http.StatusInternalServerError,
			body:      `{"detail":{"error":"internal_error"}}`,
			want:      Rejected(ReasonUnclassified),
			wantReply: "An error occurred while processing your request. Please try again later.",
			wantOK:    true,
		},
		{
			name:      "string detail",
			status:    http.StatusForbidden,
			body:      `{"detail":"User not in whitelist"}`,
			want:      Rejected(ReasonUnclassified),
			wantReply: "An error occurred while processing your request. Please try again later.",
			wantOK:    true,
		},
		{
			name:      "missing detail",
			status:    http.StatusBadGateway,
			body:      `{}`,
			want:      Rejected(ReasonUnclassified),
			wantReply: "An error occurred while processing your request. Please try again later.",
			wantOK:    true,
		},
		{
			name:      "json array error body",
			status:    http.StatusBadRequest,
			body:      `[1,2]`,
			want:      Rejected(ReasonUnclassified),
			wantReply: "An error occurred while processing your request. Please try again later.",
			wantOK:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, tt.status, tt.body)

			got := c.Submit(context.Background(), "text", "42")
			assert.Equal(t, tt.want, got)

			reply, ok := got.Reply()
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantReply, reply)
		})
	}
}

func TestSubmitTransportFailure(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "success body not json", status: http.StatusOK, body: `<html>oops</html>`},
		{name: "success without message", status: http.StatusOK, body: `{"status":"ok"}`},
		{name: "success with non-string message", status: http.StatusOK, body: `{"message":5}`},
		{name: "success null body", status: http.StatusOK, body: `null`},
		{name: "error body not json", status: http.StatusBadGateway, body: `Bad Gateway`},
		{name: "error body empty", status: http.StatusInternalServerError, body: ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, logs := newTestClient(t, tt.status, tt.body)

			got := c.Submit(context.Background(), "text", "42")
			assert.Equal(t, KindTransportFailure, got.Kind)
			assert.Error(t, got.Err)

			reply, ok := got.Reply()
			assert.True(t, ok)
			assert.Equal(t, "An unexpected error occurred. Please try again later.", reply)
			assert.Equal(t, 1, logs.FilterLevelExact(zapcore.ErrorLevel).Len())
		})
	}
}

func TestSubmitConnectionRefused(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := lis.Addr().String()
	require.NoError(t, lis.Close())

	core, logs := observer.New(zapcore.InfoLevel)
	c := NewClient("http://"+addr, "test-key", time.Second, zap.New(core))

	got := c.Submit(context.Background(), "coffee 5", "42")
	assert.Equal(t, KindTransportFailure, got.Kind)

	reply, ok := got.Reply()
	assert.True(t, ok)
	assert.Equal(t, ReplyTransportFailure, reply)

	entries := logs.FilterMessage("unexpected error calling parse service").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "42", entries[0].ContextMap()["telegram_id"])
}

func TestSubmitCanceledContext(t *testing.T) {
	c, _ := newTestClient(t, http.StatusOK, `{"message":"never"}`)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got := c.Submit(ctx, "coffee 5", "42")
	assert.Equal(t, KindTransportFailure, got.Kind)
	assert.ErrorIs(t, got.Err, context.Canceled)
}

func TestSubmitLogging(t *testing.T) {
	c, logs := newTestClient(t, http.StatusBadRequest, `{"detail":{"error":"incomplete_expense"}}`)
	c.Submit(context.Background(), "coffee", "42")
	assert.Equal(t, 0, logs.FilterLevelExact(zapcore.ErrorLevel).Len())
	assert.Equal(t, 1, logs.FilterMessage("parse service rejected message").Len())

	c, logs = newTestClient(t, http.StatusInternalServerError, `{"detail":{"error":"boom"}}`)
	c.Submit(context.Background(), "coffee", "42")
	assert.Equal(t, 1, logs.FilterMessage("parse service error").Len())
}

func TestPing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-key", time.Second, zap.NewNop())
	assert.NoError(t, c.Ping(context.Background()))

	down := NewClient(srv.URL+"/missing", "test-key", time.Second, zap.NewNop())
	err := down.Ping(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
}

func TestDiscriminator(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "object detail", body: `{"detail":{"error":"incomplete_expense"}}`, want: "incomplete_expense"},
		{name: "string detail", body: `{"detail":"User not in whitelist"}`},
		{name: "null detail", body: `{"detail":null}`},
		{name: "no detail", body: `{"message":"boom"}`},
		{name: "array body", body: `[{"detail":{"error":"invalid_expense"}}]`},
		{name: "string body", body: `"oops"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, discriminator([]byte(tt.body)))
		})
	}
}
