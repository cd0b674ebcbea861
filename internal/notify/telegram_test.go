package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestTelegramNotify(t *testing.T) {
	t.Parallel()

	var (
		mu       sync.Mutex
		gotPath  string
		gotForm  map[string]string
		requests int
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		mu.Lock()
		requests++
		gotPath = r.URL.Path
		gotForm = map[string]string{
			"chat_id":    r.PostFormValue("chat_id"),
			"text":       r.PostFormValue("text"),
			"parse_mode": r.PostFormValue("parse_mode"),
		}
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sink := NewTelegram("bot-token", "chat-42", zap.NewNop(), WithAPIBase(server.URL))
	require.NoError(t, sink.Notify(context.Background(), "*Capture Failures*"))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, requests)
	assert.Equal(t, "/botbot-token/sendMessage", gotPath)
	assert.Equal(t, "chat-42", gotForm["chat_id"])
	assert.Equal(t, "*Capture Failures*", gotForm["text"])
	assert.Equal(t, "Markdown", gotForm["parse_mode"])
}

func TestTelegramNotifyMissingCredentialsSkips(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		requests++
		mu.Unlock()
	}))
	defer server.Close()

	sink := NewTelegram("", "", zap.NewNop(), WithAPIBase(server.URL))
	require.NoError(t, sink.Notify(context.Background(), "message"))

	mu.Lock()
	assert.Zero(t, requests, "no delivery attempt without credentials")
	mu.Unlock()
}

func TestTelegramNotifyNon200IsAnError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"ok":false}`, http.StatusForbidden)
	}))
	defer server.Close()

	sink := NewTelegram("token", "chat", zap.NewNop(), WithAPIBase(server.URL))
	err := sink.Notify(context.Background(), "message")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}
