package freshchat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(&Config{
		BaseURL:    srv.URL,
		APIKey:     "secret",
		Timeout:    2 * time.Second,
		MaxRetries: 2,
		RetryDelay: time.Millisecond,
	}, nil)
}

func TestSendMessage(t *testing.T) {
	var got SendMessageRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/conversations/conv-1/messages", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"m-1","conversation_id":"conv-1","actor_type":"system"}`))
	})

	msg, err := c.SendMessage(context.Background(), "conv-1", "[Asha]: hello", ActorSystem, "")
	require.NoError(t, err)
	assert.Equal(t, "m-1", msg.ID)
	require.Len(t, got.MessageParts, 1)
	assert.Equal(t, "[Asha]: hello", got.MessageParts[0].Text.Content)
	assert.Equal(t, ActorSystem, got.ActorType)
	assert.Empty(t, got.ActorID)
}

func TestSendMessage_RequiresConversation(t *testing.T) {
	c := NewClient(nil, nil)
	_, err := c.SendMessage(context.Background(), "", "hi", "", "")
	assert.Error(t, err)
}

func TestGetUser_RetriesOnServerError(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		assert.Equal(t, "/users/u-9", r.URL.Path)
		_, _ = w.Write([]byte(`{"id":"u-9","email":"guest@example.com"}`))
	})

	user, err := c.GetUser(context.Background(), "u-9")
	require.NoError(t, err)
	assert.Equal(t, "guest@example.com", user.Email)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestGetConversation_NoRetryOnClientError(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"code":404,"message":"conversation not found"}`))
	})

	_, err := c.GetConversation(context.Background(), "missing")
	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Contains(t, err.Error(), "conversation not found")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}
