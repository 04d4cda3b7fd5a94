package freshdesk

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
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
		APIKey:     "fd-key",
		Timeout:    2 * time.Second,
		MaxRetries: 1,
		RetryDelay: time.Millisecond,
	}, nil)
}

func TestNewClient_DomainURL(t *testing.T) {
	c := NewClient(&Config{Domain: "acme"}, nil)
	assert.Equal(t, "https://acme.freshdesk.com/api/v2", c.baseURL)
}

func TestSearchOpenTicketByEmail(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search/tickets", r.URL.Path)
		assert.Equal(t, `"requester_email:'a@b.com' AND status:2"`, r.URL.Query().Get("query"))
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "fd-key", user)
		assert.Equal(t, "X", pass)
		_, _ = w.Write([]byte(`{"results":[{"id":42,"status":2},{"id":7,"status":2}],"total":2}`))
	})

	ticket, err := c.SearchOpenTicketByEmail(context.Background(), "a@b.com")
	require.NoError(t, err)
	require.NotNil(t, ticket)
	assert.Equal(t, int64(42), ticket.ID)
}

func TestSearchOpenTicketByEmail_NoResults(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"results":[],"total":0}`))
	})
	ticket, err := c.SearchOpenTicketByEmail(context.Background(), "a@b.com")
	require.NoError(t, err)
	assert.Nil(t, ticket)
}

func TestUpdateTicketCustomFields(t *testing.T) {
	var body map[string]map[string]interface{}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/tickets/42", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, _ = w.Write([]byte(`{"id":42}`))
	})

	err := c.UpdateTicketCustomFields(context.Background(), 42, CustomFields{
		FrictionScore:  55,
		CartValue:      25000,
		OrderStage:     "PRE_ORDER",
		GuestCount:     120,
		ConversationID: "conv-1",
	})
	require.NoError(t, err)
	cf := body["custom_fields"]
	assert.EqualValues(t, 55, cf["cf_friction_score"])
	assert.EqualValues(t, 25000, cf["cf_cart_value"])
	assert.Equal(t, "PRE_ORDER", cf["cf_order_stage"])
	assert.Equal(t, "conv-1", cf["cf_freshchat_conversation_id"])
}

func TestCreateTicket_Expects201(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req CreateTicketRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, SourceChat, req.Source)
		assert.Equal(t, StatusOpen, req.Status)
		assert.Equal(t, PriorityHigh, req.Priority)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":99,"status":2,"priority":3,"source":7}`))
	})

	ticket, err := c.CreateTicket(context.Background(), &CreateTicketRequest{
		Email:    "a@b.com",
		Subject:  "Support Request - WEDDING Order",
		Priority: PriorityHigh,
		Source:   SourceChat,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(99), ticket.ID)
}

func TestCreateTicket_UnexpectedStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"id":1}`))
	})
	_, err := c.CreateTicket(context.Background(), &CreateTicketRequest{Email: "a@b.com"})
	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusOK, apiErr.StatusCode)
}
