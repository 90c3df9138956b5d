package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsdesk/teamchat/internal/chat"
	"github.com/opsdesk/teamchat/internal/protocol"
	"github.com/opsdesk/teamchat/internal/session"
)

func newTestClient(t *testing.T, h http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL, opts...)
	require.NoError(t, err)
	return c
}

func TestNew_RejectsBadURL(t *testing.T) {
	_, err := New("ftp://example.com")
	assert.Error(t, err)

	_, err = New("://bad")
	assert.Error(t, err)
}

func TestAuthenticate(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, protocol.PathMe, r.URL.Path)
		if r.Header.Get("Authorization") != "Bearer tok-1" {
			protocol.WriteError(w, http.StatusUnauthorized, protocol.CodeUnauthorized, "bad token")
			return
		}
		protocol.WriteJSON(w, http.StatusOK, session.Session{ID: "u-1", DisplayName: "Ada"})
	})

	s, err := c.Authenticate(context.Background(), "tok-1")
	require.NoError(t, err)
	assert.Equal(t, "u-1", s.ID)

	_, err = c.Authenticate(context.Background(), "wrong")
	assert.ErrorIs(t, err, ErrUnauthorized)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, protocol.CodeUnauthorized, apiErr.Code)
	assert.Equal(t, "bad token", apiErr.Message)
}

func TestListMessages_SendsPagingAndToken(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, protocol.PathMessages, r.URL.Path)
		assert.Equal(t, "0", r.URL.Query().Get("skip"))
		assert.Equal(t, "100", r.URL.Query().Get("limit"))
		assert.Equal(t, "Bearer live", r.Header.Get("Authorization"))
		protocol.WriteJSON(w, http.StatusOK, []chat.Message{
			{ID: "b", AuthorID: "u", Body: "second", CreatedAt: now.Add(time.Second)},
			{ID: "a", AuthorID: "u", Body: "first", CreatedAt: now},
		})
	}, WithTokenSource(StaticToken("live")))

	msgs, err := c.ListMessages(context.Background())
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	// Server order is preserved; sorting is the caller's job.
	assert.Equal(t, "b", msgs[0].ID)
}

func TestTokenSourceReadPerRequest(t *testing.T) {
	var seen []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Header.Get("Authorization"))
		protocol.WriteJSON(w, http.StatusOK, []chat.TypingIndicator{})
	}, WithTokenSource(&rotatingToken{tokens: []string{"one", ""}}))

	_, err := c.ListTyping(context.Background())
	require.NoError(t, err)
	_, err = c.ListTyping(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"Bearer one", ""}, seen)
}

type rotatingToken struct {
	tokens []string
	i      int
}

func (r *rotatingToken) Token() string {
	t := r.tokens[r.i%len(r.tokens)]
	r.i++
	return t
}

func TestSendMessage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var req protocol.SendMessageRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		protocol.WriteJSON(w, http.StatusCreated, chat.Message{ID: "m-1", Body: req.Body})
	})

	m, err := c.SendMessage(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "m-1", m.ID)
	assert.Equal(t, "hello", m.Body)
}

func TestSendMessage_RateLimited(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		protocol.WriteJSON(w, http.StatusTooManyRequests, protocol.ErrorResponse{
			Code: protocol.CodeRateLimited, Message: "slow down", RetryAfter: 7,
		})
	})

	_, err := c.SendMessage(context.Background(), "hello")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusTooManyRequests, apiErr.Status)
	assert.Equal(t, 7, apiErr.RetryAfter)
	assert.False(t, errors.Is(err, ErrUnauthorized))
}

func TestSetTyping(t *testing.T) {
	var got protocol.SetTypingRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, protocol.PathTyping, r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, c.SetTyping(context.Background(), true))
	assert.True(t, got.IsTyping)
}

func TestNonJSONErrorBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gateway down", http.StatusBadGateway)
	})

	err := c.SetTyping(context.Background(), false)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
	assert.Empty(t, apiErr.Code)
	assert.Contains(t, apiErr.Error(), "Bad Gateway")
}

func TestMetrics(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		protocol.WriteJSON(w, http.StatusOK, []chat.Message{})
	})

	_, _ = c.ListMessages(context.Background())
	_ = c.SetTyping(context.Background(), true)

	m := c.GetMetrics()
	assert.Equal(t, 2, m.Requests)
	assert.Equal(t, 1, m.Errors)
}

func TestContextCancelled(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.ListMessages(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
