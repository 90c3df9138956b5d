package api

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/opsdesk/teamchat/internal/chat"
	"github.com/opsdesk/teamchat/internal/metrics"
	"github.com/opsdesk/teamchat/internal/protocol"
	"github.com/opsdesk/teamchat/internal/ratelimit"
)

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	protocol.WriteJSON(w, http.StatusOK, sessionFrom(r.Context()))
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	skip, ok := queryInt(r, "skip", 0)
	if !ok || skip < 0 {
		protocol.WriteError(w, http.StatusBadRequest, protocol.CodeInvalidBody, "skip must be a non-negative integer")
		return
	}
	limit, ok := queryInt(r, "limit", chat.DefaultPageLimit)
	if !ok || limit < 1 {
		protocol.WriteError(w, http.StatusBadRequest, protocol.CodeInvalidBody, "limit must be a positive integer")
		return
	}
	limit = min(limit, chat.MaxPageLimit)

	msgs, err := s.deps.Messages.List(r.Context(), skip, limit)
	if err != nil {
		log.Error().Str("component", "api").Err(err).Msg("list messages failed")
		protocol.WriteError(w, http.StatusInternalServerError, protocol.CodeInternal, "failed to list messages")
		return
	}
	if msgs == nil {
		msgs = []chat.Message{}
	}
	protocol.WriteJSON(w, http.StatusOK, msgs)
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	logger := log.With().Str("component", "api").Str("user_id", sess.ID).Logger()

	var req protocol.SendMessageRequest
	if err := protocol.DecodeJSON(r.Body, &req); err != nil {
		protocol.WriteError(w, http.StatusBadRequest, protocol.CodeInvalidBody, err.Error())
		return
	}
	if err := chat.ValidateMessage(req.Body); err != nil {
		metrics.MessagesTotal.WithLabelValues("rejected").Inc()
		protocol.WriteError(w, http.StatusBadRequest, protocol.CodeInvalidMessage, err.Error())
		return
	}

	if s.deps.Mutes != nil {
		muted, remaining, _, err := s.deps.Mutes.IsMuted(r.Context(), sess.ID)
		if err != nil {
			logger.Warn().Err(err).Msg("mute check failed, failing open")
		}
		if muted {
			metrics.MessagesTotal.WithLabelValues("rejected").Inc()
			protocol.WriteJSON(w, http.StatusForbidden, protocol.ErrorResponse{
				Code:       protocol.CodeMuted,
				Message:    "you are muted",
				RetryAfter: remaining,
			})
			return
		}
	}

	if !s.allow(w, r, sess.ID, ratelimit.RuleMessage) {
		metrics.MessagesTotal.WithLabelValues("rejected").Inc()
		return
	}

	msg, err := s.deps.Messages.Create(r.Context(), sess.ID, sess.DisplayName, req.Body)
	if err != nil {
		logger.Error().Err(err).Msg("store message failed")
		protocol.WriteError(w, http.StatusInternalServerError, protocol.CodeInternal, "failed to store message")
		return
	}
	metrics.MessagesTotal.WithLabelValues("sent").Inc()

	// Posting ends the author's typing burst.
	if err := s.deps.Typing.Clear(r.Context(), sess.ID); err != nil {
		logger.Warn().Err(err).Msg("clear typing failed")
	}

	if s.deps.Events != nil {
		data, err := json.Marshal(chat.Event{Type: chat.EventMessageCreated, Message: *msg})
		if err == nil {
			err = s.deps.Events.PublishMessageCreated(data)
		}
		if err != nil {
			logger.Warn().Err(err).Str("message_id", msg.ID).Msg("publish message event failed")
		}
	}

	protocol.WriteJSON(w, http.StatusCreated, msg)
}

func (s *Server) handleListTyping(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())

	ind, err := s.deps.Typing.List(r.Context(), sess.ID)
	if err != nil {
		log.Error().Str("component", "api").Err(err).Msg("list typing failed")
		protocol.WriteError(w, http.StatusInternalServerError, protocol.CodeInternal, "failed to list typing indicators")
		return
	}
	if ind == nil {
		ind = []chat.TypingIndicator{}
	}
	protocol.WriteJSON(w, http.StatusOK, ind)
}

func (s *Server) handleSetTyping(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())

	var req protocol.SetTypingRequest
	if err := protocol.DecodeJSON(r.Body, &req); err != nil {
		protocol.WriteError(w, http.StatusBadRequest, protocol.CodeInvalidBody, err.Error())
		return
	}
	if !s.allow(w, r, sess.ID, ratelimit.RuleTyping) {
		return
	}

	_, err := s.deps.Typing.Set(r.Context(), chat.TypingIndicator{
		AuthorID:          sess.ID,
		AuthorDisplayName: sess.DisplayName,
		IsTyping:          req.IsTyping,
	})
	if err != nil {
		log.Error().Str("component", "api").Err(err).Msg("set typing failed")
		protocol.WriteError(w, http.StatusInternalServerError, protocol.CodeInternal, "failed to update typing state")
		return
	}
	metrics.ObserveTyping(req.IsTyping)
	w.WriteHeader(http.StatusNoContent)
}

// allow applies rule to the user and writes a 429 when exceeded. The limiter
// fails open, so errors only get logged there.
const headerRateLimitRemaining = "X-RateLimit-Remaining"

func (s *Server) allow(w http.ResponseWriter, r *http.Request, userID string, rule ratelimit.Rule) bool {
	if s.deps.Limiter == nil {
		return true
	}
	ok, _ := s.deps.Limiter.Allow(r.Context(), userID, rule)
	if ok {
		remaining, _ := s.deps.Limiter.Remaining(r.Context(), userID, rule)
		w.Header().Set(headerRateLimitRemaining, strconv.Itoa(remaining))
		return true
	}
	retry := s.deps.Limiter.RetryAfter(r.Context(), userID, rule)
	secs := int(math.Ceil(retry.Seconds()))
	w.Header().Set(headerRateLimitRemaining, "0")
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	protocol.WriteJSON(w, http.StatusTooManyRequests, protocol.ErrorResponse{
		Code:       protocol.CodeRateLimited,
		Message:    "too many requests",
		RetryAfter: secs,
	})
	return false
}

// queryInt parses an optional integer query parameter.
func queryInt(r *http.Request, name string, def int) (int, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, true
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}
