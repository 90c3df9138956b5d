package moderation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/opsdesk/teamchat/internal/chat"
	"github.com/opsdesk/teamchat/internal/flag"
	"github.com/opsdesk/teamchat/internal/metrics"
	"github.com/opsdesk/teamchat/internal/mute"
)

// FlagStore records flagged messages.
type FlagStore interface {
	Create(ctx context.Context, f *flag.Flag) error
	CountRecent(ctx context.Context, userID string, window time.Duration) (int, error)
}

// Muter applies escalating mutes.
type Muter interface {
	Escalate(ctx context.Context, userID, reason string) (time.Duration, error)
}

// VerdictPublisher announces review outcomes.
type VerdictPublisher interface {
	PublishModerationResult(authorID string, data []byte) error
}

// Service reviews newly posted messages. A blocked message is flagged; an
// author who collects mute.FlagThreshold flags within mute.FlagWindow is
// muted. Every blocked message produces a published Verdict.
type Service struct {
	filter    *Filter
	flags     FlagStore
	mutes     Muter
	publisher VerdictPublisher
	timeout   time.Duration
}

// NewService creates a Service. publisher may be nil.
func NewService(filter *Filter, flags FlagStore, mutes Muter, publisher VerdictPublisher) *Service {
	return &Service{
		filter:    filter,
		flags:     flags,
		mutes:     mutes,
		publisher: publisher,
		timeout:   5 * time.Second,
	}
}

// Review checks one message and applies the consequences.
func (s *Service) Review(ctx context.Context, msg chat.Message) (Verdict, error) {
	v := Verdict{MessageID: msg.ID, AuthorID: msg.AuthorID}

	result := s.filter.Check(msg.Body)
	if !result.Blocked {
		return v, nil
	}
	v.Blocked = true
	v.Reason = result.Reason
	v.Term = result.Term
	metrics.MessagesTotal.WithLabelValues("flagged").Inc()

	err := s.flags.Create(ctx, &flag.Flag{
		MessageID: msg.ID,
		UserID:    msg.AuthorID,
		Reason:    result.Reason,
		Term:      result.Term,
		Body:      msg.Body,
	})
	if err != nil {
		return v, fmt.Errorf("moderation: record flag: %w", err)
	}

	count, err := s.flags.CountRecent(ctx, msg.AuthorID, mute.FlagWindow)
	if err != nil {
		return v, fmt.Errorf("moderation: count flags: %w", err)
	}
	if count >= mute.FlagThreshold {
		d, err := s.mutes.Escalate(ctx, msg.AuthorID, result.Reason)
		if err != nil {
			return v, fmt.Errorf("moderation: mute: %w", err)
		}
		v.Muted = true
		v.MuteSeconds = int(d.Seconds())
		metrics.MutesTotal.Inc()
	}
	return v, nil
}

// HandleEvent is the message-created subscription callback. Malformed events
// and review failures are logged and dropped.
func (s *Service) HandleEvent(data []byte) {
	logger := log.With().Str("component", "moderator").Logger()

	var ev chat.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		logger.Warn().Err(err).Msg("malformed event")
		return
	}
	if ev.Type != chat.EventMessageCreated {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	v, err := s.Review(ctx, ev.Message)
	if err != nil {
		logger.Error().Err(err).Str("message_id", ev.Message.ID).Msg("review failed")
	}
	if !v.Blocked {
		logger.Debug().Str("message_id", ev.Message.ID).Msg("clean")
		return
	}

	logger.Info().
		Str("message_id", v.MessageID).
		Str("author_id", v.AuthorID).
		Str("reason", v.Reason).
		Str("term", v.Term).
		Bool("muted", v.Muted).
		Msg("flagged")

	if s.publisher == nil {
		return
	}
	out, err := json.Marshal(v)
	if err != nil {
		logger.Error().Err(err).Msg("marshal verdict")
		return
	}
	if err := s.publisher.PublishModerationResult(v.AuthorID, out); err != nil {
		logger.Warn().Err(err).Msg("publish verdict failed")
	}
}
