// Package ingest consumes bot tracking messages from Pub/Sub and hands them to
// the collector exactly once per event id.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/internal/collector"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/internal/events"
	pkgerrors "github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/errors"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/logger"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

const consumerName = "collector"

// Collector accepts one tracking event.
type Collector interface {
	CollectEvent(ctx context.Context, in collector.Input) (events.Event, error)
}

type idempotencyChecker interface {
	CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Delete(ctx context.Context, consumer string, eventID uuid.UUID) error
}

// TrackingMessage is the JSON body the bot publishes for every interaction.
type TrackingMessage struct {
	EventID       string         `json:"event_id"`
	UserID        string         `json:"user_id"`
	EventName     string         `json:"event_name"`
	Properties    map[string]any `json:"properties,omitempty"`
	Context       events.Context `json:"context"`
	ErrorCode     string         `json:"error_code,omitempty"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	OccurredAt    *time.Time     `json:"occurred_at,omitempty"`
}

// Service consumes tracking events while honoring Redis idempotency.
type Service struct {
	subscription *gcppubsub.Subscriber
	collector    Collector
	manager      idempotencyChecker
	logg         *logger.Logger
}

func NewService(subscription *gcppubsub.Subscriber, c Collector, manager idempotencyChecker, logg *logger.Logger) (*Service, error) {
	if subscription == nil {
		return nil, errors.New("tracking subscription is required")
	}
	if c == nil {
		return nil, errors.New("collector is required")
	}
	if manager == nil {
		return nil, errors.New("idempotency manager is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &Service{
		subscription: subscription,
		collector:    c,
		manager:      manager,
		logg:         logg,
	}, nil
}

type processResult struct {
	nack bool
}

// Run receives messages until ctx is canceled.
func (s *Service) Run(ctx context.Context) error {
	return s.subscription.Receive(ctx, func(innerCtx context.Context, msg *gcppubsub.Message) {
		if s.process(innerCtx, msg).nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

func (s *Service) process(ctx context.Context, msg *gcppubsub.Message) processResult {
	fields := map[string]any{"message_id": msg.ID}

	in, eventID, err := decodeMessage(msg)
	if err != nil {
		fields["error"] = err.Error()
		s.logg.Warn(s.logg.WithFields(ctx, fields), "invalid tracking message")
		return processResult{}
	}
	fields["event_id"] = eventID.String()
	fields["event_name"] = in.EventName
	fields["user_id"] = in.UserID
	logCtx := s.logg.WithFields(ctx, fields)

	already, err := s.manager.CheckAndMarkProcessed(logCtx, consumerName, eventID)
	if err != nil {
		s.logg.Error(logCtx, "idempotency check failed", err)
		return processResult{nack: true}
	}
	if already {
		s.logg.Debug(logCtx, "tracking event already ingested")
		return processResult{}
	}

	if _, err := s.collector.CollectEvent(logCtx, in); err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
			// redelivery cannot fix a malformed event
			s.logg.Warn(s.logg.WithField(logCtx, "error", err.Error()), "tracking event rejected")
			return processResult{}
		}
		s.logg.Error(logCtx, "collect tracking event", err)
		if derr := s.manager.Delete(logCtx, consumerName, eventID); derr != nil {
			// the marker outlives the failure, so redelivery will be skipped until it expires
			s.logg.Error(logCtx, "release idempotency marker", derr)
		}
		return processResult{nack: true}
	}
	return processResult{}
}

func decodeMessage(msg *gcppubsub.Message) (collector.Input, uuid.UUID, error) {
	var body TrackingMessage
	if err := json.Unmarshal(msg.Data, &body); err != nil {
		return collector.Input{}, uuid.Nil, fmt.Errorf("decode tracking message: %w", err)
	}

	rawID := strings.TrimSpace(body.EventID)
	if rawID == "" {
		rawID = strings.TrimSpace(msg.Attributes["event_id"])
	}
	if rawID == "" {
		return collector.Input{}, uuid.Nil, errors.New("event_id missing")
	}
	eventID, err := uuid.Parse(rawID)
	if err != nil {
		return collector.Input{}, uuid.Nil, fmt.Errorf("event_id: %w", err)
	}

	occurredAt := body.OccurredAt
	if occurredAt == nil {
		if created := strings.TrimSpace(msg.Attributes["created_at"]); created != "" {
			if parsed, err := time.Parse(time.RFC3339Nano, created); err == nil {
				occurredAt = &parsed
			}
		}
	}

	return collector.Input{
		EventID:       eventID.String(),
		UserID:        strings.TrimSpace(body.UserID),
		EventName:     strings.TrimSpace(body.EventName),
		Properties:    body.Properties,
		Context:       body.Context,
		ErrorCode:     body.ErrorCode,
		CorrelationID: body.CorrelationID,
		OccurredAt:    occurredAt,
	}, eventID, nil
}
