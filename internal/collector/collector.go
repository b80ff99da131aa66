// Package collector validates, classifies, enriches and buffers behavioral
// events, resolving each to the user's session before it is flushed to the
// event store.
package collector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/internal/events"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/internal/sessions"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/internal/userprops"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/enums"
	pkgerrors "github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/errors"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/logger"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/metrics"
	"github.com/google/uuid"
	"go.uber.org/multierr"
)

// SessionEndedEvent is emitted whenever a session closes.
const SessionEndedEvent = "system_session_ended"

const (
	userPropertyPrefix      = "user."
	sessionAgeProperty      = "session_age_ms"
	sessionCountProperty    = "session_event_count"
	defaultMaxPropertyBytes = 10240
)

type Config struct {
	MaxPropertiesBytes int
	Buffer             BufferConfig
}

// Deps are the collaborators a Collector needs. Profiles and Metrics may be nil.
type Deps struct {
	Store    events.Store
	Sessions *sessions.Manager
	Profiles userprops.Store
	Rules    []Rule
	Metrics  *metrics.CollectorMetrics
	Logger   *logger.Logger
}

// BatchResult is the outcome of one input of CollectEventBatch.
type BatchResult struct {
	Index int           `json:"index"`
	Event *events.Event `json:"event,omitempty"`
	Error error         `json:"-"`
}

type Collector struct {
	cfg      Config
	buffer   *Buffer
	sessions *sessions.Manager
	profiles userprops.Store
	rules    *RuleEngine
	metrics  *metrics.CollectorMetrics
	logg     *logger.Logger
	now      func() time.Time
}

func New(cfg Config, deps Deps) (*Collector, error) {
	if deps.Sessions == nil {
		return nil, errors.New("session manager required")
	}
	if deps.Logger == nil {
		return nil, errors.New("logger required")
	}
	if cfg.MaxPropertiesBytes <= 0 {
		cfg.MaxPropertiesBytes = defaultMaxPropertyBytes
	}
	buf, err := NewBuffer(deps.Store, cfg.Buffer, deps.Metrics, deps.Logger)
	if err != nil {
		return nil, err
	}
	c := &Collector{
		cfg:      cfg,
		buffer:   buf,
		sessions: deps.Sessions,
		profiles: deps.Profiles,
		metrics:  deps.Metrics,
		logg:     deps.Logger,
		now:      time.Now,
	}
	engine, err := NewRuleEngine(deps.Rules, c.recordAlert, deps.Logger)
	if err != nil {
		return nil, err
	}
	c.rules = engine
	return c, nil
}

// Start launches the interval flush loop.
func (c *Collector) Start(ctx context.Context) error {
	return c.buffer.Start(ctx)
}

// CollectEvent validates and buffers one event, returning the event as it
// will be persisted.
func (c *Collector) CollectEvent(ctx context.Context, in Input) (events.Event, error) {
	if rej := validateInput(in, c.cfg.MaxPropertiesBytes); rej != nil {
		c.metrics.IncRejected(rej.reason)
		return events.Event{}, rej.err
	}

	eventType := Classify(in.EventName, in.ErrorCode, in.Properties)
	ctx = c.logg.WithUserID(ctx, in.UserID)
	ctx = c.logg.WithEventName(ctx, in.EventName)

	occurredAt := c.occurredAt(in)
	touch, err := c.sessions.Touch(ctx, in.UserID, sessions.Origin{
		Platform: in.Context.Platform,
		Source:   in.Context.Source,
	}, in.EventName, occurredAt, eventType == enums.EventTypeBusiness)
	if err != nil {
		return events.Event{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve session")
	}
	if touch.Expired != nil {
		c.emitSessionEnded(ctx, touch.Expired)
	}

	e, err := c.build(in, eventType, occurredAt, touch.Session.ID)
	if err != nil {
		return events.Event{}, err
	}

	if err := c.enrich(ctx, &e, touch.Session); err != nil {
		c.logg.Warn(c.logg.WithField(ctx, "error", err.Error()), "event enrichment failed")
	}

	c.rules.Apply(ctx, &e)

	if err := c.buffer.Add(e); err != nil {
		return events.Event{}, err
	}
	c.metrics.IncCollected(eventType.String())
	return e, nil
}

// CollectEventBatch collects every input independently; one failure never
// prevents the rest.
func (c *Collector) CollectEventBatch(ctx context.Context, inputs []Input) []BatchResult {
	results := make([]BatchResult, len(inputs))
	for i, in := range inputs {
		results[i].Index = i
		if err := ctx.Err(); err != nil {
			results[i].Error = err
			continue
		}
		e, err := c.CollectEvent(ctx, in)
		if err != nil {
			results[i].Error = err
			continue
		}
		results[i].Event = &e
	}
	return results
}

// BatchErrors combines the per-item errors of a batch, nil when all succeeded.
func BatchErrors(results []BatchResult) error {
	var errs error
	for _, r := range results {
		if r.Error != nil {
			errs = multierr.Append(errs, fmt.Errorf("item %d: %w", r.Index, r.Error))
		}
	}
	return errs
}

// StartSession opens a new session for the user, closing any open one.
func (c *Collector) StartSession(ctx context.Context, userID string, evCtx events.Context) (*sessions.Session, error) {
	s, closed, err := c.sessions.Start(ctx, userID, sessions.Origin{Platform: evCtx.Platform, Source: evCtx.Source})
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "start session")
	}
	if closed != nil {
		c.emitSessionEnded(ctx, closed)
	}
	c.logg.Info(c.logg.WithSessionID(c.logg.WithUserID(ctx, userID), s.ID), "session started")
	return s, nil
}

// EndSession finalizes a session. Unknown ids yield a NOT_FOUND error.
func (c *Collector) EndSession(ctx context.Context, sessionID string) (*sessions.Session, error) {
	s, err := c.sessions.End(ctx, sessionID)
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "end session")
	}
	c.emitSessionEnded(ctx, s)
	return s, nil
}

// ExpireIdleSessions closes sessions idle past the inactivity gap.
func (c *Collector) ExpireIdleSessions(ctx context.Context) ([]*sessions.Session, error) {
	closed, err := c.sessions.ExpireIdle(ctx)
	for _, s := range closed {
		c.emitSessionEnded(ctx, s)
	}
	return closed, err
}

// Flush writes everything buffered.
func (c *Collector) Flush(ctx context.Context) error {
	return c.buffer.Flush(ctx)
}

func (c *Collector) Stats() BufferStats {
	return c.buffer.Stats()
}

// Close stops the flush loop and flushes what remains.
func (c *Collector) Close() error {
	return c.buffer.Close()
}

// occurredAt is the client timestamp when given, otherwise the receive time.
func (c *Collector) occurredAt(in Input) time.Time {
	if in.OccurredAt != nil && !in.OccurredAt.IsZero() {
		return in.OccurredAt.UTC()
	}
	return c.now().UTC()
}

func (c *Collector) build(in Input, eventType enums.EventType, ts time.Time, sessionID string) (events.Event, error) {
	id := uuid.New()
	if in.EventID != "" {
		parsed, err := uuid.Parse(in.EventID)
		if err != nil {
			return events.Event{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "event_id must be a uuid")
		}
		id = parsed
	}
	props := copyProps(in.Properties)
	if in.ErrorCode != "" {
		if _, set := props[errorCodeProperty]; !set {
			props[errorCodeProperty] = in.ErrorCode
		}
	}
	return events.Event{
		ID:         id,
		UserID:     in.UserID,
		SessionID:  sessionID,
		Type:       eventType,
		Name:       in.EventName,
		Timestamp:  ts,
		Properties: props,
		Context:    in.Context,
		Metadata: events.Metadata{
			SchemaVersion: events.SchemaVersion,
			CorrelationID: in.CorrelationID,
		},
	}, nil
}

// enrich adds profile and session derived properties. Existing properties win.
func (c *Collector) enrich(ctx context.Context, e *events.Event, s *sessions.Session) error {
	if s != nil {
		setIfAbsent(e.Properties, sessionAgeProperty, s.Age(e.Timestamp).Milliseconds())
		setIfAbsent(e.Properties, sessionCountProperty, s.EventCount)
	}
	if c.profiles == nil {
		return nil
	}
	props, ok, err := c.profiles.GetUserProperties(ctx, e.UserID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeEnrichment, err, "load user properties")
	}
	if !ok {
		return nil
	}
	for k, v := range props {
		setIfAbsent(e.Properties, userPropertyPrefix+k, v)
	}
	return nil
}

func setIfAbsent(m map[string]any, key string, value any) {
	if _, ok := m[key]; !ok {
		m[key] = value
	}
}

func (c *Collector) recordAlert(ctx context.Context, rule, message string, e events.Event) {
	c.metrics.IncAlert(rule)
	c.logg.Warn(c.logg.WithFields(ctx, map[string]any{
		"rule":     rule,
		"alert":    message,
		"event_id": e.ID.String(),
	}), "rule alert raised")
}

// emitSessionEnded buffers a system event carrying the closed session's snapshot.
func (c *Collector) emitSessionEnded(ctx context.Context, s *sessions.Session) {
	if s == nil || s.End == nil {
		return
	}
	props := make(map[string]any, len(s.Properties)+3)
	for k, v := range s.Properties {
		props[k] = v
	}
	props["session_start"] = s.Start.Format(time.RFC3339Nano)
	if s.DurationMs != nil {
		props["duration_ms"] = *s.DurationMs
	}
	e := events.Event{
		ID:         uuid.New(),
		UserID:     s.UserID,
		SessionID:  s.ID,
		Type:       enums.EventTypeSystem,
		Name:       SessionEndedEvent,
		Timestamp:  s.End.UTC(),
		Properties: props,
		Context:    events.Context{Platform: s.Platform, Source: s.Source},
		Metadata:   events.Metadata{SchemaVersion: events.SchemaVersion},
	}
	if err := c.buffer.Add(e); err != nil {
		c.logg.Error(c.logg.WithSessionID(ctx, s.ID), "buffer session end event", err)
		return
	}
	c.metrics.IncCollected(enums.EventTypeSystem.String())
}
