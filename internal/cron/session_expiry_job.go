package cron

import (
	"context"
	"fmt"

	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/internal/sessions"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/logger"
	"go.uber.org/multierr"
)

type sessionExpirer interface {
	ExpireIdleSessions(ctx context.Context) ([]*sessions.Session, error)
	Flush(ctx context.Context) error
}

type SessionExpiryJobParams struct {
	Logger    *logger.Logger
	Collector sessionExpirer
}

// NewSessionExpiryJob closes sessions idle past the inactivity gap and flushes
// the resulting session-ended events.
func NewSessionExpiryJob(params SessionExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Collector == nil {
		return nil, fmt.Errorf("collector required")
	}
	return &sessionExpiryJob{logg: params.Logger, collector: params.Collector}, nil
}

type sessionExpiryJob struct {
	logg      *logger.Logger
	collector sessionExpirer
}

func (j *sessionExpiryJob) Name() string { return "session-expiry" }

func (j *sessionExpiryJob) Run(ctx context.Context) error {
	closed, err := j.collector.ExpireIdleSessions(ctx)
	if err != nil {
		err = fmt.Errorf("expire idle sessions: %w", err)
	}
	if len(closed) > 0 {
		if flushErr := j.collector.Flush(ctx); flushErr != nil {
			err = multierr.Append(err, fmt.Errorf("flush session events: %w", flushErr))
		}
	}
	j.logg.Info(j.logg.WithField(ctx, "sessions_closed", len(closed)), "idle sessions expired")
	return err
}
