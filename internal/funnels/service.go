package funnels

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/internal/events"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/enums"
	pkgerrors "github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/errors"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/logger"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/metrics"
	"github.com/google/uuid"
)

const (
	analysisKind      = "funnel"
	defaultQueryLimit = 30 * time.Second
)

type definitionStore interface {
	Create(ctx context.Context, f *Funnel) error
	Get(ctx context.Context, id uuid.UUID) (*Funnel, error)
	List(ctx context.Context) ([]Funnel, error)
}

type Config struct {
	QueryTimeout time.Duration
	FrictionGap  time.Duration
}

// Options tune a single analysis.
type Options struct {
	SegmentBy string
}

// Service defines funnels and analyzes them against the event store.
type Service struct {
	defs     definitionStore
	store    events.Store
	analyzer Analyzer
	timeout  time.Duration
	metrics  *metrics.AnalysisMetrics
	logg     *logger.Logger
}

func NewService(defs definitionStore, store events.Store, cfg Config, m *metrics.AnalysisMetrics, logg *logger.Logger) (*Service, error) {
	if defs == nil {
		return nil, errors.New("funnel definition store required")
	}
	if store == nil {
		return nil, errors.New("event store required")
	}
	if logg == nil {
		return nil, errors.New("logger required")
	}
	timeout := cfg.QueryTimeout
	if timeout <= 0 {
		timeout = defaultQueryLimit
	}
	return &Service{
		defs:     defs,
		store:    store,
		analyzer: Analyzer{FrictionGap: cfg.FrictionGap},
		timeout:  timeout,
		metrics:  m,
		logg:     logg,
	}, nil
}

// DefineFunnel validates and persists an immutable funnel definition.
func (s *Service) DefineFunnel(ctx context.Context, name string, steps []Step, window time.Duration) (*Funnel, error) {
	f, err := NewFunnel(name, steps, window)
	if err != nil {
		return nil, err
	}
	if err := s.defs.Create(ctx, &f); err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithFunnelID(ctx, f.ID.String()), "funnel defined")
	return &f, nil
}

// GetFunnel loads a definition by id.
func (s *Service) GetFunnel(ctx context.Context, id string) (*Funnel, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return nil, notFound(id)
	}
	return s.defs.Get(ctx, parsed)
}

func (s *Service) ListFunnels(ctx context.Context) ([]Funnel, error) {
	return s.defs.List(ctx)
}

// AnalyzeFunnel reconstructs every user's journey in the range and reports
// step conversion, ranked dropoffs and, when requested, segments. Users are
// processed in id order so repeated runs produce identical output.
func (s *Service) AnalyzeFunnel(ctx context.Context, id string, dr events.DateRange, opts Options) (res *Analysis, err error) {
	start := time.Now()
	defer func() { s.metrics.Observe(analysisKind, start, err) }()

	if err := dr.Validate(); err != nil {
		return nil, err
	}
	var keyFn KeyFunc
	if opts.SegmentBy != "" {
		if keyFn, err = ParseSegmentBy(opts.SegmentBy); err != nil {
			return nil, err
		}
	}
	f, err := s.GetFunnel(ctx, id)
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithFunnelID(ctx, f.ID.String())

	evts, err := s.query(ctx, events.Query{
		EventNames: f.EventNames(),
		Types:      []enums.EventType{enums.EventTypeError},
		Range:      dr,
	})
	if err != nil {
		return nil, err
	}

	stepNames := make(map[string]struct{}, len(f.Steps))
	for _, name := range f.EventNames() {
		stepNames[name] = struct{}{}
	}

	byUser, users := events.GroupByUser(evts)
	journeys := make([]Journey, 0, len(users))
	failures := Failures{}
	keys := map[string]string{}
	for _, user := range users {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		userEvents := byUser[user]
		var relevant bool
		for _, e := range userEvents {
			if _, ok := stepNames[e.Name]; ok {
				relevant = true
			}
			if e.Type == enums.EventTypeError {
				failures[user] = append(failures[user], e.Timestamp)
			}
		}
		if !relevant {
			continue
		}
		j := BuildUserJourney(user, userEvents, *f)
		j.Settle(dr.To, f.TimeWindow)
		journeys = append(journeys, j)
		if keyFn != nil {
			keys[user] = keyFn(userEvents)
		}
	}

	out := s.analyzer.Analyze(*f, journeys, failures)
	out.DateRange = dr
	if keyFn != nil {
		out.Segments = s.analyzer.Segment(*f, journeys, keys)
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"journeys":  out.TotalJourneys,
		"converted": out.ConvertedJourneys,
	}), "funnel analyzed")
	return &out, nil
}

// CompareFunnels runs both analyses over the same range and tests the
// difference in overall conversion.
func (s *Service) CompareFunnels(ctx context.Context, a, b string, dr events.DateRange) (*Comparison, error) {
	left, err := s.AnalyzeFunnel(ctx, a, dr, Options{})
	if err != nil {
		return nil, err
	}
	right, err := s.AnalyzeFunnel(ctx, b, dr, Options{})
	if err != nil {
		return nil, err
	}
	c := Compare(*left, *right)
	return &c, nil
}

func (s *Service) query(ctx context.Context, q events.Query) ([]events.Event, error) {
	qctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	evts, err := s.store.Query(qctx, q)
	if err != nil {
		if errors.Is(err, context.Canceled) || pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "query events")
	}
	return evts, nil
}
