// Package bqstore implements events.Store on a BigQuery table. Inserts carry the
// event id as insert id and reads dedupe by event id, so requeued batches are safe.
package bqstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/internal/events"
	pkgbigquery "github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/bigquery"
	pkgerrors "github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/errors"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/logger"
	"github.com/sony/gobreaker/v2"
	"google.golang.org/api/iterator"
)

const defaultQueryTimeout = 30 * time.Second

const selectEventsSQL = `
SELECT
  event_id, user_id, session_id, event_type, event_name, occurred_at,
  platform, source, device, location, schema_version, correlation_id,
  TO_JSON_STRING(properties) AS properties_json,
  filtered, route, alerts
FROM %s
WHERE occurred_at >= @from
  AND occurred_at < @to%s
QUALIFY ROW_NUMBER() OVER (PARTITION BY event_id ORDER BY ingested_at) = 1
ORDER BY occurred_at ASC, event_id ASC
`

// Config configures the BigQuery event store.
type Config struct {
	Table            string
	QueryTimeout     time.Duration
	Retry            RetryPolicy
	BreakerFailures  uint32
	BreakerOpenDelay time.Duration
}

type tableInserter interface {
	InsertRows(ctx context.Context, table string, rows []any) error
}

type tableProvisioner interface {
	EnsureTable(ctx context.Context, spec pkgbigquery.TableSpec) error
}

type rowIterator interface {
	Next(dst any) error
}

type queryRunner interface {
	Query(ctx context.Context, sql string, params []cbigquery.QueryParameter) (rowIterator, error)
}

type clientQueryRunner struct {
	client *pkgbigquery.Client
}

func (r clientQueryRunner) Query(ctx context.Context, sql string, params []cbigquery.QueryParameter) (rowIterator, error) {
	it, err := r.client.Query(ctx, sql, params)
	if err != nil {
		return nil, err
	}
	return it, nil
}

// Store is a BigQuery-backed events.Store guarded by circuit breakers.
type Store struct {
	inserter    tableInserter
	runner      queryRunner
	provisioner tableProvisioner
	table    string
	tableRef string
	schema   cbigquery.Schema
	timeout  time.Duration
	retry    RetryPolicy
	writeCB  *gobreaker.CircuitBreaker[struct{}]
	readCB   *gobreaker.CircuitBreaker[[]events.Event]
	logg     *logger.Logger
	now      func() time.Time
}

var _ events.Store = (*Store)(nil)

// New builds a store on the shared BigQuery client.
func New(client *pkgbigquery.Client, cfg Config, logg *logger.Logger) (*Store, error) {
	if client == nil {
		return nil, errors.New("bigquery client required")
	}
	table := strings.TrimSpace(cfg.Table)
	if table == "" {
		return nil, errors.New("events table is required")
	}
	s, err := newStore(client, clientQueryRunner{client: client}, client.TableRef(table), cfg, logg)
	if err != nil {
		return nil, err
	}
	s.provisioner = client
	return s, nil
}

// EnsureTable creates the events table, partitioned by day on occurred_at and
// clustered by event name and user, when it does not exist yet.
func (s *Store) EnsureTable(ctx context.Context) error {
	if s.provisioner == nil {
		return nil
	}
	return s.provisioner.EnsureTable(ctx, s.tableSpec())
}

func (s *Store) tableSpec() pkgbigquery.TableSpec {
	return pkgbigquery.TableSpec{
		Name:           s.table,
		Schema:         s.schema,
		PartitionField: "occurred_at",
		Clustering:     []string{"event_name", "user_id"},
	}
}

func newStore(ins tableInserter, runner queryRunner, tableRef string, cfg Config, logg *logger.Logger) (*Store, error) {
	schema, err := cbigquery.InferSchema(eventRow{})
	if err != nil {
		return nil, fmt.Errorf("infer event schema: %w", err)
	}
	timeout := cfg.QueryTimeout
	if timeout <= 0 {
		timeout = defaultQueryTimeout
	}
	s := &Store{
		inserter: ins,
		runner:   runner,
		table:    strings.TrimSpace(cfg.Table),
		tableRef: tableRef,
		schema:   schema,
		timeout:  timeout,
		retry:    cfg.Retry.normalized(),
		logg:     logg,
		now:      time.Now,
	}
	s.writeCB = gobreaker.NewCircuitBreaker[struct{}](s.breakerSettings("bigquery-events-write", cfg))
	s.readCB = gobreaker.NewCircuitBreaker[[]events.Event](s.breakerSettings("bigquery-events-read", cfg))
	return s, nil
}

func (s *Store) breakerSettings(name string, cfg Config) gobreaker.Settings {
	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = 5
	}
	openDelay := cfg.BreakerOpenDelay
	if openDelay <= 0 {
		openDelay = 30 * time.Second
	}
	return gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     openDelay,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if s.logg == nil {
				return
			}
			ctx := s.logg.WithFields(context.Background(), map[string]any{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			})
			s.logg.Warn(ctx, "event store circuit breaker state changed")
		},
	}
}

// Append writes a single event.
func (s *Store) Append(ctx context.Context, event events.Event) error {
	return s.AppendBatch(ctx, []events.Event{event})
}

// AppendBatch streams the batch with the event ids as insert ids.
func (s *Store) AppendBatch(ctx context.Context, batch []events.Event) error {
	if len(batch) == 0 {
		return nil
	}
	ingestedAt := s.now()
	rows := make([]any, 0, len(batch))
	for _, e := range batch {
		row, err := toRow(e, ingestedAt)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "encode event row")
		}
		rows = append(rows, &cbigquery.StructSaver{
			Schema:   s.schema,
			InsertID: row.EventID,
			Struct:   row,
		})
	}

	_, err := s.writeCB.Execute(func() (struct{}, error) {
		return struct{}{}, withRetry(ctx, s.retry, func() error {
			return s.inserter.InsertRows(ctx, s.table, rows)
		})
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeFlush, err, fmt.Sprintf("insert %d events", len(batch)))
	}
	return nil
}

// Query reads deduplicated events for the query under the configured timeout.
func (s *Store) Query(ctx context.Context, q events.Query) ([]events.Event, error) {
	if err := q.Range.Validate(); err != nil {
		return nil, err
	}
	sql, params := s.buildQuery(q)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	out, err := s.readCB.Execute(func() ([]events.Event, error) {
		return s.read(ctx, sql, params)
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "query events")
	}
	return out, nil
}

func (s *Store) read(ctx context.Context, sql string, params []cbigquery.QueryParameter) ([]events.Event, error) {
	it, err := s.runner.Query(ctx, sql, params)
	if err != nil {
		return nil, fmt.Errorf("run events query: %w", err)
	}
	var out []events.Event
	for {
		var row readRow
		if err := it.Next(&row); err != nil {
			if errors.Is(err, iterator.Done) {
				break
			}
			return nil, fmt.Errorf("reading event row: %w", err)
		}
		e, err := fromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *Store) buildQuery(q events.Query) (string, []cbigquery.QueryParameter) {
	params := []cbigquery.QueryParameter{
		{Name: "from", Value: q.Range.From.UTC()},
		{Name: "to", Value: q.Range.To.UTC()},
	}
	var clauses []string

	names := q.EventNames
	types := make([]string, 0, len(q.Types))
	for _, t := range q.Types {
		types = append(types, string(t))
	}
	switch {
	case len(names) > 0 && len(types) > 0:
		clauses = append(clauses, "(event_name IN UNNEST(@names) OR event_type IN UNNEST(@types))")
	case len(names) > 0:
		clauses = append(clauses, "event_name IN UNNEST(@names)")
	case len(types) > 0:
		clauses = append(clauses, "event_type IN UNNEST(@types)")
	}
	if len(names) > 0 {
		params = append(params, cbigquery.QueryParameter{Name: "names", Value: names})
	}
	if len(types) > 0 {
		params = append(params, cbigquery.QueryParameter{Name: "types", Value: types})
	}
	if len(q.UserIDs) > 0 {
		clauses = append(clauses, "user_id IN UNNEST(@users)")
		params = append(params, cbigquery.QueryParameter{Name: "users", Value: q.UserIDs})
	}
	if !q.IncludeFiltered {
		clauses = append(clauses, "filtered = FALSE")
	}

	var where strings.Builder
	for _, c := range clauses {
		where.WriteString("\n  AND ")
		where.WriteString(c)
	}
	return fmt.Sprintf(selectEventsSQL, s.tableRef, where.String()), params
}
