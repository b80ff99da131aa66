package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestDumpNil(t *testing.T) {
	if d := Dump(nil); d.TopMessage != "" || len(d.Chain) != 0 {
		t.Fatalf("expected empty dump, got %+v", d)
	}
}

func TestDumpTypedChain(t *testing.T) {
	err := Wrap(CodeFlush, fmt.Errorf("insert: %w", &googleapi.Error{Code: http.StatusServiceUnavailable}), "flush events")

	d := Dump(err)
	if d.Code != CodeFlush || !d.Retryable {
		t.Fatalf("expected retryable FLUSH_FAILED, got %+v", d)
	}
	if d.UpstreamStatus != http.StatusServiceUnavailable {
		t.Fatalf("expected upstream 503, got %d", d.UpstreamStatus)
	}
	if len(d.Chain) < 3 {
		t.Fatalf("expected the full chain, got %v", d.Chain)
	}
}

func TestDumpPostgresDrivers(t *testing.T) {
	d := Dump(fmt.Errorf("create funnel: %w", &pgconn.PgError{Code: "23505", ConstraintName: "idx_funnels_name", TableName: "funnels"}))
	if d.PGCode != "23505" || d.PGConstraint != "idx_funnels_name" || d.PGTable != "funnels" {
		t.Fatalf("unexpected pgx fields %+v", d)
	}

	d = Dump(&pq.Error{Code: "23503", Table: "analysis_snapshots"})
	if d.PGCode != "23503" || d.PGTable != "analysis_snapshots" {
		t.Fatalf("unexpected pq fields %+v", d)
	}
}

func TestDumpGRPCCode(t *testing.T) {
	d := Dump(fmt.Errorf("receive: %w", status.Error(codes.Unavailable, "down")))
	if d.RPCCode != codes.Unavailable.String() {
		t.Fatalf("expected Unavailable, got %q", d.RPCCode)
	}
	if d.Code != "" || d.Retryable {
		t.Fatalf("untyped errors carry no code, got %+v", d)
	}
}
