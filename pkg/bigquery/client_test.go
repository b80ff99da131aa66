package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"

	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/config"
)

func TestTableMetadataPartitionsAndClusters(t *testing.T) {
	schema := bigquery.Schema{
		{Name: "event_id", Type: bigquery.StringFieldType, Required: true},
		{Name: "occurred_at", Type: bigquery.TimestampFieldType, Required: true},
	}
	md, err := tableMetadata(TableSpec{
		Name:           "behavior_events",
		Schema:         schema,
		PartitionField: "occurred_at",
		Clustering:     []string{"event_name", "user_id"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if md.TimePartitioning == nil || md.TimePartitioning.Field != "occurred_at" {
		t.Fatalf("expected occurred_at partitioning, got %+v", md.TimePartitioning)
	}
	if md.TimePartitioning.Type != bigquery.DayPartitioningType {
		t.Fatalf("expected day partitioning, got %v", md.TimePartitioning.Type)
	}
	if md.Clustering == nil || len(md.Clustering.Fields) != 2 {
		t.Fatalf("expected two clustering fields, got %+v", md.Clustering)
	}
	if len(md.Schema) != 2 {
		t.Fatalf("expected schema to be carried, got %d fields", len(md.Schema))
	}
}

func TestTableMetadataValidation(t *testing.T) {
	if _, err := tableMetadata(TableSpec{Name: "  "}); err == nil {
		t.Fatal("expected error for blank table name")
	}
	if _, err := tableMetadata(TableSpec{Name: "events"}); err == nil {
		t.Fatal("expected error for missing schema")
	}
	md, err := tableMetadata(TableSpec{
		Name:   "events",
		Schema: bigquery.Schema{{Name: "id", Type: bigquery.StringFieldType}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if md.TimePartitioning != nil || md.Clustering != nil {
		t.Fatal("expected no partitioning or clustering when unset")
	}
}

func TestAPIStatusClassification(t *testing.T) {
	notFound := fmt.Errorf("wrapped: %w", &googleapi.Error{Code: http.StatusNotFound})
	if !isNotFound(notFound) || isAlreadyExists(notFound) {
		t.Fatal("expected wrapped 404 to classify as not found")
	}
	if !isAlreadyExists(&googleapi.Error{Code: http.StatusConflict}) {
		t.Fatal("expected 409 to classify as already exists")
	}
	if isNotFound(errors.New("plain")) {
		t.Fatal("plain errors carry no status")
	}
}

func TestNilClientGuards(t *testing.T) {
	var c *Client
	if err := c.InsertRows(context.Background(), "t", []any{1}); err == nil {
		t.Fatal("expected error from nil client insert")
	}
	if c.TableRef("t") != "" {
		t.Fatal("expected empty table ref from nil client")
	}
	if err := c.EnsureTable(context.Background(), TableSpec{Name: "t"}); err == nil {
		t.Fatal("expected error from nil client ensure")
	}
	if err := c.Ping(context.Background()); err == nil {
		t.Fatal("expected error from nil client ping")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close on nil client should be a no-op, got %v", err)
	}
}

func TestClientOptionsPrioritizesJSON(t *testing.T) {
	gcp := config.GCPConfig{
		CredentialsJSON:        `{"dummy": "value"}`,
		ApplicationCredentials: "/tmp/creds",
	}

	opts := clientOptions(gcp)
	if len(opts) != 1 {
		t.Fatalf("expected 1 option, got %d", len(opts))
	}
}

func TestClientOptionsWithFile(t *testing.T) {
	gcp := config.GCPConfig{
		ApplicationCredentials: "/tmp/creds",
	}

	opts := clientOptions(gcp)
	if len(opts) != 1 {
		t.Fatalf("expected 1 option when using credentials file, got %d", len(opts))
	}
}

func TestClientOptionsEmpty(t *testing.T) {
	gcp := config.GCPConfig{}

	opts := clientOptions(gcp)
	if len(opts) != 0 {
		t.Fatalf("expected 0 options when no credentials provided, got %d", len(opts))
	}
}
