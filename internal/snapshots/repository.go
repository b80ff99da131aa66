// Package snapshots persists computed analyses so dashboards can read the
// latest result without recomputing it.
package snapshots

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/internal/events"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/internal/repo"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/enums"
	pkgerrors "github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/errors"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	defaultListLimit = 20
	// defaultRetained is how many snapshots are kept per kind and subject.
	defaultRetained = 50
)

// Record is the analysis_snapshots row.
type Record struct {
	ID        uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	Kind      enums.SnapshotKind `gorm:"column:kind;not null"`
	Subject   string             `gorm:"column:subject;not null"`
	RangeFrom time.Time          `gorm:"column:range_from;not null"`
	RangeTo   time.Time          `gorm:"column:range_to;not null"`
	Payload   datatypes.JSON     `gorm:"column:payload;type:jsonb;not null"`
	CreatedAt time.Time          `gorm:"column:created_at;not null"`
}

func (Record) TableName() string { return "analysis_snapshots" }

type Snapshot struct {
	ID        uuid.UUID          `json:"id"`
	Kind      enums.SnapshotKind `json:"kind"`
	Subject   string             `json:"subject"`
	DateRange events.DateRange   `json:"date_range"`
	Payload   json.RawMessage    `json:"payload"`
	CreatedAt time.Time          `json:"created_at"`
}

// Decode unmarshals the payload into dst.
func (s Snapshot) Decode(dst any) error {
	return json.Unmarshal(s.Payload, dst)
}

type Repository struct {
	repo.Base
	now  func() time.Time
	keep int
}

func NewRepository(conn *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(conn), now: time.Now, keep: defaultRetained}
}

// Save stores payload as a new snapshot and prunes the oldest ones beyond the
// retention limit in the same transaction. Snapshots are never updated.
func (r *Repository) Save(ctx context.Context, kind enums.SnapshotKind, subject string, dr events.DateRange, payload any) (*Snapshot, error) {
	if !kind.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid snapshot kind %q", kind))
	}
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "snapshot subject is required")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s snapshot: %w", kind, err)
	}
	rec := Record{
		ID:        uuid.New(),
		Kind:      kind,
		Subject:   subject,
		RangeFrom: dr.From.UTC(),
		RangeTo:   dr.To.UTC(),
		Payload:   datatypes.JSON(data),
		CreatedAt: r.now().UTC(),
	}
	err = r.Tx(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(&rec).Error; err != nil {
			return fmt.Errorf("insert %s snapshot: %w", kind, err)
		}
		return r.prune(tx, kind, subject)
	})
	if err != nil {
		return nil, err
	}
	s := rec.toSnapshot()
	return &s, nil
}

func (r *Repository) prune(tx *gorm.DB, kind enums.SnapshotKind, subject string) error {
	if r.keep <= 0 {
		return nil
	}
	err := tx.Exec(`DELETE FROM analysis_snapshots
WHERE kind = ? AND subject = ? AND id NOT IN (
	SELECT id FROM analysis_snapshots
	WHERE kind = ? AND subject = ?
	ORDER BY created_at DESC
	LIMIT ?
)`, string(kind), subject, string(kind), subject, r.keep).Error
	if err != nil {
		return fmt.Errorf("prune %s snapshots: %w", kind, err)
	}
	return nil
}

// Latest returns the newest snapshot for kind and subject.
func (r *Repository) Latest(ctx context.Context, kind enums.SnapshotKind, subject string) (*Snapshot, error) {
	var rec Record
	err := r.DB(ctx).
		Where("kind = ? AND subject = ?", kind, subject).
		Order("created_at DESC").
		Take(&rec).Error
	if err != nil {
		if repo.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "snapshot not found").
				WithDetails(map[string]any{"kind": string(kind), "subject": subject})
		}
		return nil, fmt.Errorf("load %s snapshot: %w", kind, err)
	}
	s := rec.toSnapshot()
	return &s, nil
}

// List returns up to limit snapshots for kind and subject, newest first.
func (r *Repository) List(ctx context.Context, kind enums.SnapshotKind, subject string, limit int) ([]Snapshot, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	var recs []Record
	err := r.DB(ctx).
		Where("kind = ? AND subject = ?", kind, subject).
		Order("created_at DESC").
		Limit(limit).
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("list %s snapshots: %w", kind, err)
	}
	out := make([]Snapshot, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.toSnapshot())
	}
	return out, nil
}

func (rec Record) toSnapshot() Snapshot {
	return Snapshot{
		ID:        rec.ID,
		Kind:      rec.Kind,
		Subject:   rec.Subject,
		DateRange: events.DateRange{From: rec.RangeFrom.UTC(), To: rec.RangeTo.UTC()},
		Payload:   json.RawMessage(rec.Payload),
		CreatedAt: rec.CreatedAt.UTC(),
	}
}
