package funnels

import (
	"context"
	"fmt"
	"time"

	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/internal/repo"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/db"
	pkgerrors "github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/errors"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Record is the funnels row. Definitions are insert-only.
type Record struct {
	ID                uuid.UUID      `gorm:"column:id;type:uuid;primaryKey"`
	Name              string         `gorm:"column:name;not null;uniqueIndex:idx_funnels_name"`
	Steps             datatypes.JSON `gorm:"column:steps;type:jsonb;not null"`
	TimeWindowSeconds int64          `gorm:"column:time_window_seconds;not null"`
	CreatedAt         time.Time      `gorm:"column:created_at;not null"`
}

func (Record) TableName() string { return "funnels" }

// Repository persists funnel definitions.
type Repository struct {
	repo.Base
	now func() time.Time
}

func NewRepository(conn *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(conn), now: time.Now}
}

// Create inserts a definition. A name clash is a CONFLICT error.
func (r *Repository) Create(ctx context.Context, f *Funnel) error {
	steps, err := json.Marshal(f.Steps)
	if err != nil {
		return fmt.Errorf("encode funnel steps: %w", err)
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = r.now().UTC()
	}
	rec := Record{
		ID:                f.ID,
		Name:              f.Name,
		Steps:             datatypes.JSON(steps),
		TimeWindowSeconds: int64(f.TimeWindow / time.Second),
		CreatedAt:         f.CreatedAt,
	}
	if err := r.DB(ctx).Create(&rec).Error; err != nil {
		if db.IsUniqueViolation(err, "") {
			return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "funnel name already exists").
				WithDetails(map[string]any{"name": f.Name})
		}
		return fmt.Errorf("insert funnel: %w", err)
	}
	return nil
}

// Get loads a definition, returning FUNNEL_NOT_FOUND when absent.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*Funnel, error) {
	var rec Record
	if err := r.DB(ctx).Where("id = ?", id).Take(&rec).Error; err != nil {
		if repo.IsNotFound(err) {
			return nil, notFound(id.String())
		}
		return nil, fmt.Errorf("load funnel %s: %w", id, err)
	}
	return rec.toFunnel()
}

// List returns every definition ordered by name.
func (r *Repository) List(ctx context.Context) ([]Funnel, error) {
	var recs []Record
	if err := r.DB(ctx).Order("name ASC").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list funnels: %w", err)
	}
	out := make([]Funnel, 0, len(recs))
	for _, rec := range recs {
		f, err := rec.toFunnel()
		if err != nil {
			return nil, err
		}
		out = append(out, *f)
	}
	return out, nil
}

func (rec Record) toFunnel() (*Funnel, error) {
	var steps []Step
	if err := json.Unmarshal(rec.Steps, &steps); err != nil {
		return nil, fmt.Errorf("decode funnel %s steps: %w", rec.ID, err)
	}
	return &Funnel{
		ID:         rec.ID,
		Name:       rec.Name,
		Steps:      steps,
		TimeWindow: time.Duration(rec.TimeWindowSeconds) * time.Second,
		CreatedAt:  rec.CreatedAt.UTC(),
	}, nil
}
