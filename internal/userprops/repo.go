package userprops

import (
	"context"
	"fmt"
	"time"

	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/internal/repo"
	"github.com/goccy/go-json"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository reads and writes user profiles.
type Repository struct {
	repo.Base
	now func() time.Time
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db), now: time.Now}
}

// Find returns the user's properties, or nil when no profile exists.
func (r *Repository) Find(ctx context.Context, userID string) (map[string]any, error) {
	var p Profile
	err := r.DB(ctx).Where("user_id = ?", userID).Take(&p).Error
	if err != nil {
		if repo.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("find profile %s: %w", userID, err)
	}
	props := map[string]any{}
	if len(p.Properties) > 0 {
		if err := json.Unmarshal(p.Properties, &props); err != nil {
			return nil, fmt.Errorf("decode profile %s: %w", userID, err)
		}
	}
	return props, nil
}

// Upsert replaces the user's property map.
func (r *Repository) Upsert(ctx context.Context, userID string, props map[string]any) error {
	raw, err := json.Marshal(props)
	if err != nil {
		return fmt.Errorf("encode profile %s: %w", userID, err)
	}
	p := Profile{UserID: userID, Properties: datatypes.JSON(raw), UpdatedAt: r.now().UTC()}
	return r.DB(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"properties", "updated_at"}),
	}).Create(&p).Error
}
