package userprops

import (
	"time"

	"gorm.io/datatypes"
)

// Profile is the user_profiles row holding the attributes used for enrichment.
type Profile struct {
	UserID     string         `gorm:"column:user_id;primaryKey"`
	Properties datatypes.JSON `gorm:"column:properties;type:jsonb;not null"`
	UpdatedAt  time.Time      `gorm:"column:updated_at;not null"`
}

func (Profile) TableName() string { return "user_profiles" }
