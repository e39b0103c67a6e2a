package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type UserModel struct {
	ID           string `gorm:"primaryKey"`
	Email        string `gorm:"uniqueIndex;not null"`
	PasswordHash string `gorm:"not null"`
	Status       string
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time
}

type QueryModel struct {
	ID          string         `gorm:"primaryKey"`
	UserID      string         `gorm:"not null;index:idx_query_user_created,priority:1"`
	Platform    string         `gorm:"not null"`
	CarbonGrams float64        `gorm:"not null"`
	Metadata    datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt   time.Time      `gorm:"not null;index:idx_query_user_created,priority:2"`
}
