package indexer

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Registration lifecycle actions.
const (
	ActionRegistered = "registered"
	ActionRemoved    = "removed"
)

// Payment is one settled discounted payment. Amounts are decimal strings so
// values wider than 64 bits survive every SQL backend.
type Payment struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey"`
	Payer          string    `gorm:"size:64;index"`
	Restaurant     string    `gorm:"size:64;index"`
	OriginalAmount string    `gorm:"size:80;not null"`
	AdjustedAmount string    `gorm:"size:80;not null"`
	CustomRatio    string    `gorm:"size:80;not null"`
	Timestamp      int64     `gorm:"index"`
	CreatedAt      time.Time
}

// Registration records restaurant lifecycle changes.
type Registration struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	Restaurant string    `gorm:"size:64;index"`
	PlaceID    string    `gorm:"size:256;index"`
	Action     string    `gorm:"size:16;index"`
	Sequence   uint64
	Caller     string `gorm:"size:64"`
	CreatedAt  time.Time
}

// AutoMigrate creates or updates the index tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Payment{}, &Registration{})
}
