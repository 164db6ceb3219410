package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repost maps one relayed source status to its destination thread pointers.
// Rows are append-only: created once when the status has been posted, read
// on later ticks to continue threads, never updated.
type Repost struct {
	ID        string    `gorm:"primaryKey;type:text;column:id"`
	CreatedAt time.Time `gorm:"not null;column:created_at"`

	AccountID string `gorm:"type:text;not null;uniqueIndex:relay_reposts_ux;column:account_id"`
	StatusID  string `gorm:"type:text;not null;uniqueIndex:relay_reposts_ux;column:status_id"`

	RootURI   string `gorm:"type:text;not null;column:root_uri"`
	RootCID   string `gorm:"type:text;not null;column:root_cid"`
	ParentURI string `gorm:"type:text;not null;column:parent_uri"`
	ParentCID string `gorm:"type:text;not null;column:parent_cid"`

	// Relationships
	Account *Account `gorm:"foreignKey:AccountID;references:ID"`
}

// TableName specifies the table name for Repost
func (Repost) TableName() string {
	return "relay_reposts"
}

// BeforeCreate assigns a UUID primary key
func (r *Repost) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}
