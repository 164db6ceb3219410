package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Instance is a Mastodon instance with a registered OAuth application.
// The OAuth flow itself lives in the web layer; the relay only reads the
// instance URL for API calls.
type Instance struct {
	ID        string    `gorm:"primaryKey;type:text;column:id"`
	CreatedAt time.Time `gorm:"not null;column:created_at"`
	UpdatedAt time.Time `gorm:"not null;column:updated_at"`

	URL               string `gorm:"type:text;not null;uniqueIndex:relay_instances_url_ux;column:url"`
	ApplicationID     string `gorm:"type:text;not null;column:application_id"`
	ApplicationSecret string `gorm:"type:text;not null;column:application_secret"`
}

// TableName specifies the table name for Instance
func (Instance) TableName() string {
	return "relay_instances"
}

// BeforeCreate assigns a UUID primary key
func (i *Instance) BeforeCreate(tx *gorm.DB) error {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	return nil
}

// BaseURL returns the https URL for the instance domain.
func (i *Instance) BaseURL() string {
	if strings.HasPrefix(i.URL, "https://") || strings.HasPrefix(i.URL, "http://") {
		return i.URL
	}
	return "https://" + i.URL
}
