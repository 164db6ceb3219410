package models

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RelayCriteria selects which source posts qualify for relay.
type RelayCriteria string

const (
	CriteriaAll               RelayCriteria = "all"
	CriteriaFavedBySelf       RelayCriteria = "favedBySelf"
	CriteriaContainsMarker    RelayCriteria = "containsMarker"
	CriteriaNotContainsMarker RelayCriteria = "notContainsMarker"
)

// Account is a linked account: one Mastodon identity relayed to one
// Bluesky identity. LastPostTime is the relay watermark and is only ever
// advanced, never rewound.
type Account struct {
	ID        string    `gorm:"primaryKey;type:text;column:id"`
	CreatedAt time.Time `gorm:"not null;column:created_at"`
	UpdatedAt time.Time `gorm:"not null;column:updated_at"`

	Name        string `gorm:"type:text;not null;column:name"`
	SourceUID   string `gorm:"type:text;not null;column:source_uid"`
	SourceToken string `gorm:"type:text;not null;column:source_token"`
	InstanceID  string `gorm:"type:text;not null;column:instance_id"`

	LastPostTime time.Time `gorm:"not null;column:last_post_time"`

	BskyHandle       sql.NullString `gorm:"type:text;column:bsky_handle"`
	BskyPassword     sql.NullString `gorm:"type:text;column:bsky_password"`
	BskyPDS          string         `gorm:"type:text;not null;default:'https://bsky.social';column:bsky_pds"`
	BskySession      []byte         `gorm:"type:jsonb;column:bsky_session"`
	BskySessionEvent sql.NullString `gorm:"type:text;column:bsky_session_event"`

	RelayCriteria        RelayCriteria `gorm:"type:text;not null;default:'all';column:relay_criteria"`
	RelayMarker          string        `gorm:"type:text;not null;default:'';column:relay_marker"`
	RelayVisibility      []string      `gorm:"serializer:json;type:jsonb;column:relay_visibility"`
	RelayUnlistedAnswers bool          `gorm:"not null;default:false;column:relay_unlisted_answers"`
	RelayCW              bool          `gorm:"not null;default:false;column:relay_cw"`
	RelayNumbering       bool          `gorm:"not null;default:false;column:relay_numbering"`

	// Relationships
	Instance *Instance `gorm:"foreignKey:InstanceID;references:ID"`
}

// TableName specifies the table name for Account
func (Account) TableName() string {
	return "relay_accounts"
}

// BeforeCreate assigns a UUID primary key
func (a *Account) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

// HasDestination reports whether Bluesky credentials are configured.
func (a *Account) HasDestination() bool {
	return a.BskyHandle.Valid && a.BskyHandle.String != "" &&
		a.BskyPassword.Valid && a.BskyPassword.String != ""
}

// PDS returns the configured PDS endpoint, or fallback when unset.
func (a *Account) PDS(fallback string) string {
	if a.BskyPDS != "" {
		return a.BskyPDS
	}
	return fallback
}

// InstanceURL returns the source instance base URL, empty if not preloaded.
func (a *Account) InstanceURL() string {
	if a.Instance == nil {
		return ""
	}
	return a.Instance.URL
}
