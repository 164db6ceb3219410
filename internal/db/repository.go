package db

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/skyrelay/skyrelay/internal/models"
)

// Repository provides database access methods
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// AccountRepository provides account-related database operations
type AccountRepository struct {
	*Repository
}

// NewAccountRepository creates a new account repository
func NewAccountRepository(repo *Repository) *AccountRepository {
	return &AccountRepository{Repository: repo}
}

// GetByID retrieves an account by ID with its instance preloaded
func (r *AccountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	var account models.Account
	if err := r.db.WithContext(ctx).Preload("Instance").First(&account, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

// FindLinked retrieves all accounts with their instances preloaded
func (r *AccountRepository) FindLinked(ctx context.Context) ([]*models.Account, error) {
	var accounts []*models.Account
	if err := r.db.WithContext(ctx).Preload("Instance").Find(&accounts).Error; err != nil {
		return nil, err
	}
	return accounts, nil
}

// SetWatermark advances the last-processed-post time for an account.
// The update is monotonic: a value not later than the stored one is a no-op.
func (r *AccountRepository) SetWatermark(ctx context.Context, accountID string, t time.Time) error {
	return r.db.WithContext(ctx).Model(&models.Account{}).
		Where("id = ? AND last_post_time < ?", accountID, t).
		Updates(map[string]interface{}{
			"last_post_time": t,
			"updated_at":     time.Now().UTC(),
		}).Error
}

// PutSession persists the Bluesky session blob and the event that produced it
func (r *AccountRepository) PutSession(ctx context.Context, accountID string, blob []byte, event string) error {
	return r.db.WithContext(ctx).Model(&models.Account{}).
		Where("id = ?", accountID).
		Updates(map[string]interface{}{
			"bsky_session":       blob,
			"bsky_session_event": event,
			"updated_at":         time.Now().UTC(),
		}).Error
}

// ClearSession drops the stored Bluesky session but keeps the credentials
func (r *AccountRepository) ClearSession(ctx context.Context, accountID string) error {
	return r.db.WithContext(ctx).Model(&models.Account{}).
		Where("id = ?", accountID).
		Updates(map[string]interface{}{
			"bsky_session":       nil,
			"bsky_session_event": nil,
			"updated_at":         time.Now().UTC(),
		}).Error
}

// ClearDestination wipes the Bluesky handle, password and session. Used when
// the credentials are known bad, so failed logins stop compounding rate limits.
func (r *AccountRepository) ClearDestination(ctx context.Context, accountID string) error {
	return r.db.WithContext(ctx).Model(&models.Account{}).
		Where("id = ?", accountID).
		Updates(map[string]interface{}{
			"bsky_handle":        nil,
			"bsky_password":      nil,
			"bsky_session":       nil,
			"bsky_session_event": nil,
			"updated_at":         time.Now().UTC(),
		}).Error
}

// PutDestination stores validated Bluesky credentials for an account
func (r *AccountRepository) PutDestination(ctx context.Context, accountID, handle, password, pds string) error {
	return r.db.WithContext(ctx).Model(&models.Account{}).
		Where("id = ?", accountID).
		Updates(map[string]interface{}{
			"bsky_handle":   handle,
			"bsky_password": password,
			"bsky_pds":      pds,
			"updated_at":    time.Now().UTC(),
		}).Error
}

// Delete removes an account and, via FK cascade, its repost records
func (r *AccountRepository) Delete(ctx context.Context, accountID string) error {
	return r.db.WithContext(ctx).Delete(&models.Account{}, "id = ?", accountID).Error
}

// InstanceRepository provides instance-related database operations
type InstanceRepository struct {
	*Repository
}

// NewInstanceRepository creates a new instance repository
func NewInstanceRepository(repo *Repository) *InstanceRepository {
	return &InstanceRepository{Repository: repo}
}

// InstanceUsers is an instance with its linked account count
type InstanceUsers struct {
	ID    string
	URL   string
	Count int64
}

// UserCounts returns every instance with the number of accounts linked to it
func (r *InstanceRepository) UserCounts(ctx context.Context) ([]InstanceUsers, error) {
	var rows []InstanceUsers
	err := r.db.WithContext(ctx).
		Model(&models.Instance{}).
		Select("relay_instances.id AS id, relay_instances.url AS url, COUNT(relay_accounts.id) AS count").
		Joins("LEFT JOIN relay_accounts ON relay_accounts.instance_id = relay_instances.id").
		Group("relay_instances.id, relay_instances.url").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// Delete removes an instance
func (r *InstanceRepository) Delete(ctx context.Context, instanceID string) error {
	return r.db.WithContext(ctx).Delete(&models.Instance{}, "id = ?", instanceID).Error
}

// RepostRepository provides repost-record database operations
type RepostRepository struct {
	*Repository
}

// NewRepostRepository creates a new repost repository
func NewRepostRepository(repo *Repository) *RepostRepository {
	return &RepostRepository{Repository: repo}
}

// Get retrieves the repost record for (account, source status), nil if absent
func (r *RepostRepository) Get(ctx context.Context, accountID, statusID string) (*models.Repost, error) {
	var repost models.Repost
	if err := r.db.WithContext(ctx).
		Where("account_id = ? AND status_id = ?", accountID, statusID).
		First(&repost).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &repost, nil
}

// Create stores a new repost record
func (r *RepostRepository) Create(ctx context.Context, repost *models.Repost) error {
	return r.db.WithContext(ctx).Create(repost).Error
}
