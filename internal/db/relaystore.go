package db

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/skyrelay/skyrelay/internal/bluesky"
	"github.com/skyrelay/skyrelay/internal/cache"
	"github.com/skyrelay/skyrelay/internal/models"
	"github.com/skyrelay/skyrelay/internal/relay"
	"github.com/skyrelay/skyrelay/pkg/logging"
)

// repostCacheTTL bounds how long thread pointers are served from Redis.
// Records are immutable, the TTL only caps memory.
const repostCacheTTL = 24 * time.Hour

// RelayStore backs the relay core with the repositories, fronting the
// repost records with Redis when it is available. Cache failures degrade
// to database reads, never to errors.
type RelayStore struct {
	accounts  *AccountRepository
	instances *InstanceRepository
	reposts   *RepostRepository
	cache     *cache.Cache
	logger    *zap.Logger
}

// NewRelayStore creates the persistence adapter for the relay core.
func NewRelayStore(accounts *AccountRepository, instances *InstanceRepository, reposts *RepostRepository, c *cache.Cache) *RelayStore {
	return &RelayStore{
		accounts:  accounts,
		instances: instances,
		reposts:   reposts,
		cache:     c,
		logger:    logging.WithComponent("relay-store"),
	}
}

// SetWatermark advances the account watermark; earlier values are no-ops.
func (s *RelayStore) SetWatermark(ctx context.Context, accountID string, t time.Time) error {
	return s.accounts.SetWatermark(ctx, accountID, t)
}

// GetRepost returns the recorded thread pointers for a source status, or
// nil when the status was never relayed.
func (s *RelayStore) GetRepost(ctx context.Context, accountID, statusID string) (*bluesky.ReplyRef, error) {
	key := cache.RepostKey(accountID, statusID)

	if cached, err := s.cache.Get(ctx, key); err == nil {
		var ref bluesky.ReplyRef
		if err := json.Unmarshal([]byte(cached), &ref); err == nil {
			return &ref, nil
		}
		s.logger.Warn("Dropping unreadable cached repost record", zap.String("key", key))
		if err := s.cache.Delete(ctx, key); err != nil && err != cache.ErrCacheDisabled {
			s.logger.Debug("Could not drop cache entry", zap.Error(err))
		}
	} else if !cache.IsMiss(err) && err != cache.ErrCacheDisabled {
		s.logger.Debug("Repost cache read failed", zap.Error(err))
	}

	repost, err := s.reposts.Get(ctx, accountID, statusID)
	if err != nil {
		return nil, err
	}
	if repost == nil {
		return nil, nil
	}

	ref := &bluesky.ReplyRef{
		Root:   bluesky.PostRef{URI: repost.RootURI, CID: repost.RootCID},
		Parent: bluesky.PostRef{URI: repost.ParentURI, CID: repost.ParentCID},
	}
	s.cacheRepost(ctx, key, ref)
	return ref, nil
}

// PutRepost records the thread pointers for a freshly posted status.
func (s *RelayStore) PutRepost(ctx context.Context, accountID, statusID string, ref bluesky.ReplyRef) error {
	repost := &models.Repost{
		AccountID: accountID,
		StatusID:  statusID,
		RootURI:   ref.Root.URI,
		RootCID:   ref.Root.CID,
		ParentURI: ref.Parent.URI,
		ParentCID: ref.Parent.CID,
	}
	if err := s.reposts.Create(ctx, repost); err != nil {
		return err
	}

	s.cacheRepost(ctx, cache.RepostKey(accountID, statusID), &ref)
	return nil
}

func (s *RelayStore) cacheRepost(ctx context.Context, key string, ref *bluesky.ReplyRef) {
	blob, err := json.Marshal(ref)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, blob, repostCacheTTL); err != nil && err != cache.ErrCacheDisabled {
		s.logger.Debug("Repost cache write failed", zap.Error(err))
	}
}

// PutSession persists a rotated destination session blob.
func (s *RelayStore) PutSession(ctx context.Context, accountID string, blob []byte, event string) error {
	return s.accounts.PutSession(ctx, accountID, blob, event)
}

// ClearSession drops the session blob, keeping the credentials.
func (s *RelayStore) ClearSession(ctx context.Context, accountID string) error {
	return s.accounts.ClearSession(ctx, accountID)
}

// ClearDestination wipes handle, credential and session.
func (s *RelayStore) ClearDestination(ctx context.Context, accountID string) error {
	return s.accounts.ClearDestination(ctx, accountID)
}

// FindLinked loads every account with its instance preloaded.
func (s *RelayStore) FindLinked(ctx context.Context) ([]*models.Account, error) {
	return s.accounts.FindLinked(ctx)
}

// GetByID loads one account with its instance preloaded, nil when absent.
func (s *RelayStore) GetByID(ctx context.Context, id string) (*models.Account, error) {
	return s.accounts.GetByID(ctx, id)
}

// PutDestination stores validated destination credentials.
func (s *RelayStore) PutDestination(ctx context.Context, accountID, handle, password, pds string) error {
	return s.accounts.PutDestination(ctx, accountID, handle, password, pds)
}

// DeleteAccount removes an account and its repost records.
func (s *RelayStore) DeleteAccount(ctx context.Context, accountID string) error {
	return s.accounts.Delete(ctx, accountID)
}

// InstanceUsage returns every instance with its linked account count.
func (s *RelayStore) InstanceUsage(ctx context.Context) ([]relay.InstanceUsage, error) {
	rows, err := s.instances.UserCounts(ctx)
	if err != nil {
		return nil, err
	}
	usage := make([]relay.InstanceUsage, 0, len(rows))
	for _, row := range rows {
		usage = append(usage, relay.InstanceUsage{ID: row.ID, URL: row.URL, Count: row.Count})
	}
	return usage, nil
}

// DeleteInstance removes an instance.
func (s *RelayStore) DeleteInstance(ctx context.Context, instanceID string) error {
	return s.instances.Delete(ctx, instanceID)
}
