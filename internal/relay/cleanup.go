package relay

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/skyrelay/skyrelay/internal/mastodon"
	"github.com/skyrelay/skyrelay/internal/models"
	"github.com/skyrelay/skyrelay/pkg/logging"
	"github.com/skyrelay/skyrelay/pkg/telemetry"
)

// InstanceUsage is an instance together with its linked account count.
type InstanceUsage struct {
	ID    string
	URL   string
	Count int64
}

// CleanupStore is the persistence surface of the maintenance sweep.
type CleanupStore interface {
	FindLinked(ctx context.Context) ([]*models.Account, error)
	DeleteAccount(ctx context.Context, accountID string) error
	InstanceUsage(ctx context.Context) ([]InstanceUsage, error)
	DeleteInstance(ctx context.Context, instanceID string) error
}

// Cleanup removes accounts whose source token has been revoked and
// instances that no account uses anymore.
type Cleanup struct {
	store     CleanupStore
	newSource SourceFactory
	logger    *zap.Logger
}

// NewCleanup creates the maintenance sweep job.
func NewCleanup(store CleanupStore) *Cleanup {
	return &Cleanup{
		store: store,
		newSource: func(baseURL, token string) Source {
			return mastodon.New(baseURL, token)
		},
		logger: logging.WithComponent("cleanup"),
	}
}

// Sweep runs one maintenance pass. Transient verification failures leave
// the account alone; only a definitive unauthorized response deletes it.
func (c *Cleanup) Sweep(ctx context.Context) error {
	ctx, span := telemetry.StartSpan(ctx, "relay.cleanup")
	defer span.End()

	accounts, err := c.store.FindLinked(ctx)
	if err != nil {
		return err
	}

	for _, account := range accounts {
		logger := logging.WithAccount(account.Name, account.InstanceURL())

		source := c.newSource(instanceBaseURL(account), account.SourceToken)
		err := source.VerifyCredentials(ctx)
		switch {
		case err == nil:
			continue
		case errors.Is(err, mastodon.ErrUnauthorized):
			logger.Warn("Source token revoked, removing account")
			if err := c.store.DeleteAccount(ctx, account.ID); err != nil {
				logger.Error("Could not remove account", zap.Error(err))
			}
		default:
			logger.Debug("Could not verify source credentials", zap.Error(err))
		}
	}

	usage, err := c.store.InstanceUsage(ctx)
	if err != nil {
		return err
	}
	for _, row := range usage {
		if row.Count > 0 {
			continue
		}
		c.logger.Info("Removing unused instance", zap.String("url", row.URL))
		if err := c.store.DeleteInstance(ctx, row.ID); err != nil {
			c.logger.Error("Could not remove instance",
				zap.String("url", row.URL), zap.Error(err))
		}
	}

	return nil
}
