package relay

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"github.com/skyrelay/skyrelay/internal/bluesky"
	"github.com/skyrelay/skyrelay/internal/models"
	"github.com/skyrelay/skyrelay/pkg/logging"
)

// ErrSessionUnavailable means no authenticated destination client could be
// produced this tick. The cause has already been logged and, for bad
// credentials, acted on; callers just stop the account's run.
var ErrSessionUnavailable = errors.New("destination session unavailable")

// AgentFactory builds a destination client for a PDS endpoint. Swapped out
// in tests.
type AgentFactory func(service string, persist bluesky.PersistSessionFunc) Agent

// SessionManager owns the destination session lifecycle: resume a stored
// session when one exists, fall back to a fresh login, and react to
// session rotation events coming back from the client. It only ever
// touches session and credential state, never watermarks or repost
// records.
type SessionManager struct {
	store      Store
	defaultPDS string
	newAgent   AgentFactory
	logger     *zap.Logger
}

// NewSessionManager creates a session manager backed by the given store.
func NewSessionManager(store Store, defaultPDS string) *SessionManager {
	return &SessionManager{
		store:      store,
		defaultPDS: defaultPDS,
		newAgent: func(service string, persist bluesky.PersistSessionFunc) Agent {
			return bluesky.NewAgent(service, persist)
		},
		logger: logging.WithComponent("session-manager"),
	}
}

// Acquire returns an authenticated destination client for the account, or
// ErrSessionUnavailable when none can be had right now.
func (m *SessionManager) Acquire(ctx context.Context, account *models.Account) (Agent, error) {
	logger := m.logger.With(zap.String("account", account.Name))

	agent := m.newAgent(account.PDS(m.defaultPDS), m.persistFunc(account, logger))

	if len(account.BskySession) > 0 {
		var sess bluesky.Session
		if err := json.Unmarshal(account.BskySession, &sess); err != nil {
			logger.Warn("Stored session blob is unreadable, logging in fresh", zap.Error(err))
		} else if err := agent.ResumeSession(ctx, &sess); err != nil {
			logger.Info("Could not resume session", zap.Error(err))
		} else {
			logger.Debug("Resumed session")
			return agent, nil
		}
	} else {
		logger.Debug("No stored session")
	}

	err := agent.Login(ctx, account.BskyHandle.String, account.BskyPassword.String)
	if err == nil {
		return agent, nil
	}

	switch {
	case bluesky.IsAuthRequired(err):
		// invalidate creds so repeated failing logins do not trip upstream
		// rate limits
		logger.Warn("Destination credentials rejected, invalidating")
		if clearErr := m.store.ClearDestination(ctx, account.ID); clearErr != nil {
			logger.Error("Could not clear destination credentials", zap.Error(clearErr))
		}
	case bluesky.IsRateLimited(err):
		logger.Info("Destination login rate limited")
	default:
		logger.Error("Destination login failed", zap.Error(err))
	}

	return nil, ErrSessionUnavailable
}

// persistFunc builds the session-rotation callback handed to the client.
// Expired and create-failed events clear the stored session; everything
// else persists the fresh blob together with the event kind.
func (m *SessionManager) persistFunc(account *models.Account, logger *zap.Logger) bluesky.PersistSessionFunc {
	return func(evt bluesky.SessionEvent, sess *bluesky.Session) {
		ctx := context.Background()

		if evt == bluesky.SessionExpired || evt == bluesky.SessionCreateFailed {
			logger.Info("Clearing stored session", zap.String("event", string(evt)))
			if err := m.store.ClearSession(ctx, account.ID); err != nil {
				logger.Error("Could not clear session", zap.Error(err))
			}
			return
		}

		if sess == nil {
			return
		}
		blob, err := json.Marshal(sess)
		if err != nil {
			logger.Error("Could not encode session", zap.Error(err))
			return
		}
		if err := m.store.PutSession(ctx, account.ID, blob, string(evt)); err != nil {
			logger.Error("Could not persist session", zap.Error(err))
			return
		}
		logger.Debug("Session persisted", zap.String("event", string(evt)))
	}
}
