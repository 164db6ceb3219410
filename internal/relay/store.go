package relay

import (
	"context"
	"encoding/json"
	"time"

	"github.com/skyrelay/skyrelay/internal/bluesky"
	"github.com/skyrelay/skyrelay/internal/mastodon"
)

// Store is the persistence surface the relay core needs. The schema and
// query mechanics live in internal/db; the core only sees these semantics.
type Store interface {
	// SetWatermark advances the last-processed-post time. Must be
	// monotonic: an earlier value is a no-op.
	SetWatermark(ctx context.Context, accountID string, t time.Time) error

	// GetRepost returns the destination thread pointers recorded for a
	// source status, or nil when it was never relayed.
	GetRepost(ctx context.Context, accountID, statusID string) (*bluesky.ReplyRef, error)

	// PutRepost records the destination thread pointers for a source
	// status. Called exactly once per successfully posted status.
	PutRepost(ctx context.Context, accountID, statusID string, ref bluesky.ReplyRef) error

	// PutSession persists a rotated destination session blob.
	PutSession(ctx context.Context, accountID string, blob []byte, event string) error

	// ClearSession drops the session blob, keeping the credentials.
	ClearSession(ctx context.Context, accountID string) error

	// ClearDestination wipes handle, credential and session.
	ClearDestination(ctx context.Context, accountID string) error
}

// Agent is the destination client surface used by the orchestrator. The
// concrete implementation is bluesky.Agent; tests substitute a fake.
type Agent interface {
	ResumeSession(ctx context.Context, sess *bluesky.Session) error
	Login(ctx context.Context, identifier, password string) error
	Post(ctx context.Context, record *bluesky.Record) (bluesky.PostRef, error)
	GetPosts(ctx context.Context, uris []string) ([]bluesky.PostRef, error)
	UploadBlob(ctx context.Context, data []byte, mimeType string) (json.RawMessage, error)
}

// Source is the source-network client surface used by the orchestrator
// and the cleanup job.
type Source interface {
	RecentStatuses(ctx context.Context, accountID string, limit int) ([]mastodon.Status, error)
	VerifyCredentials(ctx context.Context) error
	DownloadMedia(ctx context.Context, mediaURL string) ([]byte, string, error)
}
