package mastodon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/skyrelay/skyrelay/pkg/logging"
	"github.com/skyrelay/skyrelay/pkg/telemetry"
)

// Error classes for credential checks. Transient failures come back as
// plain wrapped errors.
var (
	ErrUnauthorized = errors.New("mastodon: unauthorized")
	ErrRateLimited  = errors.New("mastodon: rate limited")
)

// Client is a minimal Mastodon REST client scoped to one account token.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *zap.Logger
}

// New creates a client for the given instance base URL and access token
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  logging.WithComponent("mastodon-client"),
	}
}

// RecentStatuses fetches the most recent statuses of an account, newest
// first, with reblogs excluded. Replies are kept: the thread resolver
// needs them for ancestry walks.
func (c *Client) RecentStatuses(ctx context.Context, accountID string, limit int) ([]Status, error) {
	ctx, span := telemetry.StartSpan(ctx, "mastodon.recent_statuses")
	defer span.End()

	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("exclude_reblogs", "true")

	endpoint := fmt.Sprintf("%s/api/v1/accounts/%s/statuses?%s", c.baseURL, url.PathEscape(accountID), q.Encode())

	body, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch statuses for %s: %w", accountID, err)
	}

	var statuses []Status
	if err := json.Unmarshal(body, &statuses); err != nil {
		return nil, fmt.Errorf("failed to unmarshal statuses: %w", err)
	}

	return statuses, nil
}

// VerifyCredentials checks that the stored token is still accepted by the
// instance. Returns ErrUnauthorized when the token has been revoked.
func (c *Client) VerifyCredentials(ctx context.Context) error {
	ctx, span := telemetry.StartSpan(ctx, "mastodon.verify_credentials")
	defer span.End()

	endpoint := c.baseURL + "/api/v1/accounts/verify_credentials"
	if _, err := c.get(ctx, endpoint); err != nil {
		return err
	}
	return nil
}

// DownloadMedia fetches a media attachment and returns its bytes and MIME type.
func (c *Client) DownloadMedia(ctx context.Context, mediaURL string) ([]byte, string, error) {
	ctx, span := telemetry.StartSpan(ctx, "mastodon.download_media")
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return nil, "", err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to download media: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("failed to download media: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read media body: %w", err)
	}

	return data, resp.Header.Get("Content-Type"), nil
}

func (c *Client) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w (status %d)", ErrUnauthorized, resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w (status %d)", ErrRateLimited, resp.StatusCode)
	default:
		c.logger.Debug("Unexpected response from instance",
			zap.Int("status", resp.StatusCode),
			zap.String("endpoint", endpoint))
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, endpoint)
	}
}
