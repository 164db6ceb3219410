package bluesky

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/skyrelay/skyrelay/pkg/logging"
	"github.com/skyrelay/skyrelay/pkg/telemetry"
)

// Agent is an authenticated client against one PDS. It mirrors the atproto
// agent model: sessions are resumed when possible, refreshed when the
// access token expires, and every rotation is reported through the persist
// callback so the caller can store the new blob.
type Agent struct {
	service string
	http    *http.Client
	session *Session
	persist PersistSessionFunc
	logger  *zap.Logger
}

// NewAgent creates an agent for the given PDS endpoint. persist may be nil.
func NewAgent(service string, persist PersistSessionFunc) *Agent {
	return &Agent{
		service: service,
		http:    &http.Client{Timeout: 30 * time.Second},
		persist: persist,
		logger:  logging.WithComponent("bluesky-agent").With(zap.String("service", service)),
	}
}

// Session returns the current session, nil when unauthenticated.
func (a *Agent) Session() *Session {
	return a.session
}

func (a *Agent) fireSessionEvent(evt SessionEvent, sess *Session) {
	if a.persist != nil {
		a.persist(evt, sess)
	}
}

// ResumeSession validates a stored session against the PDS. When the access
// token has expired it attempts a refresh before giving up.
func (a *Agent) ResumeSession(ctx context.Context, sess *Session) error {
	ctx, span := telemetry.StartSpan(ctx, "bluesky.resume_session")
	defer span.End()

	a.session = sess

	err := a.call(ctx, http.MethodGet, "com.atproto.server.getSession", nil, nil, nil)
	if err == nil {
		return nil
	}

	if IsExpiredToken(err) || IsAuthRequired(err) {
		if refreshErr := a.refreshSession(ctx); refreshErr == nil {
			return nil
		}
		a.session = nil
		a.fireSessionEvent(SessionExpired, nil)
		return fmt.Errorf("session expired: %w", err)
	}

	a.session = nil
	return fmt.Errorf("failed to resume session: %w", err)
}

func (a *Agent) refreshSession(ctx context.Context) error {
	if a.session == nil || a.session.RefreshJwt == "" {
		return fmt.Errorf("no refresh token")
	}

	var refreshed Session
	err := a.callWithToken(ctx, http.MethodPost, "com.atproto.server.refreshSession",
		a.session.RefreshJwt, nil, nil, &refreshed)
	if err != nil {
		return fmt.Errorf("failed to refresh session: %w", err)
	}

	a.session = &refreshed
	a.fireSessionEvent(SessionUpdated, &refreshed)
	return nil
}

// Login creates a fresh session from handle and app password.
func (a *Agent) Login(ctx context.Context, identifier, password string) error {
	ctx, span := telemetry.StartSpan(ctx, "bluesky.login")
	defer span.End()

	body := map[string]string{
		"identifier": identifier,
		"password":   password,
	}

	var sess Session
	if err := a.call(ctx, http.MethodPost, "com.atproto.server.createSession", nil, body, &sess); err != nil {
		a.fireSessionEvent(SessionCreateFailed, nil)
		return fmt.Errorf("login failed: %w", err)
	}

	a.session = &sess
	a.fireSessionEvent(SessionCreated, &sess)
	return nil
}

// Post creates an app.bsky.feed.post record and returns its reference.
func (a *Agent) Post(ctx context.Context, record *Record) (PostRef, error) {
	ctx, span := telemetry.StartSpan(ctx, "bluesky.post")
	defer span.End()

	if a.session == nil {
		return PostRef{}, fmt.Errorf("not authenticated")
	}

	body := map[string]interface{}{
		"repo":       a.session.DID,
		"collection": "app.bsky.feed.post",
		"record":     record,
	}

	var ref PostRef
	if err := a.call(ctx, http.MethodPost, "com.atproto.repo.createRecord", nil, body, &ref); err != nil {
		return PostRef{}, fmt.Errorf("failed to create post: %w", err)
	}

	return ref, nil
}

// GetPosts resolves post URIs and returns the subset that still exists.
// A parent that was deleted on the destination must not be used as a reply
// target, so the orchestrator checks through here first.
func (a *Agent) GetPosts(ctx context.Context, uris []string) ([]PostRef, error) {
	ctx, span := telemetry.StartSpan(ctx, "bluesky.get_posts")
	defer span.End()

	if len(uris) == 0 {
		return nil, nil
	}

	params := url.Values{}
	for _, u := range uris {
		params.Add("uris", u)
	}

	var resp struct {
		Posts []PostRef `json:"posts"`
	}
	if err := a.call(ctx, http.MethodGet, "app.bsky.feed.getPosts?"+params.Encode(), nil, nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to resolve posts: %w", err)
	}

	return resp.Posts, nil
}

// UploadBlob uploads raw media bytes and returns the blob ref to embed.
func (a *Agent) UploadBlob(ctx context.Context, data []byte, mimeType string) (json.RawMessage, error) {
	ctx, span := telemetry.StartSpan(ctx, "bluesky.upload_blob")
	defer span.End()

	if a.session == nil {
		return nil, fmt.Errorf("not authenticated")
	}

	endpoint := a.service + "/xrpc/com.atproto.repo.uploadBlob"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mimeType)
	req.Header.Set("Authorization", "Bearer "+a.session.AccessJwt)

	httpResp, err := a.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to upload blob: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, err
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, decodeError(httpResp.StatusCode, respBody)
	}

	var resp struct {
		Blob json.RawMessage `json:"blob"`
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal blob response: %w", err)
	}

	return resp.Blob, nil
}

// call performs an XRPC request with the current access token.
func (a *Agent) call(ctx context.Context, method, nsid string, headers map[string]string, body, out interface{}) error {
	token := ""
	if a.session != nil {
		token = a.session.AccessJwt
	}
	return a.callWithToken(ctx, method, nsid, token, headers, body, out)
}

func (a *Agent) callWithToken(ctx context.Context, method, nsid, token string, headers map[string]string, body, out interface{}) error {
	endpoint := a.service + "/xrpc/" + nsid

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK {
		return decodeError(resp.StatusCode, respBody)
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}
	return nil
}

func decodeError(status int, body []byte) error {
	xe := &XRPCError{StatusCode: status}
	if err := json.Unmarshal(body, xe); err != nil || xe.Code == "" {
		xe.Code = "Unknown"
		xe.Message = string(body)
	}
	return xe
}

// ValidateHandle reports whether the string looks like a Bluesky handle
// (a dotted domain name).
func ValidateHandle(handle string) bool {
	return handleRe.MatchString(handle)
}

// ValidateAppPassword reports whether the string matches the app-password
// format (four dash-separated groups of four).
func ValidateAppPassword(password string) bool {
	return appPasswordRe.MatchString(password)
}

// ValidateCredentials performs a live login to verify a handle and app
// password pair before they are stored.
func ValidateCredentials(ctx context.Context, pds, handle, password string) bool {
	agent := NewAgent(pds, nil)
	return agent.Login(ctx, handle, password) == nil
}
