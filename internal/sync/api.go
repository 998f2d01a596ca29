// Remote API client. One request per queue entry; responses carry the
// server's canonical record for reconciliation.
package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	apperrors "github.com/keepsakehq/keepsake-client/internal/errors"
	"github.com/keepsakehq/keepsake-client/internal/models"
)

// Client is the remote API boundary the engine drains against.
type Client interface {
	Create(ctx context.Context, et models.EntityType, payload json.RawMessage) (json.RawMessage, error)
	Update(ctx context.Context, et models.EntityType, id models.UUID, payload json.RawMessage) (json.RawMessage, error)
	Delete(ctx context.Context, et models.EntityType, id models.UUID) error
	Fetch(ctx context.Context, et models.EntityType, cursor string, limit int) (*Page, error)
}

// Page is one slice of a paginated fetch. An empty NextCursor means the
// last page.
type Page struct {
	Records    []json.RawMessage `json:"records"`
	NextCursor string            `json:"next_cursor"`
}

// TokenSource supplies the bearer token for API calls. ok is false when
// no user is signed in.
type TokenSource interface {
	Token() (string, bool)
}

// ClientConfig holds remote API client configuration.
type ClientConfig struct {
	BaseURL string
	Timeout time.Duration // per-request bound; a timeout counts as transient
}

// DefaultClientConfig returns default client configuration.
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{Timeout: 15 * time.Second}
}

// HTTPClient talks to the Keepsake server over REST.
type HTTPClient struct {
	baseURL string
	tokens  TokenSource
	http    *http.Client
}

// NewHTTPClient creates a client against the given server.
func NewHTTPClient(config *ClientConfig, tokens TokenSource) *HTTPClient {
	if config == nil {
		config = DefaultClientConfig()
	}
	return &HTTPClient{
		baseURL: config.BaseURL,
		tokens:  tokens,
		http:    &http.Client{Timeout: config.Timeout},
	}
}

// Create POSTs a new entity and returns the server's canonical record.
func (c *HTTPClient) Create(ctx context.Context, et models.EntityType, payload json.RawMessage) (json.RawMessage, error) {
	return c.send(ctx, http.MethodPost, c.collectionURL(et, nil), payload)
}

// Update PATCHes an entity and returns the updated canonical record.
func (c *HTTPClient) Update(ctx context.Context, et models.EntityType, id models.UUID, payload json.RawMessage) (json.RawMessage, error) {
	return c.send(ctx, http.MethodPatch, c.entityURL(et, id), payload)
}

// Delete removes an entity server-side.
func (c *HTTPClient) Delete(ctx context.Context, et models.EntityType, id models.UUID) error {
	_, err := c.send(ctx, http.MethodDelete, c.entityURL(et, id), nil)
	return err
}

// Fetch GETs one page of an entity collection for background refresh.
func (c *HTTPClient) Fetch(ctx context.Context, et models.EntityType, cursor string, limit int) (*Page, error) {
	query := url.Values{}
	if cursor != "" {
		query.Set("cursor", cursor)
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	body, err := c.send(ctx, http.MethodGet, c.collectionURL(et, query), nil)
	if err != nil {
		return nil, err
	}

	var page Page
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrSyncFailed, "malformed page response", err)
	}
	return &page, nil
}

func (c *HTTPClient) collectionURL(et models.EntityType, query url.Values) string {
	u := c.baseURL + "/" + models.TableFor(et)
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

func (c *HTTPClient) entityURL(et models.EntityType, id models.UUID) string {
	return c.baseURL + "/" + models.TableFor(et) + "/" + url.PathEscape(string(id))
}

func (c *HTTPClient) send(ctx context.Context, method, u string, payload json.RawMessage) (json.RawMessage, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrSyncFailed, "failed to build request", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token, ok := c.tokens.Token(); ok {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrSyncTransport, "failed to read response", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return data, nil
	}
	return nil, classifyStatus(resp.StatusCode, data)
}

func classifyTransportError(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return apperrors.Wrap(apperrors.ErrSyncTimeout, "request timed out", err)
	}
	return apperrors.Wrap(apperrors.ErrSyncTransport, "network failure", err)
}

// classifyStatus maps a non-success response onto the retry taxonomy:
// 401 is fatal for the entry, other 4xx are rejections the user must
// correct, everything else is transient.
func classifyStatus(status int, body []byte) error {
	reason := serverReason(body)
	switch {
	case status == http.StatusUnauthorized:
		return apperrors.New(apperrors.ErrSyncAuthFailed, "authentication failed")
	case status >= 400 && status < 500:
		if reason == "" {
			reason = fmt.Sprintf("server rejected request (%d)", status)
		}
		return apperrors.New(apperrors.ErrSyncRejected, reason)
	default:
		return apperrors.New(apperrors.ErrSyncTransport,
			fmt.Sprintf("server error (%d)", status))
	}
}

// serverReason pulls the error message out of a JSON error body, if any.
func serverReason(body []byte) string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if payload.Error != "" {
		return payload.Error
	}
	return payload.Message
}

// IsTransient reports whether an entry failure should be retried with
// backoff.
func IsTransient(err error) bool {
	return apperrors.Is(err, apperrors.ErrSyncTransport) ||
		apperrors.Is(err, apperrors.ErrSyncTimeout)
}

// IsAuthFailure reports an authentication failure, fatal for the entry.
func IsAuthFailure(err error) bool {
	return apperrors.Is(err, apperrors.ErrSyncAuthFailed)
}

// IsRejected reports a validation or conflict rejection from the server.
func IsRejected(err error) bool {
	return apperrors.Is(err, apperrors.ErrSyncRejected)
}
