// Package remote is the authenticated HTTP client for the POS backend.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	pkgerrors "github.com/angelmondragon/packfinderz-pos/pkg/errors"
	"github.com/angelmondragon/packfinderz-pos/pkg/logger"
	"github.com/angelmondragon/packfinderz-pos/pkg/meta"
	"github.com/angelmondragon/packfinderz-pos/pkg/secrets"
	"github.com/angelmondragon/packfinderz-pos/pkg/types"
	"go.uber.org/multierr"
)

const (
	// HeaderDeviceID identifies the calling device on every authenticated request.
	HeaderDeviceID = "X-Device-Id"
	// HeaderIdempotencyKey carries the push batch token.
	HeaderIdempotencyKey = "Idempotency-Key"

	DefaultTimeout              = 15 * time.Second
	responseBodyReadLimit int64 = 1024
)

// Client issues JSON requests against the paired backend. Credentials are read
// from the meta and secret stores on every call.
type Client struct {
	httpClient *http.Client
	meta       meta.Store
	secrets    secrets.Store
	logg       *logger.Logger
	syncState  meta.Store
	onRevoked  func(ctx context.Context, deviceID string)
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient = &http.Client{Timeout: timeout}
		}
	}
}

func WithLogger(logg *logger.Logger) Option {
	return func(c *Client) {
		c.logg = logg
	}
}

// WithSyncState lets a revocation also drop the catalog cursor of the lost pairing.
func WithSyncState(store meta.Store) Option {
	return func(c *Client) {
		c.syncState = store
	}
}

// WithRevokeHook runs after credentials were cleared because the server rejected them.
func WithRevokeHook(fn func(ctx context.Context, deviceID string)) Option {
	return func(c *Client) {
		c.onRevoked = fn
	}
}

func NewClient(metaStore meta.Store, secretStore secrets.Store, opts ...Option) (*Client, error) {
	if metaStore == nil {
		return nil, errors.New("meta store is required")
	}
	if secretStore == nil {
		return nil, errors.New("secret store is required")
	}
	c := &Client{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		meta:       metaStore,
		secrets:    secretStore,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// Request describes one call relative to the paired base URL.
type Request struct {
	Method         string
	Path           string
	Body           any
	IdempotencyKey string
}

// Do sends an authenticated request and decodes a JSON response into out when non-nil.
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	identity, err := meta.LoadIdentity(ctx, c.meta)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load device identity")
	}
	if identity.BaseURL == "" || identity.DeviceID == "" {
		return pkgerrors.New(pkgerrors.CodeNotConfigured, "device is not paired")
	}
	token, err := c.secrets.Get(ctx, secrets.TokenKey)
	if errors.Is(err, secrets.ErrNotFound) || (err == nil && token == "") {
		return pkgerrors.New(pkgerrors.CodeNotConfigured, "device token missing")
	}
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "read device token")
	}

	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+token)
	headers.Set(HeaderDeviceID, identity.DeviceID)
	if req.IdempotencyKey != "" {
		headers.Set(HeaderIdempotencyKey, req.IdempotencyKey)
	}

	status, err := c.send(ctx, identity.BaseURL, req, headers, out)
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		c.revoke(ctx, identity.DeviceID)
	}
	return err
}

// Post sends an unauthenticated JSON POST; pairing is the only caller.
func (c *Client) Post(ctx context.Context, baseURL, path string, body, out any) error {
	_, err := c.send(ctx, baseURL, Request{Method: http.MethodPost, Path: path, Body: body}, http.Header{}, out)
	return err
}

func (c *Client) send(ctx context.Context, baseURL string, req Request, headers http.Header, out any) (int, error) {
	var body io.Reader
	if req.Body != nil {
		payload, err := json.Marshal(req.Body)
		if err != nil {
			return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal request")
		}
		body = bytes.NewReader(payload)
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	url := buildURL(baseURL, req.Path)
	httpReq, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeNotConfigured, err, "build request")
	}
	for k, v := range headers {
		httpReq.Header[k] = v
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeTransient, err, "request "+req.Path+" failed")
	}
	defer func() { _ = resp.Body.Close() }()

	if err := statusError(resp, req.Path); err != nil {
		return resp.StatusCode, err
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, pkgerrors.Wrap(pkgerrors.CodeProtocol, err, "decode "+req.Path+" response")
	}
	return resp.StatusCode, nil
}

func statusError(resp *http.Response, path string) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
	cause := fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	details := map[string]any{"status": resp.StatusCode, "path": path}
	var envelope types.ErrorEnvelope
	if json.Unmarshal(msg, &envelope) == nil && envelope.Error.Code != "" {
		details["server_code"] = envelope.Error.Code
		cause = fmt.Errorf("status %d: %s: %s", resp.StatusCode, envelope.Error.Code, envelope.Error.Message)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return pkgerrors.Wrap(pkgerrors.CodeAuthRevoked, cause, "device token rejected").WithDetails(details)
	case resp.StatusCode == http.StatusRequestTimeout,
		resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode >= 500:
		return pkgerrors.Wrap(pkgerrors.CodeTransient, cause, "remote unavailable").WithDetails(details)
	case resp.StatusCode == http.StatusConflict:
		return pkgerrors.Wrap(pkgerrors.CodeConflict, cause, "remote conflict").WithDetails(details)
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		return pkgerrors.Wrap(pkgerrors.CodeValidation, cause, "remote rejected request").WithDetails(details)
	}
	return pkgerrors.Wrap(pkgerrors.CodeProtocol, cause, "unexpected remote status").WithDetails(details)
}

func (c *Client) revoke(ctx context.Context, deviceID string) {
	if err := ClearCredentials(ctx, c.meta, c.secrets, c.syncState); err != nil {
		c.logg.Warn(c.logg.WithField(ctx, "error", err.Error()), "clearing revoked credentials was incomplete")
	}
	c.logg.Warn(c.logg.WithDeviceID(ctx, deviceID), "device token revoked; pairing required")
	if c.onRevoked != nil {
		c.onRevoked(ctx, deviceID)
	}
}

// ClearCredentials deletes the token, every identity key and, when syncState is
// not nil, the pairing's sync position. Each step runs even if an earlier one
// failed, so calling it again finishes a partial clear.
func ClearCredentials(ctx context.Context, metaStore meta.Store, secretStore secrets.Store, syncState meta.Store) error {
	var err error
	if delErr := secretStore.Delete(ctx, secrets.TokenKey); delErr != nil && !errors.Is(delErr, secrets.ErrNotFound) {
		err = multierr.Append(err, fmt.Errorf("delete token: %w", delErr))
	}
	for _, key := range meta.IdentityKeys {
		if delErr := metaStore.Delete(ctx, key); delErr != nil {
			err = multierr.Append(err, fmt.Errorf("delete %s: %w", key, delErr))
		}
	}
	if syncState != nil {
		if delErr := syncState.Delete(ctx, meta.PairingSyncKeys...); delErr != nil {
			err = multierr.Append(err, fmt.Errorf("reset sync position: %w", delErr))
		}
	}
	return err
}

func buildURL(baseURL, path string) string {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	path = strings.TrimLeft(path, "/")
	return fmt.Sprintf("%s/%s", trimmed, path)
}
