package httpapi

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
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ramppay/ramppay-sync-go/internal/adapters/config"
	"github.com/ramppay/ramppay-sync-go/internal/domain"
	"github.com/ramppay/ramppay-sync-go/pkg/contextkeys"
)

const xRequestIDHeader = "X-Request-ID"

// Client is the typed wrapper around the backend's REST interface: auth,
// transactions, rates and payment initiation. Timeouts retry once before
// surfacing; a 401 from any call clears the local credential and fires the
// registered unauthorized hook.
type Client struct {
	httpClient     *http.Client
	configProvider config.Provider
	logger         domain.Logger

	mu             sync.Mutex
	bearer         string
	onUnauthorized func(ctx context.Context)
}

// NewClient creates an API client. The http.Client timeout is left unset;
// per-request contexts carry the configured deadline instead.
func NewClient(cfgProvider config.Provider, logger domain.Logger) *Client {
	return &Client{
		httpClient:     &http.Client{},
		configProvider: cfgProvider,
		logger:         logger,
	}
}

// SetOnUnauthorized registers the global 401 hook (forced logout). At most
// one hook; later calls replace earlier ones.
func (c *Client) SetOnUnauthorized(fn func(ctx context.Context)) {
	c.mu.Lock()
	c.onUnauthorized = fn
	c.mu.Unlock()
}

// Bearer returns the current credential, or "" when logged out. Also serves
// the push-channel handshake via domain.CredentialSource.
func (c *Client) Bearer() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bearer
}

// SetBearer installs a credential restored from the session store.
func (c *Client) SetBearer(bearer string) {
	c.mu.Lock()
	c.bearer = bearer
	c.mu.Unlock()
}

// errorBody is the backend's error envelope.
type errorBody struct {
	Message string `json:"message"`
}

// doJSON performs one request with retry-on-timeout, encodes in (when non
// nil) as the JSON body and decodes the response into out (when non nil).
func (c *Client) doJSON(ctx context.Context, method, path string, in, out interface{}) error {
	cfg := c.configProvider.Get().API
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	var body []byte
	if in != nil {
		var err error
		body, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
	}

	requestID := uuid.NewString()
	ctx = context.WithValue(ctx, contextkeys.RequestIDKey, requestID)

	err := c.attempt(ctx, method, path, body, out, requestID, timeout)
	var fe *domain.FetchError
	if errors.As(err, &fe) && fe.IsTimeout {
		// One automatic retry on timeout; the backend may be waking up.
		c.logger.Warn(ctx, "Request timed out, retrying once", "method", method, "path", path)
		err = c.attempt(ctx, method, path, body, out, requestID, timeout)
	}
	return err
}

func (c *Client) attempt(ctx context.Context, method, path string, body []byte, out interface{}, requestID string, timeout time.Duration) error {
	cfg := c.configProvider.Get().API
	// JoinPath escapes "?" inside a path element, so the query part must be
	// split off and reattached raw.
	pathOnly, rawQuery, _ := strings.Cut(path, "?")
	u, err := url.JoinPath(cfg.BaseURL, pathOnly)
	if err != nil {
		return fmt.Errorf("build request url: %w", err)
	}
	if rawQuery != "" {
		u += "?" + rawQuery
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(reqCtx, method, u, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(xRequestIDHeader, requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer := c.Bearer(); bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.classifyTransportFailure(ctx, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &domain.FetchError{Message: "malformed response from server", Err: err}
		}
		return nil
	}

	return c.classifyStatus(ctx, resp)
}

func (c *Client) classifyTransportFailure(ctx context.Context, method, path string, err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &domain.FetchError{Message: "request timed out", IsTimeout: true, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &domain.FetchError{Message: "request timed out", IsTimeout: true, Err: err}
	}
	c.logger.Warn(ctx, "Request failed before a response arrived", "method", method, "path", path, "error", err.Error())
	return &domain.FetchError{Message: "could not reach server", IsNetworkError: true, Err: err}
}

func (c *Client) classifyStatus(ctx context.Context, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var envelope errorBody
	_ = json.Unmarshal(raw, &envelope)
	message := envelope.Message
	if message == "" {
		message = strings.TrimSpace(string(raw))
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		c.mu.Lock()
		c.bearer = ""
		hook := c.onUnauthorized
		c.mu.Unlock()
		c.logger.Warn(ctx, "Received 401, clearing local credential")
		if hook != nil {
			hook(ctx)
		}
		return &domain.AuthError{Status: resp.StatusCode}
	case http.StatusNotFound:
		return &domain.NotFoundError{}
	default:
		if message == "" {
			message = fmt.Sprintf("server returned status %d", resp.StatusCode)
		}
		return &domain.FetchError{Message: message}
	}
}
