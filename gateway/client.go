// Package gateway is the one configured HTTP client the rest of the
// application goes through to reach the blog backend. It attaches the
// current access token, transparently refreshes and retries once on a 401,
// retries transient failures with bounded exponential backoff, and routes
// server error messages to a global notification sink. Callers can treat it
// as if tokens never expire and network blips do not exist.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// TokenSource supplies access tokens with a guaranteed remaining lifetime.
// *session.Manager satisfies it.
type TokenSource interface {
	Refresh(ctx context.Context, margin time.Duration) (string, error)
}

// forceRefreshMargin exceeds any real token lifetime, so passing it to
// Refresh always triggers a network refresh. Used after a 401.
const forceRefreshMargin = 10 * 365 * 24 * time.Hour

// Config tunes the client. Zero values fall back to defaults.
type Config struct {
	// BaseURL of the backend, without the /v1/api resource prefix.
	BaseURL string
	// PublicPrefixes are path prefixes that never carry authorization and
	// never trigger a refresh. Defaults to {"/v1/api/public"}.
	PublicPrefixes []string
	// RefreshMargin is the minimum remaining token lifetime demanded before
	// each authenticated request. Defaults to 30s.
	RefreshMargin time.Duration
	// MaxAttempts bounds total tries for transient failures. Defaults to 5.
	MaxAttempts int
	// BaseDelay is the initial backoff delay, doubling per attempt up to
	// MaxDelay. Defaults are 250ms and 4s.
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

func (cfg *Config) applyDefaults() {
	if len(cfg.PublicPrefixes) == 0 {
		cfg.PublicPrefixes = []string{"/v1/api/public"}
	}
	if cfg.RefreshMargin == 0 {
		cfg.RefreshMargin = 30 * time.Second
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.BaseDelay == 0 {
		cfg.BaseDelay = 250 * time.Millisecond
	}
	if cfg.MaxDelay == 0 {
		cfg.MaxDelay = 4 * time.Second
	}
}

// Client is the API gateway client.
type Client struct {
	cfg        Config
	httpClient *http.Client
	tokens     TokenSource
	notify     Notifier
	log        zerolog.Logger
}

// Option modifies a Client at construction time.
type Option func(*Client)

// WithHTTPClient sets the underlying transport.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithLogger sets the client's logger.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) {
		c.log = log
	}
}

// WithNotifier sets the global error-notification sink.
func WithNotifier(notify Notifier) Option {
	return func(c *Client) {
		c.notify = notify
	}
}

// New creates a gateway client.
func New(cfg Config, tokens TokenSource, options ...Option) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("[gateway.New] BaseURL is required")
	}
	if tokens == nil {
		return nil, errors.New("[gateway.New] token source is required")
	}
	cfg.applyDefaults()

	c := &Client{
		cfg:        cfg,
		httpClient: http.DefaultClient,
		tokens:     tokens,
		log:        zerolog.Nop(),
	}
	for _, opt := range options {
		opt(c)
	}
	if c.notify == nil {
		c.notify = NewLogNotifier(c.log)
	}
	return c, nil
}

// Get issues a GET request, decoding the JSON response into out when out is
// non-nil.
func (c *Client) Get(ctx context.Context, path string, query url.Values, out interface{}) error {
	return c.do(ctx, http.MethodGet, path, query, nil, out)
}

// Post issues a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body, out interface{}) error {
	return c.do(ctx, http.MethodPost, path, nil, body, out)
}

// Put issues a PUT request with a JSON body.
func (c *Client) Put(ctx context.Context, path string, body, out interface{}) error {
	return c.do(ctx, http.MethodPut, path, nil, body, out)
}

// Patch issues a PATCH request. Query carries parameters for endpoints that
// take them alongside an (often empty) body.
func (c *Client) Patch(ctx context.Context, path string, query url.Values, body, out interface{}) error {
	return c.do(ctx, http.MethodPatch, path, query, body, out)
}

// Delete issues a DELETE request.
func (c *Client) Delete(ctx context.Context, path string) error {
	return c.do(ctx, http.MethodDelete, path, nil, nil, nil)
}

// contextKey marks request-scoped flags carried in the context.
type contextKey string

// retriedKey marks a request that has already been resubmitted once after
// a 401. Its presence both forces the next token refresh and forbids any
// further retry.
const retriedKey contextKey = "auth_retried"

func markRetried(ctx context.Context) context.Context {
	return context.WithValue(ctx, retriedKey, true)
}

func wasRetried(ctx context.Context) bool {
	retried, _ := ctx.Value(retriedKey).(bool)
	return retried
}

// do runs the request pipeline: auth-attach -> send -> classify ->
// retry-decision -> notify. The notification sink fires at most once per
// logical request, at terminal classification.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return errors.Wrapf(err, "[Client.do] encoding %s %s body", method, path)
		}
	}

	public := c.isPublic(path)

	for {
		// Auth-attach: guarantee a live token before sending. The retried
		// marker forces a fresh one.
		token := ""
		if !public {
			margin := c.cfg.RefreshMargin
			if wasRetried(ctx) {
				margin = forceRefreshMargin
			}
			var err error
			token, err = c.tokens.Refresh(ctx, margin)
			if err != nil {
				// The session manager has already routed to login when the
				// session is gone; this request just aborts.
				return errors.Wrapf(err, "[Client.do] session refresh for %s %s", method, path)
			}
		}

		status, respBody, err := c.send(ctx, method, endpoint, payload, token)
		if err != nil {
			return errors.Wrapf(err, "[Client.do] %s %s", method, path)
		}

		// Classify.
		if status < http.StatusMultipleChoices {
			if out == nil || len(respBody) == 0 {
				return nil
			}
			if err := json.Unmarshal(respBody, out); err != nil {
				return errors.Wrapf(err, "[Client.do] decoding %s %s response", method, path)
			}
			return nil
		}

		// Retry-decision: one resubmission after a 401, never more. A 401
		// on a retried request is a permission problem, not a token
		// problem, and propagates like any other error status.
		if status == http.StatusUnauthorized && !public && !wasRetried(ctx) {
			c.log.Debug().Str("path", path).Msg("401 received, retrying once with a fresh token")
			ctx = markRetried(ctx)
			continue
		}

		// Notify, then propagate.
		apiErr := newAPIError(status, respBody)
		c.notify.Notify(apiErr.Message)
		return apiErr
	}
}

// send performs the transport call, retrying network errors and 5xx
// responses (excluding 501) with exponential backoff: base delay doubling
// per attempt, capped, at most MaxAttempts total tries. When attempts run
// out on a 5xx the final status is returned for classification; a network
// failure surfaces as an error.
func (c *Client) send(ctx context.Context, method, endpoint string, payload []byte, token string) (int, []byte, error) {
	var status int
	var respBody []byte

	op := func() error {
		var reader io.Reader
		if len(payload) > 0 {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Accept", "application/json")
		if len(payload) > 0 {
			req.Header.Set("Content-Type", "application/json")
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}

		if resp.StatusCode >= http.StatusInternalServerError && resp.StatusCode != http.StatusNotImplemented {
			return &serverError{status: resp.StatusCode, body: data}
		}

		status = resp.StatusCode
		respBody = data
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.BaseDelay
	bo.RandomizationFactor = 0
	bo.Multiplier = 2
	bo.MaxInterval = c.cfg.MaxDelay
	bo.MaxElapsedTime = 0

	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(c.cfg.MaxAttempts-1)), ctx))
	if err != nil {
		var srvErr *serverError
		if errors.As(err, &srvErr) {
			return srvErr.status, srvErr.body, nil
		}
		return 0, nil, err
	}
	return status, respBody, nil
}

func (c *Client) isPublic(path string) bool {
	for _, prefix := range c.cfg.PublicPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
