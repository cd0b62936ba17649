package session

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/fusionworks/go-blog-client/session/store"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// defaultScopes are requested on every login handshake.
var defaultScopes = []string{oidc.ScopeOpenID, "profile", "email"}

// Config identifies the provider realm and client this manager talks to.
type Config struct {
	// IssuerURL is the OIDC issuer, e.g. https://id.example.com/realms/blog.
	IssuerURL string
	// ClientID is the public client registered with the provider.
	ClientID string
	// RedirectURI is where the provider sends the user back after login.
	RedirectURI string
	// Scopes defaults to "openid profile email" when empty.
	Scopes []string
}

// LoginPrompter is invoked when the manager decides a fresh login is
// required (an unrecoverable refresh failure). It receives the provider
// authorization URL the user must be sent to.
type LoginPrompter func(authURL string)

// LoginOptions tweak a single login handshake.
type LoginOptions struct {
	// RedirectURI overrides Config.RedirectURI for this handshake.
	RedirectURI string
	// Prompt is passed through to the provider, e.g. "login" to force the
	// credentials form even with an active provider session.
	Prompt string
}

// Callback carries the query parameters the provider appended to the
// redirect URI.
type Callback struct {
	Code  string
	State string
	// Error is set when the provider rejected or the user cancelled the
	// handshake.
	Error string
}

// ParseCallback extracts the login callback parameters from a redirect URL.
func ParseCallback(u *url.URL) Callback {
	q := u.Query()
	return Callback{
		Code:  q.Get("code"),
		State: q.Get("state"),
		Error: q.Get("error"),
	}
}

// Manager owns the one session of the running client. It is the single
// writer of session state; everything else reads through Snapshot and the
// accessor methods.
type Manager struct {
	cfg         Config
	store       store.Store
	log         zerolog.Logger
	nowTime     func() time.Time
	httpClient  *http.Client
	promptLogin LoginPrompter

	// flight serializes bootstrap, discovery and refresh so concurrent
	// callers share one network call.
	flight singleflight.Group

	mu            sync.RWMutex
	state         State
	session       Session
	endpoint      oauth2.Endpoint
	endSessionURL string
	verifier      *oidc.IDTokenVerifier
	connected     bool
	stopFresh     chan struct{}
}

// Option modifies a Manager at construction time.
type Option func(*Manager)

// WithNowTime sets the clock (primarily for testing).
func WithNowTime(nowFunc func() time.Time) Option {
	return func(m *Manager) {
		m.nowTime = nowFunc
	}
}

// WithLogger sets the manager's logger.
func WithLogger(log zerolog.Logger) Option {
	return func(m *Manager) {
		m.log = log
	}
}

// WithHTTPClient sets the HTTP client used for provider traffic.
func WithHTTPClient(client *http.Client) Option {
	return func(m *Manager) {
		m.httpClient = client
	}
}

// WithLoginPrompter sets the callback invoked when a fresh login is forced.
func WithLoginPrompter(prompt LoginPrompter) Option {
	return func(m *Manager) {
		m.promptLogin = prompt
	}
}

// WithEndpoint skips OIDC discovery and uses the given endpoints directly.
// ID token verification is disabled on this path, so it is intended for
// tests and for providers without a discovery document.
func WithEndpoint(endpoint oauth2.Endpoint, endSessionURL string) Option {
	return func(m *Manager) {
		m.endpoint = endpoint
		m.endSessionURL = endSessionURL
		m.connected = true
	}
}

// NewManager creates a session manager in the INITIALIZING state. Callers
// must run Bootstrap (and CompleteLoginIfPending, when handling a login
// callback) before serving requests.
func NewManager(cfg Config, st store.Store, options ...Option) (*Manager, error) {
	if st == nil {
		return nil, errors.New("[NewManager] store is required")
	}
	if cfg.ClientID == "" {
		return nil, errors.New("[NewManager] ClientID is required")
	}
	if cfg.RedirectURI == "" {
		return nil, errors.New("[NewManager] RedirectURI is required")
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = defaultScopes
	}

	m := &Manager{
		cfg:        cfg,
		store:      st,
		log:        zerolog.Nop(),
		nowTime:    time.Now,
		httpClient: http.DefaultClient,
		state:      StateInitializing,
	}

	for _, opt := range options {
		opt(m)
	}

	if !m.connected && cfg.IssuerURL == "" {
		return nil, errors.New("[NewManager] IssuerURL is required")
	}

	return m, nil
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Loading is true until bootstrap has reached a terminal state.
func (m *Manager) Loading() bool {
	return m.State() == StateInitializing
}

// Authenticated reports whether a session is active.
func (m *Manager) Authenticated() bool {
	return m.State() == StateAuthenticated
}

// Token returns the current access token without checking freshness.
// Callers that need a guaranteed-fresh token go through Refresh.
func (m *Manager) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session.AccessToken
}

// Claims returns the decoded identity of the current session.
func (m *Manager) Claims() Claims {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session.Claims
}

// HasRole reports whether the current session holds any of the given roles.
// It is always false while unauthenticated.
func (m *Manager) HasRole(roles ...Role) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state != StateAuthenticated {
		return false
	}
	return m.session.Claims.HasRole(roles...)
}

// Snapshot returns the read-only projection of the session.
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Snapshot{
		Authenticated: m.state == StateAuthenticated,
		Loading:       m.state == StateInitializing,
		User:          m.session.Claims,
	}
}

// Bootstrap attempts silent re-authentication from persisted artifacts and
// moves the manager out of INITIALIZING exactly once. Network failures
// degrade to the unauthenticated state; Bootstrap never surfaces them.
// Concurrent calls collapse into one in-flight bootstrap.
func (m *Manager) Bootstrap(ctx context.Context) Snapshot {
	if m.State() == StateInitializing {
		m.flight.Do("bootstrap", func() (interface{}, error) {
			if m.State() == StateInitializing {
				m.bootstrap(ctx)
			}
			return nil, nil
		})
	}
	return m.Snapshot()
}

func (m *Manager) bootstrap(ctx context.Context) {
	arts, ok, err := m.store.LoadArtifacts()
	if err != nil {
		m.log.Warn().Err(err).Msg("bootstrap: loading persisted session")
	}
	if err != nil || !ok || arts.RefreshToken == "" {
		m.setState(StateUnauthenticated)
		return
	}

	if err := m.connect(ctx); err != nil {
		// Provider unreachable; keep the artifacts so the next start can
		// try again, but come up unauthenticated.
		m.log.Warn().Err(err).Msg("bootstrap: provider discovery failed")
		m.setState(StateUnauthenticated)
		return
	}

	tok, err := m.redeemRefreshToken(ctx, arts.RefreshToken)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			// The provider rejected the refresh token: the stored session
			// is dead, clear it.
			m.log.Info().Msg("bootstrap: persisted refresh token rejected")
			if clearErr := m.store.Clear(); clearErr != nil {
				m.log.Warn().Err(clearErr).Msg("bootstrap: clearing store")
			}
		} else {
			m.log.Warn().Err(err).Msg("bootstrap: token refresh failed")
		}
		m.setState(StateUnauthenticated)
		return
	}

	if err := m.adoptToken(tok); err != nil {
		m.log.Warn().Err(err).Msg("bootstrap: adopting refreshed token")
		m.setState(StateUnauthenticated)
	}
}

// BeginLogin starts the login handshake: it persists a pending-flow record
// and returns the provider authorization URL the user must be navigated to.
// Completion is observed on a later start via CompleteLoginIfPending, never
// through this call.
func (m *Manager) BeginLogin(ctx context.Context, opts *LoginOptions) (string, error) {
	if err := m.connect(ctx); err != nil {
		return "", errors.Wrap(err, "[Manager.BeginLogin] provider discovery")
	}

	redirectURI := m.cfg.RedirectURI
	prompt := ""
	if opts != nil {
		if opts.RedirectURI != "" {
			redirectURI = opts.RedirectURI
		}
		prompt = opts.Prompt
	}

	pending := store.PendingLogin{
		State:        uuid.New().String(),
		Nonce:        uuid.New().String(),
		CodeVerifier: oauth2.GenerateVerifier(),
		RedirectURI:  redirectURI,
		CreatedAt:    m.nowTime(),
	}
	if err := m.store.SavePendingLogin(pending); err != nil {
		return "", errors.Wrap(err, "[Manager.BeginLogin] persisting pending login")
	}

	cfg := m.oauthConfig()
	cfg.RedirectURL = redirectURI

	authOpts := []oauth2.AuthCodeOption{
		oauth2.S256ChallengeOption(pending.CodeVerifier),
		oidc.Nonce(pending.Nonce),
	}
	if prompt != "" {
		authOpts = append(authOpts, oauth2.SetAuthURLParam("prompt", prompt))
	}

	return cfg.AuthCodeURL(pending.State, authOpts...), nil
}

// CompleteLoginIfPending finishes an in-progress login handshake. It is
// meant to run on every application start: when no handshake is pending it
// returns (false, nil) immediately. An abandoned or provider-rejected
// handshake clears the pending record and leaves the session
// unauthenticated without surfacing an error.
func (m *Manager) CompleteLoginIfPending(ctx context.Context, cb Callback) (bool, error) {
	pending, ok, err := m.store.LoadPendingLogin()
	if err != nil {
		return false, errors.Wrap(err, "[Manager.CompleteLoginIfPending] loading pending login")
	}
	if !ok {
		return false, nil
	}

	// Whatever happens next, the handshake is consumed.
	defer func() {
		if err := m.store.ClearPendingLogin(); err != nil {
			m.log.Warn().Err(err).Msg("login: clearing pending record")
		}
	}()

	if cb.Error != "" {
		m.log.Info().Str("error", cb.Error).Msg("login: provider declined handshake")
		return false, nil
	}
	if cb.Code == "" {
		// User never came back with a code; the flow was abandoned.
		return false, nil
	}
	if cb.State != pending.State {
		return false, ErrLoginStateMismatch
	}

	if err := m.connect(ctx); err != nil {
		return false, errors.Wrap(err, "[Manager.CompleteLoginIfPending] provider discovery")
	}

	cfg := m.oauthConfig()
	cfg.RedirectURL = pending.RedirectURI

	tok, err := cfg.Exchange(m.tokenContext(ctx), cb.Code, oauth2.VerifierOption(pending.CodeVerifier))
	if err != nil {
		return false, errors.Wrap(err, "[Manager.CompleteLoginIfPending] code exchange")
	}

	if err := m.verifyIDToken(ctx, tok, pending.Nonce); err != nil {
		return false, errors.Wrap(err, "[Manager.CompleteLoginIfPending] ID token verification")
	}

	if err := m.adoptToken(tok); err != nil {
		return false, errors.Wrap(err, "[Manager.CompleteLoginIfPending] adopting token")
	}
	return true, nil
}

// Logout clears the session and its persisted artifacts, best-effort
// notifies the provider, and returns the post-logout redirect target. It is
// idempotent: logging out while already logged out only reports the
// redirect.
func (m *Manager) Logout(ctx context.Context) string {
	m.mu.Lock()
	wasAuthenticated := m.state == StateAuthenticated
	refreshToken := m.session.RefreshToken
	endSession := m.endSessionURL
	m.session = Session{}
	m.state = StateUnauthenticated
	m.mu.Unlock()

	if err := m.store.Clear(); err != nil {
		m.log.Warn().Err(err).Msg("logout: clearing store")
	}

	if wasAuthenticated && endSession != "" && refreshToken != "" {
		if err := m.endProviderSession(ctx, endSession, refreshToken); err != nil {
			m.log.Warn().Err(err).Msg("logout: provider end-session")
		}
	}

	return "/"
}

// Refresh returns an access token whose remaining lifetime is at least
// margin, refreshing it first when necessary. At most one refresh network
// call is in flight at a time; concurrent callers await the same result.
// When the provider rejects the refresh token, the session is cleared, the
// login prompter fires, and ErrSessionExpired is returned. Refreshing while
// unauthenticated is a no-op reporting ErrNotAuthenticated.
func (m *Manager) Refresh(ctx context.Context, margin time.Duration) (string, error) {
	m.mu.RLock()
	state := m.state
	token := m.session.AccessToken
	expiresAt := m.session.ExpiresAt
	m.mu.RUnlock()

	if state != StateAuthenticated {
		return "", ErrNotAuthenticated
	}
	if m.fresh(expiresAt, margin) {
		return token, nil
	}

	v, err, _ := m.flight.Do("refresh", func() (interface{}, error) {
		return m.doRefresh(ctx, margin)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (m *Manager) doRefresh(ctx context.Context, margin time.Duration) (string, error) {
	// A concurrent caller may have refreshed while this one was queued.
	m.mu.RLock()
	state := m.state
	token := m.session.AccessToken
	expiresAt := m.session.ExpiresAt
	refreshToken := m.session.RefreshToken
	m.mu.RUnlock()

	if state != StateAuthenticated {
		return "", ErrNotAuthenticated
	}
	if m.fresh(expiresAt, margin) {
		return token, nil
	}
	if refreshToken == "" {
		m.expire(ctx)
		return "", ErrSessionExpired
	}

	tok, err := m.redeemRefreshToken(ctx, refreshToken)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			m.expire(ctx)
			return "", errors.Wrap(ErrSessionExpired, "refresh token rejected")
		}
		// Transient transport failure: the session survives, the caller's
		// request fails.
		return "", errors.Wrap(err, "[Manager.Refresh] token endpoint")
	}

	if err := m.adoptToken(tok); err != nil {
		return "", errors.Wrap(err, "[Manager.Refresh] adopting token")
	}
	return tok.AccessToken, nil
}

// KeepFresh starts a background loop that keeps the token's remaining
// lifetime above margin. Close stops the loop; leaving it running after the
// manager is done with is a resource leak.
func (m *Manager) KeepFresh(interval, margin time.Duration) {
	m.mu.Lock()
	if m.stopFresh != nil {
		m.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	m.stopFresh = stop
	m.mu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				_, err := m.Refresh(ctx, margin)
				cancel()
				if err != nil && !errors.Is(err, ErrNotAuthenticated) {
					m.log.Warn().Err(err).Msg("background token refresh failed")
				}
			}
		}
	}()
}

// Close stops the KeepFresh loop. Safe to call multiple times.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopFresh != nil {
		close(m.stopFresh)
		m.stopFresh = nil
	}
}

// expire clears the session after an unrecoverable refresh failure and
// routes the user to a fresh login.
func (m *Manager) expire(ctx context.Context) {
	m.mu.Lock()
	m.session = Session{}
	m.state = StateUnauthenticated
	m.mu.Unlock()

	if err := m.store.Clear(); err != nil {
		m.log.Warn().Err(err).Msg("expire: clearing store")
	}

	if m.promptLogin != nil {
		authURL, err := m.BeginLogin(ctx, nil)
		if err != nil {
			m.log.Warn().Err(err).Msg("expire: starting login handshake")
			return
		}
		m.promptLogin(authURL)
	}
}

// adoptToken installs a token response as the current session and persists
// its artifacts. The previous refresh token is retained when the provider
// did not rotate it.
func (m *Manager) adoptToken(tok *oauth2.Token) error {
	claims, err := decodeClaims(tok.AccessToken)
	if err != nil {
		return err
	}

	m.mu.Lock()
	refreshToken := tok.RefreshToken
	if refreshToken == "" {
		refreshToken = m.session.RefreshToken
	}
	m.session = Session{
		AccessToken:  tok.AccessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    tok.Expiry,
		Claims:       claims,
	}
	m.state = StateAuthenticated
	m.mu.Unlock()

	if err := m.store.SaveArtifacts(store.Artifacts{
		AccessToken:  tok.AccessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    tok.Expiry,
	}); err != nil {
		m.log.Warn().Err(err).Msg("persisting session artifacts")
	}
	return nil
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

func (m *Manager) fresh(expiresAt time.Time, margin time.Duration) bool {
	return m.nowTime().Add(margin).Before(expiresAt)
}

// connect performs OIDC discovery once and caches the endpoints.
func (m *Manager) connect(ctx context.Context) error {
	m.mu.RLock()
	connected := m.connected
	m.mu.RUnlock()
	if connected {
		return nil
	}

	_, err, _ := m.flight.Do("connect", func() (interface{}, error) {
		m.mu.RLock()
		connected := m.connected
		m.mu.RUnlock()
		if connected {
			return nil, nil
		}

		provider, err := oidc.NewProvider(oidc.ClientContext(ctx, m.httpClient), m.cfg.IssuerURL)
		if err != nil {
			return nil, errors.Wrap(err, "[Manager.connect] oidc.NewProvider")
		}

		var extra struct {
			EndSessionEndpoint string `json:"end_session_endpoint"`
		}
		if err := provider.Claims(&extra); err != nil {
			m.log.Debug().Err(err).Msg("provider metadata claims")
		}

		m.mu.Lock()
		m.endpoint = provider.Endpoint()
		m.endSessionURL = extra.EndSessionEndpoint
		m.verifier = provider.Verifier(&oidc.Config{ClientID: m.cfg.ClientID})
		m.connected = true
		m.mu.Unlock()
		return nil, nil
	})
	return err
}

func (m *Manager) oauthConfig() oauth2.Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return oauth2.Config{
		ClientID:    m.cfg.ClientID,
		Endpoint:    m.endpoint,
		RedirectURL: m.cfg.RedirectURI,
		Scopes:      m.cfg.Scopes,
	}
}

// tokenContext routes the oauth2 package's token endpoint calls through the
// manager's HTTP client.
func (m *Manager) tokenContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
}

func (m *Manager) redeemRefreshToken(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	cfg := m.oauthConfig()
	src := cfg.TokenSource(m.tokenContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	return src.Token()
}

// verifyIDToken checks the ID token's signature and nonce when a verifier
// is available (i.e. endpoints came from discovery).
func (m *Manager) verifyIDToken(ctx context.Context, tok *oauth2.Token, nonce string) error {
	m.mu.RLock()
	verifier := m.verifier
	m.mu.RUnlock()
	if verifier == nil {
		return nil
	}

	rawIDToken, ok := tok.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return errors.New("token response is missing an ID token")
	}

	idToken, err := verifier.Verify(oidc.ClientContext(ctx, m.httpClient), rawIDToken)
	if err != nil {
		return err
	}
	if idToken.Nonce != nonce {
		return errors.New("ID token nonce mismatch")
	}
	return nil
}

func (m *Manager) endProviderSession(ctx context.Context, endSessionURL, refreshToken string) error {
	form := url.Values{
		"client_id":     {m.cfg.ClientID},
		"refresh_token": {refreshToken},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endSessionURL, strings.NewReader(form.Encode()))
	if err != nil {
		return errors.Wrap(err, "[Manager.endProviderSession] building request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "[Manager.endProviderSession] request")
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return errors.Errorf("provider end-session returned %d", resp.StatusCode)
	}
	return nil
}
