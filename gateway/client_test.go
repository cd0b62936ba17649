package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

// fakeTokens is a scripted TokenSource.
type fakeTokens struct {
	mu         sync.Mutex
	token      string
	freshToken string
	err        error

	refreshCalls int
	forceCalls   int
}

func (f *fakeTokens) Refresh(ctx context.Context, margin time.Duration) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshCalls++
	if f.err != nil {
		return "", f.err
	}
	if margin == forceRefreshMargin {
		f.forceCalls++
		if f.freshToken != "" {
			f.token = f.freshToken
		}
	}
	return f.token, nil
}

func (f *fakeTokens) calls() (refresh, force int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshCalls, f.forceCalls
}

// countingNotifier records every message pushed to the sink.
type countingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *countingNotifier) Notify(message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, message)
}

func (n *countingNotifier) all() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.messages...)
}

type requestRecord struct {
	path       string
	rawQuery   string
	authHeader string
}

// fakeBackend is an httptest backend whose handler is swapped per test.
type fakeBackend struct {
	srv *httptest.Server

	mu       sync.Mutex
	requests []requestRecord
	handler  func(n int, w http.ResponseWriter, r *http.Request)
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()

	b := &fakeBackend{}
	b.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.requests = append(b.requests, requestRecord{
			path:       r.URL.Path,
			rawQuery:   r.URL.RawQuery,
			authHeader: r.Header.Get("Authorization"),
		})
		n := len(b.requests)
		handler := b.handler
		b.mu.Unlock()
		handler(n, w, r)
	}))
	t.Cleanup(b.srv.Close)
	return b
}

func (b *fakeBackend) setHandler(handler func(n int, w http.ResponseWriter, r *http.Request)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handler = handler
}

func (b *fakeBackend) recorded() []requestRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]requestRecord(nil), b.requests...)
}

type clientFixture struct {
	backend *fakeBackend
	tokens  *fakeTokens
	sink    *countingNotifier
	client  *Client
}

func setupClientFixture(t *testing.T) *clientFixture {
	t.Helper()

	f := &clientFixture{
		backend: newFakeBackend(t),
		tokens:  &fakeTokens{token: "token-1"},
		sink:    &countingNotifier{},
	}

	client, err := New(Config{
		BaseURL:   f.backend.srv.URL,
		BaseDelay: time.Millisecond,
		MaxDelay:  4 * time.Millisecond,
	}, f.tokens, WithNotifier(f.sink))
	require.NoError(t, err)
	f.client = client
	return f
}

func TestGetAttachesBearerToken(t *testing.T) {
	f := setupClientFixture(t)
	f.backend.setHandler(func(n int, w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":7,"title":"hello"}`)
	})

	var out struct {
		ID    int    `json:"id"`
		Title string `json:"title"`
	}
	require.NoError(t, f.client.Get(context.Background(), "/v1/api/post/7", nil, &out))
	require.Equal(t, 7, out.ID)
	require.Equal(t, "hello", out.Title)

	reqs := f.backend.recorded()
	require.Len(t, reqs, 1)
	require.Equal(t, "Bearer token-1", reqs[0].authHeader)
	require.Empty(t, f.sink.all())
}

func TestUnauthorizedRetriedExactlyOnce(t *testing.T) {
	f := setupClientFixture(t)
	f.tokens.freshToken = "token-2"
	f.backend.setHandler(func(n int, w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer token-2" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, `{"ok":true}`)
	})

	var out struct {
		OK bool `json:"ok"`
	}
	require.NoError(t, f.client.Get(context.Background(), "/v1/api/user/me", nil, &out))
	require.True(t, out.OK)

	reqs := f.backend.recorded()
	require.Len(t, reqs, 2)
	require.Equal(t, "Bearer token-1", reqs[0].authHeader)
	require.Equal(t, "Bearer token-2", reqs[1].authHeader)

	_, force := f.tokens.calls()
	require.Equal(t, 1, force, "exactly one forced refresh")
	require.Empty(t, f.sink.all(), "no notification on a recovered request")
}

func TestSecond401IsTerminal(t *testing.T) {
	f := setupClientFixture(t)
	f.tokens.freshToken = "token-2"
	f.backend.setHandler(func(n int, w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"message":"access denied"}`)
	})

	err := f.client.Get(context.Background(), "/v1/api/admin/users", nil, nil)
	require.Error(t, err)
	require.Equal(t, http.StatusUnauthorized, StatusOf(err))

	require.Len(t, f.backend.recorded(), 2, "one original send plus one retry, never more")
	require.Equal(t, []string{"access denied"}, f.sink.all(), "sink fires exactly once per logical request")
}

func TestPublicPathBypassesAuth(t *testing.T) {
	f := setupClientFixture(t)
	f.tokens.err = errors.New("session is gone")
	f.backend.setHandler(func(n int, w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":"u-1"}`)
	})

	var out struct {
		ID string `json:"id"`
	}
	err := f.client.Post(context.Background(), "/v1/api/public/create-user", map[string]string{"username": "new"}, &out)
	require.NoError(t, err, "public paths work even with a dead session")
	require.Equal(t, "u-1", out.ID)

	reqs := f.backend.recorded()
	require.Len(t, reqs, 1)
	require.Empty(t, reqs[0].authHeader, "no Authorization header on public paths")

	refresh, _ := f.tokens.calls()
	require.Zero(t, refresh, "no refresh for public paths")
}

func TestSessionRefreshFailureAbortsRequest(t *testing.T) {
	f := setupClientFixture(t)
	f.tokens.err = errors.New("session expired")
	f.backend.setHandler(func(n int, w http.ResponseWriter, r *http.Request) {
		t.Error("request must not reach the backend")
	})

	err := f.client.Get(context.Background(), "/v1/api/post", nil, nil)
	require.Error(t, err)
	require.Empty(t, f.backend.recorded())
}

func TestServerErrorsRetryWithBoundedBackoff(t *testing.T) {
	f := setupClientFixture(t)
	f.backend.setHandler(func(n int, w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	err := f.client.Get(context.Background(), "/v1/api/post", nil, nil)
	require.Error(t, err)
	require.Equal(t, http.StatusServiceUnavailable, StatusOf(err))

	require.Len(t, f.backend.recorded(), 5, "at most 5 total attempts")
	require.Len(t, f.sink.all(), 1)
}

func TestServerErrorRecoversMidBackoff(t *testing.T) {
	f := setupClientFixture(t)
	f.backend.setHandler(func(n int, w http.ResponseWriter, r *http.Request) {
		if n <= 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `[]`)
	})

	var out []struct{}
	require.NoError(t, f.client.Get(context.Background(), "/v1/api/post", nil, &out))
	require.Len(t, f.backend.recorded(), 3)
	require.Empty(t, f.sink.all())
}

func TestNotImplementedIsNotRetried(t *testing.T) {
	f := setupClientFixture(t)
	f.backend.setHandler(func(n int, w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotImplemented)
	})

	err := f.client.Get(context.Background(), "/v1/api/post", nil, nil)
	require.Equal(t, http.StatusNotImplemented, StatusOf(err))
	require.Len(t, f.backend.recorded(), 1)
}

func TestClientErrorsPropagateImmediately(t *testing.T) {
	f := setupClientFixture(t)
	f.backend.setHandler(func(n int, w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"message":"Post not found","code":"POST_NOT_FOUND"}`)
	})

	err := f.client.Get(context.Background(), "/v1/api/post/999", nil, nil)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusNotFound, apiErr.Status)
	require.Equal(t, "POST_NOT_FOUND", apiErr.Code)
	require.Equal(t, "Post not found", apiErr.Message)

	require.Len(t, f.backend.recorded(), 1, "4xx is never retried")
	require.Equal(t, []string{"Post not found"}, f.sink.all())
}

func TestErrorMessageFallsBackToStatusText(t *testing.T) {
	f := setupClientFixture(t)
	f.backend.setHandler(func(n int, w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		fmt.Fprint(w, "not json at all")
	})

	err := f.client.Get(context.Background(), "/v1/api/post", nil, nil)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, "Conflict", apiErr.Message, "raw transport bodies are never surfaced")
}

func TestNetworkFailureSurfacesAfterAttempts(t *testing.T) {
	f := setupClientFixture(t)
	f.backend.srv.Close()

	err := f.client.Get(context.Background(), "/v1/api/post", nil, nil)
	require.Error(t, err)
	require.Zero(t, StatusOf(err), "transport failure is not an API error")
}

func TestQueryParametersAreEncoded(t *testing.T) {
	f := setupClientFixture(t)
	f.backend.setHandler(func(n int, w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	})

	query := url.Values{"page": {"2"}, "size": {"10"}}
	require.NoError(t, f.client.Get(context.Background(), "/v1/api/post", query, nil))

	reqs := f.backend.recorded()
	require.Len(t, reqs, 1)
	parsed, err := url.ParseQuery(reqs[0].rawQuery)
	require.NoError(t, err)
	require.Equal(t, "2", parsed.Get("page"))
	require.Equal(t, "10", parsed.Get("size"))
}
