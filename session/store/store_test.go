package store_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fusionworks/go-blog-client/session/store"
	"github.com/stretchr/testify/require"
)

func testStores(t *testing.T) map[string]store.Store {
	t.Helper()

	fs, err := store.NewFileStore(filepath.Join(t.TempDir(), "state", "session.json"))
	require.NoError(t, err)

	return map[string]store.Store{
		"inmemory": store.NewInMemoryStore(),
		"file":     fs,
	}
}

func TestArtifactsRoundTrip(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			_, ok, err := s.LoadArtifacts()
			require.NoError(t, err)
			require.False(t, ok)

			arts := store.Artifacts{
				AccessToken:  "access-1",
				RefreshToken: "refresh-1",
				ExpiresAt:    time.Now().Add(5 * time.Minute).Truncate(time.Second),
			}
			require.NoError(t, s.SaveArtifacts(arts))

			got, ok, err := s.LoadArtifacts()
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, arts.AccessToken, got.AccessToken)
			require.Equal(t, arts.RefreshToken, got.RefreshToken)
			require.True(t, arts.ExpiresAt.Equal(got.ExpiresAt))
		})
	}
}

func TestPendingLoginSurvivesArtifactWrites(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			pending := store.PendingLogin{
				State:        "state-1",
				Nonce:        "nonce-1",
				CodeVerifier: "verifier-1",
				RedirectURI:  "http://localhost:3000/callback",
				CreatedAt:    time.Now().Truncate(time.Second),
			}
			require.NoError(t, s.SavePendingLogin(pending))
			require.NoError(t, s.SaveArtifacts(store.Artifacts{AccessToken: "a"}))

			got, ok, err := s.LoadPendingLogin()
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, pending.State, got.State)
			require.Equal(t, pending.CodeVerifier, got.CodeVerifier)

			require.NoError(t, s.ClearPendingLogin())
			_, ok, err = s.LoadPendingLogin()
			require.NoError(t, err)
			require.False(t, ok)
		})
	}
}

func TestClearRemovesEverything(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.SaveArtifacts(store.Artifacts{AccessToken: "a", RefreshToken: "r"}))
			require.NoError(t, s.SavePendingLogin(store.PendingLogin{State: "s"}))

			require.NoError(t, s.Clear())

			_, ok, err := s.LoadArtifacts()
			require.NoError(t, err)
			require.False(t, ok)
			_, ok, err = s.LoadPendingLogin()
			require.NoError(t, err)
			require.False(t, ok)

			// Clearing an already-empty store is a no-op.
			require.NoError(t, s.Clear())
		})
	}
}

func TestFileStoreToleratesCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	fs, err := store.NewFileStore(path)
	require.NoError(t, err)

	_, ok, err := fs.LoadArtifacts()
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, fs.SaveArtifacts(store.Artifacts{AccessToken: "a"}))
	got, ok, err := fs.LoadArtifacts()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "a", got.AccessToken)
}
