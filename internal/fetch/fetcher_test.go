package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"claimsync/internal/config"
	"claimsync/internal/domain"
	"claimsync/internal/observability/mocks"
	"claimsync/internal/portal"
)

func testFetcher() *Fetcher {
	return New(config.FetchConfig{
		Timeout:           5 * time.Second,
		MaxRetries:        2,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 2,
	}, mocks.NopLogger{}, mocks.NopMetrics{})
}

// loginSession authenticates against srv, which must answer /login with a
// page that is not the login form.
func loginSession(t *testing.T, srv *httptest.Server) *portal.Session {
	t.Helper()
	client := portal.NewClient(config.PortalConfig{
		BaseURL:   srv.URL,
		LoginPath: "/login",
		Timeout:   5 * time.Second,
		UserAgent: "claimsync-test",
	}, mocks.NopLogger{}, mocks.NopMetrics{})

	session, err := client.Authenticate(context.Background(), portal.Credentials{
		Username: "u", Password: "p",
	})
	require.NoError(t, err)
	return session
}

func withLogin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/login" {
			w.Write([]byte("<html>welcome</html>"))
			return
		}
		next(w, r)
	}
}

func TestFetcherFetch(t *testing.T) {
	ctx := context.Background()

	t.Run("artifact lands under its exact filename with checksum", func(t *testing.T) {
		content := []byte("claim rows here")
		srv := httptest.NewServer(withLogin(func(w http.ResponseWriter, r *http.Request) {
			w.Write(content)
		}))
		defer srv.Close()

		dir := t.TempDir()
		link := portal.ArtifactLink{URL: srv.URL + "/files/a.xlsx", Filename: "eRep_OPD_UCS_256810.xlsx"}

		result, err := testFetcher().Fetch(ctx, loginSession(t, srv), link, dir)
		require.NoError(t, err)

		assert.Equal(t, filepath.Join(dir, link.Filename), result.Path)
		assert.Equal(t, int64(len(content)), result.Size)
		sum := sha256.Sum256(content)
		assert.Equal(t, hex.EncodeToString(sum[:]), result.Checksum)
		assert.Equal(t, 1, result.Attempts)

		got, err := os.ReadFile(result.Path)
		require.NoError(t, err)
		assert.Equal(t, content, got)
	})

	t.Run("5xx is retried until success", func(t *testing.T) {
		var calls int
		srv := httptest.NewServer(withLogin(func(w http.ResponseWriter, r *http.Request) {
			calls++
			if calls < 3 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			w.Write([]byte("eventually"))
		}))
		defer srv.Close()

		link := portal.ArtifactLink{URL: srv.URL + "/files/b.xlsx", Filename: "b.xlsx"}
		result, err := testFetcher().Fetch(ctx, loginSession(t, srv), link, t.TempDir())
		require.NoError(t, err)
		assert.Equal(t, 3, result.Attempts)
	})

	t.Run("4xx fails immediately without retry", func(t *testing.T) {
		var calls int
		srv := httptest.NewServer(withLogin(func(w http.ResponseWriter, r *http.Request) {
			calls++
			w.WriteHeader(http.StatusNotFound)
		}))
		defer srv.Close()

		link := portal.ArtifactLink{URL: srv.URL + "/files/gone.xlsx", Filename: "gone.xlsx"}
		_, err := testFetcher().Fetch(ctx, loginSession(t, srv), link, t.TempDir())
		require.Error(t, err)
		assert.True(t, domain.IsKind(err, domain.KindFetch))
		assert.Equal(t, 1, calls)
	})

	t.Run("persistent 5xx exhausts retries", func(t *testing.T) {
		var calls int
		srv := httptest.NewServer(withLogin(func(w http.ResponseWriter, r *http.Request) {
			calls++
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		link := portal.ArtifactLink{URL: srv.URL + "/files/c.xlsx", Filename: "c.xlsx"}
		_, err := testFetcher().Fetch(ctx, loginSession(t, srv), link, t.TempDir())
		require.Error(t, err)
		assert.True(t, domain.IsKind(err, domain.KindFetch))
		assert.Equal(t, 3, calls, "initial attempt plus two retries")
	})

	t.Run("empty body is rejected and leaves no file behind", func(t *testing.T) {
		srv := httptest.NewServer(withLogin(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		dir := t.TempDir()
		link := portal.ArtifactLink{URL: srv.URL + "/files/empty.xlsx", Filename: "empty.xlsx"}
		_, err := testFetcher().Fetch(ctx, loginSession(t, srv), link, dir)
		require.Error(t, err)

		entries, readErr := os.ReadDir(dir)
		require.NoError(t, readErr)
		assert.Empty(t, entries, "neither artifact nor temp files may remain")
	})

	t.Run("form links are fetched with a POST", func(t *testing.T) {
		srv := httptest.NewServer(withLogin(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodPost, r.Method)
			require.NoError(t, r.ParseForm())
			require.Equal(t, "8841", r.PostFormValue("doc"))
			w.Write([]byte("form download"))
		}))
		defer srv.Close()

		params := url.Values{}
		params.Set("doc", "8841")
		link := portal.ArtifactLink{URL: srv.URL + "/fetch", Filename: "d.xlsx", Params: params}

		result, err := testFetcher().Fetch(ctx, loginSession(t, srv), link, t.TempDir())
		require.NoError(t, err)
		assert.Equal(t, int64(len("form download")), result.Size)
	})
}
