package portal

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"claimsync/internal/config"
	"claimsync/internal/domain"
	"claimsync/internal/observability/mocks"
)

func newTestClient(baseURL string) *Client {
	return NewClient(config.PortalConfig{
		BaseURL:   baseURL,
		LoginPath: "/login",
		ListPath:  "/downloads",
		Timeout:   5 * time.Second,
		UserAgent: "claimsync-test",
	}, mocks.NopLogger{}, mocks.NopMetrics{})
}

func TestClientAuthenticate(t *testing.T) {
	ctx := context.Background()
	creds := Credentials{Username: "hospital9", Password: "secret"}

	t.Run("successful login establishes a session", func(t *testing.T) {
		var gotForm struct{ username, password string }
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodPost, r.Method)
			require.Equal(t, "/login", r.URL.Path)
			require.NoError(t, r.ParseForm())
			gotForm.username = r.PostFormValue("username")
			gotForm.password = r.PostFormValue("password")
			http.SetCookie(w, &http.Cookie{Name: "JSESSIONID", Value: "abc"})
			w.Write([]byte("<html><body>welcome</body></html>"))
		}))
		defer srv.Close()

		session, err := newTestClient(srv.URL).Authenticate(ctx, creds)
		require.NoError(t, err)
		require.NotNil(t, session)
		assert.Equal(t, "hospital9", gotForm.username)
		assert.Equal(t, "secret", gotForm.password)
	})

	t.Run("login form served again is an auth error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`<form><input type="password" name="password"></form>`))
		}))
		defer srv.Close()

		_, err := newTestClient(srv.URL).Authenticate(ctx, creds)
		require.Error(t, err)
		assert.True(t, domain.IsKind(err, domain.KindAuth))
		assert.False(t, domain.IsRetryable(err), "auth failures must not be retried")
	})

	t.Run("lockout notice is an auth error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("<html>Account locked after too many attempts</html>"))
		}))
		defer srv.Close()

		_, err := newTestClient(srv.URL).Authenticate(ctx, creds)
		require.Error(t, err)
		assert.True(t, domain.IsKind(err, domain.KindAuth))
	})

	t.Run("non-200 login response is an auth error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		}))
		defer srv.Close()

		_, err := newTestClient(srv.URL).Authenticate(ctx, creds)
		require.Error(t, err)
		assert.True(t, domain.IsKind(err, domain.KindAuth))
	})

	t.Run("unreachable portal is a network error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
		srv.Close()

		_, err := newTestClient(srv.URL).Authenticate(ctx, creds)
		require.Error(t, err)
		assert.True(t, domain.IsKind(err, domain.KindNetwork))
		assert.True(t, domain.IsRetryable(err))
	})
}

func TestSessionURL(t *testing.T) {
	s := &Session{baseURL: "https://portal.example/"}
	assert.Equal(t, "https://portal.example/login", s.URL("login"))
	assert.Equal(t, "https://portal.example/login", s.URL("/login"))
	assert.Equal(t, "https://other.example/x", s.URL("https://other.example/x"))
}
