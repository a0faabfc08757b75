package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dmitrijs2005/kappi/internal/client/models"
	"github.com/dmitrijs2005/kappi/internal/common"
	"github.com/dmitrijs2005/kappi/internal/devserver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// staticTokens hands out whatever token currently holds; empty means none.
type staticTokens struct{ token string }

func (s *staticTokens) Token(context.Context) (string, error) {
	if s.token == "" {
		return "", common.ErrNotAuthenticated
	}
	return s.token, nil
}

func newDevClient(t *testing.T) (*HTTPClient, *staticTokens, *devserver.Server) {
	t.Helper()
	dev := devserver.New(devserver.Config{BcryptCost: bcrypt.MinCost})
	ts := httptest.NewServer(dev)
	t.Cleanup(ts.Close)

	tokens := &staticTokens{}
	c, err := NewHTTPClient(ts.URL, 2*time.Second, tokens, WithHTTPClient(ts.Client()))
	require.NoError(t, err)
	return c, tokens, dev
}

func TestNewHTTPClient_Scheme(t *testing.T) {
	_, err := NewHTTPClient("ftp://example.org", 0, nil)
	require.Error(t, err)

	c, err := NewHTTPClient("https://example.org/", 0, nil)
	require.NoError(t, err)
	assert.Equal(t, "https://example.org", c.baseURL.String())
}

func TestHTTPClient_RegisterLoginAndScans(t *testing.T) {
	ctx := context.Background()
	c, tokens, dev := newDevClient(t)

	res, err := c.Register(ctx, RegisterRequest{FullName: "Juan Dela Cruz", Email: "juan@example.com", Password: "Secret1!x"})
	require.NoError(t, err)
	assert.Equal(t, "juan@example.com", res.User.Email)
	require.NotEmpty(t, res.Token)

	_, err = c.Register(ctx, RegisterRequest{FullName: "Juan", Email: "juan@example.com", Password: "Secret1!x"})
	var re *RemoteError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "Email already exists. Please log in instead.", re.Message)
	assert.ErrorIs(t, err, common.ErrRemoteRejected)

	res, err = c.Login(ctx, LoginRequest{Email: "juan@example.com", Password: "Secret1!x"})
	require.NoError(t, err)
	tokens.token = res.Token

	saved, err := c.SubmitScan(ctx, models.Scan{Disease: models.LeafRustDisease, Confidence: 88, Severity: models.SeverityHigh, Stage: models.StageSevere})
	require.NoError(t, err)
	assert.NotEmpty(t, saved.ID)

	scans, err := c.ListScans(ctx)
	require.NoError(t, err)
	require.Len(t, scans, 1)
	assert.Equal(t, models.LeafRustDisease, scans[0].Disease)
	assert.Equal(t, 1, dev.ScanCount("juan@example.com"))
}

func TestHTTPClient_LoginMessages(t *testing.T) {
	ctx := context.Background()
	c, _, _ := newDevClient(t)

	_, err := c.Login(ctx, LoginRequest{Email: "ghost@example.com", Password: "x"})
	assert.Equal(t, "Account does not exist", UserMessage(err))

	_, err = c.Register(ctx, RegisterRequest{FullName: "A", Email: "a@example.com", Password: "Secret1!x"})
	require.NoError(t, err)

	_, err = c.Login(ctx, LoginRequest{Email: "a@example.com", Password: "wrong"})
	assert.ErrorIs(t, err, common.ErrRemoteRejected)
	assert.Equal(t, "Invalid email or password", UserMessage(err))
}

func TestHTTPClient_NoTokenOmitsHeader(t *testing.T) {
	var gotHeader []string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Values(common.AuthorizationHeaderName)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"Authentication required"}`))
	}))
	defer ts.Close()

	c, err := NewHTTPClient(ts.URL, time.Second, &staticTokens{}, WithHTTPClient(ts.Client()))
	require.NoError(t, err)

	_, err = c.ListScans(context.Background())
	assert.ErrorIs(t, err, common.ErrRemoteRejected)
	assert.Empty(t, gotHeader)
}

func TestHTTPClient_SocialRegistrationConflict(t *testing.T) {
	ctx := context.Background()
	c, _, _ := newDevClient(t)

	_, err := c.Register(ctx, RegisterRequest{FullName: "Ana", Email: "ana@example.com", Password: "Secret1!x"})
	require.NoError(t, err)

	_, err = c.SocialLogin(ctx, SocialLoginRequest{Email: "ana@example.com", Provider: "google", ProviderID: "g-1", IsRegistration: true})
	assert.ErrorIs(t, err, common.ErrAlreadyRegistered)
	assert.ErrorIs(t, err, common.ErrRemoteRejected)

	res, err := c.SocialLogin(ctx, SocialLoginRequest{Email: "ana@example.com", Provider: "google", ProviderID: "g-1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"google"}, res.User.Providers)
}

func TestHTTPClient_LinkSocialAndLocation(t *testing.T) {
	ctx := context.Background()
	c, tokens, _ := newDevClient(t)

	res, err := c.Register(ctx, RegisterRequest{FullName: "Pedro", Email: "pedro@example.com", Password: "Secret1!x"})
	require.NoError(t, err)
	tokens.token = res.Token

	u, err := c.LinkSocial(ctx, "facebook", "fb-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"facebook"}, u.Providers)

	require.NoError(t, c.UpdateLocation(ctx, models.Coordinates{Latitude: 14, Longitude: 121}, models.Address{Province: "Batangas"}))
	require.NoError(t, c.Ping(ctx))
}

func TestHTTPClient_TransportFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"message":"Error saving scan result"}`))
		}},
		{"malformed body", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"scan":`))
		}},
		{"no scan in body", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{}`))
		}},
		{"scan without id", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"scan":{"disease":"X"}}`))
		}},
		{"timeout", func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(tt.handler)
			defer ts.Close()

			c, err := NewHTTPClient(ts.URL, 100*time.Millisecond, &staticTokens{token: "t"}, WithHTTPClient(ts.Client()))
			require.NoError(t, err)

			_, err = c.SubmitScan(context.Background(), models.Scan{Disease: "X"})
			require.ErrorIs(t, err, common.ErrNetworkUnavailable)
			assert.False(t, errors.Is(err, common.ErrRemoteRejected))
			assert.Equal(t, networkMessage, UserMessage(err))
		})
	}
}

func TestHTTPClient_Unreachable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	c, err := NewHTTPClient(url, time.Second, nil)
	require.NoError(t, err)
	require.ErrorIs(t, c.Ping(context.Background()), common.ErrNetworkUnavailable)
}

func TestMapStatus(t *testing.T) {
	err := mapStatus(http.StatusForbidden, "", nil)
	var re *RemoteError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, http.StatusForbidden, re.Status)
	assert.Equal(t, "request rejected with status 403", re.Message)

	assert.ErrorIs(t, mapStatus(http.StatusBadGateway, "", nil), common.ErrNetworkUnavailable)
	assert.Empty(t, UserMessage(nil))
}
