package authclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/abduss/labportal/internal/apiclient"
	"github.com/abduss/labportal/internal/auth"
	"github.com/abduss/labportal/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticTokens string

func (s staticTokens) AccessToken(context.Context) string { return string(s) }

func newClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	api := apiclient.New(config.APIConfig{BaseURL: srv.URL, Timeout: 2 * time.Second},
		apiclient.WithTokenSource(staticTokens("stored-access")))
	return New(api)
}

func respond(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}

const userJSON = `{"id":"u-1","username":"jane","email":"jane@example.com","first_name":"Jane","last_name":"Doe","role":"USER","is_active":true,"is_verified":true,"created_at":"2024-01-01T00:00:00Z","updated_at":"2024-01-02T00:00:00Z"}`

func TestLoginSuccess(t *testing.T) {
	var gotAuth string
	var gotBody map[string]string
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		respond(http.StatusOK, `{"user":`+userJSON+`,"access_token":"acc","refresh_token":"ref","token_type":"bearer","expires_in":1800}`)(w, r)
	})

	result, err := newClient(t, mux).Login(context.Background(), auth.Credentials{Username: "jane", Password: "secret"})
	require.NoError(t, err)

	assert.Empty(t, gotAuth, "login must not send a bearer token")
	assert.Equal(t, "jane", gotBody["username"])
	assert.Equal(t, "u-1", result.User.ID)
	assert.Equal(t, auth.RoleUser, result.User.Role)
	assert.Equal(t, "acc", result.Tokens.AccessToken)
	assert.Equal(t, "ref", result.Tokens.RefreshToken)
	assert.Equal(t, 1800, result.Tokens.ExpiresIn)
}

func TestLoginRejectsBlankFieldsLocally(t *testing.T) {
	var calls int32
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))

	_, err := client.Login(context.Background(), auth.Credentials{Username: " ", Password: ""})

	require.True(t, errors.Is(err, auth.ErrValidationFailed), "got %v", err)
	var authErr *auth.Error
	require.True(t, errors.As(err, &authErr))
	assert.Contains(t, authErr.Fields, "username")
	assert.Contains(t, authErr.Fields, "password")
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestRegisterRequiresFields(t *testing.T) {
	client := newClient(t, http.NotFoundHandler())

	_, err := client.Register(context.Background(), auth.Registration{Username: "jane"})

	var authErr *auth.Error
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, auth.KindValidation, authErr.Kind)
	for _, f := range []string{"email", "password", "first_name", "last_name"} {
		assert.Contains(t, authErr.Fields, f)
	}
	assert.NotContains(t, authErr.Fields, "username")
}

func TestClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		call   func(c *Client) error
		kind   auth.ErrorKind
		fields map[string][]string
	}{
		{
			name:   "login 401 is invalid credentials",
			status: http.StatusUnauthorized,
			body:   `{"detail":"Incorrect username or password"}`,
			call: func(c *Client) error {
				_, err := c.Login(context.Background(), auth.Credentials{Username: "a", Password: "b"})
				return err
			},
			kind: auth.KindInvalidCredentials,
		},
		{
			name:   "me 401 is unauthorized",
			status: http.StatusUnauthorized,
			body:   `{"detail":"Token expired"}`,
			call: func(c *Client) error {
				_, err := c.CurrentUser(context.Background())
				return err
			},
			kind: auth.KindUnauthorized,
		},
		{
			name:   "403 is forbidden",
			status: http.StatusForbidden,
			body:   `{"detail":"Inactive user"}`,
			call: func(c *Client) error {
				_, err := c.UpdateProfile(context.Background(), auth.ProfileUpdate{})
				return err
			},
			kind: auth.KindForbidden,
		},
		{
			name:   "422 detail list is validation",
			status: http.StatusUnprocessableEntity,
			body:   `{"detail":[{"loc":["body","email"],"msg":"value is not a valid email address","type":"value_error"},{"loc":["body","password"],"msg":"too short"}]}`,
			call: func(c *Client) error {
				_, err := c.Register(context.Background(), auth.Registration{Username: "a", Email: "x", Password: "p", FirstName: "f", LastName: "l"})
				return err
			},
			kind: auth.KindValidation,
			fields: map[string][]string{
				"email":    {"value is not a valid email address"},
				"password": {"too short"},
			},
		},
		{
			name:   "400 with errors map is validation",
			status: http.StatusBadRequest,
			body:   `{"errors":{"new_password":["must differ"],"current_password":"wrong"}}`,
			call: func(c *Client) error {
				return c.ChangePassword(context.Background(), auth.PasswordChange{CurrentPassword: "a", NewPassword: "a"})
			},
			kind: auth.KindValidation,
			fields: map[string][]string{
				"new_password":     {"must differ"},
				"current_password": {"wrong"},
			},
		},
		{
			name:   "400 without fields is unknown",
			status: http.StatusBadRequest,
			body:   `{"detail":"Username already registered"}`,
			call: func(c *Client) error {
				_, err := c.Register(context.Background(), auth.Registration{Username: "a", Email: "x", Password: "p", FirstName: "f", LastName: "l"})
				return err
			},
			kind: auth.KindUnknown,
		},
		{
			name:   "500 is unknown",
			status: http.StatusInternalServerError,
			body:   `oops`,
			call: func(c *Client) error {
				_, err := c.Refresh(context.Background(), "r")
				return err
			},
			kind: auth.KindUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newClient(t, respond(tt.status, tt.body))
			err := tt.call(client)

			var authErr *auth.Error
			require.True(t, errors.As(err, &authErr), "got %v", err)
			assert.Equal(t, tt.kind, authErr.Kind)
			assert.Equal(t, tt.status, authErr.StatusCode)
			if tt.fields != nil {
				assert.Equal(t, tt.fields, authErr.Fields)
			}
		})
	}
}

func TestNetworkFailureIsClassified(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	client := New(apiclient.New(config.APIConfig{BaseURL: srv.URL, Timeout: time.Second}))

	_, err := client.Login(context.Background(), auth.Credentials{Username: "a", Password: "b"})
	assert.True(t, errors.Is(err, auth.ErrNetworkUnavailable), "got %v", err)
}

func TestLogoutSendsExplicitBearer(t *testing.T) {
	var gotAuth string
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		respond(http.StatusOK, `{}`)(w, r)
	})

	require.NoError(t, newClient(t, mux).Logout(context.Background(), "old-access"))
	assert.Equal(t, "Bearer old-access", gotAuth)
}

func TestRefreshPostsRefreshToken(t *testing.T) {
	var got map[string]string
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		respond(http.StatusOK, `{"access_token":"new-acc","token_type":"bearer","expires_in":900}`)(w, r)
	})

	pair, err := newClient(t, mux).Refresh(context.Background(), "ref-1")
	require.NoError(t, err)
	assert.Equal(t, "ref-1", got["refresh_token"])
	assert.Equal(t, "new-acc", pair.AccessToken)
	assert.Empty(t, pair.RefreshToken)
}

func TestCurrentUserUsesStoredToken(t *testing.T) {
	var gotAuth string
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/me", func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		respond(http.StatusOK, userJSON)(w, r)
	})

	user, err := newClient(t, mux).CurrentUser(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer stored-access", gotAuth)
	assert.Equal(t, "jane", user.Username)
}

func TestUserResponsesMustCarryAUser(t *testing.T) {
	tests := []struct {
		name string
		body string
		call func(c *Client) error
	}{
		{
			name: "empty me body",
			body: "",
			call: func(c *Client) error {
				_, err := c.CurrentUser(context.Background())
				return err
			},
		},
		{
			name: "empty profile body",
			body: "",
			call: func(c *Client) error {
				_, err := c.UpdateProfile(context.Background(), auth.ProfileUpdate{})
				return err
			},
		},
		{
			name: "me object without id",
			body: `{}`,
			call: func(c *Client) error {
				_, err := c.CurrentUser(context.Background())
				return err
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call(newClient(t, respond(http.StatusOK, tt.body)))
			require.Error(t, err)
			assert.Equal(t, auth.KindUnknown, auth.KindOf(err))
		})
	}
}
