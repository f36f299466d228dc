package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/abduss/labportal/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticTokens string

func (s staticTokens) AccessToken(context.Context) string { return string(s) }

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(config.APIConfig{BaseURL: srv.URL + "/api/v1/", Timeout: 2 * time.Second}, opts...)
}

func TestDoSendsJSONAndBearer(t *testing.T) {
	var gotAuth, gotPath, gotContentType string
	var gotBody map[string]string

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		gotContentType = r.Header.Get("Content-Type")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"42"}`))
	}, WithTokenSource(staticTokens("stored-token")))

	var out struct {
		ID string `json:"id"`
	}
	err := client.Do(context.Background(), http.MethodPost, "/auth/things", map[string]string{"a": "b"}, &out)
	require.NoError(t, err)

	assert.Equal(t, "Bearer stored-token", gotAuth)
	assert.Equal(t, "/api/v1/auth/things", gotPath)
	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, "b", gotBody["a"])
	assert.Equal(t, "42", out.ID)
}

func TestDoBearerOverrides(t *testing.T) {
	var gotAuth []string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = append(gotAuth, r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusNoContent)
	}, WithTokenSource(staticTokens("stored-token")))

	ctx := context.Background()
	require.NoError(t, client.Do(ctx, http.MethodPost, "/x", nil, nil, WithBearer("explicit")))
	require.NoError(t, client.Do(ctx, http.MethodPost, "/x", nil, nil, WithoutAuth()))

	assert.Equal(t, []string{"Bearer explicit", ""}, gotAuth)
}

func TestDoEmptyBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	ctx := context.Background()

	require.NoError(t, client.Do(ctx, http.MethodPost, "/auth/logout", nil, nil))

	var out map[string]any
	err := client.Do(ctx, http.MethodGet, "/auth/me", nil, &out)
	assert.ErrorIs(t, err, ErrEmptyBody)
	assert.Nil(t, out)
}

func TestDoReturnsStatusError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"detail":"bad"}`))
	})

	err := client.Do(context.Background(), http.MethodPut, "/auth/profile", map[string]string{}, nil)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr), "got %v", err)
	assert.Equal(t, http.StatusUnprocessableEntity, statusErr.StatusCode)
	assert.JSONEq(t, `{"detail":"bad"}`, string(statusErr.Body))
}

func TestDoReturnsTransportErrorWhenUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := New(config.APIConfig{BaseURL: url, Timeout: time.Second})
	err := client.Do(context.Background(), http.MethodGet, "/auth/me", nil, nil)

	var transportErr *TransportError
	require.True(t, errors.As(err, &transportErr), "got %v", err)
	assert.Equal(t, "/auth/me", transportErr.Path)
}

func TestDoInvalidJSONResponse(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{not json`))
	})

	var out map[string]any
	err := client.Do(context.Background(), http.MethodGet, "/auth/me", nil, &out)
	require.Error(t, err)

	var transportErr *TransportError
	assert.False(t, errors.As(err, &transportErr))
}

func TestDoCanceledContextIsTransportError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := client.Do(ctx, http.MethodGet, "/auth/me", nil, nil)
	var transportErr *TransportError
	require.True(t, errors.As(err, &transportErr), "got %v", err)
}
