// Package authclient wraps the identity service endpoints and classifies their failures.
package authclient

import (
	"context"
	"net/http"
	"strings"

	"github.com/abduss/labportal/internal/apiclient"
	"github.com/abduss/labportal/internal/auth"
)

const requiredMessage = "This field is required"

// transport is satisfied by *apiclient.Client.
type transport interface {
	Do(ctx context.Context, method, path string, in, out any, opts ...apiclient.RequestOption) error
}

// Client calls the identity service.
type Client struct {
	api transport
}

// New creates a Client over api.
func New(api transport) *Client {
	return &Client{api: api}
}

type authResponse struct {
	User         auth.User `json:"user"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresIn    int       `json:"expires_in"`
}

func (r authResponse) result() auth.Result {
	return auth.Result{
		User: r.User,
		Tokens: auth.TokenPair{
			AccessToken:  r.AccessToken,
			RefreshToken: r.RefreshToken,
			TokenType:    r.TokenType,
			ExpiresIn:    r.ExpiresIn,
		},
	}
}

// Login exchanges credentials for a user and token pair.
func (c *Client) Login(ctx context.Context, creds auth.Credentials) (auth.Result, error) {
	fields := map[string][]string{}
	requireField(fields, "username", creds.Username)
	requireField(fields, "password", creds.Password)
	if len(fields) > 0 {
		return auth.Result{}, auth.NewValidationError(fields)
	}

	var resp authResponse
	if err := c.api.Do(ctx, http.MethodPost, "/auth/login", creds, &resp, apiclient.WithoutAuth()); err != nil {
		return auth.Result{}, classify(err, true)
	}
	if resp.AccessToken == "" {
		return auth.Result{}, &auth.Error{Kind: auth.KindUnknown, Message: "login response carried no access token"}
	}
	return resp.result(), nil
}

// Register creates an account and returns the same shape as Login.
func (c *Client) Register(ctx context.Context, reg auth.Registration) (auth.Result, error) {
	fields := map[string][]string{}
	requireField(fields, "username", reg.Username)
	requireField(fields, "email", reg.Email)
	requireField(fields, "password", reg.Password)
	requireField(fields, "first_name", reg.FirstName)
	requireField(fields, "last_name", reg.LastName)
	if len(fields) > 0 {
		return auth.Result{}, auth.NewValidationError(fields)
	}

	var resp authResponse
	if err := c.api.Do(ctx, http.MethodPost, "/auth/register", reg, &resp, apiclient.WithoutAuth()); err != nil {
		return auth.Result{}, classify(err, true)
	}
	if resp.AccessToken == "" {
		return auth.Result{}, &auth.Error{Kind: auth.KindUnknown, Message: "register response carried no access token"}
	}
	return resp.result(), nil
}

// Refresh trades a refresh token for a new token pair. RefreshToken is empty
// when the service does not rotate it.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (auth.TokenPair, error) {
	in := struct {
		RefreshToken string `json:"refresh_token"`
	}{RefreshToken: refreshToken}

	var pair auth.TokenPair
	if err := c.api.Do(ctx, http.MethodPost, "/auth/refresh", in, &pair, apiclient.WithoutAuth()); err != nil {
		return auth.TokenPair{}, classify(err, false)
	}
	if pair.AccessToken == "" {
		return auth.TokenPair{}, &auth.Error{Kind: auth.KindUnknown, Message: "refresh response carried no access token"}
	}
	return pair, nil
}

// Logout revokes the session identified by accessToken.
func (c *Client) Logout(ctx context.Context, accessToken string) error {
	if err := c.api.Do(ctx, http.MethodPost, "/auth/logout", nil, nil, apiclient.WithBearer(accessToken)); err != nil {
		return classify(err, false)
	}
	return nil
}

// CurrentUser fetches the user behind the stored access token.
func (c *Client) CurrentUser(ctx context.Context) (auth.User, error) {
	var user auth.User
	if err := c.api.Do(ctx, http.MethodGet, "/auth/me", nil, &user); err != nil {
		return auth.User{}, classify(err, false)
	}
	return checkUser(user, "current user")
}

// UpdateProfile applies a partial update and returns the stored user.
func (c *Client) UpdateProfile(ctx context.Context, update auth.ProfileUpdate) (auth.User, error) {
	var user auth.User
	if err := c.api.Do(ctx, http.MethodPut, "/auth/profile", update, &user); err != nil {
		return auth.User{}, classify(err, false)
	}
	return checkUser(user, "profile update")
}

// ChangePassword replaces the current password.
func (c *Client) ChangePassword(ctx context.Context, change auth.PasswordChange) error {
	fields := map[string][]string{}
	requireField(fields, "current_password", change.CurrentPassword)
	requireField(fields, "new_password", change.NewPassword)
	if len(fields) > 0 {
		return auth.NewValidationError(fields)
	}

	if err := c.api.Do(ctx, http.MethodPut, "/auth/change-password", change, nil); err != nil {
		return classify(err, false)
	}
	return nil
}

// checkUser rejects a decoded user without an id, which would otherwise become a session with no role.
func checkUser(user auth.User, call string) (auth.User, error) {
	if user.ID == "" {
		return auth.User{}, &auth.Error{Kind: auth.KindUnknown, Message: call + " response carried no user"}
	}
	return user, nil
}

func requireField(fields map[string][]string, name, value string) {
	if strings.TrimSpace(value) == "" {
		fields[name] = append(fields[name], requiredMessage)
	}
}
