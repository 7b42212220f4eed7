package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/debemdeboas/folio/internal/model"
)

func (c *Client) Login(ctx context.Context, username, password string) (*model.LoginResponse, error) {
	var lr model.LoginResponse
	in := map[string]string{"username": username, "password": password}
	if err := c.sendJSON(ctx, http.MethodPost, "/auth/login/", in, false, &lr); err != nil {
		return nil, err
	}
	return &lr, nil
}

func (c *Client) Logout(ctx context.Context, refresh string) error {
	return c.sendJSON(ctx, http.MethodPost, "/auth/logout/", map[string]string{"refresh": refresh}, true, nil)
}

type RegisterInput struct {
	Username        string `json:"username"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"password_confirm"`
}

func (c *Client) Register(ctx context.Context, in *RegisterInput) (*model.User, error) {
	var u model.User
	if err := c.sendJSON(ctx, http.MethodPost, "/auth/register/", in, false, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// Refresh exchanges a refresh token for a new access token.
func (c *Client) Refresh(ctx context.Context, refresh string) (string, error) {
	var out struct {
		Access string `json:"access"`
	}
	if err := c.sendJSON(ctx, http.MethodPost, "/auth/refresh/", map[string]string{"refresh": refresh}, false, &out); err != nil {
		return "", err
	}
	if out.Access == "" {
		return "", fmt.Errorf("refresh response carried no access token")
	}
	return out.Access, nil
}

func (c *Client) VerifyEmail(ctx context.Context, token string) error {
	return c.sendJSON(ctx, http.MethodPost, "/auth/verify-email/", map[string]string{"token": token}, false, nil)
}

func (c *Client) RequestPasswordReset(ctx context.Context, email string) error {
	return c.sendJSON(ctx, http.MethodPost, "/auth/password-reset/", map[string]string{"email": email}, false, nil)
}

func (c *Client) ConfirmPasswordReset(ctx context.Context, uid, token, password string) error {
	in := map[string]string{"uid": uid, "token": token, "new_password": password}
	return c.sendJSON(ctx, http.MethodPost, "/auth/password-reset/confirm/", in, false, nil)
}

func (c *Client) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	in := map[string]string{"old_password": oldPassword, "new_password": newPassword}
	return c.sendJSON(ctx, http.MethodPost, "/auth/password/change/", in, true, nil)
}

func (c *Client) Profile(ctx context.Context) (*model.User, error) {
	var u model.User
	if err := c.get(ctx, "/auth/profile/", nil, true, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

type ProfileInput struct {
	FirstName string
	LastName  string
	Email     string
	Bio       string
	Avatar    *File
}

func (c *Client) UpdateProfile(ctx context.Context, in *ProfileInput) (*model.User, error) {
	f := &Form{}
	f.Set("first_name", in.FirstName).
		Set("last_name", in.LastName).
		Set("email", in.Email).
		Set("bio", in.Bio)
	if in.Avatar != nil {
		f.Attach("avatar", *in.Avatar)
	}

	var u model.User
	if err := c.sendForm(ctx, http.MethodPatch, "/auth/profile/", f, &u); err != nil {
		return nil, err
	}
	return &u, nil
}
