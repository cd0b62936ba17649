package blog

import (
	"context"
	"net/url"
	"strconv"

	"github.com/fusionworks/go-blog-client/gateway"
	"github.com/pkg/errors"
)

const (
	userPath   = "/v1/api/user"
	adminPath  = "/v1/api/admin"
	publicPath = "/v1/api/public"
)

// UsersService covers the profile endpoints plus the admin account surface.
type UsersService struct {
	api *gateway.Client
}

// NewUsersService creates a users client over the gateway.
func NewUsersService(api *gateway.Client) *UsersService {
	return &UsersService{api: api}
}

// Me returns the authenticated user's profile.
func (s *UsersService) Me(ctx context.Context) (*User, error) {
	var user User
	if err := s.api.Get(ctx, userPath+"/me", nil, &user); err != nil {
		return nil, errors.Wrap(err, "[UsersService.Me]")
	}
	return &user, nil
}

// Get returns a user by ID or username.
func (s *UsersService) Get(ctx context.Context, id string) (*User, error) {
	var user User
	if err := s.api.Get(ctx, userPath+"/users/"+url.PathEscape(id), nil, &user); err != nil {
		return nil, errors.Wrapf(err, "[UsersService.Get] id %s", id)
	}
	return &user, nil
}

// Update modifies a user's own profile.
func (s *UsersService) Update(ctx context.Context, id string, in UserInput) (*User, error) {
	var user User
	if err := s.api.Put(ctx, userPath+"/users/"+url.PathEscape(id), in, &user); err != nil {
		return nil, errors.Wrapf(err, "[UsersService.Update] id %s", id)
	}
	return &user, nil
}

// RegisterPublic creates an account through the unauthenticated
// registration endpoint.
func (s *UsersService) RegisterPublic(ctx context.Context, in UserInput) (*User, error) {
	var user User
	if err := s.api.Post(ctx, publicPath+"/create-user", in, &user); err != nil {
		return nil, errors.Wrap(err, "[UsersService.RegisterPublic]")
	}
	return &user, nil
}

// CreateAdmin creates an account through the admin endpoint.
func (s *UsersService) CreateAdmin(ctx context.Context, in UserInput) (*User, error) {
	var user User
	if err := s.api.Post(ctx, adminPath+"/create-user", in, &user); err != nil {
		return nil, errors.Wrap(err, "[UsersService.CreateAdmin]")
	}
	return &user, nil
}

// ListPaged returns a page of accounts.
func (s *UsersService) ListPaged(ctx context.Context, page *PageQuery) (*PagingResult[User], error) {
	var result PagingResult[User]
	if err := s.api.Get(ctx, adminPath+"/users", page.Values(), &result); err != nil {
		return nil, errors.Wrap(err, "[UsersService.ListPaged]")
	}
	return &result, nil
}

// GetAdmin returns an account by ID through the admin endpoint.
func (s *UsersService) GetAdmin(ctx context.Context, id string) (*User, error) {
	var user User
	if err := s.api.Get(ctx, adminPath+"/users/"+url.PathEscape(id), nil, &user); err != nil {
		return nil, errors.Wrapf(err, "[UsersService.GetAdmin] id %s", id)
	}
	return &user, nil
}

// ListAll returns every account without paging.
func (s *UsersService) ListAll(ctx context.Context) ([]User, error) {
	var users []User
	if err := s.api.Get(ctx, adminPath+"/users-without-page", nil, &users); err != nil {
		return nil, errors.Wrap(err, "[UsersService.ListAll]")
	}
	return users, nil
}

// DeleteByUsername removes an account.
func (s *UsersService) DeleteByUsername(ctx context.Context, username string) error {
	if err := s.api.Delete(ctx, adminPath+"/users/"+url.PathEscape(username)); err != nil {
		return errors.Wrapf(err, "[UsersService.DeleteByUsername] %s", username)
	}
	return nil
}

// SetEnabled toggles an account's enabled status.
func (s *UsersService) SetEnabled(ctx context.Context, id string, enabled bool) error {
	query := url.Values{"status": {strconv.FormatBool(enabled)}}
	path := adminPath + "/users/" + url.PathEscape(id) + "/status"
	if err := s.api.Patch(ctx, path, query, struct{}{}, nil); err != nil {
		return errors.Wrapf(err, "[UsersService.SetEnabled] id %s", id)
	}
	return nil
}

// ResendVerificationEmail re-sends the account verification mail.
func (s *UsersService) ResendVerificationEmail(ctx context.Context, username string) error {
	path := adminPath + "/users/" + url.PathEscape(username) + "/resend-email"
	if err := s.api.Get(ctx, path, nil, nil); err != nil {
		return errors.Wrapf(err, "[UsersService.ResendVerificationEmail] %s", username)
	}
	return nil
}
