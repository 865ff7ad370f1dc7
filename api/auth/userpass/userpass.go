package userpass

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/stephnangue/sessionpipe/api"
)

// DefaultMountPath specifies the default mount path for the username and
// password Authentication Method.
const DefaultMountPath = "userpass"

// ErrNoUsername is returned when no username was specified.
var ErrNoUsername = errors.New("no username specified")

// ErrNoPassword is returned when [UserpassAuth] is configured without a
// password or a password file.
var ErrNoPassword = errors.New("no password specified")

// ErrInvalidMountPath is returned when configuring [UserpassAuth] with an
// empty mount path.
var ErrInvalidMountPath = errors.New("invalid auth method mount path specified")

type UserpassAuth struct {
	username string

	// mountPath specifies the mount path of the Authentication Method.
	mountPath string

	password string

	// passwordPath specifies a file the password is read from at login.
	passwordPath string
}

var _ api.AuthMethod = &UserpassAuth{}

// LoginOption configures a [UserpassAuth].
type LoginOption func(a *UserpassAuth) error

// New returns a [UserpassAuth] for username. A password must be provided
// through WithPassword or WithPasswordFile.
func New(username string, opts ...LoginOption) (*UserpassAuth, error) {
	if username == "" {
		return nil, ErrNoUsername
	}

	a := &UserpassAuth{
		username:  username,
		mountPath: DefaultMountPath,
	}
	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, err
		}
	}

	if a.mountPath == "" {
		return nil, ErrInvalidMountPath
	}
	if a.password == "" && a.passwordPath == "" {
		return nil, ErrNoPassword
	}
	return a, nil
}

func WithPassword(password string) LoginOption {
	return func(a *UserpassAuth) error {
		a.password = password
		return nil
	}
}

func WithPasswordFile(path string) LoginOption {
	return func(a *UserpassAuth) error {
		a.passwordPath = path
		return nil
	}
}

func WithMountPath(mountPath string) LoginOption {
	return func(a *UserpassAuth) error {
		a.mountPath = strings.Trim(mountPath, "/")
		return nil
	}
}

// Login posts the username and password to the login endpoint. The request
// goes out unauthenticated so a rejection is reported as bad credentials.
func (a *UserpassAuth) Login(ctx context.Context, client *api.Client) (*api.Resource, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	password := a.password
	if a.passwordPath != "" {
		raw, err := os.ReadFile(a.passwordPath)
		if err != nil {
			return nil, fmt.Errorf("unable to read password file: %w", err)
		}
		password = strings.TrimSpace(string(raw))
	}

	r := client.NewRequest(http.MethodPost, fmt.Sprintf("/v1/auth/%s/login", a.mountPath))
	r.NoAuth = true
	if err := r.SetJSONBody(map[string]string{
		"username": a.username,
		"password": password,
	}); err != nil {
		return nil, err
	}

	resp, err := client.RawRequestWithContext(ctx, r)
	if resp != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}

	return api.ParseResource(resp.Body)
}
