package api

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-viper/mapstructure/v2"
	"github.com/stephnangue/sessionpipe/session"
)

// Auth is used to perform authentication related operations.
type Auth struct {
	c *Client
}

// AuthMethod performs the login exchange of one authentication backend and
// returns the server's response.
type AuthMethod interface {
	Login(ctx context.Context, client *Client) (*Resource, error)
}

// Auth is used to return the client for auth-backend API calls.
func (c *Client) Auth() *Auth {
	return &Auth{c: c}
}

type loginCredentials struct {
	AccessToken  string `mapstructure:"access_token"`
	RefreshToken string `mapstructure:"refresh_token"`
	SubjectID    string `mapstructure:"subject_id"`
}

// Login runs the given auth method and stores the credential pair from its
// response, starting a new session. A navigation to the sign-in surface
// still pending from the previous session is cancelled.
func (a *Auth) Login(ctx context.Context, authMethod AuthMethod) (*Resource, error) {
	if authMethod == nil {
		return nil, errors.New("no auth method provided for login")
	}

	r, err := authMethod.Login(ctx, a.c)
	if err != nil {
		return nil, fmt.Errorf("unable to log in to auth method: %w", err)
	}

	pair, err := CredentialsFromResource(r)
	if err != nil {
		return nil, err
	}
	if err := a.c.SetCredentials(pair); err != nil {
		return nil, fmt.Errorf("failed to store credentials: %w", err)
	}

	return r, nil
}

// Logout ends the session locally by clearing the credential store.
func (a *Auth) Logout(_ context.Context) error {
	return a.c.ClearCredentials()
}

// CredentialsFromResource extracts the credential pair from a login
// response. The refresh token and subject id are optional.
func CredentialsFromResource(r *Resource) (session.Pair, error) {
	if r == nil || r.Data == nil {
		return session.Pair{}, errors.New("empty login response")
	}

	var creds loginCredentials
	if err := mapstructure.WeakDecode(r.Data, &creds); err != nil {
		return session.Pair{}, fmt.Errorf("failed to decode login response: %w", err)
	}
	if creds.AccessToken == "" {
		return session.Pair{}, errors.New("login response did not contain an access token")
	}

	return session.Pair{
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		SubjectID:    creds.SubjectID,
	}, nil
}
