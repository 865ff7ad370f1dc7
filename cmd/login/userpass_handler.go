package login

import (
	"context"

	"github.com/stephnangue/sessionpipe/api"
	"github.com/stephnangue/sessionpipe/api/auth/userpass"
)

// EnvPassword holds the password when the --password flag is not set.
const EnvPassword = "SESSIONPIPE_PASSWORD"

type UserpassHandler struct{}

func (h UserpassHandler) Auth(ctx context.Context, c *api.Client, m map[string]string) (*api.Resource, error) {
	mount, ok := m["mount"]
	if !ok {
		mount = userpass.DefaultMountPath
	}

	auth, err := userpass.New(m["username"],
		userpass.WithPassword(m["password"]),
		userpass.WithMountPath(mount),
	)
	if err != nil {
		return nil, err
	}

	return c.Auth().Login(ctx, auth)
}
