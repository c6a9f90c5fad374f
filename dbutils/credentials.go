package dbutils

import (
	"context"
	"fmt"
	"slices"

	"github.com/fioncat/dbutils/types"
)

// Credentials switches the role of the session. The current role belongs
// to the facade only.
type Credentials struct {
	u *DBUtils
}

func (c *Credentials) Help(method string) string {
	return groupHelp("credentials", method)
}

func (c *Credentials) AssumeRole(ctx context.Context, role string) (err error) {
	defer observe("credentials", "assumeRole", &err)

	if !slices.Contains(c.roles(), role) {
		return fmt.Errorf("%w: role %q", types.ErrNotFound, role)
	}
	c.u.setRole(role)
	c.u.logger.Infof("Assume role %q", role)
	return nil
}

// ShowCurrentRole returns the current role, or an empty list when no role
// was assumed.
func (c *Credentials) ShowCurrentRole(ctx context.Context) (roles []string, err error) {
	defer observe("credentials", "showCurrentRole", &err)
	role := c.u.currentRole()
	if role == "" {
		return []string{}, nil
	}
	return []string{role}, nil
}

func (c *Credentials) ShowRoles(ctx context.Context) (roles []string, err error) {
	defer observe("credentials", "showRoles", &err)
	return slices.Clone(c.roles()), nil
}

// GetCurrentCredentials exchanges the current role for temporary
// credentials.
func (c *Credentials) GetCurrentCredentials(ctx context.Context) (creds map[string]string, err error) {
	defer observe("credentials", "getCurrentCredentials", &err)

	role := c.u.currentRole()
	if role == "" {
		return nil, fmt.Errorf("%w: no role assumed", types.ErrNotFound)
	}
	return c.u.ws.Assumer.AssumeRole(ctx, role, "dbutils-"+c.u.session)
}

func (c *Credentials) roles() []string {
	cfg := c.u.ws.Config.Credentials
	if cfg == nil {
		return nil
	}
	return cfg.Roles
}
