package dbutils

import (
	"context"

	"github.com/fioncat/dbutils/types"
)

// Secrets reads secrets from the workspace secret store. Values are never
// logged.
type Secrets struct {
	u *DBUtils
}

func (s *Secrets) Help(method string) string {
	return groupHelp("secrets", method)
}

func (s *Secrets) List(ctx context.Context, scope string) (metas []*types.SecretMetadata, err error) {
	defer observe("secrets", "list", &err)
	metas, err = s.u.ws.Store.ListSecrets(scope)
	if err != nil {
		return nil, err
	}
	if metas == nil {
		metas = []*types.SecretMetadata{}
	}
	return metas, nil
}

func (s *Secrets) Get(ctx context.Context, scope, key string) (string, error) {
	value, err := s.getBytes(ctx, "get", scope, key)
	if err != nil {
		return "", err
	}
	return string(value), nil
}

func (s *Secrets) GetBytes(ctx context.Context, scope, key string) ([]byte, error) {
	return s.getBytes(ctx, "getBytes", scope, key)
}

func (s *Secrets) getBytes(_ context.Context, op, scope, key string) (value []byte, err error) {
	defer observe("secrets", op, &err)
	value, err = s.u.ws.Store.GetSecret(scope, key)
	if err != nil {
		return nil, err
	}
	s.u.logger.WithField("Scope", scope).Debugf("Read secret %q", key)
	return value, nil
}

func (s *Secrets) ListScopes(ctx context.Context) (scopes []*types.SecretScope, err error) {
	defer observe("secrets", "listScopes", &err)
	scopes, err = s.u.ws.Store.ListScopes()
	if err != nil {
		return nil, err
	}
	if scopes == nil {
		scopes = []*types.SecretScope{}
	}
	return scopes, nil
}
