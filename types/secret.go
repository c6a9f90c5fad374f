package types

// SecretScope is a named group of secrets.
type SecretScope struct {
	Name string `json:"name"`
}

func (s *SecretScope) GetName() string {
	return s.Name
}

// SecretMetadata describes a secret without its value.
type SecretMetadata struct {
	Key string `json:"key"`
}

type SecretStore interface {
	CreateScope(scope string) error
	DeleteScope(scope string) error
	ListScopes() ([]*SecretScope, error)

	PutSecret(scope, key string, value []byte) error
	GetSecret(scope, key string) ([]byte, error)
	DeleteSecret(scope, key string) error
	ListSecrets(scope string) ([]*SecretMetadata, error)
}
