package types

import (
	"context"
	"time"
)

type Entry struct {
	Path string
	Name string

	IsDir bool

	IsSymLink bool
	LinkName  string

	Size int64

	ModTime time.Time

	WebUrl string
}

// Provider is a storage backend that a filesystem URI resolves to. Paths
// are absolute and slash separated. Missing paths must be reported with an
// error wrapping ErrNotFound, and ReadDir on a file with ErrNotADirectory.
type Provider interface {
	Stat(ctx context.Context, path string) (*Entry, error)
	ReadDir(ctx context.Context, path string) ([]*Entry, error)

	// ReadFile reads at most limit bytes from the file, limit <= 0 reads the
	// whole file.
	ReadFile(ctx context.Context, path string, limit int64) ([]byte, error)
}

// WritableProvider is implemented by backends that accept writes. Read-only
// sources (git repositories) only implement Provider.
type WritableProvider interface {
	Provider

	WriteFile(ctx context.Context, path string, data []byte) error
	MkdirAll(ctx context.Context, path string) error
	Remove(ctx context.Context, path string, recursive bool) error
}

// RoleAssumer exchanges a role for temporary credentials.
type RoleAssumer interface {
	AssumeRole(ctx context.Context, role, session string) (map[string]string, error)
}
