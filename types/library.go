package types

import "fmt"

type LibraryKind string

const (
	LibraryFile LibraryKind = "file"
	LibraryPyPI LibraryKind = "pypi"
)

type Library struct {
	Kind LibraryKind `json:"kind"`

	// Path is set for libraries installed from a file.
	Path string `json:"path,omitempty"`

	Project string `json:"project,omitempty"`
	Version string `json:"version,omitempty"`
	Repo    string `json:"repo,omitempty"`
	Extras  string `json:"extras,omitempty"`
}

// String returns a requirement specifier, e.g. "requests[socks]==2.31.0".
func (l *Library) String() string {
	if l.Kind == LibraryFile {
		return l.Path
	}
	s := l.Project
	if l.Extras != "" {
		s = fmt.Sprintf("%s[%s]", s, l.Extras)
	}
	if l.Version != "" {
		s = fmt.Sprintf("%s==%s", s, l.Version)
	}
	return s
}

// LibraryStore keeps the libraries installed by each session, in install
// order.
type LibraryStore interface {
	AddLibrary(session string, lib *Library) error
	ListLibraries(session string) ([]*Library, error)
	ClearLibraries(session string) error
}

// TaskValueStore keeps the values exchanged between tasks of one job run.
type TaskValueStore interface {
	PutTaskValue(runID, taskKey, key string, data []byte) error
	GetTaskValue(runID, taskKey, key string) ([]byte, error)
}
