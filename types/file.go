package types

import "time"

// FileEntry is one result of listing a directory.
type FileEntry struct {
	Name string `json:"name"`

	// Path is the fully qualified URI. Directories end with "/".
	Path string `json:"path"`

	Size int64 `json:"size"`

	IsDir bool `json:"isDir"`

	ModificationTime time.Time `json:"modificationTime"`
}

func (e *FileEntry) IsFile() bool {
	return !e.IsDir
}
