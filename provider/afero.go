package provider

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/fioncat/dbutils/types"
	"github.com/spf13/afero"
)

type aferoProvider struct {
	fs afero.Fs
}

var _ types.WritableProvider = (*aferoProvider)(nil)

// NewAfero serves paths from an afero filesystem. The workspace uses a
// BasePathFs over the DBFS root, "file:" URIs use the OS filesystem and
// tests use MemMapFs.
func NewAfero(fs afero.Fs) types.WritableProvider {
	return &aferoProvider{fs: fs}
}

func (p *aferoProvider) Stat(_ context.Context, name string) (*types.Entry, error) {
	info, err := p.fs.Stat(name)
	if err != nil {
		return nil, convertOSError(name, err)
	}
	return fileInfoToEntry(name, info), nil
}

func (p *aferoProvider) ReadDir(ctx context.Context, name string) ([]*types.Entry, error) {
	ent, err := p.Stat(ctx, name)
	if err != nil {
		return nil, err
	}
	if !ent.IsDir {
		return nil, fmt.Errorf("%w: %q", types.ErrNotADirectory, name)
	}

	infos, err := afero.ReadDir(p.fs, name)
	if err != nil {
		return nil, convertOSError(name, err)
	}

	ents := make([]*types.Entry, len(infos))
	for i, info := range infos {
		ents[i] = fileInfoToEntry(path.Join(name, info.Name()), info)
	}
	return ents, nil
}

func (p *aferoProvider) ReadFile(_ context.Context, name string, limit int64) ([]byte, error) {
	file, err := p.fs.Open(name)
	if err != nil {
		return nil, convertOSError(name, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, convertOSError(name, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %q is a directory", types.ErrInvalidArgument, name)
	}

	var reader io.Reader = file
	if limit > 0 {
		reader = io.LimitReader(file, limit)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read %q: %w", name, err)
	}
	return data, nil
}

func (p *aferoProvider) WriteFile(ctx context.Context, name string, data []byte) error {
	err := p.MkdirAll(ctx, path.Dir(name))
	if err != nil {
		return err
	}
	err = afero.WriteFile(p.fs, name, data, 0644)
	if err != nil {
		return convertOSError(name, err)
	}
	return nil
}

func (p *aferoProvider) MkdirAll(_ context.Context, name string) error {
	// MemMapFs happily "creates" a directory over an existing file, check
	// every segment first.
	segments := strings.Split(strings.Trim(name, "/"), "/")
	current := "/"
	for _, segment := range segments {
		if segment == "" {
			continue
		}
		current = path.Join(current, segment)
		info, err := p.fs.Stat(current)
		if err != nil {
			if os.IsNotExist(err) {
				break
			}
			return convertOSError(current, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("%w: %q is a file", types.ErrNotADirectory, current)
		}
	}

	err := p.fs.MkdirAll(name, os.ModePerm)
	if err != nil {
		return convertOSError(name, err)
	}
	return nil
}

func (p *aferoProvider) Remove(ctx context.Context, name string, recursive bool) error {
	ent, err := p.Stat(ctx, name)
	if err != nil {
		return err
	}

	if ent.IsDir {
		if recursive {
			err = p.fs.RemoveAll(name)
			if err != nil {
				return convertOSError(name, err)
			}
			return nil
		}
		children, err := afero.ReadDir(p.fs, name)
		if err != nil {
			return convertOSError(name, err)
		}
		if len(children) > 0 {
			return fmt.Errorf("%w: directory %q is not empty, remove it recursively", types.ErrInvalidArgument, name)
		}
	}

	err = p.fs.Remove(name)
	if err != nil {
		return convertOSError(name, err)
	}
	return nil
}

func fileInfoToEntry(name string, info os.FileInfo) *types.Entry {
	ent := &types.Entry{
		Path:    name,
		Name:    info.Name(),
		IsDir:   info.IsDir(),
		ModTime: info.ModTime(),
	}
	if !ent.IsDir {
		ent.Size = info.Size()
	}
	if name == "/" {
		ent.Name = ""
	}
	return ent
}

func convertOSError(name string, err error) error {
	switch {
	case os.IsNotExist(err):
		return fmt.Errorf("%w: %q", types.ErrNotFound, name)
	case os.IsPermission(err):
		return fmt.Errorf("%w: %q", types.ErrPermission, name)
	case os.IsExist(err):
		return fmt.Errorf("%w: %q", types.ErrAlreadyExists, name)
	}
	return fmt.Errorf("%q: %w", name, err)
}
