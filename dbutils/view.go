package dbutils

import (
	"context"

	"github.com/fioncat/dbutils/types"
)

// fsView exposes DBFS, mounts included, as a read-only provider.
type fsView struct {
	f *FS
}

// View returns DBFS as a read-only provider. Paths below /mnt resolve
// through the mount table of the facade.
func (f *FS) View() types.Provider {
	return &fsView{f: f}
}

func (v *fsView) Stat(ctx context.Context, p string) (*types.Entry, error) {
	loc, err := v.f.resolve(ctx, "dbfs:"+p)
	if err != nil {
		return nil, err
	}
	ent, err := loc.prov.Stat(ctx, loc.path)
	if err != nil {
		return nil, err
	}
	ent.Path = p
	return ent, nil
}

func (v *fsView) ReadDir(ctx context.Context, p string) ([]*types.Entry, error) {
	loc, err := v.f.resolve(ctx, "dbfs:"+p)
	if err != nil {
		return nil, err
	}
	return loc.prov.ReadDir(ctx, loc.path)
}

func (v *fsView) ReadFile(ctx context.Context, p string, limit int64) ([]byte, error) {
	loc, err := v.f.resolve(ctx, "dbfs:"+p)
	if err != nil {
		return nil, err
	}
	return loc.prov.ReadFile(ctx, loc.path, limit)
}
