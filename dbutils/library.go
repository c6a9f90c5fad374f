package dbutils

import (
	"context"
	"fmt"

	"github.com/fioncat/dbutils/types"
)

// Library records the libraries installed by the session.
type Library struct {
	u *DBUtils
}

func (l *Library) Help(method string) string {
	return groupHelp("library", method)
}

// Install installs a library file, uri is any path accepted by FS.
func (l *Library) Install(ctx context.Context, uri string) (err error) {
	defer observe("library", "install", &err)

	loc, err := l.u.fs.resolve(ctx, uri)
	if err != nil {
		return err
	}
	ent, err := loc.prov.Stat(ctx, loc.path)
	if err != nil {
		return err
	}
	if ent.IsDir {
		return fmt.Errorf("%w: library %q is a directory", types.ErrInvalidArgument, uri)
	}

	return l.add(&types.Library{Kind: types.LibraryFile, Path: loc.uri})
}

func (l *Library) InstallPyPI(ctx context.Context, project, version, repo, extras string) (err error) {
	defer observe("library", "installPyPI", &err)

	if project == "" {
		return fmt.Errorf("%w: project is empty", types.ErrInvalidArgument)
	}
	return l.add(&types.Library{
		Kind:    types.LibraryPyPI,
		Project: project,
		Version: version,
		Repo:    repo,
		Extras:  extras,
	})
}

func (l *Library) add(lib *types.Library) error {
	err := l.u.ws.Store.AddLibrary(l.u.session, lib)
	if err != nil {
		return err
	}
	l.u.logger.Infof("Install %s library %q", lib.Kind, lib.String())
	return nil
}

// RestartPython resets the session: installed libraries, the current role
// and the cached mount table are dropped.
func (l *Library) RestartPython(ctx context.Context) (err error) {
	defer observe("library", "restartPython", &err)

	err = l.u.ws.Store.ClearLibraries(l.u.session)
	if err != nil {
		return err
	}
	l.u.setRole("")
	l.u.fs.invalidate()
	l.u.logger.Info("Restart session")
	return nil
}

// List returns the libraries in install order.
func (l *Library) List(ctx context.Context) (libs []*types.Library, err error) {
	defer observe("library", "list", &err)
	libs, err = l.u.ws.Store.ListLibraries(l.u.session)
	if err != nil {
		return nil, err
	}
	if libs == nil {
		libs = []*types.Library{}
	}
	return libs, nil
}
