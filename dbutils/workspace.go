package dbutils

import (
	"context"
	"fmt"

	"github.com/fioncat/dbutils/events"
	"github.com/fioncat/dbutils/osutils"
	"github.com/fioncat/dbutils/provider"
	"github.com/fioncat/dbutils/storage"
	"github.com/fioncat/dbutils/types"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// Store is the metadata service shared by every facade of a workspace.
type Store interface {
	types.MountTable
	types.SecretStore
	types.WidgetStore
	types.TaskValueStore
	types.LibraryStore
}

// SourceLoader builds the provider behind a mount source.
type SourceLoader func(ctx context.Context, source, encryptionType string, extraConfigs map[string]string) (*provider.Source, error)

// Workspace holds the backends shared by every facade: the DBFS root, the
// metadata store, the refresh broadcaster and the notebook registry.
type Workspace struct {
	Config *types.Config

	Store Store

	DBFS types.WritableProvider

	Events *events.Broadcaster

	Notebooks *Registry

	Assumer types.RoleAssumer

	LoadSource SourceLoader

	closer func() error
}

// OpenWorkspace opens the workspace described by cfg: the bolt metadata
// database under BaseDir and the DBFS root directory.
func OpenWorkspace(cfg *types.Config) (*Workspace, error) {
	err := osutils.EnsureDir(cfg.DBFSRoot)
	if err != nil {
		return nil, fmt.Errorf("ensure dbfs root: %w", err)
	}

	db, err := storage.OpenBolt(cfg)
	if err != nil {
		return nil, fmt.Errorf("open metadata database: %w", err)
	}

	dbfs := afero.NewBasePathFs(afero.NewOsFs(), cfg.DBFSRoot)
	ws := NewWorkspace(cfg, db, dbfs)
	ws.closer = db.Close

	logrus.Debugf("Open workspace, base %q, dbfs root %q", cfg.BaseDir, cfg.DBFSRoot)
	return ws, nil
}

// NewWorkspace wires a workspace from an existing store and DBFS
// filesystem.
func NewWorkspace(cfg *types.Config, store Store, dbfs afero.Fs) *Workspace {
	ws := &Workspace{
		Config:    cfg,
		Store:     store,
		DBFS:      provider.NewAfero(dbfs),
		Events:    events.NewBroadcaster(),
		Notebooks: NewRegistry(),
		Assumer:   provider.NewSTS(cfg),
	}
	ws.LoadSource = func(ctx context.Context, source, encryptionType string, extraConfigs map[string]string) (*provider.Source, error) {
		return provider.Load(ctx, source, encryptionType, extraConfigs, cfg)
	}
	return ws
}

func (ws *Workspace) Close() error {
	if ws.closer == nil {
		return nil
	}
	return ws.closer()
}
