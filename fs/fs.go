package fs

import (
	"fmt"
	"sync/atomic"
	"syscall"
	"unsafe"

	"github.com/fioncat/dbutils/events"
	"github.com/fioncat/dbutils/types"
	fusefs "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/sirupsen/logrus"
)

// Filesystem is a running read-only FUSE server for a DBFS view.
type Filesystem struct {
	server *fuse.Server

	path string

	logger *logrus.Entry

	done    chan struct{}
	stopped atomic.Bool
}

// Mount serves root at path and waits until the kernel sees the mount.
// Attribute and entry lookups are cached by the kernel for the configured
// entry timeout.
func Mount(root fusefs.InodeEmbedder, path string, cfg *types.Config) (*Filesystem, error) {
	timeout := cfg.Fs.EntryTimeout
	rawfs := fusefs.NewNodeFS(root, &fusefs.Options{
		AttrTimeout:     &timeout,
		EntryTimeout:    &timeout,
		NullPermissions: true,
	})

	server, err := fuse.NewServer(rawfs, path, &fuse.MountOptions{
		AllowOther: cfg.Fs.AllowOthers,
		FsName:     "dbfs",
		Name:       "dbutils",
		Debug:      cfg.Fs.Debug,
		Options:    []string{"ro"},
	})
	if err != nil {
		return nil, fmt.Errorf("init fuse server on %q: %w", path, err)
	}

	fs := &Filesystem{
		server: server,
		path:   path,
		logger: logrus.WithField("MountPath", path),
		done:   make(chan struct{}),
	}

	go func() {
		fs.logger.Info("Serve fuse.dbutils")
		fs.server.Serve()
		fs.stopped.Store(true)
		close(fs.done)
	}()

	fs.logger.Info("Wait fuse.dbutils mount")
	err = fs.server.WaitMount()
	if err != nil {
		fs.Unmount()
		return nil, fmt.Errorf("wait fuse mount on %q: %w", path, err)
	}
	return fs, nil
}

// Watch makes root follow the mount table of a workspace: every mount,
// unmount or refresh event drops the cached listings. It stops when
// refresh is closed or the server exits.
func (fs *Filesystem) Watch(root *Node, refresh <-chan events.Event) {
	go watchRefresh(root, refresh, fs.done)
}

func watchRefresh(root *Node, refresh <-chan events.Event, done <-chan struct{}) {
	for {
		select {
		case event, ok := <-refresh:
			if !ok {
				return
			}
			switch event.Type {
			case events.EventMount, events.EventUnmount, events.EventRefresh:
				logrus.Debugf("Drop fuse.dbutils listings on %s event %q", event.Type, event.MountPoint)
				root.Invalidate()
			}

		case <-done:
			return
		}
	}
}

// Unmount stops the server. It is a no-op once the server exited.
func (fs *Filesystem) Unmount() {
	if fs.stopped.Load() {
		return
	}

	fs.logger.Info("Unmount fuse.dbutils")
	err := fs.server.Unmount()
	if err != nil {
		fs.logger.Errorf("Unmount fuse.dbutils error: %v", err)
		return
	}
	fs.server.Wait()
	fs.stopped.Store(true)
}

// UnmountChan is closed when the server exits, including an unmount done
// from outside the process.
func (fs *Filesystem) UnmountChan() <-chan struct{} {
	return fs.done
}

const (
	blockSize = 4096

	// Attr.Blocks counts 512 byte units.
	physicalBlockRatio = blockSize / 512
)

// getEntryFileMode maps an entry to read-only permission bits.
func getEntryFileMode(ent *types.Entry) uint32 {
	switch {
	case ent.IsDir:
		return syscall.S_IFDIR | 0555
	case ent.IsSymLink:
		return syscall.S_IFLNK | 0444
	}
	return syscall.S_IFREG | 0444
}

// getEntryIno derives the inode number from the entry identity, a listing
// reloaded after a refresh yields new inodes.
func getEntryIno(ent *types.Entry) uint64 {
	return uint64(uintptr(unsafe.Pointer(ent)))
}

// defaultStatfs reports an unbounded filesystem, the backends behind DBFS
// have no meaningful capacity.
func defaultStatfs(out *fuse.StatfsOut) {
	*out = fuse.StatfsOut{
		Bsize:   blockSize,
		Frsize:  blockSize,
		NameLen: 255,
	}
}
