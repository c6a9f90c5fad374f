package dbutils

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/fioncat/dbutils/events"
	"github.com/fioncat/dbutils/provider"
	"github.com/fioncat/dbutils/types"
)

// DefaultHeadBytes is the number of bytes Head reads when maxBytes <= 0.
const DefaultHeadBytes = 65536

// MountOptions are the optional arguments of FS.Mount.
type MountOptions struct {
	EncryptionType string

	// Owner is accepted for compatibility and has no effect.
	Owner string

	// ExtraConfigs are passed to the source provider, see the S3Config*
	// keys in package provider.
	ExtraConfigs map[string]string
}

// FS is the filesystem group. Paths are "/path" or "dbfs:/path" for the
// workspace DBFS, "file:/path" for the local filesystem and
// "s3://bucket/key" for object storage. DBFS paths below /mnt resolve
// through the mount table.
type FS struct {
	u *DBUtils

	mu       sync.Mutex
	mounts   []*types.MountRecord
	loadedAt time.Time
	sources  map[string]*provider.Source
}

type location struct {
	uri string

	// backend names the storage behind prov, two locations with the same
	// backend and path are the same file.
	backend string

	prov types.Provider
	path string

	mount *types.MountRecord
}

func (f *FS) Help(method string) string {
	return groupHelp("fs", method)
}

func (f *FS) Copy(ctx context.Context, src, dst string, recurse bool) (err error) {
	defer observe("fs", "cp", &err)
	f.u.logger.Debugf("Copy %q to %q, recurse %v", src, dst, recurse)
	return f.copy(ctx, src, dst, recurse)
}

func (f *FS) copy(ctx context.Context, src, dst string, recurse bool) error {
	srcLoc, err := f.resolve(ctx, src)
	if err != nil {
		return err
	}
	dstLoc, err := f.resolve(ctx, dst)
	if err != nil {
		return err
	}
	dstProv, err := writable(dstLoc)
	if err != nil {
		return err
	}

	ent, err := srcLoc.prov.Stat(ctx, srcLoc.path)
	if err != nil {
		return err
	}

	if ent.IsDir {
		if !recurse {
			return fmt.Errorf("%w: %q is a directory, copy it recursively", types.ErrInvalidArgument, src)
		}
		if srcLoc.backend == dstLoc.backend && isSubPath(srcLoc.path, dstLoc.path) {
			return fmt.Errorf("%w: cannot copy %q into itself", types.ErrInvalidArgument, src)
		}
		return copyTree(ctx, srcLoc.prov, srcLoc.path, dstProv, dstLoc.path)
	}

	target := dstLoc.path
	dstEnt, err := dstProv.Stat(ctx, target)
	switch {
	case err == nil:
		if dstEnt.IsDir {
			target = path.Join(target, path.Base(srcLoc.path))
		}
	case !errors.Is(err, types.ErrNotFound):
		return err
	}
	if srcLoc.backend == dstLoc.backend && path.Clean(srcLoc.path) == path.Clean(target) {
		return fmt.Errorf("%w: %q and %q are the same file", types.ErrInvalidArgument, src, dst)
	}
	return copyFile(ctx, srcLoc.prov, srcLoc.path, dstProv, target)
}

func copyFile(ctx context.Context, src types.Provider, srcPath string, dst types.WritableProvider, dstPath string) error {
	data, err := src.ReadFile(ctx, srcPath, 0)
	if err != nil {
		return err
	}
	return dst.WriteFile(ctx, dstPath, data)
}

func copyTree(ctx context.Context, src types.Provider, srcPath string, dst types.WritableProvider, dstPath string) error {
	ents, err := src.ReadDir(ctx, srcPath)
	if err != nil {
		return err
	}
	err = dst.MkdirAll(ctx, dstPath)
	if err != nil {
		return err
	}
	for _, ent := range ents {
		from := path.Join(srcPath, ent.Name)
		to := path.Join(dstPath, ent.Name)
		if ent.IsDir {
			err = copyTree(ctx, src, from, dst, to)
		} else {
			err = copyFile(ctx, src, from, dst, to)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Head returns up to maxBytes bytes of the file as UTF-8 text. Bytes cut in
// the middle of a character are replaced with U+FFFD.
func (f *FS) Head(ctx context.Context, uri string, maxBytes int) (content string, err error) {
	defer observe("fs", "head", &err)
	if maxBytes <= 0 {
		maxBytes = DefaultHeadBytes
	}

	loc, err := f.resolve(ctx, uri)
	if err != nil {
		return "", err
	}
	ent, err := loc.prov.Stat(ctx, loc.path)
	if err != nil {
		return "", err
	}
	if ent.IsDir {
		return "", fmt.Errorf("%w: %q is a directory", types.ErrInvalidArgument, uri)
	}

	data, err := loc.prov.ReadFile(ctx, loc.path, int64(maxBytes))
	if err != nil {
		return "", err
	}
	return strings.ToValidUTF8(string(data), "\uFFFD"), nil
}

// List returns the entries of a directory, one level only, in backend
// order.
func (f *FS) List(ctx context.Context, uri string) (files []*types.FileEntry, err error) {
	defer observe("fs", "ls", &err)

	loc, err := f.resolve(ctx, uri)
	if err != nil {
		return nil, err
	}
	ents, err := loc.prov.ReadDir(ctx, loc.path)
	if err != nil {
		return nil, err
	}

	files = make([]*types.FileEntry, len(ents))
	for i, ent := range ents {
		file := &types.FileEntry{
			Name:             ent.Name,
			Path:             childURI(loc.uri, ent.Name),
			Size:             ent.Size,
			IsDir:            ent.IsDir,
			ModificationTime: ent.ModTime,
		}
		if file.IsDir {
			file.Name += "/"
			file.Path += "/"
		}
		files[i] = file
	}
	f.u.logger.Debugf("List %q done, with %d entries", uri, len(files))
	return files, nil
}

// MakeDirs creates the directory and any missing parent. It succeeds when
// the directory exists already.
func (f *FS) MakeDirs(ctx context.Context, uri string) (err error) {
	defer observe("fs", "mkdirs", &err)

	loc, err := f.resolve(ctx, uri)
	if err != nil {
		return err
	}
	prov, err := writable(loc)
	if err != nil {
		return err
	}
	return prov.MkdirAll(ctx, loc.path)
}

// Move copies src to dst, then removes src. When the copy succeeded but
// the removal failed, the error wraps types.ErrIncompleteMove.
func (f *FS) Move(ctx context.Context, src, dst string, recurse bool) (err error) {
	defer observe("fs", "mv", &err)
	f.u.logger.Debugf("Move %q to %q, recurse %v", src, dst, recurse)

	srcLoc, err := f.resolve(ctx, src)
	if err != nil {
		return err
	}
	err = f.checkRemovable(srcLoc, src)
	if err != nil {
		return err
	}

	err = f.copy(ctx, src, dst, recurse)
	if err != nil {
		return err
	}
	err = f.remove(ctx, src, recurse)
	if err != nil {
		f.u.logger.Warnf("Move %q to %q copied the data but failed to remove the source: %v", src, dst, err)
		return fmt.Errorf("%w: %q copied to %q: %w", types.ErrIncompleteMove, src, dst, err)
	}
	return nil
}

// Put writes contents to a file, creating missing parent directories.
func (f *FS) Put(ctx context.Context, uri, contents string, overwrite bool) (err error) {
	defer observe("fs", "put", &err)

	loc, err := f.resolve(ctx, uri)
	if err != nil {
		return err
	}
	prov, err := writable(loc)
	if err != nil {
		return err
	}

	ent, err := prov.Stat(ctx, loc.path)
	switch {
	case err == nil:
		if ent.IsDir {
			return fmt.Errorf("%w: %q is a directory", types.ErrInvalidArgument, uri)
		}
		if !overwrite {
			return fmt.Errorf("%w: %q, set overwrite to replace it", types.ErrAlreadyExists, uri)
		}
	case !errors.Is(err, types.ErrNotFound):
		return err
	}

	err = prov.WriteFile(ctx, loc.path, []byte(contents))
	if err != nil {
		return err
	}
	f.u.logger.Debugf("Put %d bytes to %q", len(contents), uri)
	return nil
}

// Remove deletes a file or, with recurse, a directory tree. Removing a path
// that does not exist succeeds.
func (f *FS) Remove(ctx context.Context, uri string, recurse bool) (err error) {
	defer observe("fs", "rm", &err)
	return f.remove(ctx, uri, recurse)
}

func (f *FS) remove(ctx context.Context, uri string, recurse bool) error {
	loc, err := f.resolve(ctx, uri)
	if err != nil {
		return err
	}
	err = f.checkRemovable(loc, uri)
	if err != nil {
		return err
	}

	_, err = loc.prov.Stat(ctx, loc.path)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return nil
		}
		return err
	}

	prov, err := writable(loc)
	if err != nil {
		return err
	}
	err = prov.Remove(ctx, loc.path, recurse)
	if err != nil {
		return err
	}
	f.u.logger.Debugf("Removed %q, recurse %v", uri, recurse)
	return nil
}

// checkRemovable rejects removing a mount point or a DBFS directory holding
// one, the mount table would keep pointing at it.
func (f *FS) checkRemovable(loc *location, uri string) error {
	if loc.mount != nil {
		if loc.uri == "dbfs:"+loc.mount.MountPoint {
			return fmt.Errorf("%w: %q is a mount point, unmount it instead", types.ErrInvalidArgument, uri)
		}
		return nil
	}
	if loc.backend != dbfsBackend {
		return nil
	}

	recs, err := f.u.ws.Store.ListMounts()
	if err != nil {
		return fmt.Errorf("list mounts: %w", err)
	}
	for _, rec := range recs {
		if isSubPath(loc.path, rec.MountPoint) {
			return fmt.Errorf("%w: %q contains mount point %q, unmount it instead",
				types.ErrInvalidArgument, uri, rec.MountPoint)
		}
	}
	return nil
}

// Mount binds source at mountPoint, a path below /mnt. The mount is shared
// by every facade of the workspace.
func (f *FS) Mount(ctx context.Context, source, mountPoint string, opts MountOptions) (err error) {
	defer observe("fs", "mount", &err)

	mountPoint, err = types.NormalizeMountPoint(mountPoint)
	if err != nil {
		return err
	}
	err = types.ValidateEncryptionType(opts.EncryptionType)
	if err != nil {
		return err
	}
	if provider.IsDBFS(source) {
		return fmt.Errorf("%w: source %q cannot be a DBFS path", types.ErrInvalidArgument, source)
	}
	if opts.Owner != "" {
		f.u.logger.Debugf("Ignore deprecated owner %q for mount %q", opts.Owner, mountPoint)
	}

	recs, err := f.u.ws.Store.ListMounts()
	if err != nil {
		return fmt.Errorf("list mounts: %w", err)
	}
	target := &types.MountRecord{MountPoint: mountPoint}
	for _, rec := range recs {
		if rec.MountPoint == mountPoint {
			return fmt.Errorf("%w: mount point %q is already mounted to %q", types.ErrAlreadyExists,
				mountPoint, types.RedactSource(rec.Source))
		}
		if rec.Contains(mountPoint) || target.Contains(rec.MountPoint) {
			return fmt.Errorf("%w: mount point %q overlaps %q", types.ErrInvalidArgument, mountPoint, rec.MountPoint)
		}
	}

	src, err := f.u.ws.LoadSource(ctx, source, opts.EncryptionType, opts.ExtraConfigs)
	if err != nil {
		return err
	}
	if checker, ok := src.Provider.(provider.Checker); ok {
		err = checker.Check(ctx)
		if err != nil {
			return fmt.Errorf("check mount source: %w", err)
		}
	}

	dbfs := f.u.ws.DBFS
	ent, err := dbfs.Stat(ctx, mountPoint)
	switch {
	case err == nil:
		if !ent.IsDir {
			return fmt.Errorf("%w: %q is a file", types.ErrAlreadyExists, mountPoint)
		}
	case errors.Is(err, types.ErrNotFound):
		err = dbfs.MkdirAll(ctx, mountPoint)
		if err != nil {
			return fmt.Errorf("create mount point directory: %w", err)
		}
	default:
		return err
	}

	rec := &types.MountRecord{
		MountPoint:     mountPoint,
		Source:         source,
		EncryptionType: opts.EncryptionType,
		ExtraConfigs:   opts.ExtraConfigs,
		CreateTime:     time.Now().Unix(),
	}
	err = f.u.ws.Store.PutMount(rec)
	if err != nil {
		return fmt.Errorf("put mount to metadata: %w", err)
	}

	f.u.logger.Infof("Mounted %q on %q", types.RedactSource(source), mountPoint)
	f.u.ws.Events.Publish(events.Event{Type: events.EventMount, MountPoint: mountPoint})
	return nil
}

// Mounts lists the active mounts. Credentials in the source URIs are
// stripped.
func (f *FS) Mounts(ctx context.Context) (mounts []*types.MountDescriptor, err error) {
	defer observe("fs", "mounts", &err)

	recs, err := f.u.ws.Store.ListMounts()
	if err != nil {
		return nil, fmt.Errorf("list mounts: %w", err)
	}
	mounts = make([]*types.MountDescriptor, len(recs))
	for i, rec := range recs {
		mounts[i] = rec.Descriptor()
	}
	return mounts, nil
}

// RefreshMounts makes every facade of the workspace reload its mount table.
func (f *FS) RefreshMounts(ctx context.Context) (err error) {
	defer observe("fs", "refreshMounts", &err)
	f.u.ws.Events.Publish(events.Event{Type: events.EventRefresh})
	return nil
}

// Unmount removes a mount. Unmounting a mount point that does not exist
// succeeds.
func (f *FS) Unmount(ctx context.Context, mountPoint string) (err error) {
	defer observe("fs", "unmount", &err)

	mountPoint, err = types.NormalizeMountPoint(mountPoint)
	if err != nil {
		return err
	}

	_, err = f.u.ws.Store.GetMount(mountPoint)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			f.u.logger.Debugf("Unmount %q, not mounted", mountPoint)
			f.u.ws.Events.Publish(events.Event{Type: events.EventUnmount, MountPoint: mountPoint})
			return nil
		}
		return err
	}

	err = f.u.ws.Store.RemoveMount(mountPoint)
	if err != nil {
		return fmt.Errorf("remove mount in metadata: %w", err)
	}

	err = f.u.ws.DBFS.Remove(ctx, mountPoint, false)
	if err != nil && !errors.Is(err, types.ErrNotFound) {
		f.u.logger.Warnf("Remove mount point directory %q: %v", mountPoint, err)
	}

	f.u.logger.Infof("Unmounted %q", mountPoint)
	f.u.ws.Events.Publish(events.Event{Type: events.EventUnmount, MountPoint: mountPoint})
	return nil
}

func (f *FS) resolve(ctx context.Context, uri string) (*location, error) {
	if uri == "" {
		return nil, fmt.Errorf("%w: empty path", types.ErrInvalidArgument)
	}

	if !provider.IsDBFS(uri) {
		prov, p, err := provider.Resolve(ctx, uri, f.u.ws.Config)
		if err != nil {
			return nil, err
		}
		return &location{
			uri:     strings.TrimSuffix(uri, "/"),
			backend: backendOf(uri),
			prov:    prov,
			path:    p,
		}, nil
	}

	p := strings.TrimPrefix(uri, "dbfs:")
	if !strings.HasPrefix(p, "/") {
		return nil, fmt.Errorf("%w: dbfs path %q must be absolute", types.ErrInvalidArgument, uri)
	}
	p = path.Clean(p)
	loc := &location{uri: "dbfs:" + p, backend: dbfsBackend, prov: f.u.ws.DBFS, path: p}

	if !strings.HasPrefix(p, types.MountNamespace+"/") {
		return loc, nil
	}

	recs, err := f.mountTable()
	if err != nil {
		return nil, err
	}
	for _, rec := range recs {
		if !rec.Contains(p) {
			continue
		}
		src, err := f.source(ctx, rec)
		if err != nil {
			return nil, fmt.Errorf("load mount %q: %w", rec.MountPoint, err)
		}
		loc.prov = src.Provider
		loc.path = path.Join(src.Root, strings.TrimPrefix(p, rec.MountPoint))
		loc.mount = rec
		loc.backend = "mount:" + rec.MountPoint
		return loc, nil
	}
	return loc, nil
}

// mountTable returns the cached mount table, reloading it when the TTL
// expired or a refresh event arrived.
func (f *FS) mountTable() ([]*types.MountRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ttl := f.u.ws.Config.MountCacheTTL
	stale := f.loadedAt.IsZero() || ttl <= 0 || time.Since(f.loadedAt) > ttl

drain:
	for {
		select {
		case _, ok := <-f.u.refresh:
			if !ok {
				break drain
			}
			stale = true
		default:
			break drain
		}
	}

	if !stale {
		return f.mounts, nil
	}

	recs, err := f.u.ws.Store.ListMounts()
	if err != nil {
		return nil, fmt.Errorf("list mounts: %w", err)
	}
	f.mounts = recs
	f.loadedAt = time.Now()
	f.sources = make(map[string]*provider.Source, len(recs))
	f.u.logger.Debugf("Reload mount table, with %d mounts", len(recs))
	return recs, nil
}

func (f *FS) source(ctx context.Context, rec *types.MountRecord) (*provider.Source, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if src, ok := f.sources[rec.MountPoint]; ok {
		return src, nil
	}
	src, err := f.u.ws.LoadSource(ctx, rec.Source, rec.EncryptionType, rec.ExtraConfigs)
	if err != nil {
		return nil, err
	}
	if f.sources == nil {
		f.sources = make(map[string]*provider.Source)
	}
	f.sources[rec.MountPoint] = src
	return src, nil
}

// invalidate drops the cached mount table.
func (f *FS) invalidate() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loadedAt = time.Time{}
	f.mounts = nil
	f.sources = nil
}

func writable(loc *location) (types.WritableProvider, error) {
	prov, ok := loc.prov.(types.WritableProvider)
	if !ok {
		return nil, fmt.Errorf("%w: %q is read-only", types.ErrPermission, loc.uri)
	}
	return prov, nil
}

const dbfsBackend = "dbfs"

// backendOf names the backend of a non DBFS URI. S3 scheme aliases and
// credentials in the URI do not change the bucket.
func backendOf(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return uri
	}
	switch u.Scheme {
	case "file":
		return "file"
	case "s3", "s3a", "s3n":
		return "s3://" + u.Host
	}
	return uri
}

func isSubPath(parent, p string) bool {
	if parent == "/" {
		return true
	}
	return p == parent || strings.HasPrefix(p, parent+"/")
}

func childURI(base, name string) string {
	if strings.HasSuffix(base, "/") {
		return base + name
	}
	return base + "/" + name
}
