package fs

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"syscall"
	"testing"
	"time"

	"github.com/fioncat/dbutils/events"
	"github.com/fioncat/dbutils/osutils"
	"github.com/fioncat/dbutils/provider"
	"github.com/fioncat/dbutils/types"
	fusefs "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/spf13/afero"
)

var (
	_ = (fusefs.NodeGetattrer)((*testRoot)(nil))
	_ = (fusefs.NodeOnAdder)((*testRoot)(nil))
)

type testRoot struct {
	fusefs.Inode
}

func (r *testRoot) OnAdd(ctx context.Context) {
	ch := r.NewPersistentInode(
		ctx, &fusefs.MemRegularFile{
			Data: []byte("Hello fuse!"),
			Attr: fuse.Attr{
				Mode: 0644,
			},
		}, fusefs.StableAttr{Ino: 2})
	r.AddChild("file.txt", ch, false)
}

func (r *testRoot) Getattr(ctx context.Context, fh fusefs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	out.Mode = 0755
	return 0
}

func requireFuse(t *testing.T) {
	if _, err := os.Stat("/dev/fuse"); err != nil {
		t.Skip("fuse device is not available")
	}
}

func testConfig() *types.Config {
	return &types.Config{
		Fs: &types.FilesystemConfig{
			EntryTimeout: time.Second * 3,
		},
	}
}

func TestMount(t *testing.T) {
	requireFuse(t)
	mountPath := "./_test/mnt"

	err := osutils.EnsureDir(mountPath)
	if err != nil {
		t.Fatal(err)
	}

	fs, err := Mount(&testRoot{}, mountPath, testConfig())
	if err != nil {
		t.Fatal(err)
	}
	defer fs.Unmount()

	data, err := os.ReadFile("./_test/mnt/file.txt")
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "Hello fuse!" {
		t.Fatalf("Invalid file content %q", string(data))
	}
}

func TestNode(t *testing.T) {
	requireFuse(t)
	ctx := context.Background()

	files := map[string]string{
		"/dir0/file0.txt":  "Hello, I am from dir0/file0!\nNext line\n\n",
		"/dir0/file1.txt":  "Hello, file1, I love coding!\n",
		"/dir0/empty_file": "",
		"/dir1/file":       "Hello, dbfs!",
		"/file.txt":        "I am a file from root path",
		"/README.md":       "This is a test filesystem\n\nPlease check sub directory\n",
	}
	prov := provider.NewAfero(afero.NewMemMapFs())
	for name, content := range files {
		err := prov.WriteFile(ctx, name, []byte(content))
		if err != nil {
			t.Fatal(err)
		}
	}
	err := prov.MkdirAll(ctx, "/dir1/empty_dir")
	if err != nil {
		t.Fatal(err)
	}

	root, err := NewRoot(ctx, prov, time.Second)
	if err != nil {
		t.Fatal(err)
	}

	mountPath, err := filepath.Abs("_test/node")
	if err != nil {
		t.Fatal(err)
	}
	err = Prepare(mountPath)
	if err != nil {
		t.Fatal(err)
	}

	fs, err := Mount(root, mountPath, testConfig())
	if err != nil {
		t.Fatal(err)
	}
	defer fs.Unmount()

	if status, _ := GetStatus(mountPath); status != StatusMounted {
		t.Fatalf("Unexpect status %q", status)
	}

	for name, content := range files {
		data, err := os.ReadFile(filepath.Join(mountPath, name))
		if err != nil {
			t.Fatalf("Read %q: %v", name, err)
		}
		if string(data) != content {
			t.Fatalf("Unexpect content %q of %q", data, name)
		}
	}

	osEnts, err := os.ReadDir(filepath.Join(mountPath, "dir1"))
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, ent := range osEnts {
		names = append(names, ent.Name())
	}
	sort.Strings(names)
	if !reflect.DeepEqual(names, []string{"empty_dir", "file"}) {
		t.Fatalf("Unexpect entries %v", names)
	}

	_, err = os.Stat(filepath.Join(mountPath, "missing"))
	if !os.IsNotExist(err) {
		t.Fatalf("Expect not exist, get: %v", err)
	}

	err = os.WriteFile(filepath.Join(mountPath, "new.txt"), []byte("x"), 0644)
	if err == nil {
		t.Fatal("Expect the view to be read-only")
	}
}

func listNames(t *testing.T, n *Node) []string {
	ents, err := n.listSubEntries(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	names := make([]string, len(ents))
	for i, ent := range ents {
		names[i] = ent.Name
	}
	return names
}

func TestNodeRefresh(t *testing.T) {
	ctx := context.Background()

	prov := provider.NewAfero(afero.NewMemMapFs())
	err := prov.WriteFile(ctx, "/mnt/a/file", []byte("a"))
	if err != nil {
		t.Fatal(err)
	}

	root, err := NewRoot(ctx, prov, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	sub := newNode(&types.Entry{Path: "/mnt", Name: "mnt", IsDir: true}, root.tree)

	if names := listNames(t, sub); !reflect.DeepEqual(names, []string{"a"}) {
		t.Fatalf("Unexpect entries %v", names)
	}

	err = prov.MkdirAll(ctx, "/mnt/b")
	if err != nil {
		t.Fatal(err)
	}
	if names := listNames(t, sub); !reflect.DeepEqual(names, []string{"a"}) {
		t.Fatalf("Expect listing to be cached, get %v", names)
	}

	refresh := make(chan events.Event)
	done := make(chan struct{})
	defer close(done)
	go watchRefresh(root, refresh, done)

	// Unknown event types keep the cache.
	refresh <- events.Event{Type: "noop"}
	if names := listNames(t, sub); !reflect.DeepEqual(names, []string{"a"}) {
		t.Fatalf("Expect listing to be cached, get %v", names)
	}

	refresh <- events.Event{Type: events.EventMount, MountPoint: "/mnt/b"}
	deadline := time.Now().Add(time.Second * 3)
	for {
		names := listNames(t, sub)
		if reflect.DeepEqual(names, []string{"a", "b"}) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("Expect mount event to drop the listing, get %v", names)
		}
		time.Sleep(time.Millisecond * 10)
	}
}
