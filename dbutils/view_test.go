package dbutils

import (
	"context"
	"errors"
	"reflect"
	"sort"
	"testing"

	"github.com/fioncat/dbutils/types"
)

func TestView(t *testing.T) {
	ws := newTestWorkspace(t)
	u := newTestUtils(t, ws)
	ctx := context.Background()

	err := u.FS().Mount(ctx, "s3://bucket", "/mnt/lake", MountOptions{})
	if err != nil {
		t.Fatal(err)
	}
	writeTestFiles(t, u, map[string]string{
		"/tmp/a.txt":           "a",
		"/mnt/lake/events.csv": "id\n1\n",
	})

	view := u.FS().View()
	if _, ok := view.(types.WritableProvider); ok {
		t.Fatal("The view must be read-only")
	}

	ents, err := view.ReadDir(ctx, "/")
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, ent := range ents {
		names = append(names, ent.Name)
	}
	sort.Strings(names)
	if !reflect.DeepEqual(names, []string{"mnt", "tmp"}) {
		t.Fatalf("Unexpect root entries %v", names)
	}

	data, err := view.ReadFile(ctx, "/mnt/lake/events.csv", 0)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "id\n1\n" {
		t.Fatalf("Unexpect content %q", data)
	}

	ent, err := view.Stat(ctx, "/mnt/lake")
	if err != nil {
		t.Fatal(err)
	}
	if !ent.IsDir || ent.Path != "/mnt/lake" {
		t.Fatalf("Unexpect mount root entry %+v", ent)
	}

	_, err = view.Stat(ctx, "/tmp/missing")
	if !errors.Is(err, types.ErrNotFound) {
		t.Fatalf("Expect not found, get: %v", err)
	}
}
