package storage

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/fioncat/dbutils/types"
)

func openTestBolt(t *testing.T) *Bolt {
	dir := t.TempDir()
	db, err := OpenBolt(&types.Config{
		BaseDir:         dir,
		SecretKeyPath:   filepath.Join(dir, "keys", "secret.key"),
		OpenBoltTimeout: time.Second * 3,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func buildTestMount(i int) *types.MountRecord {
	return &types.MountRecord{
		MountPoint: fmt.Sprintf("/mnt/mount-%d", i),
		Source:     fmt.Sprintf("s3://bucket-%d/prefix", i),
		ExtraConfigs: map[string]string{
			"region": fmt.Sprintf("region-%d", i),
		},
		CreateTime: int64(i),
	}
}

func TestBoltMounts(t *testing.T) {
	db := openTestBolt(t)

	count := 30
	for i := 0; i < count; i++ {
		err := db.PutMount(buildTestMount(i))
		if err != nil {
			t.Fatal(err)
		}
	}

	for i := 0; i < count; i++ {
		expect := buildTestMount(i)
		rec, err := db.GetMount(expect.MountPoint)
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(rec, expect) {
			t.Fatalf("Unexpect mount from bolt: %+v, expect %+v", rec, expect)
		}
	}

	recs, err := db.ListMounts()
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != count {
		t.Fatalf("Unexpect list count %d, expect %d", len(recs), count)
	}

	err = db.RemoveMount(buildTestMount(10).MountPoint)
	if err != nil {
		t.Fatal(err)
	}

	recs, err = db.ListMounts()
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != count-1 {
		t.Fatalf("Unexpect list count %d, expect %d", len(recs), count-1)
	}

	_, err = db.GetMount(buildTestMount(10).MountPoint)
	if !errors.Is(err, types.ErrNotFound) {
		t.Fatalf("Expect err to be not found, get: %v", err)
	}

	err = db.PutMount(&types.MountRecord{MountPoint: "/data/x", Source: "s3://bucket"})
	if !errors.Is(err, types.ErrInvalidArgument) {
		t.Fatalf("Expect invalid mount point to be rejected, get: %v", err)
	}
}

func TestBoltSecrets(t *testing.T) {
	db := openTestBolt(t)

	_, err := db.ListSecrets("missing")
	if !errors.Is(err, types.ErrNotFound) {
		t.Fatalf("Expect not found, get: %v", err)
	}

	err = db.CreateScope("jdbc")
	if err != nil {
		t.Fatal(err)
	}
	err = db.CreateScope("jdbc")
	if !errors.Is(err, types.ErrAlreadyExists) {
		t.Fatalf("Expect already exists, get: %v", err)
	}

	err = db.PutSecret("jdbc", "password", []byte("p@ss"))
	if err != nil {
		t.Fatal(err)
	}
	err = db.PutSecret("jdbc", "username", []byte("admin"))
	if err != nil {
		t.Fatal(err)
	}

	value, err := db.GetSecret("jdbc", "password")
	if err != nil {
		t.Fatal(err)
	}
	if string(value) != "p@ss" {
		t.Fatalf("Unexpect secret value %q", value)
	}

	metas, err := db.ListSecrets("jdbc")
	if err != nil {
		t.Fatal(err)
	}
	expect := []*types.SecretMetadata{{Key: "password"}, {Key: "username"}}
	if !reflect.DeepEqual(metas, expect) {
		t.Fatalf("Unexpect secret metadata %+v", metas)
	}

	_, err = db.GetSecret("jdbc", "token")
	if !errors.Is(err, types.ErrNotFound) {
		t.Fatalf("Expect not found, get: %v", err)
	}

	err = db.DeleteSecret("jdbc", "username")
	if err != nil {
		t.Fatal(err)
	}

	scopes, err := db.ListScopes()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(scopes, []*types.SecretScope{{Name: "jdbc"}}) {
		t.Fatalf("Unexpect scopes %+v", scopes)
	}

	err = db.DeleteScope("jdbc")
	if err != nil {
		t.Fatal(err)
	}
	err = db.DeleteScope("jdbc")
	if !errors.Is(err, types.ErrNotFound) {
		t.Fatalf("Expect not found, get: %v", err)
	}
}

func TestBoltSecretSealedAtRest(t *testing.T) {
	db := openTestBolt(t)

	err := db.CreateScope("s")
	if err != nil {
		t.Fatal(err)
	}
	err = db.PutSecret("s", "k", []byte("plain-value"))
	if err != nil {
		t.Fatal(err)
	}

	raw, err := db.sealer.seal([]byte("plain-value"))
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(raw, []byte("plain-value")) {
		t.Fatal("Sealed value contains the plain text")
	}
	opened, err := db.sealer.open(raw)
	if err != nil {
		t.Fatal(err)
	}
	if string(opened) != "plain-value" {
		t.Fatalf("Unexpect opened value %q", opened)
	}

	raw[len(raw)-1] ^= 0xff
	_, err = db.sealer.open(raw)
	if err == nil {
		t.Fatal("Expect tampered value to fail")
	}
}

func TestBoltWidgets(t *testing.T) {
	db := openTestBolt(t)

	w := &types.WidgetDefinition{
		Name:         "env",
		Kind:         types.WidgetDropdown,
		DefaultValue: "dev",
		Value:        "dev",
		Choices:      []string{"dev", "prod"},
	}
	err := db.PutWidget("session-a", w)
	if err != nil {
		t.Fatal(err)
	}

	got, err := db.GetWidget("session-a", "env")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, w) {
		t.Fatalf("Unexpect widget %+v", got)
	}

	_, err = db.GetWidget("session-b", "env")
	if !errors.Is(err, types.ErrNotFound) {
		t.Fatalf("Widgets must be scoped by session, get: %v", err)
	}

	err = db.RemoveWidget("session-a", "missing")
	if !errors.Is(err, types.ErrNotFound) {
		t.Fatalf("Expect not found, get: %v", err)
	}

	err = db.RemoveAllWidgets("session-a")
	if err != nil {
		t.Fatal(err)
	}
	err = db.RemoveAllWidgets("session-a")
	if err != nil {
		t.Fatal(err)
	}
	widgets, err := db.ListWidgets("session-a")
	if err != nil {
		t.Fatal(err)
	}
	if len(widgets) != 0 {
		t.Fatalf("Expect no widgets, get %d", len(widgets))
	}
}

func TestBoltLibrariesOrder(t *testing.T) {
	db := openTestBolt(t)

	expect := make([]*types.Library, 12)
	for i := range expect {
		expect[i] = &types.Library{
			Kind:    types.LibraryPyPI,
			Project: fmt.Sprintf("project-%d", i),
		}
		err := db.AddLibrary("s", expect[i])
		if err != nil {
			t.Fatal(err)
		}
	}

	libs, err := db.ListLibraries("s")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(libs, expect) {
		t.Fatalf("Unexpect libraries order %+v", libs)
	}

	err = db.ClearLibraries("s")
	if err != nil {
		t.Fatal(err)
	}
	libs, err = db.ListLibraries("s")
	if err != nil {
		t.Fatal(err)
	}
	if len(libs) != 0 {
		t.Fatalf("Expect no libraries, get %d", len(libs))
	}
}

func TestBoltTaskValues(t *testing.T) {
	db := openTestBolt(t)

	err := db.PutTaskValue("run-1", "ingest", "rows", []byte("42"))
	if err != nil {
		t.Fatal(err)
	}

	data, err := db.GetTaskValue("run-1", "ingest", "rows")
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "42" {
		t.Fatalf("Unexpect task value %q", data)
	}

	_, err = db.GetTaskValue("run-2", "ingest", "rows")
	if !errors.Is(err, types.ErrNotFound) {
		t.Fatalf("Task values must be scoped by run, get: %v", err)
	}
}

func TestBoltTaskValueKeysDistinct(t *testing.T) {
	db := openTestBolt(t)

	err := db.PutTaskValue("a", "b\x00c", "k", []byte("1"))
	if err != nil {
		t.Fatal(err)
	}
	err = db.PutTaskValue("a", "b", "c\x00k", []byte("2"))
	if err != nil {
		t.Fatal(err)
	}

	data, err := db.GetTaskValue("a", "b\x00c", "k")
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "1" {
		t.Fatalf("Task values with NUL in keys must not collide, get %q", data)
	}
	data, err = db.GetTaskValue("a", "b", "c\x00k")
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "2" {
		t.Fatalf("Unexpect task value %q", data)
	}
}
