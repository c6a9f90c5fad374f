package dbutils

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fioncat/dbutils/provider"
	"github.com/fioncat/dbutils/storage"
	"github.com/fioncat/dbutils/types"
	"github.com/spf13/afero"
)

type testAssumer struct {
	mu    sync.Mutex
	calls []string
}

func (a *testAssumer) AssumeRole(_ context.Context, role, session string) (map[string]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, role)
	return map[string]string{
		"role":        role,
		"accessKeyId": "AKIA" + strings.ToUpper(session[:4]),
	}, nil
}

// testSources serves mount sources from in-memory filesystems keyed by
// source URI.
type testSources struct {
	mu  sync.Mutex
	fss map[string]types.Provider
}

func (s *testSources) load(_ context.Context, source, _ string, _ map[string]string) (*provider.Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prov, ok := s.fss[source]
	if !ok {
		prov = provider.NewAfero(afero.NewMemMapFs())
		s.fss[source] = prov
	}
	return &provider.Source{Provider: prov, Root: "/"}, nil
}

func (s *testSources) get(source string) types.Provider {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fss[source]
}

type testWorkspace struct {
	*Workspace

	assumer *testAssumer
	sources *testSources
}

func newTestWorkspace(t *testing.T) *testWorkspace {
	dir := t.TempDir()
	cfg := &types.Config{
		BaseDir:         dir,
		SecretKeyPath:   filepath.Join(dir, "secret.key"),
		OpenBoltTimeout: time.Second * 3,
		MountCacheTTL:   time.Minute,
		S3:              &types.S3Config{},
		Credentials: &types.CredentialsConfig{
			Roles: []string{"arn:aws:iam::123456789012:role/reader", "arn:aws:iam::123456789012:role/writer"},
		},
		Auths: make(types.Auths),
	}
	db, err := storage.OpenBolt(cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	ws := NewWorkspace(cfg, db, afero.NewMemMapFs())
	assumer := &testAssumer{}
	ws.Assumer = assumer
	sources := &testSources{fss: make(map[string]types.Provider)}
	ws.LoadSource = sources.load

	return &testWorkspace{Workspace: ws, assumer: assumer, sources: sources}
}

func newTestUtils(t *testing.T, ws *testWorkspace, opts ...Option) *DBUtils {
	u := New(ws.Workspace, opts...)
	t.Cleanup(u.Close)
	return u
}

func TestAccessorsStable(t *testing.T) {
	ws := newTestWorkspace(t)
	u := newTestUtils(t, ws)

	if u.FS() != u.FS() || u.Jobs() != u.Jobs() || u.Notebook() != u.Notebook() ||
		u.Secrets() != u.Secrets() || u.Widgets() != u.Widgets() ||
		u.Credentials() != u.Credentials() || u.Library() != u.Library() || u.Data() != u.Data() {
		t.Fatal("Accessors must return the same group every time")
	}
	if u.Jobs().TaskValues() != u.Jobs().TaskValues() {
		t.Fatal("TaskValues must return the same group every time")
	}
	if u.Session() == "" {
		t.Fatal("Expect a generated session")
	}

	other := newTestUtils(t, ws, WithSession("fixed"))
	if other.Session() != "fixed" {
		t.Fatalf("Unexpect session %q", other.Session())
	}
}

func TestHelp(t *testing.T) {
	ws := newTestWorkspace(t)
	u := newTestUtils(t, ws)

	overview := u.Help("")
	for _, group := range []string{"fs", "secrets", "widgets", "notebook", "jobs", "credentials", "library", "data"} {
		if !strings.Contains(overview, group+":") {
			t.Fatalf("Overview misses group %q: %s", group, overview)
		}
	}

	testCases := []struct {
		help   string
		expect string
	}{
		{help: u.Help("fs"), expect: "mkdirs("},
		{help: u.Help("fs.head"), expect: "maxBytes"},
		{help: u.Help("jobs.taskValues"), expect: "debugValue"},
		{help: u.Help("jobs.taskValues.set"), expect: "set(key, value)"},
		{help: u.FS().Help("mounts"), expect: "mounts()"},
		{help: u.Secrets().Help(""), expect: "listScopes()"},
		{help: u.Widgets().Help("getArgument"), expect: "defaultValue"},
		{help: u.Help("nothing"), expect: `No help available for method "nothing".`},
		{help: u.Help("fs.bogus"), expect: `No help available for method "fs.bogus".`},
		{help: u.Help("jobs.taskValues.bogus"), expect: `No help available for method "jobs.taskValues.bogus".`},
		{help: u.Data().Help("nothing"), expect: `No help available for method "nothing".`},
	}
	for i, tc := range testCases {
		if !strings.Contains(tc.help, tc.expect) {
			t.Fatalf("Help %q does not contain %q, index %d", tc.help, tc.expect, i)
		}
	}
}

func TestCredentials(t *testing.T) {
	ws := newTestWorkspace(t)
	u := newTestUtils(t, ws)
	ctx := context.Background()
	creds := u.Credentials()

	roles, err := creds.ShowRoles(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(roles) != 2 {
		t.Fatalf("Unexpect roles %v", roles)
	}

	current, err := creds.ShowCurrentRole(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(current) != 0 {
		t.Fatalf("Expect no current role, get %v", current)
	}

	_, err = creds.GetCurrentCredentials(ctx)
	if !errors.Is(err, types.ErrNotFound) {
		t.Fatalf("Expect not found without a role, get: %v", err)
	}

	err = creds.AssumeRole(ctx, "arn:aws:iam::123456789012:role/admin")
	if !errors.Is(err, types.ErrNotFound) {
		t.Fatalf("Expect unknown role to be not found, get: %v", err)
	}

	err = creds.AssumeRole(ctx, roles[1])
	if err != nil {
		t.Fatal(err)
	}
	current, err = creds.ShowCurrentRole(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(current) != 1 || current[0] != roles[1] {
		t.Fatalf("Unexpect current role %v", current)
	}

	values, err := creds.GetCurrentCredentials(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if values["role"] != roles[1] {
		t.Fatalf("Unexpect credentials %v", values)
	}

	// The role belongs to one facade only.
	other := newTestUtils(t, ws)
	current, err = other.Credentials().ShowCurrentRole(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(current) != 0 {
		t.Fatalf("Role leaked to another facade: %v", current)
	}
}

func writeTestFiles(t *testing.T, u *DBUtils, files map[string]string) {
	for name, content := range files {
		err := u.FS().Put(context.Background(), name, content, true)
		if err != nil {
			t.Fatal(fmt.Errorf("put %q: %w", name, err))
		}
	}
}
