package types

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	path := "_test/not_exists.yaml"
	basedir := "_test/default_basedir"
	// The config file not exists, will use default config
	t.Setenv("DBUTILS_CONFIG_PATH", path)
	t.Setenv("DBUTILS_BASE_PATH", basedir)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatal(err)
	}

	expect := newDefaultConfig(path, basedir)

	if !reflect.DeepEqual(cfg, expect) {
		t.Fatalf("Unexpect config %+v, expect %+v", cfg, expect)
	}
	if cfg.DBFSRoot != filepath.Join(basedir, "dbfs") {
		t.Fatalf("Unexpect dbfs root %q", cfg.DBFSRoot)
	}
}

const testConfigYaml = `
openBoltTimeout: "20s"
dbfsRoot: "/data/dbfs"
mountCacheTTL: "30s"
fs:
  allowOthers: true
  entryTimeout: "120s"
  debug: true
s3:
  endpoint: "http://127.0.0.1:9000"
  region: "us-east-1"
  accessKey: "${DBUTILS_TEST_ACCESS_KEY}"
  secretKey: "minio-secret"
  usePathStyle: true
credentials:
  roles:
    - "arn:aws:iam::123456789012:role/reader"
    - "arn:aws:iam::123456789012:role/writer"
auths:
  github.com: "test-github-token"
  gitlab.com: "${DBUTILS_TEST_GITLAB_TOKEN}"
`

var testExpectConfig = &Config{
	OpenBoltTimeout: time.Second * 20,

	DBFSRoot:      "/data/dbfs",
	MountCacheTTL: time.Second * 30,

	Fs: &FilesystemConfig{
		AllowOthers:  true,
		EntryTimeout: time.Minute * 2,
		Debug:        true,
	},

	S3: &S3Config{
		Endpoint:     "http://127.0.0.1:9000",
		Region:       "us-east-1",
		AccessKey:    "minio-access",
		SecretKey:    "minio-secret",
		UsePathStyle: true,
	},

	Credentials: &CredentialsConfig{
		Roles: []string{
			"arn:aws:iam::123456789012:role/reader",
			"arn:aws:iam::123456789012:role/writer",
		},
	},

	Auths: Auths{
		"github.com": "test-github-token",
		"gitlab.com": "test-gitlab-token",
	},
}

func TestLoadConfig(t *testing.T) {
	path := "_test/config.yaml"
	basedir := "_test/basedir"

	t.Setenv("DBUTILS_CONFIG_PATH", path)
	t.Setenv("DBUTILS_BASE_PATH", basedir)
	t.Setenv("DBUTILS_TEST_ACCESS_KEY", "minio-access")
	t.Setenv("DBUTILS_TEST_GITLAB_TOKEN", "test-gitlab-token")

	err := os.MkdirAll("_test", 0755)
	if err != nil {
		t.Fatal(err)
	}
	err = os.WriteFile(path, []byte(testConfigYaml), 0644)
	if err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatal(err)
	}

	testExpectConfig.Path = path
	testExpectConfig.BaseDir = basedir
	testExpectConfig.SecretKeyPath = filepath.Join(basedir, "secret.key")

	if !reflect.DeepEqual(cfg, testExpectConfig) {
		t.Fatalf("Unexpect config %+v, expect %+v", cfg, testExpectConfig)
	}
}

func TestConfigInvalidDuration(t *testing.T) {
	cfg := &Config{MountCacheTTL: time.Millisecond}
	err := cfg.validate()
	if err == nil {
		t.Fatal("Expect mountCacheTTL validation error")
	}
}
