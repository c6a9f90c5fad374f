package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/fioncat/dbutils/types"
	bolt "go.etcd.io/bbolt"
)

const (
	boltMountBucketName     = "mounts"
	boltSecretBucketName    = "secrets"
	boltWidgetBucketName    = "widgets"
	boltTaskValueBucketName = "taskvalues"
	boltLibraryBucketName   = "libraries"
)

var boltBuckets = []string{
	boltMountBucketName,
	boltSecretBucketName,
	boltWidgetBucketName,
	boltTaskValueBucketName,
	boltLibraryBucketName,
}

// Bolt is the metadata service of a workspace. It implements every store
// interface declared in types.
type Bolt struct {
	db *bolt.DB

	sealer *sealer
}

var (
	_ types.MountTable     = (*Bolt)(nil)
	_ types.SecretStore    = (*Bolt)(nil)
	_ types.WidgetStore    = (*Bolt)(nil)
	_ types.TaskValueStore = (*Bolt)(nil)
	_ types.LibraryStore   = (*Bolt)(nil)
)

func OpenBolt(cfg *types.Config) (*Bolt, error) {
	key, err := loadSecretKey(cfg.SecretKeyPath)
	if err != nil {
		return nil, err
	}

	path := filepath.Join(cfg.BaseDir, "metadata.db")
	db, err := bolt.Open(path, 0644, &bolt.Options{
		Timeout: cfg.OpenBoltTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("open boltdb: %w", err)
	}

	for _, name := range boltBuckets {
		err = ensureBoltBucket(db, []byte(name))
		if err != nil {
			db.Close()
			return nil, err
		}
	}

	return &Bolt{
		db:     db,
		sealer: newSealer(key),
	}, nil
}

func ensureBoltBucket(db *bolt.DB, bucket []byte) error {
	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucket)
		return err
	})
	if err != nil {
		return fmt.Errorf("ensure bolt bucket %q: %v", string(bucket), err)
	}
	return nil
}

func (b *Bolt) Close() error {
	return b.db.Close()
}

func (b *Bolt) PutMount(rec *types.MountRecord) error {
	err := rec.Validate()
	if err != nil {
		return err
	}

	key := []byte(rec.MountPoint)
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode mount to json: %w", err)
	}

	err = b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(boltMountBucketName))
		return bucket.Put(key, data)
	})
	if err != nil {
		return fmt.Errorf("boltdb put: %w", err)
	}

	return nil
}

func (b *Bolt) GetMount(mountPoint string) (*types.MountRecord, error) {
	key := []byte(mountPoint)

	var data []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(boltMountBucketName))
		// The slice is only valid inside the transaction.
		data = copyBytes(bucket.Get(key))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("boltdb get: %w", err)
	}

	if len(data) == 0 {
		return nil, fmt.Errorf("%w: mount point %q", types.ErrNotFound, mountPoint)
	}

	return decodeMount(data)
}

func (b *Bolt) ListMounts() ([]*types.MountRecord, error) {
	var recs []*types.MountRecord
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(boltMountBucketName))
		cursor := bucket.Cursor()
		for key, data := cursor.First(); key != nil; key, data = cursor.Next() {
			rec, err := decodeMount(data)
			if err != nil {
				return fmt.Errorf("decode mount %q: %w", string(key), err)
			}
			recs = append(recs, rec)
		}
		return nil
	})
	return recs, err
}

func (b *Bolt) RemoveMount(mountPoint string) error {
	key := []byte(mountPoint)
	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(boltMountBucketName))
		return bucket.Delete(key)
	})
	if err != nil {
		return fmt.Errorf("delete boltdb: %w", err)
	}

	return nil
}

func decodeMount(data []byte) (*types.MountRecord, error) {
	var rec types.MountRecord
	err := json.Unmarshal(data, &rec)
	if err != nil {
		return nil, fmt.Errorf("decode mount json in metadata: %w", err)
	}

	err = rec.Validate()
	if err != nil {
		return nil, fmt.Errorf("validate mount in metadata: %w", err)
	}

	return &rec, nil
}

func copyBytes(data []byte) []byte {
	if data == nil {
		return nil
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out
}
