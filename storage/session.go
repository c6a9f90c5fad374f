package storage

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fioncat/dbutils/types"
	bolt "go.etcd.io/bbolt"
)

func (b *Bolt) PutWidget(session string, w *types.WidgetDefinition) error {
	data, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("encode widget to json: %w", err)
	}
	err = b.db.Update(func(tx *bolt.Tx) error {
		bucket, err := tx.Bucket([]byte(boltWidgetBucketName)).CreateBucketIfNotExists([]byte(session))
		if err != nil {
			return err
		}
		return bucket.Put([]byte(w.Name), data)
	})
	if err != nil {
		return fmt.Errorf("put widget: %w", err)
	}
	return nil
}

func (b *Bolt) GetWidget(session, name string) (*types.WidgetDefinition, error) {
	var data []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(boltWidgetBucketName)).Bucket([]byte(session))
		if bucket != nil {
			data = copyBytes(bucket.Get([]byte(name)))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get widget: %w", err)
	}
	if data == nil {
		return nil, fmt.Errorf("%w: widget %q", types.ErrNotFound, name)
	}

	var w types.WidgetDefinition
	err = json.Unmarshal(data, &w)
	if err != nil {
		return nil, fmt.Errorf("decode widget %q: %w", name, err)
	}
	return &w, nil
}

func (b *Bolt) ListWidgets(session string) ([]*types.WidgetDefinition, error) {
	var widgets []*types.WidgetDefinition
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(boltWidgetBucketName)).Bucket([]byte(session))
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(key, data []byte) error {
			var w types.WidgetDefinition
			err := json.Unmarshal(data, &w)
			if err != nil {
				return fmt.Errorf("decode widget %q: %w", string(key), err)
			}
			widgets = append(widgets, &w)
			return nil
		})
	})
	return widgets, err
}

func (b *Bolt) RemoveWidget(session, name string) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(boltWidgetBucketName)).Bucket([]byte(session))
		if bucket == nil || bucket.Get([]byte(name)) == nil {
			return fmt.Errorf("%w: widget %q", types.ErrNotFound, name)
		}
		return bucket.Delete([]byte(name))
	})
	if err != nil {
		return fmt.Errorf("remove widget: %w", err)
	}
	return nil
}

func (b *Bolt) RemoveAllWidgets(session string) error {
	return b.deleteSessionBucket(boltWidgetBucketName, session)
}

func (b *Bolt) AddLibrary(session string, lib *types.Library) error {
	data, err := json.Marshal(lib)
	if err != nil {
		return fmt.Errorf("encode library to json: %w", err)
	}
	err = b.db.Update(func(tx *bolt.Tx) error {
		bucket, err := tx.Bucket([]byte(boltLibraryBucketName)).CreateBucketIfNotExists([]byte(session))
		if err != nil {
			return err
		}
		// Sequence keys keep the install order.
		seq, err := bucket.NextSequence()
		if err != nil {
			return err
		}
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)
		return bucket.Put(key, data)
	})
	if err != nil {
		return fmt.Errorf("add library: %w", err)
	}
	return nil
}

func (b *Bolt) ListLibraries(session string) ([]*types.Library, error) {
	var libs []*types.Library
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(boltLibraryBucketName)).Bucket([]byte(session))
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(_, data []byte) error {
			var lib types.Library
			err := json.Unmarshal(data, &lib)
			if err != nil {
				return fmt.Errorf("decode library: %w", err)
			}
			libs = append(libs, &lib)
			return nil
		})
	})
	return libs, err
}

func (b *Bolt) ClearLibraries(session string) error {
	return b.deleteSessionBucket(boltLibraryBucketName, session)
}

func (b *Bolt) PutTaskValue(runID, taskKey, key string, data []byte) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(boltTaskValueBucketName))
		return bucket.Put(taskValueKey(runID, taskKey, key), data)
	})
	if err != nil {
		return fmt.Errorf("put task value: %w", err)
	}
	return nil
}

func (b *Bolt) GetTaskValue(runID, taskKey, key string) ([]byte, error) {
	var data []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(boltTaskValueBucketName))
		data = copyBytes(bucket.Get(taskValueKey(runID, taskKey, key)))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get task value: %w", err)
	}
	if data == nil {
		return nil, fmt.Errorf("%w: task value %q of task %q", types.ErrNotFound, key, taskKey)
	}
	return data, nil
}

func (b *Bolt) deleteSessionBucket(parent, session string) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		err := tx.Bucket([]byte(parent)).DeleteBucket([]byte(session))
		if errors.Is(err, bolt.ErrBucketNotFound) {
			return nil
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("delete %s of session %q: %w", parent, session, err)
	}
	return nil
}

// taskValueKey prefixes every part with its length, so no two part
// tuples share a key whatever bytes they hold.
func taskValueKey(runID, taskKey, key string) []byte {
	buf := make([]byte, 0, len(runID)+len(taskKey)+len(key)+3*binary.MaxVarintLen64)
	for _, part := range []string{runID, taskKey, key} {
		buf = binary.AppendUvarint(buf, uint64(len(part)))
		buf = append(buf, part...)
	}
	return buf
}
