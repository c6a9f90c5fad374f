package storage

import (
	"errors"
	"fmt"

	"github.com/fioncat/dbutils/types"
	bolt "go.etcd.io/bbolt"
)

func (b *Bolt) CreateScope(scope string) error {
	if scope == "" {
		return fmt.Errorf("%w: secret scope name is empty", types.ErrInvalidArgument)
	}
	err := b.db.Update(func(tx *bolt.Tx) error {
		secrets := tx.Bucket([]byte(boltSecretBucketName))
		if secrets.Bucket([]byte(scope)) != nil {
			return fmt.Errorf("%w: secret scope %q", types.ErrAlreadyExists, scope)
		}
		_, err := secrets.CreateBucket([]byte(scope))
		return err
	})
	if err != nil {
		return fmt.Errorf("create secret scope: %w", err)
	}
	return nil
}

func (b *Bolt) DeleteScope(scope string) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		secrets := tx.Bucket([]byte(boltSecretBucketName))
		err := secrets.DeleteBucket([]byte(scope))
		if errors.Is(err, bolt.ErrBucketNotFound) {
			return fmt.Errorf("%w: secret scope %q", types.ErrNotFound, scope)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("delete secret scope: %w", err)
	}
	return nil
}

func (b *Bolt) ListScopes() ([]*types.SecretScope, error) {
	var scopes []*types.SecretScope
	err := b.db.View(func(tx *bolt.Tx) error {
		secrets := tx.Bucket([]byte(boltSecretBucketName))
		return secrets.ForEach(func(key, value []byte) error {
			// Nested buckets have a nil value.
			if value == nil {
				scopes = append(scopes, &types.SecretScope{Name: string(key)})
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list secret scopes: %w", err)
	}
	return scopes, nil
}

func (b *Bolt) PutSecret(scope, key string, value []byte) error {
	if key == "" {
		return fmt.Errorf("%w: secret key is empty", types.ErrInvalidArgument)
	}
	sealed, err := b.sealer.seal(value)
	if err != nil {
		return err
	}
	err = b.db.Update(func(tx *bolt.Tx) error {
		bucket, err := secretScopeBucket(tx, scope)
		if err != nil {
			return err
		}
		return bucket.Put([]byte(key), sealed)
	})
	if err != nil {
		return fmt.Errorf("put secret: %w", err)
	}
	return nil
}

func (b *Bolt) GetSecret(scope, key string) ([]byte, error) {
	var sealed []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket, err := secretScopeBucket(tx, scope)
		if err != nil {
			return err
		}
		sealed = copyBytes(bucket.Get([]byte(key)))
		if sealed == nil {
			return fmt.Errorf("%w: secret %q in scope %q", types.ErrNotFound, key, scope)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get secret: %w", err)
	}
	return b.sealer.open(sealed)
}

func (b *Bolt) DeleteSecret(scope, key string) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket, err := secretScopeBucket(tx, scope)
		if err != nil {
			return err
		}
		if bucket.Get([]byte(key)) == nil {
			return fmt.Errorf("%w: secret %q in scope %q", types.ErrNotFound, key, scope)
		}
		return bucket.Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("delete secret: %w", err)
	}
	return nil
}

func (b *Bolt) ListSecrets(scope string) ([]*types.SecretMetadata, error) {
	var metas []*types.SecretMetadata
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket, err := secretScopeBucket(tx, scope)
		if err != nil {
			return err
		}
		return bucket.ForEach(func(key, _ []byte) error {
			metas = append(metas, &types.SecretMetadata{Key: string(key)})
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list secrets: %w", err)
	}
	return metas, nil
}

func secretScopeBucket(tx *bolt.Tx, scope string) (*bolt.Bucket, error) {
	bucket := tx.Bucket([]byte(boltSecretBucketName)).Bucket([]byte(scope))
	if bucket == nil {
		return nil, fmt.Errorf("%w: secret scope %q", types.ErrNotFound, scope)
	}
	return bucket, nil
}
