package storage

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fioncat/dbutils/osutils"
	"golang.org/x/crypto/nacl/secretbox"
)

const (
	secretKeySize   = 32
	secretNonceSize = 24
)

// sealer encrypts secret values at rest. A sealed value is the random
// nonce followed by the secretbox output.
type sealer struct {
	key [secretKeySize]byte
}

func newSealer(key [secretKeySize]byte) *sealer {
	return &sealer{key: key}
}

func (s *sealer) seal(value []byte) ([]byte, error) {
	var nonce [secretNonceSize]byte
	_, err := io.ReadFull(rand.Reader, nonce[:])
	if err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], value, &nonce, &s.key), nil
}

func (s *sealer) open(data []byte) ([]byte, error) {
	if len(data) < secretNonceSize+secretbox.Overhead {
		return nil, errors.New("sealed secret is too short")
	}
	var nonce [secretNonceSize]byte
	copy(nonce[:], data[:secretNonceSize])
	value, ok := secretbox.Open(nil, data[secretNonceSize:], &nonce, &s.key)
	if !ok {
		return nil, errors.New("could not open sealed secret, the secret key may have changed")
	}
	return value, nil
}

// loadSecretKey reads the key file, generating it on first use.
func loadSecretKey(path string) ([secretKeySize]byte, error) {
	var key [secretKeySize]byte
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if len(data) != secretKeySize {
			return key, fmt.Errorf("secret key file %q has %d bytes, expect %d", path, len(data), secretKeySize)
		}
		copy(key[:], data)
		return key, nil

	case os.IsNotExist(err):
		_, err = io.ReadFull(rand.Reader, key[:])
		if err != nil {
			return key, fmt.Errorf("generate secret key: %w", err)
		}
		err = osutils.EnsureFilePathDir(path)
		if err != nil {
			return key, err
		}
		err = os.WriteFile(path, key[:], 0600)
		if err != nil {
			return key, fmt.Errorf("write secret key file: %w", err)
		}
		return key, nil

	default:
		return key, fmt.Errorf("read secret key file: %w", err)
	}
}
