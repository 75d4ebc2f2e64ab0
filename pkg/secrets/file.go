package secrets

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/nacl/secretbox"
)

const (
	nonceSize  = 24
	keySize    = 32
	kdfTime    = 1
	kdfMemory  = 64 * 1024
	kdfThreads = 2
)

// fileStore seals a JSON map with secretbox under a key derived by Argon2id from
// the passphrase, salted with the machine id.
type fileStore struct {
	mu   sync.Mutex
	path string
	key  [keySize]byte
}

// NewFile returns a Store persisted to path. An empty passphrase falls back to the
// machine id so the file is still bound to this device.
func NewFile(path, passphrase, machineID string) (Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("secrets file path is required")
	}
	if passphrase == "" {
		passphrase = machineID
	}
	if passphrase == "" {
		return nil, fmt.Errorf("secrets file requires a passphrase or machine id")
	}
	salt := sha256.Sum256([]byte("pos-secrets:" + machineID))
	derived := argon2.IDKey([]byte(passphrase), salt[:16], kdfTime, kdfMemory, kdfThreads, keySize)

	s := &fileStore{path: path}
	copy(s.key[:], derived)
	return s, nil
}

func (s *fileStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	values, err := s.load()
	if err != nil {
		return "", err
	}
	v, ok := values[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (s *fileStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	values, err := s.load()
	if err != nil {
		return err
	}
	values[key] = value
	return s.save(values)
}

func (s *fileStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	values, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := values[key]; !ok {
		return nil
	}
	delete(values, key)
	return s.save(values)
}

func (s *fileStore) load() (map[string]string, error) {
	sealed, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read secrets file: %w", err)
	}
	if len(sealed) < nonceSize {
		return nil, fmt.Errorf("secrets file is truncated")
	}
	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])
	plain, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, &s.key)
	if !ok {
		return nil, fmt.Errorf("secrets file cannot be decrypted with this key")
	}
	values := map[string]string{}
	if err := json.Unmarshal(plain, &values); err != nil {
		return nil, fmt.Errorf("decode secrets file: %w", err)
	}
	return values, nil
}

func (s *fileStore) save(values map[string]string) error {
	plain, err := json.Marshal(values)
	if err != nil {
		return err
	}
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return fmt.Errorf("generate nonce: %w", err)
	}
	sealed := secretbox.Seal(nonce[:], plain, &nonce, &s.key)

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".secrets-*")
	if err != nil {
		return fmt.Errorf("create temp secrets file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(sealed); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write secrets file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace secrets file: %w", err)
	}
	return nil
}
