package secretstore

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	badger "github.com/dgraph-io/badger/v4"
)

// Store is a small Badger KV wrapper holding key material.
// Values are stored as written; the data directory is expected to be private to the process.
type Store struct {
	db *badger.DB
}

type OpenOptions struct {
	Path     string
	ReadOnly bool
	InMemory bool // tests only; Path is ignored
}

func Open(opts OpenOptions) (*Store, error) {
	if !opts.InMemory && strings.TrimSpace(opts.Path) == "" {
		return nil, errors.New("secretstore: path is required")
	}
	var bopts badger.Options
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		bopts = badger.DefaultOptions(opts.Path).WithReadOnly(opts.ReadOnly)
	}
	bopts = bopts.WithLogger(nil)
	db, err := badger.Open(bopts)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func normalizeKey(key string) ([]byte, error) {
	k := []byte(strings.TrimSpace(key))
	if len(k) == 0 {
		return nil, errors.New("secretstore: key is empty")
	}
	return k, nil
}

// Get returns a copy of the stored value. found is false when the key is absent.
func (s *Store) Get(key string) (val []byte, found bool, err error) {
	if s == nil || s.db == nil {
		return nil, false, errors.New("secretstore: not opened")
	}
	k, err := normalizeKey(key)
	if err != nil {
		return nil, false, err
	}
	err = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(k)
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		found = true
		val, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return val, found, nil
}

func (s *Store) Set(key string, val []byte) error {
	if s == nil || s.db == nil {
		return errors.New("secretstore: not opened")
	}
	k, err := normalizeKey(key)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(k, val)
	})
}

func (s *Store) GetString(key string) (string, bool, error) {
	b, found, err := s.Get(key)
	return string(b), found, err
}

func (s *Store) SetString(key string, val string) error {
	return s.Set(key, []byte(val))
}

// LoadOrCreateKey returns the 32-byte key stored under name, generating and
// persisting a random one on first use.
func (s *Store) LoadOrCreateKey(name string) ([]byte, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("secretstore: not opened")
	}
	k, err := normalizeKey(name)
	if err != nil {
		return nil, err
	}
	var out []byte
	err = s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(k)
		if err == nil {
			out, err = item.ValueCopy(nil)
			return err
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		fresh := make([]byte, 32)
		if _, err := rand.Read(fresh); err != nil {
			return err
		}
		out = fresh
		return txn.Set(k, fresh)
	})
	if err != nil {
		return nil, err
	}
	if len(out) != 32 {
		return nil, fmt.Errorf("secretstore: key %q has length %d, want 32", name, len(out))
	}
	return out, nil
}

// ParseKey expects 32 bytes (base64 or hex). Returns nil if input is empty.
func ParseKey(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	// Prefer hex so a 64-char hex string is never read as base64.
	rawHex := strings.TrimPrefix(raw, "0x")
	if b, err := hex.DecodeString(rawHex); err == nil {
		if len(b) == 32 {
			return b, nil
		}
		return nil, fmt.Errorf("decoded key length must be 32, got %d", len(b))
	}
	if b, err := base64.StdEncoding.DecodeString(raw); err == nil {
		if len(b) != 32 {
			return nil, fmt.Errorf("decoded key length must be 32, got %d", len(b))
		}
		return b, nil
	}
	return nil, errors.New("key must be base64(32 bytes) or hex(32 bytes)")
}
