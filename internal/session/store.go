// Package session persists opaque per-site browser session blobs (cookies)
// in a bbolt file. Blobs are loaded when a browser client starts and saved
// when it shuts down.
package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketSessions = []byte("sessions")

// ErrNotFound is returned when no blob is stored for a site.
var ErrNotFound = errors.New("session not found")

// Store is a bbolt-backed session blob store.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if needed) the session database at path.
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("session db path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("session: mkdir: %w", err)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("session: open %s: %w", path, err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSessions)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("session: init bucket: %w", err)
	}
	return &Store{db: db}, nil
}

// Load returns the blob stored for site.
func (s *Store) Load(site string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketSessions).Get([]byte(site))
		if v == nil {
			return ErrNotFound
		}
		out = append([]byte(nil), v...)
		return nil
	})
	return out, err
}

// Save replaces the blob stored for site.
func (s *Store) Save(site string, blob []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSessions).Put([]byte(site), blob)
	})
}

// Delete removes the blob stored for site.
func (s *Store) Delete(site string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSessions).Delete([]byte(site))
	})
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
