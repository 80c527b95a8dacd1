package store

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mmcdole/sarathi/internal/domain"
	bolt "go.etcd.io/bbolt"
)

const openTimeout = 1 * time.Second

// openDB opens (creating if needed) a bolt file under dir and ensures buckets exist.
// A lock held by another process surfaces as domain.ErrStorageUnavailable.
func openDB(dir, name string, buckets ...[]byte) (*bolt.DB, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}

	dbPath := filepath.Join(dir, name)
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: openTimeout})
	if err != nil {
		if errors.Is(err, bolt.ErrTimeout) {
			return nil, fmt.Errorf("%w: %s is locked by another process", domain.ErrStorageUnavailable, dbPath)
		}
		return nil, fmt.Errorf("%w: failed to open bolt db: %v", domain.ErrStorageUnavailable, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}

	return db, nil
}

// OriginDir returns the per-origin subdirectory of baseDir so caches for
// different origins never share a file.
func OriginDir(baseDir, originURL string) string {
	if baseDir == "" || originURL == "" {
		return baseDir
	}
	return filepath.Join(baseDir, hashOriginURL(originURL))
}

func hashOriginURL(originURL string) string {
	normalized := strings.TrimRight(strings.ToLower(originURL), "/")
	hash := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(hash[:6])
}
