package store

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/mmcdole/sarathi/internal/domain"
	bolt "go.etcd.io/bbolt"
)

var bucketProgress = []byte("progress")

// Progress keys. Integers are stored as decimal text, dates as YYYY-MM-DD.
const (
	KeyPosition       = "position"
	KeyStreak         = "streak"
	KeyLastActiveDate = "lastActiveDate"
)

// ProgressStore implements domain.ProgressRepository using BoltDB.
type ProgressStore struct {
	db *bolt.DB
	mu sync.RWMutex // Protects mem

	// Memory-only mode (no persistence)
	mem map[string]string
}

// NewProgressStore opens the progress database under dir.
// Failures wrap domain.ErrStorageUnavailable; callers fall back to
// NewMemoryProgressStore for the session.
func NewProgressStore(dir string) (*ProgressStore, error) {
	if dir == "" {
		return NewMemoryProgressStore(), nil
	}
	db, err := openDB(dir, "progress.db", bucketProgress)
	if err != nil {
		return nil, err
	}
	return &ProgressStore{db: db}, nil
}

// NewMemoryProgressStore returns a store that lives only for this process.
func NewMemoryProgressStore() *ProgressStore {
	return &ProgressStore{mem: make(map[string]string)}
}

// Persistent reports whether the store writes to disk.
func (s *ProgressStore) Persistent() bool {
	return s.db != nil
}

func (s *ProgressStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *ProgressStore) Load() (domain.ProgressState, error) {
	values := make(map[string]string, 3)

	if s.db == nil {
		s.mu.RLock()
		for k, v := range s.mem {
			values[k] = v
		}
		s.mu.RUnlock()
	} else {
		err := s.db.View(func(tx *bolt.Tx) error {
			b := tx.Bucket(bucketProgress)
			for _, k := range []string{KeyPosition, KeyStreak, KeyLastActiveDate} {
				if v := b.Get([]byte(k)); v != nil {
					values[k] = string(v)
				}
			}
			return nil
		})
		if err != nil {
			return domain.ProgressState{}, fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
		}
	}

	return decodeProgress(values), nil
}

func (s *ProgressStore) Save(state domain.ProgressState) error {
	values := encodeProgress(state.Normalize())

	if s.db == nil {
		s.mu.Lock()
		for k, v := range values {
			s.mem[k] = v
		}
		s.mu.Unlock()
		return nil
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketProgress)
		for k, v := range values {
			if v == "" {
				if err := b.Delete([]byte(k)); err != nil {
					return err
				}
				continue
			}
			if err := b.Put([]byte(k), []byte(v)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}
	return nil
}

func encodeProgress(state domain.ProgressState) map[string]string {
	return map[string]string{
		KeyPosition:       strconv.Itoa(state.Position),
		KeyStreak:         strconv.Itoa(state.Streak),
		KeyLastActiveDate: state.LastActiveDate.String(),
	}
}

// decodeProgress treats missing or malformed values as their zero value.
func decodeProgress(values map[string]string) domain.ProgressState {
	var state domain.ProgressState
	if n, err := strconv.Atoi(values[KeyPosition]); err == nil {
		state.Position = n
	}
	if n, err := strconv.Atoi(values[KeyStreak]); err == nil {
		state.Streak = n
	}
	if d, err := domain.ParseDate(values[KeyLastActiveDate]); err == nil {
		state.LastActiveDate = d
	}
	return state.Normalize()
}
