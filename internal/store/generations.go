package store

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/mmcdole/sarathi/internal/domain"
	bolt "go.etcd.io/bbolt"
)

// Bucket names
var (
	bucketMeta = []byte("meta")
	keyLive    = []byte("live")
)

const (
	generationPrefix = "gen:"
	readyPrefix      = "ready:"
)

func generationBucket(tag string) []byte {
	return []byte(generationPrefix + tag)
}

// GenerationStore implements domain.GenerationStore using BoltDB.
// Each generation lives in its own bucket ("gen:<tag>"); the meta bucket holds
// the live pointer and one ready marker per fully saved generation.
type GenerationStore struct {
	db *bolt.DB
	mu sync.RWMutex // Protects live and the memory-only maps

	live string

	// Memory-only mode (no persistence)
	mem   map[string]map[string][]byte
	ready map[string]bool
}

// NewGenerationStore opens the generation store under dir.
// An empty dir selects memory-only mode.
func NewGenerationStore(dir string) (*GenerationStore, error) {
	if dir == "" {
		return NewMemoryGenerationStore(), nil
	}

	db, err := openDB(dir, "cache.db", bucketMeta)
	if err != nil {
		return nil, err
	}

	s := &GenerationStore{db: db}
	err = db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketMeta).Get(keyLive); v != nil {
			s.live = string(v)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// NewMemoryGenerationStore returns a store that keeps everything in memory.
func NewMemoryGenerationStore() *GenerationStore {
	return &GenerationStore{
		mem:   make(map[string]map[string][]byte),
		ready: make(map[string]bool),
	}
}

func (s *GenerationStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *GenerationStore) SaveGeneration(tag string, entries map[string]*domain.CachedResponse) error {
	encoded := make(map[string][]byte, len(entries))
	for key, resp := range entries {
		data, err := json.Marshal(resp)
		if err != nil {
			return fmt.Errorf("failed to encode %s: %w", key, err)
		}
		encoded[key] = data
	}

	if s.db == nil {
		s.mu.Lock()
		s.mem[tag] = encoded
		s.ready[tag] = true
		s.mu.Unlock()
		return nil
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		// Re-populating a tag starts from a clean bucket
		if tx.Bucket(generationBucket(tag)) != nil {
			if err := tx.DeleteBucket(generationBucket(tag)); err != nil {
				return err
			}
		}
		b, err := tx.CreateBucket(generationBucket(tag))
		if err != nil {
			return err
		}
		for key, data := range encoded {
			if err := b.Put([]byte(key), data); err != nil {
				return err
			}
		}
		return tx.Bucket(bucketMeta).Put([]byte(readyPrefix+tag), []byte("1"))
	})
}

func (s *GenerationStore) IsReady(tag string) bool {
	if s.db == nil {
		s.mu.RLock()
		defer s.mu.RUnlock()
		return s.ready[tag]
	}

	var ready bool
	s.db.View(func(tx *bolt.Tx) error {
		ready = tx.Bucket(bucketMeta).Get([]byte(readyPrefix+tag)) != nil
		return nil
	})
	return ready
}

func (s *GenerationStore) Activate(tag string) ([]string, error) {
	if !s.IsReady(tag) {
		return nil, fmt.Errorf("%w: %s", domain.ErrGenerationNotReady, tag)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		var evicted []string
		for t := range s.mem {
			if t != tag {
				evicted = append(evicted, t)
				delete(s.mem, t)
				delete(s.ready, t)
			}
		}
		s.live = tag
		sort.Strings(evicted)
		return evicted, nil
	}

	var evicted []string
	err := s.db.Update(func(tx *bolt.Tx) error {
		var stale [][]byte
		err := tx.ForEach(func(name []byte, _ *bolt.Bucket) error {
			n := string(name)
			if strings.HasPrefix(n, generationPrefix) && n != generationPrefix+tag {
				stale = append(stale, append([]byte(nil), name...))
			}
			return nil
		})
		if err != nil {
			return err
		}

		meta := tx.Bucket(bucketMeta)
		for _, name := range stale {
			if err := tx.DeleteBucket(name); err != nil {
				return err
			}
			old := strings.TrimPrefix(string(name), generationPrefix)
			if err := meta.Delete([]byte(readyPrefix + old)); err != nil {
				return err
			}
			evicted = append(evicted, old)
		}
		return meta.Put(keyLive, []byte(tag))
	})
	if err != nil {
		return nil, err
	}

	s.live = tag
	return evicted, nil
}

func (s *GenerationStore) Live() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.live, s.live != ""
}

func (s *GenerationStore) Generations() ([]string, error) {
	var tags []string

	if s.db == nil {
		s.mu.RLock()
		for t := range s.mem {
			tags = append(tags, t)
		}
		s.mu.RUnlock()
		sort.Strings(tags)
		return tags, nil
	}

	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, _ *bolt.Bucket) error {
			if n := string(name); strings.HasPrefix(n, generationPrefix) {
				tags = append(tags, strings.TrimPrefix(n, generationPrefix))
			}
			return nil
		})
	})
	return tags, err
}

func (s *GenerationStore) GetEntry(tag, key string) (*domain.CachedResponse, bool) {
	var data []byte

	if s.db == nil {
		s.mu.RLock()
		data = s.mem[tag][key]
		s.mu.RUnlock()
	} else {
		s.db.View(func(tx *bolt.Tx) error {
			b := tx.Bucket(generationBucket(tag))
			if b == nil {
				return nil
			}
			if v := b.Get([]byte(key)); v != nil {
				data = make([]byte, len(v))
				copy(data, v)
			}
			return nil
		})
	}

	if data == nil {
		return nil, false
	}

	var resp domain.CachedResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, false
	}
	return &resp, true
}

func (s *GenerationStore) PutEntry(tag, key string, resp *domain.CachedResponse) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}

	if s.db == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		gen, ok := s.mem[tag]
		if !ok {
			return fmt.Errorf("%w: %s", domain.ErrGenerationNotReady, tag)
		}
		gen[key] = data
		return nil
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		// Never resurrect an evicted generation
		b := tx.Bucket(generationBucket(tag))
		if b == nil {
			return fmt.Errorf("%w: %s", domain.ErrGenerationNotReady, tag)
		}
		return b.Put([]byte(key), data)
	})
}

func (s *GenerationStore) Keys(tag string) ([]string, error) {
	var keys []string

	if s.db == nil {
		s.mu.RLock()
		for k := range s.mem[tag] {
			keys = append(keys, k)
		}
		s.mu.RUnlock()
		sort.Strings(keys)
		return keys, nil
	}

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(generationBucket(tag))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	return keys, err
}
