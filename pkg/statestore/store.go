// Package statestore persists the server state of replicated subtrees in a
// bbolt file, one record per base DN.
package statestore

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.etcd.io/bbolt"

	"github.com/dd0wney/replcore/pkg/dn"
	"github.com/dd0wney/replcore/pkg/logging"
	"github.com/dd0wney/replcore/pkg/metrics"
	"github.com/dd0wney/replcore/pkg/serverstate"
)

var (
	bucketStates      = []byte("server_states")
	bucketGenerations = []byte("generation_ids")
)

var (
	// ErrNotFound is returned when nothing is stored for a base DN
	ErrNotFound = errors.New("no server state stored")
	// ErrClosed is returned after Close
	ErrClosed = errors.New("state store closed")
)

// Store is a bbolt-backed server state store
type Store struct {
	// mu guards db; operations hold it shared so Close waits for them
	mu      sync.RWMutex
	db      *bbolt.DB
	metrics *metrics.Registry
	logger  logging.Logger
}

// Option configures a Store
type Option func(*Store)

// WithMetrics records store operations in r
func WithMetrics(r *metrics.Registry) Option {
	return func(s *Store) {
		s.metrics = r
	}
}

// WithLogger sets the logger
func WithLogger(l logging.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// Open opens or creates the store file at path
func Open(path string, opts ...Option) (*Store, error) {
	s := &Store{
		metrics: metrics.DefaultRegistry(),
		logger:  logging.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(logging.Component("statestore"), logging.Path(path))

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open state store: %w", err)
	}
	s.db = db

	if err := s.initBuckets(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize buckets: %w", err)
	}

	s.logger.Debug("state store opened")
	return s, nil
}

// Close closes the underlying file
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *Store) initBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketStates, bucketGenerations} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("failed to create %s bucket: %w", name, err)
			}
		}
		return nil
	})
}

func key(baseDN dn.DN) []byte {
	return []byte(baseDN.Normalized())
}

// Save replaces the stored state of baseDN
func (s *Store) Save(ctx context.Context, baseDN dn.DN, state serverstate.State) error {
	return s.observe(ctx, "save", func(db *bbolt.DB) error {
		return db.Update(func(tx *bbolt.Tx) error {
			return tx.Bucket(bucketStates).Put(key(baseDN), state.Bytes())
		})
	})
}

// Load returns the stored state of baseDN, or ErrNotFound
func (s *Store) Load(ctx context.Context, baseDN dn.DN) (serverstate.State, error) {
	var state serverstate.State
	err := s.observe(ctx, "load", func(db *bbolt.DB) error {
		return db.View(func(tx *bbolt.Tx) error {
			raw := tx.Bucket(bucketStates).Get(key(baseDN))
			if raw == nil {
				return fmt.Errorf("%w: %s", ErrNotFound, baseDN)
			}
			// raw is only valid inside the transaction; Decode copies it
			decoded, err := serverstate.Decode(raw)
			if err != nil {
				return fmt.Errorf("stored state of %s: %w", baseDN, err)
			}
			state = decoded
			return nil
		})
	})
	return state, err
}

// SaveGenerationID records the generation id of the data under baseDN
func (s *Store) SaveGenerationID(ctx context.Context, baseDN dn.DN, generationID int64) error {
	return s.observe(ctx, "save_generation", func(db *bbolt.DB) error {
		return db.Update(func(tx *bbolt.Tx) error {
			var b [8]byte
			binary.BigEndian.PutUint64(b[:], uint64(generationID))
			return tx.Bucket(bucketGenerations).Put(key(baseDN), b[:])
		})
	})
}

// LoadGenerationID returns the stored generation id of baseDN, or ErrNotFound
func (s *Store) LoadGenerationID(ctx context.Context, baseDN dn.DN) (int64, error) {
	var generationID int64
	err := s.observe(ctx, "load_generation", func(db *bbolt.DB) error {
		return db.View(func(tx *bbolt.Tx) error {
			raw := tx.Bucket(bucketGenerations).Get(key(baseDN))
			if raw == nil {
				return fmt.Errorf("%w: %s", ErrNotFound, baseDN)
			}
			if len(raw) != 8 {
				return fmt.Errorf("stored generation id of %s has %d bytes", baseDN, len(raw))
			}
			generationID = int64(binary.BigEndian.Uint64(raw))
			return nil
		})
	})
	return generationID, err
}

// Delete removes everything stored for baseDN. Deleting a missing record is
// not an error.
func (s *Store) Delete(ctx context.Context, baseDN dn.DN) error {
	return s.observe(ctx, "delete", func(db *bbolt.DB) error {
		return db.Update(func(tx *bbolt.Tx) error {
			if err := tx.Bucket(bucketStates).Delete(key(baseDN)); err != nil {
				return err
			}
			return tx.Bucket(bucketGenerations).Delete(key(baseDN))
		})
	})
}

// BaseDNs returns the normalized base DNs with a stored state
func (s *Store) BaseDNs(ctx context.Context) ([]string, error) {
	var out []string
	err := s.observe(ctx, "list", func(db *bbolt.DB) error {
		return db.View(func(tx *bbolt.Tx) error {
			return tx.Bucket(bucketStates).ForEach(func(k, _ []byte) error {
				out = append(out, string(k))
				return nil
			})
		})
	})
	return out, err
}

func (s *Store) observe(ctx context.Context, operation string, fn func(db *bbolt.DB) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return ErrClosed
	}

	start := time.Now()
	err := fn(s.db)
	s.metrics.RecordStoreOperation(operation, err, time.Since(start))
	if err != nil && !errors.Is(err, ErrNotFound) {
		s.logger.Error("state store operation failed", logging.String("operation", operation), logging.Error(err))
	}
	return err
}
