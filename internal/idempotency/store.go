// Package idempotency deduplicates retried settlement requests bearing the
// same client-supplied key.
//
// Per-key state machine: absent -> in_flight -> terminal. A terminal record
// holds the exact response bytes of the first attempt and is replayed
// verbatim on retry; it is never mutated afterwards. A concurrent attempt
// that finds an in-flight record is rejected as a conflict rather than
// blocked, since no cross-request lock exists here.
package idempotency

import (
	"encoding/json"
	"errors"
	"time"

	bolt "github.com/boltdb/bolt"
)

const (
	bucketName = "idempotency"

	// Terminal records outlive the longest plausible client retry window.
	DefaultRetention = 24 * time.Hour

	// An in-flight claim that never completed (crash mid-settlement) frees
	// up much sooner so the client can retry.
	inFlightTTL = 5 * time.Minute
)

type State string

const (
	StateInFlight State = "in_flight"
	StateTerminal State = "terminal"
)

// Record is one stored attempt outcome for a key.
type Record struct {
	Key       string          `json:"key"`
	State     State           `json:"state"`
	Status    int             `json:"status,omitempty"`
	Body      json.RawMessage `json:"body,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	ExpiresAt time.Time       `json:"expires_at"`
}

func (r *Record) expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// Store keeps idempotency records in a local bolt file.
type Store struct {
	db        *bolt.DB
	retention time.Duration
}

func New(path string, retention time.Duration) (*Store, error) {
	if retention <= 0 {
		retention = DefaultRetention
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, retention: retention}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Begin claims the key for this attempt. In one transaction it either:
//   - returns the existing terminal record (replay it, claimed=false),
//   - reports an unexpired in-flight claim (record=nil, claimed=false), or
//   - writes a fresh in-flight marker (record=nil, claimed=true).
//
// Expired records of either state are treated as absent and reclaimed.
func (s *Store) Begin(key string) (*Record, bool, error) {
	var existing *Record
	claimed := false

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		now := time.Now().UTC()

		if v := b.Get([]byte(key)); v != nil {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			if !rec.expired(now) {
				if rec.State == StateTerminal {
					existing = &rec
				}
				return nil
			}
		}

		rec := Record{
			Key:       key,
			State:     StateInFlight,
			CreatedAt: now,
			ExpiresAt: now.Add(inFlightTTL),
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		claimed = true
		return b.Put([]byte(key), data)
	})
	if err != nil {
		return nil, false, err
	}

	return existing, claimed, nil
}

// Complete records the terminal outcome for a claimed key. The first
// terminal write wins; later calls are no-ops.
func (s *Store) Complete(key string, status int, body []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		now := time.Now().UTC()

		if v := b.Get([]byte(key)); v != nil {
			var rec Record
			if err := json.Unmarshal(v, &rec); err == nil &&
				rec.State == StateTerminal && !rec.expired(now) {
				return nil
			}
		}

		rec := Record{
			Key:       key,
			State:     StateTerminal,
			Status:    status,
			Body:      append([]byte(nil), body...),
			CreatedAt: now,
			ExpiresAt: now.Add(s.retention),
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return b.Put([]byte(key), data)
	})
}

// Release drops an in-flight claim so the caller can retry immediately.
// Terminal records are never released.
func (s *Store) Release(key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		v := b.Get([]byte(key))
		if v == nil {
			return nil
		}
		var rec Record
		if err := json.Unmarshal(v, &rec); err != nil {
			return err
		}
		if rec.State == StateTerminal {
			return nil
		}
		return b.Delete([]byte(key))
	})
}

var ErrNotFound = errors.New("idempotency record not found")

// Get returns the current record for a key, or ErrNotFound.
func (s *Store) Get(key string) (*Record, error) {
	var rec Record
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		v := b.Get([]byte(key))
		if v == nil {
			return ErrNotFound
		}
		return json.Unmarshal(v, &rec)
	})
	if err != nil {
		return nil, err
	}
	if rec.expired(time.Now().UTC()) {
		return nil, ErrNotFound
	}
	return &rec, nil
}

// Sweep deletes expired records and returns how many were removed.
func (s *Store) Sweep() (int, error) {
	removed := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		now := time.Now().UTC()

		var stale [][]byte
		if err := b.ForEach(func(k, v []byte) error {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				stale = append(stale, append([]byte(nil), k...))
				return nil
			}
			if rec.expired(now) {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		}); err != nil {
			return err
		}

		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	return removed, err
}
