// Argus - Security Decision Monitoring and Alerting
// Copyright 2026 The Argus Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/argus-sec/argus

// Package audit persists security records in BadgerDB. It backs the
// alert service's Recorder interface and the recent-alerts API.
package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/argus-sec/argus/internal/alert"
)

// Key layout: record:<unix-nano>:<id> so reverse iteration yields the
// most recent records first.
const recordKeyPrefix = "record:"

// ErrRecordNotFound is returned when a record id does not exist.
var ErrRecordNotFound = errors.New("security record not found")

// Record is one persisted security event.
type Record struct {
	ID          string         `json:"id"`
	Kind        string         `json:"kind"`
	Severity    alert.Severity `json:"severity"`
	UserID      string         `json:"user_id"`
	CreatedAt   time.Time      `json:"created_at"`
	Details     any            `json:"details,omitempty"`
	Delivered   bool           `json:"delivered"`
	DeliveredTo []string       `json:"delivered_to,omitempty"`
}

// Config tunes record retention.
type Config struct {
	// Retention is how long records live before Badger expires them.
	// Zero keeps them indefinitely.
	Retention time.Duration `koanf:"retention"`
}

// Store is a BadgerDB-backed security record store.
type Store struct {
	db  *badger.DB
	cfg Config

	// now is replaceable in tests.
	now func() time.Time
}

// NewStore creates a store over an open Badger handle. The handle is
// owned by the caller.
func NewStore(db *badger.DB, cfg Config) *Store {
	return &Store{db: db, cfg: cfg, now: time.Now}
}

// Open opens a Badger database at dir and wraps it in a store. An
// empty dir opens an in-memory database.
func Open(dir string, cfg Config) (*Store, *badger.DB, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, nil, fmt.Errorf("open audit store: %w", err)
	}
	return NewStore(db, cfg), db, nil
}

// CreateSecurityRecord persists one record and returns its id.
func (s *Store) CreateSecurityRecord(ctx context.Context, kind string, severity alert.Severity, userID string, details any) (string, error) {
	rec := Record{
		ID:        uuid.NewString(),
		Kind:      kind,
		Severity:  severity,
		UserID:    userID,
		CreatedAt: s.now(),
		Details:   details,
	}

	if err := s.put(&rec); err != nil {
		return "", err
	}
	return rec.ID, nil
}

// MarkRecordDelivered flags a record as delivered to the named
// destinations.
func (s *Store) MarkRecordDelivered(ctx context.Context, recordID string, destinations []string) error {
	key, rec, err := s.find(recordID)
	if err != nil {
		return err
	}

	rec.Delivered = true
	rec.DeliveredTo = destinations
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(key, data)
		if s.cfg.Retention > 0 {
			entry = entry.WithTTL(s.cfg.Retention)
		}
		return txn.SetEntry(entry)
	})
}

// Recent returns up to limit records, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}

	var records []Record
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte(recordKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration must seek past the last prefixed key.
		seek := append([]byte(recordKeyPrefix), 0xFF)
		for it.Seek(seek); it.Valid() && len(records) < limit; it.Next() {
			var rec Record
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				return err
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	return records, nil
}

// Get returns one record by id.
func (s *Store) Get(ctx context.Context, recordID string) (*Record, error) {
	_, rec, err := s.find(recordID)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Store) put(rec *Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	key := []byte(fmt.Sprintf("%s%020d:%s", recordKeyPrefix, rec.CreatedAt.UnixNano(), rec.ID))
	return s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(key, data)
		if s.cfg.Retention > 0 {
			entry = entry.WithTTL(s.cfg.Retention)
		}
		return txn.SetEntry(entry)
	})
}

// find scans for a record by id. Record counts are small (bounded by
// retention), so a prefix scan is acceptable.
func (s *Store) find(recordID string) ([]byte, *Record, error) {
	var (
		key []byte
		rec Record
	)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(recordKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek([]byte(recordKeyPrefix)); it.Valid(); it.Next() {
			item := it.Item()
			var candidate Record
			err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &candidate)
			})
			if err != nil {
				return err
			}
			if candidate.ID == recordID {
				key = item.KeyCopy(nil)
				rec = candidate
				return nil
			}
		}
		return ErrRecordNotFound
	})
	if err != nil {
		return nil, nil, err
	}
	return key, &rec, nil
}
