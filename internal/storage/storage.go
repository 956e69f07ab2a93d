// Package storage keeps experiment metadata in a BoltDB file: the
// configurations predictors were built with, baseline MPKI per trace and
// tuning results. Predictor state is never stored.
package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"llbp-sim/internal/bp/llbp"

	"go.etcd.io/bbolt"
)

const (
	configsBucket   = "configs"   // Bound predictor configurations
	baselinesBucket = "baselines" // Baseline MPKI per trace
	resultsBucket   = "results"   // Tuning results

	dbFile = "llbp-sim.db"
)

// Store provides persistent storage for experiment metadata using BoltDB.
type Store struct {
	db *bbolt.DB
}

// ConfigRecord is one predictor construction.
type ConfigRecord struct {
	Predictor  string       `json:"predictor"`
	Timestamp  time.Time    `json:"timestamp"`
	Source     string       `json:"source,omitempty"` // document path, empty for defaults
	Configured bool         `json:"configured"`
	Config     *llbp.Config `json:"config,omitempty"`
}

// New opens (or creates) the database in dataPath and its buckets.
func New(dataPath string) (*Store, error) {
	dbPath := filepath.Join(dataPath, dbFile)

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{configsBucket, baselinesBucket, resultsBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create %s bucket: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database. Closing twice is harmless.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func timeKey(prefix string, ts time.Time) []byte {
	return []byte(fmt.Sprintf("%s_%020d", prefix, ts.UnixNano()))
}

func (s *Store) put(bucket string, key []byte, v any) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshal %s record: %w", bucket, err)
		}
		return tx.Bucket([]byte(bucket)).Put(key, data)
	})
}

// StoreConfig records the configuration a predictor was built with.
func (s *Store) StoreConfig(rec ConfigRecord) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	return s.put(configsBucket, timeKey(rec.Predictor, rec.Timestamp), rec)
}

// GetConfigs returns the records of one predictor within [start, end],
// oldest first.
func (s *Store) GetConfigs(predictor string, start, end time.Time) ([]ConfigRecord, error) {
	var records []ConfigRecord

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(configsBucket)).Cursor()
		prefix := []byte(predictor + "_")
		endKey := timeKey(predictor, end)

		for k, v := c.Seek(timeKey(predictor, start)); k != nil && bytes.Compare(k, endKey) <= 0; k, v = c.Next() {
			if !bytes.HasPrefix(k, prefix) {
				continue
			}
			var rec ConfigRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				continue // Skip malformed records
			}
			records = append(records, rec)
		}
		return nil
	})

	return records, err
}
