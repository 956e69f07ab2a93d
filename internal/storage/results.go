package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"llbp-sim/internal/bp/llbp"

	"go.etcd.io/bbolt"
)

// ResultRecord is one evaluated tuning candidate.
type ResultRecord struct {
	Mode        string             `json:"mode"`
	Iteration   int                `json:"iteration"`
	Timestamp   time.Time          `json:"timestamp"`
	Candidate   map[string]int     `json:"candidate,omitempty"`
	Config      llbp.Config        `json:"config"`
	MPKI        map[string]float64 `json:"mpki"`
	Score       float64            `json:"score"`
	HigherWins  bool               `json:"higher_wins"`
	Failed      bool               `json:"failed,omitempty"`
	DurationSec float64            `json:"duration_sec"`
}

// StoreBaseline records the baseline MPKI of a trace, replacing older values.
func (s *Store) StoreBaseline(trace string, mpki float64) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(baselinesBucket)).Put([]byte(trace),
			[]byte(strconv.FormatFloat(mpki, 'g', -1, 64)))
	})
}

// Baselines returns every stored baseline keyed by trace.
func (s *Store) Baselines() (map[string]float64, error) {
	baselines := make(map[string]float64)
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(baselinesBucket)).ForEach(func(k, v []byte) error {
			f, err := strconv.ParseFloat(string(v), 64)
			if err != nil {
				return fmt.Errorf("baseline %s: %w", k, err)
			}
			baselines[string(k)] = f
			return nil
		})
	})
	return baselines, err
}

// StoreResult records a tuning result.
func (s *Store) StoreResult(rec ResultRecord) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	return s.put(resultsBucket, timeKey(rec.Mode, rec.Timestamp), rec)
}

// GetResults returns all results of a tuning mode, oldest first.
func (s *Store) GetResults(mode string) ([]ResultRecord, error) {
	var results []ResultRecord

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(resultsBucket)).Cursor()
		prefix := []byte(mode + "_")
		for k, v := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
			var rec ResultRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				continue
			}
			results = append(results, rec)
		}
		return nil
	})

	return results, err
}

// BestResult returns the best non-failed result of a mode, honouring each
// record's score direction. ok is false when there is none.
func (s *Store) BestResult(mode string) (best ResultRecord, ok bool, err error) {
	results, err := s.GetResults(mode)
	if err != nil {
		return ResultRecord{}, false, err
	}

	bestScore := math.Inf(1)
	for _, r := range results {
		if r.Failed {
			continue
		}
		score := r.Score
		if r.HigherWins {
			score = -score
		}
		if score < bestScore {
			best, bestScore, ok = r, score, true
		}
	}
	return best, ok, nil
}

func hasPrefix(data, prefix []byte) bool {
	return bytes.HasPrefix(data, prefix)
}
