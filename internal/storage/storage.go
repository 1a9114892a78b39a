// Package storage persists strangle attempt records as a JSON audit log.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// AttemptRecord is one run of the entry pipeline for one symbol, whether it
// ended in a staged pair, a transmitted pair, or a rejection.
type AttemptRecord struct {
	ID               string    `json:"id"`
	Tag              string    `json:"tag"`
	Symbol           string    `json:"symbol"`
	Expiry           string    `json:"expiry"`
	PutStrike        float64   `json:"put_strike"`
	CallStrike       float64   `json:"call_strike"`
	ReferencePrice   float64   `json:"reference_price"`
	ReferenceSource  string    `json:"reference_source"`
	ComboBid         float64   `json:"combo_bid"`
	ComboAsk         float64   `json:"combo_ask"`
	Quantity         int64     `json:"quantity"`
	LimitPrice       float64   `json:"limit_price"`
	TrailAmount      float64   `json:"trail_amount"`
	Live             bool      `json:"live"`
	State            string    `json:"state"`
	PrimaryOrderID   int64     `json:"primary_order_id,omitempty"`
	DependentOrderID int64     `json:"dependent_order_id,omitempty"`
	Error            string    `json:"error,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// Interface is the attempt log contract the pipeline depends on.
type Interface interface {
	RecordAttempt(rec AttemptRecord) error
	Attempts() []AttemptRecord
	AttemptsForSymbol(symbol string) []AttemptRecord
}

type storageData struct {
	Attempts    []AttemptRecord `json:"attempts"`
	LastUpdated time.Time       `json:"last_updated"`
}

// Storage is a file-backed attempt log.
type Storage struct {
	mu       sync.RWMutex
	filepath string
	data     *storageData
}

var _ Interface = (*Storage)(nil)

// NewStorage opens the attempt log at path, loading existing records when
// the file is present.
func NewStorage(path string) (*Storage, error) {
	s := &Storage{
		filepath: path,
		data:     &storageData{},
	}

	if _, err := os.Stat(path); err == nil {
		if err := s.load(); err != nil {
			return nil, fmt.Errorf("loading attempt log: %w", err)
		}
	}

	return s, nil
}

func (s *Storage) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.filepath)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, s.data)
}

// save writes the log through a temp file and an atomic rename. Caller holds
// the write lock.
func (s *Storage) save() error {
	s.data.LastUpdated = time.Now()

	data, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return err
	}

	if dir := filepath.Dir(s.filepath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return err
		}
	}

	tmpFile := s.filepath + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpFile, s.filepath)
}

// RecordAttempt appends a record and persists the log.
func (s *Storage) RecordAttempt(rec AttemptRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("attempt record needs an id")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Attempts = append(s.data.Attempts, rec)
	return s.save()
}

// Attempts returns all records, oldest first.
func (s *Storage) Attempts() []AttemptRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]AttemptRecord, len(s.data.Attempts))
	copy(out, s.data.Attempts)
	return out
}

// AttemptsForSymbol returns the records for one symbol, oldest first.
func (s *Storage) AttemptsForSymbol(symbol string) []AttemptRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []AttemptRecord
	for _, rec := range s.data.Attempts {
		if rec.Symbol == symbol {
			out = append(out, rec)
		}
	}
	return out
}
