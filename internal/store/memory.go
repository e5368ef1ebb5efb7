package store

import (
	"errors"
	"sync"
	"time"
)

var (
	// ErrNotFound is returned when no cycle outcome matches.
	ErrNotFound = errors.New("no cycle records")
)

// CycleRecord summarizes one finished cycle. It never holds the reading itself.
type CycleRecord struct {
	StartedAt     time.Time     `json:"startedAt"`
	Duration      time.Duration `json:"durationNs"`
	Location      string        `json:"location"`
	Provider      string        `json:"provider,omitempty"`
	Outcome       string        `json:"outcome"`
	ErrorKind     string        `json:"errorKind,omitempty"`
	Error         string        `json:"error,omitempty"`
	HTTPStatus    int           `json:"httpStatus,omitempty"`
	CaptureTimeMS int64         `json:"captureTimeMs,omitempty"`
}

// MemoryStore is a concurrency-safe, bounded in-memory history of cycle outcomes.
type MemoryStore struct {
	mu sync.RWMutex

	// oldest first
	records []CycleRecord

	// retention configuration
	maxHistory int           // max number of records
	maxAge     time.Duration // optional max age for records
	now        func() time.Time
}

// NewMemoryStore creates a new MemoryStore with optional limits.
// If maxHistory is <= 0, it is treated as unlimited.
func NewMemoryStore(maxHistory int, maxAge time.Duration) *MemoryStore {
	return &MemoryStore{
		maxHistory: maxHistory,
		maxAge:     maxAge,
		now:        time.Now,
	}
}

// SaveRecord appends a record and enforces retention.
func (s *MemoryStore) SaveRecord(rec CycleRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append(s.records, rec)

	// Enforce retention by count.
	if s.maxHistory > 0 && len(s.records) > s.maxHistory {
		over := len(s.records) - s.maxHistory
		s.records = append([]CycleRecord(nil), s.records[over:]...)
	}

	// Enforce retention by age. The newest record is always kept.
	if s.maxAge > 0 {
		cutoff := s.now().Add(-s.maxAge)
		i := 0
		for ; i < len(s.records)-1; i++ {
			if !s.records[i].StartedAt.Before(cutoff) {
				break
			}
		}
		if i > 0 {
			s.records = append([]CycleRecord(nil), s.records[i:]...)
		}
	}
}

// GetLatest returns the most recent record.
func (s *MemoryStore) GetLatest() (CycleRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.records) == 0 {
		return CycleRecord{}, ErrNotFound
	}
	return s.records[len(s.records)-1], nil
}

// GetRecent returns up to limit records, newest first.
func (s *MemoryStore) GetRecent(limit int) ([]CycleRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.records) == 0 {
		return nil, ErrNotFound
	}
	if limit <= 0 || limit > len(s.records) {
		limit = len(s.records)
	}

	result := make([]CycleRecord, 0, limit)
	for i := len(s.records) - 1; i >= 0 && len(result) < limit; i-- {
		result = append(result, s.records[i])
	}
	return result, nil
}

// GetRange returns all records started between from and to (inclusive), oldest first.
func (s *MemoryStore) GetRange(from, to time.Time) ([]CycleRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []CycleRecord
	for _, rec := range s.records {
		if !rec.StartedAt.Before(from) && !rec.StartedAt.After(to) {
			result = append(result, rec)
		}
	}

	if len(result) == 0 {
		return nil, ErrNotFound
	}
	return result, nil
}
