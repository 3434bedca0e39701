package usage

import (
	"context"
	"sync"
)

// MemoryStore keeps only the current day's record per user; a request for a
// later date replaces the stored record with a zeroed one.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record)}
}

func (s *MemoryStore) current(userID, date string) *Record {
	rec, ok := s.records[userID]
	if !ok || rec.Date != date {
		rec = &Record{UserID: userID, Date: date}
		s.records[userID] = rec
	}
	return rec
}

func (s *MemoryStore) Get(_ context.Context, userID, date string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.current(userID, date), nil
}

func (s *MemoryStore) Add(_ context.Context, userID, date string, aiTokens, ttsChars int64) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.current(userID, date)
	rec.AITokens += aiTokens
	rec.TTSChars += ttsChars
	return *rec, nil
}
