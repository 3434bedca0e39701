package interview

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vnmchuo/interview-gateway/internal/provider"
)

type MemoryStore struct {
	mu         sync.RWMutex
	now        func() time.Time
	interviews map[string]*Interview
	answers    map[string][]*Answer
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:        time.Now,
		interviews: make(map[string]*Interview),
		answers:    make(map[string][]*Answer),
	}
}

// WithClock replaces the timestamp source; for tests.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

func (s *MemoryStore) Create(_ context.Context, iv *Interview) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *iv
	cp.ID = uuid.NewString()
	cp.Status = StatusInProgress
	cp.CreatedAt = s.now()
	s.interviews[cp.ID] = &cp
	return cp.ID, nil
}

func (s *MemoryStore) SaveAnswer(_ context.Context, a *Answer) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.interviews[a.InterviewID]; !ok {
		return "", ErrNotFound
	}
	cp := *a
	cp.ID = uuid.NewString()
	cp.CreatedAt = s.now()
	s.answers[a.InterviewID] = append(s.answers[a.InterviewID], &cp)
	return cp.ID, nil
}

func (s *MemoryStore) Complete(_ context.Context, id string, report *provider.InterviewReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	iv, ok := s.interviews[id]
	if !ok {
		return ErrNotFound
	}
	score := report.OverallScore
	now := s.now()
	iv.OverallScore = &score
	iv.Report = report
	iv.Status = StatusCompleted
	iv.CompletedAt = &now
	return nil
}

func (s *MemoryStore) ListCompleted(_ context.Context, userID string, limit int) ([]*Interview, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Interview
	for _, iv := range s.interviews {
		if iv.UserID == userID && iv.Status == StatusCompleted {
			cp := *iv
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CompletedAt.After(*out[j].CompletedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Interview, []*Answer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	iv, ok := s.interviews[id]
	if !ok {
		return nil, nil, ErrNotFound
	}
	cp := *iv
	answers := make([]*Answer, 0, len(s.answers[id]))
	for _, a := range s.answers[id] {
		ac := *a
		answers = append(answers, &ac)
	}
	sort.SliceStable(answers, func(i, j int) bool {
		return answers[i].QuestionIndex < answers[j].QuestionIndex
	})
	return &cp, answers, nil
}
