package coaching

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vnmchuo/interview-gateway/internal/provider"
)

type MemoryStore struct {
	mu       sync.RWMutex
	now      func() time.Time
	programs map[string]*Program
	days     map[string]*Day
	attempts map[string][]*Attempt
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:      time.Now,
		programs: make(map[string]*Program),
		days:     make(map[string]*Day),
		attempts: make(map[string][]*Attempt),
	}
}

func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

func (s *MemoryStore) CreateProgram(_ context.Context, userID, interviewID string) (*Program, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := &Program{
		ID:          uuid.NewString(),
		UserID:      userID,
		InterviewID: interviewID,
		CurrentDay:  1,
		Status:      ProgramActive,
		StartedAt:   s.now(),
	}
	s.programs[p.ID] = p
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) CreateDay(_ context.Context, programID string, dayNumber int, questions []provider.InterviewQuestion) (*Day, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.programs[programID]; !ok {
		return nil, ErrNotFound
	}
	d := &Day{
		ID:        uuid.NewString(),
		ProgramID: programID,
		DayNumber: dayNumber,
		Questions: questions,
		Status:    DayPending,
	}
	s.days[d.ID] = d
	cp := *d
	return &cp, nil
}

func (s *MemoryStore) StartDay(_ context.Context, dayID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.days[dayID]
	if !ok {
		return ErrNotFound
	}
	now := s.now()
	d.Status = DayInProgress
	d.StartedAt = &now
	return nil
}

func (s *MemoryStore) SaveAttempt(_ context.Context, a *Attempt) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.days[a.DayID]; !ok {
		return "", ErrNotFound
	}
	cp := *a
	cp.ID = uuid.NewString()
	cp.CreatedAt = s.now()
	s.attempts[a.DayID] = append(s.attempts[a.DayID], &cp)
	return cp.ID, nil
}

func (s *MemoryStore) CompleteDay(_ context.Context, dayID, programID string) (*Program, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.days[dayID]
	p, pok := s.programs[programID]
	if !ok || !pok || d.ProgramID != programID {
		return nil, ErrNotFound
	}
	now := s.now()
	d.Status = DayCompleted
	d.CompletedAt = &now

	if p.CurrentDay >= ProgramDays {
		p.Status = ProgramCompleted
		p.CompletedAt = &now
	} else {
		p.CurrentDay++
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) GetProgram(_ context.Context, programID string) (*Program, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.programs[programID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) ActiveProgram(_ context.Context, userID string) (*Program, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *Program
	for _, p := range s.programs {
		if p.UserID != userID || p.Status != ProgramActive {
			continue
		}
		if latest == nil || p.StartedAt.After(latest.StartedAt) {
			latest = p
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (s *MemoryStore) Days(_ context.Context, programID string) ([]*Day, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []*Day{}
	for _, d := range s.days {
		if d.ProgramID == programID {
			out = append(out, s.withAttempts(d))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DayNumber < out[j].DayNumber })
	return out, nil
}

func (s *MemoryStore) GetDay(_ context.Context, dayID string) (*Day, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.days[dayID]
	if !ok {
		return nil, ErrNotFound
	}
	return s.withAttempts(d), nil
}

func (s *MemoryStore) PriorQuestions(_ context.Context, programID string) ([]provider.InterviewQuestion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var days []*Day
	for _, d := range s.days {
		if d.ProgramID == programID && d.Status == DayCompleted {
			days = append(days, d)
		}
	}
	sort.Slice(days, func(i, j int) bool { return days[i].DayNumber < days[j].DayNumber })

	var out []provider.InterviewQuestion
	for _, d := range days {
		out = append(out, d.Questions...)
	}
	return out, nil
}

// withAttempts copies d with its attempts sorted; callers hold the lock.
func (s *MemoryStore) withAttempts(d *Day) *Day {
	cp := *d
	cp.Attempts = make([]*Attempt, 0, len(s.attempts[d.ID]))
	for _, a := range s.attempts[d.ID] {
		ac := *a
		cp.Attempts = append(cp.Attempts, &ac)
	}
	sort.SliceStable(cp.Attempts, func(i, j int) bool {
		a, b := cp.Attempts[i], cp.Attempts[j]
		if a.QuestionIndex != b.QuestionIndex {
			return a.QuestionIndex < b.QuestionIndex
		}
		return a.AttemptNumber < b.AttemptNumber
	})
	return &cp
}
