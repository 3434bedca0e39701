package coaching

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/vnmchuo/interview-gateway/internal/interview"
	"github.com/vnmchuo/interview-gateway/internal/provider"
)

// Style is the interview style sent for coaching questions.
const Style = "coaching"

type Service struct {
	store      Store
	interviews interview.Store
	logger     *zap.Logger
}

func NewService(store Store, interviews interview.Store, logger *zap.Logger) *Service {
	return &Service{store: store, interviews: interviews, logger: logger}
}

// Start creates a program from one of the user's interviews together with
// its first day of questions.
func (s *Service) Start(ctx context.Context, userID, interviewID string, ai provider.AIProvider) (*Program, *Day, error) {
	iv, _, err := s.interviews.Get(ctx, interviewID)
	if err != nil {
		if errors.Is(err, interview.ErrNotFound) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, err
	}
	if iv.UserID != userID {
		return nil, nil, ErrForbidden
	}

	questions, err := s.questions(ctx, ai, iv.JobListing, nil)
	if err != nil {
		return nil, nil, err
	}

	program, err := s.store.CreateProgram(ctx, userID, interviewID)
	if err != nil {
		return nil, nil, err
	}
	day, err := s.store.CreateDay(ctx, program.ID, 1, questions)
	if err != nil {
		return nil, nil, err
	}
	s.logger.Info("coaching program started",
		zap.String("program_id", program.ID),
		zap.String("interview_id", interviewID),
	)
	return program, day, nil
}

// Active returns the user's active program and its days, or nil when there
// is none.
func (s *Service) Active(ctx context.Context, userID string) (*Program, []*Day, error) {
	program, err := s.store.ActiveProgram(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	days, err := s.store.Days(ctx, program.ID)
	if err != nil {
		return nil, nil, err
	}
	return program, days, nil
}

func (s *Service) Program(ctx context.Context, userID, programID string) (*Program, []*Day, error) {
	program, err := s.ownedProgram(ctx, userID, programID)
	if err != nil {
		return nil, nil, err
	}
	days, err := s.store.Days(ctx, program.ID)
	if err != nil {
		return nil, nil, err
	}
	return program, days, nil
}

func (s *Service) Day(ctx context.Context, userID, dayID string) (*Day, error) {
	day, _, err := s.ownedDay(ctx, userID, dayID)
	return day, err
}

func (s *Service) StartDay(ctx context.Context, userID, dayID string) (*Day, error) {
	if _, _, err := s.ownedDay(ctx, userID, dayID); err != nil {
		return nil, err
	}
	if err := s.store.StartDay(ctx, dayID); err != nil {
		return nil, err
	}
	return s.store.GetDay(ctx, dayID)
}

type AttemptInput struct {
	QuestionIndex int
	AttemptNumber int
	Answer        string
	Question      *provider.InterviewQuestion
	// JobListing defaults to the listing of the program's interview.
	JobListing *provider.ParsedJobListing
}

// Attempt evaluates one answer to a day's question and stores it.
func (s *Service) Attempt(ctx context.Context, userID, dayID string, in AttemptInput, ai provider.AIProvider) (*Evaluation, error) {
	_, program, err := s.ownedDay(ctx, userID, dayID)
	if err != nil {
		return nil, err
	}
	if in.AttemptNumber < 1 {
		in.AttemptNumber = 1
	}

	job := in.JobListing
	if job == nil {
		if iv, _, err := s.interviews.Get(ctx, program.InterviewID); err == nil {
			job = iv.JobListing
		}
	}

	eval, err := ai.EvaluateAnswer(ctx, job, in.Question, in.Answer)
	if err != nil {
		return nil, err
	}
	provider.ClampEvaluation(eval)
	coached := NewEvaluation(eval, in.AttemptNumber)

	_, err = s.store.SaveAttempt(ctx, &Attempt{
		DayID:         dayID,
		QuestionIndex: in.QuestionIndex,
		AttemptNumber: in.AttemptNumber,
		AnswerText:    in.Answer,
		Evaluation:    coached,
	})
	if err != nil {
		return nil, err
	}
	return coached, nil
}

// CompleteDay closes a day and, unless the program is finished, generates
// the next day's questions avoiding every question already asked. A nil day
// means the program is complete.
func (s *Service) CompleteDay(ctx context.Context, userID, dayID, programID string, ai provider.AIProvider) (*Day, error) {
	day, _, err := s.ownedDay(ctx, userID, dayID)
	if err != nil {
		return nil, err
	}
	if day.ProgramID != programID {
		return nil, ErrForbidden
	}

	program, err := s.store.CompleteDay(ctx, dayID, programID)
	if err != nil {
		return nil, err
	}
	if program.Status == ProgramCompleted {
		s.logger.Info("coaching program completed", zap.String("program_id", programID))
		return nil, nil
	}

	prior, err := s.store.PriorQuestions(ctx, programID)
	if err != nil {
		return nil, err
	}
	iv, _, err := s.interviews.Get(ctx, program.InterviewID)
	if err != nil {
		return nil, fmt.Errorf("failed to load program interview: %w", err)
	}

	questions, err := s.questions(ctx, ai, iv.JobListing, prior)
	if err != nil {
		return nil, err
	}
	return s.store.CreateDay(ctx, programID, program.CurrentDay, questions)
}

func (s *Service) questions(ctx context.Context, ai provider.AIProvider, job *provider.ParsedJobListing, prior []provider.InterviewQuestion) ([]provider.InterviewQuestion, error) {
	qs, err := ai.GenerateQuestions(ctx, job, styleAvoiding(prior), QuestionsPerDay)
	if err != nil {
		return nil, err
	}
	qs = provider.NormalizeQuestions(dropRepeats(qs, prior), QuestionsPerDay)
	if len(qs) < QuestionsPerDay {
		s.logger.Warn("fewer coaching questions than requested",
			zap.Int("requested", QuestionsPerDay),
			zap.Int("received", len(qs)),
		)
	}
	return qs, nil
}

// styleAvoiding extends the coaching style with the questions already asked.
func styleAvoiding(prior []provider.InterviewQuestion) string {
	if len(prior) == 0 {
		return Style
	}
	var b strings.Builder
	b.WriteString(Style)
	b.WriteString("\n\nIMPORTANT: The following questions have already been asked in prior days. Generate COMPLETELY DIFFERENT questions:")
	for _, q := range prior {
		b.WriteString("\n- ")
		b.WriteString(q.Question)
	}
	return b.String()
}

func dropRepeats(qs, prior []provider.InterviewQuestion) []provider.InterviewQuestion {
	seen := make(map[string]bool, len(prior))
	for _, q := range prior {
		seen[questionKey(q.Question)] = true
	}
	out := qs[:0]
	for _, q := range qs {
		k := questionKey(q.Question)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, q)
	}
	return out
}

func questionKey(q string) string {
	return strings.ToLower(strings.Join(strings.Fields(q), " "))
}

func (s *Service) ownedProgram(ctx context.Context, userID, programID string) (*Program, error) {
	program, err := s.store.GetProgram(ctx, programID)
	if err != nil {
		return nil, err
	}
	if program.UserID != userID {
		return nil, ErrForbidden
	}
	return program, nil
}

func (s *Service) ownedDay(ctx context.Context, userID, dayID string) (*Day, *Program, error) {
	day, err := s.store.GetDay(ctx, dayID)
	if err != nil {
		return nil, nil, err
	}
	program, err := s.ownedProgram(ctx, userID, day.ProgramID)
	if err != nil {
		return nil, nil, err
	}
	return day, program, nil
}
