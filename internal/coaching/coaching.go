// Package coaching runs five-day practice programs built from a completed
// interview: each day holds five fresh questions and every question may be
// attempted up to three times.
package coaching

import (
	"context"
	"errors"
	"time"

	"github.com/vnmchuo/interview-gateway/internal/provider"
)

const (
	ProgramDays     = 5
	QuestionsPerDay = 5
	MaxAttempts     = 3
	// PassingScore is the score at which a question needs no retry.
	PassingScore = 8
)

var (
	ErrNotFound  = errors.New("coaching record not found")
	ErrForbidden = errors.New("access denied")
)

type ProgramStatus string

const (
	ProgramActive    ProgramStatus = "active"
	ProgramCompleted ProgramStatus = "completed"
)

type DayStatus string

const (
	DayPending    DayStatus = "pending"
	DayInProgress DayStatus = "in_progress"
	DayCompleted  DayStatus = "completed"
)

type Program struct {
	ID          string        `json:"id"`
	UserID      string        `json:"user_id"`
	InterviewID string        `json:"interview_id"`
	CurrentDay  int           `json:"current_day"`
	Status      ProgramStatus `json:"status"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt *time.Time    `json:"completed_at"`
}

type Day struct {
	ID          string                       `json:"id"`
	ProgramID   string                       `json:"program_id"`
	DayNumber   int                          `json:"day_number"`
	Questions   []provider.InterviewQuestion `json:"questions"`
	Status      DayStatus                    `json:"status"`
	StartedAt   *time.Time                   `json:"started_at"`
	CompletedAt *time.Time                   `json:"completed_at"`
	Attempts    []*Attempt                   `json:"coaching_attempts,omitempty"`
}

// Evaluation is an answer evaluation plus the retry verdict.
type Evaluation struct {
	Score        int      `json:"score"`
	Strengths    []string `json:"strengths"`
	Improvements []string `json:"improvements"`
	IdealAnswer  string   `json:"idealAnswer"`
	Tip          string   `json:"tip"`
	ShouldRetry  bool     `json:"shouldRetry"`
}

// NewEvaluation asks for another attempt while the score is below
// PassingScore and attempts remain.
func NewEvaluation(e *provider.AnswerEvaluation, attemptNumber int) *Evaluation {
	return &Evaluation{
		Score:        e.Score,
		Strengths:    e.Strengths,
		Improvements: e.Improvements,
		IdealAnswer:  e.IdealAnswer,
		Tip:          e.Tip,
		ShouldRetry:  e.Score < PassingScore && attemptNumber < MaxAttempts,
	}
}

type Attempt struct {
	ID            string      `json:"id"`
	DayID         string      `json:"coaching_day_id"`
	QuestionIndex int         `json:"question_index"`
	AttemptNumber int         `json:"attempt_number"`
	AnswerText    string      `json:"answer_text"`
	Evaluation    *Evaluation `json:"evaluation"`
	CreatedAt     time.Time   `json:"created_at"`
}

type Store interface {
	CreateProgram(ctx context.Context, userID, interviewID string) (*Program, error)
	CreateDay(ctx context.Context, programID string, dayNumber int, questions []provider.InterviewQuestion) (*Day, error)
	StartDay(ctx context.Context, dayID string) error
	SaveAttempt(ctx context.Context, a *Attempt) (string, error)
	// CompleteDay marks the day completed and advances the program, closing
	// it after the last day. It returns the updated program.
	CompleteDay(ctx context.Context, dayID, programID string) (*Program, error)
	GetProgram(ctx context.Context, programID string) (*Program, error)
	// ActiveProgram returns the user's most recently started active program.
	ActiveProgram(ctx context.Context, userID string) (*Program, error)
	// Days returns a program's days ordered by day number, attempts included.
	Days(ctx context.Context, programID string) ([]*Day, error)
	// GetDay returns a day with its attempts ordered by question and attempt.
	GetDay(ctx context.Context, dayID string) (*Day, error)
	// PriorQuestions returns every question of the program's completed days.
	PriorQuestions(ctx context.Context, programID string) ([]provider.InterviewQuestion, error)
}
