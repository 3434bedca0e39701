// Package interview persists mock interviews and their answers for
// authenticated users.
package interview

import (
	"context"
	"errors"
	"time"

	"github.com/vnmchuo/interview-gateway/internal/provider"
)

// HistoryLimit is how many completed interviews the history lists.
const HistoryLimit = 30

var ErrNotFound = errors.New("interview not found")

type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusAbandoned  Status = "abandoned"
)

type Interview struct {
	ID            string                       `json:"id"`
	UserID        string                       `json:"user_id"`
	JobTitle      string                       `json:"job_title"`
	Company       *string                      `json:"company"`
	Seniority     *string                      `json:"seniority"`
	JobListingRaw *string                      `json:"job_listing_raw"`
	JobListing    *provider.ParsedJobListing   `json:"job_listing_parsed"`
	Questions     []provider.InterviewQuestion `json:"questions"`
	Style         string                       `json:"interview_style"`
	OverallScore  *int                         `json:"overall_score"`
	Report        *provider.InterviewReport    `json:"report"`
	Status        Status                       `json:"status"`
	CreatedAt     time.Time                    `json:"created_at"`
	CompletedAt   *time.Time                   `json:"completed_at"`
}

type Answer struct {
	ID            string                     `json:"id"`
	InterviewID   string                     `json:"interview_id"`
	QuestionIndex int                        `json:"question_index"`
	QuestionText  string                     `json:"question_text"`
	QuestionType  string                     `json:"question_type"`
	AnswerText    string                     `json:"answer_text"`
	Score         *int                       `json:"score"`
	Evaluation    *provider.AnswerEvaluation `json:"evaluation"`
	CreatedAt     time.Time                  `json:"created_at"`
}

type Store interface {
	// Create stores a new in-progress interview and returns its id.
	Create(ctx context.Context, iv *Interview) (string, error)
	SaveAnswer(ctx context.Context, a *Answer) (string, error)
	// Complete attaches the final report and marks the interview completed.
	Complete(ctx context.Context, id string, report *provider.InterviewReport) error
	// ListCompleted returns the user's completed interviews, newest first.
	ListCompleted(ctx context.Context, userID string, limit int) ([]*Interview, error)
	// Get returns an interview and its answers ordered by question index.
	Get(ctx context.Context, id string) (*Interview, []*Answer, error)
}

// New builds an in-progress interview record from a parsed listing.
func New(userID string, job *provider.ParsedJobListing, style string, questions []provider.InterviewQuestion) *Interview {
	if job == nil {
		job = &provider.ParsedJobListing{}
	}
	if style == "" {
		style = "general"
	}
	title := job.Title
	if title == "" {
		title = "Unknown"
	}
	return &Interview{
		UserID:        userID,
		JobTitle:      title,
		Company:       optional(job.Company),
		Seniority:     optional(job.Seniority),
		JobListingRaw: optional(job.Raw),
		JobListing:    job,
		Questions:     questions,
		Style:         style,
		Status:        StatusInProgress,
	}
}

// NewAnswer builds the answer record for an evaluated question.
func NewAnswer(interviewID string, index int, q *provider.InterviewQuestion, answer string, eval *provider.AnswerEvaluation) *Answer {
	a := &Answer{
		InterviewID:   interviewID,
		QuestionIndex: index,
		QuestionText:  q.Question,
		QuestionType:  string(q.Type),
		AnswerText:    answer,
		Evaluation:    eval,
	}
	if eval != nil {
		score := eval.Score
		a.Score = &score
	}
	return a
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
