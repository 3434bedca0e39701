package interview

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vnmchuo/interview-gateway/internal/provider"
)

type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type PostgresStore struct {
	db DB
}

func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// storedListing is the job_listing_parsed column: the parsed listing with the
// generated questions folded in.
type storedListing struct {
	*provider.ParsedJobListing
	Questions []provider.InterviewQuestion `json:"questions"`
}

const interviewColumns = `id::text, user_id::text, job_title, company, seniority, job_listing_raw,
	job_listing_parsed, interview_style, overall_score, report, status, created_at, completed_at`

func (s *PostgresStore) Create(ctx context.Context, iv *Interview) (string, error) {
	listing, err := json.Marshal(storedListing{ParsedJobListing: iv.JobListing, Questions: iv.Questions})
	if err != nil {
		return "", fmt.Errorf("failed to encode job listing: %w", err)
	}

	query := `
		INSERT INTO interviews (user_id, job_title, company, seniority, job_listing_raw, job_listing_parsed, interview_style, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id::text
	`
	var id string
	err = s.db.QueryRow(ctx, query,
		iv.UserID, iv.JobTitle, iv.Company, iv.Seniority, iv.JobListingRaw,
		listing, iv.Style, StatusInProgress,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("failed to create interview: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) SaveAnswer(ctx context.Context, a *Answer) (string, error) {
	var eval []byte
	if a.Evaluation != nil {
		var err error
		if eval, err = json.Marshal(a.Evaluation); err != nil {
			return "", fmt.Errorf("failed to encode evaluation: %w", err)
		}
	}

	query := `
		INSERT INTO answers (interview_id, question_index, question_text, question_type, answer_text, score, evaluation)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id::text
	`
	var id string
	err := s.db.QueryRow(ctx, query,
		a.InterviewID, a.QuestionIndex, a.QuestionText, a.QuestionType, a.AnswerText, a.Score, eval,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("failed to save answer: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) Complete(ctx context.Context, id string, report *provider.InterviewReport) error {
	body, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	query := `
		UPDATE interviews
		SET overall_score = $2, report = $3, status = $4, completed_at = NOW()
		WHERE id = $1
	`
	tag, err := s.db.Exec(ctx, query, id, report.OverallScore, body, StatusCompleted)
	if err != nil {
		return fmt.Errorf("failed to complete interview: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListCompleted(ctx context.Context, userID string, limit int) ([]*Interview, error) {
	query := `
		SELECT ` + interviewColumns + `
		FROM interviews
		WHERE user_id = $1 AND status = $2
		ORDER BY completed_at DESC
		LIMIT $3
	`
	rows, err := s.db.Query(ctx, query, userID, StatusCompleted, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list interviews: %w", err)
	}
	defer rows.Close()

	out := []*Interview{}
	for rows.Next() {
		iv, err := scanInterview(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, iv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating interviews: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Interview, []*Answer, error) {
	query := `SELECT ` + interviewColumns + ` FROM interviews WHERE id = $1`
	iv, err := scanInterview(s.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, nil, err
	}

	rows, err := s.db.Query(ctx, `
		SELECT id::text, interview_id::text, question_index, question_text, question_type, answer_text, score, evaluation, created_at
		FROM answers
		WHERE interview_id = $1
		ORDER BY question_index
	`, id)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query answers: %w", err)
	}
	defer rows.Close()

	answers := []*Answer{}
	for rows.Next() {
		var a Answer
		var eval []byte
		if err := rows.Scan(&a.ID, &a.InterviewID, &a.QuestionIndex, &a.QuestionText, &a.QuestionType,
			&a.AnswerText, &a.Score, &eval, &a.CreatedAt); err != nil {
			return nil, nil, fmt.Errorf("failed to scan answer: %w", err)
		}
		if len(eval) > 0 {
			a.Evaluation = &provider.AnswerEvaluation{}
			if err := json.Unmarshal(eval, a.Evaluation); err != nil {
				return nil, nil, fmt.Errorf("failed to decode evaluation: %w", err)
			}
		}
		answers = append(answers, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("error iterating answers: %w", err)
	}
	return iv, answers, nil
}

func scanInterview(row pgx.Row) (*Interview, error) {
	var (
		iv          Interview
		listing     []byte
		report      []byte
		status      string
		completedAt *time.Time
	)
	err := row.Scan(&iv.ID, &iv.UserID, &iv.JobTitle, &iv.Company, &iv.Seniority, &iv.JobListingRaw,
		&listing, &iv.Style, &iv.OverallScore, &report, &status, &iv.CreatedAt, &completedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan interview: %w", err)
	}
	iv.Status = Status(status)
	iv.CompletedAt = completedAt

	if len(listing) > 0 {
		stored := storedListing{ParsedJobListing: &provider.ParsedJobListing{}}
		if err := json.Unmarshal(listing, &stored); err != nil {
			return nil, fmt.Errorf("failed to decode job listing: %w", err)
		}
		iv.JobListing = stored.ParsedJobListing
		iv.Questions = stored.Questions
	}
	if len(report) > 0 {
		iv.Report = &provider.InterviewReport{}
		if err := json.Unmarshal(report, iv.Report); err != nil {
			return nil, fmt.Errorf("failed to decode report: %w", err)
		}
	}
	return &iv, nil
}
