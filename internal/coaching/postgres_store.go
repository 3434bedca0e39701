package coaching

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

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

const (
	programColumns = `id::text, user_id::text, interview_id::text, current_day, status, started_at, completed_at`
	dayColumns     = `id::text, program_id::text, day_number, questions, status, started_at, completed_at`
	attemptColumns = `id::text, coaching_day_id::text, question_index, attempt_number, answer_text, evaluation, created_at`
)

func (s *PostgresStore) CreateProgram(ctx context.Context, userID, interviewID string) (*Program, error) {
	query := `
		INSERT INTO coaching_programs (user_id, interview_id, current_day, status)
		VALUES ($1, $2, 1, $3)
		RETURNING ` + programColumns
	p, err := scanProgram(s.db.QueryRow(ctx, query, userID, interviewID, ProgramActive))
	if err != nil {
		return nil, fmt.Errorf("failed to create coaching program: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) CreateDay(ctx context.Context, programID string, dayNumber int, questions []provider.InterviewQuestion) (*Day, error) {
	body, err := json.Marshal(questions)
	if err != nil {
		return nil, fmt.Errorf("failed to encode questions: %w", err)
	}
	query := `
		INSERT INTO coaching_days (program_id, day_number, questions, status)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + dayColumns
	d, err := scanDay(s.db.QueryRow(ctx, query, programID, dayNumber, body, DayPending))
	if err != nil {
		return nil, fmt.Errorf("failed to create coaching day: %w", err)
	}
	return d, nil
}

func (s *PostgresStore) StartDay(ctx context.Context, dayID string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE coaching_days SET status = $2, started_at = NOW() WHERE id = $1`,
		dayID, DayInProgress)
	if err != nil {
		return fmt.Errorf("failed to start day: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) SaveAttempt(ctx context.Context, a *Attempt) (string, error) {
	eval, err := json.Marshal(a.Evaluation)
	if err != nil {
		return "", fmt.Errorf("failed to encode evaluation: %w", err)
	}
	query := `
		INSERT INTO coaching_attempts (coaching_day_id, question_index, attempt_number, answer_text, evaluation)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id::text
	`
	var id string
	if err := s.db.QueryRow(ctx, query, a.DayID, a.QuestionIndex, a.AttemptNumber, a.AnswerText, eval).Scan(&id); err != nil {
		return "", fmt.Errorf("failed to save attempt: %w", err)
	}
	return id, nil
}

// CompleteDay closes the day and advances or finishes the program in one
// statement.
func (s *PostgresStore) CompleteDay(ctx context.Context, dayID, programID string) (*Program, error) {
	query := `
		WITH done AS (
			UPDATE coaching_days
			SET status = $3, completed_at = NOW()
			WHERE id = $1 AND program_id = $2
			RETURNING id
		)
		UPDATE coaching_programs
		SET current_day  = CASE WHEN current_day >= $4 THEN current_day ELSE current_day + 1 END,
		    status       = CASE WHEN current_day >= $4 THEN $5 ELSE status END,
		    completed_at = CASE WHEN current_day >= $4 THEN NOW() ELSE completed_at END
		WHERE id = $2 AND EXISTS (SELECT 1 FROM done)
		RETURNING ` + programColumns
	p, err := scanProgram(s.db.QueryRow(ctx, query, dayID, programID, DayCompleted, ProgramDays, ProgramCompleted))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to complete day: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) GetProgram(ctx context.Context, programID string) (*Program, error) {
	return scanProgram(s.db.QueryRow(ctx,
		`SELECT `+programColumns+` FROM coaching_programs WHERE id = $1`, programID))
}

func (s *PostgresStore) ActiveProgram(ctx context.Context, userID string) (*Program, error) {
	query := `
		SELECT ` + programColumns + `
		FROM coaching_programs
		WHERE user_id = $1 AND status = $2
		ORDER BY started_at DESC
		LIMIT 1
	`
	return scanProgram(s.db.QueryRow(ctx, query, userID, ProgramActive))
}

func (s *PostgresStore) Days(ctx context.Context, programID string) ([]*Day, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+dayColumns+` FROM coaching_days WHERE program_id = $1 ORDER BY day_number`, programID)
	if err != nil {
		return nil, fmt.Errorf("failed to query coaching days: %w", err)
	}
	days := []*Day{}
	byID := map[string]*Day{}
	for rows.Next() {
		d, err := scanDay(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		d.Attempts = []*Attempt{}
		days = append(days, d)
		byID[d.ID] = d
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating coaching days: %w", err)
	}

	attempts, err := s.attempts(ctx, `
		SELECT a.id::text, a.coaching_day_id::text, a.question_index, a.attempt_number, a.answer_text, a.evaluation, a.created_at
		FROM coaching_attempts a
		JOIN coaching_days d ON d.id = a.coaching_day_id
		WHERE d.program_id = $1
		ORDER BY a.question_index, a.attempt_number
	`, programID)
	if err != nil {
		return nil, err
	}
	for _, a := range attempts {
		if d, ok := byID[a.DayID]; ok {
			d.Attempts = append(d.Attempts, a)
		}
	}
	return days, nil
}

func (s *PostgresStore) GetDay(ctx context.Context, dayID string) (*Day, error) {
	d, err := scanDay(s.db.QueryRow(ctx, `SELECT `+dayColumns+` FROM coaching_days WHERE id = $1`, dayID))
	if err != nil {
		return nil, err
	}
	d.Attempts, err = s.attempts(ctx, `
		SELECT `+attemptColumns+`
		FROM coaching_attempts
		WHERE coaching_day_id = $1
		ORDER BY question_index, attempt_number
	`, dayID)
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (s *PostgresStore) PriorQuestions(ctx context.Context, programID string) ([]provider.InterviewQuestion, error) {
	rows, err := s.db.Query(ctx, `
		SELECT questions
		FROM coaching_days
		WHERE program_id = $1 AND status = $2
		ORDER BY day_number
	`, programID, DayCompleted)
	if err != nil {
		return nil, fmt.Errorf("failed to query prior questions: %w", err)
	}
	defer rows.Close()

	var out []provider.InterviewQuestion
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("failed to scan prior questions: %w", err)
		}
		var qs []provider.InterviewQuestion
		if len(body) > 0 {
			if err := json.Unmarshal(body, &qs); err != nil {
				return nil, fmt.Errorf("failed to decode prior questions: %w", err)
			}
		}
		out = append(out, qs...)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating prior questions: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) attempts(ctx context.Context, query string, arg string) ([]*Attempt, error) {
	rows, err := s.db.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to query attempts: %w", err)
	}
	defer rows.Close()

	out := []*Attempt{}
	for rows.Next() {
		var a Attempt
		var eval []byte
		if err := rows.Scan(&a.ID, &a.DayID, &a.QuestionIndex, &a.AttemptNumber, &a.AnswerText, &eval, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan attempt: %w", err)
		}
		if len(eval) > 0 {
			a.Evaluation = &Evaluation{}
			if err := json.Unmarshal(eval, a.Evaluation); err != nil {
				return nil, fmt.Errorf("failed to decode attempt evaluation: %w", err)
			}
		}
		out = append(out, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating attempts: %w", err)
	}
	return out, nil
}

func scanProgram(row pgx.Row) (*Program, error) {
	var p Program
	var status string
	if err := row.Scan(&p.ID, &p.UserID, &p.InterviewID, &p.CurrentDay, &status, &p.StartedAt, &p.CompletedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan coaching program: %w", err)
	}
	p.Status = ProgramStatus(status)
	return &p, nil
}

func scanDay(row pgx.Row) (*Day, error) {
	var d Day
	var status string
	var questions []byte
	if err := row.Scan(&d.ID, &d.ProgramID, &d.DayNumber, &questions, &status, &d.StartedAt, &d.CompletedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan coaching day: %w", err)
	}
	d.Status = DayStatus(status)
	if len(questions) > 0 {
		if err := json.Unmarshal(questions, &d.Questions); err != nil {
			return nil, fmt.Errorf("failed to decode day questions: %w", err)
		}
	}
	return &d, nil
}
