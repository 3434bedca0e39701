package usage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore keeps one daily_usage row per (user, day), so rollover is a
// new primary key rather than a reset.
type PostgresStore struct {
	db DB
}

func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Get(ctx context.Context, userID, date string) (Record, error) {
	query := `
		SELECT ai_tokens, tts_chars
		FROM daily_usage
		WHERE user_id = $1 AND day = $2::date
	`

	rec := Record{UserID: userID, Date: date}
	err := s.db.QueryRow(ctx, query, userID, date).Scan(&rec.AITokens, &rec.TTSChars)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return rec, nil
		}
		return Record{}, fmt.Errorf("failed to get daily usage: %w", err)
	}

	return rec, nil
}

func (s *PostgresStore) Add(ctx context.Context, userID, date string, aiTokens, ttsChars int64) (Record, error) {
	query := `
		INSERT INTO daily_usage (user_id, day, ai_tokens, tts_chars)
		VALUES ($1, $2::date, $3, $4)
		ON CONFLICT (user_id, day) DO UPDATE
		SET ai_tokens = daily_usage.ai_tokens + EXCLUDED.ai_tokens,
		    tts_chars = daily_usage.tts_chars + EXCLUDED.tts_chars
		RETURNING ai_tokens, tts_chars
	`

	rec := Record{UserID: userID, Date: date}
	err := s.db.QueryRow(ctx, query, userID, date, aiTokens, ttsChars).Scan(&rec.AITokens, &rec.TTSChars)
	if err != nil {
		return Record{}, fmt.Errorf("failed to add daily usage: %w", err)
	}

	return rec, nil
}
