package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"quizstreak-service/internal/domain"
)

// QuizLoader loads quiz JSONB from Postgres.
type QuizLoader struct {
	pool *pgxpool.Pool
}

func NewQuizLoader(pool *pgxpool.Pool) *QuizLoader {
	return &QuizLoader{pool: pool}
}

func (l *QuizLoader) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	var raw []byte
	err := l.pool.QueryRow(ctx, `SELECT data FROM quizzes WHERE id=$1`, quizID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.Quiz{}, domain.Transient("load quiz", err)
	}
	var quiz domain.Quiz
	if err := json.Unmarshal(raw, &quiz); err != nil {
		return domain.Quiz{}, fmt.Errorf("unmarshal quiz: %w", err)
	}
	quiz.ID = quizID
	return quiz, nil
}

// SaveQuiz inserts or replaces a quiz.
func (l *QuizLoader) SaveQuiz(ctx context.Context, quiz domain.Quiz) error {
	data, err := json.Marshal(quiz)
	if err != nil {
		return fmt.Errorf("marshal quiz: %w", err)
	}
	_, err = l.pool.Exec(ctx, `
		INSERT INTO quizzes (id, subject, difficulty, data)
		VALUES ($1, $2, $3, $4::jsonb)
		ON CONFLICT (id) DO UPDATE
		SET subject = EXCLUDED.subject, difficulty = EXCLUDED.difficulty, data = EXCLUDED.data`,
		quiz.ID, quiz.Subject, quiz.Difficulty, string(data))
	if err != nil {
		return fmt.Errorf("save quiz %s: %w", quiz.ID, err)
	}
	return nil
}
