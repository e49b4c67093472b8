package memory

import (
	"context"
	"time"

	"quizstreak-service/internal/domain"
)

// QuizLoader fetches quiz content from a backing store.
type QuizLoader interface {
	LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// QuizRepository caches graded quiz content in process.
type QuizRepository struct {
	loader QuizLoader
	cache  *ttlCache[domain.Quiz]
}

func NewQuizRepository(loader QuizLoader, ttl time.Duration) *QuizRepository {
	return &QuizRepository{loader: loader, cache: newTTLCache[domain.Quiz](ttl)}
}

func (r *QuizRepository) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	return r.cache.get(ctx, quizID, func(ctx context.Context) (domain.Quiz, error) {
		return r.loader.LoadQuiz(ctx, quizID)
	})
}

// StaticQuizLoader serves a fixed quiz set (dev mode and tests).
type StaticQuizLoader struct {
	quizzes map[string]domain.Quiz
}

func NewStaticQuizLoader(quizzes map[string]domain.Quiz) *StaticQuizLoader {
	return &StaticQuizLoader{quizzes: quizzes}
}

func (l *StaticQuizLoader) LoadQuiz(_ context.Context, quizID string) (domain.Quiz, error) {
	if quiz, ok := l.quizzes[quizID]; ok {
		return quiz, nil
	}
	return domain.Quiz{}, domain.ErrQuizNotFound
}
