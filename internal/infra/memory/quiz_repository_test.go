package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"quizstreak-service/internal/domain"
)

func TestQuizRepositoryCaches(t *testing.T) {
	loader := &countingLoader{
		QuizLoader: NewStaticQuizLoader(map[string]domain.Quiz{
			"quiz-1": sampleQuiz(),
		}),
	}
	repo := NewQuizRepository(loader, time.Minute)

	if _, err := repo.GetQuiz(context.Background(), "quiz-1"); err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	if loader.calls.Load() != 1 {
		t.Fatalf("expected loader once, got %d", loader.calls.Load())
	}

	if _, err := repo.GetQuiz(context.Background(), "quiz-1"); err != nil {
		t.Fatalf("get quiz 2: %v", err)
	}
	if loader.calls.Load() != 1 {
		t.Fatalf("expected cache hit, loader calls %d", loader.calls.Load())
	}
}

func TestQuizRepositoryExpires(t *testing.T) {
	loader := &countingLoader{QuizLoader: NewStaticQuizLoader(map[string]domain.Quiz{"quiz-1": sampleQuiz()})}
	repo := NewQuizRepository(loader, time.Minute)
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	repo.cache.clock = func() time.Time { return now }

	if _, err := repo.GetQuiz(context.Background(), "quiz-1"); err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	now = now.Add(2 * time.Minute)
	if _, err := repo.GetQuiz(context.Background(), "quiz-1"); err != nil {
		t.Fatalf("get quiz after expiry: %v", err)
	}
	if loader.calls.Load() != 2 {
		t.Fatalf("expected reload after ttl, loader calls %d", loader.calls.Load())
	}
}

func TestQuizRepositoryNotFoundIsNotCached(t *testing.T) {
	loader := &countingLoader{QuizLoader: NewStaticQuizLoader(nil)}
	repo := NewQuizRepository(loader, time.Minute)

	for i := 0; i < 2; i++ {
		_, err := repo.GetQuiz(context.Background(), "missing")
		if !errors.Is(err, domain.ErrQuizNotFound) {
			t.Fatalf("expected ErrQuizNotFound, got %v", err)
		}
	}
	if loader.calls.Load() != 2 {
		t.Fatalf("expected misses to hit loader, calls %d", loader.calls.Load())
	}
}

func TestQuizRepositorySharesConcurrentLoads(t *testing.T) {
	release := make(chan struct{})
	loader := &countingLoader{
		QuizLoader: NewStaticQuizLoader(map[string]domain.Quiz{"quiz-1": sampleQuiz()}),
		gate:       release,
	}
	repo := NewQuizRepository(loader, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.GetQuiz(context.Background(), "quiz-1"); err != nil {
				t.Errorf("get quiz: %v", err)
			}
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if loader.calls.Load() != 1 {
		t.Fatalf("expected one shared load, got %d", loader.calls.Load())
	}
}

type countingLoader struct {
	QuizLoader
	gate  chan struct{}
	calls atomic.Int32
}

func (l *countingLoader) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	l.calls.Add(1)
	if l.gate != nil {
		<-l.gate
	}
	return l.QuizLoader.LoadQuiz(ctx, quizID)
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID:         "quiz-1",
		Subject:    "math",
		Difficulty: 2,
		Questions: []domain.Question{
			{
				ID:     "q1",
				Prompt: "What is 2 + 2?",
				Options: []domain.Option{
					{ID: "o1", Text: "3", Correct: false},
					{ID: "o2", Text: "4", Correct: true},
				},
			},
		},
	}
}
