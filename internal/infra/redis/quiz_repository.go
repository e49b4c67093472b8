package redis

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"quizstreak-service/internal/domain"
	"quizstreak-service/internal/logger"
)

// QuizLoader fetches quiz content from a backing store.
type QuizLoader interface {
	LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// QuizRepository caches quizzes in Redis as JSON (quiz:{quizID}) and falls
// back to the loader on a miss. Question order is preserved since answers
// are graded by position.
type QuizRepository struct {
	client *redis.Client
	loader QuizLoader
	ttl    time.Duration
	log    *logger.Logger
	sf     singleflight.Group

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewQuizRepository(client *redis.Client, loader QuizLoader, ttl time.Duration, log *logger.Logger) *QuizRepository {
	if log == nil {
		log = logger.Nop()
	}
	return &QuizRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		log:    log,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *QuizRepository) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	if quiz, ok := r.cached(ctx, quizID); ok {
		return quiz, nil
	}

	result, err, _ := r.sf.Do(quizID, func() (interface{}, error) {
		// Another caller may have filled it.
		if quiz, ok := r.cached(ctx, quizID); ok {
			return quiz, nil
		}

		quiz, err := r.loader.LoadQuiz(ctx, quizID)
		if err != nil {
			return domain.Quiz{}, err
		}

		payload, err := json.Marshal(quiz)
		if err != nil {
			return domain.Quiz{}, err
		}
		// A cache write failure only costs a reload.
		if err := r.client.Set(ctx, quizKey(quizID), payload, r.ttlWithJitter()).Err(); err != nil {
			r.log.Warn("quiz cache write failed", "quizId", quizID, "error", err)
		}
		return quiz, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return result.(domain.Quiz), nil
}

// Invalidate evicts a quiz after its content changes.
func (r *QuizRepository) Invalidate(ctx context.Context, quizID string) error {
	return r.client.Del(ctx, quizKey(quizID)).Err()
}

func (r *QuizRepository) cached(ctx context.Context, quizID string) (domain.Quiz, bool) {
	raw, err := r.client.Get(ctx, quizKey(quizID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.log.Warn("quiz cache read failed", "quizId", quizID, "error", err)
		}
		return domain.Quiz{}, false
	}
	var quiz domain.Quiz
	if err := json.Unmarshal(raw, &quiz); err != nil {
		r.log.Warn("dropping corrupt quiz cache entry", "quizId", quizID, "error", err)
		_ = r.client.Del(ctx, quizKey(quizID)).Err()
		return domain.Quiz{}, false
	}
	return quiz, true
}

func quizKey(quizID string) string {
	return "quiz:" + quizID
}

func (r *QuizRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
