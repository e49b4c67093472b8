package app_test

import (
	"context"
	"errors"
	"time"

	"quizstreak-service/internal/app"
	"quizstreak-service/internal/domain"
	"quizstreak-service/internal/infra/memory"
	"quizstreak-service/internal/logger"
)

var day1 = time.Date(2024, 3, 10, 9, 30, 0, 0, time.UTC)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func testBadges() *memory.StaticBadgeCatalog {
	return memory.NewStaticBadgeCatalog(
		domain.Badge{ID: "first-quiz", Name: "First Steps", Rarity: "common", Points: 10,
			Criteria: domain.BadgeCriteria{Type: domain.CriteriaVolume, Threshold: 1}},
		domain.Badge{ID: "streak-3", Name: "On Fire", Points: 15,
			Criteria: domain.BadgeCriteria{Type: domain.CriteriaStreak, Threshold: 3}},
	)
}

func newHandlers(store app.Store, c *clock, opts ...app.Option) *app.GamificationService {
	opts = append([]app.Option{app.WithClock(c.Now)}, opts...)
	return app.NewGamificationService(store, testBadges(), logger.Nop(), opts...)
}

func completion(userID string, at time.Time, score, points int) domain.QuizCompletionEvent {
	return domain.QuizCompletionEvent{
		UserID:         userID,
		Score:          score,
		PointsEarned:   points,
		TotalQuestions: 10,
		Subject:        "math",
		CompletedAt:    at,
	}
}

// flakyStore fails selected operations while delegating the rest.
type flakyStore struct {
	*memory.Store
	failDailyStat  error
	failUpdateUser error
	updateCalls    int
}

func (s *flakyStore) IncrementDailyStat(ctx context.Context, d domain.DailyStatDelta, at time.Time) error {
	if s.failDailyStat != nil {
		return s.failDailyStat
	}
	return s.Store.IncrementDailyStat(ctx, d, at)
}

func (s *flakyStore) UpdateUser(ctx context.Context, userID string, upd domain.UserUpdate) (domain.User, error) {
	s.updateCalls++
	if s.failUpdateUser != nil {
		err := s.failUpdateUser
		s.failUpdateUser = nil
		return domain.User{}, err
	}
	return s.Store.UpdateUser(ctx, userID, upd)
}

var errBoom = errors.New("boom")
