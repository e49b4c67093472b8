package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"quizstreak-service/internal/domain"
	"quizstreak-service/internal/gamification"
	"quizstreak-service/internal/logger"
)

const (
	defaultSessionTimeout = 30 * time.Minute
	derivedUpdateAttempts = 3
)

// LeaderboardPublisher receives ranked snapshots after each refresh.
type LeaderboardPublisher interface {
	Publish(lb domain.Leaderboard)
}

// Publishers fans a snapshot out to several publishers in order.
type Publishers []LeaderboardPublisher

func (ps Publishers) Publish(lb domain.Leaderboard) {
	for _, p := range ps {
		p.Publish(lb)
	}
}

// GamificationService hosts the event handlers and scheduled jobs that keep
// per-user gamification state up to date. It holds no per-invocation state.
type GamificationService struct {
	store          Store
	badges         BadgeCatalog
	log            *logger.Logger
	now            func() time.Time
	sessionTimeout time.Duration
	publisher      LeaderboardPublisher
}

// Option customizes a GamificationService.
type Option func(*GamificationService)

// WithClock overrides time.Now; tests use it for deterministic day boundaries.
func WithClock(now func() time.Time) Option {
	return func(s *GamificationService) { s.now = now }
}

// WithSessionTimeout sets the inactivity window after which sessions end.
func WithSessionTimeout(d time.Duration) Option {
	return func(s *GamificationService) {
		if d > 0 {
			s.sessionTimeout = d
		}
	}
}

// WithLeaderboardPublisher fans refreshed leaderboards out to subscribers.
func WithLeaderboardPublisher(p LeaderboardPublisher) Option {
	return func(s *GamificationService) { s.publisher = p }
}

func NewGamificationService(store Store, badges BadgeCatalog, log *logger.Logger, opts ...Option) *GamificationService {
	s := &GamificationService{
		store:          store,
		badges:         badges,
		log:            log,
		now:            time.Now,
		sessionTimeout: defaultSessionTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PartialFailureError reports follow-up writes that failed after the user
// counters were committed. Retrying the whole handler would double count, so
// Retry treats it as permanent; the badge step is re-runnable on its own.
type PartialFailureError struct {
	UserID string
	Err    error
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("quiz submission for %s partially applied: %v", e.UserID, e.Err)
}

func (e *PartialFailureError) Unwrap() error { return e.Err }

// SubmissionResult is what a processed quiz completion produced.
type SubmissionResult struct {
	User              domain.User
	StreakIncremented bool
	CorrectCount      int
	Awards            []domain.BadgeAward
}

// OnQuizSubmitted applies a quiz completion: user counters and streak, the
// day's stat, the leaderboard mirrors, then badge awards. Writes are not one
// transaction; see PartialFailureError.
func (s *GamificationService) OnQuizSubmitted(ctx context.Context, evt domain.QuizCompletionEvent) (SubmissionResult, error) {
	if err := evt.Validate(); err != nil {
		return SubmissionResult{}, err
	}
	user, err := s.store.GetUser(ctx, evt.UserID)
	if err != nil {
		return SubmissionResult{}, fmt.Errorf("load user %s: %w", evt.UserID, err)
	}

	out, err := gamification.ApplyQuizCompletion(user, evt)
	if err != nil {
		return SubmissionResult{}, err
	}

	updated, err := s.store.UpdateUser(ctx, evt.UserID, out.User)
	if err != nil {
		return SubmissionResult{}, fmt.Errorf("update user %s: %w", evt.UserID, err)
	}
	s.userWritten(ctx, updated)

	result := SubmissionResult{
		User:              updated,
		StreakIncremented: out.StreakIncremented,
		CorrectCount:      out.CorrectCount,
	}

	var errs []error
	if err := s.store.IncrementDailyStat(ctx, out.DailyStat, s.now()); err != nil {
		errs = append(errs, fmt.Errorf("daily stat: %w", err))
	}

	delta := out.Leaderboard
	delta.TotalPoints = updated.TotalPoints
	delta.CurrentStreak = updated.CurrentStreak
	for _, period := range domain.LeaderboardPeriods {
		if err := s.store.UpsertLeaderboardEntry(ctx, period, delta); err != nil {
			errs = append(errs, fmt.Errorf("leaderboard %s: %w", period, err))
		}
	}

	awards, after, err := s.awardBadges(ctx, updated)
	if err != nil {
		errs = append(errs, fmt.Errorf("badges: %w", err))
	} else {
		result.Awards = awards
		result.User = after
	}
	result.User.CurrentLevel, result.User.PointsInCurrentLevel = gamification.DeriveLevel(result.User.TotalPoints)

	if len(errs) > 0 {
		joined := errors.Join(errs...)
		s.log.Error("quiz submission partially applied", "userId", evt.UserID, "error", joined)
		return result, &PartialFailureError{UserID: evt.UserID, Err: joined}
	}
	return result, nil
}

// CheckAndAwardBadges re-evaluates the catalog against the stored user and
// persists new awards. Safe to rerun: owned badges are skipped.
func (s *GamificationService) CheckAndAwardBadges(ctx context.Context, userID string) ([]domain.BadgeAward, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user %s: %w", userID, err)
	}
	awards, _, err := s.awardBadges(ctx, user)
	return awards, err
}

func (s *GamificationService) awardBadges(ctx context.Context, user domain.User) ([]domain.BadgeAward, domain.User, error) {
	catalog, err := s.badges.ListBadges(ctx)
	if err != nil {
		return nil, user, fmt.Errorf("load badge catalog: %w", err)
	}
	awards, pointsDelta := gamification.CheckAndAwardBadges(user, catalog, s.now())
	if len(awards) == 0 {
		return nil, user, nil
	}

	pointsByID := make(map[string]int, len(catalog))
	for _, b := range catalog {
		pointsByID[b.ID] = max(0, b.Points)
	}
	grants := make([]domain.BadgeGrant, 0, len(awards))
	for _, a := range awards {
		grants = append(grants, domain.BadgeGrant{Award: a, Points: pointsByID[a.BadgeID]})
	}

	after, err := s.store.AddBadges(ctx, user.ID, grants)
	if err != nil {
		return nil, user, fmt.Errorf("persist badges for %s: %w", user.ID, err)
	}
	s.log.Info("badges awarded", "userId", user.ID, "count", len(awards), "points", pointsDelta)
	s.userWritten(ctx, after)
	return awards, after, nil
}

// UpdateDerivedFields recomputes level fields after a user write. It is a
// no-op when the record is gone or already consistent, which also stops the
// write it performs from re-triggering work.
func (s *GamificationService) UpdateDerivedFields(ctx context.Context, evt domain.UserWriteEvent) error {
	after := evt.After
	for attempt := 0; attempt < derivedUpdateAttempts; attempt++ {
		if after == nil || !gamification.NeedsDerivedUpdate(*after) {
			return nil
		}
		level, inLevel := gamification.DeriveLevel(after.TotalPoints)
		now := s.now().UTC()
		stored, err := s.store.UpdateUser(ctx, evt.UserID, domain.UserUpdate{Set: domain.UserFields{
			CurrentLevel:         &level,
			PointsInCurrentLevel: &inLevel,
			LastDataRefresh:      &now,
		}})
		if errors.Is(err, domain.ErrUserNotFound) {
			s.log.Warn("user gone before derived update", "userId", evt.UserID)
			return nil
		}
		if err != nil {
			return fmt.Errorf("derive level for %s: %w", evt.UserID, err)
		}
		// A concurrent increment may have landed between the two writes.
		after = &stored
	}
	return nil
}

func (s *GamificationService) userWritten(ctx context.Context, after domain.User) {
	if err := s.UpdateDerivedFields(ctx, domain.UserWriteEvent{UserID: after.ID, After: &after}); err != nil {
		s.log.Warn("derived field update failed", "userId", after.ID, "error", err)
	}
}

// FreezeStreak spends cost points to protect the streak from the next resets.
func (s *GamificationService) FreezeStreak(ctx context.Context, userID string, cost int) (domain.User, error) {
	frozen := true
	after, err := s.store.SpendPoints(ctx, userID, cost, domain.UserFields{StreakFrozen: &frozen})
	if err != nil {
		return domain.User{}, fmt.Errorf("freeze streak for %s: %w", userID, err)
	}
	s.userWritten(ctx, after)
	level, inLevel := gamification.DeriveLevel(after.TotalPoints)
	after.CurrentLevel, after.PointsInCurrentLevel = level, inLevel
	return after, nil
}

// UpdateProfile merges profile fields into the user record.
func (s *GamificationService) UpdateProfile(ctx context.Context, userID string, fields domain.UserFields) (domain.User, error) {
	after, err := s.store.UpdateUser(ctx, userID, domain.UserUpdate{Set: fields})
	if err != nil {
		return domain.User{}, fmt.Errorf("update profile for %s: %w", userID, err)
	}
	s.userWritten(ctx, after)
	level, inLevel := gamification.DeriveLevel(after.TotalPoints)
	after.CurrentLevel, after.PointsInCurrentLevel = level, inLevel
	return after, nil
}
