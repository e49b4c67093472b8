package app

import (
	"context"
	"time"

	"quizstreak-service/internal/domain"
)

// UserStore holds User records. Counter changes must be applied atomically by
// the backend (increment primitives), never as read-then-write.
type UserStore interface {
	GetUser(ctx context.Context, userID string) (domain.User, error)
	// UpdateUser applies increments and merged fields in one atomic write and
	// returns the record as stored afterwards.
	UpdateUser(ctx context.Context, userID string, upd domain.UserUpdate) (domain.User, error)
	// AddBadges appends each award not already owned (unique by badge ID),
	// bumping totalBadgesEarned and totalPoints by what was actually added.
	AddBadges(ctx context.Context, userID string, grants []domain.BadgeGrant) (domain.User, error)
	// SpendPoints atomically subtracts cost when the balance covers it and
	// merges set; it fails with domain.ErrInsufficientPoints otherwise.
	SpendPoints(ctx context.Context, userID string, cost int, set domain.UserFields) (domain.User, error)
	ListUsers(ctx context.Context) ([]domain.User, error)
	// ResetStreaks sets currentStreak to 0 for the given users in one batch,
	// skipping any that completed a quiz on today, froze their streak or hold
	// no streak at write time. It returns how many were reset.
	ResetStreaks(ctx context.Context, userIDs []string, today string) (int, error)
}

// DailyStatStore accumulates per-user-day aggregates.
type DailyStatStore interface {
	IncrementDailyStat(ctx context.Context, delta domain.DailyStatDelta, at time.Time) error
	GetDailyStat(ctx context.Context, userID, date string) (domain.DailyStat, error)
}

// LeaderboardStore holds the per-period projections.
type LeaderboardStore interface {
	// UpsertLeaderboardEntry increments pointsToday and mirrors the rest.
	UpsertLeaderboardEntry(ctx context.Context, period domain.LeaderboardPeriod, delta domain.LeaderboardDelta) error
	// ListLeaderboard returns entries in store iteration order.
	ListLeaderboard(ctx context.Context, period domain.LeaderboardPeriod) ([]domain.LeaderboardEntry, error)
	SetRanks(ctx context.Context, period domain.LeaderboardPeriod, ranks []domain.RankAssignment, at time.Time) error
}

// BadgeCatalog is the read-only badge catalog.
type BadgeCatalog interface {
	ListBadges(ctx context.Context) ([]domain.Badge, error)
}

// NotificationStore is append-only.
type NotificationStore interface {
	// CreateNotification inserts n unless a notification with the same ID
	// exists for the user; created reports whether a write happened.
	CreateNotification(ctx context.Context, n domain.Notification) (created bool, err error)
	ListNotifications(ctx context.Context, userID string) ([]domain.Notification, error)
}

// SessionStore exposes login sessions to the timeout sweep.
type SessionStore interface {
	ListActiveSessions(ctx context.Context) ([]domain.Session, error)
	// EndSessions ends the given sessions that are still active and whose
	// last activity is before idleBefore, and returns how many it ended.
	EndSessions(ctx context.Context, sessions []domain.Session, idleBefore, at time.Time) (int, error)
}

// AttemptStore keeps graded submissions per user.
type AttemptStore interface {
	RecordAttempt(ctx context.Context, a domain.QuizAttempt) error
	// ListAttempts returns up to limit attempts, newest first.
	ListAttempts(ctx context.Context, userID string, limit int) ([]domain.QuizAttempt, error)
}

// Store is the full document store the handlers depend on.
type Store interface {
	UserStore
	DailyStatStore
	LeaderboardStore
	NotificationStore
	SessionStore
	AttemptStore
}

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}
