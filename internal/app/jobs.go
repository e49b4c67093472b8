package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"quizstreak-service/internal/domain"
	"quizstreak-service/internal/gamification"
)

// batchSize bounds how many records a single batch write touches.
const batchSize = 500

// reminderNamespace seeds deterministic reminder IDs (one per user per day).
var reminderNamespace = uuid.MustParse("6f1c3e0a-6b5e-4c1f-9a57-0f5e2b1d7c11")

// JobReport summarizes one scheduled run.
type JobReport struct {
	Job     string
	Scanned int
	Updated int
	Skipped int
	Failed  int
}

func (s *GamificationService) logReport(r JobReport, err error) {
	kv := []interface{}{"job", r.Job, "scanned", r.Scanned, "updated", r.Updated, "skipped", r.Skipped, "failed", r.Failed}
	if err != nil {
		s.log.Error("job finished with failures", append(kv, "error", err)...)
		return
	}
	s.log.Info("job finished", kv...)
}

// DailyStreakReset zeroes the streak of every unfrozen user who has not
// completed a quiz today. It is the only place streaks decay.
func (s *GamificationService) DailyStreakReset(ctx context.Context) (JobReport, error) {
	report := JobReport{Job: "daily-streak-reset"}
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return report, fmt.Errorf("list users: %w", err)
	}
	today := gamification.Today(s.now())

	var ids []string
	for _, u := range users {
		report.Scanned++
		if u.LastQuizCompletedDateString == today || u.StreakFrozen || u.CurrentStreak == 0 {
			report.Skipped++
			continue
		}
		ids = append(ids, u.ID)
	}

	var errs []error
	for start := 0; start < len(ids); start += batchSize {
		chunk := ids[start:min(start+batchSize, len(ids))]
		n, err := s.store.ResetStreaks(ctx, chunk, today)
		if err != nil {
			report.Failed += len(chunk)
			errs = append(errs, err)
			continue
		}
		// Users who completed a quiz since the scan are left alone.
		report.Updated += n
		report.Skipped += len(chunk) - n
	}
	err = errors.Join(errs...)
	s.logReport(report, err)
	return report, err
}

// RefreshLeaderboards reassigns ranks in every period: daily by pointsToday,
// the others by totalPoints. Ties keep store iteration order, so rank among
// equal scores is advisory.
func (s *GamificationService) RefreshLeaderboards(ctx context.Context) (JobReport, error) {
	report := JobReport{Job: "refresh-leaderboards"}
	now := s.now().UTC()

	var errs []error
	for _, period := range domain.LeaderboardPeriods {
		entries, err := s.store.ListLeaderboard(ctx, period)
		if err != nil {
			errs = append(errs, fmt.Errorf("list %s: %w", period, err))
			continue
		}
		report.Scanned += len(entries)

		ranked := RankEntries(entries)
		ranks := make([]domain.RankAssignment, len(ranked))
		for i, e := range ranked {
			ranks[i] = domain.RankAssignment{UserID: e.UserID, Rank: e.Rank}
		}
		if err := s.store.SetRanks(ctx, period, ranks, now); err != nil {
			report.Failed += len(ranks)
			errs = append(errs, fmt.Errorf("rank %s: %w", period, err))
			continue
		}
		report.Updated += len(ranks)

		if s.publisher != nil {
			for i := range ranked {
				ranked[i].LastUpdatedAt = now
			}
			s.publisher.Publish(domain.Leaderboard{Period: period, Entries: ranked, UpdatedAt: now})
		}
	}
	err := errors.Join(errs...)
	s.logReport(report, err)
	return report, err
}

// RankEntries returns a copy sorted by the period's points, descending, with
// ranks 1..n assigned in that order.
func RankEntries(entries []domain.LeaderboardEntry) []domain.LeaderboardEntry {
	ranked := make([]domain.LeaderboardEntry, len(entries))
	copy(ranked, entries)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].SortPoints() > ranked[j].SortPoints()
	})
	for i := range ranked {
		ranked[i].Rank = i + 1
	}
	return ranked
}

// SendStreakReminders creates one in-app reminder for each user with a live
// streak and no completion today. Reminder IDs are derived from user and
// date, so a rerun on the same day adds nothing.
func (s *GamificationService) SendStreakReminders(ctx context.Context) (JobReport, error) {
	report := JobReport{Job: "streak-reminders"}
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return report, fmt.Errorf("list users: %w", err)
	}
	now := s.now().UTC()
	today := gamification.Today(now)

	var errs []error
	for _, u := range users {
		report.Scanned++
		if u.CurrentStreak <= 0 || u.LastQuizCompletedDateString == today {
			report.Skipped++
			continue
		}
		created, err := s.store.CreateNotification(ctx, StreakReminder(u.ID, today, now))
		if err != nil {
			report.Failed++
			errs = append(errs, fmt.Errorf("remind %s: %w", u.ID, err))
			continue
		}
		if !created {
			report.Skipped++
			continue
		}
		report.Updated++
	}
	err = errors.Join(errs...)
	s.logReport(report, err)
	return report, err
}

// StreakReminder builds the reminder notification for userID on date.
func StreakReminder(userID, date string, now time.Time) domain.Notification {
	id := uuid.NewSHA1(reminderNamespace, []byte(userID+"|"+domain.NotificationStreakReminder+"|"+date))
	delivered := now
	return domain.Notification{
		ID:             id.String(),
		UserID:         userID,
		Type:           domain.NotificationStreakReminder,
		Title:          "Keep your streak alive! 🔥",
		Message:        "Complete a quiz today to continue your streak.",
		DeliveryMethod: "in-app",
		Delivered:      true,
		CreatedAt:      now,
		DeliveredAt:    &delivered,
	}
}

// HandleSessionTimeout ends active sessions idle for longer than the
// configured timeout. Sessions without lastActivityAt are left alone.
func (s *GamificationService) HandleSessionTimeout(ctx context.Context) (JobReport, error) {
	report := JobReport{Job: "session-timeout"}
	sessions, err := s.store.ListActiveSessions(ctx)
	if err != nil {
		return report, fmt.Errorf("list sessions: %w", err)
	}
	now := s.now().UTC()

	idleBefore := now.Add(-s.sessionTimeout)
	var stale []domain.Session
	for _, sess := range sessions {
		report.Scanned++
		if sess.LastActivityAt == nil || !sess.LastActivityAt.Before(idleBefore) {
			report.Skipped++
			continue
		}
		stale = append(stale, sess)
	}

	var errs []error
	for start := 0; start < len(stale); start += batchSize {
		chunk := stale[start:min(start+batchSize, len(stale))]
		n, err := s.store.EndSessions(ctx, chunk, idleBefore, now)
		if err != nil {
			report.Failed += len(chunk)
			errs = append(errs, err)
			continue
		}
		report.Updated += n
		report.Skipped += len(chunk) - n
	}
	err = errors.Join(errs...)
	s.logReport(report, err)
	return report, err
}
