// Package gamification holds the pure state-update rules: no I/O, snapshots
// in, deltas out.
package gamification

import (
	"math"
	"time"

	"quizstreak-service/internal/domain"
)

// Outcome is everything a single quiz completion changes.
type Outcome struct {
	User        domain.UserUpdate
	DailyStat   domain.DailyStatDelta
	Leaderboard domain.LeaderboardDelta
	// StreakIncremented is true only for the first completion of a UTC day.
	StreakIncremented bool
	// CorrectCount is informational and not persisted on the user.
	CorrectCount int
	// Projected is the input snapshot with User applied and derived fields recomputed.
	Projected domain.User
}

// ApplyQuizCompletion computes the effect of evt on user. Counters always
// accumulate; the streak advances only when the completion date differs from
// the last recorded one.
func ApplyQuizCompletion(user domain.User, evt domain.QuizCompletionEvent) (Outcome, error) {
	if err := evt.Validate(); err != nil {
		return Outcome{}, err
	}

	date := evt.CompletionDate()
	completedAt := evt.CompletedAt.UTC()
	avg := RunningAverage(user.AverageScore, user.TotalQuizzesCompleted, evt.Score)

	out := Outcome{CorrectCount: CorrectCount(evt.Score, evt.TotalQuestions)}
	out.User.Inc = domain.UserCounters{
		TotalPoints:            evt.PointsEarned,
		TotalQuizzesCompleted:  1,
		TotalQuestionsAnswered: evt.TotalQuestions,
	}
	out.User.Set.AverageScore = &avg
	out.User.Set.LastActiveAt = &completedAt

	projected := user
	projected.TotalPoints += evt.PointsEarned
	projected.TotalQuizzesCompleted++
	projected.TotalQuestionsAnswered += evt.TotalQuestions
	projected.AverageScore = avg
	projected.LastActiveAt = completedAt

	if user.LastQuizCompletedDateString != date {
		streak := user.CurrentStreak + 1
		longest := max(user.LongestStreak, streak)
		out.User.Set.CurrentStreak = &streak
		out.User.Set.LongestStreak = &longest
		out.User.Set.LastQuizCompletedDate = &completedAt
		out.User.Set.LastQuizCompletedDateString = &date
		out.StreakIncremented = true

		projected.CurrentStreak = streak
		projected.LongestStreak = longest
		projected.LastQuizCompletedDate = &completedAt
		projected.LastQuizCompletedDateString = date
	}
	projected.CurrentLevel, projected.PointsInCurrentLevel = DeriveLevel(projected.TotalPoints)
	out.Projected = projected

	out.DailyStat = domain.DailyStatDelta{
		UserID:            evt.UserID,
		Date:              date,
		QuizzesCompleted:  1,
		QuestionsAnswered: evt.TotalQuestions,
		PointsEarned:      evt.PointsEarned,
	}
	out.Leaderboard = domain.LeaderboardDelta{
		UserID:        evt.UserID,
		Username:      user.Username,
		Avatar:        user.Avatar,
		PointsToday:   evt.PointsEarned,
		TotalPoints:   projected.TotalPoints,
		CurrentStreak: projected.CurrentStreak,
		UpdatedAt:     completedAt,
	}
	return out, nil
}

// RunningAverage folds score into an average over completed quizzes, rounded
// to two decimals. A zero count ignores the prior average.
func RunningAverage(prev float64, completed, score int) float64 {
	if completed <= 0 {
		return round2(float64(score))
	}
	return round2((prev*float64(completed) + float64(score)) / float64(completed+1))
}

// CorrectCount estimates how many answers were right from a percentage score.
func CorrectCount(score, totalQuestions int) int {
	return int(math.Floor(float64(score)/100*float64(totalQuestions) + 0.5))
}

// DeriveLevel maps total points to (level, points inside the level). Levels
// are 100 points wide and start at 1.
func DeriveLevel(totalPoints int) (int, int) {
	if totalPoints < 0 {
		totalPoints = 0
	}
	return max(1, totalPoints/100+1), totalPoints % 100
}

// NeedsDerivedUpdate reports whether the stored level fields disagree with
// the ones derived from totalPoints.
func NeedsDerivedUpdate(u domain.User) bool {
	level, inLevel := DeriveLevel(u.TotalPoints)
	return u.CurrentLevel != level || u.PointsInCurrentLevel != inLevel
}

// Today returns the UTC calendar date of now.
func Today(now time.Time) string {
	return domain.DateString(now)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
