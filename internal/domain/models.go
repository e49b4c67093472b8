package domain

import "time"

// DateLayout is the ISO calendar date format used for day keys (UTC).
const DateLayout = "2006-01-02"

// DateString formats t as a UTC calendar date.
func DateString(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// User is the per-user gamification record.
type User struct {
	ID                          string       `json:"userId" bson:"_id"`
	Username                    string       `json:"username" bson:"username"`
	Avatar                      string       `json:"avatar" bson:"avatar"`
	TotalPoints                 int          `json:"totalPoints" bson:"totalPoints"`
	TotalQuizzesCompleted       int          `json:"totalQuizzesCompleted" bson:"totalQuizzesCompleted"`
	TotalQuestionsAnswered      int          `json:"totalQuestionsAnswered" bson:"totalQuestionsAnswered"`
	AverageScore                float64      `json:"averageScore" bson:"averageScore"`
	CurrentStreak               int          `json:"currentStreak" bson:"currentStreak"`
	LongestStreak               int          `json:"longestStreak" bson:"longestStreak"`
	StreakFrozen                bool         `json:"streakFrozen" bson:"streakFrozen"`
	LastQuizCompletedDate       *time.Time   `json:"lastQuizCompletedDate,omitempty" bson:"lastQuizCompletedDate,omitempty"`
	LastQuizCompletedDateString string       `json:"lastQuizCompletedDateString,omitempty" bson:"lastQuizCompletedDateString,omitempty"`
	CurrentLevel                int          `json:"currentLevel" bson:"currentLevel"`
	PointsInCurrentLevel        int          `json:"pointsInCurrentLevel" bson:"pointsInCurrentLevel"`
	BadgesEarned                []BadgeAward `json:"badgesEarned" bson:"badgesEarned,omitempty"`
	TotalBadgesEarned           int          `json:"totalBadgesEarned" bson:"totalBadgesEarned"`
	LastActiveAt                time.Time    `json:"lastActiveAt" bson:"lastActiveAt"`
	LastDataRefresh             *time.Time   `json:"lastDataRefresh,omitempty" bson:"lastDataRefresh,omitempty"`
}

// HasBadge reports whether the badge is already owned.
func (u User) HasBadge(badgeID string) bool {
	for _, b := range u.BadgesEarned {
		if b.BadgeID == badgeID {
			return true
		}
	}
	return false
}

// UserCounters are the fields that only ever move by atomic increment.
type UserCounters struct {
	TotalPoints            int
	TotalQuizzesCompleted  int
	TotalQuestionsAnswered int
}

// IsZero reports whether no counter changes.
func (c UserCounters) IsZero() bool {
	return c == UserCounters{}
}

// UserFields are merge-set fields; nil means "leave unchanged".
type UserFields struct {
	Username                    *string
	Avatar                      *string
	AverageScore                *float64
	CurrentStreak               *int
	LongestStreak               *int
	StreakFrozen                *bool
	LastQuizCompletedDate       *time.Time
	LastQuizCompletedDateString *string
	CurrentLevel                *int
	PointsInCurrentLevel        *int
	LastActiveAt                *time.Time
	LastDataRefresh             *time.Time
}

// UserUpdate combines increments and merged fields applied in one store call.
type UserUpdate struct {
	Inc UserCounters
	Set UserFields
}

// DailyStat aggregates one user-day.
type DailyStat struct {
	UserID            string    `json:"userId" bson:"userId"`
	Date              string    `json:"date" bson:"date"`
	QuizzesCompleted  int       `json:"quizzesCompleted" bson:"quizzesCompleted"`
	QuestionsAnswered int       `json:"questionsAnswered" bson:"questionsAnswered"`
	PointsEarned      int       `json:"pointsEarned" bson:"pointsEarned"`
	BestScore         int       `json:"bestScore" bson:"bestScore"`
	UpdatedAt         time.Time `json:"updatedAt" bson:"updatedAt"`
}

// DailyStatDelta accumulates into the (UserID, Date) record.
type DailyStatDelta struct {
	UserID            string
	Date              string
	QuizzesCompleted  int
	QuestionsAnswered int
	PointsEarned      int
	// BestScore is always zero; the stored field is never moved.
	BestScore int
}

// LeaderboardPeriod names an independently ranked projection.
type LeaderboardPeriod string

const (
	PeriodDaily   LeaderboardPeriod = "daily"
	PeriodWeekly  LeaderboardPeriod = "weekly"
	PeriodAllTime LeaderboardPeriod = "all-time"
)

// LeaderboardPeriods lists every period in refresh order.
var LeaderboardPeriods = []LeaderboardPeriod{PeriodDaily, PeriodWeekly, PeriodAllTime}

// ParsePeriod validates a period name.
func ParsePeriod(raw string) (LeaderboardPeriod, error) {
	for _, p := range LeaderboardPeriods {
		if string(p) == raw {
			return p, nil
		}
	}
	return "", &ValidationError{Field: "period", Reason: "unknown leaderboard period " + raw}
}

// LeaderboardEntry is one user's row in a period projection.
type LeaderboardEntry struct {
	Period        LeaderboardPeriod `json:"period" bson:"period"`
	UserID        string            `json:"userId" bson:"userId"`
	Username      string            `json:"username" bson:"username"`
	Avatar        string            `json:"avatar" bson:"avatar"`
	PointsToday   int               `json:"pointsToday" bson:"pointsToday"`
	TotalPoints   int               `json:"totalPoints" bson:"totalPoints"`
	CurrentStreak int               `json:"currentStreak" bson:"currentStreak"`
	Rank          int               `json:"rank" bson:"rank"`
	LastUpdatedAt time.Time         `json:"lastUpdatedAt" bson:"lastUpdatedAt"`
}

// SortPoints is the value the period is ranked by.
func (e LeaderboardEntry) SortPoints() int {
	if e.Period == PeriodDaily {
		return e.PointsToday
	}
	return e.TotalPoints
}

// LeaderboardDelta is applied to one period entry after a quiz completion.
type LeaderboardDelta struct {
	UserID        string
	Username      string
	Avatar        string
	PointsToday   int
	TotalPoints   int
	CurrentStreak int
	UpdatedAt     time.Time
}

// RankAssignment is written back by the refresh job.
type RankAssignment struct {
	UserID string
	Rank   int
}

// Leaderboard is a ranked snapshot of one period.
type Leaderboard struct {
	Period    LeaderboardPeriod  `json:"period"`
	Entries   []LeaderboardEntry `json:"entries"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// CriteriaType selects which user counter a badge is checked against.
type CriteriaType string

const (
	CriteriaStreak CriteriaType = "streak"
	CriteriaScore  CriteriaType = "score"
	CriteriaVolume CriteriaType = "volume"
)

// BadgeCriteria is a single threshold rule.
type BadgeCriteria struct {
	Type      CriteriaType `json:"type" bson:"type"`
	Threshold float64      `json:"threshold" bson:"threshold"`
}

// Badge is a static catalog entry. Catalog entries must not depend on one
// another: awarding one badge never makes another eligible in the same pass.
type Badge struct {
	ID          string        `json:"badgeId" bson:"_id"`
	Name        string        `json:"name" bson:"name"`
	Description string        `json:"description" bson:"description"`
	Rarity      string        `json:"rarity" bson:"rarity"`
	Points      int           `json:"points" bson:"points"`
	Criteria    BadgeCriteria `json:"criteria" bson:"criteria"`
}

// BadgeAward is embedded in User.BadgesEarned, unique by BadgeID.
type BadgeAward struct {
	BadgeID    string    `json:"badgeId" bson:"badgeId"`
	BadgeName  string    `json:"badgeName" bson:"badgeName"`
	Rarity     string    `json:"rarity" bson:"rarity"`
	UnlockedAt time.Time `json:"unlockedAt" bson:"unlockedAt"`
}

// BadgeGrant pairs an award with the points it unlocks.
type BadgeGrant struct {
	Award  BadgeAward
	Points int
}

// Session is a login session scoped under a user.
type Session struct {
	ID             string     `json:"sessionId" bson:"_id"`
	UserID         string     `json:"userId" bson:"userId"`
	IsActive       bool       `json:"isActive" bson:"isActive"`
	LastActivityAt *time.Time `json:"lastActivityAt,omitempty" bson:"lastActivityAt,omitempty"`
	EndedAt        *time.Time `json:"endedAt,omitempty" bson:"endedAt,omitempty"`
}

// NotificationStreakReminder is the only notification type created here.
const NotificationStreakReminder = "streak_reminder"

// Notification is an append-only per-user message.
type Notification struct {
	ID             string     `json:"notificationId" bson:"_id"`
	UserID         string     `json:"userId" bson:"userId"`
	Type           string     `json:"type" bson:"type"`
	Title          string     `json:"title" bson:"title"`
	Message        string     `json:"message" bson:"message"`
	DeliveryMethod string     `json:"deliveryMethod" bson:"deliveryMethod"`
	Delivered      bool       `json:"delivered" bson:"delivered"`
	CreatedAt      time.Time  `json:"createdAt" bson:"createdAt"`
	DeliveredAt    *time.Time `json:"deliveredAt,omitempty" bson:"deliveredAt,omitempty"`
}

// QuizAttempt is the graded record of one submission, kept per user.
type QuizAttempt struct {
	ID                string    `json:"attemptId" bson:"_id"`
	UserID            string    `json:"userId" bson:"userId"`
	QuizID            string    `json:"quizId" bson:"quizId"`
	Subject           string    `json:"subject,omitempty" bson:"subject,omitempty"`
	Score             int       `json:"score" bson:"score"`
	TotalQuestions    int       `json:"totalQuestions" bson:"totalQuestions"`
	PointsEarned      int       `json:"pointsEarned" bson:"pointsEarned"`
	StreakIncremented bool      `json:"streakIncremented" bson:"streakIncremented"`
	Answers           []string  `json:"answers" bson:"answers"`
	CompletedAt       time.Time `json:"completedAt" bson:"completedAt"`
}

// Option represents a possible answer for a question.
type Option struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	Correct bool   `json:"correct"`
}

// Question models an MCQ question with exactly one correct option.
type Question struct {
	ID      string   `json:"id"`
	Prompt  string   `json:"prompt"`
	Options []Option `json:"options"`
}

// CorrectOption returns the ID of the correct option, or "" when none is flagged.
func (q Question) CorrectOption() string {
	for _, opt := range q.Options {
		if opt.Correct {
			return opt.ID
		}
	}
	return ""
}

// Quiz is a collection of questions.
type Quiz struct {
	ID         string     `json:"id"`
	Subject    string     `json:"subject"`
	Difficulty int        `json:"difficulty"` // 1-5, defaults to 3 if zero
	Questions  []Question `json:"questions"`
}
