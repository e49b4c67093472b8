package app

import (
	"context"
	"errors"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"quizstreak-service/internal/domain"
	"quizstreak-service/internal/gamification"
)

const (
	defaultLeaderboardLimit = 10
	maxLeaderboardLimit     = 100
	maxProgressItems        = 50
	maxUsernameLength       = 32
	maxAvatarLength         = 2048
	// DefaultFreezeCost is what a streak freeze costs unless configured.
	DefaultFreezeCost = 50
)

// QuizService contains the client-facing use cases: grading a submission and
// reading derived state.
type QuizService struct {
	store      Store
	quizzes    QuizRepository
	handlers   *GamificationService
	rules      gamification.ScoringRules
	freezeCost int
}

func NewQuizService(store Store, quizzes QuizRepository, handlers *GamificationService, freezeCost int) *QuizService {
	if freezeCost <= 0 {
		freezeCost = DefaultFreezeCost
	}
	return &QuizService{
		store:      store,
		quizzes:    quizzes,
		handlers:   handlers,
		rules:      gamification.DefaultScoringRules(),
		freezeCost: freezeCost,
	}
}

// SubmitResult is returned to the client after a submission.
type SubmitResult struct {
	Score             int                 `json:"score"`
	TotalQuestions    int                 `json:"totalQuestions"`
	PointsEarned      int                 `json:"pointsEarned"`
	StreakIncremented bool                `json:"streakIncremented"`
	Correct           []bool              `json:"correct"`
	Message           string              `json:"message"`
	BadgesUnlocked    []domain.BadgeAward `json:"badgesUnlocked,omitempty"`
}

// SubmitQuiz grades answers, applies the resulting completion event and
// records the attempt. Failures after the counters commit are logged and do
// not fail the submission.
func (s *QuizService) SubmitQuiz(ctx context.Context, userID, quizID string, answers []string) (SubmitResult, error) {
	if quizID == "" {
		return SubmitResult{}, &domain.ValidationError{Field: "quizId", Reason: "required"}
	}
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return SubmitResult{}, err
	}
	grade := s.rules.Grade(quiz, answers)
	if grade.TotalQuestions == 0 {
		return SubmitResult{}, &domain.ValidationError{Field: "quizId", Reason: "quiz has no questions"}
	}

	completedAt := s.handlers.now().UTC()
	res, err := s.handlers.OnQuizSubmitted(ctx, domain.QuizCompletionEvent{
		UserID:         userID,
		Score:          grade.Score,
		PointsEarned:   grade.PointsEarned,
		TotalQuestions: grade.TotalQuestions,
		Subject:        quiz.Subject,
		CompletedAt:    completedAt,
	})
	var partial *PartialFailureError
	if err != nil && !errors.As(err, &partial) {
		return SubmitResult{}, err
	}

	attempt := domain.QuizAttempt{
		ID:                uuid.NewString(),
		UserID:            userID,
		QuizID:            quiz.ID,
		Subject:           quiz.Subject,
		Score:             grade.Score,
		TotalQuestions:    grade.TotalQuestions,
		PointsEarned:      grade.PointsEarned,
		StreakIncremented: res.StreakIncremented,
		Answers:           append([]string{}, answers...),
		CompletedAt:       completedAt,
	}
	if err := s.store.RecordAttempt(ctx, attempt); err != nil {
		s.handlers.log.Warn("record attempt failed", "userId", userID, "quizId", quiz.ID, "error", err)
	}

	return SubmitResult{
		Score:             grade.Score,
		TotalQuestions:    grade.TotalQuestions,
		PointsEarned:      grade.PointsEarned,
		StreakIncremented: res.StreakIncremented,
		Correct:           grade.Correct,
		Message:           grade.Message,
		BadgesUnlocked:    res.Awards,
	}, nil
}

// UserStats is the dashboard summary for one user.
type UserStats struct {
	Streak           int     `json:"streak"`
	LongestStreak    int     `json:"longestStreak"`
	TotalPoints      int     `json:"totalPoints"`
	Level            int     `json:"level"`
	QuizzesCompleted int     `json:"quizzesCompleted"`
	AvgScore         float64 `json:"avgScore"`
}

func (s *QuizService) UserStats(ctx context.Context, userID string) (UserStats, error) {
	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return UserStats{}, err
	}
	level, _ := gamification.DeriveLevel(u.TotalPoints)
	return UserStats{
		Streak:           u.CurrentStreak,
		LongestStreak:    u.LongestStreak,
		TotalPoints:      u.TotalPoints,
		Level:            level,
		QuizzesCompleted: u.TotalQuizzesCompleted,
		AvgScore:         u.AverageScore,
	}, nil
}

// LeaderboardRow is the public view of a ranked entry.
type LeaderboardRow struct {
	Rank     int    `json:"rank"`
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
	Points   int    `json:"points"`
	Streak   int    `json:"streak"`
}

// Leaderboard lists a period ordered by stored rank. Entries the refresh job
// has not ranked yet follow, by points.
func (s *QuizService) Leaderboard(ctx context.Context, period domain.LeaderboardPeriod, limit int) ([]LeaderboardRow, error) {
	entries, err := s.store.ListLeaderboard(ctx, period)
	if err != nil {
		return nil, err
	}
	return LeaderboardRows(entries, limit), nil
}

// LeaderboardRows orders entries by rank and returns at most limit rows
// (default 10, capped at 100).
func LeaderboardRows(entries []domain.LeaderboardEntry, limit int) []LeaderboardRow {
	if limit <= 0 {
		limit = defaultLeaderboardLimit
	}
	limit = min(limit, maxLeaderboardLimit)

	sorted := make([]domain.LeaderboardEntry, len(entries))
	copy(sorted, entries)
	SortByRank(sorted)

	rows := make([]LeaderboardRow, 0, min(limit, len(sorted)))
	for _, e := range sorted {
		if len(rows) == limit {
			break
		}
		rows = append(rows, LeaderboardRow{
			Rank:     e.Rank,
			Username: e.Username,
			Avatar:   e.Avatar,
			Points:   e.SortPoints(),
			Streak:   e.CurrentStreak,
		})
	}
	return rows
}

// SortByRank orders entries by rank ascending, unranked (0) last by points.
func SortByRank(entries []domain.LeaderboardEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		ri, rj := entries[i].Rank, entries[j].Rank
		switch {
		case ri > 0 && rj > 0:
			return ri < rj
		case ri > 0 || rj > 0:
			return ri > 0
		default:
			return entries[i].SortPoints() > entries[j].SortPoints()
		}
	})
}

// RankInfo is the caller's position on the all-time board.
type RankInfo struct {
	CurrentRank      int `json:"currentRank"`
	TotalUsers       int `json:"totalUsers"`
	PointsToNextRank int `json:"pointsToNextRank"`
}

// Rank reads the caller's advisory rank. Unranked callers report the bottom.
func (s *QuizService) Rank(ctx context.Context, userID string) (RankInfo, error) {
	entries, err := s.store.ListLeaderboard(ctx, domain.PeriodAllTime)
	if err != nil {
		return RankInfo{}, err
	}
	info := RankInfo{TotalUsers: len(entries), CurrentRank: len(entries)}

	var mine *domain.LeaderboardEntry
	for i := range entries {
		if entries[i].UserID == userID {
			mine = &entries[i]
			break
		}
	}
	if mine == nil || mine.Rank <= 0 {
		return info, nil
	}
	info.CurrentRank = mine.Rank
	for _, e := range entries {
		if e.Rank == mine.Rank-1 {
			info.PointsToNextRank = max(0, e.TotalPoints-mine.TotalPoints)
			break
		}
	}
	return info, nil
}

// StreakStatus is the streak summary for one user.
type StreakStatus struct {
	CurrentStreak     int    `json:"currentStreak"`
	LongestStreak     int    `json:"longestStreak"`
	LastCompletedDate string `json:"lastCompletedDate,omitempty"`
	StreakFrozen      bool   `json:"streakFrozen"`
}

func (s *QuizService) StreakStatus(ctx context.Context, userID string) (StreakStatus, error) {
	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return StreakStatus{}, err
	}
	return StreakStatus{
		CurrentStreak:     u.CurrentStreak,
		LongestStreak:     u.LongestStreak,
		LastCompletedDate: u.LastQuizCompletedDateString,
		StreakFrozen:      u.StreakFrozen,
	}, nil
}

// FreezeResult reports a successful streak freeze.
type FreezeResult struct {
	Success     bool `json:"success"`
	PointsUsed  int  `json:"pointsUsed"`
	TotalPoints int  `json:"totalPoints"`
}

func (s *QuizService) FreezeStreak(ctx context.Context, userID string) (FreezeResult, error) {
	u, err := s.handlers.FreezeStreak(ctx, userID, s.freezeCost)
	if err != nil {
		return FreezeResult{}, err
	}
	return FreezeResult{Success: true, PointsUsed: s.freezeCost, TotalPoints: u.TotalPoints}, nil
}

// Profile returns the caller's user record with level fields derived from
// the current total.
func (s *QuizService) Profile(ctx context.Context, userID string) (domain.User, error) {
	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return domain.User{}, err
	}
	u.CurrentLevel, u.PointsInCurrentLevel = gamification.DeriveLevel(u.TotalPoints)
	if u.BadgesEarned == nil {
		u.BadgesEarned = []domain.BadgeAward{}
	}
	return u, nil
}

// ProfileUpdate carries the user-editable profile fields; nil leaves a field
// unchanged.
type ProfileUpdate struct {
	Username *string `json:"username"`
	Avatar   *string `json:"avatar"`
}

func (s *QuizService) UpdateProfile(ctx context.Context, userID string, upd ProfileUpdate) (domain.User, error) {
	var fields domain.UserFields
	if upd.Username != nil {
		name := strings.TrimSpace(*upd.Username)
		if name == "" || utf8.RuneCountInString(name) > maxUsernameLength {
			return domain.User{}, &domain.ValidationError{Field: "username", Reason: "must be 1-32 characters"}
		}
		fields.Username = &name
	}
	if upd.Avatar != nil {
		avatar := strings.TrimSpace(*upd.Avatar)
		if len(avatar) > maxAvatarLength {
			return domain.User{}, &domain.ValidationError{Field: "avatar", Reason: "too long"}
		}
		fields.Avatar = &avatar
	}
	if fields.Username == nil && fields.Avatar == nil {
		return domain.User{}, &domain.ValidationError{Field: "body", Reason: "nothing to update"}
	}
	u, err := s.handlers.UpdateProfile(ctx, userID, fields)
	if err != nil {
		return domain.User{}, err
	}
	if u.BadgesEarned == nil {
		u.BadgesEarned = []domain.BadgeAward{}
	}
	return u, nil
}

// Progress lists the caller's most recent attempts, newest first.
func (s *QuizService) Progress(ctx context.Context, userID string, limit int) ([]domain.QuizAttempt, error) {
	if limit <= 0 || limit > maxProgressItems {
		limit = maxProgressItems
	}
	return s.store.ListAttempts(ctx, userID, limit)
}

// QuizView is quiz content as shown to a player, without answer keys.
type QuizView struct {
	ID         string         `json:"quizId"`
	Subject    string         `json:"subject"`
	Difficulty int            `json:"difficulty"`
	Questions  []QuestionView `json:"questions"`
}

type QuestionView struct {
	ID      string       `json:"id"`
	Prompt  string       `json:"prompt"`
	Options []OptionView `json:"options"`
}

type OptionView struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

func (s *QuizService) Quiz(ctx context.Context, quizID string) (QuizView, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return QuizView{}, err
	}
	view := QuizView{
		ID:         quiz.ID,
		Subject:    quiz.Subject,
		Difficulty: quiz.Difficulty,
		Questions:  make([]QuestionView, 0, len(quiz.Questions)),
	}
	for _, q := range quiz.Questions {
		qv := QuestionView{ID: q.ID, Prompt: q.Prompt, Options: make([]OptionView, 0, len(q.Options))}
		for _, o := range q.Options {
			qv.Options = append(qv.Options, OptionView{ID: o.ID, Text: o.Text})
		}
		view.Questions = append(view.Questions, qv)
	}
	return view, nil
}
