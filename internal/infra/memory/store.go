package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"quizstreak-service/internal/domain"
)

// Store is an in-memory implementation of app.Store. Every mutation runs
// under one lock, which gives the same per-record atomicity the document
// backends get from their increment primitives. Iteration follows insertion
// order.
type Store struct {
	mu sync.RWMutex

	users     map[string]*domain.User
	userOrder []string

	dailyStats map[string]*domain.DailyStat

	boards     map[domain.LeaderboardPeriod]map[string]*domain.LeaderboardEntry
	boardOrder map[domain.LeaderboardPeriod][]string

	notifications map[string][]domain.Notification

	sessions     map[string]*domain.Session
	sessionOrder []string

	attempts map[string][]domain.QuizAttempt
}

func NewStore() *Store {
	return &Store{
		users:         make(map[string]*domain.User),
		dailyStats:    make(map[string]*domain.DailyStat),
		boards:        make(map[domain.LeaderboardPeriod]map[string]*domain.LeaderboardEntry),
		boardOrder:    make(map[domain.LeaderboardPeriod][]string),
		notifications: make(map[string][]domain.Notification),
		sessions:      make(map[string]*domain.Session),
		attempts:      make(map[string][]domain.QuizAttempt),
	}
}

// PutUser creates or replaces a user record (seeding and tests).
func (s *Store) PutUser(u domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.ID]; !ok {
		s.userOrder = append(s.userOrder, u.ID)
	}
	cp := cloneUser(u)
	s.users[u.ID] = &cp
}

// DeleteUser removes a user record.
func (s *Store) DeleteUser(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[userID]; !ok {
		return
	}
	delete(s.users, userID)
	for i, id := range s.userOrder {
		if id == userID {
			s.userOrder = append(s.userOrder[:i], s.userOrder[i+1:]...)
			break
		}
	}
}

// PutSession creates or replaces a login session.
func (s *Store) PutSession(sess domain.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sess.ID]; !ok {
		s.sessionOrder = append(s.sessionOrder, sess.ID)
	}
	cp := sess
	s.sessions[sess.ID] = &cp
}

// GetSession returns a copy of a session.
func (s *Store) GetSession(sessionID string) (domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return *sess, nil
}

func (s *Store) GetUser(_ context.Context, userID string) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return cloneUser(*u), nil
}

func (s *Store) UpdateUser(_ context.Context, userID string, upd domain.UserUpdate) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	u.TotalPoints += upd.Inc.TotalPoints
	u.TotalQuizzesCompleted += upd.Inc.TotalQuizzesCompleted
	u.TotalQuestionsAnswered += upd.Inc.TotalQuestionsAnswered
	mergeFields(u, upd.Set)
	return cloneUser(*u), nil
}

func (s *Store) AddBadges(_ context.Context, userID string, grants []domain.BadgeGrant) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	for _, g := range grants {
		if u.HasBadge(g.Award.BadgeID) {
			continue
		}
		u.BadgesEarned = append(u.BadgesEarned, g.Award)
		u.TotalBadgesEarned++
		u.TotalPoints += g.Points
	}
	return cloneUser(*u), nil
}

func (s *Store) SpendPoints(_ context.Context, userID string, cost int, set domain.UserFields) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	if u.TotalPoints < cost {
		return domain.User{}, domain.ErrInsufficientPoints
	}
	u.TotalPoints -= cost
	mergeFields(u, set)
	return cloneUser(*u), nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.User, 0, len(s.userOrder))
	for _, id := range s.userOrder {
		out = append(out, cloneUser(*s.users[id]))
	}
	return out, nil
}

func (s *Store) ResetStreaks(_ context.Context, userIDs []string, today string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reset := 0
	for _, id := range userIDs {
		// Users deleted since the snapshot are skipped.
		u, ok := s.users[id]
		if !ok || u.LastQuizCompletedDateString == today || u.StreakFrozen || u.CurrentStreak == 0 {
			continue
		}
		u.CurrentStreak = 0
		reset++
	}
	return reset, nil
}

func (s *Store) IncrementDailyStat(_ context.Context, delta domain.DailyStatDelta, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := delta.UserID + ":" + delta.Date
	stat, ok := s.dailyStats[key]
	if !ok {
		stat = &domain.DailyStat{UserID: delta.UserID, Date: delta.Date}
		s.dailyStats[key] = stat
	}
	stat.QuizzesCompleted += delta.QuizzesCompleted
	stat.QuestionsAnswered += delta.QuestionsAnswered
	stat.PointsEarned += delta.PointsEarned
	stat.BestScore += delta.BestScore
	stat.UpdatedAt = at.UTC()
	return nil
}

func (s *Store) GetDailyStat(_ context.Context, userID, date string) (domain.DailyStat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stat, ok := s.dailyStats[userID+":"+date]
	if !ok {
		return domain.DailyStat{}, domain.ErrNotFound
	}
	return *stat, nil
}

func (s *Store) UpsertLeaderboardEntry(_ context.Context, period domain.LeaderboardPeriod, delta domain.LeaderboardDelta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	board, ok := s.boards[period]
	if !ok {
		board = make(map[string]*domain.LeaderboardEntry)
		s.boards[period] = board
	}
	entry, ok := board[delta.UserID]
	if !ok {
		entry = &domain.LeaderboardEntry{Period: period, UserID: delta.UserID}
		board[delta.UserID] = entry
		s.boardOrder[period] = append(s.boardOrder[period], delta.UserID)
	}
	entry.Username = delta.Username
	entry.Avatar = delta.Avatar
	entry.PointsToday += delta.PointsToday
	entry.TotalPoints = delta.TotalPoints
	entry.CurrentStreak = delta.CurrentStreak
	entry.LastUpdatedAt = delta.UpdatedAt.UTC()
	return nil
}

// PutLeaderboardEntry creates or replaces an entry as-is (seeding and tests).
func (s *Store) PutLeaderboardEntry(e domain.LeaderboardEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	board, ok := s.boards[e.Period]
	if !ok {
		board = make(map[string]*domain.LeaderboardEntry)
		s.boards[e.Period] = board
	}
	if _, ok := board[e.UserID]; !ok {
		s.boardOrder[e.Period] = append(s.boardOrder[e.Period], e.UserID)
	}
	cp := e
	board[e.UserID] = &cp
}

func (s *Store) ListLeaderboard(_ context.Context, period domain.LeaderboardPeriod) ([]domain.LeaderboardEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	board := s.boards[period]
	out := make([]domain.LeaderboardEntry, 0, len(board))
	for _, id := range s.boardOrder[period] {
		out = append(out, *board[id])
	}
	return out, nil
}

func (s *Store) SetRanks(_ context.Context, period domain.LeaderboardPeriod, ranks []domain.RankAssignment, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	board := s.boards[period]
	for _, r := range ranks {
		if entry, ok := board[r.UserID]; ok {
			entry.Rank = r.Rank
			entry.LastUpdatedAt = at.UTC()
		}
	}
	return nil
}

func (s *Store) CreateNotification(_ context.Context, n domain.Notification) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.notifications[n.UserID] {
		if existing.ID == n.ID {
			return false, nil
		}
	}
	s.notifications[n.UserID] = append(s.notifications[n.UserID], n)
	return true, nil
}

func (s *Store) ListNotifications(_ context.Context, userID string) ([]domain.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Notification, len(s.notifications[userID]))
	copy(out, s.notifications[userID])
	return out, nil
}

func (s *Store) ListActiveSessions(_ context.Context) ([]domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Session
	for _, id := range s.sessionOrder {
		if sess := s.sessions[id]; sess.IsActive {
			out = append(out, *sess)
		}
	}
	return out, nil
}

func (s *Store) EndSessions(_ context.Context, sessions []domain.Session, idleBefore, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ended := at.UTC()
	n := 0
	for _, target := range sessions {
		sess, ok := s.sessions[target.ID]
		if !ok || !sess.IsActive || sess.LastActivityAt == nil || !sess.LastActivityAt.Before(idleBefore) {
			continue
		}
		sess.IsActive = false
		sess.EndedAt = &ended
		n++
	}
	return n, nil
}

func (s *Store) RecordAttempt(_ context.Context, a domain.QuizAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a.Answers = append([]string(nil), a.Answers...)
	s.attempts[a.UserID] = append(s.attempts[a.UserID], a)
	return nil
}

func (s *Store) ListAttempts(_ context.Context, userID string, limit int) ([]domain.QuizAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.QuizAttempt, len(s.attempts[userID]))
	copy(out, s.attempts[userID])
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CompletedAt.After(out[j].CompletedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func mergeFields(u *domain.User, f domain.UserFields) {
	if f.Username != nil {
		u.Username = *f.Username
	}
	if f.Avatar != nil {
		u.Avatar = *f.Avatar
	}
	if f.AverageScore != nil {
		u.AverageScore = *f.AverageScore
	}
	if f.CurrentStreak != nil {
		u.CurrentStreak = *f.CurrentStreak
	}
	if f.LongestStreak != nil {
		u.LongestStreak = *f.LongestStreak
	}
	if f.StreakFrozen != nil {
		u.StreakFrozen = *f.StreakFrozen
	}
	if f.LastQuizCompletedDate != nil {
		t := *f.LastQuizCompletedDate
		u.LastQuizCompletedDate = &t
	}
	if f.LastQuizCompletedDateString != nil {
		u.LastQuizCompletedDateString = *f.LastQuizCompletedDateString
	}
	if f.CurrentLevel != nil {
		u.CurrentLevel = *f.CurrentLevel
	}
	if f.PointsInCurrentLevel != nil {
		u.PointsInCurrentLevel = *f.PointsInCurrentLevel
	}
	if f.LastActiveAt != nil {
		u.LastActiveAt = *f.LastActiveAt
	}
	if f.LastDataRefresh != nil {
		t := *f.LastDataRefresh
		u.LastDataRefresh = &t
	}
}

func cloneUser(u domain.User) domain.User {
	if u.BadgesEarned != nil {
		badges := make([]domain.BadgeAward, len(u.BadgesEarned))
		copy(badges, u.BadgesEarned)
		u.BadgesEarned = badges
	}
	return u
}
