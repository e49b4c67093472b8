package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"quizstreak-service/internal/domain"
)

var testNow = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func TestUpdateUserIncrementsAtomically(t *testing.T) {
	store := NewStore()
	store.PutUser(domain.User{ID: "u1"})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.UpdateUser(ctx, "u1", domain.UserUpdate{Inc: domain.UserCounters{TotalPoints: 2, TotalQuizzesCompleted: 1}})
			if err != nil {
				t.Errorf("update: %v", err)
			}
		}()
	}
	wg.Wait()

	u, _ := store.GetUser(ctx, "u1")
	if u.TotalPoints != 100 || u.TotalQuizzesCompleted != 50 {
		t.Fatalf("lost updates: points=%d quizzes=%d", u.TotalPoints, u.TotalQuizzesCompleted)
	}
}

func TestUpdateUserMissingDoesNotUpsert(t *testing.T) {
	store := NewStore()
	_, err := store.UpdateUser(context.Background(), "ghost", domain.UserUpdate{Inc: domain.UserCounters{TotalPoints: 1}})
	if !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if users, _ := store.ListUsers(context.Background()); len(users) != 0 {
		t.Fatalf("update created a user")
	}
}

func TestAddBadgesSkipsOwned(t *testing.T) {
	store := NewStore()
	store.PutUser(domain.User{ID: "u1", TotalPoints: 10})
	grant := domain.BadgeGrant{Award: domain.BadgeAward{BadgeID: "b1", UnlockedAt: testNow}, Points: 5}

	for i := 0; i < 2; i++ {
		if _, err := store.AddBadges(context.Background(), "u1", []domain.BadgeGrant{grant}); err != nil {
			t.Fatalf("add badges: %v", err)
		}
	}
	u, _ := store.GetUser(context.Background(), "u1")
	if len(u.BadgesEarned) != 1 || u.TotalBadgesEarned != 1 || u.TotalPoints != 15 {
		t.Fatalf("unexpected user after duplicate grant: %+v", u)
	}
}

func TestSpendPointsRequiresBalance(t *testing.T) {
	store := NewStore()
	store.PutUser(domain.User{ID: "u1", TotalPoints: 40})
	frozen := true

	_, err := store.SpendPoints(context.Background(), "u1", 50, domain.UserFields{StreakFrozen: &frozen})
	if !errors.Is(err, domain.ErrInsufficientPoints) {
		t.Fatalf("expected ErrInsufficientPoints, got %v", err)
	}
	u, _ := store.GetUser(context.Background(), "u1")
	if u.TotalPoints != 40 || u.StreakFrozen {
		t.Fatalf("failed spend mutated user: %+v", u)
	}
}

func TestGetUserReturnsCopy(t *testing.T) {
	store := NewStore()
	store.PutUser(domain.User{ID: "u1", BadgesEarned: []domain.BadgeAward{{BadgeID: "b1"}}})

	u, _ := store.GetUser(context.Background(), "u1")
	u.BadgesEarned[0].BadgeID = "changed"

	again, _ := store.GetUser(context.Background(), "u1")
	if again.BadgesEarned[0].BadgeID != "b1" {
		t.Fatalf("store shared its badge slice")
	}
}

func TestDailyStatAccumulates(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	delta := domain.DailyStatDelta{UserID: "u1", Date: "2024-03-10", QuizzesCompleted: 1, QuestionsAnswered: 10, PointsEarned: 50}

	_ = store.IncrementDailyStat(ctx, delta, testNow)
	_ = store.IncrementDailyStat(ctx, delta, testNow.Add(time.Hour))

	stat, err := store.GetDailyStat(ctx, "u1", "2024-03-10")
	if err != nil {
		t.Fatalf("get daily stat: %v", err)
	}
	if stat.QuizzesCompleted != 2 || stat.QuestionsAnswered != 20 || stat.PointsEarned != 100 {
		t.Fatalf("unexpected stat: %+v", stat)
	}
	if !stat.UpdatedAt.Equal(testNow.Add(time.Hour)) {
		t.Fatalf("updatedAt not refreshed: %v", stat.UpdatedAt)
	}
}

func TestLeaderboardUpsertMirrorsAndRanks(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	delta := domain.LeaderboardDelta{UserID: "u1", Username: "ada", PointsToday: 20, TotalPoints: 120, CurrentStreak: 3, UpdatedAt: testNow}

	_ = store.UpsertLeaderboardEntry(ctx, domain.PeriodDaily, delta)
	delta.TotalPoints = 140
	_ = store.UpsertLeaderboardEntry(ctx, domain.PeriodDaily, delta)

	if err := store.SetRanks(ctx, domain.PeriodDaily, []domain.RankAssignment{{UserID: "u1", Rank: 1}, {UserID: "gone", Rank: 2}}, testNow); err != nil {
		t.Fatalf("set ranks: %v", err)
	}
	entries, _ := store.ListLeaderboard(ctx, domain.PeriodDaily)
	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(entries))
	}
	e := entries[0]
	if e.PointsToday != 40 || e.TotalPoints != 140 || e.Rank != 1 || e.Username != "ada" {
		t.Fatalf("unexpected entry: %+v", e)
	}
}

func TestCreateNotificationDeduplicatesByID(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	n := domain.Notification{ID: "n1", UserID: "u1", Type: domain.NotificationStreakReminder}

	created, _ := store.CreateNotification(ctx, n)
	again, _ := store.CreateNotification(ctx, n)
	if !created || again {
		t.Fatalf("expected created then skipped, got %v/%v", created, again)
	}
	list, _ := store.ListNotifications(ctx, "u1")
	if len(list) != 1 {
		t.Fatalf("expected one notification, got %d", len(list))
	}
}

func TestEndSessionsMarksInactive(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	last := testNow.Add(-time.Hour)
	store.PutSession(domain.Session{ID: "s1", UserID: "u1", IsActive: true, LastActivityAt: &last})
	store.PutSession(domain.Session{ID: "s2", UserID: "u2", IsActive: true, LastActivityAt: &last})

	n, err := store.EndSessions(ctx, []domain.Session{{ID: "s1"}}, testNow.Add(-30*time.Minute), testNow)
	if err != nil {
		t.Fatalf("end sessions: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 ended, got %d", n)
	}
	active, _ := store.ListActiveSessions(ctx)
	if len(active) != 1 || active[0].ID != "s2" {
		t.Fatalf("unexpected active sessions: %+v", active)
	}
	s1, _ := store.GetSession("s1")
	if s1.IsActive || s1.EndedAt == nil || !s1.EndedAt.Equal(testNow) {
		t.Fatalf("session not ended: %+v", s1)
	}
}

func TestEndSessionsSkipsRecentActivity(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	stale := testNow.Add(-time.Hour)
	store.PutSession(domain.Session{ID: "s1", UserID: "u1", IsActive: true, LastActivityAt: &stale})
	scanned, _ := store.ListActiveSessions(ctx)

	// Activity lands between the scan and the write.
	touched := testNow.Add(-time.Minute)
	store.PutSession(domain.Session{ID: "s1", UserID: "u1", IsActive: true, LastActivityAt: &touched})

	n, err := store.EndSessions(ctx, scanned, testNow.Add(-30*time.Minute), testNow)
	if err != nil {
		t.Fatalf("end sessions: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected no sessions ended, got %d", n)
	}
	s1, _ := store.GetSession("s1")
	if !s1.IsActive {
		t.Fatalf("recently active session was ended")
	}
}

func TestResetStreaksRechecksEachUser(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	store.PutUser(domain.User{ID: "idle", CurrentStreak: 4, LastQuizCompletedDateString: "2024-03-09"})
	store.PutUser(domain.User{ID: "played", CurrentStreak: 3, LastQuizCompletedDateString: "2024-03-10"})
	store.PutUser(domain.User{ID: "frozen", CurrentStreak: 5, StreakFrozen: true})

	n, err := store.ResetStreaks(ctx, []string{"idle", "played", "frozen", "ghost"}, "2024-03-10")
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 reset, got %d", n)
	}
	for id, want := range map[string]int{"idle": 0, "played": 3, "frozen": 5} {
		u, _ := store.GetUser(ctx, id)
		if u.CurrentStreak != want {
			t.Fatalf("%s: streak %d, want %d", id, u.CurrentStreak, want)
		}
	}
}

func TestListAttemptsNewestFirst(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	for i, id := range []string{"a0", "a1", "a2"} {
		_ = store.RecordAttempt(ctx, domain.QuizAttempt{ID: id, UserID: "u1", CompletedAt: testNow.Add(time.Duration(i) * time.Minute)})
	}

	got, err := store.ListAttempts(ctx, "u1", 2)
	if err != nil {
		t.Fatalf("list attempts: %v", err)
	}
	if len(got) != 2 || got[0].ID != "a2" || got[1].ID != "a1" {
		t.Fatalf("unexpected attempts: %+v", got)
	}
	none, _ := store.ListAttempts(ctx, "u2", 50)
	if none == nil || len(none) != 0 {
		t.Fatalf("expected empty list, got %#v", none)
	}
}
