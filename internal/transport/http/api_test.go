package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"quizstreak-service/internal/app"
	"quizstreak-service/internal/domain"
)

func TestSubmitQuizUpdatesStats(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/quiz/submit", "u1", map[string]any{
		"quizId":  "quiz-1",
		"answers": []string{"o2", "o2"},
	})
	expectStatus(t, rec, http.StatusOK)
	res := decode[app.SubmitResult](t, rec)
	// One of two correct at difficulty 3: 1 * 5 * 2.
	if res.Score != 50 || res.TotalQuestions != 2 || res.PointsEarned != 10 {
		t.Fatalf("unexpected grade: %+v", res)
	}
	if !res.StreakIncremented || res.Message != "Keep practicing!" {
		t.Fatalf("unexpected outcome: %+v", res)
	}
	if len(res.Correct) != 2 || !res.Correct[0] || res.Correct[1] {
		t.Fatalf("unexpected per-question result: %v", res.Correct)
	}
	if len(res.BadgesUnlocked) != 1 || res.BadgesUnlocked[0].BadgeID != "first-quiz" {
		t.Fatalf("expected first-quiz badge, got %+v", res.BadgesUnlocked)
	}

	rec = f.do(t, http.MethodGet, "/api/user/stats", "u1", nil)
	expectStatus(t, rec, http.StatusOK)
	stats := decode[app.UserStats](t, rec)
	if stats.Streak != 1 || stats.TotalPoints != 20 || stats.QuizzesCompleted != 1 || stats.AvgScore != 50 || stats.Level != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestSubmitQuizSameDayKeepsStreak(t *testing.T) {
	f := newFixture(t)
	body := map[string]any{"quizId": "quiz-1", "answers": []string{"o2", "o1"}}

	expectStatus(t, f.do(t, http.MethodPost, "/api/quiz/submit", "u1", body), http.StatusOK)
	rec := f.do(t, http.MethodPost, "/api/quiz/submit", "u1", body)
	expectStatus(t, rec, http.StatusOK)
	if res := decode[app.SubmitResult](t, rec); res.StreakIncremented || res.Message != "Great job!" {
		t.Fatalf("second same-day submit: %+v", res)
	}

	rec = f.do(t, http.MethodGet, "/api/streak/status", "u1", nil)
	expectStatus(t, rec, http.StatusOK)
	status := decode[app.StreakStatus](t, rec)
	if status.CurrentStreak != 1 || status.LastCompletedDate != "2024-03-10" {
		t.Fatalf("unexpected streak status: %+v", status)
	}
}

func TestSubmitQuizErrors(t *testing.T) {
	f := newFixture(t)

	cases := []struct {
		name string
		user string
		body any
		want int
	}{
		{"missing quiz id", "u1", map[string]any{"answers": []string{}}, http.StatusBadRequest},
		{"unknown quiz", "u1", map[string]any{"quizId": "nope"}, http.StatusNotFound},
		{"quiz without questions", "u1", map[string]any{"quizId": "empty"}, http.StatusBadRequest},
		{"unknown user", "ghost", map[string]any{"quizId": "quiz-1"}, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			expectStatus(t, f.do(t, http.MethodPost, "/api/quiz/submit", tc.user, tc.body), tc.want)
		})
	}
}

func TestAuthRequired(t *testing.T) {
	f := newFixture(t)

	expectStatus(t, f.do(t, http.MethodGet, "/api/user/stats", "", nil), http.StatusUnauthorized)

	req := httptest.NewRequest(http.MethodGet, "/api/user/stats", nil)
	req.Header.Set("Authorization", "Token abc")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	expectStatus(t, rec, http.StatusBadRequest)

	req = httptest.NewRequest(http.MethodGet, "/api/user/stats", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "u1", -time.Minute))
	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	expectStatus(t, rec, http.StatusUnauthorized)
}

func TestLeaderboardEndpoints(t *testing.T) {
	f := newFixture(t)
	body := map[string]any{"quizId": "quiz-1", "answers": []string{"o2", "o1"}}
	expectStatus(t, f.do(t, http.MethodPost, "/api/quiz/submit", "u1", body), http.StatusOK)
	body["answers"] = []string{"o2"}
	expectStatus(t, f.do(t, http.MethodPost, "/api/quiz/submit", "u2", body), http.StatusOK)

	if _, err := f.handlers.RefreshLeaderboards(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	rec := f.do(t, http.MethodGet, "/api/leaderboard/daily?limit=5", "u1", nil)
	expectStatus(t, rec, http.StatusOK)
	board := decode[struct {
		Period  string               `json:"period"`
		Entries []app.LeaderboardRow `json:"entries"`
	}](t, rec)
	if len(board.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %+v", board.Entries)
	}
	first := board.Entries[0]
	// ada: 20 quiz points; grace: 10. Badge points only move totalPoints.
	if first.Username != "ada" || first.Rank != 1 || first.Points != 20 || first.Avatar != "a.png" {
		t.Fatalf("unexpected leader: %+v", first)
	}

	rec = f.do(t, http.MethodGet, "/api/leaderboard/rank", "u2", nil)
	expectStatus(t, rec, http.StatusOK)
	info := decode[app.RankInfo](t, rec)
	// All-time entries mirror totals as of the quiz write: ada 20, grace 10.
	if info.CurrentRank != 2 || info.TotalUsers != 2 || info.PointsToNextRank != 10 {
		t.Fatalf("unexpected rank info: %+v", info)
	}

	expectStatus(t, f.do(t, http.MethodGet, "/api/leaderboard/monthly", "u1", nil), http.StatusBadRequest)
	expectStatus(t, f.do(t, http.MethodGet, "/api/leaderboard/daily?limit=zero", "u1", nil), http.StatusBadRequest)
}

func TestFreezeStreak(t *testing.T) {
	f := newFixture(t)

	expectStatus(t, f.do(t, http.MethodPost, "/api/streak/freeze", "u1", nil), http.StatusConflict)

	f.store.PutUser(domain.User{ID: "u1", Username: "ada", TotalPoints: 120, CurrentStreak: 4})
	rec := f.do(t, http.MethodPost, "/api/streak/freeze", "u1", nil)
	expectStatus(t, rec, http.StatusOK)
	res := decode[app.FreezeResult](t, rec)
	if !res.Success || res.PointsUsed != 50 || res.TotalPoints != 70 {
		t.Fatalf("unexpected freeze result: %+v", res)
	}

	u, _ := f.store.GetUser(context.Background(), "u1")
	if !u.StreakFrozen || u.TotalPoints != 70 || u.CurrentLevel != 1 || u.PointsInCurrentLevel != 70 {
		t.Fatalf("freeze not persisted: %+v", u)
	}
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	expectStatus(t, rec, http.StatusOK)
}

func TestLeaderboardIsPublic(t *testing.T) {
	f := newFixture(t)
	f.store.PutLeaderboardEntry(domain.LeaderboardEntry{Period: domain.PeriodAllTime, UserID: "u1", Username: "ada", TotalPoints: 90, Rank: 1})

	rec := f.do(t, http.MethodGet, "/api/leaderboard/all-time", "", nil)
	expectStatus(t, rec, http.StatusOK)
	board := decode[struct {
		Entries []app.LeaderboardRow `json:"entries"`
	}](t, rec)
	if len(board.Entries) != 1 || board.Entries[0].Points != 90 {
		t.Fatalf("unexpected board: %+v", board.Entries)
	}

	// The caller's rank still needs a token.
	expectStatus(t, f.do(t, http.MethodGet, "/api/leaderboard/rank", "", nil), http.StatusUnauthorized)
}

func TestUserMeEndpoints(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/user/me", "u1", nil)
	expectStatus(t, rec, http.StatusOK)
	me := decode[domain.User](t, rec)
	if me.ID != "u1" || me.Username != "ada" || me.Avatar != "a.png" {
		t.Fatalf("unexpected profile: %+v", me)
	}

	rec = f.do(t, http.MethodPut, "/api/user/me", "u1", map[string]any{"username": "ada.l", "avatar": "b.png", "totalPoints": 9999})
	expectStatus(t, rec, http.StatusOK)
	updated := decode[domain.User](t, rec)
	if updated.Username != "ada.l" || updated.Avatar != "b.png" || updated.TotalPoints != 0 {
		t.Fatalf("unexpected update: %+v", updated)
	}

	expectStatus(t, f.do(t, http.MethodPut, "/api/user/me", "u1", map[string]any{"username": ""}), http.StatusBadRequest)
	expectStatus(t, f.do(t, http.MethodPut, "/api/user/me", "u1", map[string]any{}), http.StatusBadRequest)
	expectStatus(t, f.do(t, http.MethodGet, "/api/user/me", "ghost", nil), http.StatusNotFound)
	expectStatus(t, f.do(t, http.MethodGet, "/api/user/me", "", nil), http.StatusUnauthorized)
}

func TestUserProgressListsAttempts(t *testing.T) {
	f := newFixture(t)
	expectStatus(t, f.do(t, http.MethodPost, "/api/quiz/submit", "u1", map[string]any{"quizId": "quiz-1", "answers": []string{"o2", "o1"}}), http.StatusOK)

	rec := f.do(t, http.MethodGet, "/api/user/progress", "u1", nil)
	expectStatus(t, rec, http.StatusOK)
	progress := decode[struct {
		Items []domain.QuizAttempt `json:"items"`
	}](t, rec)
	if len(progress.Items) != 1 || progress.Items[0].QuizID != "quiz-1" || progress.Items[0].Score != 100 {
		t.Fatalf("unexpected progress: %+v", progress.Items)
	}

	rec = f.do(t, http.MethodGet, "/api/user/progress", "u2", nil)
	expectStatus(t, rec, http.StatusOK)
	if body := rec.Body.String(); body != `{"items":[]}` {
		t.Fatalf("expected empty items, got %s", body)
	}
	expectStatus(t, f.do(t, http.MethodGet, "/api/user/progress?limit=-1", "u1", nil), http.StatusBadRequest)
}

func TestGetQuizOmitsAnswers(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/quiz/quiz-1", "u1", nil)
	expectStatus(t, rec, http.StatusOK)
	if strings.Contains(rec.Body.String(), "correct") {
		t.Fatalf("answer key leaked: %s", rec.Body.String())
	}
	view := decode[app.QuizView](t, rec)
	if view.ID != "quiz-1" || len(view.Questions) != 2 || view.Questions[0].Options[1].Text != "4" {
		t.Fatalf("unexpected quiz: %+v", view)
	}

	expectStatus(t, f.do(t, http.MethodGet, "/api/quiz/nope", "u1", nil), http.StatusNotFound)
	expectStatus(t, f.do(t, http.MethodGet, "/api/quiz/quiz-1", "", nil), http.StatusUnauthorized)
}
