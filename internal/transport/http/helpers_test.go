package http

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"quizstreak-service/internal/app"
	"quizstreak-service/internal/domain"
	"quizstreak-service/internal/infra/memory"
	"quizstreak-service/internal/logger"
)

const testSecret = "test-secret"

var testNow = time.Date(2024, 3, 10, 10, 0, 0, 0, time.UTC)

type fixture struct {
	router   *gin.Engine
	store    *memory.Store
	hub      *app.LeaderboardHub
	handlers *app.GamificationService
	stream   *LeaderboardStream
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memory.NewStore()
	store.PutUser(domain.User{ID: "u1", Username: "ada", Avatar: "a.png", CurrentLevel: 1})
	store.PutUser(domain.User{ID: "u2", Username: "grace", CurrentLevel: 1})

	badges := memory.NewStaticBadgeCatalog(domain.Badge{
		ID: "first-quiz", Name: "First Steps", Rarity: "common", Points: 10,
		Criteria: domain.BadgeCriteria{Type: domain.CriteriaVolume, Threshold: 1},
	})
	hub := app.NewLeaderboardHub()
	handlers := app.NewGamificationService(store, badges, logger.Nop(),
		app.WithClock(func() time.Time { return testNow }),
		app.WithLeaderboardPublisher(hub),
	)
	quizRepo := memory.NewQuizRepository(memory.NewStaticQuizLoader(sampleQuizzes()), time.Minute)
	quizzes := app.NewQuizService(store, quizRepo, handlers, 0)

	stream := NewLeaderboardStream(hub, quizzes, logger.Nop())
	router := NewRouter(RouterConfig{
		API:    NewAPI(quizzes, logger.Nop()),
		Auth:   NewAuthenticator(testSecret),
		Stream: stream,
	})
	return &fixture{router: router, store: store, hub: hub, handlers: handlers, stream: stream}
}

func signToken(t *testing.T, userID string, expiresIn time.Duration) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func (f *fixture) do(t *testing.T, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+signToken(t, userID, time.Hour))
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("expected status %d, got %d: %s", want, rec.Code, rec.Body.String())
	}
}

func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"quiz-1": {
			ID:         "quiz-1",
			Subject:    "math",
			Difficulty: 3,
			Questions: []domain.Question{
				{
					ID:     "q1",
					Prompt: "What is 2 + 2?",
					Options: []domain.Option{
						{ID: "o1", Text: "3", Correct: false},
						{ID: "o2", Text: "4", Correct: true},
						{ID: "o3", Text: "5", Correct: false},
					},
				},
				{
					ID:     "q2",
					Prompt: "What is 3 * 3?",
					Options: []domain.Option{
						{ID: "o1", Text: "9", Correct: true},
						{ID: "o2", Text: "6", Correct: false},
					},
				},
			},
		},
		"empty": {ID: "empty"},
	}
}
