package cli

import (
	"time"

	"quizstreak-service/internal/domain"
	"quizstreak-service/internal/infra/memory"
)

// seedDemoUsers gives the in-memory store a few accounts to sign tokens for.
func seedDemoUsers(store *memory.Store) {
	now := time.Now().UTC()
	for _, u := range []domain.User{
		{ID: "demo-ada", Username: "ada", Avatar: "https://example.com/ada.png"},
		{ID: "demo-grace", Username: "grace", Avatar: "https://example.com/grace.png"},
		{ID: "demo-alan", Username: "alan"},
	} {
		store.PutUser(u)
		last := now
		store.PutSession(domain.Session{ID: "session-" + u.ID, UserID: u.ID, IsActive: true, LastActivityAt: &last})
	}
}

// demoQuizzes is the quiz content served when Postgres is not configured.
func demoQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"quiz-1": {
			ID:         "quiz-1",
			Subject:    "math",
			Difficulty: 2,
			Questions: []domain.Question{
				{
					ID:     "q1",
					Prompt: "What is 2 + 2?",
					Options: []domain.Option{
						{ID: "o1", Text: "3"},
						{ID: "o2", Text: "4", Correct: true},
						{ID: "o3", Text: "5"},
					},
				},
				{
					ID:     "q2",
					Prompt: "What is 7 * 6?",
					Options: []domain.Option{
						{ID: "o1", Text: "42", Correct: true},
						{ID: "o2", Text: "36"},
					},
				},
			},
		},
		"quiz-2": {
			ID:         "quiz-2",
			Subject:    "geography",
			Difficulty: 4,
			Questions: []domain.Question{
				{
					ID:     "q1",
					Prompt: "Capital of France?",
					Options: []domain.Option{
						{ID: "o1", Text: "Paris", Correct: true},
						{ID: "o2", Text: "Lyon"},
					},
				},
			},
		},
	}
}
