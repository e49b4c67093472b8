package gamification

import (
	"math"

	"quizstreak-service/internal/domain"
)

const defaultDifficulty = 3

// PassingScore is the score at which a result is reported as a success.
const PassingScore = 60

// ScoringRules control how graded answers turn into points.
type ScoringRules struct {
	BasePointsPerCorrect int
	DifficultyMultiplier float64
}

// DefaultScoringRules awards 5 points per correct answer, scaled by 1.5 per
// difficulty step above 1.
func DefaultScoringRules() ScoringRules {
	return ScoringRules{BasePointsPerCorrect: 5, DifficultyMultiplier: 1.5}
}

// Grade is the result of grading one attempt.
type Grade struct {
	Score          int
	TotalQuestions int
	Correct        []bool
	CorrectCount   int
	PointsEarned   int
	Message        string
}

// Grade checks answers positionally against each question's correct option.
// Missing answers count as wrong.
func (r ScoringRules) Grade(quiz domain.Quiz, answers []string) Grade {
	total := len(quiz.Questions)
	g := Grade{TotalQuestions: total, Correct: make([]bool, total)}
	for i, q := range quiz.Questions {
		if i >= len(answers) {
			continue
		}
		if want := q.CorrectOption(); want != "" && answers[i] == want {
			g.Correct[i] = true
			g.CorrectCount++
		}
	}

	g.Score = int(math.RoundToEven(float64(g.CorrectCount) / float64(max(1, total)) * 100))

	difficulty := quiz.Difficulty
	if difficulty == 0 {
		difficulty = defaultDifficulty
	}
	factor := 1 + float64(difficulty-1)*(r.DifficultyMultiplier-1)
	g.PointsEarned = int(float64(g.CorrectCount*r.BasePointsPerCorrect) * factor)
	if g.PointsEarned < 0 {
		g.PointsEarned = 0
	}

	if g.Score >= PassingScore {
		g.Message = "Great job!"
	} else {
		g.Message = "Keep practicing!"
	}
	return g
}
