package domain

import "time"

// QuizCompletionEvent is emitted when a quiz attempt is recorded.
type QuizCompletionEvent struct {
	UserID         string    `json:"userId"`
	Score          int       `json:"score"`
	PointsEarned   int       `json:"pointsEarned"`
	TotalQuestions int       `json:"totalQuestions"`
	Subject        string    `json:"subject,omitempty"`
	CompletedAt    time.Time `json:"completedAt"`
}

// CompletionDate is the UTC calendar date of the completion.
func (e QuizCompletionEvent) CompletionDate() string {
	return DateString(e.CompletedAt)
}

// Validate rejects malformed events before any state is touched.
func (e QuizCompletionEvent) Validate() error {
	switch {
	case e.UserID == "":
		return &ValidationError{Field: "userId", Reason: "required"}
	case e.Score < 0 || e.Score > 100:
		return &ValidationError{Field: "score", Reason: "must be within [0,100]"}
	case e.PointsEarned < 0:
		return &ValidationError{Field: "pointsEarned", Reason: "must be non-negative"}
	case e.TotalQuestions < 1:
		return &ValidationError{Field: "totalQuestions", Reason: "must be at least 1"}
	case e.CompletedAt.IsZero():
		return &ValidationError{Field: "completedAt", Reason: "required"}
	}
	return nil
}

// UserWriteEvent is emitted after any write to a User record. After is nil
// when the record no longer exists.
type UserWriteEvent struct {
	UserID string
	After  *User
}
