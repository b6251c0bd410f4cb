package platform

import (
	"context"
	"net/http"
	"time"
)

// AttemptCreate is the submission record persisted by the attempts service.
type AttemptCreate struct {
	QuestionID    string `json:"question_id"`
	Language      string `json:"language"`
	SubmittedCode string `json:"submitted_code"`
	PassedTests   int    `json:"passed_tests"`
	TotalTests    int    `json:"total_tests"`
}

// AttemptRead is the persisted attempt returned by the attempts service.
type AttemptRead struct {
	ID          string    `json:"id"`
	QuestionID  string    `json:"question_id"`
	Language    string    `json:"language"`
	PassedTests int       `json:"passed_tests"`
	TotalTests  int       `json:"total_tests"`
	CreatedAt   time.Time `json:"created_at"`
}

// CreateAttempt records one submission attempt.
func (c *Client) CreateAttempt(ctx context.Context, attempt AttemptCreate) (AttemptRead, error) {
	var out AttemptRead
	err := c.doJSON(ctx, http.MethodPost, "/api/attempts", attempt, &out)
	return out, err
}
