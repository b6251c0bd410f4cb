package platform

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
)

// TestCase is one declarative test of a question. Input and Output are
// polymorphic: either structured JSON values or loosely formatted strings
// that need relaxed parsing downstream, so both are kept raw here.
type TestCase struct {
	Input  json.RawMessage `json:"input"`
	Output json.RawMessage `json:"output"`
}

// Example is a worked example shown alongside a question.
type Example struct {
	Input       string `json:"input"`
	Output      string `json:"output"`
	Explanation string `json:"explanation,omitempty"`
}

// Question is the read-only question shape owned by the question service.
type Question struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Difficulty  string     `json:"difficulty"`
	Topics      []string   `json:"topics"`
	Description string     `json:"description"`
	Examples    []Example  `json:"examples"`
	TestCases   []TestCase `json:"test_cases"`
}

// GetQuestion fetches one question by id.
func (c *Client) GetQuestion(ctx context.Context, questionID string) (Question, error) {
	var out Question
	err := c.doJSON(ctx, http.MethodGet, "/api/questions/"+url.PathEscape(questionID), nil, &out)
	return out, err
}
