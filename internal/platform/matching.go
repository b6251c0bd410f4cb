package platform

import (
	"context"
	"net/http"
	"net/url"
)

// Match request statuses reported by the backend.
const (
	RequestStatusPending = "pending"
	RequestStatusMatched = "matched"
)

// Confirmation outcomes reported by the backend.
const (
	ConfirmWaitingForPartner = "waiting_for_partner"
	ConfirmSessionReady      = "session_ready"
)

// MatchRequest is a submitted matchmaking request.
type MatchRequest struct {
	ID         string `json:"id"`
	Topic      string `json:"topic"`
	Difficulty string `json:"difficulty"`
	Status     string `json:"status"`
}

// RequestStatus is a poll result for a pending request.
type RequestStatus struct {
	Status  string `json:"status"`
	MatchID string `json:"match_id,omitempty"`
}

// ConfirmResult is the outcome of posting a confirmation. SessionID is set
// only once both participants have confirmed.
type ConfirmResult struct {
	Status    string `json:"status,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// MatchStatus is a poll result for a found match awaiting confirmations.
type MatchStatus struct {
	Status    string `json:"status"`
	SessionID string `json:"session_id,omitempty"`
}

// SessionInfo describes a collaborative session handle.
type SessionInfo struct {
	ID         string `json:"id"`
	Status     string `json:"status"`
	QuestionID string `json:"question_id,omitempty"`
	Topic      string `json:"topic,omitempty"`
	Difficulty string `json:"difficulty,omitempty"`
}

// CreateMatchRequest submits a new match request for a topic and difficulty.
func (c *Client) CreateMatchRequest(ctx context.Context, topic, difficulty string) (MatchRequest, error) {
	var out MatchRequest
	body := map[string]string{"topic": topic, "difficulty": difficulty}
	err := c.doJSON(ctx, http.MethodPost, "/api/matching/request", body, &out)
	return out, err
}

// GetRequestStatus polls a pending request.
func (c *Client) GetRequestStatus(ctx context.Context, requestID string) (RequestStatus, error) {
	var out RequestStatus
	err := c.doJSON(ctx, http.MethodGet, "/api/matching/requests/"+url.PathEscape(requestID)+"/status", nil, &out)
	return out, err
}

// CancelMatchRequest withdraws a pending request. Best effort; callers may
// ignore the error.
func (c *Client) CancelMatchRequest(ctx context.Context, requestID string) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/matching/request/"+url.PathEscape(requestID), nil, nil)
}

// ConfirmMatch posts this side's confirmation decision for a match.
func (c *Client) ConfirmMatch(ctx context.Context, matchID string, confirmed bool) (ConfirmResult, error) {
	var out ConfirmResult
	body := map[string]interface{}{"match_id": matchID, "confirmed": confirmed}
	err := c.doJSON(ctx, http.MethodPost, "/api/matching/confirm", body, &out)
	return out, err
}

// GetMatchStatus polls a found match for partner confirmation.
func (c *Client) GetMatchStatus(ctx context.Context, matchID string) (MatchStatus, error) {
	var out MatchStatus
	err := c.doJSON(ctx, http.MethodGet, "/api/matching/matches/"+url.PathEscape(matchID)+"/status", nil, &out)
	return out, err
}

// GetSession fetches a session handle by id.
func (c *Client) GetSession(ctx context.Context, sessionID string) (SessionInfo, error) {
	var out SessionInfo
	err := c.doJSON(ctx, http.MethodGet, "/api/matching/sessions/"+url.PathEscape(sessionID), nil, &out)
	return out, err
}
