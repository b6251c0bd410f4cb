package stub

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"pairprep/internal/collab"
	"pairprep/internal/platform"

	"github.com/gin-gonic/gin"
)

func newTestBackend(t *testing.T) (*httptest.Server, *platform.Client) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	server := httptest.NewServer(NewServer().Router())
	t.Cleanup(server.Close)
	return server, platform.NewClient(server.URL, 5*time.Second, nil)
}

func TestMatchmakingEndToEnd(t *testing.T) {
	_, client := newTestBackend(t)
	ctx := context.Background()

	reqA, err := client.CreateMatchRequest(ctx, "arrays", "easy")
	if err != nil {
		t.Fatalf("create request A: %v", err)
	}
	if reqA.Status != platform.RequestStatusPending {
		t.Fatalf("request A status = %q, want pending", reqA.Status)
	}

	// A second compatible request pairs immediately.
	reqB, err := client.CreateMatchRequest(ctx, "arrays", "easy")
	if err != nil {
		t.Fatalf("create request B: %v", err)
	}
	if reqB.Status != platform.RequestStatusMatched {
		t.Fatalf("request B status = %q, want matched", reqB.Status)
	}

	statusA, err := client.GetRequestStatus(ctx, reqA.ID)
	if err != nil {
		t.Fatalf("request A status: %v", err)
	}
	if statusA.Status != platform.RequestStatusMatched || statusA.MatchID == "" {
		t.Fatalf("request A not matched: %+v", statusA)
	}

	// First confirmation leaves the match waiting for the partner.
	first, err := client.ConfirmMatch(ctx, statusA.MatchID, true)
	if err != nil {
		t.Fatalf("first confirm: %v", err)
	}
	if first.Status != platform.ConfirmWaitingForPartner || first.SessionID != "" {
		t.Fatalf("first confirm = %+v", first)
	}

	second, err := client.ConfirmMatch(ctx, statusA.MatchID, true)
	if err != nil {
		t.Fatalf("second confirm: %v", err)
	}
	if second.Status != platform.ConfirmSessionReady || second.SessionID == "" {
		t.Fatalf("second confirm = %+v", second)
	}

	matchStatus, err := client.GetMatchStatus(ctx, statusA.MatchID)
	if err != nil {
		t.Fatalf("match status: %v", err)
	}
	if matchStatus.SessionID != second.SessionID {
		t.Fatalf("match status session = %q, want %q", matchStatus.SessionID, second.SessionID)
	}

	session, err := client.GetSession(ctx, second.SessionID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if session.QuestionID == "" {
		t.Fatalf("session has no question: %+v", session)
	}
	if session.Topic != "arrays" || session.Difficulty != "easy" {
		t.Fatalf("session params = %+v", session)
	}

	question, err := client.GetQuestion(ctx, session.QuestionID)
	if err != nil {
		t.Fatalf("get question: %v", err)
	}
	if len(question.TestCases) == 0 {
		t.Fatalf("question has no test cases: %+v", question)
	}
}

func TestMismatchedRequestsStayPending(t *testing.T) {
	_, client := newTestBackend(t)
	ctx := context.Background()

	reqA, err := client.CreateMatchRequest(ctx, "arrays", "easy")
	if err != nil {
		t.Fatalf("create request A: %v", err)
	}
	if _, err := client.CreateMatchRequest(ctx, "graphs", "hard"); err != nil {
		t.Fatalf("create request B: %v", err)
	}

	status, err := client.GetRequestStatus(ctx, reqA.ID)
	if err != nil {
		t.Fatalf("request status: %v", err)
	}
	if status.Status != platform.RequestStatusPending {
		t.Fatalf("incompatible requests paired: %+v", status)
	}
}

func TestCancelRequest(t *testing.T) {
	_, client := newTestBackend(t)
	ctx := context.Background()

	req, err := client.CreateMatchRequest(ctx, "arrays", "easy")
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	if err := client.CancelMatchRequest(ctx, req.ID); err != nil {
		t.Fatalf("cancel request: %v", err)
	}
	if _, err := client.GetRequestStatus(ctx, req.ID); err == nil {
		t.Fatalf("cancelled request still resolvable")
	}
}

func TestAttemptRecording(t *testing.T) {
	_, client := newTestBackend(t)

	attempt, err := client.CreateAttempt(context.Background(), platform.AttemptCreate{
		QuestionID:    "q-two-sum",
		Language:      "python",
		SubmittedCode: "def twoSum(a, b): pass",
		PassedTests:   2,
		TotalTests:    3,
	})
	if err != nil {
		t.Fatalf("create attempt: %v", err)
	}
	if attempt.ID == "" || attempt.PassedTests != 2 || attempt.TotalTests != 3 {
		t.Fatalf("attempt = %+v", attempt)
	}
}

// wsBase rewrites an httptest URL for websocket dialing.
func wsBase(serverURL string) string {
	return "ws" + strings.TrimPrefix(serverURL, "http")
}

func TestCollaborationRoomRelay(t *testing.T) {
	gin.SetMode(gin.TestMode)
	server := httptest.NewServer(NewServer().Router())
	defer server.Close()

	events := make(chan roomEvent, 64)

	chA, err := collab.Open(context.Background(), wsBase(server.URL), "sess-test", "u-a", "Alice",
		func(env collab.Envelope) { events <- roomEvent{who: "a", env: env} })
	if err != nil {
		t.Fatalf("open channel A: %v", err)
	}
	defer chA.Close()

	waitEnvelope(t, events, "a", func(env collab.Envelope) bool {
		_, ok := env.(*collab.SessionState)
		return ok
	})

	chB, err := collab.Open(context.Background(), wsBase(server.URL), "sess-test", "u-b", "Bob",
		func(env collab.Envelope) { events <- roomEvent{who: "b", env: env} })
	if err != nil {
		t.Fatalf("open channel B: %v", err)
	}
	defer chB.Close()

	// A learns about B's join; B gets the state replay.
	waitEnvelope(t, events, "a", func(env collab.Envelope) bool {
		joined, ok := env.(*collab.UserJoined)
		return ok && joined.UserID == "u-b"
	})
	waitEnvelope(t, events, "b", func(env collab.Envelope) bool {
		state, ok := env.(*collab.SessionState)
		if !ok {
			return false
		}
		for _, u := range state.Users {
			if u.UserID == "u-a" {
				return true
			}
		}
		return false
	})

	// Chat and code relay from A to B, not back to A.
	chA.Send(&collab.ChatMessage{UserID: "u-a", Username: "Alice", Text: "hi"})
	waitEnvelope(t, events, "b", func(env collab.Envelope) bool {
		msg, ok := env.(*collab.ChatMessage)
		return ok && msg.Text == "hi"
	})

	chA.Send(&collab.CodeUpdate{Code: "x = 1"})
	waitEnvelope(t, events, "b", func(env collab.Envelope) bool {
		upd, ok := env.(*collab.CodeUpdate)
		return ok && upd.Code == "x = 1"
	})

	// Line lock grants broadcast; the loser is denied.
	chA.Send(&collab.RequestLineLock{Line: 3})
	waitEnvelope(t, events, "b", func(env collab.Envelope) bool {
		lock, ok := env.(*collab.LineLockGranted)
		return ok && lock.Line == 3 && lock.UserID == "u-a"
	})
	chB.Send(&collab.RequestLineLock{Line: 3})
	waitEnvelope(t, events, "b", func(env collab.Envelope) bool {
		denied, ok := env.(*collab.LineLockDenied)
		return ok && denied.Line == 3 && denied.UserID == "u-a"
	})

	// A leaving surfaces as partner_left on B's side.
	chA.Close()
	waitEnvelope(t, events, "b", func(env collab.Envelope) bool {
		left, ok := env.(*collab.PartnerLeft)
		return ok && left.UserID == "u-a"
	})
}

type roomEvent struct {
	who string
	env collab.Envelope
}

func waitEnvelope(t *testing.T, events chan roomEvent, who string, match func(collab.Envelope) bool) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.who == who && match(ev.env) {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for envelope for %q", who)
		}
	}
}
