package match

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"pairprep/internal/platform"
	"pairprep/internal/testutil"
	appErr "pairprep/pkg/errors"
)

// fakeAPI scripts the matching backend. Response sequences are consumed one
// per call; the last entry repeats.
type fakeAPI struct {
	mu sync.Mutex

	createErr     error
	requestID     string
	statuses      []platform.RequestStatus
	statusErrs    []error
	confirmResult platform.ConfirmResult
	confirmErr    error
	matchStatuses []platform.MatchStatus

	pollCount      int
	matchPollCount int
	cancelCount    int
	cancelledIDs   []string
}

func (f *fakeAPI) CreateMatchRequest(_ context.Context, topic, difficulty string) (platform.MatchRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return platform.MatchRequest{}, f.createErr
	}
	id := f.requestID
	if id == "" {
		id = "req-1"
	}
	return platform.MatchRequest{ID: id, Topic: topic, Difficulty: difficulty, Status: platform.RequestStatusPending}, nil
}

func (f *fakeAPI) GetRequestStatus(_ context.Context, _ string) (platform.RequestStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.pollCount
	f.pollCount++
	if i < len(f.statusErrs) && f.statusErrs[i] != nil {
		return platform.RequestStatus{}, f.statusErrs[i]
	}
	if len(f.statuses) == 0 {
		return platform.RequestStatus{Status: platform.RequestStatusPending}, nil
	}
	if i >= len(f.statuses) {
		i = len(f.statuses) - 1
	}
	return f.statuses[i], nil
}

func (f *fakeAPI) CancelMatchRequest(_ context.Context, requestID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelCount++
	f.cancelledIDs = append(f.cancelledIDs, requestID)
	return nil
}

func (f *fakeAPI) ConfirmMatch(_ context.Context, _ string, _ bool) (platform.ConfirmResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.confirmResult, f.confirmErr
}

func (f *fakeAPI) GetMatchStatus(_ context.Context, _ string) (platform.MatchStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.matchPollCount
	f.matchPollCount++
	if len(f.matchStatuses) == 0 {
		return platform.MatchStatus{Status: "confirming"}, nil
	}
	if i >= len(f.matchStatuses) {
		i = len(f.matchStatuses) - 1
	}
	return f.matchStatuses[i], nil
}

func (f *fakeAPI) polls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pollCount
}

func (f *fakeAPI) cancels() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancelCount
}

// stateRecorder collects every observed transition.
type stateRecorder struct {
	mu     sync.Mutex
	states []State
}

func (r *stateRecorder) observe(snap Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, snap.State)
}

func (r *stateRecorder) all() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...)
}

func fastTimings() Timings {
	return Timings{
		PollInterval:        5 * time.Millisecond,
		SearchTimeout:       time.Second,
		PartnerPollInterval: 5 * time.Millisecond,
	}
}

func waitForState(t *testing.T, m *Machine, want State) {
	t.Helper()
	testutil.WaitFor(t, 2*time.Second, func() bool {
		return m.Snapshot().State == want
	}, "machine never reached "+string(want))
}

func TestSearchFindsMatchAfterPolls(t *testing.T) {
	api := &fakeAPI{
		statuses: []platform.RequestStatus{
			{Status: platform.RequestStatusPending},
			{Status: platform.RequestStatusPending},
			{Status: platform.RequestStatusMatched, MatchID: "match-1"},
		},
	}
	rec := &stateRecorder{}
	m := NewMachine(api, fastTimings(), rec.observe)

	if err := m.StartSearch(context.Background(), "arrays", "easy"); err != nil {
		t.Fatalf("StartSearch() error: %v", err)
	}
	waitForState(t, m, StateFound)

	snap := m.Snapshot()
	if snap.MatchID != "match-1" {
		t.Fatalf("match id = %q, want match-1", snap.MatchID)
	}
	if snap.Topic != "arrays" || snap.Difficulty != "easy" {
		t.Fatalf("search params lost: %+v", snap)
	}
	if got := api.polls(); got != 3 {
		t.Fatalf("poll count = %d, want exactly 3", got)
	}
	if got := m.liveTimerCount(); got != 0 {
		t.Fatalf("live timers after found = %d, want 0", got)
	}

	// No further polls may happen once the match is found.
	time.Sleep(30 * time.Millisecond)
	if got := api.polls(); got != 3 {
		t.Fatalf("polls continued after found: %d", got)
	}

	states := rec.all()
	if len(states) < 2 || states[0] != StateSearching || states[len(states)-1] != StateFound {
		t.Fatalf("observed states %v, want searching..found", states)
	}
}

func TestSearchTimesOutIntoNoMatch(t *testing.T) {
	api := &fakeAPI{} // always pending
	timings := fastTimings()
	timings.SearchTimeout = 40 * time.Millisecond
	m := NewMachine(api, timings, nil)

	if err := m.StartSearch(context.Background(), "graphs", "hard"); err != nil {
		t.Fatalf("StartSearch() error: %v", err)
	}
	waitForState(t, m, StateNoMatch)

	if got := m.liveTimerCount(); got != 0 {
		t.Fatalf("live timers after timeout = %d, want 0", got)
	}

	// Polling must stop dead after the timeout.
	time.Sleep(20 * time.Millisecond)
	settled := api.polls()
	time.Sleep(40 * time.Millisecond)
	if got := api.polls(); got != settled {
		t.Fatalf("polls continued after timeout: %d -> %d", settled, got)
	}

	deadline := time.Now().Add(time.Second)
	for api.cancels() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if got := api.cancels(); got != 1 {
		t.Fatalf("backend cancel count = %d, want 1", got)
	}
}

func TestPollFailuresAreSwallowed(t *testing.T) {
	api := &fakeAPI{
		statusErrs: []error{errors.New("boom"), errors.New("boom")},
		statuses: []platform.RequestStatus{
			{}, {},
			{Status: platform.RequestStatusMatched, MatchID: "match-2"},
		},
	}
	m := NewMachine(api, fastTimings(), nil)

	if err := m.StartSearch(context.Background(), "arrays", "easy"); err != nil {
		t.Fatalf("StartSearch() error: %v", err)
	}
	waitForState(t, m, StateFound)
}

func TestCancelSearch(t *testing.T) {
	api := &fakeAPI{}
	m := NewMachine(api, fastTimings(), nil)

	if err := m.StartSearch(context.Background(), "arrays", "easy"); err != nil {
		t.Fatalf("StartSearch() error: %v", err)
	}
	if err := m.CancelSearch(context.Background()); err != nil {
		t.Fatalf("CancelSearch() error: %v", err)
	}

	if got := m.Snapshot().State; got != StateIdle {
		t.Fatalf("state after cancel = %s, want idle", got)
	}
	if got := m.liveTimerCount(); got != 0 {
		t.Fatalf("live timers after cancel = %d, want 0", got)
	}
	if got := api.cancels(); got != 1 {
		t.Fatalf("backend cancel count = %d, want 1", got)
	}

	// A stale poll timer must not fire after cancel. An already in-flight
	// tick may still land, so settle first.
	time.Sleep(20 * time.Millisecond)
	polls := api.polls()
	time.Sleep(30 * time.Millisecond)
	if got := api.polls(); got != polls {
		t.Fatalf("polls continued after cancel: %d -> %d", polls, got)
	}
}

func TestStartSearchCreateFailure(t *testing.T) {
	api := &fakeAPI{createErr: errors.New("backend down")}
	m := NewMachine(api, fastTimings(), nil)

	err := m.StartSearch(context.Background(), "arrays", "easy")
	if err == nil {
		t.Fatalf("StartSearch() must fail when create fails")
	}
	if appErr.GetCode(err) != appErr.MatchRequestFailed {
		t.Fatalf("error code = %d, want MatchRequestFailed", appErr.GetCode(err))
	}
	if got := m.Snapshot().State; got != StateNoMatch {
		t.Fatalf("state = %s, want no_match", got)
	}
	if got := m.liveTimerCount(); got != 0 {
		t.Fatalf("live timers after failed create = %d, want 0", got)
	}
}

func TestConfirmBothReady(t *testing.T) {
	api := &fakeAPI{
		statuses:      []platform.RequestStatus{{Status: platform.RequestStatusMatched, MatchID: "match-1"}},
		confirmResult: platform.ConfirmResult{Status: platform.ConfirmSessionReady, SessionID: "sess-9"},
	}
	m := NewMachine(api, fastTimings(), nil)

	if err := m.StartSearch(context.Background(), "arrays", "easy"); err != nil {
		t.Fatalf("StartSearch() error: %v", err)
	}
	waitForState(t, m, StateFound)

	if err := m.ConfirmMatch(context.Background()); err != nil {
		t.Fatalf("ConfirmMatch() error: %v", err)
	}
	if got := m.Snapshot().State; got != StatePreparingSession {
		t.Fatalf("state = %s, want preparing_session", got)
	}
	if got := m.SessionID(); got != "sess-9" {
		t.Fatalf("session id = %q, want sess-9", got)
	}
	if got := m.liveTimerCount(); got != 0 {
		t.Fatalf("live timers = %d, want 0", got)
	}
}

func TestConfirmWaitsForPartner(t *testing.T) {
	api := &fakeAPI{
		statuses:      []platform.RequestStatus{{Status: platform.RequestStatusMatched, MatchID: "match-1"}},
		confirmResult: platform.ConfirmResult{Status: platform.ConfirmWaitingForPartner},
		matchStatuses: []platform.MatchStatus{
			{Status: "confirming"},
			{Status: platform.ConfirmSessionReady, SessionID: "sess-7"},
		},
	}
	rec := &stateRecorder{}
	m := NewMachine(api, fastTimings(), rec.observe)

	if err := m.StartSearch(context.Background(), "arrays", "easy"); err != nil {
		t.Fatalf("StartSearch() error: %v", err)
	}
	waitForState(t, m, StateFound)
	if err := m.ConfirmMatch(context.Background()); err != nil {
		t.Fatalf("ConfirmMatch() error: %v", err)
	}
	waitForState(t, m, StatePreparingSession)

	if got := m.SessionID(); got != "sess-7" {
		t.Fatalf("session id = %q, want sess-7", got)
	}
	if got := m.liveTimerCount(); got != 0 {
		t.Fatalf("live timers after session ready = %d, want 0", got)
	}

	sawWaiting := false
	for _, s := range rec.all() {
		if s == StateWaitingForPartner {
			sawWaiting = true
		}
	}
	if !sawWaiting {
		t.Fatalf("machine never passed through waiting_for_partner: %v", rec.all())
	}
}

func TestConfirmFailureFallsBackToFound(t *testing.T) {
	api := &fakeAPI{
		statuses:   []platform.RequestStatus{{Status: platform.RequestStatusMatched, MatchID: "match-1"}},
		confirmErr: errors.New("confirm rejected"),
	}
	m := NewMachine(api, fastTimings(), nil)

	if err := m.StartSearch(context.Background(), "arrays", "easy"); err != nil {
		t.Fatalf("StartSearch() error: %v", err)
	}
	waitForState(t, m, StateFound)

	err := m.ConfirmMatch(context.Background())
	if err == nil {
		t.Fatalf("ConfirmMatch() must surface the failure")
	}
	if appErr.GetCode(err) != appErr.ConfirmFailed {
		t.Fatalf("error code = %d, want ConfirmFailed", appErr.GetCode(err))
	}
	if got := m.Snapshot().State; got != StateFound {
		t.Fatalf("state = %s, want found for retry", got)
	}
}

func TestRetryAndAcknowledge(t *testing.T) {
	api := &fakeAPI{createErr: errors.New("down")}
	m := NewMachine(api, fastTimings(), nil)

	_ = m.StartSearch(context.Background(), "trees", "medium")
	if got := m.Snapshot().State; got != StateNoMatch {
		t.Fatalf("state = %s, want no_match", got)
	}

	// Retry reuses the stored topic and difficulty.
	api.mu.Lock()
	api.createErr = nil
	api.mu.Unlock()
	if err := m.Retry(context.Background()); err != nil {
		t.Fatalf("Retry() error: %v", err)
	}
	snap := m.Snapshot()
	if snap.State != StateSearching || snap.Topic != "trees" || snap.Difficulty != "medium" {
		t.Fatalf("retry snapshot = %+v", snap)
	}
	_ = m.CancelSearch(context.Background())

	// Acknowledge only applies in no_match.
	if err := m.Acknowledge(); err == nil {
		t.Fatalf("Acknowledge() from idle must fail")
	}
}

func TestInvalidTransitions(t *testing.T) {
	m := NewMachine(&fakeAPI{}, fastTimings(), nil)

	if err := m.ConfirmMatch(context.Background()); err == nil {
		t.Fatalf("ConfirmMatch() from idle must fail")
	}
	if err := m.CancelSearch(context.Background()); err == nil {
		t.Fatalf("CancelSearch() from idle must fail")
	}
	if err := m.Retry(context.Background()); err == nil {
		t.Fatalf("Retry() from idle must fail")
	}

	err := m.ConfirmMatch(context.Background())
	if appErr.GetCode(err) != appErr.InvalidTransition {
		t.Fatalf("error code = %d, want InvalidTransition", appErr.GetCode(err))
	}
}

func TestStartSearchRejectedWhileSearching(t *testing.T) {
	api := &fakeAPI{}
	m := NewMachine(api, fastTimings(), nil)

	if err := m.StartSearch(context.Background(), "arrays", "easy"); err != nil {
		t.Fatalf("StartSearch() error: %v", err)
	}
	if err := m.StartSearch(context.Background(), "arrays", "easy"); err == nil {
		t.Fatalf("second StartSearch() while searching must fail")
	}
	_ = m.CancelSearch(context.Background())
}
