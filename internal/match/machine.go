// Package match drives a user from idle through request submission, status
// polling, mutual confirmation and session-ready hand-off.
package match

import (
	"context"
	"sync"
	"time"

	"pairprep/internal/platform"
	appErr "pairprep/pkg/errors"
	"pairprep/pkg/utils/logger"

	"go.uber.org/zap"
)

// State is one phase of the matchmaking flow.
type State string

const (
	StateIdle              State = "idle"
	StateSearching         State = "searching"
	StateFound             State = "found"
	StateNoMatch           State = "no_match"
	StateConfirming        State = "confirming_match"
	StateWaitingForPartner State = "waiting_for_partner"
	StatePreparingSession  State = "preparing_session"
)

// Timings holds the polling and timeout discipline. All are injectable so
// tests can run the full flow in milliseconds.
type Timings struct {
	PollInterval        time.Duration
	SearchTimeout       time.Duration
	PartnerPollInterval time.Duration
}

// DefaultTimings mirror the product's matchmaking cadence.
func DefaultTimings() Timings {
	return Timings{
		PollInterval:        1500 * time.Millisecond,
		SearchTimeout:       60 * time.Second,
		PartnerPollInterval: 2 * time.Second,
	}
}

// API is the slice of the matching backend the machine needs.
type API interface {
	CreateMatchRequest(ctx context.Context, topic, difficulty string) (platform.MatchRequest, error)
	GetRequestStatus(ctx context.Context, requestID string) (platform.RequestStatus, error)
	CancelMatchRequest(ctx context.Context, requestID string) error
	ConfirmMatch(ctx context.Context, matchID string, confirmed bool) (platform.ConfirmResult, error)
	GetMatchStatus(ctx context.Context, matchID string) (platform.MatchStatus, error)
}

// Snapshot is an immutable view of the machine for rendering.
type Snapshot struct {
	State      State
	Topic      string
	Difficulty string
	RequestID  string
	MatchID    string
	SessionID  string
}

// Observer is notified synchronously on every transition. It must not call
// back into the machine.
type Observer func(Snapshot)

// Machine is the matchmaking state machine. All mutation happens under one
// mutex; timer callbacks carry the generation at arm time and late fires
// against a newer generation are discarded, so a stale search timeout can
// never downgrade an already-found match.
type Machine struct {
	api      API
	timings  Timings
	observer Observer

	mu           sync.Mutex
	snap         Snapshot
	gen          uint64
	pollTimer    *time.Timer
	timeoutTimer *time.Timer
	partnerTimer *time.Timer
	pollFailures int
}

// NewMachine creates an idle machine.
func NewMachine(a API, timings Timings, observer Observer) *Machine {
	if timings.PollInterval <= 0 {
		timings.PollInterval = DefaultTimings().PollInterval
	}
	if timings.SearchTimeout <= 0 {
		timings.SearchTimeout = DefaultTimings().SearchTimeout
	}
	if timings.PartnerPollInterval <= 0 {
		timings.PartnerPollInterval = DefaultTimings().PartnerPollInterval
	}
	return &Machine{
		api:      a,
		timings:  timings,
		observer: observer,
		snap:     Snapshot{State: StateIdle},
	}
}

// Snapshot returns the current view.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap
}

// StartSearch submits a match request and begins polling its status. Valid
// from idle and no_match. A request-creation failure short-circuits to
// no_match.
func (m *Machine) StartSearch(ctx context.Context, topic, difficulty string) error {
	m.mu.Lock()
	if m.snap.State != StateIdle && m.snap.State != StateNoMatch {
		state := m.snap.State
		m.mu.Unlock()
		return appErr.Newf(appErr.InvalidTransition, "cannot start search from %s", state)
	}
	m.snap = Snapshot{State: StateSearching, Topic: topic, Difficulty: difficulty}
	m.transitionLocked()
	gen := m.gen
	m.mu.Unlock()

	req, err := m.api.CreateMatchRequest(ctx, topic, difficulty)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen != gen {
		// Cancelled while the create call was in flight.
		if err == nil && req.ID != "" {
			go func() { _ = m.api.CancelMatchRequest(context.Background(), req.ID) }()
		}
		return nil
	}
	if err != nil {
		m.snap.State = StateNoMatch
		m.transitionLocked()
		return appErr.Wrap(err, appErr.MatchRequestFailed)
	}

	m.snap.RequestID = req.ID
	m.pollFailures = 0
	m.timeoutTimer = time.AfterFunc(m.timings.SearchTimeout, func() { m.onSearchTimeout(gen) })
	m.armRequestPollLocked(ctx, gen)
	logger.Info(ctx, "match search started",
		zap.String("request_id", req.ID), zap.String("topic", topic), zap.String("difficulty", difficulty))
	return nil
}

// Retry re-enters searching with the same topic and difficulty. Valid only
// from no_match.
func (m *Machine) Retry(ctx context.Context) error {
	m.mu.Lock()
	if m.snap.State != StateNoMatch {
		state := m.snap.State
		m.mu.Unlock()
		return appErr.Newf(appErr.InvalidTransition, "cannot retry from %s", state)
	}
	topic, difficulty := m.snap.Topic, m.snap.Difficulty
	m.mu.Unlock()
	return m.StartSearch(ctx, topic, difficulty)
}

// CancelSearch clears the search timers, best-effort cancels the pending
// request with the backend and returns to idle.
func (m *Machine) CancelSearch(ctx context.Context) error {
	m.mu.Lock()
	if m.snap.State != StateSearching {
		state := m.snap.State
		m.mu.Unlock()
		return appErr.Newf(appErr.InvalidTransition, "cannot cancel search from %s", state)
	}
	m.stopSearchTimersLocked()
	requestID := m.snap.RequestID
	m.snap = Snapshot{State: StateIdle}
	m.transitionLocked()
	m.mu.Unlock()

	if requestID != "" {
		if err := m.api.CancelMatchRequest(ctx, requestID); err != nil {
			logger.Warn(ctx, "cancel match request failed", zap.String("request_id", requestID), zap.Error(err))
		}
	}
	return nil
}

// Acknowledge returns to idle from no_match.
func (m *Machine) Acknowledge() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snap.State != StateNoMatch {
		return appErr.Newf(appErr.InvalidTransition, "cannot acknowledge from %s", m.snap.State)
	}
	m.snap = Snapshot{State: StateIdle}
	m.transitionLocked()
	return nil
}

// ConfirmMatch posts this side's confirmation. Depending on whether the
// partner already confirmed, the machine moves to preparing_session or to
// waiting_for_partner with a status poll armed.
func (m *Machine) ConfirmMatch(ctx context.Context) error {
	m.mu.Lock()
	if m.snap.State != StateFound {
		state := m.snap.State
		m.mu.Unlock()
		return appErr.Newf(appErr.InvalidTransition, "cannot confirm from %s", state)
	}
	m.snap.State = StateConfirming
	m.transitionLocked()
	matchID := m.snap.MatchID
	gen := m.gen
	m.mu.Unlock()

	res, err := m.api.ConfirmMatch(ctx, matchID, true)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen != gen || m.snap.State != StateConfirming {
		return nil
	}
	if err != nil {
		// Confirmation did not take; fall back to found so the user can retry.
		m.snap.State = StateFound
		m.transitionLocked()
		return appErr.Wrap(err, appErr.ConfirmFailed)
	}

	if res.SessionID != "" {
		m.snap.SessionID = res.SessionID
		m.snap.State = StatePreparingSession
		m.transitionLocked()
		return nil
	}

	m.snap.State = StateWaitingForPartner
	m.transitionLocked()
	m.armPartnerPollLocked(ctx, m.gen)
	return nil
}

// SessionID returns the session handle once preparing_session is reached.
func (m *Machine) SessionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap.SessionID
}

// transitionLocked publishes the new state. Every transition bumps the
// generation, invalidating any timer armed under an older one.
func (m *Machine) transitionLocked() {
	m.gen++
	if m.observer != nil {
		m.observer(m.snap)
	}
}

// stopSearchTimersLocked clears the request poll and the overall timeout.
// Every exit from searching must go through here before the new state is
// published.
func (m *Machine) stopSearchTimersLocked() {
	if m.pollTimer != nil {
		m.pollTimer.Stop()
		m.pollTimer = nil
	}
	if m.timeoutTimer != nil {
		m.timeoutTimer.Stop()
		m.timeoutTimer = nil
	}
}

func (m *Machine) stopPartnerTimerLocked() {
	if m.partnerTimer != nil {
		m.partnerTimer.Stop()
		m.partnerTimer = nil
	}
}

func (m *Machine) armRequestPollLocked(ctx context.Context, gen uint64) {
	m.pollTimer = time.AfterFunc(m.timings.PollInterval, func() { m.pollRequest(ctx, gen) })
}

func (m *Machine) armPartnerPollLocked(ctx context.Context, gen uint64) {
	m.partnerTimer = time.AfterFunc(m.timings.PartnerPollInterval, func() { m.pollMatch(ctx, gen) })
}

// pollRequest is one request-status poll tick. Poll failures are logged and
// swallowed; only a matched result or the search timeout changes state.
func (m *Machine) pollRequest(ctx context.Context, gen uint64) {
	m.mu.Lock()
	if m.gen != gen || m.snap.State != StateSearching {
		m.mu.Unlock()
		return
	}
	requestID := m.snap.RequestID
	m.mu.Unlock()

	status, err := m.api.GetRequestStatus(ctx, requestID)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen != gen || m.snap.State != StateSearching {
		return
	}
	if err != nil {
		m.pollFailures++
		logger.Warn(ctx, "request status poll failed",
			zap.String("request_id", requestID), zap.Int("consecutive_failures", m.pollFailures), zap.Error(err))
		m.armRequestPollLocked(ctx, gen)
		return
	}
	m.pollFailures = 0

	if status.Status == platform.RequestStatusMatched {
		m.stopSearchTimersLocked()
		m.snap.MatchID = status.MatchID
		m.snap.State = StateFound
		m.transitionLocked()
		return
	}
	m.armRequestPollLocked(ctx, gen)
}

// pollMatch is one partner-confirmation poll tick.
func (m *Machine) pollMatch(ctx context.Context, gen uint64) {
	m.mu.Lock()
	if m.gen != gen || m.snap.State != StateWaitingForPartner {
		m.mu.Unlock()
		return
	}
	matchID := m.snap.MatchID
	m.mu.Unlock()

	status, err := m.api.GetMatchStatus(ctx, matchID)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen != gen || m.snap.State != StateWaitingForPartner {
		return
	}
	if err != nil {
		logger.Warn(ctx, "match status poll failed", zap.String("match_id", matchID), zap.Error(err))
		m.armPartnerPollLocked(ctx, gen)
		return
	}

	if status.SessionID != "" {
		m.stopPartnerTimerLocked()
		m.snap.SessionID = status.SessionID
		m.snap.State = StatePreparingSession
		m.transitionLocked()
		return
	}
	m.armPartnerPollLocked(ctx, gen)
}

// onSearchTimeout fires after the overall search window with no match.
func (m *Machine) onSearchTimeout(gen uint64) {
	m.mu.Lock()
	if m.gen != gen || m.snap.State != StateSearching {
		m.mu.Unlock()
		return
	}
	m.stopSearchTimersLocked()
	requestID := m.snap.RequestID
	m.snap.State = StateNoMatch
	m.transitionLocked()
	m.mu.Unlock()

	logger.Info(context.Background(), "match search timed out", zap.String("request_id", requestID))
	if requestID != "" {
		go func() { _ = m.api.CancelMatchRequest(context.Background(), requestID) }()
	}
}

// liveTimerCount reports armed timers; used by tests to assert cleanup.
func (m *Machine) liveTimerCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	if m.pollTimer != nil {
		count++
	}
	if m.timeoutTimer != nil {
		count++
	}
	if m.partnerTimer != nil {
		count++
	}
	return count
}
