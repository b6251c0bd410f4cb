package collab

import (
	"context"
	"sync"
	"time"

	"pairprep/pkg/utils/logger"

	"go.uber.org/zap"
)

// SessionStatus is the lifecycle phase of the local session view.
type SessionStatus string

const (
	StatusPreparing SessionStatus = "preparing"
	StatusReady     SessionStatus = "ready"
)

// Session is the authoritative client-side view of one collaborative
// session. It is mutated exclusively by the store's reducer.
type Session struct {
	ID           string
	Status       SessionStatus
	Code         string
	Language     string
	Participants []Participant
	Chat         []ChatEntry
	PartnerLeft  bool
	Ended        bool
	LineLocks    map[int]string // line number -> holder user id
}

// Store reduces the inbound envelope stream into a Session. Apply is the
// only writer; readers take snapshot copies. All envelopes of one channel
// must be applied from a single goroutine so last-writer-wins on code
// updates stays meaningful.
type Store struct {
	mu      sync.RWMutex
	session Session
	rec     *Reconciler
	cache   *IdentityCache
	ctx     context.Context
	now     func() time.Time
}

// NewStore creates the store for one session scoped to one connection.
func NewStore(sessionID, localUserID string, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	cache := NewIdentityCache()
	return &Store{
		session: Session{
			ID:        sessionID,
			Status:    StatusPreparing,
			LineLocks: make(map[int]string),
		},
		rec:   NewReconciler(localUserID, cache, now),
		cache: cache,
		ctx:   logger.WithSessionID(context.Background(), sessionID),
		now:   now,
	}
}

// Snapshot returns a copy of the current session view for rendering.
func (s *Store) Snapshot() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := s.session
	snap.Participants = append([]Participant(nil), s.session.Participants...)
	snap.Chat = append([]ChatEntry(nil), s.session.Chat...)
	snap.LineLocks = make(map[int]string, len(s.session.LineLocks))
	for line, holder := range s.session.LineLocks {
		snap.LineLocks[line] = holder
	}
	return snap
}

// SetLanguage records the locally selected execution language.
func (s *Store) SetLanguage(language string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session.Language = language
}

// Apply reduces one envelope into the session and returns copies of the
// chat entries the reduction appended, so callers can echo exactly what
// arrived. Unrecognized envelopes are logged and ignored; the reducer never
// fails.
func (s *Store) Apply(env Envelope) []ChatEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := len(s.session.Chat)
	switch e := env.(type) {
	case *SessionState:
		s.applySessionState(e)
	case *PresenceSnapshot:
		s.mergePresence(e.Users)
	case *Introduce:
		s.applyIntroduce(e)
	case *UserJoined:
		s.applyUserJoined(e)
	case *UserLeft:
		s.removeParticipant(e.UserID, false)
	case *PartnerLeft:
		s.removeParticipant(e.UserID, true)
	case *ChatMessage:
		s.applyChatMessage(e)
	case *CodeUpdate:
		// Last writer wins; no merge or conflict detection.
		s.session.Code = e.Code
	case *LineLockGranted:
		s.session.LineLocks[e.Line] = e.UserID
	case *LineLockReleased:
		delete(s.session.LineLocks, e.Line)
	case *EndSession:
		s.session.Ended = true
	case *LineLockDenied:
		logger.Debug(s.ctx, "line lock denied",
			zap.Int("line", e.Line), zap.String("holder", e.UserID))
	case *Unknown:
		logger.Warn(s.ctx, "unhandled envelope type", zap.String("envelope_type", e.Type))
	default:
		logger.Warn(s.ctx, "unhandled envelope kind", zap.String("kind", string(env.Kind())))
	}

	// A session_state replay can replace the transcript with a shorter one;
	// there is nothing new to report then.
	if before > len(s.session.Chat) {
		return nil
	}
	return append([]ChatEntry(nil), s.session.Chat[before:]...)
}

func (s *Store) applySessionState(e *SessionState) {
	if e.Code != nil {
		s.session.Code = *e.Code
	}
	if e.Language != "" {
		s.session.Language = e.Language
	}
	s.session.Status = StatusReady
	s.mergePresence(e.Users)
	// Server-provided transcript replaces local history only when present.
	if e.Chat != nil {
		s.session.Chat = append([]ChatEntry(nil), e.Chat...)
	}
}

func (s *Store) applyIntroduce(e *Introduce) {
	s.cache.Learn(e.UserID, e.Username)
	for i, p := range s.session.Participants {
		if p.UserID == e.UserID {
			if e.Username != "" {
				s.session.Participants[i].Username = e.Username
			}
			return
		}
	}
	s.session.Participants = append(s.session.Participants, Participant{
		UserID:   e.UserID,
		Username: e.Username,
	})
}

func (s *Store) applyUserJoined(e *UserJoined) {
	next := make([]User, 0, len(s.session.Participants)+1)
	for _, p := range s.session.Participants {
		if p.UserID == e.UserID {
			continue
		}
		next = append(next, User{UserID: p.UserID, Username: p.Username})
	}
	next = append(next, User{UserID: e.UserID, Username: e.Username})
	s.mergePresence(next)
}

func (s *Store) removeParticipant(userID string, partner bool) {
	next := make([]User, 0, len(s.session.Participants))
	for _, p := range s.session.Participants {
		if p.UserID == userID {
			continue
		}
		next = append(next, User{UserID: p.UserID, Username: p.Username})
	}
	s.mergePresence(next)
	if partner {
		s.session.PartnerLeft = true
	}
	for line, holder := range s.session.LineLocks {
		if holder == userID {
			delete(s.session.LineLocks, line)
		}
	}
}

func (s *Store) applyChatMessage(e *ChatMessage) {
	username := e.Username
	if username == "" {
		if name, ok := s.cache.Resolve(e.UserID); ok {
			username = name
		} else {
			username = fallbackName
		}
	}
	ts := e.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}
	s.session.Chat = append(s.session.Chat, ChatEntry{
		UserID:    e.UserID,
		Username:  username,
		Text:      e.Text,
		Timestamp: ts,
	})
}

func (s *Store) mergePresence(next []User) {
	participants, lines := s.rec.Reconcile(s.session.Participants, next)
	s.session.Participants = participants
	s.session.Chat = append(s.session.Chat, lines...)
}
