package collab

import (
	"fmt"
	"time"
)

// fallbackName is used when a display name was never learned for an id.
const fallbackName = "Someone"

// Participant is one member of the canonical participant set.
type Participant struct {
	UserID   string
	Username string
}

// IdentityCache maps user ids to their last-known display names for the
// lifetime of one channel connection. A name once learned is never forgotten,
// so leave lines can still resolve a name after the participant is removed.
// The cache is an explicit per-connection object, never package state.
type IdentityCache struct {
	names map[string]string
}

// NewIdentityCache creates an empty cache.
func NewIdentityCache() *IdentityCache {
	return &IdentityCache{names: make(map[string]string)}
}

// Learn records a display name for a user id. Empty names are ignored so a
// sparse snapshot cannot erase a previously learned name.
func (c *IdentityCache) Learn(userID, username string) {
	if userID == "" || username == "" {
		return
	}
	c.names[userID] = username
}

// Resolve returns the last-known display name for a user id.
func (c *IdentityCache) Resolve(userID string) (string, bool) {
	name, ok := c.names[userID]
	return name, ok
}

// Reconciler converts two participant snapshots into the new canonical set
// plus synthetic system chat lines for joins and leaves. It is pure given
// (previous, next) apart from the identity cache and message timestamps.
type Reconciler struct {
	localUserID string
	cache       *IdentityCache
	now         func() time.Time
}

// NewReconciler creates a reconciler bound to one connection's identity
// cache. Lines about localUserID are never generated.
func NewReconciler(localUserID string, cache *IdentityCache, now func() time.Time) *Reconciler {
	if now == nil {
		now = time.Now
	}
	return &Reconciler{localUserID: localUserID, cache: cache, now: now}
}

// Reconcile computes the participant set for the next snapshot and the
// system lines describing the delta. Within the join and leave categories
// the order follows map iteration and is not significant.
func (r *Reconciler) Reconcile(prev []Participant, next []User) ([]Participant, []ChatEntry) {
	prevIDs := make(map[string]string, len(prev))
	for _, p := range prev {
		prevIDs[p.UserID] = p.Username
		r.cache.Learn(p.UserID, p.Username)
	}

	// Deduplicate the next snapshot by user id; last entry wins.
	nextIDs := make(map[string]string, len(next))
	order := make([]string, 0, len(next))
	for _, u := range next {
		if _, seen := nextIDs[u.UserID]; !seen {
			order = append(order, u.UserID)
		}
		nextIDs[u.UserID] = u.Username
		r.cache.Learn(u.UserID, u.Username)
	}

	participants := make([]Participant, 0, len(order))
	for _, id := range order {
		participants = append(participants, Participant{UserID: id, Username: r.resolve(id, nextIDs)})
	}

	var lines []ChatEntry
	for id := range nextIDs {
		if _, existed := prevIDs[id]; existed || id == r.localUserID {
			continue
		}
		lines = append(lines, r.systemLine("%s joined the session", r.resolve(id, nextIDs)))
	}
	for id := range prevIDs {
		if _, stays := nextIDs[id]; stays || id == r.localUserID {
			continue
		}
		lines = append(lines, r.systemLine("%s left the session", r.resolve(id, nextIDs)))
	}

	return participants, lines
}

// resolve prefers the just-seen snapshot, then the identity cache.
func (r *Reconciler) resolve(userID string, snapshot map[string]string) string {
	if name := snapshot[userID]; name != "" {
		return name
	}
	if name, ok := r.cache.Resolve(userID); ok {
		return name
	}
	return fallbackName
}

func (r *Reconciler) systemLine(format, name string) ChatEntry {
	return ChatEntry{
		Text:      fmt.Sprintf(format, name),
		System:    true,
		Timestamp: r.now(),
	}
}
