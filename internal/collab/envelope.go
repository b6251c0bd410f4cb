// Package collab implements the client side of the collaborative session
// protocol: the envelope codec, the stream channel, the presence reconciler
// and the session state store.
package collab

import (
	"encoding/json"
	"time"

	appErr "pairprep/pkg/errors"
)

// Kind discriminates envelope types on the wire.
type Kind string

const (
	KindSessionState     Kind = "session_state"
	KindPresenceSnapshot Kind = "presence_snapshot"
	KindIntroduce        Kind = "introduce"
	KindUserJoined       Kind = "user_joined"
	KindUserLeft         Kind = "user_left"
	KindPartnerLeft      Kind = "partner_left"
	KindChatMessage      Kind = "chat_message"
	KindCodeUpdate       Kind = "code_update"
	KindLineLockGranted  Kind = "line_lock_granted"
	KindLineLockDenied   Kind = "line_lock_denied"
	KindLineLockReleased Kind = "line_lock_released"
	KindRequestLineLock  Kind = "request_line_lock"
	KindReleaseLineLock  Kind = "release_line_lock"
	KindEndSession       Kind = "end_session"
)

// User identifies one participant as transmitted on the wire.
type User struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

// ChatEntry is one line of the session transcript. System entries are
// synthesized locally on presence change and never transmitted by a peer.
type ChatEntry struct {
	UserID    string    `json:"user_id,omitempty"`
	Username  string    `json:"username,omitempty"`
	Text      string    `json:"text"`
	System    bool      `json:"system,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Envelope is one decoded message unit from the collaboration stream.
type Envelope interface {
	Kind() Kind
}

// SessionState carries the full server-side view of a session.
// Code and Chat are pointers so absence can be told apart from emptiness.
type SessionState struct {
	Code     *string     `json:"code,omitempty"`
	Language string      `json:"language,omitempty"`
	Users    []User      `json:"users"`
	Chat     []ChatEntry `json:"chat,omitempty"`
}

func (SessionState) Kind() Kind { return KindSessionState }

// PresenceSnapshot carries the current participant set.
type PresenceSnapshot struct {
	Users []User `json:"users"`
}

func (PresenceSnapshot) Kind() Kind { return KindPresenceSnapshot }

// Introduce announces a participant's identity.
type Introduce struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

func (Introduce) Kind() Kind { return KindIntroduce }

// UserJoined announces a single join.
type UserJoined struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

func (UserJoined) Kind() Kind { return KindUserJoined }

// UserLeft announces a single leave.
type UserLeft struct {
	UserID string `json:"user_id"`
}

func (UserLeft) Kind() Kind { return KindUserLeft }

// PartnerLeft announces that the paired partner disconnected for good.
type PartnerLeft struct {
	UserID string `json:"user_id"`
}

func (PartnerLeft) Kind() Kind { return KindPartnerLeft }

// ChatMessage is one user-authored chat line.
type ChatMessage struct {
	UserID    string    `json:"user_id"`
	Username  string    `json:"username,omitempty"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

func (ChatMessage) Kind() Kind { return KindChatMessage }

// CodeUpdate replaces the shared code verbatim; last writer wins.
type CodeUpdate struct {
	Code string `json:"code"`
}

func (CodeUpdate) Kind() Kind { return KindCodeUpdate }

// LineLockGranted reports a granted line lock.
type LineLockGranted struct {
	Line   int    `json:"line"`
	UserID string `json:"user_id"`
}

func (LineLockGranted) Kind() Kind { return KindLineLockGranted }

// LineLockDenied reports a denied line lock request.
type LineLockDenied struct {
	Line   int    `json:"line"`
	UserID string `json:"user_id"`
}

func (LineLockDenied) Kind() Kind { return KindLineLockDenied }

// LineLockReleased reports that a held line lock was given back.
type LineLockReleased struct {
	Line int `json:"line"`
}

func (LineLockReleased) Kind() Kind { return KindLineLockReleased }

// RequestLineLock asks the server for an exclusive line lock.
type RequestLineLock struct {
	Line int `json:"line"`
}

func (RequestLineLock) Kind() Kind { return KindRequestLineLock }

// ReleaseLineLock gives a held line lock back.
type ReleaseLineLock struct {
	Line int `json:"line"`
}

func (ReleaseLineLock) Kind() Kind { return KindReleaseLineLock }

// EndSession asks the server to terminate the session for both sides.
type EndSession struct{}

func (EndSession) Kind() Kind { return KindEndSession }

// Unknown carries an unrecognized envelope type for logging. The reducer
// ignores it; the channel never closes over it.
type Unknown struct {
	Type string
	Raw  json.RawMessage
}

func (Unknown) Kind() Kind { return Kind("unknown") }

// Decode parses one line-delimited JSON envelope into its typed form.
// Malformed JSON is an error; an unrecognized type is not.
func Decode(data []byte) (Envelope, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, appErr.Wrap(err, appErr.EnvelopeInvalid)
	}

	decode := func(v Envelope) (Envelope, error) {
		if err := json.Unmarshal(data, v); err != nil {
			return nil, appErr.Wrapf(err, appErr.EnvelopeInvalid, "decode %s envelope failed", head.Type)
		}
		return v, nil
	}

	switch Kind(head.Type) {
	case KindSessionState:
		return decode(&SessionState{})
	case KindPresenceSnapshot:
		return decode(&PresenceSnapshot{})
	case KindIntroduce:
		return decode(&Introduce{})
	case KindUserJoined:
		return decode(&UserJoined{})
	case KindUserLeft:
		return decode(&UserLeft{})
	case KindPartnerLeft:
		return decode(&PartnerLeft{})
	case KindChatMessage:
		return decode(&ChatMessage{})
	case KindCodeUpdate:
		return decode(&CodeUpdate{})
	case KindLineLockGranted:
		return decode(&LineLockGranted{})
	case KindLineLockDenied:
		return decode(&LineLockDenied{})
	case KindLineLockReleased:
		return decode(&LineLockReleased{})
	case KindRequestLineLock:
		return decode(&RequestLineLock{})
	case KindReleaseLineLock:
		return decode(&ReleaseLineLock{})
	case KindEndSession:
		return &EndSession{}, nil
	default:
		return &Unknown{Type: head.Type, Raw: append(json.RawMessage(nil), data...)}, nil
	}
}

// Encode serializes an envelope with its type discriminator spliced in.
func Encode(env Envelope) ([]byte, error) {
	payload, err := json.Marshal(env)
	if err != nil {
		return nil, appErr.Wrap(err, appErr.EnvelopeInvalid)
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, appErr.Wrap(err, appErr.EnvelopeInvalid)
	}
	if fields == nil {
		fields = map[string]interface{}{}
	}
	fields["type"] = string(env.Kind())
	return json.Marshal(fields)
}
