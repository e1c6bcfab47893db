// Package session holds the live state of phone calls.
//
// A CallSession gives continuity to one call across the media relay's
// long-lived pumps and the webhook flow's independent request handlers.
// The Registry is the single source of truth for call lifecycle: at most
// one live session exists per call id.
package session

import (
	"errors"
	"strings"
	"sync"
	"time"
)

// State is a call's lifecycle position.
type State int

// Lifecycle states. A session only ever moves forward.
const (
	StateCreated State = iota
	StateStreaming
	StateFinalizing
	StateClosed
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateStreaming:
		return "streaming"
	case StateFinalizing:
		return "finalizing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Role identifies who produced a transcript entry.
type Role string

// Transcript roles.
const (
	RoleCaller Role = "caller"
	RoleBot    Role = "bot"
)

// TranscriptEntry is one committed message of a call's transcript.
type TranscriptEntry struct {
	Role    Role
	Message string
}

// Session is the live state of one call. All mutation happens under the
// session's own lock, so concurrent pumps and webhook handlers stay
// serialized without contending with other calls.
type Session struct {
	// CallID is the carrier-assigned call identifier. Immutable.
	CallID string
	// From is the caller's phone number. Immutable.
	From string
	// CreatedAt is when the session was registered. Immutable.
	CreatedAt time.Time

	mu         sync.Mutex
	state      State
	streamID   string
	transcript []TranscriptEntry
	// partial accumulates bot text deltas until a final marker commits them
	// as one transcript entry.
	partial strings.Builder
	live    bool
}

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Live reports whether the call is still active.
func (s *Session) Live() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live
}

// SetStreamID records the carrier stream identifier and moves the session
// into the streaming state on the first frame exchange.
func (s *Session) SetStreamID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streamID = id
	if s.state == StateCreated {
		s.state = StateStreaming
	}
}

// StreamID returns the carrier stream identifier, or "" before the stream
// has started.
func (s *Session) StreamID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamID
}

// AppendCaller appends a completed caller utterance to the transcript.
func (s *Session) AppendCaller(text string) {
	if text == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcript = append(s.transcript, TranscriptEntry{Role: RoleCaller, Message: text})
}

// AppendBotDelta accumulates a fragment of an in-flight bot utterance.
func (s *Session) AppendBotDelta(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.partial.WriteString(text)
}

// CommitBot commits the accumulated bot utterance as a single transcript
// entry and clears the accumulator. A commit with nothing accumulated is a
// no-op.
func (s *Session) CommitBot() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.partial.Len() == 0 {
		return
	}
	s.transcript = append(s.transcript, TranscriptEntry{Role: RoleBot, Message: s.partial.String()})
	s.partial.Reset()
}

// Transcript returns a snapshot of the committed transcript in arrival
// order.
func (s *Session) Transcript() []TranscriptEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TranscriptEntry, len(s.transcript))
	copy(out, s.transcript)
	return out
}

// BeginFinalize attempts the transition into the finalizing state. Exactly
// one caller wins; concurrent and repeated callers get false and must not
// finalize again.
func (s *Session) BeginFinalize() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateFinalizing || s.state == StateClosed {
		return false
	}
	s.state = StateFinalizing
	s.live = false
	return true
}

// Close marks the session closed. Terminal.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateClosed
	s.live = false
}

// ErrAlreadyExists is returned by Registry.Create when a live session
// already holds the call id.
var ErrAlreadyExists = errors.New("session: call id already has a live session")

// Registry is a concurrency-safe store of live sessions keyed by call id.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	now      func() time.Time
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

// Create registers a new session for callID. It fails with
// ErrAlreadyExists rather than replacing a live session.
func (r *Registry) Create(callID, from string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[callID]; ok {
		return nil, ErrAlreadyExists
	}
	s := &Session{
		CallID:    callID,
		From:      from,
		CreatedAt: r.now(),
		state:     StateCreated,
		live:      true,
	}
	r.sessions[callID] = s
	return s, nil
}

// Get returns the live session for callID, or nil.
func (r *Registry) Get(callID string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[callID]
}

// Remove deletes the session for callID. Removing an unknown id is a
// no-op.
func (r *Registry) Remove(callID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, callID)
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
