// Package admission decides whether an inbound call may proceed before any
// session resources are allocated.
//
// Checks run in a fixed order: caller-id format, blocklist, rate limit.
// Only an allowed attempt is recorded against the caller's rate window, so
// rejected attempts never count toward the limit.
package admission

import (
	"regexp"
	"sync"
	"time"
)

// Reason identifies why a call was rejected.
type Reason string

// Rejection reasons.
const (
	ReasonInvalidFormat Reason = "invalid_format"
	ReasonBlocked       Reason = "blocked"
	ReasonRateLimited   Reason = "rate_limited"
)

// Decision is the outcome of an admission check.
type Decision struct {
	Allowed bool
	Reason  Reason
}

// e164Pattern matches the international phone-number format: a plus sign,
// a leading digit 1-9, and 1-14 further digits.
var e164Pattern = regexp.MustCompile(`^\+[1-9]\d{1,14}$`)

// ValidNumber reports whether callerID is a well-formed E.164 number.
func ValidNumber(callerID string) bool {
	return e164Pattern.MatchString(callerID)
}

// Gate validates callers and enforces the blocklist and per-caller rate
// limit. All methods are safe for concurrent use.
type Gate struct {
	maxPerWindow int
	window       time.Duration
	now          func() time.Time

	mu      sync.Mutex
	blocked map[string]struct{}
	// attempts holds the admitted-call timestamps per caller, oldest first.
	attempts map[string][]time.Time
}

// Option configures the Gate.
type Option func(*Gate)

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) {
		g.now = now
	}
}

// WithWindow overrides the trailing rate-limit window (default one hour).
func WithWindow(d time.Duration) Option {
	return func(g *Gate) {
		g.window = d
	}
}

// NewGate creates a Gate allowing at most maxPerWindow calls per caller in
// the trailing window. Numbers in blocklist are always rejected.
func NewGate(maxPerWindow int, blocklist []string, opts ...Option) *Gate {
	g := &Gate{
		maxPerWindow: maxPerWindow,
		window:       time.Hour,
		now:          time.Now,
		blocked:      make(map[string]struct{}, len(blocklist)),
		attempts:     make(map[string][]time.Time),
	}
	for _, n := range blocklist {
		g.blocked[n] = struct{}{}
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Admit runs the admission checks for callerID. The attempt is recorded
// against the caller's window only when the call is allowed.
func (g *Gate) Admit(callerID string) Decision {
	if !ValidNumber(callerID) {
		return Decision{Reason: ReasonInvalidFormat}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.blocked[callerID]; ok {
		return Decision{Reason: ReasonBlocked}
	}

	now := g.now()
	recent := g.prune(callerID, now)
	if len(recent) >= g.maxPerWindow {
		return Decision{Reason: ReasonRateLimited}
	}

	g.attempts[callerID] = append(recent, now)
	return Decision{Allowed: true}
}

// Block adds a number to the blocklist.
func (g *Gate) Block(callerID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.blocked[callerID] = struct{}{}
}

// WindowSize returns the number of admitted attempts currently counted
// against callerID.
func (g *Gate) WindowSize(callerID string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.prune(callerID, g.now()))
}

// prune drops timestamps that have aged out of the window and stores the
// trimmed slice back. Caller must hold g.mu.
func (g *Gate) prune(callerID string, now time.Time) []time.Time {
	cutoff := now.Add(-g.window)
	ts := g.attempts[callerID]
	i := 0
	for i < len(ts) && !ts[i].After(cutoff) {
		i++
	}
	if i > 0 {
		ts = append([]time.Time(nil), ts[i:]...)
		if len(ts) == 0 {
			delete(g.attempts, callerID)
		} else {
			g.attempts[callerID] = ts
		}
	}
	return ts
}
