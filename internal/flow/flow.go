// Package flow drives the turn-based dialog variant, where each carrier
// webhook delivers one step of input and expects a symbolic next action.
//
// The media relay gives a call continuity through a long-lived socket; this
// package gives it continuity through independent request/response steps
// instead. Each step loads the call's session by id, applies the input, and
// stores the advanced state before returning.
package flow

import (
	"errors"
	"strings"
	"sync"

	"github.com/agentplexus/frontdesk/internal/session"
)

// NextAction tells the webhook layer what to ask the caller next. The
// markup rendering of each action belongs to the caller, not this package.
type NextAction int

// Dialog actions.
const (
	ActionAskName NextAction = iota
	ActionAskIssue
	ActionTransfer
	ActionEnd
)

func (a NextAction) String() string {
	switch a {
	case ActionAskName:
		return "ask-name"
	case ActionAskIssue:
		return "ask-issue"
	case ActionTransfer:
		return "transfer"
	case ActionEnd:
		return "end"
	default:
		return "unknown"
	}
}

// OperatorDigit is the keypress that escalates to a human at any step.
const OperatorDigit = "0"

// ErrNoSession is returned when a step arrives for a call the registry
// does not know, with no caller id to create one from.
var ErrNoSession = errors.New("flow: no session for call")

// Input is one dialog step as delivered by the carrier webhook.
type Input struct {
	CallID string
	From   string
	Speech string
	Digit  string
}

// stage is the dialog position between steps.
type stage int

const (
	stageAskName stage = iota
	stageAskIssue
	stageDone
)

// Machine advances calls through the dialog one step at a time. Safe for
// concurrent steps across calls; steps for the same call serialize on the
// session's lock.
type Machine struct {
	registry *session.Registry

	mu     sync.Mutex
	stages map[string]stage
}

// NewMachine creates a Machine backed by the shared session registry.
func NewMachine(registry *session.Registry) *Machine {
	return &Machine{
		registry: registry,
		stages:   make(map[string]stage),
	}
}

// Step applies one input to the call's dialog and returns the next action.
// The first step for a call creates its session. An operator keypress
// escalates immediately from any stage; empty input repeats the current
// question.
func (m *Machine) Step(in Input) (NextAction, error) {
	sess := m.registry.Get(in.CallID)
	if sess == nil {
		if in.From == "" {
			return ActionEnd, ErrNoSession
		}
		var err error
		sess, err = m.registry.Create(in.CallID, in.From)
		if err != nil {
			return ActionEnd, err
		}
	}

	if in.Digit == OperatorDigit {
		m.finish(in.CallID)
		return ActionTransfer, nil
	}

	cur := m.stage(in.CallID)
	speech := strings.TrimSpace(in.Speech)

	switch cur {
	case stageAskName:
		if speech == "" {
			return ActionAskName, nil
		}
		sess.AppendCaller(speech)
		m.setStage(in.CallID, stageAskIssue)
		return ActionAskIssue, nil

	case stageAskIssue:
		if speech == "" {
			return ActionAskIssue, nil
		}
		sess.AppendCaller(speech)
		m.finish(in.CallID)
		return ActionEnd, nil

	default:
		return ActionEnd, nil
	}
}

// Forget drops the dialog position for a call. The session itself is the
// finalizer's to remove.
func (m *Machine) Forget(callID string) {
	m.mu.Lock()
	delete(m.stages, callID)
	m.mu.Unlock()
}

func (m *Machine) stage(callID string) stage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stages[callID]
}

func (m *Machine) setStage(callID string, s stage) {
	m.mu.Lock()
	m.stages[callID] = s
	m.mu.Unlock()
}

func (m *Machine) finish(callID string) {
	m.setStage(callID, stageDone)
}
