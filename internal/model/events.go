package model

import (
	"encoding/base64"
	"encoding/json"
)

// Kind discriminates the closed set of semantic events the relay reacts to.
type Kind int

// Event kinds.
const (
	// KindUnrecognized covers every discriminator this version does not
	// handle. It must be skipped, never treated as fatal.
	KindUnrecognized Kind = iota
	KindAudioChunk
	KindTranscriptFragment
	KindToolInvocation
	KindError
)

// Role identifies the speaker of a transcript fragment.
type Role string

// Transcript fragment roles.
const (
	RoleCaller Role = "caller"
	RoleBot    Role = "bot"
)

// Event is one classified backend message.
type Event struct {
	Kind Kind

	// Audio is the decoded PCM payload of an audio chunk.
	Audio []byte

	// Transcript fragment fields. Final marks a committed utterance; a
	// final bot fragment carries no text of its own, it commits what the
	// preceding deltas accumulated.
	Role  Role
	Text  string
	Final bool

	// Tool invocation fields.
	Tool string
	Args json.RawMessage

	// Code describes an error event.
	Code string
}

// serverEvent is the wire shape shared by the backend's server messages.
// Only the fields the classifier needs are declared.
type serverEvent struct {
	Type       string          `json:"type"`
	Delta      string          `json:"delta,omitempty"`
	Transcript string          `json:"transcript,omitempty"`
	Name       string          `json:"name,omitempty"`
	Arguments  json.RawMessage `json:"arguments,omitempty"`
	Error      *serverError    `json:"error,omitempty"`
}

type serverError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Backend discriminator values.
const (
	typeAudioDelta             = "response.audio.delta"
	typeTextDelta              = "response.text.delta"
	typeTextDone               = "response.text.done"
	typeInputTranscriptionDone = "conversation.item.input_audio_transcription.completed"
	typeFunctionArgsDone       = "response.function_call_arguments.done"
	typeError                  = "error"
)

// Classify maps one raw backend message to its semantic event. Unknown
// discriminators and undecodable payloads classify as Unrecognized so a
// single bad message never aborts the relay.
func Classify(raw []byte) Event {
	var msg serverEvent
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Event{Kind: KindUnrecognized}
	}

	switch msg.Type {
	case typeAudioDelta:
		audio, err := base64.StdEncoding.DecodeString(msg.Delta)
		if err != nil {
			return Event{Kind: KindUnrecognized}
		}
		return Event{Kind: KindAudioChunk, Audio: audio}

	case typeTextDelta:
		return Event{Kind: KindTranscriptFragment, Role: RoleBot, Text: msg.Delta}

	case typeTextDone:
		return Event{Kind: KindTranscriptFragment, Role: RoleBot, Final: true}

	case typeInputTranscriptionDone:
		return Event{Kind: KindTranscriptFragment, Role: RoleCaller, Text: msg.Transcript, Final: true}

	case typeFunctionArgsDone:
		return Event{Kind: KindToolInvocation, Tool: msg.Name, Args: msg.Arguments}

	case typeError:
		code := "unknown"
		if msg.Error != nil && msg.Error.Code != "" {
			code = msg.Error.Code
		}
		return Event{Kind: KindError, Code: code}

	default:
		return Event{Kind: KindUnrecognized}
	}
}
