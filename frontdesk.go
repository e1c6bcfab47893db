// Package frontdesk implements an AI phone receptionist built on Twilio
// Media Streams and a realtime voice model.
//
// The service answers inbound PSTN calls, relays audio between Twilio and
// the model backend in both directions, accumulates a transcript, and turns
// every finished call into a structured issue record that a downstream
// consumer retrieves over a polling endpoint:
//   - internal/admission: caller validation, blocklist, rate limiting
//   - internal/relay: the per-call duplex media relay
//   - internal/audio: mu-law <-> PCM16 transcoding with resampling
//   - internal/finalize + internal/issue: post-call summarization and the
//     pollable issue queue
//
// # Environment Variables
//
//	TWILIO_ACCOUNT_SID - Your Twilio Account SID
//	TWILIO_AUTH_TOKEN  - Your Twilio Auth Token
//	OPENAI_API_KEY     - API key for the realtime and summary models
//	POLL_API_KEY       - Shared key for the administrative poll endpoint
package frontdesk

// Version is the service version.
const Version = "0.1.0"

// Audio format constants for the two sides of the relay.
const (
	// CarrierEncoding is the Twilio Media Streams encoding (8-bit mu-law).
	CarrierEncoding = "audio/x-mulaw"

	// ModelEncoding is the realtime model encoding (16-bit linear PCM).
	ModelEncoding = "audio/x-l16"

	// CarrierSampleRate is the Twilio narrowband sample rate (8kHz).
	CarrierSampleRate = 8000

	// ModelSampleRate is the model wideband sample rate (24kHz).
	ModelSampleRate = 24000
)

// Call status constants reported by the carrier's status callback.
const (
	CallStatusQueued     = "queued"
	CallStatusRinging    = "ringing"
	CallStatusInProgress = "in-progress"
	CallStatusCompleted  = "completed"
	CallStatusBusy       = "busy"
	CallStatusFailed     = "failed"
	CallStatusNoAnswer   = "no-answer"
	CallStatusCanceled   = "canceled"
)
