// Package relay pumps audio and control frames between a carrier media
// stream and the realtime model backend for one call.
//
// Each call gets two concurrent pump loops. The carrier pump moves caller
// audio toward the model; the model pump moves model audio and events back.
// Within a pump, frame order is preserved end to end; the pumps themselves
// are independent. Shutdown converges from any side (socket close, stop
// event, backend error) and is safe to trigger more than once.
package relay

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/agentplexus/frontdesk/internal/audio"
	"github.com/agentplexus/frontdesk/internal/model"
	"github.com/agentplexus/frontdesk/internal/session"
)

// CarrierSocket is the carrier side of the relay.
type CarrierSocket interface {
	ReadEnvelope() (*Envelope, error)
	WriteMedia(streamSID string, audio []byte) error
	Close() error
}

// ModelSocket is the backend side of the relay.
type ModelSocket interface {
	ReadMessage() ([]byte, error)
	AppendAudio(pcm []byte) error
	Close() error
}

// TransferFunc redirects the active call to a human operator.
type TransferFunc func(ctx context.Context, callSID string) error

// Verify the concrete sockets satisfy the pump interfaces.
var (
	_ CarrierSocket = (*CarrierConn)(nil)
	_ ModelSocket   = (*model.Conn)(nil)
)

// defaultStopGrace is how long the model pump may keep flushing transcript
// events after the carrier announced a clean stop.
const defaultStopGrace = 2 * time.Second

// Relay runs the duplex pumps for one streaming session.
type Relay struct {
	sess       *session.Session
	carrier    CarrierSocket
	backend    ModelSocket
	transcoder *audio.Transcoder
	transfer   TransferFunc
	log        *zap.Logger
	stopGrace  time.Duration

	shutdownOnce sync.Once
}

// Option configures a Relay.
type Option func(*Relay)

// WithStopGrace overrides the post-stop flush window. Used by tests.
func WithStopGrace(d time.Duration) Option {
	return func(r *Relay) {
		r.stopGrace = d
	}
}

// New creates a Relay for one session. The transcoder must be dedicated to
// this call: its filter state carries across the call's frames.
func New(sess *session.Session, carrier CarrierSocket, backend ModelSocket, transcoder *audio.Transcoder, transfer TransferFunc, log *zap.Logger, opts ...Option) *Relay {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Relay{
		sess:       sess,
		carrier:    carrier,
		backend:    backend,
		transcoder: transcoder,
		transfer:   transfer,
		log:        log.With(zap.String("call_sid", sess.CallID)),
		stopGrace:  defaultStopGrace,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run pumps both directions until the call ends, then returns with both
// sockets closed. The caller finalizes the session afterwards.
func (r *Relay) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		cleanStop := r.carrierPump()
		if cleanStop && r.stopGrace > 0 {
			// Let the model pump flush trailing transcript events before
			// tearing the backend down.
			time.AfterFunc(r.stopGrace, r.Shutdown)
			return
		}
		r.Shutdown()
	}()

	go func() {
		defer wg.Done()
		r.modelPump(ctx)
		r.Shutdown()
	}()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		r.Shutdown()
		<-done
	case <-done:
	}
}

// Shutdown stops both pumps by closing both sockets. Both pumps may
// observe the termination condition concurrently, so it is idempotent.
func (r *Relay) Shutdown() {
	r.shutdownOnce.Do(func() {
		_ = r.carrier.Close()
		_ = r.backend.Close()
	})
}

// carrierPump reads carrier envelopes and forwards caller audio to the
// backend. It returns true when the stream ended with a clean stop
// envelope rather than a socket failure.
func (r *Relay) carrierPump() bool {
	for {
		env, err := r.carrier.ReadEnvelope()
		if err != nil {
			if !IsExpectedClose(err) {
				r.log.Warn("carrier socket closed", zap.Error(err))
			}
			return false
		}
		if env == nil {
			// Unparseable frame; drop it and keep pumping.
			continue
		}

		switch env.Event {
		case EventStart:
			if env.Start != nil {
				r.sess.SetStreamID(env.Start.StreamSID)
				r.log.Info("stream started", zap.String("stream_sid", env.Start.StreamSID))
			}

		case EventMedia:
			raw := env.Media.Audio()
			if raw == nil {
				continue
			}
			frame := r.transcoder.ToModelFormat(raw)
			if frame.Empty() {
				continue
			}
			if err := r.backend.AppendAudio(frame.Payload); err != nil {
				r.log.Warn("backend write failed", zap.Error(err))
				return false
			}

		case EventStop:
			r.log.Info("stream stopped")
			return true
		}
	}
}

// modelPump reads backend messages, classifies them, and applies their
// side effects. Audio goes back to the carrier frame by frame; transcript
// fragments accumulate on the session; a transfer tool call redirects the
// call.
func (r *Relay) modelPump(ctx context.Context) {
	for {
		raw, err := r.backend.ReadMessage()
		if err != nil {
			return
		}

		ev := model.Classify(raw)
		switch ev.Kind {
		case model.KindAudioChunk:
			frame := r.transcoder.ToCarrierFormat(ev.Audio)
			if frame.Empty() {
				continue
			}
			streamID := r.sess.StreamID()
			if streamID == "" {
				// Audio produced before the carrier stream opened has
				// nowhere to go.
				continue
			}
			if err := r.carrier.WriteMedia(streamID, frame.Payload); err != nil {
				r.log.Warn("carrier write failed", zap.Error(err))
				return
			}

		case model.KindTranscriptFragment:
			r.applyFragment(ev)

		case model.KindToolInvocation:
			r.invokeTool(ctx, ev)

		case model.KindError:
			r.log.Warn("backend reported error", zap.String("code", ev.Code))
			return
		}
	}
}

// applyFragment updates the session transcript for one fragment event.
func (r *Relay) applyFragment(ev model.Event) {
	switch {
	case ev.Role == model.RoleCaller && ev.Final:
		r.sess.AppendCaller(ev.Text)
	case ev.Role == model.RoleBot && ev.Final:
		r.sess.CommitBot()
	case ev.Role == model.RoleBot:
		r.sess.AppendBotDelta(ev.Text)
	}
}

// invokeTool runs a tool invocation's side effect. Tool failures never end
// the session.
func (r *Relay) invokeTool(ctx context.Context, ev model.Event) {
	if ev.Tool != model.TransferToolName || r.transfer == nil {
		r.log.Debug("ignoring tool invocation", zap.String("tool", ev.Tool))
		return
	}
	callCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := r.transfer(callCtx, r.sess.CallID); err != nil {
		r.log.Error("call transfer failed", zap.Error(err))
		return
	}
	r.log.Info("call transferred to operator")
}
