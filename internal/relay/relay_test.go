package relay

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/agentplexus/frontdesk/internal/audio"
	"github.com/agentplexus/frontdesk/internal/session"
)

// fakeCarrier feeds a scripted envelope sequence to the carrier pump and
// records everything the model pump writes back.
type fakeCarrier struct {
	mu     sync.Mutex
	in     chan *Envelope
	writes [][]byte
	sids   []string
	closed bool
}

func newFakeCarrier() *fakeCarrier {
	return &fakeCarrier{in: make(chan *Envelope, 64)}
}

func (f *fakeCarrier) ReadEnvelope() (*Envelope, error) {
	env, ok := <-f.in
	if !ok {
		return nil, io.EOF
	}
	return env, nil
}

func (f *fakeCarrier) WriteMedia(streamSID string, audio []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errors.New("carrier closed")
	}
	f.sids = append(f.sids, streamSID)
	cp := make([]byte, len(audio))
	copy(cp, audio)
	f.writes = append(f.writes, cp)
	return nil
}

func (f *fakeCarrier) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.in)
	}
	return nil
}

func (f *fakeCarrier) written() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.writes))
	copy(out, f.writes)
	return out
}

// fakeBackend feeds scripted raw backend messages to the model pump and
// records caller audio appended by the carrier pump.
type fakeBackend struct {
	mu     sync.Mutex
	in     chan []byte
	audio  [][]byte
	closed bool
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{in: make(chan []byte, 64)}
}

func (f *fakeBackend) ReadMessage() ([]byte, error) {
	msg, ok := <-f.in
	if !ok {
		return nil, io.EOF
	}
	return msg, nil
}

func (f *fakeBackend) AppendAudio(pcm []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errors.New("backend closed")
	}
	cp := make([]byte, len(pcm))
	copy(cp, pcm)
	f.audio = append(f.audio, cp)
	return nil
}

func (f *fakeBackend) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.in)
	}
	return nil
}

func (f *fakeBackend) appended() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.audio))
	copy(out, f.audio)
	return out
}

func startEnvelope(streamSID string) *Envelope {
	return &Envelope{
		Event: EventStart,
		Start: &StartMessage{StreamSID: streamSID, CallSID: "CA123"},
	}
}

func mediaEnvelope(raw []byte) *Envelope {
	return &Envelope{
		Event: EventMedia,
		Media: &MediaPayload{Payload: base64.StdEncoding.EncodeToString(raw)},
	}
}

func backendMessage(t *testing.T, v map[string]any) []byte {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal backend message: %v", err)
	}
	return raw
}

func newTestRelay(t *testing.T, transfer TransferFunc, opts ...Option) (*Relay, *session.Session, *fakeCarrier, *fakeBackend) {
	t.Helper()
	reg := session.NewRegistry()
	sess, err := reg.Create("CA123", "+15550001111")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	carrier := newFakeCarrier()
	backend := newFakeBackend()
	tc := audio.NewTranscoder(8000, 24000)
	opts = append([]Option{WithStopGrace(10 * time.Millisecond)}, opts...)
	return New(sess, carrier, backend, tc, transfer, nil, opts...), sess, carrier, backend
}

func TestRelayForwardsCallerAudio(t *testing.T) {
	r, _, carrier, backend := newTestRelay(t, nil)

	carrier.in <- startEnvelope("MZ1")
	for i := 0; i < 3; i++ {
		carrier.in <- mediaEnvelope(make([]byte, 160))
	}
	carrier.in <- &Envelope{Event: EventStop, Stop: &StopMessage{CallSID: "CA123"}}

	r.Run(context.Background())

	got := backend.appended()
	if len(got) != 3 {
		t.Fatalf("appended frames = %d, want 3", len(got))
	}
	// 160 narrowband samples upsample to 480 wideband samples (960 bytes).
	for i, pcm := range got {
		if len(pcm) != 960 {
			t.Errorf("frame %d: len = %d, want 960", i, len(pcm))
		}
	}
}

func TestRelayForwardsModelAudioInOrder(t *testing.T) {
	r, _, carrier, backend := newTestRelay(t, nil)

	carrier.in <- startEnvelope("MZ9")

	// Distinct PCM16 payloads so we can check ordering after transcode.
	for i := 0; i < 3; i++ {
		pcm := make([]byte, 480)
		delta := base64.StdEncoding.EncodeToString(pcm)
		backend.in <- backendMessage(t, map[string]any{
			"type":  "response.audio.delta",
			"delta": delta,
		})
	}

	go func() {
		// Give the model pump time to drain before ending the call.
		time.Sleep(50 * time.Millisecond)
		carrier.in <- &Envelope{Event: EventStop}
	}()

	r.Run(context.Background())

	writes := carrier.written()
	if len(writes) != 3 {
		t.Fatalf("carrier writes = %d, want 3", len(writes))
	}
	for i, w := range writes {
		// 240 wideband samples downsample to 80 mu-law bytes.
		if len(w) != 80 {
			t.Errorf("write %d: len = %d, want 80", i, len(w))
		}
	}
	for i, sid := range carrier.sids {
		if sid != "MZ9" {
			t.Errorf("write %d: stream sid = %q, want MZ9", i, sid)
		}
	}
}

func TestRelayDropsModelAudioBeforeStart(t *testing.T) {
	r, _, carrier, backend := newTestRelay(t, nil)

	pcm := make([]byte, 480)
	backend.in <- backendMessage(t, map[string]any{
		"type":  "response.audio.delta",
		"delta": base64.StdEncoding.EncodeToString(pcm),
	})

	go func() {
		time.Sleep(50 * time.Millisecond)
		carrier.in <- &Envelope{Event: EventStop}
	}()

	r.Run(context.Background())

	if n := len(carrier.written()); n != 0 {
		t.Fatalf("carrier writes = %d, want 0 before stream start", n)
	}
}

func TestRelayAccumulatesTranscript(t *testing.T) {
	r, sess, carrier, backend := newTestRelay(t, nil)

	carrier.in <- startEnvelope("MZ2")
	backend.in <- backendMessage(t, map[string]any{
		"type": "response.text.delta", "delta": "Hello, ",
	})
	backend.in <- backendMessage(t, map[string]any{
		"type": "response.text.delta", "delta": "how can I help?",
	})
	backend.in <- backendMessage(t, map[string]any{"type": "response.text.done"})
	backend.in <- backendMessage(t, map[string]any{
		"type":       "conversation.item.input_audio_transcription.completed",
		"transcript": "My printer is on fire.",
	})

	go func() {
		time.Sleep(50 * time.Millisecond)
		carrier.in <- &Envelope{Event: EventStop}
	}()

	r.Run(context.Background())

	transcript := sess.Transcript()
	if len(transcript) != 2 {
		t.Fatalf("transcript entries = %d, want 2: %+v", len(transcript), transcript)
	}
	if transcript[0].Role != session.RoleBot || transcript[0].Message != "Hello, how can I help?" {
		t.Errorf("entry 0 = %+v", transcript[0])
	}
	if transcript[1].Role != session.RoleCaller || transcript[1].Message != "My printer is on fire." {
		t.Errorf("entry 1 = %+v", transcript[1])
	}
}

func TestRelayTransferToolInvocation(t *testing.T) {
	var mu sync.Mutex
	var transferred []string
	transfer := func(ctx context.Context, callSID string) error {
		mu.Lock()
		defer mu.Unlock()
		transferred = append(transferred, callSID)
		return nil
	}

	r, _, carrier, backend := newTestRelay(t, transfer)

	carrier.in <- startEnvelope("MZ3")
	backend.in <- backendMessage(t, map[string]any{
		"type": "response.function_call_arguments.done",
		"name": "transfer_to_human",
	})
	// The session continues after a transfer request.
	backend.in <- backendMessage(t, map[string]any{
		"type": "response.text.delta", "delta": "Transferring you now.",
	})
	backend.in <- backendMessage(t, map[string]any{"type": "response.text.done"})

	go func() {
		time.Sleep(50 * time.Millisecond)
		carrier.in <- &Envelope{Event: EventStop}
	}()

	r.Run(context.Background())

	mu.Lock()
	defer mu.Unlock()
	if len(transferred) != 1 || transferred[0] != "CA123" {
		t.Fatalf("transferred = %v, want [CA123]", transferred)
	}
}

func TestRelayBackendErrorEndsSession(t *testing.T) {
	r, _, carrier, backend := newTestRelay(t, nil)

	carrier.in <- startEnvelope("MZ4")
	backend.in <- backendMessage(t, map[string]any{
		"type":  "error",
		"error": map[string]any{"code": "session_expired", "message": "gone"},
	})

	done := make(chan struct{})
	go func() {
		r.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not shut down after backend error")
	}

	carrier.mu.Lock()
	closed := carrier.closed
	carrier.mu.Unlock()
	if !closed {
		t.Error("carrier socket left open after backend error")
	}
}

func TestRelayIgnoresUnrecognizedFrames(t *testing.T) {
	r, sess, carrier, backend := newTestRelay(t, nil)

	carrier.in <- startEnvelope("MZ5")
	carrier.in <- nil // unparseable carrier frame
	backend.in <- []byte("not json at all")
	backend.in <- backendMessage(t, map[string]any{"type": "session.updated"})
	backend.in <- backendMessage(t, map[string]any{
		"type":       "conversation.item.input_audio_transcription.completed",
		"transcript": "still here",
	})

	go func() {
		time.Sleep(50 * time.Millisecond)
		carrier.in <- &Envelope{Event: EventStop}
	}()

	r.Run(context.Background())

	transcript := sess.Transcript()
	if len(transcript) != 1 || transcript[0].Message != "still here" {
		t.Fatalf("transcript = %+v, want single caller entry", transcript)
	}
}

func TestRelayShutdownIdempotent(t *testing.T) {
	r, _, carrier, backend := newTestRelay(t, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Shutdown()
		}()
	}
	wg.Wait()

	carrier.mu.Lock()
	cc := carrier.closed
	carrier.mu.Unlock()
	backend.mu.Lock()
	bc := backend.closed
	backend.mu.Unlock()
	if !cc || !bc {
		t.Fatalf("closed: carrier=%v backend=%v, want both", cc, bc)
	}
}

func TestRelayContextCancelShutsDown(t *testing.T) {
	r, _, carrier, _ := newTestRelay(t, nil)
	carrier.in <- startEnvelope("MZ6")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not stop on context cancel")
	}
}
