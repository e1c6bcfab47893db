package audio

import (
	"encoding/binary"
	"math"
	"testing"
)

func TestMulawRoundTrip(t *testing.T) {
	// Companding is lossy; round-tripped samples must stay within the
	// quantization error of their segment (~3% of full scale worst case).
	for _, s := range []int16{0, 1, -1, 100, -100, 1000, -1000, 8000, -8000, 30000, -30000, 32635} {
		got := mulawToLinear(linearToMulaw(s))
		diff := math.Abs(float64(got) - float64(s))
		if diff > 1000 {
			t.Errorf("round trip of %d gave %d (diff %.0f)", s, got, diff)
		}
	}
}

func TestMulawSilence(t *testing.T) {
	if got := mulawToLinear(0xFF); got != 0 {
		t.Errorf("mulawToLinear(0xFF) = %d, want 0", got)
	}
	if got := linearToMulaw(0); got != 0xFF {
		t.Errorf("linearToMulaw(0) = %#x, want 0xff", got)
	}
}

func TestToModelFormat_FrameDuration(t *testing.T) {
	tr := NewTranscoder(8000, 24000)

	// 240 mu-law samples (30ms at 8kHz) must become 720 PCM16 samples
	// (30ms at 24kHz) on every frame, including the first.
	frame := make([]byte, 240)
	for i := range frame {
		frame[i] = linearToMulaw(int16(i * 50))
	}
	for n := 0; n < 4; n++ {
		out := tr.ToModelFormat(frame)
		if out.Encoding != EncodingModel || out.SampleRate != 24000 {
			t.Fatalf("frame %d: unexpected format %+v", n, out)
		}
		if len(out.Payload) != 720*2 {
			t.Fatalf("frame %d: payload %d bytes, want %d", n, len(out.Payload), 720*2)
		}
	}
}

func TestToCarrierFormat_FrameDuration(t *testing.T) {
	tr := NewTranscoder(8000, 24000)
	frame := make([]byte, 720*2)
	for n := 0; n < 4; n++ {
		out := tr.ToCarrierFormat(frame)
		if out.Encoding != EncodingCarrier || out.SampleRate != 8000 {
			t.Fatalf("frame %d: unexpected format %+v", n, out)
		}
		if len(out.Payload) != 240 {
			t.Fatalf("frame %d: payload %d bytes, want 240", n, len(out.Payload))
		}
	}
}

func TestTranscoder_RoundTripDuration(t *testing.T) {
	tr := NewTranscoder(8000, 24000)
	in := make([]byte, 240)
	for i := range in {
		in[i] = linearToMulaw(int16(2000 * math.Sin(float64(i)/10)))
	}
	model := tr.ToModelFormat(in)
	back := tr.ToCarrierFormat(model.Payload)
	if len(back.Payload) != len(in) {
		t.Fatalf("round trip length = %d, want %d", len(back.Payload), len(in))
	}
}

func TestTranscoder_ContinuityAcrossFrames(t *testing.T) {
	// Feeding one long ramp as two frames must produce the same output as
	// feeding it whole: the resampler state persists across frames.
	ramp := make([]int16, 480)
	for i := range ramp {
		ramp[i] = int16(i * 20)
	}

	whole := resampler{from: 8000, to: 24000}
	wantOut := whole.resample(ramp)

	split := resampler{from: 8000, to: 24000}
	got := split.resample(ramp[:240])
	got = append(got, split.resample(ramp[240:])...)

	if len(got) != len(wantOut) {
		t.Fatalf("split output %d samples, whole output %d", len(got), len(wantOut))
	}
	for i := range got {
		if got[i] != wantOut[i] {
			t.Fatalf("sample %d: split %d, whole %d", i, got[i], wantOut[i])
		}
	}
}

func TestTranscoder_MalformedInput(t *testing.T) {
	tr := NewTranscoder(8000, 24000)
	if out := tr.ToModelFormat(nil); !out.Empty() {
		t.Errorf("empty carrier input gave %d bytes", len(out.Payload))
	}
	if out := tr.ToCarrierFormat([]byte{0x01}); !out.Empty() {
		t.Errorf("odd-length PCM16 input gave %d bytes", len(out.Payload))
	}
	if out := tr.ToCarrierFormat(nil); !out.Empty() {
		t.Errorf("empty model input gave %d bytes", len(out.Payload))
	}
}

func TestToModelFormat_PreservesSignalShape(t *testing.T) {
	tr := NewTranscoder(8000, 24000)
	// A constant mid-level signal must stay roughly constant after
	// decode + upsample.
	level := int16(8000)
	in := make([]byte, 160)
	for i := range in {
		in[i] = linearToMulaw(level)
	}
	out := tr.ToModelFormat(in)
	for i := 0; i < len(out.Payload); i += 2 {
		s := int16(binary.LittleEndian.Uint16(out.Payload[i:]))
		if math.Abs(float64(s)-float64(level)) > 1000 {
			t.Fatalf("sample %d = %d, want about %d", i/2, s, level)
		}
	}
}
