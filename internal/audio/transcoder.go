// Package audio converts between the carrier's narrowband mu-law encoding
// and the model's wideband 16-bit PCM encoding.
//
// A Transcoder is created per call: the resampling state of each direction
// carries across consecutive frames so there are no discontinuities at
// frame boundaries. Malformed input never fails a call; it yields an empty
// frame that the relay skips.
package audio

import "encoding/binary"

// Encoding tags the format of an AudioFrame payload.
type Encoding string

const (
	// EncodingCarrier is 8-bit mu-law at the carrier rate.
	EncodingCarrier Encoding = "carrier-narrowband"
	// EncodingModel is 16-bit little-endian PCM at the model rate.
	EncodingModel Encoding = "model-wideband"
)

// Frame is one chunk of audio moving through the relay.
type Frame struct {
	Encoding   Encoding
	SampleRate int
	Payload    []byte
}

// Empty reports whether the frame carries no audio. Empty frames are
// produced for undecodable input and must be skipped, not forwarded.
func (f Frame) Empty() bool {
	return len(f.Payload) == 0
}

// Transcoder converts frames between the carrier and model encodings for
// one call. It is not safe for concurrent use; each pump direction touches
// only its own resampler, so the relay's two pumps may share one Transcoder.
type Transcoder struct {
	carrierRate int
	modelRate   int
	up          resampler // carrier -> model
	down        resampler // model -> carrier
}

// NewTranscoder creates a Transcoder between the given sample rates.
func NewTranscoder(carrierRate, modelRate int) *Transcoder {
	return &Transcoder{
		carrierRate: carrierRate,
		modelRate:   modelRate,
		up:          resampler{from: carrierRate, to: modelRate},
		down:        resampler{from: modelRate, to: carrierRate},
	}
}

// ToModelFormat decodes a mu-law carrier frame and resamples it up to the
// model rate. Returns an empty model frame for empty input.
func (t *Transcoder) ToModelFormat(payload []byte) Frame {
	out := Frame{Encoding: EncodingModel, SampleRate: t.modelRate}
	if len(payload) == 0 {
		return out
	}
	samples := make([]int16, len(payload))
	for i, b := range payload {
		samples[i] = mulawToLinear(b)
	}
	out.Payload = pcmBytes(t.up.resample(samples))
	return out
}

// ToCarrierFormat resamples a 16-bit PCM model frame down to the carrier
// rate and compresses it to mu-law. Odd-length payloads are not valid PCM16
// and yield an empty frame.
func (t *Transcoder) ToCarrierFormat(payload []byte) Frame {
	out := Frame{Encoding: EncodingCarrier, SampleRate: t.carrierRate}
	if len(payload) == 0 || len(payload)%2 != 0 {
		return out
	}
	samples := make([]int16, len(payload)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(payload[2*i:]))
	}
	down := t.down.resample(samples)
	encoded := make([]byte, len(down))
	for i, s := range down {
		encoded[i] = linearToMulaw(s)
	}
	out.Payload = encoded
	return out
}

// pcmBytes packs samples as 16-bit little-endian PCM.
func pcmBytes(samples []int16) []byte {
	buf := make([]byte, 2*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[2*i:], uint16(s))
	}
	return buf
}

// resampler performs linear-interpolation rate conversion over a continuous
// sample stream. The previous frame's final sample and the fractional read
// position survive between calls, so consecutive frames of one call join
// without a seam. The read position is tracked as an integer numerator in
// 1/to units of an input sample, which keeps frame lengths exact.
type resampler struct {
	from, to int
	last     int16
	primed   bool
	num      int
}

func (r *resampler) resample(in []int16) []int16 {
	if len(in) == 0 {
		return nil
	}
	if r.from == r.to {
		return append([]int16(nil), in...)
	}

	// Extend the input with one sample of history so interpolation can
	// reach back across the frame boundary. The first frame reuses its own
	// leading sample.
	history := in[0]
	if r.primed {
		history = r.last
	}
	ext := make([]int16, 0, len(in)+1)
	ext = append(ext, history)
	ext = append(ext, in...)

	span := (len(ext) - 1) * r.to
	out := make([]int16, 0, (span-r.num+r.from-1)/r.from)

	n := r.num
	for ; n < span; n += r.from {
		i0 := n / r.to
		f := float64(n%r.to) / float64(r.to)
		v := float64(ext[i0])*(1-f) + float64(ext[i0+1])*f
		out = append(out, int16(v))
	}

	r.num = n - span
	r.last = in[len(in)-1]
	r.primed = true
	return out
}
