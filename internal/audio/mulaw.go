package audio

// G.711 mu-law companding. Decode and encode operate on single bytes and
// 16-bit linear samples; frame-level helpers live in transcoder.go.

const (
	mulawBias = 0x84
	mulawClip = 32635
)

// mulawToLinear expands one mu-law byte to a 16-bit linear sample.
func mulawToLinear(u byte) int16 {
	u = ^u
	sign := u & 0x80
	exp := (u >> 4) & 0x07
	mant := u & 0x0F
	value := (int(mant) << 3) + mulawBias
	value <<= uint(exp)
	value -= mulawBias
	if sign != 0 {
		return int16(-value)
	}
	return int16(value)
}

// linearToMulaw compresses a 16-bit linear sample to one mu-law byte.
func linearToMulaw(sample int16) byte {
	sign := byte(0)
	s := int(sample)
	if s < 0 {
		s = -s
		sign = 0x80
	}
	if s > mulawClip {
		s = mulawClip
	}
	s += mulawBias

	exp := byte(7)
	for mask := 0x4000; exp > 0 && s&mask == 0; mask >>= 1 {
		exp--
	}
	mant := byte((s >> (uint(exp) + 3)) & 0x0F)
	return ^(sign | (exp << 4) | mant)
}
