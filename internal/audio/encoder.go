package audio

import (
	"encoding/binary"
	"math"

	"github.com/samber/lo"
)

const (
	pcm16Scale  = 32767
	pcm16Divide = 32768
)

// Encode converts one block of float samples in nominal [-1, 1] into
// little-endian signed 16-bit PCM. Out-of-range input saturates and NaN
// encodes as silence. An empty block produces nil.
func Encode(block []float32) []byte {
	if len(block) == 0 {
		return nil
	}
	out := make([]byte, len(block)*2)
	for i, x := range block {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(toPCM16(x)))
	}
	return out
}

// EncodeFloat32LE is Encode for a raw little-endian float32 buffer, the layout
// capture devices and `ffmpeg -f f32le` deliver. A trailing partial sample is
// ignored.
func EncodeFloat32LE(raw []byte) []byte {
	n := len(raw) / 4
	if n == 0 {
		return nil
	}
	out := make([]byte, n*2)
	for i := 0; i < n; i++ {
		x := math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
		binary.LittleEndian.PutUint16(out[i*2:], uint16(toPCM16(x)))
	}
	return out
}

// Decode converts little-endian signed 16-bit PCM into float samples by
// dividing by 32768. ok is false when the buffer has an odd byte count.
func Decode(pcm []byte) (samples []float32, ok bool) {
	if len(pcm)%2 != 0 {
		return nil, false
	}
	samples = make([]float32, len(pcm)/2)
	for i := range samples {
		s := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		samples[i] = float32(s) / pcm16Divide
	}
	return samples, true
}

func toPCM16(x float32) int16 {
	v := float64(x)
	if math.IsNaN(v) {
		return 0
	}
	v = lo.Clamp(v*pcm16Scale, math.MinInt16, math.MaxInt16)
	return int16(math.Round(v))
}
