// Package audio holds the small amount of PCM handling the arena needs:
// a volume level per frame for the face renderer, and WAV recording of each
// agent's speech.
package audio

import (
	"encoding/binary"
	"math"
)

// DefaultSampleRate is the output rate of the live models (24kHz mono PCM16).
const DefaultSampleRate = 24000

// Frame is one chunk of little-endian signed 16-bit mono PCM.
type Frame struct {
	Data       []byte
	SampleRate int
}

// volumeGain lifts speech RMS into a useful 0..1 range; typical speech sits
// around 0.05-0.2 full scale.
const volumeGain = 4.0

// Volume returns the frame's loudness in [0, 1], computed as the RMS of the
// samples scaled by volumeGain and clamped.
func Volume(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		s := float64(int16(binary.LittleEndian.Uint16(pcm[2*i:]))) / 32768.0
		sum += s * s
	}
	rms := math.Sqrt(sum / float64(n))
	return Clamp(rms*volumeGain, 0, 1)
}

// Clamp constrains x to [lo, hi].
func Clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
