// Package face computes the animation parameters of a debater's face. It is
// a pure function of each side's own volume and color; nothing here reads
// shared state, so two faces can be driven side by side.
package face

import (
	"math"

	"github.com/chandler767/live-debate-arena/pkg/audio"
)

// BlinkSpeed is the phase increment per frame used by the arena.
const BlinkSpeed = 0.0125

// TalkingThreshold is the volume above which a debater counts as talking.
const TalkingThreshold = 0.01

// Params are the inputs of the face renderer.
type Params struct {
	EyeScale   float64 `json:"eye_scale"`
	MouthScale float64 `json:"mouth_scale"`
	Color      string  `json:"color"`
	Talking    bool    `json:"talking"`
}

// Compute returns the face parameters for one side at the given animation
// frame.
func Compute(frame int, volume float64, color string) Params {
	return Params{
		EyeScale:   EyeScale(frame, BlinkSpeed),
		MouthScale: MouthScale(volume),
		Color:      color,
		Talking:    volume > TalkingThreshold,
	}
}

// MouthScale maps a 0..1 volume to how open the mouth is.
func MouthScale(volume float64) float64 {
	return math.Min(audio.Clamp(volume, 0, 1)*2, 1)
}

// EyeScale returns how open the eyes are at frame; the eyes close briefly
// once per period of the sine.
func EyeScale(frame int, speed float64) float64 {
	s := easeOutQuint((math.Sin(float64(frame)*speed) + 1) * 2)
	s = smoothstep(0.1, 0.25, s)
	return math.Min(1, s)
}

func easeOutQuint(x float64) float64 {
	return 1 - math.Pow(1-x, 5)
}

// smoothstep is the GLSL function of the same name.
func smoothstep(edge0, edge1, x float64) float64 {
	x = audio.Clamp((x-edge0)/(edge1-edge0), 0, 1)
	return x * x * (3 - 2*x)
}
