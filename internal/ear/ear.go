// Package ear computes eye aspect ratios from face landmarks and supplies
// timestamped EAR samples to the decoder.
package ear

import (
	"math"
	"time"
)

// Point is a normalized landmark coordinate as produced by face-mesh trackers.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z,omitempty"`
}

// Sample is a single EAR measurement.
type Sample struct {
	EAR  float64
	Time time.Time
}

// Face-mesh landmark indices, ordered outer corner, upper lid x2, inner
// corner, lower lid x2.
var (
	LeftEye  = [6]int{33, 160, 158, 133, 153, 144}
	RightEye = [6]int{362, 385, 387, 263, 373, 380}
)

// EyeRatio returns (|p1-p5| + |p2-p4|) / (2|p0-p3|) for six eye landmarks.
// A degenerate eye (zero width) yields NaN, which the decoder treats as open.
func EyeRatio(p [6]Point) float64 {
	h := distance(p[0], p[3])
	if h == 0 {
		return math.NaN()
	}
	vA := distance(p[1], p[5])
	vB := distance(p[2], p[4])
	return (vA + vB) / (2 * h)
}

// Ratio extracts the eye at idx from a full face mesh and returns its EAR.
// Missing landmarks yield NaN.
func Ratio(face []Point, idx [6]int) float64 {
	var eye [6]Point
	for i, n := range idx {
		if n < 0 || n >= len(face) {
			return math.NaN()
		}
		eye[i] = face[n]
	}
	return EyeRatio(eye)
}

// FaceRatio averages the left and right eye ratios of a face mesh.
func FaceRatio(face []Point) float64 {
	return (Ratio(face, LeftEye) + Ratio(face, RightEye)) / 2
}

// distance is the 2D distance; depth is ignored.
func distance(a, b Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}
