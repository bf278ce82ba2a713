package math

import (
	m "math"

	"golang.org/x/exp/constraints"
)

const (
	/** @brief An approximate representation of PI. */
	K_PI float32 = 3.14159265358979323846
	/** @brief A multiplier used to convert degrees to radians. */
	K_DEG2RAD_MULTIPLIER float32 = K_PI / 180.0
	/** @brief A multiplier used to convert radians to degrees. */
	K_RAD2DEG_MULTIPLIER float32 = 180.0 / K_PI
	/** @brief Smallest positive number where 1.0 + FLOAT_EPSILON != 0 */
	K_FLOAT_EPSILON float32 = 1.192092896e-07
)

// Clamp returns the value `f` clamped to the range [low, high].
// It works for any numeric type (integers and floats).
func Clamp[T constraints.Ordered](f, low, high T) T {
	if f < low {
		return low
	}
	if f > high {
		return high
	}
	return f
}

// Max returns the larger of a and b.
func Max[T constraints.Ordered](a, b T) T {
	if a > b {
		return a
	}
	return b
}

func Min[T constraints.Ordered](a, b T) T {
	if a < b {
		return a
	}
	return b
}

func Min3(a, b, c float32) float32 {
	return Min(a, Min(b, c))
}

func Max3(a, b, c float32) float32 {
	return Max(a, Max(b, c))
}

func DegToRad(degrees float32) float32 {
	return degrees * K_DEG2RAD_MULTIPLIER
}

func RadToDeg(radians float32) float32 {
	return radians * K_RAD2DEG_MULTIPLIER
}

// Smoothstep is the GLSL smoothstep: 0 below edge0, 1 above edge1, Hermite in between.
func Smoothstep(edge0, edge1, x float32) float32 {
	t := Clamp((x-edge0)/(edge1-edge0), 0, 1)
	return t * t * (3 - 2*t)
}

func Lerp(a, b, t float32) float32 {
	return a + (b-a)*t
}

func Sqrt(x float32) float32 {
	return float32(m.Sqrt(float64(x)))
}

func Tan(x float32) float32 {
	return float32(m.Tan(float64(x)))
}

func Acos(x float32) float32 {
	return float32(m.Acos(float64(Clamp(x, -1, 1))))
}

func Exp(x float32) float32 {
	return float32(m.Exp(float64(x)))
}

func Log(x float32) float32 {
	return float32(m.Log(float64(x)))
}

func Abs(x float32) float32 {
	return float32(m.Abs(float64(x)))
}

func Sin(x float32) float32 {
	return float32(m.Sin(float64(x)))
}

func Cos(x float32) float32 {
	return float32(m.Cos(float64(x)))
}

func Asin(x float32) float32 {
	return float32(m.Asin(float64(Clamp(x, -1, 1))))
}

func Atan2(y, x float32) float32 {
	return float32(m.Atan2(float64(y), float64(x)))
}

func Floor(x float32) float32 {
	return float32(m.Floor(float64(x)))
}

func Pow(x, y float32) float32 {
	return float32(m.Pow(float64(x), float64(y)))
}
