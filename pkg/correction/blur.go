package correction

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Blur sizes used for both correction maps
const (
	DefaultBlurSigma    = 20.0
	DefaultBlurAccuracy = 0.01
)

// GaussianKernel returns the normalized one-sided kernel for sigma. Its
// half-width is the distance at which the Gaussian drops below accuracy
// relative to its peak.
func GaussianKernel(sigma, accuracy float64) []float64 {
	if sigma <= 0 {
		return []float64{1}
	}
	if accuracy <= 0 || accuracy >= 1 {
		accuracy = DefaultBlurAccuracy
	}
	half := int(math.Ceil(sigma * math.Sqrt(-2*math.Log(accuracy))))
	k := make([]float64, half+1)
	for i := range k {
		x := float64(i)
		k[i] = math.Exp(-x * x / (2 * sigma * sigma))
	}
	sum := 2*floats.Sum(k) - k[0]
	floats.Scale(1/sum, k)
	return k
}

// Blur smooths m in place with a separable Gaussian of sigma along both the
// radius and the depth axis. Values beyond the borders are extended by point
// reflection through the border value, which leaves linear trends unchanged.
// This differs from ImageJ's GaussianBlur, which repeats the edge pixels, so
// rows and columns within a few sigma of the borders do not match maps blurred
// there.
func (m *Map) Blur(sigma, accuracy float64) {
	k := GaussianKernel(sigma, accuracy)
	if len(k) == 1 {
		return
	}

	src := make([]float64, max(m.width, m.height))
	for z := 0; z < m.height; z++ {
		row := m.Row(z)
		copy(src, row)
		convolve(row, src[:m.width], k)
	}

	col := make([]float64, m.height)
	for r := 0; r < m.width; r++ {
		for z := 0; z < m.height; z++ {
			src[z] = m.At(r, z)
		}
		convolve(col, src[:m.height], k)
		for z := 0; z < m.height; z++ {
			m.Set(r, z, col[z])
		}
	}
}

// convolve writes the symmetric convolution of src with the one-sided kernel
// k into dst.
func convolve(dst, src, k []float64) {
	n := len(src)
	if n < 2 {
		copy(dst, src)
		return
	}
	for i := range src {
		acc := k[0] * src[i]
		for j := 1; j < len(k); j++ {
			acc += k[j] * (reflect(src, i-j) + reflect(src, i+j))
		}
		dst[i] = acc
	}
}

// reflect returns src[i], extending src beyond its ends by point reflection.
// len(src) must be at least 2.
func reflect(src []float64, i int) float64 {
	last := len(src) - 1
	switch {
	case i < 0:
		return 2*src[0] - reflect(src, -i)
	case i > last:
		return 2*src[last] - reflect(src, 2*last-i)
	default:
		return src[i]
	}
}
