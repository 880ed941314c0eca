package tensor

import "math"

// Add adds src to dst element-wise.
func Add(dst, src []float32) {
	for i := range dst {
		dst[i] += src[i]
	}
}

// Scale multiplies every element of x by s in place.
func Scale(x []float32, s float32) {
	for i := range x {
		x[i] *= s
	}
}

// Dot computes the dot product of a and b.
func Dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// Softmax applies the softmax function to x in place, subtracting the row
// maximum for numerical stability. -Inf entries come out as exactly zero.
func Softmax(x []float32) {
	if len(x) == 0 {
		return
	}
	maxv := x[0]
	for i := 1; i < len(x); i++ {
		if x[i] > maxv {
			maxv = x[i]
		}
	}
	var sum float64
	for i := range x {
		v := math.Exp(float64(x[i] - maxv))
		x[i] = float32(v)
		sum += v
	}
	if sum == 0 {
		return
	}
	inv := float32(1.0 / sum)
	for i := range x {
		x[i] *= inv
	}
}

// SoftmaxRows applies Softmax to every row of t's last dimension, in place.
func SoftmaxRows(t *Tensor) {
	c := t.Shape[len(t.Shape)-1]
	for off := 0; off < len(t.Data); off += c {
		Softmax(t.Data[off : off+c])
	}
}

// Gelu computes the Gaussian Error Linear Unit activation using the tanh
// approximation.
func Gelu(x float32) float32 {
	const c = 0.7978845608028654 // sqrt(2/pi)
	v := float64(x)
	return float32(0.5 * v * (1.0 + math.Tanh(c*(v+0.044715*v*v*v))))
}
