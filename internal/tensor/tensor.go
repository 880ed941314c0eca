// Package tensor provides the dense float32 tensor substrate for the
// transformer core: row-major storage with shape metadata, batched matrix
// products, row softmax, masking and dropout. The layouts it handles are the
// ones the model actually uses, [batch, pos, channel] sequence tensors and
// [batch, head, pos, headChannel] head-split tensors.
package tensor

import (
	"fmt"
	"math/rand"
)

// Tensor is a dense row-major float32 array with shape metadata.
//
// Tensor does not perform any memory safety beyond the checks performed by
// Go's slice types; out-of-range indices panic.
type Tensor struct {
	Data  []float32
	Shape []int
}

// New allocates a zero-initialised tensor with the given shape.
func New(shape ...int) *Tensor {
	size := 1
	for _, d := range shape {
		if d < 0 {
			panic(fmt.Sprintf("tensor: negative dimension %d in shape %v", d, shape))
		}
		size *= d
	}
	return &Tensor{
		Data:  make([]float32, size),
		Shape: append([]int(nil), shape...),
	}
}

// FromData wraps an existing slice in a tensor of the given shape. The slice
// is not copied; the caller keeps ownership. Panics if the sizes disagree.
func FromData(data []float32, shape ...int) *Tensor {
	size := 1
	for _, d := range shape {
		size *= d
	}
	if len(data) != size {
		panic(fmt.Sprintf("tensor: data length %d does not match shape %v", len(data), shape))
	}
	return &Tensor{Data: data, Shape: append([]int(nil), shape...)}
}

// Size returns the total number of elements.
func (t *Tensor) Size() int {
	size := 1
	for _, d := range t.Shape {
		size *= d
	}
	return size
}

// Dim returns the size of dimension i.
func (t *Tensor) Dim(i int) int { return t.Shape[i] }

// Rank returns the number of dimensions.
func (t *Tensor) Rank() int { return len(t.Shape) }

// Reshape returns a view of the same data under a new shape.
// Panics if the total element count changes.
func (t *Tensor) Reshape(shape ...int) *Tensor {
	size := 1
	for _, d := range shape {
		size *= d
	}
	if size != len(t.Data) {
		panic(fmt.Sprintf("tensor: cannot reshape %v to %v", t.Shape, shape))
	}
	return &Tensor{Data: t.Data, Shape: append([]int(nil), shape...)}
}

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	data := make([]float32, len(t.Data))
	copy(data, t.Data)
	return &Tensor{Data: data, Shape: append([]int(nil), t.Shape...)}
}

// Row returns the length-C slice at the given leading indices of a tensor
// whose last dimension is C. For a [B, T, C] tensor, Row(b, t) is one
// position's channel vector. The slice aliases the tensor's storage.
func (t *Tensor) Row(idx ...int) []float32 {
	if len(idx) != len(t.Shape)-1 {
		panic(fmt.Sprintf("tensor: Row wants %d indices, got %d", len(t.Shape)-1, len(idx)))
	}
	off := 0
	for i, ix := range idx {
		if ix < 0 || ix >= t.Shape[i] {
			panic(fmt.Sprintf("tensor: index %d out of range for dim %d (size %d)", ix, i, t.Shape[i]))
		}
		off = off*t.Shape[i] + ix
	}
	c := t.Shape[len(t.Shape)-1]
	off *= c
	return t.Data[off : off+c]
}

// SplitHeads reshapes a [B, T, H*hd] sequence tensor into head-split
// [B, H, T, hd] form, copying so the head axis is adjacent to batch.
// Panics if the channel dimension is not divisible by heads; callers
// validate that at construction time.
func (t *Tensor) SplitHeads(heads int) *Tensor {
	if len(t.Shape) != 3 {
		panic(fmt.Sprintf("tensor: SplitHeads wants rank 3, got shape %v", t.Shape))
	}
	b, n, c := t.Shape[0], t.Shape[1], t.Shape[2]
	if c%heads != 0 {
		panic(fmt.Sprintf("tensor: channels %d not divisible by heads %d", c, heads))
	}
	hd := c / heads
	out := New(b, heads, n, hd)
	for bi := 0; bi < b; bi++ {
		for ti := 0; ti < n; ti++ {
			src := t.Data[(bi*n+ti)*c : (bi*n+ti+1)*c]
			for h := 0; h < heads; h++ {
				dst := out.Data[((bi*heads+h)*n+ti)*hd : ((bi*heads+h)*n+ti+1)*hd]
				copy(dst, src[h*hd:(h+1)*hd])
			}
		}
	}
	return out
}

// MergeHeads is the inverse of SplitHeads: [B, H, T, hd] back to
// [B, T, H*hd].
func (t *Tensor) MergeHeads() *Tensor {
	if len(t.Shape) != 4 {
		panic(fmt.Sprintf("tensor: MergeHeads wants rank 4, got shape %v", t.Shape))
	}
	b, heads, n, hd := t.Shape[0], t.Shape[1], t.Shape[2], t.Shape[3]
	c := heads * hd
	out := New(b, n, c)
	for bi := 0; bi < b; bi++ {
		for h := 0; h < heads; h++ {
			for ti := 0; ti < n; ti++ {
				src := t.Data[((bi*heads+h)*n+ti)*hd : ((bi*heads+h)*n+ti+1)*hd]
				dst := out.Data[(bi*n+ti)*c+h*hd : (bi*n+ti)*c+(h+1)*hd]
				copy(dst, src)
			}
		}
	}
	return out
}

// Head returns a [T, hd] view of one head slice of a [B, H, T, hd] tensor.
func (t *Tensor) Head(b, h int) *Tensor {
	if len(t.Shape) != 4 {
		panic(fmt.Sprintf("tensor: Head wants rank 4, got shape %v", t.Shape))
	}
	heads, n, hd := t.Shape[1], t.Shape[2], t.Shape[3]
	off := (b*heads + h) * n * hd
	return FromData(t.Data[off:off+n*hd], n, hd)
}

// FillRand fills the tensor with reproducible pseudo-random values in a
// small range around zero. The same seed always produces the same values.
func FillRand(t *Tensor, seed int64) {
	rng := rand.New(rand.NewSource(seed))
	for i := range t.Data {
		t.Data[i] = (rng.Float32() - 0.5) * 0.02
	}
}
