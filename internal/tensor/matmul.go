package tensor

import (
	"fmt"
	"runtime"
	"sync"
)

type matMulTask struct {
	fn     func(rs, re int)
	rs, re int
	done   chan struct{}
}

type matMulPool struct {
	size  int
	tasks chan matMulTask
}

var (
	matMulWorkPool *matMulPool
	matMulPoolOnce sync.Once
)

func getMatMulPool() *matMulPool {
	matMulPoolOnce.Do(func() {
		matMulWorkPool = newMatMulPool()
	})
	return matMulWorkPool
}

func newMatMulPool() *matMulPool {
	size := runtime.GOMAXPROCS(0)
	if size < 1 {
		size = 1
	}
	p := &matMulPool{
		size:  size,
		tasks: make(chan matMulTask, size*2),
	}
	for i := 0; i < size; i++ {
		go func() {
			for task := range p.tasks {
				task.fn(task.rs, task.re)
				task.done <- struct{}{}
			}
		}()
	}
	return p
}

// parallelRows splits [0, rows) across the worker pool. Each row is computed
// by exactly one worker with a fixed sequential reduction order, so results
// are bit-identical regardless of worker count.
func parallelRows(rows int, fn func(rs, re int)) {
	pool := getMatMulPool()
	workers := pool.size
	if workers > rows {
		workers = rows
	}
	if workers <= 1 {
		fn(0, rows)
		return
	}
	chunk := (rows + workers - 1) / workers
	done := make(chan struct{}, workers)
	issued := 0
	for rs := 0; rs < rows; rs += chunk {
		re := rs + chunk
		if re > rows {
			re = rows
		}
		pool.tasks <- matMulTask{fn: fn, rs: rs, re: re, done: done}
		issued++
	}
	for i := 0; i < issued; i++ {
		<-done
	}
}

// MatMul computes the batched matrix product of a and b over their last two
// dimensions. a has shape [*, m, k]. b is either a rank-2 [k, p] weight
// matrix, applied to every batch slice, or shares a's batch dimensions with
// shape [*, k, p]. The result has shape [*, m, p].
func MatMul(a, b *Tensor) *Tensor {
	if len(a.Shape) < 2 || len(b.Shape) < 2 {
		panic(fmt.Sprintf("tensor: matmul wants rank >= 2, got %v and %v", a.Shape, b.Shape))
	}
	m := a.Shape[len(a.Shape)-2]
	k := a.Shape[len(a.Shape)-1]
	if b.Shape[len(b.Shape)-2] != k {
		panic(fmt.Sprintf("tensor: matmul inner dimensions disagree: %v @ %v", a.Shape, b.Shape))
	}
	p := b.Shape[len(b.Shape)-1]

	batch := 1
	for _, d := range a.Shape[:len(a.Shape)-2] {
		batch *= d
	}
	shared := len(b.Shape) == 2

	outShape := append(append([]int(nil), a.Shape[:len(a.Shape)-2]...), m, p)
	out := New(outShape...)

	parallelRows(batch*m, func(rs, re int) {
		for r := rs; r < re; r++ {
			bi, i := r/m, r%m
			arow := a.Data[(bi*m+i)*k : (bi*m+i+1)*k]
			boff := 0
			if !shared {
				boff = bi * k * p
			}
			orow := out.Data[r*p : (r+1)*p]
			for j := range orow {
				var sum float32
				bcol := boff + j
				for x := 0; x < k; x++ {
					sum += arow[x] * b.Data[bcol+x*p]
				}
				orow[j] = sum
			}
		}
	})
	return out
}

// MatMulT computes a @ b^T over the last two dimensions: a [*, m, k] and
// b [*, n, k] give [*, m, n]. The batch dimensions must match. This is the
// score kernel (queries against keys) and avoids materialising a transposed
// copy of b.
func MatMulT(a, b *Tensor) *Tensor {
	if len(a.Shape) != len(b.Shape) {
		panic(fmt.Sprintf("tensor: matmulT rank mismatch: %v vs %v", a.Shape, b.Shape))
	}
	k := a.Shape[len(a.Shape)-1]
	if b.Shape[len(b.Shape)-1] != k {
		panic(fmt.Sprintf("tensor: matmulT inner dimensions disagree: %v vs %v", a.Shape, b.Shape))
	}
	m := a.Shape[len(a.Shape)-2]
	n := b.Shape[len(b.Shape)-2]

	batch := 1
	for i, d := range a.Shape[:len(a.Shape)-2] {
		if b.Shape[i] != d {
			panic(fmt.Sprintf("tensor: matmulT batch dimensions disagree: %v vs %v", a.Shape, b.Shape))
		}
		batch *= d
	}

	outShape := append(append([]int(nil), a.Shape[:len(a.Shape)-2]...), m, n)
	out := New(outShape...)

	parallelRows(batch*m, func(rs, re int) {
		for r := rs; r < re; r++ {
			bi, i := r/m, r%m
			arow := a.Data[(bi*m+i)*k : (bi*m+i+1)*k]
			orow := out.Data[r*n : (r+1)*n]
			for j := range orow {
				brow := b.Data[(bi*n+j)*k : (bi*n+j+1)*k]
				var sum float32
				for x := 0; x < k; x++ {
					sum += arow[x] * brow[x]
				}
				orow[j] = sum
			}
		}
	})
	return out
}
