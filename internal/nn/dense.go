package nn

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/born-ml/kernels/internal/batchnorm"
	"github.com/born-ml/kernels/internal/layout"
	"github.com/born-ml/kernels/internal/parallel"
)

// DenseBatchNorm applies batch normalization to a gonum matrix, treating
// rows as the batch axis and columns as channels (a [N, C] activation, i.e.
// H = W = 1). gamma and beta must have length equal to the column count.
//
// The matrix is addressed through its own raw stride, so subviews work
// without copying. Returns the normalized matrix and the per-channel
// mean/invstd pair the kernel computed.
func DenseBatchNorm(x *mat.Dense, gamma, beta []float64, eps float64) (*mat.Dense, []float64, error) {
	rows, cols := x.Dims()
	if len(gamma) != cols || len(beta) != cols {
		return nil, nil, fmt.Errorf("dense batchnorm: gamma/beta length %d/%d != %d columns",
			len(gamma), len(beta), cols)
	}

	dims := layout.Dims{N: rows, C: cols, H: 1, W: 1}
	scaleShift := make([]float64, 2*cols)
	copy(scaleShift[:cols], gamma)
	copy(scaleShift[cols:], beta)

	out := mat.NewDense(rows, cols, nil)
	ws := make([]float64, 2*cols)

	rx := x.RawMatrix()
	ro := out.RawMatrix()
	op := batchnorm.ForwardOp[float64]{
		Dims:       dims,
		Eps:        eps,
		Src:        layout.Strided4D{SN: rx.Stride, SC: 1},
		Dst:        layout.Strided4D{SN: ro.Stride, SC: 1},
		ScaleShift: layout.PackedPair(cols),
		Parallel:   parallel.DefaultConfig(),
	}
	op.Execute(rx.Data, scaleShift, ro.Data, ws)

	return out, ws, nil
}
