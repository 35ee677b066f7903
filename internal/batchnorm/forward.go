package batchnorm

import (
	"math"

	"github.com/born-ml/kernels/internal/layout"
	"github.com/born-ml/kernels/internal/parallel"
)

// ForwardOp computes the batch normalization forward pass:
//
//	dst[n,c,h,w] = gamma[c] * (src[n,c,h,w] - mean[c]) * invstd[c] + beta[c]
//
// with mean and invstd = 1/sqrt(variance+eps) computed per channel over the
// N*H*W elements of that channel. Epsilon sits inside the square root, so a
// zero-variance (all-constant) channel still normalizes without dividing by
// zero.
//
// Each channel is processed independently in three ordered passes: mean,
// variance about that committed mean, then the normalize/scale/shift
// application. Channels are distributed across workers by Parallel; there
// is no cross-channel state.
type ForwardOp[T Float] struct {
	Dims       layout.Dims
	Eps        float64         // added inside the variance square root
	Src        layout.Offset4D // source tensor layout
	Dst        layout.Offset4D // destination tensor layout
	ScaleShift layout.Offset2D // gamma/beta layout (row 0 gamma, row 1 beta)
	Parallel   parallel.Config
}

// Execute runs the forward pass.
//
// A non-nil ws puts the op in training mode: the per-channel mean and
// inverse standard deviation are persisted into ws (length 2*C, mean first)
// for consumption by a matching BackwardOp. A nil ws means inference: the
// statistics live in per-channel scratch and are discarded.
func (op *ForwardOp[T]) Execute(src, scaleShift, dst, ws []T) {
	d := op.Dims
	nhw := T(d.SpatialSize())

	training := ws != nil
	var wsMean, wsInvStd []T
	if training {
		wsMean, wsInvStd = SplitWorkspace(ws, d.C)
	}

	parallel.ForChannels(d.C, func(c int) {
		var mean T
		for n := 0; n < d.N; n++ {
			for h := 0; h < d.H; h++ {
				for w := 0; w < d.W; w++ {
					mean += src[op.Src.Off(n, c, h, w)]
				}
			}
		}
		mean /= nhw

		var variance T
		for n := 0; n < d.N; n++ {
			for h := 0; h < d.H; h++ {
				for w := 0; w < d.W; w++ {
					m := src[op.Src.Off(n, c, h, w)] - mean
					variance += m * m
				}
			}
		}
		invstd := T(1.0 / math.Sqrt(float64(variance/nhw)+op.Eps))

		if training {
			wsMean[c] = mean
			wsInvStd[c] = invstd
		}

		gamma := scaleShift[op.ScaleShift.Off(0, c)]
		beta := scaleShift[op.ScaleShift.Off(1, c)]
		for n := 0; n < d.N; n++ {
			for h := 0; h < d.H; h++ {
				for w := 0; w < d.W; w++ {
					s := src[op.Src.Off(n, c, h, w)]
					dst[op.Dst.Off(n, c, h, w)] = gamma*(s-mean)*invstd + beta
				}
			}
		}
	}, op.Parallel)
}
