package batchnorm

import (
	"github.com/born-ml/kernels/internal/layout"
	"github.com/born-ml/kernels/internal/parallel"
)

// BackwardOp computes the batch normalization backward pass from the
// closed-form chain rule:
//
//	dbeta[c]  = Σ diffDst
//	dgamma[c] = invstd[c] * Σ (src - mean[c]) * diffDst
//	diffSrc   = gamma[c]*invstd[c] * (diffDst - dbeta[c]/NHW
//	            - (src-mean[c])*dgamma[c]*invstd[c]/NHW)
//
// with all sums taken over the N*H*W elements of channel c. The persisted
// mean and invstd come from a training-mode ForwardOp run on the identical
// shape; they are never recomputed here, and the result is only meaningful
// against the exact invstd definition the forward pass stored.
//
// Each channel takes two ordered passes: accumulate dbeta/dgamma, then emit
// diffSrc — every output element depends on the fully accumulated channel
// sums. Channels are independent and distributed by Parallel.
type BackwardOp[T Float] struct {
	Dims           layout.Dims
	Src            layout.Offset4D // source tensor layout (forward input)
	DiffDst        layout.Offset4D // destination-gradient layout
	DiffSrc        layout.Offset4D // source-gradient layout
	ScaleShift     layout.Offset2D // gamma layout; the beta row is not read
	DiffScaleShift layout.Offset2D // dgamma/dbeta layout, used when requested
	Parallel       parallel.Config
}

// Execute runs the backward pass. ws is the workspace persisted by the
// matching forward call. diffScaleShift may be nil when parameter gradients
// are not requested; diffSrc is always written in full. Execute mutates
// nothing else, so repeated calls on the same inputs produce identical
// results.
func (op *BackwardOp[T]) Execute(src, diffDst, scaleShift, ws, diffSrc, diffScaleShift []T) {
	d := op.Dims
	nhw := T(d.SpatialSize())
	wsMean, wsInvStd := SplitWorkspace(ws, d.C)

	parallel.ForChannels(d.C, func(c int) {
		mean := wsMean[c]
		invstd := wsInvStd[c]
		gamma := scaleShift[op.ScaleShift.Off(0, c)]

		var diffGamma, diffBeta T
		for n := 0; n < d.N; n++ {
			for h := 0; h < d.H; h++ {
				for w := 0; w < d.W; w++ {
					dd := diffDst[op.DiffDst.Off(n, c, h, w)]
					diffGamma += (src[op.Src.Off(n, c, h, w)] - mean) * dd
					diffBeta += dd
				}
			}
		}
		diffGamma *= invstd

		if diffScaleShift != nil {
			diffScaleShift[op.DiffScaleShift.Off(0, c)] = diffGamma
			diffScaleShift[op.DiffScaleShift.Off(1, c)] = diffBeta
		}

		for n := 0; n < d.N; n++ {
			for h := 0; h < d.H; h++ {
				for w := 0; w < d.W; w++ {
					dd := diffDst[op.DiffDst.Off(n, c, h, w)]
					s := src[op.Src.Off(n, c, h, w)]
					ds := dd - diffBeta/nhw - (s-mean)*diffGamma*invstd/nhw
					diffSrc[op.DiffSrc.Off(n, c, h, w)] = gamma * invstd * ds
				}
			}
		}
	}, op.Parallel)
}
