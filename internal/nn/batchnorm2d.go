package nn

import (
	"fmt"
	"math"

	"github.com/born-ml/kernels/internal/batchnorm"
	"github.com/born-ml/kernels/internal/layout"
	"github.com/born-ml/kernels/internal/parallel"
)

// BatchNorm2D applies Batch Normalization over a 4-D activation tensor
// [N, C, H, W], with statistics computed per channel.
//
// Formula: Y = gamma * (X - mean) / sqrt(var + eps) + beta
//
// Where:
//   - mean and variance are computed over the N, H, W axes of each channel
//     in training mode, or taken from the running estimates in inference
//     mode
//   - gamma is the learnable scale parameter [C]
//   - beta is the learnable shift parameter [C]
//   - eps is a small value to avoid division by zero
//
// The layer owns the gamma/beta parameters, their gradients, the running
// mean/variance estimates, and the workspace bridging a training forward
// pass to its backward pass. Buffers for activations and gradients are
// caller-owned slices addressed in dense NCHW order.
//
// Example:
//
//	bn := nn.NewBatchNorm2D[float32](64, 1e-5, 0.1)
//	bn.Forward(src, dst, layout.Dims{N: 8, C: 64, H: 28, W: 28}, true)
//	bn.Backward(src, gradOut, gradIn)
type BatchNorm2D[T batchnorm.Float] struct {
	channels int
	eps      float64
	momentum float64

	scaleShift     []T // packed [2, C]: gamma then beta
	gradScaleShift []T // packed [2, C]: dgamma then dbeta

	runningMean []T
	runningVar  []T

	ws       []T // mean/invstd persisted by the last training forward
	lastDims layout.Dims
	haveWS   bool

	cfg parallel.Config
}

// NewBatchNorm2D creates a new BatchNorm2D layer.
//
// Parameters:
//   - channels: size of the channel dimension C
//   - epsilon: small constant for numerical stability (typically 1e-5)
//   - momentum: weight of the batch statistics in the running-estimate
//     update (typically 0.1)
//
// Gamma is initialized to ones, beta to zeros, running mean to zeros, and
// running variance to ones.
func NewBatchNorm2D[T batchnorm.Float](channels int, epsilon, momentum float64) *BatchNorm2D[T] {
	if channels <= 0 {
		panic(fmt.Sprintf("batchnorm2d: invalid channel count %d", channels))
	}
	if epsilon < 0 {
		panic(fmt.Sprintf("batchnorm2d: invalid epsilon %g", epsilon))
	}

	l := &BatchNorm2D[T]{
		channels:       channels,
		eps:            epsilon,
		momentum:       momentum,
		scaleShift:     make([]T, 2*channels),
		gradScaleShift: make([]T, 2*channels),
		runningMean:    make([]T, channels),
		runningVar:     make([]T, channels),
		ws:             make([]T, 2*channels),
		cfg:            parallel.DefaultConfig(),
	}

	for c := 0; c < channels; c++ {
		l.scaleShift[c] = 1 // gamma row
		l.runningVar[c] = 1
	}
	return l
}

// SetParallel overrides the parallel execution configuration.
func (l *BatchNorm2D[T]) SetParallel(cfg parallel.Config) {
	l.cfg = cfg
}

// Gamma returns the scale parameters as a mutable view of length C.
func (l *BatchNorm2D[T]) Gamma() []T { return l.scaleShift[:l.channels] }

// Beta returns the shift parameters as a mutable view of length C.
func (l *BatchNorm2D[T]) Beta() []T { return l.scaleShift[l.channels:] }

// GradGamma returns the scale gradients written by the last Backward call.
func (l *BatchNorm2D[T]) GradGamma() []T { return l.gradScaleShift[:l.channels] }

// GradBeta returns the shift gradients written by the last Backward call.
func (l *BatchNorm2D[T]) GradBeta() []T { return l.gradScaleShift[l.channels:] }

// RunningMean returns the running per-channel mean estimate.
func (l *BatchNorm2D[T]) RunningMean() []T { return l.runningMean }

// RunningVar returns the running per-channel variance estimate.
func (l *BatchNorm2D[T]) RunningVar() []T { return l.runningVar }

// Forward normalizes src into dst, both dense NCHW buffers of shape dims.
//
// In training mode the batch statistics are computed by the forward kernel,
// persisted for Backward, and folded into the running estimates:
//
//	running = (1 - momentum) * running + momentum * batch
//
// In inference mode the running estimates are applied directly; no state is
// mutated.
func (l *BatchNorm2D[T]) Forward(src, dst []T, dims layout.Dims, training bool) {
	l.check(dims)
	if len(src) < dims.NumElements() || len(dst) < dims.NumElements() {
		panic(fmt.Sprintf("batchnorm2d: buffer too small for dims %+v (src %d, dst %d)",
			dims, len(src), len(dst)))
	}
	data := layout.NCHW(dims)

	if !training {
		l.inference(src, dst, dims, data)
		return
	}

	op := batchnorm.ForwardOp[T]{
		Dims:       dims,
		Eps:        l.eps,
		Src:        data,
		Dst:        data,
		ScaleShift: layout.PackedPair(l.channels),
		Parallel:   l.cfg,
	}
	op.Execute(src, l.scaleShift, dst, l.ws)
	l.lastDims = dims
	l.haveWS = true

	// Fold batch statistics into the running estimates. The workspace holds
	// invstd, so the variance is recovered as 1/invstd^2 - eps.
	mean, invstd := batchnorm.SplitWorkspace(l.ws, l.channels)
	for c := 0; c < l.channels; c++ {
		is := float64(invstd[c])
		v := 1.0/(is*is) - l.eps
		l.runningMean[c] = T((1-l.momentum)*float64(l.runningMean[c]) + l.momentum*float64(mean[c]))
		l.runningVar[c] = T((1-l.momentum)*float64(l.runningVar[c]) + l.momentum*v)
	}
}

// inference applies the running statistics per element.
func (l *BatchNorm2D[T]) inference(src, dst []T, dims layout.Dims, data layout.Strided4D) {
	parallel.ForChannels(dims.C, func(c int) {
		gamma := l.scaleShift[c]
		beta := l.scaleShift[l.channels+c]
		mean := l.runningMean[c]
		invstd := T(1.0 / math.Sqrt(float64(l.runningVar[c])+l.eps))

		for n := 0; n < dims.N; n++ {
			for h := 0; h < dims.H; h++ {
				for w := 0; w < dims.W; w++ {
					off := data.Off(n, c, h, w)
					dst[off] = gamma*(src[off]-mean)*invstd + beta
				}
			}
		}
	}, l.cfg)
}

// Backward computes gradIn from gradOut using the statistics persisted by
// the last training-mode Forward, and accumulates dgamma/dbeta into the
// layer's gradient buffers (overwriting the previous values). src must be
// the same buffer that forward pass consumed.
func (l *BatchNorm2D[T]) Backward(src, gradOut, gradIn []T) {
	if !l.haveWS {
		panic("batchnorm2d: Backward called before a training-mode Forward")
	}
	dims := l.lastDims
	if len(src) < dims.NumElements() || len(gradOut) < dims.NumElements() || len(gradIn) < dims.NumElements() {
		panic(fmt.Sprintf("batchnorm2d: buffer too small for dims %+v", dims))
	}
	data := layout.NCHW(dims)

	op := batchnorm.BackwardOp[T]{
		Dims:           dims,
		Src:            data,
		DiffDst:        data,
		DiffSrc:        data,
		ScaleShift:     layout.PackedPair(l.channels),
		DiffScaleShift: layout.PackedPair(l.channels),
		Parallel:       l.cfg,
	}
	op.Execute(src, gradOut, l.scaleShift, l.ws, gradIn, l.gradScaleShift)
}

// check panics when dims disagree with the layer configuration.
func (l *BatchNorm2D[T]) check(dims layout.Dims) {
	if dims.C != l.channels {
		panic(fmt.Sprintf("batchnorm2d: input channels %d != layer channels %d", dims.C, l.channels))
	}
	if dims.N <= 0 || dims.H <= 0 || dims.W <= 0 {
		panic(fmt.Sprintf("batchnorm2d: invalid dims %+v", dims))
	}
}
