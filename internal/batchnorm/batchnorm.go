// Package batchnorm implements reference batch normalization kernels for
// 4-D activation tensors with channel-major statistics.
//
// The kernels are pure arithmetic. They perform no shape or bounds
// validation and address every buffer exclusively through injected layout
// resolvers; guaranteeing that shapes, layouts, and buffer lengths agree is
// the caller's responsibility, and mismatched inputs will read or write out
// of range. Validation belongs one level up, in the layer or dispatch code
// that prepares the buffers.
package batchnorm

// Float is the constraint for supported element types. Statistics are
// accumulated in the element type itself, so forward and backward stay
// precision-consistent for a given instantiation.
type Float interface {
	~float32 | ~float64
}

// SplitWorkspace slices a caller-owned workspace of length 2*channels into
// its two halves: [0, C) holds per-channel means, [C, 2C) holds per-channel
// inverse standard deviations.
//
// The second half stores 1/sqrt(variance+eps) exactly as the forward pass
// computed it, not the raw variance. The backward closed form depends on
// that definition, so consumers must not re-derive or re-invert it.
func SplitWorkspace[T Float](ws []T, channels int) (mean, invstd []T) {
	return ws[:channels], ws[channels : 2*channels]
}
