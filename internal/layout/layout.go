// Package layout resolves logical tensor indices to physical buffer offsets.
//
// Kernels in this module never assume contiguous or row-major storage: every
// buffer access goes through an injected resolver, so the same kernel serves
// NCHW, NHWC, or arbitrarily strided views without recompilation.
package layout

// Dims describes the logical shape of a 4-D activation tensor
// (batch, channel, height, width).
type Dims struct {
	N, C, H, W int
}

// SpatialSize returns the number of elements reduced per channel (N*H*W).
func (d Dims) SpatialSize() int {
	return d.N * d.H * d.W
}

// NumElements returns the total element count of the tensor.
func (d Dims) NumElements() int {
	return d.N * d.C * d.H * d.W
}

// Offset4D resolves logical (n, c, h, w) indices to a physical element
// offset within a data buffer.
type Offset4D interface {
	Off(n, c, h, w int) int
}

// Offset2D resolves a (row, channel) index pair for per-channel parameter
// pairs. By convention row 0 addresses gamma (scale) and row 1 beta (shift).
type Offset2D interface {
	Off(row, c int) int
}

// Strided4D addresses a 4-D tensor through explicit per-axis strides plus a
// base offset. It covers dense layouts, transposed views, and slices alike.
type Strided4D struct {
	SN, SC, SH, SW int // stride per logical axis, in elements
	Base           int // offset of element (0,0,0,0)
}

// Off implements Offset4D.
func (s Strided4D) Off(n, c, h, w int) int {
	return s.Base + n*s.SN + c*s.SC + h*s.SH + w*s.SW
}

// NCHW returns the resolver for a dense channel-major layout of d.
func NCHW(d Dims) Strided4D {
	return Strided4D{SN: d.C * d.H * d.W, SC: d.H * d.W, SH: d.W, SW: 1}
}

// NHWC returns the resolver for a dense channel-last layout of d.
func NHWC(d Dims) Strided4D {
	return Strided4D{SN: d.H * d.W * d.C, SH: d.W * d.C, SW: d.C, SC: 1}
}

// Pair2D addresses a gamma/beta parameter pair through explicit strides.
type Pair2D struct {
	RowStride int
	ColStride int
	Base      int
}

// Off implements Offset2D.
func (p Pair2D) Off(row, c int) int {
	return p.Base + row*p.RowStride + c*p.ColStride
}

// PackedPair returns the resolver for the dense [2, C] parameter layout:
// gamma occupies [0, C) and beta [C, 2C).
func PackedPair(channels int) Pair2D {
	return Pair2D{RowStride: channels, ColStride: 1}
}
