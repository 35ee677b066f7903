// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package batchnorm provides the public API for the reference batch
// normalization kernels.
//
// The package exposes two ops sharing one addressing abstraction:
//   - ForwardOp[T]: per-channel mean/invstd reduction plus the
//     normalize/scale/shift application, optionally persisting statistics
//   - BackwardOp[T]: the closed-form gradient w.r.t. source and, when
//     requested, w.r.t. the gamma/beta parameters
//
// Both are generic over the element type (float32 or float64) and address
// buffers exclusively through layout resolvers, so any 4-axis memory layout
// works. See the layout package for the resolvers.
//
// Example:
//
//	dims := layout.Dims{N: 8, C: 64, H: 28, W: 28}
//	data := layout.NCHW(dims)
//	ws := make([]float32, 2*dims.C) // non-nil workspace = training mode
//	fwd := batchnorm.ForwardOp[float32]{
//	    Dims: dims, Eps: 1e-5,
//	    Src: data, Dst: data,
//	    ScaleShift: layout.PackedPair(dims.C),
//	    Parallel:   parallel.DefaultConfig(),
//	}
//	fwd.Execute(src, scaleShift, dst, ws)
//
// The kernels perform no validation; see the package documentation of
// internal/batchnorm for the exact caller obligations.
package batchnorm

import (
	"github.com/born-ml/kernels/internal/batchnorm"
)

// Float is the constraint for supported element types.
type Float = batchnorm.Float

// ForwardOp computes the batch normalization forward pass.
type ForwardOp[T Float] = batchnorm.ForwardOp[T]

// BackwardOp computes the batch normalization backward pass.
type BackwardOp[T Float] = batchnorm.BackwardOp[T]

// SplitWorkspace slices a 2*C workspace into its mean and inverse-std
// halves. The second half holds 1/sqrt(var+eps), not raw variance.
func SplitWorkspace[T Float](ws []T, channels int) (mean, invstd []T) {
	return batchnorm.SplitWorkspace(ws, channels)
}
