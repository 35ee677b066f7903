// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package layout provides the public API for tensor address resolution.
//
// Kernels in this module receive a resolver per buffer and never assume
// contiguity, so source, destination, and parameter buffers may each use a
// different physical layout.
//
// Example:
//
//	dims := layout.Dims{N: 2, C: 3, H: 4, W: 5}
//	nchw := layout.NCHW(dims) // dense channel-major
//	nhwc := layout.NHWC(dims) // dense channel-last
//	off := nchw.Off(1, 2, 3, 4)
package layout

import (
	"github.com/born-ml/kernels/internal/layout"
)

// Dims describes the logical shape of a 4-D activation tensor.
type Dims = layout.Dims

// Offset4D resolves logical (n, c, h, w) indices to a physical offset.
type Offset4D = layout.Offset4D

// Offset2D resolves (row, channel) indices for gamma/beta parameter pairs.
type Offset2D = layout.Offset2D

// Strided4D addresses a 4-D tensor through explicit per-axis strides.
type Strided4D = layout.Strided4D

// Pair2D addresses a gamma/beta parameter pair through explicit strides.
type Pair2D = layout.Pair2D

// NCHW returns the resolver for a dense channel-major layout of d.
func NCHW(d Dims) Strided4D { return layout.NCHW(d) }

// NHWC returns the resolver for a dense channel-last layout of d.
func NHWC(d Dims) Strided4D { return layout.NHWC(d) }

// PackedPair returns the resolver for the dense [2, C] parameter layout.
func PackedPair(channels int) Pair2D { return layout.PackedPair(channels) }
