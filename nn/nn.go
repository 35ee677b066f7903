// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package nn provides the public API for the high-level normalization layer
// built on top of the batchnorm kernels.
package nn

import (
	"gonum.org/v1/gonum/mat"

	"github.com/born-ml/kernels/batchnorm"
	"github.com/born-ml/kernels/internal/nn"
)

// BatchNorm2D applies batch normalization over a 4-D activation tensor
// [N, C, H, W], owning the gamma/beta parameters, their gradients, the
// running statistics, and the forward/backward workspace.
type BatchNorm2D[T batchnorm.Float] = nn.BatchNorm2D[T]

// NewBatchNorm2D creates a new BatchNorm2D layer.
//
// Example:
//
//	bn := nn.NewBatchNorm2D[float32](64, 1e-5, 0.1)
//	bn.Forward(src, dst, layout.Dims{N: 8, C: 64, H: 28, W: 28}, true)
//	bn.Backward(src, gradOut, gradIn)
func NewBatchNorm2D[T batchnorm.Float](channels int, epsilon, momentum float64) *BatchNorm2D[T] {
	return nn.NewBatchNorm2D[T](channels, epsilon, momentum)
}

// DenseBatchNorm applies batch normalization to a gonum matrix, treating
// rows as the batch axis and columns as channels.
func DenseBatchNorm(x *mat.Dense, gamma, beta []float64, eps float64) (*mat.Dense, []float64, error) {
	return nn.DenseBatchNorm(x, gamma, beta, eps)
}
