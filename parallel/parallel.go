// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package parallel provides the public API for the work-sharing loop
// configuration consumed by the kernels.
package parallel

import (
	"github.com/born-ml/kernels/internal/parallel"
)

// Config controls parallel execution behavior.
type Config = parallel.Config

// DefaultConfig returns sensible defaults based on CPU count.
func DefaultConfig() Config {
	return parallel.DefaultConfig()
}

// ForChannels executes f(c) for every channel index in [0, channels),
// partitioning the channel range into disjoint blocks across workers.
func ForChannels(channels int, f func(c int), cfg Config) {
	parallel.ForChannels(channels, f, cfg)
}
