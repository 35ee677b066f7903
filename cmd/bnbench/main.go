// Package main provides bnbench, a micro-benchmark for the batchnorm kernels.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/born-ml/kernels/batchnorm"
	"github.com/born-ml/kernels/layout"
	"github.com/born-ml/kernels/parallel"
)

func main() {
	var (
		n       = flag.Int("n", 32, "batch size")
		c       = flag.Int("c", 64, "channels")
		h       = flag.Int("h", 56, "height")
		w       = flag.Int("w", 56, "width")
		iters   = flag.Int("iters", 10, "iterations per pass")
		eps     = flag.Float64("eps", 1e-5, "epsilon")
		nhwc    = flag.Bool("nhwc", false, "use channel-last data layout")
		serial  = flag.Bool("serial", false, "disable channel parallelism")
		workers = flag.Int("workers", 0, "worker count (0 = NumCPU)")
	)
	flag.Parse()

	dims := layout.Dims{N: *n, C: *c, H: *h, W: *w}
	if dims.NumElements() <= 0 {
		fmt.Fprintln(os.Stderr, "bnbench: dimensions must be positive")
		os.Exit(1)
	}

	cfg := parallel.DefaultConfig()
	if *serial {
		cfg.Enabled = false
	}
	if *workers > 0 {
		cfg.NumWorkers = *workers
	}

	var data layout.Strided4D
	if *nhwc {
		data = layout.NHWC(dims)
	} else {
		data = layout.NCHW(dims)
	}

	total := dims.NumElements()
	rng := rand.New(rand.NewSource(1))
	src := make([]float32, total)
	for i := range src {
		src[i] = rng.Float32()*2 - 1
	}
	dst := make([]float32, total)
	gradOut := make([]float32, total)
	for i := range gradOut {
		gradOut[i] = rng.Float32()*2 - 1
	}
	gradIn := make([]float32, total)

	scaleShift := make([]float32, 2*dims.C)
	for i := 0; i < dims.C; i++ {
		scaleShift[i] = 1
	}
	diffScaleShift := make([]float32, 2*dims.C)
	ws := make([]float32, 2*dims.C)

	fwd := batchnorm.ForwardOp[float32]{
		Dims:       dims,
		Eps:        *eps,
		Src:        data,
		Dst:        data,
		ScaleShift: layout.PackedPair(dims.C),
		Parallel:   cfg,
	}
	bwd := batchnorm.BackwardOp[float32]{
		Dims:           dims,
		Src:            data,
		DiffDst:        data,
		DiffSrc:        data,
		ScaleShift:     layout.PackedPair(dims.C),
		DiffScaleShift: layout.PackedPair(dims.C),
		Parallel:       cfg,
	}

	fmt.Printf("bnbench: N=%d C=%d H=%d W=%d (%d elements, nhwc=%v, workers=%d)\n",
		dims.N, dims.C, dims.H, dims.W, total, *nhwc, cfg.NumWorkers)

	start := time.Now()
	for i := 0; i < *iters; i++ {
		fwd.Execute(src, scaleShift, dst, ws)
	}
	report("forward ", time.Since(start), *iters, total, 3)

	start = time.Now()
	for i := 0; i < *iters; i++ {
		bwd.Execute(src, gradOut, scaleShift, ws, gradIn, diffScaleShift)
	}
	report("backward", time.Since(start), *iters, total, 4)
}

// report prints per-iteration wall time and effective bandwidth, given the
// number of full per-element passes the kernel makes at 4 bytes each.
func report(name string, elapsed time.Duration, iters, elements, passes int) {
	per := elapsed / time.Duration(iters)
	gbps := float64(passes) * 4 * float64(elements) / per.Seconds() / 1e9
	fmt.Printf("  %s %v/iter  %.2f GB/s\n", name, per.Round(time.Microsecond), gbps)
}
