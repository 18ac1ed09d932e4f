// SPDX-FileCopyrightText: © 2023 Siemens AG
// SPDX-License-Identifier: MIT

// Package loadgen implements the CPU and RAM stress harnesses used to
// exercise a worker's bid pricing under synthetic resource pressure:
// duty-cycled busy-spin threads for CPU, and continuously re-touched
// allocations for RAM. Both run until their context is canceled.
package loadgen

import (
	"context"
	"runtime"
	"time"
)

// CPUCycle is the duty-cycle period each CPU worker alternates busy/idle
// within.
const CPUCycle = 100 * time.Millisecond

// RunCPULoad starts nthreads goroutines, each spending loadPercent% of every
// CPUCycle busy-spinning and the remainder sleeping, until ctx is canceled.
// nthreads defaults to GOMAXPROCS when zero or negative. It blocks until
// ctx is done.
func RunCPULoad(ctx context.Context, loadPercent, nthreads int) {
	if nthreads <= 0 {
		nthreads = runtime.GOMAXPROCS(0)
	}
	if loadPercent < 0 {
		loadPercent = 0
	}
	if loadPercent > 100 {
		loadPercent = 100
	}

	done := make(chan struct{})
	for i := 0; i < nthreads; i++ {
		go func() {
			cpuWorker(ctx, loadPercent)
			done <- struct{}{}
		}()
	}
	for i := 0; i < nthreads; i++ {
		<-done
	}
}

func cpuWorker(ctx context.Context, loadPercent int) {
	busyTime := CPUCycle * time.Duration(loadPercent) / 100
	idleTime := CPUCycle - busyTime

	for {
		if ctx.Err() != nil {
			return
		}

		start := time.Now()
		for time.Since(start) < busyTime {
			if ctx.Err() != nil {
				return
			}
		}

		if idleTime > 0 {
			select {
			case <-time.After(idleTime):
			case <-ctx.Done():
				return
			}
		}
	}
}
