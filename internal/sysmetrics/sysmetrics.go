// SPDX-FileCopyrightText: © 2023 Siemens AG
// SPDX-License-Identifier: MIT

// Package sysmetrics implements workeragent.MetricsReader against the
// host's actual CPU, memory, and disk counters via gopsutil's cross
// platform probes.
package sysmetrics

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/edgeforge/swarm/internal/logging"
)

// Reader samples host resource usage on demand. The accelerator and battery
// fields have no portable OS counter in this ecosystem; Reader reports
// battery as -1 (mains powered) unconditionally, matching the common case
// for the rack-mounted workers this system targets.
type Reader struct {
	// StoragePath is the filesystem path disk usage is sampled from.
	StoragePath string
}

// New returns a Reader sampling the root filesystem.
func New() *Reader {
	return &Reader{StoragePath: "/"}
}

// CPULoad returns the fraction (0..1) of CPU currently in use, averaged
// across all cores over a brief sampling window.
func (r *Reader) CPULoad() float64 {
	percents, err := cpu.PercentWithContext(context.Background(), 200*time.Millisecond, false)
	if err != nil || len(percents) == 0 {
		logging.Log.Warn().Err(err).Msg("cpu sample failed")
		return 0
	}
	return percents[0] / 100
}

// RAMPercent returns the percentage (0..100) of physical memory in use.
func (r *Reader) RAMPercent() float64 {
	v, err := mem.VirtualMemoryWithContext(context.Background())
	if err != nil {
		logging.Log.Warn().Err(err).Msg("memory sample failed")
		return 0
	}
	return v.UsedPercent
}

// Battery always reports mains power; no battery counter is portable
// across the platforms gopsutil targets for headless compute nodes.
func (r *Reader) Battery() float64 {
	return -1
}

// StoragePct returns the percentage (0..100) of StoragePath's filesystem in
// use.
func (r *Reader) StoragePct() float64 {
	path := r.StoragePath
	if path == "" {
		path = "/"
	}
	u, err := disk.UsageWithContext(context.Background(), path)
	if err != nil {
		logging.Log.Warn().Err(err).Str("path", path).Msg("disk usage sample failed")
		return 0
	}
	return u.UsedPercent
}
