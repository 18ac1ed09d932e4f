// SPDX-FileCopyrightText: © 2023 Siemens AG
// SPDX-License-Identifier: MIT

// Package metrics provides Prometheus metrics for the coordinator and
// worker agent processes.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Coordinator holds the metrics emitted by the auction coordinator.
type Coordinator struct {
	AuctionsTotal   *prometheus.CounterVec
	AuctionDuration prometheus.Histogram
	FastPathTotal   prometheus.Counter
	BidsReceived    prometheus.Counter
	RegistrySize    prometheus.Gauge
}

// NewCoordinator creates coordinator metrics under the given namespace;
// MustRegister registers them.
func NewCoordinator(namespace string) *Coordinator {
	if namespace == "" {
		namespace = "swarm"
	}
	return &Coordinator{
		AuctionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "auctions_total",
				Help:      "Total number of completed auctions by outcome.",
			},
			[]string{"outcome"},
		),
		AuctionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "auction_duration_seconds",
			Help:      "Time from prompt arrival to winner notification.",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2, 3, 5, 8},
		}),
		FastPathTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fast_path_total",
			Help:      "Total number of auctions resolved via the idle-accelerator fast path.",
		}),
		BidsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bids_received_total",
			Help:      "Total number of valid bids collected across all auctions.",
		}),
		RegistrySize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "registry_size",
			Help:      "Number of workers currently registered.",
		}),
	}
}

// MustRegister registers every collector with the given registerer, panicking
// on a duplicate registration (mirrors prometheus.MustRegister's contract).
func (c *Coordinator) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(c.AuctionsTotal, c.AuctionDuration, c.FastPathTotal, c.BidsReceived, c.RegistrySize)
}

// Worker holds the metrics emitted by a worker agent process.
type Worker struct {
	BidsSubmitted *prometheus.CounterVec
	JobsExecuted  *prometheus.CounterVec
	JobDuration   prometheus.Histogram
	Reconnects    prometheus.Counter
}

// NewWorker creates worker metrics under the given namespace; MustRegister
// registers them.
func NewWorker(namespace string) *Worker {
	if namespace == "" {
		namespace = "swarm"
	}
	return &Worker{
		BidsSubmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bids_submitted_total",
				Help:      "Total number of bids submitted by status.",
			},
			[]string{"status"},
		),
		JobsExecuted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "jobs_executed_total",
				Help:      "Total number of execute jobs handled by status.",
			},
			[]string{"status"},
		),
		JobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Time spent executing an awarded job.",
			Buckets:   prometheus.DefBuckets,
		}),
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnects_total",
			Help:      "Total number of reconnect attempts to the coordinator.",
		}),
	}
}

// MustRegister registers every collector with the given registerer.
func (w *Worker) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(w.BidsSubmitted, w.JobsExecuted, w.JobDuration, w.Reconnects)
}

// Handler returns the standard Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
