// SPDX-FileCopyrightText: © 2023 Siemens AG
// SPDX-License-Identifier: MIT

/*
Starts a coordinator that registers worker agents, runs sealed-bid auctions
for incoming prompts, and exposes Prometheus metrics for the registry and
auction outcomes.

For usage details, run coordinator with the command line flag -h or --help.
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/edgeforge/swarm/internal/coordinator"
	"github.com/edgeforge/swarm/internal/logging"
	"github.com/edgeforge/swarm/internal/metrics"
)

func main() {
	var listenAddr string
	var metricsAddr string
	var maxWorkers int
	var bidTimeout time.Duration
	var help bool
	var verbose bool

	flag.Usage = usage
	flag.StringVar(&listenAddr, "a", ":8081", "address (host:port) the coordinator listens on")
	flag.StringVar(&metricsAddr, "m", "", "address (host:port) to serve Prometheus metrics on (disabled if empty)")
	flag.IntVar(&maxWorkers, "n", 100, "maximum number of registered workers")
	flag.DurationVar(&bidTimeout, "t", 3*time.Second, "deadline for collecting all bids of an auction, counted from the end of the broadcast")
	flag.BoolVar(&help, "h", false, "Show usage information")
	flag.BoolVar(&verbose, "l", false, "Show debug logging output")
	flag.Parse()

	if help {
		usage()
		os.Exit(0)
	}

	logging.SetVerbose(verbose)

	reg := prometheus.NewRegistry()
	coordMetrics := metrics.NewCoordinator("swarm")
	coordMetrics.MustRegister(reg)

	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		go func() {
			if err := http.ListenAndServe(metricsAddr, mux); err != nil {
				fmt.Printf("metrics server stopped: %v\n", err)
			}
		}()
	}

	cfg := coordinator.DefaultConfig(listenAddr)
	cfg.MaxWorkers = maxWorkers
	cfg.AuctionConfig.BidTimeout = bidTimeout
	cfg.Metrics = coordMetrics

	fmt.Printf("Starting coordinator on %s...\n", listenAddr)

	// Handle SIGTERM.
	signaled := make(chan struct{})
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		defer close(signaled)
		fmt.Printf("Terminating coordinator on signal %v...\n", <-sigCh)
	}()

	ctx, cancel := context.WithCancel(context.Background()) // triggers graceful shutdown of coordinator
	completed := make(chan struct{})                        // signals completion of coordinator shutdown
	c := coordinator.New(cfg)
	go func() {
		if err := c.Start(ctx, completed); err != nil {
			fmt.Printf("coordinator stopped: %v\n", err)
		}
	}()

	// Wait for coordinator to shut down gracefully, triggered either on its own
	// or after first termination signal is received.
	for {
		select {
		case <-signaled:
			signaled = nil // skip this case after first termination signal
			cancel()       // start shutting down coordinator gracefully
		case <-completed:
			return
		}
	}
}

func usage() {
	fmt.Printf(`usage: coordinator [-h|--help] [-l] [-a listenAddr] [-m metricsAddr] [-n maxWorkers] [-t bidTimeout]

Starts a coordinator that registers worker agents over TCP and runs
sealed-bid auctions to route prompts to the best-positioned worker.

Flags:
`)
	flag.PrintDefaults()
}
