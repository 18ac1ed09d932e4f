// SPDX-FileCopyrightText: © 2023 Siemens AG
// SPDX-License-Identifier: MIT

/*
Starts a specific number of worker agents that register with a coordinator,
bid on incoming prompts using a persisted LinUCB model, and execute awarded
jobs through an external model runner.

For usage details, run worker with the command line flag -h or --help.
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/edgeforge/swarm/internal/bandit"
	"github.com/edgeforge/swarm/internal/inference"
	"github.com/edgeforge/swarm/internal/logging"
	"github.com/edgeforge/swarm/internal/metrics"
	"github.com/edgeforge/swarm/internal/sysmetrics"
	"github.com/edgeforge/swarm/internal/workeragent"
)

const (
	defaultWorkers = 10  // default number of workers
	maxWorkers     = 100 // maximum number of workers
)

// workerOpts carries the per-worker configuration shared by every spawned
// agent.
type workerOpts struct {
	coordinatorAddr string
	modelDir        string
	alpha           float64
	hasAccelerator  bool
	runnerPath      string

	classifyModel  string
	classifyLabels string
	bundleDir      string
	scratchDir     string
	classifySize   int
}

func main() {
	var opts workerOpts
	var help bool
	var log bool

	flag.Usage = usage
	flag.StringVar(&opts.coordinatorAddr, "c", "localhost:8081", "address (host:port) of the coordinator")
	flag.StringVar(&opts.modelDir, "m", "./models", "directory holding each worker's persisted LinUCB model")
	flag.Float64Var(&opts.alpha, "alpha", 1.0, "LinUCB exploration coefficient")
	flag.BoolVar(&opts.hasAccelerator, "accel", false, "advertise this worker as accelerator-equipped")
	flag.StringVar(&opts.runnerPath, "r", "", "path to the external model runner binary invoked per job (left unset disables execution)")
	flag.StringVar(&opts.classifyModel, "cmodel", "", "path to an external image classification model binary; with -labels, jobs are treated as base64 images")
	flag.StringVar(&opts.classifyLabels, "labels", "", "line-per-class labels file for image classification")
	flag.StringVar(&opts.bundleDir, "bundle", "./bundle", "model bundle directory staged images and tensors are written under")
	flag.StringVar(&opts.scratchDir, "scratch", "./scratch", "scratch directory received images are written to")
	flag.IntVar(&opts.classifySize, "size", 224, "preprocessing target size for image classification")
	flag.BoolVar(&help, "h", false, "Show usage information")
	flag.BoolVar(&log, "l", false, "Show logging output (for debugging)")
	flag.Parse()

	if flag.Arg(1) != "" || help {
		usage()
		os.Exit(0)
	}

	logging.SetVerbose(log)

	// Accept any number of workers between 1 and maxWorkers.
	count, err := strconv.Atoi(flag.Arg(0))
	if err != nil && flag.Arg(0) == "" {
		count = defaultWorkers
	} else if err != nil || count < 1 || count > maxWorkers {
		fmt.Printf("Number of workers must be between 1 and %d\n", maxWorkers)
		return
	}

	if err := os.MkdirAll(opts.modelDir, 0o755); err != nil {
		fmt.Printf("failed to create model directory %s: %v\n", opts.modelDir, err)
		return
	}

	// Handle SIGTERM.
	signaled := make(chan struct{})
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		defer close(signaled)
		fmt.Printf("Terminating workers on signal %v...\n", <-sigCh)
	}()

	fmt.Printf("Starting %d workers connecting to %s...\n", count, opts.coordinatorAddr)

	ctx, cancel := context.WithCancel(context.Background()) // triggers graceful shutdown of workers
	completed := make(chan struct{})                        // signals completion of worker shutdowns
	for i := 0; i < count; i++ {
		go runWorker(ctx, i, opts, completed)
	}

	// Wait for all workers to shut down gracefully, triggered either on their
	// own or after first termination signal is received.
	for sw := count; sw > 0; {
		select {
		case <-signaled:
			signaled = nil // skip this case after first termination signal
			cancel()       // start shutting down workers gracefully
		case <-completed:
			sw--
		}
	}
}

func runWorker(ctx context.Context, index int, opts workerOpts, completed chan<- struct{}) {
	defer func() { completed <- struct{}{} }()

	aPath := filepath.Join(opts.modelDir, fmt.Sprintf("worker-%d.a.txt", index))
	bPath := filepath.Join(opts.modelDir, fmt.Sprintf("worker-%d.b.txt", index))
	model, err := bandit.LoadLinUCB(aPath, bPath, opts.alpha)
	if err != nil {
		fmt.Printf("worker %d: failed to load model, starting cold: %v\n", index, err)
		model = bandit.NewLinUCB(opts.alpha)
	}

	cfg := workeragent.DefaultConfig(fmt.Sprintf("worker-%s", uuid.NewString()), opts.coordinatorAddr)
	cfg.HasAccelerator = opts.hasAccelerator
	cfg.Scorer = bandit.NewSingleObjectiveAdapter(model)
	cfg.Metrics = sysmetrics.New()
	cfg.Telemetry = metrics.NewWorker("swarm")
	switch {
	case opts.classifyModel != "" && opts.classifyLabels != "":
		cfg.Executor = &inference.Classifier{
			ScratchDir: filepath.Join(opts.scratchDir, fmt.Sprintf("worker-%d", index)),
			BundleDir:  filepath.Join(opts.bundleDir, fmt.Sprintf("worker-%d", index)),
			LabelsPath: opts.classifyLabels,
			ModelPath:  opts.classifyModel,
			Size:       opts.classifySize,
		}
	case opts.runnerPath != "":
		cfg.Executor = inference.NewSubprocessExecutor(opts.runnerPath)
	}

	agent := workeragent.New(cfg)

	persistCtx, stopPersist := context.WithCancel(context.Background())
	defer stopPersist()
	go periodicSave(persistCtx, model, aPath, bPath)

	if err := agent.Run(ctx); err != nil {
		fmt.Printf("worker %d stopped: %v\n", index, err)
	}
	if err := bandit.SaveLinUCB(model, aPath, bPath); err != nil {
		fmt.Printf("worker %d: failed to save model on shutdown: %v\n", index, err)
	}
}

func periodicSave(ctx context.Context, model *bandit.LinUCB, aPath, bPath string) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			bandit.SaveLinUCB(model, aPath, bPath)
		}
	}
}

func usage() {
	fmt.Printf(`usage: worker [-h|--help] [-l] [-c coordinatorAddr] [-m modelDir] [-alpha alpha] [-accel] [-r runnerPath] [-cmodel path -labels path [-bundle dir] [-scratch dir] [-size n]] [count]

Starts the given number of worker agents (default %d, maximum %d).

Flags:
`, defaultWorkers, maxWorkers)
	flag.PrintDefaults()
}
