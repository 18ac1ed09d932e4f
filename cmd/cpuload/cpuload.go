// SPDX-FileCopyrightText: © 2023 Siemens AG
// SPDX-License-Identifier: MIT

/*
Generates sustained CPU load for exercising a worker's bid pricing under
synthetic resource pressure.

For usage details, run cpuload with the command line flag -h or --help.
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/edgeforge/swarm/internal/loadgen"
)

func main() {
	var help bool
	flag.Usage = usage
	flag.BoolVar(&help, "h", false, "Show usage information")
	flag.Parse()

	args := flag.Args()
	if help || len(args) < 1 || len(args) > 2 {
		usage()
		if help {
			os.Exit(0)
		}
		os.Exit(1)
	}

	pct, err := strconv.Atoi(args[0])
	if err != nil || pct < 0 || pct > 100 {
		fmt.Printf("load percentage must be an integer in 0..100, got %q\n", args[0])
		os.Exit(1)
	}

	threads := 0 // one per CPU
	if len(args) == 2 {
		threads, err = strconv.Atoi(args[1])
		if err != nil || threads < 1 {
			fmt.Printf("thread count must be a positive integer, got %q\n", args[1])
			os.Exit(1)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	fmt.Printf("Generating %d%% CPU load until interrupted...\n", pct)
	loadgen.RunCPULoad(ctx, pct, threads)
}

func usage() {
	fmt.Print(`usage: cpuload [-h|--help] <pct> [threads]

Busy-spins threads (default: one per CPU) at the given duty cycle
percentage until interrupted.

Flags:
`)
	flag.PrintDefaults()
}
