// SPDX-FileCopyrightText: © 2023 Siemens AG
// SPDX-License-Identifier: MIT

/*
Allocates and continuously touches memory for exercising a worker's bid
pricing under synthetic resource pressure.

For usage details, run ramload with the command line flag -h or --help.
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

	mb, err := strconv.Atoi(args[0])
	if err != nil || mb < 1 {
		fmt.Printf("megabytes must be a positive integer, got %q\n", args[0])
		os.Exit(1)
	}

	threads := 1
	if len(args) == 2 {
		threads, err = strconv.Atoi(args[1])
		if err != nil || threads < 1 {
			fmt.Printf("thread count must be a positive integer, got %q\n", args[1])
			os.Exit(1)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	fmt.Printf("Holding %d MB resident across %d threads until interrupted...\n", mb, threads)
	loadgen.RunRAMLoad(ctx, mb, threads)
}

func usage() {
	fmt.Print(`usage: ramload [-h|--help] <MB> [threads]

Allocates the given number of megabytes split across threads and keeps
every page resident until interrupted.

Flags:
`)
	flag.PrintDefaults()
}
