// SPDX-FileCopyrightText: © 2023 Siemens AG
// SPDX-License-Identifier: MIT

/*
Postprocesses one raw float32 logit vector produced by the external
classification model into a human-readable label.

For usage details, run postprocess with the command line flag -h or --help.
*/
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/edgeforge/swarm/internal/imaging"
)

const (
	exitUsage      = 1
	exitBadRawFile = 2
)

func main() {
	var help bool
	flag.Usage = usage
	flag.BoolVar(&help, "h", false, "Show usage information")
	flag.Parse()

	args := flag.Args()
	if help || len(args) != 2 {
		usage()
		if help {
			os.Exit(0)
		}
		os.Exit(exitUsage)
	}

	rawFile, labelsFile := args[0], args[1]

	result, err := imaging.Postprocess(rawFile, labelsFile)
	if err != nil {
		fmt.Println(err)
		os.Exit(exitBadRawFile)
	}

	fmt.Printf("%g %d %s\n", result.Value, result.Index, result.Label)
}

func usage() {
	fmt.Printf(`usage: postprocess [-h|--help] <raw_file> <labels_file>

Finds the argmax of raw_file's float32 logit vector and prints
"<max_value> <max_idx> <label>", looking label up as the max_idx-th
(0-indexed) line of labels_file (unknown if out of range).

Exit codes: 0 success, %d usage, %d bad raw/labels file.

Flags:
`, exitUsage, exitBadRawFile)
	flag.PrintDefaults()
}
