// SPDX-FileCopyrightText: © 2023 Siemens AG
// SPDX-License-Identifier: MIT

/*
Preprocesses a folder of JPEG images into center-cropped, resized,
normalized float32 tensors ready for the external classification model.

For usage details, run preprocess with the command line flag -h or --help.
*/
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/edgeforge/swarm/internal/imaging"
)

const (
	exitUsage     = 1
	exitBadSrcDir = 2
	exitBadSize   = 3
	exitBadMethod = 4
)

func main() {
	var help bool
	flag.Usage = usage
	flag.BoolVar(&help, "h", false, "Show usage information")
	flag.Parse()

	args := flag.Args()
	if help || len(args) != 4 {
		usage()
		if help {
			os.Exit(0)
		}
		os.Exit(exitUsage)
	}

	srcDir, dstDir, sizeArg, methodArg := args[0], args[1], args[2], args[3]

	if info, err := os.Stat(srcDir); err != nil || !info.IsDir() {
		fmt.Printf("source directory %s is not accessible: %v\n", srcDir, err)
		os.Exit(exitBadSrcDir)
	}

	size, err := strconv.Atoi(sizeArg)
	if err != nil || size <= 0 {
		fmt.Printf("size must be a positive integer, got %q\n", sizeArg)
		os.Exit(exitBadSize)
	}

	method, err := imaging.ParseResizeMethod(methodArg)
	if err != nil {
		fmt.Println(err)
		os.Exit(exitBadMethod)
	}

	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		fmt.Printf("failed to create destination directory %s: %v\n", dstDir, err)
		os.Exit(1)
	}

	rawPaths, err := imaging.ProcessFolder(srcDir, dstDir, size, method)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	listPath := filepath.Join(dstDir, "target_raw_list.txt")
	if err := imaging.WriteTargetList(listPath, rawPaths); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	fmt.Printf("processed %d images into %s (list: %s)\n", len(rawPaths), dstDir, listPath)
}

func usage() {
	fmt.Printf(`usage: preprocess [-h|--help] <src_dir> <dest_dir> <size> <bilinear|antialias>

Center-crops, resizes, and normalizes every JPEG under src_dir into
dest_dir, writing a sibling .raw float32 tensor per image and a
target_raw_list.txt manifest.

Exit codes: 0 success, %d usage, %d bad source directory, %d bad size, %d bad resize method.

Flags:
`, exitUsage, exitBadSrcDir, exitBadSize, exitBadMethod)
	flag.PrintDefaults()
}
