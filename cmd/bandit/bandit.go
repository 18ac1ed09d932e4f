// SPDX-FileCopyrightText: © 2023 Siemens AG
// SPDX-License-Identifier: MIT

/*
Inspects and maintains a persisted LinUCB bandit model from the command
line: initialize a model (cold-start, or with -multi the compiled-in warm
start), score a candidate feature vector,
fold a training observation into the model, or print the current state.

For usage details, run bandit with the command line flag -h or --help.
*/
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/edgeforge/swarm/internal/bandit"
)

func main() {
	var alpha float64
	var multi bool
	var help bool

	flag.Usage = usage
	flag.Float64Var(&alpha, "alpha", 1.0, "exploration coefficient")
	flag.BoolVar(&multi, "multi", false, "operate on a two-objective (TTFT + speed) model instead of single-objective")
	flag.BoolVar(&help, "h", false, "Show usage information")
	flag.Parse()

	args := flag.Args()
	if help || len(args) == 0 {
		usage()
		os.Exit(0)
	}

	cmd := args[0]
	rest := args[1:]

	var err error
	switch cmd {
	case "init":
		err = runInit(alpha, multi, rest)
	case "load":
		err = runLoad(alpha, multi, rest)
	case "score":
		err = runScore(alpha, multi, rest)
	case "train":
		err = runTrain(alpha, multi, rest)
	case "print":
		err = runPrint(alpha, multi, rest)
	default:
		fmt.Printf("unknown subcommand %q\n", cmd)
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// modelPaths extracts the positional A/b path arguments, returning a single
// b path for single-objective models or two (ttft, speed) for multi.
func modelPaths(multi bool, args []string) (aPath, bPath1, bPath2 string, rest []string, err error) {
	need := 2
	if multi {
		need = 3
	}
	if len(args) < need {
		return "", "", "", nil, fmt.Errorf("expected at least %d path arguments", need)
	}
	if multi {
		return args[0], args[1], args[2], args[need:], nil
	}
	return args[0], args[1], "", args[need:], nil
}

func runInit(alpha float64, multi bool, args []string) error {
	aPath, bPath, bPath2, _, err := modelPaths(multi, args)
	if err != nil {
		return err
	}
	if multi {
		m := bandit.NewMultiLinUCB(alpha)
		return bandit.SaveMultiLinUCB(m, aPath, bPath, bPath2)
	}
	m := bandit.NewLinUCB(alpha)
	return bandit.SaveLinUCB(m, aPath, bPath)
}

func runLoad(alpha float64, multi bool, args []string) error {
	aPath, bPath, bPath2, _, err := modelPaths(multi, args)
	if err != nil {
		return err
	}
	if multi {
		_, err := bandit.LoadMultiLinUCB(aPath, bPath, bPath2, alpha)
		if err != nil {
			return err
		}
		fmt.Println("multi-objective model loaded OK")
		return nil
	}
	if _, err := bandit.LoadLinUCB(aPath, bPath, alpha); err != nil {
		return err
	}
	fmt.Println("model loaded OK")
	return nil
}

func runScore(alpha float64, multi bool, args []string) error {
	aPath, bPath, bPath2, rest, err := modelPaths(multi, args)
	if err != nil {
		return err
	}
	if len(rest) < 3 {
		return fmt.Errorf("score requires cpuPercent ramPercent promptLen [predictedTokens]")
	}
	cpu, ram, promptLen, err := parseFeatureArgs(rest)
	if err != nil {
		return err
	}
	x := bandit.Features(cpu, ram, promptLen)

	if multi {
		m, err := bandit.LoadMultiLinUCB(aPath, bPath, bPath2, alpha)
		if err != nil {
			return err
		}
		tokens := bandit.DefaultPredictedTokens
		if len(rest) > 3 {
			tokens, err = strconv.ParseFloat(rest[3], 64)
			if err != nil {
				return fmt.Errorf("predictedTokens: %w", err)
			}
		}
		fmt.Printf("%.6f\n", m.Score(x, tokens))
		return nil
	}

	m, err := bandit.LoadLinUCB(aPath, bPath, alpha)
	if err != nil {
		return err
	}
	fmt.Printf("%.6f\n", m.Score(x))
	return nil
}

func runTrain(alpha float64, multi bool, args []string) error {
	aPath, bPath, bPath2, rest, err := modelPaths(multi, args)
	if err != nil {
		return err
	}
	if len(rest) < 3 {
		return fmt.Errorf("train requires cpuPercent ramPercent promptLen observedY...")
	}
	cpu, ram, promptLen, err := parseFeatureArgs(rest)
	if err != nil {
		return err
	}
	x := bandit.Features(cpu, ram, promptLen)

	if multi {
		if len(rest) < 5 {
			return fmt.Errorf("multi train requires observedTTFT observedSpeed after cpuPercent ramPercent promptLen")
		}
		ttft, err := strconv.ParseFloat(rest[3], 64)
		if err != nil {
			return fmt.Errorf("observedTTFT: %w", err)
		}
		speed, err := strconv.ParseFloat(rest[4], 64)
		if err != nil {
			return fmt.Errorf("observedSpeed: %w", err)
		}
		m, err := bandit.LoadMultiLinUCB(aPath, bPath, bPath2, alpha)
		if err != nil {
			return err
		}
		m.Train(x, ttft, speed)
		return bandit.SaveMultiLinUCB(m, aPath, bPath, bPath2)
	}

	if len(rest) < 4 {
		return fmt.Errorf("train requires observedY after cpuPercent ramPercent promptLen")
	}
	y, err := strconv.ParseFloat(rest[3], 64)
	if err != nil {
		return fmt.Errorf("observedY: %w", err)
	}
	m, err := bandit.LoadLinUCB(aPath, bPath, alpha)
	if err != nil {
		return err
	}
	m.Train(x, y)
	return bandit.SaveLinUCB(m, aPath, bPath)
}

func runPrint(alpha float64, multi bool, args []string) error {
	aPath, bPath, bPath2, _, err := modelPaths(multi, args)
	if err != nil {
		return err
	}
	if multi {
		m, err := bandit.LoadMultiLinUCB(aPath, bPath, bPath2, alpha)
		if err != nil {
			return err
		}
		printMatrix("A", m.A)
		printVector("b_ttft", m.BTTFT)
		printVector("b_speed", m.BSpeed)
		return nil
	}
	m, err := bandit.LoadLinUCB(aPath, bPath, alpha)
	if err != nil {
		return err
	}
	printMatrix("A", m.A)
	printVector("b", m.B)
	return nil
}

func parseFeatureArgs(rest []string) (cpu, ram float64, promptLen int, err error) {
	cpu, err = strconv.ParseFloat(rest[0], 64)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("cpuPercent: %w", err)
	}
	ram, err = strconv.ParseFloat(rest[1], 64)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("ramPercent: %w", err)
	}
	pl, err := strconv.Atoi(rest[2])
	if err != nil {
		return 0, 0, 0, fmt.Errorf("promptLen: %w", err)
	}
	return cpu, ram, pl, nil
}

func printMatrix(name string, m bandit.Matrix) {
	fmt.Printf("%s:\n", name)
	for i := range m {
		for j := range m[i] {
			fmt.Printf("%10.4f ", m[i][j])
		}
		fmt.Println()
	}
}

func printVector(name string, v bandit.Vector) {
	fmt.Printf("%s:\n", name)
	for _, f := range v {
		fmt.Printf("%10.4f ", f)
	}
	fmt.Println()
}

func usage() {
	fmt.Printf(`usage: bandit [-h|--help] [-alpha alpha] [-multi] <init|load|score|train|print> <aPath> <bPath> [bSpeedPath] [args...]

Manages a persisted LinUCB bandit model.

  init  aPath bPath                                     write a cold-start model
  load  aPath bPath                                      load a model and report success
  score aPath bPath cpuPct ramPct promptLen              print the model's score for a feature vector
  train aPath bPath cpuPct ramPct promptLen observedY    fold one training observation into the model
  print aPath bPath                                      print the model's matrix/vector state

With -multi, bPath is the TTFT weight file and a third path argument
supplies the speed weight file; score takes an optional trailing
predictedTokens argument and train takes observedTTFT observedSpeed in
place of observedY; init writes the compiled-in warm-start model instead of
a cold-start one.

Flags:
`)
	flag.PrintDefaults()
}
