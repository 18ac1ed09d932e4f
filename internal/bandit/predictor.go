// SPDX-FileCopyrightText: © 2023 Siemens AG
// SPDX-License-Identifier: MIT

package bandit

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/edgeforge/swarm/internal/logging"
)

// PredictorPath is the external token-count estimator binary invoked by
// PredictTokens.
var PredictorPath = "/opt/swarm/bin/token-predictor"

// PredictorTimeout bounds how long PredictTokens waits for the external
// process before falling back to DefaultPredictedTokens.
const PredictorTimeout = 5 * time.Second

// PredictTokens shells out to PredictorPath with prompt as its sole
// argument and parses a single floating point number from stdout. Any
// failure - missing binary, non-zero exit, unparsable or out-of-range
// output - falls back to DefaultPredictedTokens rather than propagating an
// error, so bidding stays alive when the estimator is absent.
//
// The prompt is passed as an exec.Command argument, not interpolated into
// a shell string, so no quote-escaping is needed to prevent injection.
func PredictTokens(ctx context.Context, prompt string) float64 {
	ctx, cancel := context.WithTimeout(ctx, PredictorTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, PredictorPath, prompt)
	out, err := cmd.Output()
	if err != nil {
		logging.Log.Warn().Err(err).Msg("token predictor failed, using default token count")
		return DefaultPredictedTokens
	}

	tokens, err := strconv.ParseFloat(strings.TrimSpace(firstLine(string(out))), 64)
	if err != nil || !(tokens > 0 && tokens < 10000) {
		logging.Log.Warn().Str("output", string(out)).Msg("token predictor returned an implausible value, using default")
		return DefaultPredictedTokens
	}
	return tokens
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// shellQuote escapes s for use as a single-quoted shell word, rewriting
// `'` as `'\''`.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// PredictorCommandString returns the shell command line PredictTokens is
// semantically equivalent to, for diagnostics only; it is never itself
// executed through a shell.
func PredictorCommandString(prompt string) string {
	return fmt.Sprintf("%s %s", PredictorPath, shellQuote(prompt))
}
