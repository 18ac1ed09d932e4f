// SPDX-FileCopyrightText: © 2023 Siemens AG
// SPDX-License-Identifier: MIT

package bandit

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withFakePredictor(t *testing.T, script string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "predictor")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0o755))

	prev := PredictorPath
	PredictorPath = path
	t.Cleanup(func() { PredictorPath = prev })
}

func TestPredictTokensParsesStdout(t *testing.T) {
	withFakePredictor(t, "echo 128.5")
	assert.Equal(t, 128.5, PredictTokens(context.Background(), "some prompt"))
}

func TestPredictTokensFallsBackOnGarbage(t *testing.T) {
	withFakePredictor(t, "echo not-a-number")
	assert.Equal(t, DefaultPredictedTokens, PredictTokens(context.Background(), "p"))
}

func TestPredictTokensFallsBackOnImplausibleValue(t *testing.T) {
	withFakePredictor(t, "echo 50000")
	assert.Equal(t, DefaultPredictedTokens, PredictTokens(context.Background(), "p"))
}

func TestPredictTokensFallsBackOnMissingBinary(t *testing.T) {
	prev := PredictorPath
	PredictorPath = "/definitely/not/a/real/predictor"
	t.Cleanup(func() { PredictorPath = prev })

	assert.Equal(t, DefaultPredictedTokens, PredictTokens(context.Background(), "p"))
}

func TestPredictorCommandStringQuotesSingleQuotes(t *testing.T) {
	s := PredictorCommandString("it's a prompt")
	assert.Contains(t, s, `'it'\''s a prompt'`)
}
