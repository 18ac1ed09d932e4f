// SPDX-FileCopyrightText: © 2023 Siemens AG
// SPDX-License-Identifier: MIT

package bandit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSingleObjectiveAdapterScoreWeighting(t *testing.T) {
	adapter := NewSingleObjectiveAdapter(NewLinUCB(1.0))

	_, _, _, _, total := adapter.Score(context.Background(), 0.2, 40, -1, 50)
	assert.Greater(t, total, 0.0)
	assert.LessOrEqual(t, total, 1.0)
}

func TestSingleObjectiveAdapterFailureScoreYieldsZeroLatencyDesirability(t *testing.T) {
	adapter := NewSingleObjectiveAdapter(&LinUCB{A: Matrix{}, Alpha: 1.0})

	x, y, z, w, total := adapter.Score(context.Background(), 0.1, 10, 80, 20)
	require.Equal(t, 0.0, z, "a singular A must zero out the latency sub-score")
	assert.Equal(t, x*weightCompute+y*weightMemory+w*weightPower, total)
}

func TestMultiObjectiveAdapterUsesPredictTokens(t *testing.T) {
	var gotPrompt string
	adapter := NewMultiObjectiveAdapter(NewMultiLinUCB(0.5), func(_ context.Context, prompt string) float64 {
		gotPrompt = prompt
		return 42
	})
	adapter.SetPrompt("hello world")

	_, _, _, _, total := adapter.Score(context.Background(), 0.3, 30, 60, 11)
	assert.Equal(t, "hello world", gotPrompt)
	assert.Greater(t, total, 0.0)
}

func TestBatteryHeadroomTreatsMainsPowerAsFull(t *testing.T) {
	assert.Equal(t, 1.0, batteryHeadroom(-1))
	assert.Greater(t, batteryHeadroom(90), batteryHeadroom(10))
}
