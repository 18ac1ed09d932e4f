// SPDX-FileCopyrightText: © 2023 Siemens AG
// SPDX-License-Identifier: MIT

package bandit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLinUCBScoreOnFreshModelIsFinite(t *testing.T) {
	m := NewLinUCB(0.5)
	x := Features(40, 60, 150)
	score := m.Score(x)
	assert.NotEqual(t, FailureScore, score)
}

func TestLinUCBColdStartScoreIsPureUncertainty(t *testing.T) {
	// With A=I and b=0 the mean term is zero, so the score is
	// -alpha * sqrt(x . x): for x = [1, 0.5, 0.5, 0.15] that is
	// -sqrt(1.5225) = -1.23389...
	m := NewLinUCB(1.0)
	x := Vector{1, 0.5, 0.5, 0.15}
	assert.InDelta(t, -1.2339, m.Score(x), 1e-4)
}

func TestLinUCBTrainDeltasAreExact(t *testing.T) {
	m := NewLinUCB(1.0)
	x := Vector{1, 0.3, 0.7, 0.2}
	const y = 4.25

	aPrev, bPrev := m.A, m.B
	m.Train(x, y)

	for i := 0; i < D; i++ {
		for j := 0; j < D; j++ {
			assert.InDelta(t, x[i]*x[j], m.A[i][j]-aPrev[i][j], 1e-12)
		}
		assert.InDelta(t, y*x[i], m.B[i]-bPrev[i], 1e-12)
	}

	// Identical observations produce identical deltas.
	aPrev, bPrev = m.A, m.B
	m.Train(x, y)
	for i := 0; i < D; i++ {
		for j := 0; j < D; j++ {
			assert.InDelta(t, x[i]*x[j], m.A[i][j]-aPrev[i][j], 1e-12)
		}
		assert.InDelta(t, y*x[i], m.B[i]-bPrev[i], 1e-12)
	}
}

func TestLinUCBTrainShiftsScoreTowardObservedOutcome(t *testing.T) {
	m := NewLinUCB(0.0) // alpha=0 isolates the mean term from uncertainty
	x := Features(40, 60, 150)

	before := m.Score(x)
	for i := 0; i < 20; i++ {
		m.Train(x, 10.0)
	}
	after := m.Score(x)

	assert.InDelta(t, 10.0, after, 0.5)
	assert.NotEqual(t, before, after)
}

func TestMultiLinUCBWarmStartScoreIsFinite(t *testing.T) {
	m := NewMultiLinUCB(0.5)
	x := Features(45.2, 60.5, 150)
	score := m.Score(x, 75)
	assert.NotEqual(t, MultiFailureScore, score)
}

func TestMultiLinUCBTrainUpdatesWeights(t *testing.T) {
	m := NewMultiLinUCB(0.5)
	before := m.BTTFT
	m.Train(Features(50, 50, 100), 2.5, 8.3)
	assert.NotEqual(t, before, m.BTTFT)
}
