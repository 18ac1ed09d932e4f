// SPDX-FileCopyrightText: © 2023 Siemens AG
// SPDX-License-Identifier: MIT

package bandit

import "math"

// MultiFailureScore is returned by Score when A is not invertible: a
// latency estimate so poor that the bid adapter gives the worker a latency
// sub-score of zero. The other sub-scores still count toward its total bid,
// so the worker is not guaranteed to lose the auction.
const MultiFailureScore = 9999.0

// MinPredictedSpeed floors a predicted tokens/sec figure before it is used
// as a divisor, guarding against division by zero or a negative
// prediction.
const MinPredictedSpeed = 0.1

// DefaultPredictedTokens is used whenever the external token predictor is
// unavailable or returns an implausible value.
const DefaultPredictedTokens = 75.0

// MultiLinUCB is the two-objective ridge-regression bandit: it predicts
// time-to-first-token (TTFT) and tokens/sec (speed) from a shared feature
// vector and covariance matrix, then combines them into an estimated total
// latency (ttft + tokens/speed) scored with a lower-confidence bound.
type MultiLinUCB struct {
	A      Matrix
	BTTFT  Vector
	BSpeed Vector
	Alpha  float64
}

// warm-start constants: pre-trained covariance and weight vectors so a
// freshly started model does not begin from a flat, uninformative prior.
var (
	warmA = Matrix{
		{2913.000000, 1424.420000, 1426.100000, 553.260000},
		{1424.420000, 948.489600, 696.370400, 273.258900},
		{1426.100000, 696.370400, 952.864800, 270.945720},
		{553.260000, 273.258900, 270.945720, 141.763110},
	}
	warmBTTFT  = Vector{50352.775448, 29158.869048, 24677.918716, 11773.252430}
	warmBSpeed = Vector{18712.935297, 7022.409791, 9165.157313, 3868.617305}
)

// NewMultiLinUCB returns a model initialized from the warm-start constants
// with the given exploration parameter.
func NewMultiLinUCB(alpha float64) *MultiLinUCB {
	return &MultiLinUCB{A: warmA, BTTFT: warmBTTFT, BSpeed: warmBSpeed, Alpha: alpha}
}

// Score predicts total latency (ttft + predictedTokens/speed) for x and
// applies the lower-confidence-bound adjustment. It returns
// MultiFailureScore if A is not invertible.
func (m *MultiLinUCB) Score(x Vector, predictedTokens float64) float64 {
	inv, err := Invert(m.A)
	if err != nil {
		return MultiFailureScore
	}

	thetaTTFT := inv.MulVec(m.BTTFT)
	thetaSpeed := inv.MulVec(m.BSpeed)

	predTTFT := x.Dot(thetaTTFT)
	predSpeed := x.Dot(thetaSpeed)
	if predSpeed < MinPredictedSpeed {
		predSpeed = MinPredictedSpeed
	}

	ax := inv.MulVec(x)
	uncertainty := math.Sqrt(math.Abs(x.Dot(ax)))

	totalLatency := predTTFT + predictedTokens/predSpeed
	return totalLatency - m.Alpha*uncertainty
}

// Train folds one observation into the shared covariance and both weight
// vectors: A += x xT, b_ttft += x*actualTTFT, b_speed += x*actualSpeed.
func (m *MultiLinUCB) Train(x Vector, actualTTFT, actualSpeed float64) {
	m.A.OuterAdd(x)
	m.BTTFT.AddScaled(x, actualTTFT)
	m.BSpeed.AddScaled(x, actualSpeed)
}
