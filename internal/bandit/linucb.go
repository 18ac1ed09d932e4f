// SPDX-FileCopyrightText: © 2023 Siemens AG
// SPDX-License-Identifier: MIT

package bandit

import "math"

// FailureScore is returned by Score when the model's A matrix cannot be
// inverted: the worst possible score under the minimization convention used
// for latency. The bid adapters turn it into a latency sub-score of zero;
// the worker's other sub-scores still count toward its total bid, so it is
// not guaranteed to lose the auction.
const FailureScore = 1e9

// LinUCB is the single-objective ridge-regression bandit: it predicts a
// scalar outcome y (e.g. a latency or quality figure) from a feature
// vector x, and scores candidates with a lower-confidence-bound rule: lower
// scores are better, so both a low predicted mean and a high estimate
// uncertainty (which is subtracted) favor a candidate.
type LinUCB struct {
	A     Matrix
	B     Vector
	Alpha float64
}

// NewLinUCB returns a model initialized to the identity prior (A=I, b=0).
func NewLinUCB(alpha float64) *LinUCB {
	return &LinUCB{A: Identity(), Alpha: alpha}
}

// Score computes mean - alpha*uncertainty for x, where mean = x . (A^-1 b)
// and uncertainty = sqrt(|x^T A^-1 x|). It returns FailureScore if A is not
// invertible.
func (m *LinUCB) Score(x Vector) float64 {
	inv, err := Invert(m.A)
	if err != nil {
		return FailureScore
	}

	theta := inv.MulVec(m.B)
	mean := x.Dot(theta)

	ax := inv.MulVec(x)
	uncertainty := math.Sqrt(math.Abs(x.Dot(ax)))

	return mean - m.Alpha*uncertainty
}

// Train folds one observation (x, y) into the model: A += x xT, b += x*y.
func (m *LinUCB) Train(x Vector, y float64) {
	m.A.OuterAdd(x)
	m.B.AddScaled(x, y)
}
