// SPDX-FileCopyrightText: © 2023 Siemens AG
// SPDX-License-Identifier: MIT

package bandit

import (
	"context"
	"sync"
)

// Weights the four sub-scores of a bid are combined with: compute,
// memory, and power headroom come from live telemetry, latency from the
// learned model.
const (
	weightCompute = 0.3
	weightMemory  = 0.2
	weightLatency = 0.3
	weightPower   = 0.2
)

// headroom maps a [0,1] utilization fraction to a [0,1] desirability score
// (less utilized is more attractive), clamped to the unit interval.
func headroom(utilization float64) float64 {
	h := 1 - utilization
	if h < 0 {
		return 0
	}
	if h > 1 {
		return 1
	}
	return h
}

// batteryHeadroom maps a battery percentage in [-1,100] (-1 meaning mains
// powered) to a [0,1] desirability score. Mains power is treated as full
// headroom.
func batteryHeadroom(battery float64) float64 {
	if battery < 0 {
		return 1
	}
	return headroom(1 - battery/100)
}

// latencyDesirability folds a lower-confidence-bound latency score (lower
// is more attractive, unbounded above) into a [0,1] desirability figure
// via a reciprocal transform, so it composes with the other three
// headroom-style sub-scores under the same weighted-sum convention.
func latencyDesirability(score float64) float64 {
	if score < 0 {
		score = 0
	}
	return 1 / (1 + score)
}

// combinedTotal folds the four sub-scores into one aggregate bid.
func combinedTotal(x, y, z, w float64) float64 {
	return x*weightCompute + y*weightMemory + z*weightLatency + w*weightPower
}

// SingleObjectiveAdapter prices bids from a LinUCB model: the model scores
// a single latency-like outcome, which becomes the z (latency) sub-score;
// x, y, and w come directly from the worker's live CPU/RAM/battery
// headroom. Training observations are folded into the model under a
// mutex so concurrent bid scoring and training never race the model's
// internal matrices.
type SingleObjectiveAdapter struct {
	mu    sync.Mutex
	Model *LinUCB
}

// NewSingleObjectiveAdapter wraps an existing model.
func NewSingleObjectiveAdapter(m *LinUCB) *SingleObjectiveAdapter {
	return &SingleObjectiveAdapter{Model: m}
}

// Score implements workeragent.Scorer.
func (a *SingleObjectiveAdapter) Score(_ context.Context, cpuLoad, ramPercent, battery float64, promptLen int) (x, y, z, w, total float64) {
	x = headroom(cpuLoad)
	y = headroom(ramPercent / 100)
	w = batteryHeadroom(battery)

	a.mu.Lock()
	raw := a.Model.Score(Features(cpuLoad*100, ramPercent, promptLen))
	a.mu.Unlock()

	if raw >= FailureScore {
		z = 0
	} else {
		z = latencyDesirability(raw)
	}
	total = combinedTotal(x, y, z, w)
	return
}

// Train folds an observed latency into the underlying model.
func (a *SingleObjectiveAdapter) Train(cpuLoad, ramPercent float64, promptLen int, observedLatency float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Model.Train(Features(cpuLoad*100, ramPercent, promptLen), observedLatency)
}

// MultiObjectiveAdapter prices bids from a MultiLinUCB model, using an
// externally predicted output-token count (via PredictTokens) to
// compose the time-to-first-token and tokens/sec predictions into a total
// latency score before folding it into the z sub-score.
type MultiObjectiveAdapter struct {
	mu            sync.Mutex
	Model         *MultiLinUCB
	PredictTokens func(ctx context.Context, prompt string) float64
	prompt        string
}

// NewMultiObjectiveAdapter wraps an existing model. predictTokens may be
// nil, in which case DefaultPredictedTokens is always used.
func NewMultiObjectiveAdapter(m *MultiLinUCB, predictTokens func(ctx context.Context, prompt string) float64) *MultiObjectiveAdapter {
	return &MultiObjectiveAdapter{Model: m, PredictTokens: predictTokens}
}

// SetPrompt records the prompt text Score should hand to PredictTokens.
// Score's signature (shared with SingleObjectiveAdapter) carries only
// promptLen, not the text itself, since most adapters never need it; the
// multi-objective variant is the one exception, so it is threaded through
// this narrow side channel rather than widening the shared interface.
func (a *MultiObjectiveAdapter) SetPrompt(prompt string) {
	a.mu.Lock()
	a.prompt = prompt
	a.mu.Unlock()
}

// Score implements workeragent.Scorer.
func (a *MultiObjectiveAdapter) Score(ctx context.Context, cpuLoad, ramPercent, battery float64, promptLen int) (x, y, z, w, total float64) {
	x = headroom(cpuLoad)
	y = headroom(ramPercent / 100)
	w = batteryHeadroom(battery)

	tokens := DefaultPredictedTokens
	a.mu.Lock()
	prompt := a.prompt
	model := a.Model
	a.mu.Unlock()
	if a.PredictTokens != nil {
		tokens = a.PredictTokens(ctx, prompt)
	}

	a.mu.Lock()
	raw := model.Score(Features(cpuLoad*100, ramPercent, promptLen), tokens)
	a.mu.Unlock()

	if raw >= MultiFailureScore {
		z = 0
	} else {
		z = latencyDesirability(raw)
	}
	total = combinedTotal(x, y, z, w)
	return
}

// Train folds an observed (ttft, tokens/sec) pair into the underlying
// model.
func (a *MultiObjectiveAdapter) Train(cpuLoad, ramPercent float64, promptLen int, observedTTFT, observedSpeed float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Model.Train(Features(cpuLoad*100, ramPercent, promptLen), observedTTFT, observedSpeed)
}
