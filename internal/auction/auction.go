// SPDX-FileCopyrightText: © 2023 Siemens AG
// SPDX-License-Identifier: MIT

// Package auction implements the sealed-bid worker selection algorithm: an
// idle-accelerator fast path, and a full auction that broadcasts a bid
// request to every registered worker and awards the job to the highest
// declared total.
package auction

import (
	"context"
	"errors"
	"time"

	"github.com/edgeforge/swarm/internal/protocol"
	"github.com/edgeforge/swarm/internal/registry"
)

// ErrNoBids is returned when the full auction path collects zero usable
// bids; the coordinator surfaces it to the requester as ERR_UNAVAILABLE.
var ErrNoBids = errors.New("auction: no bids received")

// DefaultBidTimeout is the deadline for collecting bid responses.
const DefaultBidTimeout = 3 * time.Second

// Config tunes the auction algorithm.
type Config struct {
	// BidTimeout bounds how long the auction collects bids: one deadline,
	// set once every solicitation has been sent, covers all workers, and a
	// bid not in by then is treated as absent.
	BidTimeout time.Duration
}

// DefaultConfig returns the coordinator's default timing.
func DefaultConfig() Config {
	return Config{BidTimeout: DefaultBidTimeout}
}

// Result is the outcome of a resolved auction.
type Result struct {
	Winner   *registry.Worker
	Endpoint protocol.Endpoint
	FastPath bool
	// Bids counts the valid SUCCESS bids collected on the full auction
	// path; zero for a fast-path award.
	Bids int
}

// Run selects a worker to service taskID, requested by requesterID with
// payload data. It first checks for an idle accelerator (the fast path);
// if none is available, it broadcasts a bid request to every registered
// worker, including the requester itself (a requester is free to win its
// own auction), and awards the job to the highest total bid. Ties break
// by registration order: a strict greater-than comparison while scanning
// in registration order means the first worker registered wins.
func Run(ctx context.Context, reg *registry.Registry, cfg Config, requesterID, taskID, data string) (Result, error) {
	if w, ok := reg.IdleAccelerator(); ok {
		return Result{Winner: w, Endpoint: w.Endpoint, FastPath: true}, nil
	}

	workers := reg.Snapshot()

	// Broadcast phase: every worker gets its solicitation before any wait
	// begins, so the whole fleet prices the prompt concurrently. A worker
	// whose send fails is excluded from this auction; its registry entry is
	// left for the read path to evict.
	var solicited []*registry.Worker
	for _, w := range workers {
		w.Slot.Arm()
		req := protocol.Message{
			Type:    protocol.TypeSLMBidReq,
			AgentID: w.ID,
			TaskID:  taskID,
			Data:    data,
		}
		if err := w.Stream.Send(req); err != nil {
			continue
		}
		solicited = append(solicited, w)
	}

	// Collection phase: one absolute deadline covers every outstanding
	// slot, so total wait is bounded by BidTimeout regardless of fleet
	// size. Non-SUCCESS replies and timeouts are dropped.
	deadline := time.Now().Add(cfg.BidTimeout)

	var (
		best         *registry.Worker
		bestEndpoint protocol.Endpoint
		bestTotal    float64
		received     int
	)
	for _, w := range solicited {
		resp, err := w.Slot.Await(ctx, deadline)
		if err != nil || resp.Status != protocol.StatusSuccess {
			continue
		}
		bid := resp.Bid()
		received++

		if best == nil || bid.Total > bestTotal {
			best = w
			bestTotal = bid.Total
			bestEndpoint = bid.Endpoint
		}
	}

	if best == nil {
		return Result{}, ErrNoBids
	}

	return Result{Winner: best, Endpoint: bestEndpoint, Bids: received}, nil
}
