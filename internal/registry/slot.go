// SPDX-FileCopyrightText: © 2023 Siemens AG
// SPDX-License-Identifier: MIT

package registry

import (
	"context"
	"errors"
	"time"

	"github.com/edgeforge/swarm/internal/protocol"
)

// ErrSlotTimeout is returned by Await when the deadline elapses before a
// bid arrives.
var ErrSlotTimeout = errors.New("registry: bid slot timed out")

// Slot is a per-worker rendezvous point for exactly one outstanding bid
// request at a time: a single-slot bounded channel pairing the connection
// read loop (producer of bid responses) with the auction goroutine
// (consumer) under an absolute deadline.
type Slot struct {
	ch chan protocol.Message
}

// NewSlot returns an idle Slot, ready to be armed.
func NewSlot() *Slot {
	return &Slot{ch: make(chan protocol.Message, 1)}
}

// Arm prepares the slot to receive exactly one bid, discarding any stale
// response still buffered from an earlier solicitation whose deadline
// expired before the worker answered. A bid collected after its auction's
// deadline is dropped here rather than mistaken for the new auction's
// answer.
func (s *Slot) Arm() {
	select {
	case <-s.ch:
	default:
	}
}

// Fulfill delivers a bid response to whoever is waiting in Await. It is
// safe to call even if nobody is waiting, or if the slot was never armed;
// in either case the message is buffered until the next Arm or Await.
func (s *Slot) Fulfill(m protocol.Message) {
	select {
	case s.ch <- m:
	default:
		// A previous fulfillment is still unread; drop the stale one
		// rather than block the caller (typically the connection's
		// read loop).
		select {
		case <-s.ch:
		default:
		}
		s.ch <- m
	}
}

// Await blocks until a bid arrives, the deadline passes, or ctx is
// canceled, whichever comes first.
func (s *Slot) Await(ctx context.Context, deadline time.Time) (protocol.Message, error) {
	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()

	select {
	case m := <-s.ch:
		return m, nil
	case <-timer.C:
		return protocol.Message{}, ErrSlotTimeout
	case <-ctx.Done():
		return protocol.Message{}, ctx.Err()
	}
}
