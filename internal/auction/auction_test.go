// SPDX-FileCopyrightText: © 2023 Siemens AG
// SPDX-License-Identifier: MIT

package auction

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/edgeforge/swarm/internal/protocol"
	"github.com/edgeforge/swarm/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeWorker wires up a net.Pipe-backed Stream and a goroutine that
// replies to SLM_BID_REQUEST messages with a fixed total, standing in for
// a worker agent process. A second goroutine reads the coordinator side of
// the pipe and hands bid responses to the worker's slot, standing in for
// the coordinator's connection handler.
func fakeWorker(t *testing.T, id string, total float64, respond bool) *registry.Worker {
	t.Helper()
	serverConn, clientConn := net.Pipe()
	t.Cleanup(func() { serverConn.Close(); clientConn.Close() })

	local := protocol.NewStream(serverConn, protocol.JSONCodec{})
	slot := registry.NewSlot()
	go func() {
		for {
			m, err := local.Recv()
			if err != nil {
				return
			}
			if m.Type == protocol.TypeSLMBidResp {
				slot.Fulfill(m)
			}
		}
	}()

	remote := protocol.NewStream(clientConn, protocol.JSONCodec{})
	go func() {
		for {
			m, err := remote.Recv()
			if err != nil {
				return
			}
			if m.Type == protocol.TypeSLMBidReq && respond {
				resp := protocol.Message{
					Type:    protocol.TypeSLMBidResp,
					AgentID: id,
					Status:  protocol.StatusSuccess,
				}
				resp = resp.WithBid(protocol.Bid{Total: total, Endpoint: protocol.Endpoint{IP: "10.0.0.1", Port: 9000}})
				remote.Send(resp)
			}
		}
	}()

	return &registry.Worker{
		ID:     id,
		Stream: local,
		Slot:   slot,
	}
}

func TestFastPathPrefersIdleAccelerator(t *testing.T) {
	reg := registry.New()
	reg.Register(&registry.Worker{ID: "a", Slot: registry.NewSlot()})
	idle := &registry.Worker{ID: "b", HasAccelerator: true, AcceleratorIdle: true, Slot: registry.NewSlot(), Endpoint: protocol.Endpoint{IP: "1.2.3.4", Port: 1}}
	reg.Register(idle)

	res, err := Run(context.Background(), reg, DefaultConfig(), "requester", "t1", "prompt")
	require.NoError(t, err)
	assert.True(t, res.FastPath)
	assert.Equal(t, "b", res.Winner.ID)
}

func TestFullAuctionPicksHighestBid(t *testing.T) {
	reg := registry.New()
	reg.Register(fakeWorker(t, "low", 0.4, true))
	reg.Register(fakeWorker(t, "high", 0.9, true))
	reg.Register(fakeWorker(t, "mid", 0.6, true))

	res, err := Run(context.Background(), reg, Config{BidTimeout: time.Second}, "requester", "t1", "prompt")
	require.NoError(t, err)
	assert.False(t, res.FastPath)
	assert.Equal(t, "high", res.Winner.ID)
}

func TestFullAuctionFirstRegistrantWinsTie(t *testing.T) {
	reg := registry.New()
	reg.Register(fakeWorker(t, "first", 0.5, true))
	reg.Register(fakeWorker(t, "second", 0.5, true))

	res, err := Run(context.Background(), reg, Config{BidTimeout: time.Second}, "requester", "t1", "prompt")
	require.NoError(t, err)
	assert.Equal(t, "first", res.Winner.ID)
}

func TestFullAuctionNoBidsReturnsErr(t *testing.T) {
	reg := registry.New()
	reg.Register(fakeWorker(t, "silent", 0, false))

	_, err := Run(context.Background(), reg, Config{BidTimeout: 50 * time.Millisecond}, "requester", "t1", "prompt")
	assert.ErrorIs(t, err, ErrNoBids)
}

func TestFullAuctionRequesterMayWinItsOwnAuction(t *testing.T) {
	reg := registry.New()
	reg.Register(fakeWorker(t, "requester", 0.99, true))
	reg.Register(fakeWorker(t, "other", 0.3, true))

	res, err := Run(context.Background(), reg, Config{BidTimeout: time.Second}, "requester", "t1", "prompt")
	require.NoError(t, err)
	assert.Equal(t, "requester", res.Winner.ID, "a requester is free to win its own auction")
}
