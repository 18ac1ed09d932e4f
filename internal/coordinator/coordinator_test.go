// SPDX-FileCopyrightText: © 2023 Siemens AG
// SPDX-License-Identifier: MIT

package coordinator

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/edgeforge/swarm/internal/protocol"
)

// fakeWorker dials addr, registers as id, and runs a background loop that
// auto-answers any SLM_BID_REQUEST with a bid of the given total (unless
// respond is false, in which case bid requests are silently dropped, like
// a worker that never replies). Every other message received is forwarded
// on the returned channel, in particular the coordinator's ack and the
// PromptResponse for whichever connection sent the prompt.
func fakeWorker(t *testing.T, addr, id string, hasAccel, accelIdle bool, execPort int, bidTotal float64, respond bool) (*protocol.Stream, chan protocol.Message) {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	stream := protocol.NewStream(conn, protocol.JSONCodec{})
	require.NoError(t, stream.Send(protocol.Message{
		Type:       protocol.TypeRegClient,
		AgentID:    id,
		HasAccel:   hasAccel,
		AccelIdle:  accelIdle,
		TargetIP:   "127.0.0.1",
		TargetPort: execPort,
	}))
	ack, err := stream.Recv()
	require.NoError(t, err)
	require.Equal(t, protocol.StatusSuccess, ack.Status)

	other := make(chan protocol.Message, 16)
	go func() {
		for {
			m, err := stream.Recv()
			if err != nil {
				close(other)
				return
			}
			if m.Type == protocol.TypeSLMBidReq {
				if respond {
					resp := protocol.Message{Type: protocol.TypeSLMBidResp, AgentID: id, Status: protocol.StatusSuccess}
					resp = resp.WithBid(protocol.Bid{Total: bidTotal, Endpoint: protocol.Endpoint{IP: "127.0.0.1", Port: execPort}})
					stream.Send(resp)
				}
				continue
			}
			other <- m
		}
	}()
	return stream, other
}

func startCoordinator(t *testing.T, opts ...func(*Config)) string {
	t.Helper()
	cfg := DefaultConfig("127.0.0.1:0")
	for _, opt := range opts {
		opt(&cfg)
	}
	c := New(cfg)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()
	c.cfg.ListenAddr = addr

	ctx, cancel := context.WithCancel(context.Background())
	completed := make(chan struct{})
	go c.Start(ctx, completed)
	t.Cleanup(func() {
		cancel()
		<-completed
	})

	for i := 0; i < 50; i++ {
		if conn, err := net.Dial("tcp", addr); err == nil {
			conn.Close()
			return addr
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("coordinator never started listening")
	return ""
}

func recvWithin(t *testing.T, ch chan protocol.Message, d time.Duration) protocol.Message {
	t.Helper()
	select {
	case m, ok := <-ch:
		require.True(t, ok, "channel closed before a message arrived")
		return m
	case <-time.After(d):
		t.Fatal("timed out waiting for message")
		return protocol.Message{}
	}
}

func TestRegistrationAck(t *testing.T) {
	addr := startCoordinator(t)
	fakeWorker(t, addr, "w1", false, false, 9001, 0, true)
}

func TestFastPathSkipsAuctionBroadcast(t *testing.T) {
	addr := startCoordinator(t)
	_, bMsgs := fakeWorker(t, addr, "b", false, false, 9002, 0, true)
	aStream, aMsgs := fakeWorker(t, addr, "a", true, true, 9003, 0, true)

	require.NoError(t, aStream.Send(protocol.Message{
		Type:    protocol.TypeSLMPrompt,
		AgentID: "a",
		Data:    "hi",
	}))

	resp := recvWithin(t, aMsgs, time.Second)
	require.Equal(t, protocol.StatusSuccess, resp.Status)
	require.Equal(t, 9003, resp.TargetPort)

	select {
	case m := <-bMsgs:
		t.Fatalf("fast path must not solicit bids, but worker b received %v", m.Type)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestAuctionPathAwardsHighestBid(t *testing.T) {
	addr := startCoordinator(t, func(c *Config) { c.AuctionConfig.BidTimeout = 500 * time.Millisecond })
	reqStream, reqMsgs := fakeWorker(t, addr, "req", false, false, 9010, 0.1, true)
	_, _ = fakeWorker(t, addr, "bidder", false, false, 9011, 0.9, true)
	_, _ = fakeWorker(t, addr, "quiet", false, false, 9012, 0.5, false)

	require.NoError(t, reqStream.Send(protocol.Message{Type: protocol.TypeSLMPrompt, AgentID: "req", Data: "hi"}))

	resp := recvWithin(t, reqMsgs, 2*time.Second)
	require.Equal(t, protocol.StatusSuccess, resp.Status)
	require.Equal(t, 9011, resp.TargetPort, "bidder's 0.9 total must beat req's own 0.1 and quiet's non-reply")
}

func TestAuctionPathTieBreaksByRegistrationOrder(t *testing.T) {
	addr := startCoordinator(t)
	_, _ = fakeWorker(t, addr, "a", false, false, 9030, 0.4, true)
	bStream, bMsgs := fakeWorker(t, addr, "b", false, false, 9031, 0.4, true)
	_, _ = fakeWorker(t, addr, "c", false, false, 9032, 0.35, true)

	require.NoError(t, bStream.Send(protocol.Message{Type: protocol.TypeSLMPrompt, AgentID: "b", Data: "hi"}))

	resp := recvWithin(t, bMsgs, 2*time.Second)
	require.Equal(t, protocol.StatusSuccess, resp.Status)
	require.Equal(t, 9030, resp.TargetPort, "a registered first and must win the 0.40/0.40 tie over b")
}

func TestPromptWithNoResponsesYieldsUnavailable(t *testing.T) {
	addr := startCoordinator(t, func(c *Config) { c.AuctionConfig.BidTimeout = 100 * time.Millisecond })
	reqStream, reqMsgs := fakeWorker(t, addr, "lonely", false, false, 9020, 0, false)

	require.NoError(t, reqStream.Send(protocol.Message{Type: protocol.TypeSLMPrompt, AgentID: "lonely", Data: "hi"}))

	resp := recvWithin(t, reqMsgs, time.Second)
	require.Equal(t, protocol.StatusUnavailable, resp.Status)
}
