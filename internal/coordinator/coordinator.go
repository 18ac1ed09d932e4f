// SPDX-FileCopyrightText: © 2023 Siemens AG
// SPDX-License-Identifier: MIT

// Package coordinator implements the TCP-facing half of the dispatch core:
// an accept loop that demultiplexes a worker's control connection into
// registration, status updates, and prompt requests, and drives the
// auction algorithm in internal/auction over the shared registry.
//
// Each connection is owned by one handler goroutine; auctions run on
// detached goroutines so the handler keeps draining inbound bid responses.
package coordinator

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/edgeforge/swarm/internal/auction"
	"github.com/edgeforge/swarm/internal/logging"
	"github.com/edgeforge/swarm/internal/metrics"
	"github.com/edgeforge/swarm/internal/protocol"
	"github.com/edgeforge/swarm/internal/registry"
)

// Config tunes a Coordinator.
type Config struct {
	// ListenAddr is the "host:port" the coordinator's single TCP port
	// binds to, e.g. ":8081".
	ListenAddr string
	// Codec selects the wire serialization; defaults to JSONCodec.
	Codec protocol.Codec
	// MaxWorkers bounds the registry; zero means unbounded.
	MaxWorkers int
	// AuctionConfig tunes the auction's bid-collection deadline.
	AuctionConfig auction.Config
	// Metrics, when non-nil, are incremented as auctions resolve.
	Metrics *metrics.Coordinator
}

// DefaultConfig returns sane defaults: JSON codec, a 100-worker cap, and
// the auction package's default 3s bid timeout.
func DefaultConfig(listenAddr string) Config {
	return Config{
		ListenAddr:    listenAddr,
		Codec:         protocol.JSONCodec{},
		MaxWorkers:    100,
		AuctionConfig: auction.DefaultConfig(),
	}
}

// Coordinator owns the worker registry and serves the single TCP port
// workers and requesters connect to.
type Coordinator struct {
	cfg Config
	reg *registry.Registry
	log zerolog.Logger
}

// New returns a Coordinator ready for Start.
func New(cfg Config) *Coordinator {
	if cfg.Codec == nil {
		cfg.Codec = protocol.JSONCodec{}
	}
	return &Coordinator{
		cfg: cfg,
		reg: registry.New(),
		log: logging.Component("coordinator", uuid.NewString()),
	}
}

// Registry exposes the live worker registry, chiefly for tests and metric
// scraping.
func (c *Coordinator) Registry() *registry.Registry { return c.reg }

// Start binds the listen address and accepts connections until ctx is
// canceled. It closes completed when the accept loop has fully drained.
func (c *Coordinator) Start(ctx context.Context, completed chan<- struct{}) error {
	defer close(completed)

	ln, err := net.Listen("tcp", c.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("coordinator: listen on %s: %w", c.cfg.ListenAddr, err)
	}
	c.log.Info().Str("addr", c.cfg.ListenAddr).Msg("coordinator listening")

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				c.log.Warn().Err(err).Msg("accept failed")
				continue
			}
		}
		go c.handleConnection(ctx, conn)
	}
}

// handleConnection owns one worker's control stream for its lifetime: it
// requires the first message to be a registration, then loops reading
// messages, routing bid responses to the armed slot and everything else
// to dispatch. A read failure removes the worker and closes the socket.
func (c *Coordinator) handleConnection(ctx context.Context, conn net.Conn) {
	stream := protocol.NewStream(conn, c.cfg.Codec)
	defer conn.Close()

	first, err := stream.Recv()
	if err != nil {
		return
	}
	if first.Type != protocol.TypeRegClient {
		stream.Send(protocol.Ack(protocol.StatusInvalid))
		return
	}

	w, err := c.register(conn, stream, first)
	if err != nil {
		c.log.Warn().Err(err).Str("agent", first.AgentID).Msg("registration rejected")
		stream.Send(protocol.Ack(protocol.StatusUnavailable))
		return
	}
	stream.Send(protocol.Ack(protocol.StatusSuccess))
	c.log.Info().Str("agent", w.ID).Bool("has_accel", w.HasAccelerator).Msg("worker registered")

	defer func() {
		c.reg.Remove(w.ID)
		if c.cfg.Metrics != nil {
			c.cfg.Metrics.RegistrySize.Set(float64(c.reg.Count()))
		}
		c.log.Info().Str("agent", w.ID).Msg("worker disconnected")
	}()

	for {
		m, err := stream.Recv()
		if err != nil {
			return
		}

		// A bid response is only meaningful while this worker's slot is
		// armed; Fulfill is harmless to call otherwise (see Slot docs).
		if m.Type == protocol.TypeSLMBidResp {
			w.Slot.Fulfill(m)
			continue
		}

		switch m.Type {
		case protocol.TypeStatus:
			c.handleStatus(w, m)
		case protocol.TypeSLMPrompt:
			go c.handlePrompt(ctx, stream, w, m)
		default:
			c.log.Warn().Str("agent", w.ID).Str("type", string(m.Type)).Msg("unexpected message type")
			stream.Send(protocol.Ack(protocol.StatusInvalid))
		}
	}
}

// register builds and inserts a Worker record from a REG_CLIENT message.
// The executor endpoint is carried on the registration
// itself (TargetIP/TargetPort) rather than fetched later via a bid-style
// sub-solicitation; an empty or unspecified (all-interfaces) TargetIP is
// replaced by the connection's observed remote IP.
func (c *Coordinator) register(conn net.Conn, stream *protocol.Stream, m protocol.Message) (*registry.Worker, error) {
	if c.cfg.MaxWorkers > 0 && c.reg.Count() >= c.cfg.MaxWorkers {
		return nil, fmt.Errorf("coordinator: registry full (max %d)", c.cfg.MaxWorkers)
	}

	host, _, _ := net.SplitHostPort(conn.RemoteAddr().String())
	ep := protocol.Endpoint{IP: m.TargetIP, Port: m.TargetPort}
	if ep.IP == "" || net.ParseIP(ep.IP).IsUnspecified() {
		ep.IP = host
	}

	w := &registry.Worker{
		ID:              m.AgentID,
		Stream:          stream,
		Endpoint:        ep,
		HasAccelerator:  m.HasAccel,
		AcceleratorIdle: m.AccelIdle,
		RegisteredAt:    time.Now(),
	}
	c.reg.Register(w)
	if c.cfg.Metrics != nil {
		c.cfg.Metrics.RegistrySize.Set(float64(c.reg.Count()))
	}
	return w, nil
}

// handleStatus applies a STATUS report to the registry; status updates
// are fire-and-forget, no response is sent.
func (c *Coordinator) handleStatus(w *registry.Worker, m protocol.Message) {
	status := parseStatusPayload(m.Data)
	c.reg.UpdateStatus(w.ID, status, m.HasAccel, m.AccelIdle)
}

// handlePrompt resolves one auction and replies to the requester on its
// own control stream: exactly one of SUCCESS or ERR_UNAVAILABLE is sent.
func (c *Coordinator) handlePrompt(ctx context.Context, requesterStream *protocol.Stream, requester *registry.Worker, m protocol.Message) {
	start := time.Now()
	taskID := uuid.NewString()

	res, err := auction.Run(ctx, c.reg, c.cfg.AuctionConfig, requester.ID, taskID, m.Data)

	if c.cfg.Metrics != nil {
		c.cfg.Metrics.AuctionDuration.Observe(time.Since(start).Seconds())
		c.cfg.Metrics.BidsReceived.Add(float64(res.Bids))
		if res.FastPath {
			c.cfg.Metrics.FastPathTotal.Inc()
		}
	}

	if err != nil {
		c.log.Warn().Err(err).Str("requester", requester.ID).Msg("auction produced no winner")
		if c.cfg.Metrics != nil {
			c.cfg.Metrics.AuctionsTotal.WithLabelValues("unavailable").Inc()
		}
		requesterStream.Send(protocol.Message{
			Type:   protocol.TypeAck,
			Status: protocol.StatusUnavailable,
		})
		return
	}

	if c.cfg.Metrics != nil {
		c.cfg.Metrics.AuctionsTotal.WithLabelValues("success").Inc()
	}
	c.log.Info().Str("requester", requester.ID).Str("winner", res.Winner.ID).Bool("fast_path", res.FastPath).Msg("auction resolved")

	requesterStream.Send(protocol.Message{
		Type:       protocol.TypeAck,
		Status:     protocol.StatusSuccess,
		TargetIP:   res.Endpoint.IP,
		TargetPort: res.Endpoint.Port,
	})
}

// parseStatusPayload decodes a STATUS message's Data field, formatted as
// "cpu,ram,battery,storage" (four comma-separated floats). Malformed
// fields default to zero rather than aborting the update, matching the
// coordinator's overall policy of never tearing down a connection over a
// malformed payload: log and discard, never tear down the connection.
func parseStatusPayload(data string) registry.Status {
	var fields [4]float64
	start := 0
	idx := 0
	for i := 0; i <= len(data) && idx < 4; i++ {
		if i == len(data) || data[i] == ',' {
			if v, err := strconv.ParseFloat(data[start:i], 64); err == nil {
				fields[idx] = v
			}
			idx++
			start = i + 1
		}
	}
	return registry.Status{
		CPULoad:    fields[0],
		RAMPercent: fields[1],
		Battery:    fields[2],
		StoragePct: fields[3],
	}
}
