// SPDX-FileCopyrightText: © 2023 Siemens AG
// SPDX-License-Identifier: MIT

// Package workeragent implements the worker half of the dispatch core: a
// control connection to the coordinator with retrying dialback, a periodic
// status heartbeat, an execute-listener that accepts direct connections
// from auction winners, and the bid responder that consults a Scorer.
//
// One goroutine each runs the status heartbeat, the control-socket read
// loop, and the execute-listener accept loop; execute jobs run on the
// accepting connection's goroutine.
package workeragent

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/edgeforge/swarm/internal/logging"
	"github.com/edgeforge/swarm/internal/metrics"
	"github.com/edgeforge/swarm/internal/protocol"
)

// State names the worker's position in its connection/bidding/execution
// state machine.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateRegistered
	StateIdle
	StateBidding
	StateExecuting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateRegistered:
		return "registered"
	case StateIdle:
		return "idle"
	case StateBidding:
		return "bidding"
	case StateExecuting:
		return "executing"
	default:
		return "unknown"
	}
}

// Scorer prices a bid from live metrics and a prompt. workeragent depends
// only on this interface so either of internal/bandit's bid adapters
// (SingleObjectiveAdapter, MultiObjectiveAdapter) or a test stub can back it. cpuLoad is in [0,1], ramPercent
// and battery in their usual ranges (battery -1 meaning mains powered).
type Scorer interface {
	// Score returns the four sub-scores (x=compute, y=memory, z=latency,
	// w=power) and the aggregate total used for auction ranking.
	Score(ctx context.Context, cpuLoad, ramPercent, battery float64, promptLen int) (x, y, z, w, total float64)
}

// Executor runs an awarded job and returns the result payload, or an error
// if the job could not be performed. It stands in for the out-of-scope
// neural-network runner, which is deliberately kept external to this
// package.
type Executor interface {
	Execute(ctx context.Context, data string) (result string, err error)
}

// Metrics reporter fetches the worker's current resource snapshot. It
// stands in for OS-level metric probes, kept external to this package.
type MetricsReader interface {
	CPULoad() float64
	RAMPercent() float64
	Battery() float64
	StoragePct() float64
}

// Config tunes a WorkerAgent.
type Config struct {
	ID              string
	CoordinatorAddr string
	Codec           protocol.Codec
	HasAccelerator  bool

	ReconnectDelay    time.Duration
	MaxReconnects     int // 0 means unbounded
	StatusInterval    time.Duration
	ExecuteListenAddr string // empty means an ephemeral port on all interfaces

	// PromptTimeout bounds how long SubmitPrompt waits for the
	// coordinator's winner announcement; it must comfortably exceed the
	// coordinator's own per-auction bid timeout.
	PromptTimeout time.Duration
	// ExecuteTimeout bounds the direct connection to an auction winner,
	// from dial to result.
	ExecuteTimeout time.Duration

	Scorer    Scorer
	Executor  Executor
	Metrics   MetricsReader
	Telemetry *metrics.Worker
}

// DefaultConfig fills in the standard timing: 5s reconnect delay,
// unbounded retries, and a 30s status cadence.
func DefaultConfig(id, coordinatorAddr string) Config {
	return Config{
		ID:              id,
		CoordinatorAddr: coordinatorAddr,
		Codec:           protocol.JSONCodec{},
		ReconnectDelay:  5 * time.Second,
		StatusInterval:  30 * time.Second,
		PromptTimeout:   10 * time.Second,
		ExecuteTimeout:  60 * time.Second,
	}
}

// WorkerAgent drives one worker's connection lifecycle.
type WorkerAgent struct {
	cfg Config
	log zerolog.Logger

	mu              sync.Mutex
	state           State
	acceleratorIdle bool
	execAddr        protocol.Endpoint
	ctrl            *protocol.Stream

	// promptMu serializes SubmitPrompt callers; promptCh is the rendezvous
	// the control read loop delivers the coordinator's winner announcement
	// through, the same single-slot shape registry.Slot uses for bids.
	promptMu sync.Mutex
	promptCh chan protocol.Message
}

// New returns a WorkerAgent ready for Run.
func New(cfg Config) *WorkerAgent {
	if cfg.Codec == nil {
		cfg.Codec = protocol.JSONCodec{}
	}
	return &WorkerAgent{
		cfg:             cfg,
		log:             logging.Component("worker", cfg.ID),
		state:           StateDisconnected,
		acceleratorIdle: true,
		promptCh:        make(chan protocol.Message, 1),
	}
}

func (a *WorkerAgent) setState(s State) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()
}

// State returns the worker's current state machine position.
func (a *WorkerAgent) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Run starts the execute-listener, then loops connecting to the
// coordinator with the configured backoff until ctx is canceled. Each
// successful connection is handled until its read loop ends (a
// disconnection, dropping the worker back to disconnected), after which the
// worker reconnects.
func (a *WorkerAgent) Run(ctx context.Context) error {
	execLn, err := net.Listen("tcp", a.cfg.ExecuteListenAddr)
	if err != nil {
		return fmt.Errorf("workeragent: bind execute listener: %w", err)
	}
	a.execAddr = listenerEndpoint(execLn)
	a.log.Info().Str("addr", a.execAddr.IP).Int("port", a.execAddr.Port).Msg("execute listener bound")

	go a.acceptExecuteConns(ctx, execLn)
	go func() {
		<-ctx.Done()
		execLn.Close()
	}()

	attempts := 0
	for {
		if ctx.Err() != nil {
			return nil
		}

		a.setState(StateConnecting)
		conn, err := net.Dial("tcp", a.cfg.CoordinatorAddr)
		if err != nil {
			attempts++
			if a.cfg.Telemetry != nil {
				a.cfg.Telemetry.Reconnects.Inc()
			}
			a.log.Warn().Err(err).Int("attempt", attempts).Msg("dial coordinator failed")
			if a.cfg.MaxReconnects > 0 && attempts >= a.cfg.MaxReconnects {
				return fmt.Errorf("workeragent: exceeded %d reconnect attempts: %w", a.cfg.MaxReconnects, err)
			}
			if !sleepCtx(ctx, a.cfg.ReconnectDelay) {
				return nil
			}
			continue
		}
		attempts = 0

		a.handleCoordinatorConn(ctx, conn)
		a.setState(StateDisconnected)
	}
}

// handleCoordinatorConn registers, starts the status heartbeat, and drains
// inbound messages until the connection fails.
func (a *WorkerAgent) handleCoordinatorConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	// Closing the connection on cancellation unblocks the Recv calls below,
	// so Run can return once ctx is canceled.
	stopClose := context.AfterFunc(ctx, func() { conn.Close() })
	defer stopClose()
	stream := protocol.NewStream(conn, a.cfg.Codec)

	reg := protocol.Message{
		Type:       protocol.TypeRegClient,
		AgentID:    a.cfg.ID,
		HasAccel:   a.cfg.HasAccelerator,
		AccelIdle:  a.acceleratorReady(),
		TargetIP:   a.execAddr.IP,
		TargetPort: a.execAddr.Port,
	}
	if err := stream.Send(reg); err != nil {
		a.log.Warn().Err(err).Msg("failed to send registration")
		return
	}
	ack, err := stream.Recv()
	if err != nil || ack.Status != protocol.StatusSuccess {
		a.log.Warn().Err(err).Msg("registration rejected")
		return
	}
	a.setState(StateRegistered)
	a.log.Info().Msg("registered with coordinator")

	a.mu.Lock()
	a.ctrl = stream
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		a.ctrl = nil
		a.mu.Unlock()
	}()

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go a.postStatus(connCtx, stream)

	a.setState(StateIdle)
	for {
		m, err := stream.Recv()
		if err != nil {
			a.log.Info().Err(err).Msg("control connection lost")
			return
		}

		switch m.Type {
		case protocol.TypeSLMBidReq:
			a.handleBidRequest(ctx, stream, m)
		case protocol.TypeAck:
			// The winner announcement for this worker's own in-flight
			// prompt; drop it if no SubmitPrompt is waiting.
			select {
			case a.promptCh <- m:
			default:
			}
		default:
			a.log.Warn().Str("type", string(m.Type)).Msg("unexpected message on control connection")
		}
	}
}

// handleBidRequest transitions IDLE -> BIDDING -> IDLE synchronously: it
// scores the prompt and replies on the same connection: a worker that
// cannot or will not serve replies with a non-SUCCESS status, but it still
// must reply so the coordinator's wait can exit early.
func (a *WorkerAgent) handleBidRequest(ctx context.Context, stream *protocol.Stream, m protocol.Message) {
	a.setState(StateBidding)
	defer a.setState(StateIdle)

	if a.cfg.Scorer == nil {
		stream.Send(protocol.Message{Type: protocol.TypeSLMBidResp, AgentID: a.cfg.ID, Status: protocol.StatusUnavailable})
		return
	}

	var cpu, ram, battery float64
	if a.cfg.Metrics != nil {
		cpu = a.cfg.Metrics.CPULoad()
		ram = a.cfg.Metrics.RAMPercent()
		battery = a.cfg.Metrics.Battery()
	}
	bx, by, bz, bw, total := a.cfg.Scorer.Score(ctx, cpu, ram, battery, len(m.Data))

	resp := protocol.Message{
		Type:    protocol.TypeSLMBidResp,
		AgentID: a.cfg.ID,
		Status:  protocol.StatusSuccess,
	}
	resp = resp.WithBid(protocol.Bid{
		X: bx, Y: by, Z: bz, W: bw, Total: total,
		Endpoint: a.execAddr,
	})
	if err := stream.Send(resp); err != nil {
		a.log.Warn().Err(err).Msg("failed to send bid response")
		return
	}
	if a.cfg.Telemetry != nil {
		a.cfg.Telemetry.BidsSubmitted.WithLabelValues("success").Inc()
	}
}

// ErrNotConnected is returned by SubmitPrompt while the worker has no live
// control connection to the coordinator.
var ErrNotConnected = errors.New("workeragent: not connected to coordinator")

// ErrUnavailable is returned by SubmitPrompt when the coordinator's
// auction produced no winner (ERR_UNAVAILABLE).
var ErrUnavailable = errors.New("workeragent: no worker available for prompt")

// SubmitPrompt makes this worker the requester in one auction: it sends
// the prompt to the coordinator on the control connection, waits for the
// winner announcement, then dials the winner's execute endpoint directly
// and returns the job's result payload. At most one prompt per agent is in
// flight at a time; concurrent callers serialize.
func (a *WorkerAgent) SubmitPrompt(ctx context.Context, prompt string) (string, error) {
	a.promptMu.Lock()
	defer a.promptMu.Unlock()

	a.mu.Lock()
	stream := a.ctrl
	a.mu.Unlock()
	if stream == nil {
		return "", ErrNotConnected
	}

	// Discard a stale announcement a previous, timed-out submission never
	// collected.
	select {
	case <-a.promptCh:
	default:
	}

	err := stream.Send(protocol.Message{
		Type:    protocol.TypeSLMPrompt,
		AgentID: a.cfg.ID,
		Data:    prompt,
	})
	if err != nil {
		return "", fmt.Errorf("workeragent: submit prompt: %w", err)
	}

	timeout := a.cfg.PromptTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var resp protocol.Message
	select {
	case resp = <-a.promptCh:
	case <-timer.C:
		return "", fmt.Errorf("workeragent: no winner announcement within %s", timeout)
	case <-ctx.Done():
		return "", ctx.Err()
	}

	if resp.Status != protocol.StatusSuccess {
		return "", ErrUnavailable
	}

	winner := protocol.Endpoint{IP: resp.TargetIP, Port: resp.TargetPort}
	a.log.Info().Str("winner_ip", winner.IP).Int("winner_port", winner.Port).Msg("auction won, dispatching job")
	return a.executeOnWinner(ctx, winner, prompt)
}

// executeOnWinner opens a direct connection to the winning worker's
// execute-listener, sends the job, and reads the single result message
// back on the same connection.
func (a *WorkerAgent) executeOnWinner(ctx context.Context, winner protocol.Endpoint, prompt string) (string, error) {
	timeout := a.cfg.ExecuteTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(winner.IP, strconv.Itoa(winner.Port)))
	if err != nil {
		return "", fmt.Errorf("workeragent: dial winner %s:%d: %w", winner.IP, winner.Port, err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(timeout))

	stream := protocol.NewStream(conn, a.cfg.Codec)
	err = stream.Send(protocol.Message{
		Type:    protocol.TypeSLMExecute,
		AgentID: a.cfg.ID,
		Data:    prompt,
	})
	if err != nil {
		return "", fmt.Errorf("workeragent: send execute: %w", err)
	}

	result, err := stream.Recv()
	if err != nil {
		return "", fmt.Errorf("workeragent: read result: %w", err)
	}
	if result.Type != protocol.TypeSLMResult || result.Status != protocol.StatusSuccess {
		return "", fmt.Errorf("workeragent: winner reported failure (status %d): %s", result.Status, result.Data)
	}
	return result.Data, nil
}

// acceleratorReady reports whether this worker's accelerator is currently
// idle, surfaced in registration and status messages.
func (a *WorkerAgent) acceleratorReady() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.acceleratorIdle
}

func (a *WorkerAgent) setAcceleratorBusy(busy bool) {
	a.mu.Lock()
	a.acceleratorIdle = !busy
	a.mu.Unlock()
}

// postStatus sends a STATUS report every StatusInterval until ctx is
// canceled.
func (a *WorkerAgent) postStatus(ctx context.Context, stream *protocol.Stream) {
	interval := a.cfg.StatusInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			var cpu, ram, battery, storage float64
			if a.cfg.Metrics != nil {
				cpu = a.cfg.Metrics.CPULoad()
				ram = a.cfg.Metrics.RAMPercent()
				battery = a.cfg.Metrics.Battery()
				storage = a.cfg.Metrics.StoragePct()
			}
			m := protocol.Message{
				Type:      protocol.TypeStatus,
				AgentID:   a.cfg.ID,
				HasAccel:  a.cfg.HasAccelerator,
				AccelIdle: a.acceleratorReady(),
				Data:      fmt.Sprintf("%f,%f,%f,%f", cpu, ram, battery, storage),
			}
			if err := stream.Send(m); err != nil {
				a.log.Warn().Err(err).Msg("failed to send status report")
				return
			}
		}
	}
}

// acceptExecuteConns runs the execute-listener's accept loop: each direct
// connection from a requester carries exactly one EXECUTE message,
// answered synchronously with one RESULT, then the connection is closed
// (the execute path).
func (a *WorkerAgent) acceptExecuteConns(ctx context.Context, ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				if ctx.Err() != nil {
					return
				}
				a.log.Warn().Err(err).Msg("execute listener accept failed")
				continue
			}
		}
		go a.handleExecuteConn(ctx, conn)
	}
}

func (a *WorkerAgent) handleExecuteConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	stream := protocol.NewStream(conn, a.cfg.Codec)

	m, err := stream.Recv()
	if err != nil {
		return
	}
	if m.Type != protocol.TypeSLMExecute {
		stream.Send(protocol.Ack(protocol.StatusInvalid))
		return
	}

	a.setState(StateExecuting)
	a.setAcceleratorBusy(true)
	start := time.Now()

	var result protocol.Message
	if a.cfg.Executor == nil {
		result = protocol.Message{Type: protocol.TypeSLMResult, AgentID: a.cfg.ID, Status: protocol.StatusUnavailable}
	} else {
		payload, err := a.cfg.Executor.Execute(ctx, m.Data)
		if err != nil {
			a.log.Warn().Err(err).Msg("execution failed")
			result = protocol.Message{Type: protocol.TypeSLMResult, AgentID: a.cfg.ID, Status: protocol.StatusInvalid, Data: err.Error()}
		} else {
			result = protocol.Message{Type: protocol.TypeSLMResult, AgentID: a.cfg.ID, Status: protocol.StatusSuccess, Data: payload}
		}
	}

	a.setAcceleratorBusy(false)
	a.setState(StateIdle)

	if a.cfg.Telemetry != nil {
		outcome := "success"
		if result.Status != protocol.StatusSuccess {
			outcome = "error"
		}
		a.cfg.Telemetry.JobsExecuted.WithLabelValues(outcome).Inc()
		a.cfg.Telemetry.JobDuration.Observe(time.Since(start).Seconds())
	}

	stream.Send(result)
}

// listenerEndpoint extracts the (ip, port) a TCP listener is bound to. An
// unspecified bind address (":0", all interfaces) is reported as 0.0.0.0
// verbatim: the actual reachable IP is whatever the coordinator observes as
// this connection's remote address, not something the listener itself
// knows, so the registration's TargetIP is advisory only in that case.
func listenerEndpoint(ln net.Listener) protocol.Endpoint {
	addr := ln.Addr().(*net.TCPAddr)
	ip := addr.IP.String()
	if addr.IP.IsUnspecified() {
		ip = "0.0.0.0"
	}
	return protocol.Endpoint{IP: ip, Port: addr.Port}
}

// sleepCtx sleeps for d or returns early (false) if ctx is canceled first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
