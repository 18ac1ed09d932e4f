// SPDX-FileCopyrightText: © 2023 Siemens AG
// SPDX-License-Identifier: MIT

package protocol

import (
	"fmt"
	"io"
	"sync"
)

// Stream binds a Codec to a single connection, serializing writes (the
// underlying net.Conn is not safe for concurrent writers) and exposing a
// blocking Recv for the connection's owning goroutine.
type Stream struct {
	codec   Codec
	w       io.Writer
	scanner Scanner

	mu sync.Mutex
}

// NewStream wraps rw with the given codec. Reads and writes may be issued
// from different goroutines; concurrent writers are serialized, but Recv
// itself is not safe to call from more than one goroutine at a time since a
// Message scanner owns read-side framing state.
func NewStream(rw io.ReadWriter, codec Codec) *Stream {
	return &Stream{
		codec:   codec,
		w:       rw,
		scanner: codec.NewScanner(rw),
	}
}

// Send writes one Message, synchronized against concurrent Send calls.
func (s *Stream) Send(m Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.codec.WriteMessage(s.w, m); err != nil {
		return fmt.Errorf("protocol: send %s: %w", m.Type, err)
	}
	return nil
}

// Recv blocks until the next complete Message has been read, the peer
// closes the connection (io.EOF), or the stream is otherwise unreadable.
func (s *Stream) Recv() (Message, error) {
	return s.scanner.Next()
}
