// SPDX-FileCopyrightText: © 2023 Siemens AG
// SPDX-License-Identifier: MIT

package protocol

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Codec serializes and deserializes Messages over a stream connection. Two
// implementations exist, JSONCodec and PipeCodec; either is acceptable, per
// the wire format, as long as a single deployment picks one.
type Codec interface {
	// WriteMessage writes one complete, self-delimiting encoding of m to w.
	WriteMessage(w io.Writer, m Message) error
	// NewScanner returns a Scanner that yields successive Messages read
	// from r, buffering partial reads across calls.
	NewScanner(r io.Reader) Scanner
}

// Scanner yields Messages one at a time from a byte stream. Next blocks
// until a complete message is available, the stream ends (io.EOF), or a
// framing error occurs.
type Scanner interface {
	Next() (Message, error)
}

// ---- JSON codec -----------------------------------------------------------

// JSONCodec serializes a Message as a single UTF-8 JSON object; the stream
// is simply the concatenation of successive objects. The companion Scanner
// is a finite-state brace scanner that is aware of quoted strings and
// backslash escapes, so a `}` inside a string value never closes the
// object prematurely.
type JSONCodec struct{}

func (JSONCodec) WriteMessage(w io.Writer, m Message) error {
	b, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("protocol: marshal json message: %w", err)
	}
	_, err = w.Write(b)
	return err
}

func (JSONCodec) NewScanner(r io.Reader) Scanner {
	return &jsonScanner{r: bufio.NewReader(r)}
}

type jsonScanner struct {
	r   *bufio.Reader
	buf bytes.Buffer
}

// Next scans forward, byte by byte, tracking brace depth and string/escape
// state until a complete top-level JSON object has been accumulated, then
// unmarshals it. Bytes read past the closing brace are never consumed by
// this call; bufio.Reader's internal buffering is what carries them to the
// next Next call, so no object is ever partially consumed.
func (s *jsonScanner) Next() (Message, error) {
	s.buf.Reset()

	depth := 0
	inString := false
	escaped := false
	started := false

	for {
		b, err := s.r.ReadByte()
		if err != nil {
			return Message{}, err
		}

		// Skip whitespace between objects before the first brace is seen.
		if !started {
			switch b {
			case ' ', '\t', '\n', '\r':
				continue
			case '{':
				started = true
			default:
				return Message{}, fmt.Errorf("protocol: unexpected byte %q before object start", b)
			}
		}

		s.buf.WriteByte(b)

		if inString {
			switch {
			case escaped:
				escaped = false
			case b == '\\':
				escaped = true
			case b == '"':
				inString = false
			}
			continue
		}

		switch b {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				var m Message
				if err := json.Unmarshal(s.buf.Bytes(), &m); err != nil {
					return Message{}, fmt.Errorf("protocol: unmarshal json message: %w", err)
				}
				return m, nil
			}
		}
	}
}

// ---- Pipe-delimited codec ---------------------------------------------

// PipeCodec serializes a Message as
//
//	type|status|sender|has_npu|npu_free|bid_x|bid_y|bid_z|bid_w|bid_total|target_ip|target_port|data
//
// preceded by a 4-byte host-order length prefix. data is the last field and
// may itself contain '|'; every other field is assumed not to.
type PipeCodec struct{}

var pipeTypeOrder = []Type{
	TypeAck, TypeRegClient, TypeStatus, TypeSLMPrompt, TypeSLMBidReq,
	TypeSLMBidResp, TypeSLMExecute, TypeSLMResult, TypeTask, TypeBidRequest,
	TypeBid, TypeResult, TypeRegister,
}

func typeToCode(t Type) int {
	for i, candidate := range pipeTypeOrder {
		if candidate == t {
			return i
		}
	}
	return -1
}

func codeToType(code int) Type {
	if code < 0 || code >= len(pipeTypeOrder) {
		return TypeAck
	}
	return pipeTypeOrder[code]
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (PipeCodec) WriteMessage(w io.Writer, m Message) error {
	fields := []string{
		strconv.Itoa(typeToCode(m.Type)),
		strconv.Itoa(int(m.Status)),
		m.AgentID,
		strconv.Itoa(boolToInt(m.HasAccel)),
		strconv.Itoa(boolToInt(m.AccelIdle)),
		strconv.FormatFloat(m.BidX, 'f', -1, 64),
		strconv.FormatFloat(m.BidY, 'f', -1, 64),
		strconv.FormatFloat(m.BidZ, 'f', -1, 64),
		strconv.FormatFloat(m.BidW, 'f', -1, 64),
		strconv.FormatFloat(m.BidTotal, 'f', -1, 64),
		m.TargetIP,
		strconv.Itoa(m.TargetPort),
		m.Data,
	}
	payload := []byte(strings.Join(fields, "|"))

	var lenBuf [4]byte
	binary.NativeEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("protocol: write pipe length prefix: %w", err)
	}
	_, err := w.Write(payload)
	return err
}

func (PipeCodec) NewScanner(r io.Reader) Scanner {
	return &pipeScanner{r: bufio.NewReader(r)}
}

type pipeScanner struct {
	r *bufio.Reader
}

func (s *pipeScanner) Next() (Message, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(s.r, lenBuf[:]); err != nil {
		return Message{}, err
	}
	n := binary.NativeEndian.Uint32(lenBuf[:])
	if n == 0 || n > 1<<24 {
		return Message{}, fmt.Errorf("protocol: implausible pipe frame length %d", n)
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(s.r, payload); err != nil {
		return Message{}, err
	}

	return parsePipeMessage(string(payload)), nil
}

// parsePipeMessage splits the first 12 fields on '|' and treats everything
// remaining as the data field, so that '|' inside data is preserved.
func parsePipeMessage(s string) Message {
	var m Message
	rest := s
	for field := 0; field < 13; field++ {
		var tok string
		if field == 12 {
			tok = rest
		} else {
			i := strings.IndexByte(rest, '|')
			if i < 0 {
				tok = rest
				rest = ""
			} else {
				tok = rest[:i]
				rest = rest[i+1:]
			}
		}

		switch field {
		case 0:
			if code, err := strconv.Atoi(tok); err == nil {
				m.Type = codeToType(code)
			}
		case 1:
			if v, err := strconv.Atoi(tok); err == nil {
				m.Status = Status(v)
			}
		case 2:
			m.AgentID = tok
		case 3:
			v, _ := strconv.Atoi(tok)
			m.HasAccel = v != 0
		case 4:
			v, _ := strconv.Atoi(tok)
			m.AccelIdle = v != 0
		case 5:
			m.BidX, _ = strconv.ParseFloat(tok, 64)
		case 6:
			m.BidY, _ = strconv.ParseFloat(tok, 64)
		case 7:
			m.BidZ, _ = strconv.ParseFloat(tok, 64)
		case 8:
			m.BidW, _ = strconv.ParseFloat(tok, 64)
		case 9:
			m.BidTotal, _ = strconv.ParseFloat(tok, 64)
		case 10:
			m.TargetIP = tok
		case 11:
			m.TargetPort, _ = strconv.Atoi(tok)
		case 12:
			m.Data = tok
		}

		if rest == "" && field < 12 {
			break
		}
	}
	return m
}
