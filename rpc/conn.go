// Package rpc implements the JSON-RPC 2.0 transports the server speaks:
// Content-Length framed messages over a byte stream (stdio), and the same
// payloads over WebSocket frames. The core is transport-agnostic; it only
// sees Conn.
package rpc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"go.perlls.io/perlls/lsp"
)

// Conn is a bidirectional JSON-RPC message transport. ReadMessage is
// called from a single goroutine; WriteMessage is safe for concurrent
// use.
type Conn interface {
	ReadMessage() (*lsp.Message, error)
	WriteMessage(*lsp.Message) error
	Close() error
}

// StreamConn frames messages with Content-Length headers over a byte
// stream, the LSP stdio transport.
type StreamConn struct {
	r    *bufio.Reader
	w    io.Writer
	wmu  sync.Mutex
	c    io.Closer
}

// NewStream returns a StreamConn over the given reader and writer. closer
// may be nil.
func NewStream(r io.Reader, w io.Writer, closer io.Closer) *StreamConn {
	return &StreamConn{r: bufio.NewReader(r), w: w, c: closer}
}

// ReadMessage reads one framed message. io.EOF signals an orderly end of
// the stream.
func (s *StreamConn) ReadMessage() (*lsp.Message, error) {
	contentLength := -1
	for {
		line, err := s.r.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			break
		}
		if v, ok := strings.CutPrefix(strings.ToLower(line), "content-length:"); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return nil, fmt.Errorf("bad Content-Length header %q: %w", line, err)
			}
			contentLength = n
		}
		// Content-Type is permitted and ignored.
	}
	if contentLength < 0 {
		return nil, fmt.Errorf("missing Content-Length header")
	}

	body := make([]byte, contentLength)
	if _, err := io.ReadFull(s.r, body); err != nil {
		return nil, err
	}
	var msg lsp.Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, &ParseError{Body: body, Err: err}
	}
	return &msg, nil
}

// WriteMessage frames and writes one message.
func (s *StreamConn) WriteMessage(msg *lsp.Message) error {
	if msg.JSONRPC == "" {
		msg.JSONRPC = "2.0"
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	s.wmu.Lock()
	defer s.wmu.Unlock()
	if _, err := fmt.Fprintf(s.w, "Content-Length: %d\r\n\r\n", len(data)); err != nil {
		return err
	}
	_, err = s.w.Write(data)
	return err
}

// Close closes the underlying stream when it is closable.
func (s *StreamConn) Close() error {
	if s.c != nil {
		return s.c.Close()
	}
	return nil
}

// ParseError reports a frame whose body was not valid JSON. The
// dispatcher answers it with a -32700 response instead of dying.
type ParseError struct {
	Body []byte
	Err  error
}

func (e *ParseError) Error() string { return "parse error: " + e.Err.Error() }
func (e *ParseError) Unwrap() error { return e.Err }
