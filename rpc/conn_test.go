package rpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.perlls.io/perlls/lsp"
)

func frame(body string) string {
	return fmt.Sprintf("Content-Length: %d\r\n\r\n%s", len(body), body)
}

func TestStreamReadMessage(t *testing.T) {
	t.Parallel()

	t.Run("request", func(t *testing.T) {
		t.Parallel()
		in := frame(`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`)
		conn := NewStream(strings.NewReader(in), io.Discard, nil)

		msg, err := conn.ReadMessage()
		require.NoError(t, err)
		assert.Equal(t, "initialize", msg.Method)
		require.NotNil(t, msg.ID)
		assert.Equal(t, "1", string(*msg.ID))
	})

	t.Run("case-insensitive header and content-type", func(t *testing.T) {
		t.Parallel()
		body := `{"jsonrpc":"2.0","method":"initialized"}`
		in := fmt.Sprintf("content-length: %d\r\nContent-Type: application/vscode-jsonrpc\r\n\r\n%s", len(body), body)
		conn := NewStream(strings.NewReader(in), io.Discard, nil)

		msg, err := conn.ReadMessage()
		require.NoError(t, err)
		assert.Equal(t, "initialized", msg.Method)
	})

	t.Run("missing content-length", func(t *testing.T) {
		t.Parallel()
		conn := NewStream(strings.NewReader("\r\n{}"), io.Discard, nil)
		_, err := conn.ReadMessage()
		require.Error(t, err)
	})

	t.Run("bad json surfaces as ParseError", func(t *testing.T) {
		t.Parallel()
		conn := NewStream(strings.NewReader(frame("{not json")), io.Discard, nil)
		_, err := conn.ReadMessage()
		var perr *ParseError
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, "{not json", string(perr.Body))
	})

	t.Run("eof", func(t *testing.T) {
		t.Parallel()
		conn := NewStream(strings.NewReader(""), io.Discard, nil)
		_, err := conn.ReadMessage()
		require.ErrorIs(t, err, io.EOF)
	})
}

func TestStreamWriteMessage(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	conn := NewStream(strings.NewReader(""), &out, nil)

	id := json.RawMessage("7")
	result := json.RawMessage(`{"ok":true}`)
	require.NoError(t, conn.WriteMessage(&lsp.Message{ID: &id, Result: result}))

	written := out.String()
	require.True(t, strings.HasPrefix(written, "Content-Length: "))
	parts := strings.SplitN(written, "\r\n\r\n", 2)
	require.Len(t, parts, 2)

	var echo lsp.Message
	require.NoError(t, json.Unmarshal([]byte(parts[1]), &echo))
	assert.Equal(t, "2.0", echo.JSONRPC)
	assert.Equal(t, "7", string(*echo.ID))
}

func TestStreamRoundTrip(t *testing.T) {
	t.Parallel()

	var wire bytes.Buffer
	writeSide := NewStream(strings.NewReader(""), &wire, nil)
	msg := &lsp.Message{Method: "textDocument/didOpen", Params: json.RawMessage(`{"x":1}`)}
	require.NoError(t, writeSide.WriteMessage(msg))

	readSide := NewStream(bytes.NewReader(wire.Bytes()), io.Discard, nil)
	got, err := readSide.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, msg.Method, got.Method)
	assert.JSONEq(t, `{"x":1}`, string(got.Params))
}

type errCloser struct{ err error }

func (e errCloser) Close() error { return e.err }

func TestStreamClose(t *testing.T) {
	t.Parallel()

	conn := NewStream(strings.NewReader(""), io.Discard, nil)
	require.NoError(t, conn.Close())

	sentinel := errors.New("boom")
	conn = NewStream(strings.NewReader(""), io.Discard, errCloser{sentinel})
	require.ErrorIs(t, conn.Close(), sentinel)
}
