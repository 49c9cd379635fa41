package rpc

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"go.perlls.io/perlls/lsp"
)

// WSConn carries JSON-RPC payloads in WebSocket text frames, one message
// per frame; no Content-Length headers are involved.
type WSConn struct {
	ws  *websocket.Conn
	wmu sync.Mutex
}

// NewWSConn wraps an established WebSocket connection.
func NewWSConn(ws *websocket.Conn) *WSConn { return &WSConn{ws: ws} }

// ReadMessage reads the next frame and decodes it.
func (c *WSConn) ReadMessage() (*lsp.Message, error) {
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		return nil, err
	}
	var msg lsp.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, &ParseError{Body: data, Err: err}
	}
	return &msg, nil
}

// WriteMessage encodes and sends one frame.
func (c *WSConn) WriteMessage(msg *lsp.Message) error {
	if msg.JSONRPC == "" {
		msg.JSONRPC = "2.0"
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// Close closes the socket.
func (c *WSConn) Close() error { return c.ws.Close() }

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Any origin is accepted; the listener binds to whatever address the
	// caller passes to ListenWebSocket.
	CheckOrigin: func(*http.Request) bool { return true },
}

// ListenWebSocket serves the LSP over WebSocket on addr, invoking accept
// for every established connection. accept is expected to block for the
// lifetime of the session; each session runs on its own goroutine. The
// function itself blocks until the HTTP server fails.
func ListenWebSocket(addr string, logger logrus.FieldLogger, accept func(Conn)) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.WithError(err).Warn("websocket upgrade failed")
			return
		}
		logger.WithField("remote", ws.RemoteAddr().String()).Info("editor connected")
		go accept(NewWSConn(ws))
	})
	logger.WithField("addr", addr).Info("listening for websocket connections")
	return http.ListenAndServe(addr, mux)
}
