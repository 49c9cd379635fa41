// Package server implements the LSP request dispatcher: the main message
// loop, the per-request cancellation and version-gating discipline, and
// the feature handlers that answer navigation, completion and reference
// queries from the document store and workspace index.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"go.perlls.io/perlls/document"
	"go.perlls.io/perlls/errext"
	"go.perlls.io/perlls/event"
	"go.perlls.io/perlls/fsext"
	"go.perlls.io/perlls/index"
	"go.perlls.io/perlls/lsp"
	"go.perlls.io/perlls/rpc"
)

// Options configures a Server.
type Options struct {
	Logger logrus.FieldLogger
	FS     fsext.Fs
	Config Config
	// Workers bounds concurrently running feature handlers; 0 means one
	// per CPU.
	Workers int
}

// Server serves one editor session over one connection.
type Server struct {
	conn   rpc.Conn
	logger logrus.FieldLogger
	fs     fsext.Fs

	store     *document.Store
	index     *index.Index
	events    *event.System
	cancels   *cancelRegistry
	config    *configHolder
	snapshots *snapshotCache

	roots     []string
	clientCap clientCapabilities

	initialized  atomic.Bool
	shuttingDown atomic.Bool
	exited       chan struct{}
	exitOnce     sync.Once

	workers chan struct{}
	wg      sync.WaitGroup

	indexer *indexer
}

type clientCapabilities struct {
	definitionLinkSupport       bool
	hierarchicalDocumentSymbols bool
	snippetSupport              bool
}

// New builds a Server for the given connection.
func New(conn rpc.Conn, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	fs := opts.FS
	if fs == nil {
		fs = fsext.NewOsFs()
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	cfg := opts.Config

	s := &Server{
		conn:      conn,
		logger:    logger,
		fs:        fs,
		store:     document.NewStore(logger),
		index:     index.New(logger),
		events:    event.NewSystem(64, logger),
		cancels:   newCancelRegistry(),
		config:    &configHolder{cfg: cfg},
		snapshots: newSnapshotCache(),
		exited:    make(chan struct{}),
		workers:   make(chan struct{}, workers),
	}
	s.indexer = newIndexer(s)
	return s
}

// Events exposes the event system (used by tests and the CLI).
func (s *Server) Events() *event.System { return s.events }

// Run processes messages until the connection closes or exit is
// received. It always returns after in-flight handlers finished.
func (s *Server) Run(ctx context.Context) error {
	defer s.wg.Wait()
	defer s.indexer.stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.exited:
			return nil
		default:
		}

		msg, err := s.conn.ReadMessage()
		if err != nil {
			var perr *rpc.ParseError
			if errors.As(err, &perr) {
				s.reply(nil, nil, lsp.NewError(lsp.CodeParseError, perr.Error()))
				continue
			}
			select {
			case <-s.exited:
				return nil
			default:
			}
			return err
		}

		switch {
		case msg.ID != nil && msg.Method != "":
			s.handleRequest(ctx, msg)
		case msg.Method != "":
			s.handleNotification(ctx, msg)
		default:
			// response to a server-to-client request; nothing waits on
			// these beyond logging
			s.logger.WithField("id", rawID(msg.ID)).Debug("client response received")
		}
	}
}

func rawID(id *json.RawMessage) string {
	if id == nil {
		return ""
	}
	return string(*id)
}

// reply sends a response. id may be nil for protocol-level errors on
// unidentifiable messages.
func (s *Server) reply(id *json.RawMessage, result any, rerr *lsp.ResponseError) {
	msg := &lsp.Message{JSONRPC: "2.0", ID: id, Error: rerr}
	if rerr == nil {
		data, err := json.Marshal(result)
		if err != nil {
			msg.Error = lsp.NewError(lsp.CodeInternalError, err.Error())
		} else {
			msg.Result = data
		}
	}
	if id == nil {
		null := json.RawMessage("null")
		msg.ID = &null
	}
	if err := s.conn.WriteMessage(msg); err != nil {
		s.logger.WithError(err).Warn("failed to write response")
	}
}

// notify sends a server-initiated notification.
func (s *Server) notify(method string, params any) {
	data, err := json.Marshal(params)
	if err != nil {
		s.logger.WithError(err).WithField("method", method).Warn("failed to encode notification")
		return
	}
	msg := &lsp.Message{JSONRPC: "2.0", Method: method, Params: data}
	if err := s.conn.WriteMessage(msg); err != nil {
		s.logger.WithError(err).WithField("method", method).Warn("failed to write notification")
	}
}

// request sends a server-to-client request without waiting for the
// response (workspace/applyEdit, workspace/configuration).
func (s *Server) request(id string, method string, params any) {
	data, err := json.Marshal(params)
	if err != nil {
		return
	}
	rawid := json.RawMessage(fmt.Sprintf("%q", id))
	msg := &lsp.Message{JSONRPC: "2.0", ID: &rawid, Method: method, Params: data}
	if err := s.conn.WriteMessage(msg); err != nil {
		s.logger.WithError(err).WithField("method", method).Warn("failed to write request")
	}
}

// handleNotification runs on the read loop so document sync stays
// ordered.
func (s *Server) handleNotification(ctx context.Context, msg *lsp.Message) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.WithFields(logrus.Fields{
				"method": msg.Method,
				"panic":  r,
			}).Error(string(debug.Stack()))
		}
	}()

	switch msg.Method {
	case "initialized":
		s.indexer.start(s.roots)
	case "exit":
		s.exitOnce.Do(func() { close(s.exited) })
	case "$/cancelRequest":
		id := gjson.GetBytes(msg.Params, "id")
		s.cancels.cancel(id.Raw)
	case "textDocument/didOpen":
		s.didOpen(msg.Params)
	case "textDocument/didChange":
		s.didChange(msg.Params)
	case "textDocument/didClose":
		s.didClose(msg.Params)
	case "textDocument/didSave":
		s.didSave(msg.Params)
	case "workspace/didChangeConfiguration":
		s.didChangeConfiguration(msg.Params)
	case "workspace/didChangeWatchedFiles":
		s.didChangeWatchedFiles(msg.Params)
	case "workspace/didChangeWorkspaceFolders":
		s.didChangeWorkspaceFolders(msg.Params)
	case "workspace/didDeleteFiles":
		s.didDeleteFiles(msg.Params)
	default:
		s.logger.WithField("method", msg.Method).Debug("ignoring notification")
	}
}

// requestHandler computes a result for one request.
type requestHandler func(ctx context.Context, params json.RawMessage) (any, error)

func (s *Server) handlerFor(method string) (requestHandler, bool) {
	switch method {
	case "textDocument/hover":
		return s.hover, true
	case "textDocument/definition", "textDocument/declaration",
		"textDocument/typeDefinition", "textDocument/implementation":
		return s.definition, true
	case "textDocument/references":
		return s.references, true
	case "textDocument/documentHighlight":
		return s.documentHighlight, true
	case "textDocument/completion":
		return s.completion, true
	case "completionItem/resolve":
		return s.completionResolve, true
	case "textDocument/signatureHelp":
		return s.signatureHelp, true
	case "textDocument/documentSymbol":
		return s.documentSymbol, true
	case "textDocument/rename":
		return s.rename, true
	case "textDocument/prepareCallHierarchy":
		return s.prepareCallHierarchy, true
	case "callHierarchy/incomingCalls":
		return s.incomingCalls, true
	case "callHierarchy/outgoingCalls":
		return s.outgoingCalls, true
	case "textDocument/semanticTokens/full":
		return s.semanticTokensFull, true
	case "textDocument/codeAction":
		return s.codeAction, true
	case "textDocument/formatting":
		return s.formatting, true
	case "workspace/symbol":
		return s.workspaceSymbol, true
	case "workspaceSymbol/resolve":
		return s.workspaceSymbolResolve, true
	case "workspace/willRenameFiles":
		return s.willRenameFiles, true
	case "textDocument/inlayHint":
		return s.inlayHints, true
	}
	return nil, false
}

func (s *Server) handleRequest(ctx context.Context, msg *lsp.Message) {
	idKey := rawID(msg.ID)

	switch msg.Method {
	case "initialize":
		result, rerr := s.initialize(msg.Params)
		s.reply(msg.ID, result, rerr)
		return
	case "shutdown":
		s.shuttingDown.Store(true)
		s.reply(msg.ID, nil, nil)
		return
	}

	if !s.initialized.Load() {
		s.reply(msg.ID, nil, lsp.NewError(lsp.CodeServerNotInitialized, "server not initialized"))
		return
	}
	if s.shuttingDown.Load() {
		s.reply(msg.ID, nil, lsp.NewError(lsp.CodeInvalidRequest, "server is shutting down"))
		return
	}

	handler, ok := s.handlerFor(msg.Method)
	if !ok {
		s.reply(msg.ID, nil, lsp.NewError(lsp.CodeMethodNotFound, "unknown method "+msg.Method))
		return
	}

	// The version gate: a client-reported document version that does not
	// match the stored one means the answer would be stale before it is
	// computed.
	if rerr := s.versionGate(msg.Params); rerr != nil {
		s.reply(msg.ID, nil, rerr)
		return
	}

	reqCtx, release := s.cancels.register(ctx, idKey)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer release()
		defer func() {
			if r := recover(); r != nil {
				s.logger.WithFields(logrus.Fields{
					"method": msg.Method,
					"panic":  r,
				}).Error(string(debug.Stack()))
				s.reply(msg.ID, nil, lsp.NewError(lsp.CodeInternalError,
					fmt.Sprintf("internal error serving %s", msg.Method)))
			}
		}()

		s.workers <- struct{}{}
		defer func() { <-s.workers }()

		if reqCtx.Err() != nil {
			s.reply(msg.ID, nil, lsp.ErrRequestCancelled)
			return
		}

		result, err := handler(reqCtx, msg.Params)

		// Cancellation observed during or after the computation drops
		// the result rather than emitting a partial answer.
		if reqCtx.Err() != nil {
			s.reply(msg.ID, nil, lsp.ErrRequestCancelled)
			return
		}
		// Version check just before emission: the snapshot answered for
		// may have been superseded while we computed.
		if rerr := s.versionGate(msg.Params); rerr != nil {
			s.reply(msg.ID, nil, rerr)
			return
		}
		if err != nil {
			s.reply(msg.ID, nil, toResponseError(err))
			return
		}
		s.reply(msg.ID, result, nil)
	}()
}

// versionGate rejects requests whose client-reported document version no
// longer matches the stored version.
func (s *Server) versionGate(params json.RawMessage) *lsp.ResponseError {
	ver := gjson.GetBytes(params, "textDocument.version")
	if !ver.Exists() || ver.Type == gjson.Null {
		return nil
	}
	uri := gjson.GetBytes(params, "textDocument.uri").String()
	doc, ok := s.store.Get(uri)
	if !ok {
		return nil
	}
	if int32(ver.Int()) != doc.Version {
		return lsp.ErrContentModified
	}
	return nil
}

func toResponseError(err error) *lsp.ResponseError {
	var rerr *lsp.ResponseError
	if errors.As(err, &rerr) {
		return rerr
	}
	var coded errext.HasRPCCode
	if errors.As(err, &coded) {
		return lsp.NewError(coded.RPCCode(), err.Error())
	}
	if errors.Is(err, context.Canceled) {
		return lsp.ErrRequestCancelled
	}
	return lsp.NewError(lsp.CodeInternalError, err.Error())
}

// invalidParams decorates a decode failure with the InvalidParams code.
func invalidParams(err error) error {
	return errext.WithRPCCode(fmt.Errorf("invalid params: %w", err), lsp.CodeInvalidParams)
}
