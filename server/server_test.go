package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.perlls.io/perlls/event"
	"go.perlls.io/perlls/fsext"
	"go.perlls.io/perlls/lsp"
)

// pipeConn is an in-memory rpc.Conn: the test pushes client→server
// messages into in and collects server→client traffic from out.
type pipeConn struct {
	in     chan *lsp.Message
	out    chan *lsp.Message
	closed chan struct{}
	once   sync.Once
}

func newPipeConn() *pipeConn {
	return &pipeConn{
		in:     make(chan *lsp.Message, 64),
		out:    make(chan *lsp.Message, 256),
		closed: make(chan struct{}),
	}
}

func (c *pipeConn) ReadMessage() (*lsp.Message, error) {
	select {
	case msg := <-c.in:
		return msg, nil
	case <-c.closed:
		return nil, io.EOF
	}
}

func (c *pipeConn) WriteMessage(msg *lsp.Message) error {
	select {
	case c.out <- msg:
		return nil
	case <-time.After(5 * time.Second):
		return fmt.Errorf("test conn write stalled")
	}
}

func (c *pipeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

// session wires a Server over a pipeConn against an in-memory workspace.
type session struct {
	t      *testing.T
	conn   *pipeConn
	srv    *Server
	fs     fsext.Fs
	nextID int

	mu      sync.Mutex
	pending []*lsp.Message // undelivered notifications

	runDone chan error
}

func newSession(t *testing.T, files map[string]string) *session {
	t.Helper()
	fs := fsext.NewMemMapFs()
	for path, text := range files {
		require.NoError(t, fsext.WriteFile(fs, path, []byte(text), 0o644))
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	conn := newPipeConn()
	srv := New(conn, Options{Logger: logger, FS: fs, Config: DefaultConfig()})

	s := &session{t: t, conn: conn, srv: srv, fs: fs, runDone: make(chan error, 1)}
	go func() { s.runDone <- srv.Run(context.Background()) }()
	return s
}

// initialize completes the handshake and waits for the workspace scan.
func (s *session) initialize(root string) {
	s.t.Helper()
	_, doneCh := s.srv.Events().Subscribe(event.IndexingDone)

	resp := s.request("initialize", map[string]any{
		"rootUri":      "file://" + root,
		"capabilities": map[string]any{},
	})
	require.Nil(s.t, resp.Error)
	s.notifyServer("initialized", map[string]any{})

	select {
	case <-doneCh:
	case <-time.After(5 * time.Second):
		s.t.Fatal("workspace indexing did not finish")
	}
}

func (s *session) shutdown() {
	s.t.Helper()
	s.notifyServer("exit", nil)
	select {
	case <-s.runDone:
	case <-time.After(5 * time.Second):
		s.t.Fatal("server did not exit")
	}
	s.conn.Close()
}

func (s *session) send(msg *lsp.Message) {
	select {
	case s.conn.in <- msg:
	case <-time.After(time.Second):
		s.t.Fatal("test conn send stalled")
	}
}

func (s *session) notifyServer(method string, params any) {
	data, err := json.Marshal(params)
	require.NoError(s.t, err)
	s.send(&lsp.Message{JSONRPC: "2.0", Method: method, Params: data})
}

// requestAsync sends a request and returns its id without waiting.
func (s *session) requestAsync(method string, params any) string {
	s.nextID++
	id := fmt.Sprintf("%d", s.nextID)
	raw := json.RawMessage(id)
	data, err := json.Marshal(params)
	require.NoError(s.t, err)
	s.send(&lsp.Message{JSONRPC: "2.0", ID: &raw, Method: method, Params: data})
	return id
}

// request sends and waits for the matching response.
func (s *session) request(method string, params any) *lsp.Message {
	s.t.Helper()
	id := s.requestAsync(method, params)
	return s.waitResponse(id)
}

func (s *session) waitResponse(id string) *lsp.Message {
	s.t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case msg := <-s.conn.out:
			if msg.ID != nil && string(*msg.ID) == id {
				return msg
			}
			s.mu.Lock()
			s.pending = append(s.pending, msg)
			s.mu.Unlock()
		case <-deadline:
			s.t.Fatalf("no response for request %s", id)
			return nil
		}
	}
}

// notification returns the most recent buffered notification for method.
func (s *session) notification(method string) *lsp.Message {
	s.t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		s.mu.Lock()
		for i := len(s.pending) - 1; i >= 0; i-- {
			if s.pending[i].Method == method {
				msg := s.pending[i]
				s.mu.Unlock()
				return msg
			}
		}
		s.mu.Unlock()
		select {
		case msg := <-s.conn.out:
			s.mu.Lock()
			s.pending = append(s.pending, msg)
			s.mu.Unlock()
		case <-deadline:
			s.t.Fatalf("no %s notification", method)
			return nil
		}
	}
}

// awaitDiagnosticsVersion blocks until diagnostics for uri at the given
// version have been published.
func (s *session) awaitDiagnosticsVersion(uri string, version int32) {
	s.t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case msg := <-s.conn.out:
			if msg.Method == "textDocument/publishDiagnostics" {
				var p lsp.PublishDiagnosticsParams
				if json.Unmarshal(msg.Params, &p) == nil &&
					p.URI == uri && p.Version != nil && *p.Version == version {
					return
				}
			}
			s.mu.Lock()
			s.pending = append(s.pending, msg)
			s.mu.Unlock()
		case <-deadline:
			s.t.Fatalf("no diagnostics for %s at version %d", uri, version)
		}
	}
}

func (s *session) openDoc(uri, text string) {
	s.notifyServer("textDocument/didOpen", map[string]any{
		"textDocument": map[string]any{
			"uri": uri, "languageId": "perl", "version": 1, "text": text,
		},
	})
}

func posParams(uri string, line, char int) map[string]any {
	return map[string]any{
		"textDocument": map[string]any{"uri": uri},
		"position":     map[string]any{"line": line, "character": char},
	}
}

func decodeResult(t *testing.T, msg *lsp.Message, into any) {
	t.Helper()
	require.Nil(t, msg.Error, "unexpected error: %+v", msg.Error)
	require.NoError(t, json.Unmarshal(msg.Result, into))
}

func TestDefinitionAcrossFiles(t *testing.T) {
	t.Parallel()

	s := newSession(t, map[string]string{
		"/ws/lib/Util.pm": "package Util; sub process { 1 }\n",
		"/ws/main.pl":     "use Util; Util::process();\n",
	})
	defer s.shutdown()
	s.initialize("/ws")

	mainText := "use Util; Util::process();\n"
	s.openDoc("file:///ws/main.pl", mainText)

	// cursor on "process" inside Util::process
	col := strings.Index(mainText, "process()")
	resp := s.request("textDocument/definition", posParams("file:///ws/main.pl", 0, col))

	var locs []lsp.Location
	decodeResult(t, resp, &locs)
	require.Len(t, locs, 1)
	assert.Equal(t, "file:///ws/lib/Util.pm", locs[0].URI)

	utilText := "package Util; sub process { 1 }\n"
	nameCol := strings.Index(utilText, "process")
	assert.Equal(t, nameCol, locs[0].Range.Start.Character)
	assert.Equal(t, nameCol+len("process"), locs[0].Range.End.Character)
	assert.Equal(t, 0, locs[0].Range.Start.Line)
}

func TestDocumentHighlightWriteRead(t *testing.T) {
	t.Parallel()

	s := newSession(t, nil)
	defer s.shutdown()
	s.initialize("/ws")

	text := `my $c=0; $c=10; print $c; $c++;`
	s.openDoc("file:///ws/h.pl", text)

	// highlight at the declaration's $c
	resp := s.request("textDocument/documentHighlight", posParams("file:///ws/h.pl", 0, 4))

	var highlights []lsp.DocumentHighlight
	decodeResult(t, resp, &highlights)
	require.Len(t, highlights, 4)

	kinds := map[int]int{}
	for _, h := range highlights {
		kinds[h.Kind]++
		assert.Equal(t, "$c", text[charToOff(text, h.Range.Start.Character):charToOff(text, h.Range.End.Character)])
	}
	assert.Equal(t, 3, kinds[lsp.HighlightWrite], "declaration, assignment and ++ are writes")
	assert.Equal(t, 1, kinds[lsp.HighlightRead], "print argument is a read")
}

// charToOff is valid for single-line ASCII fixtures.
func charToOff(_ string, ch int) int { return ch }

func TestRename(t *testing.T) {
	t.Parallel()

	s := newSession(t, nil)
	defer s.shutdown()
	s.initialize("/ws")

	text := `sub foo {} foo(); foo();`
	uri := "file:///ws/r.pl"
	s.openDoc(uri, text)

	params := posParams(uri, 0, 4) // on the sub name
	params["newName"] = "bar"
	resp := s.request("textDocument/rename", params)

	var edit lsp.WorkspaceEdit
	decodeResult(t, resp, &edit)
	require.Len(t, edit.Changes, 1)
	edits := edit.Changes[uri]
	require.Len(t, edits, 3)

	applied := applyEdits(text, edits)
	assert.Equal(t, `sub bar {} bar(); bar();`, applied)
	assert.NotContains(t, applied, "foo")
}

// applyEdits applies single-line edits right to left.
func applyEdits(text string, edits []lsp.TextEdit) string {
	for i := 0; i < len(edits); i++ {
		for j := i + 1; j < len(edits); j++ {
			if edits[j].Range.Start.Character > edits[i].Range.Start.Character {
				edits[i], edits[j] = edits[j], edits[i]
			}
		}
	}
	for _, e := range edits {
		text = text[:e.Range.Start.Character] + e.NewText + text[e.Range.End.Character:]
	}
	return text
}

func TestRenameCollisionRejected(t *testing.T) {
	t.Parallel()

	s := newSession(t, nil)
	defer s.shutdown()
	s.initialize("/ws")

	uri := "file:///ws/rc.pl"
	s.openDoc(uri, "my $alpha = 1; my $beta = 2; print $alpha;")

	params := posParams(uri, 0, 4) // on $alpha
	params["newName"] = "beta"
	resp := s.request("textDocument/rename", params)
	require.NotNil(t, resp.Error)
	assert.Equal(t, lsp.CodeInvalidParams, resp.Error.Code)
}

func TestSignatureHelp(t *testing.T) {
	t.Parallel()

	s := newSession(t, nil)
	defer s.shutdown()
	s.initialize("/ws")

	text := "sub add($a,$b){}\nadd(1, "
	uri := "file:///ws/sig.pl"
	s.openDoc(uri, text)

	resp := s.request("textDocument/signatureHelp", posParams(uri, 1, 7))

	var help lsp.SignatureHelp
	decodeResult(t, resp, &help)
	require.Len(t, help.Signatures, 1)
	assert.Equal(t, "sub add($a, $b)", help.Signatures[0].Label)
	assert.Equal(t, 1, help.ActiveParameter)
	require.Len(t, help.Signatures[0].Parameters, 2)
}

func TestStaleRequestContentModified(t *testing.T) {
	t.Parallel()

	s := newSession(t, nil)
	defer s.shutdown()
	s.initialize("/ws")

	uri := "file:///ws/stale.pl"
	s.openDoc(uri, "my $x = 1;")

	// Fill the worker pool so the hover parks before running; the
	// didChange then lands first and the emission gate must trip.
	blockers := make([]struct{}, cap(s.srv.workers))
	for range blockers {
		s.srv.workers <- struct{}{}
	}

	params := posParams(uri, 0, 4)
	params["textDocument"] = map[string]any{"uri": uri, "version": 1}
	id := s.requestAsync("textDocument/hover", params)

	s.notifyServer("textDocument/didChange", map[string]any{
		"textDocument":   map[string]any{"uri": uri, "version": 2},
		"contentChanges": []map[string]any{{"text": "my $x = 2;"}},
	})
	// didChange is handled on the read loop; once the diagnostics for
	// version 2 show up the store is updated for sure.
	s.awaitDiagnosticsVersion(uri, 2)

	for range blockers {
		<-s.srv.workers
	}

	resp := s.waitResponse(id)
	require.NotNil(t, resp.Error)
	assert.Equal(t, lsp.CodeContentModified, resp.Error.Code)
}

func TestCancellation(t *testing.T) {
	t.Parallel()

	s := newSession(t, nil)
	defer s.shutdown()
	s.initialize("/ws")

	uri := "file:///ws/cancel.pl"
	s.openDoc(uri, "sub target {}\ntarget();\n")

	// Park the handler behind a full worker pool so the cancel
	// deterministically arrives first.
	blockers := make([]struct{}, cap(s.srv.workers))
	for range blockers {
		s.srv.workers <- struct{}{}
	}

	id := s.requestAsync("textDocument/definition", posParams(uri, 1, 0))
	s.notifyServer("$/cancelRequest", map[string]any{"id": s.nextID})

	// The read loop is serial, so once the next notification produces an
	// observable effect the cancel has been processed.
	s.notifyServer("workspace/didChangeConfiguration", map[string]any{})
	s.notification("workspace/configuration")

	for range blockers {
		<-s.srv.workers
	}

	resp := s.waitResponse(id)
	require.NotNil(t, resp.Error)
	assert.Equal(t, lsp.CodeRequestCancelled, resp.Error.Code)
	assert.Nil(t, resp.Result, "a cancelled request carries no partial results")
}

func TestCancellationCleanup(t *testing.T) {
	t.Parallel()

	s := newSession(t, nil)
	defer s.shutdown()
	s.initialize("/ws")

	uri := "file:///ws/cc.pl"
	s.openDoc(uri, "my $x = 1;\n")

	for i := 0; i < 10; i++ {
		resp := s.request("textDocument/hover", posParams(uri, 0, 4))
		require.NotNil(t, resp)
	}
	assert.Equal(t, 0, s.srv.cancels.len(),
		"every token must be removed once its response is emitted")
}

func TestMalformedInputStability(t *testing.T) {
	t.Parallel()

	s := newSession(t, nil)
	defer s.shutdown()
	s.initialize("/ws")

	broken := []string{
		`my $x = "unterminated`,
		`sub foo { my $y = `,
		`if ($x { print; }`,
		`while (1 { }`,
		`package ;`,
		`my @list = (1, 2,`,
		`$h{key = 5;`,
		`print "a" . ;`,
		`foreach $x in (@l) {}`,
		`sub {{{{`,
		`}}}} sub f {}`,
		`use ;`,
		`my %h = (a => );`,
		`q(never closed`,
		"<<EOT\nno end",
		`s/only one`,
		`my $x = [1, {2, [3,`,
		`$obj->->method;`,
		`1 ? 2;`,
		"\xff\xfe binary garbage \x00",
	}
	require.GreaterOrEqual(t, len(broken), 20)

	for i, text := range broken {
		uri := fmt.Sprintf("file:///ws/broken%d.pl", i)
		s.openDoc(uri, text)

		start := time.Now()
		hover := s.request("textDocument/hover", posParams(uri, 0, 1))
		def := s.request("textDocument/definition", posParams(uri, 0, 1))
		assert.Less(t, time.Since(start), time.Second, "file %d exceeded budget", i)

		// empty results are fine, protocol errors are not
		assert.Nil(t, hover.Error, "hover on broken file %d", i)
		assert.Nil(t, def.Error, "definition on broken file %d", i)
	}
}

func TestDispatcherErrors(t *testing.T) {
	t.Parallel()

	t.Run("server not initialized", func(t *testing.T) {
		t.Parallel()
		s := newSession(t, nil)
		defer s.shutdown()
		resp := s.request("textDocument/hover", posParams("file:///x.pl", 0, 0))
		require.NotNil(t, resp.Error)
		assert.Equal(t, lsp.CodeServerNotInitialized, resp.Error.Code)
	})

	t.Run("method not found", func(t *testing.T) {
		t.Parallel()
		s := newSession(t, nil)
		defer s.shutdown()
		s.initialize("/ws")
		resp := s.request("textDocument/unknownFeature", map[string]any{})
		require.NotNil(t, resp.Error)
		assert.Equal(t, lsp.CodeMethodNotFound, resp.Error.Code)
	})

	t.Run("invalid params", func(t *testing.T) {
		t.Parallel()
		s := newSession(t, nil)
		defer s.shutdown()
		s.initialize("/ws")
		resp := s.request("textDocument/hover", map[string]any{"textDocument": 5})
		require.NotNil(t, resp.Error)
		assert.Equal(t, lsp.CodeInvalidParams, resp.Error.Code)
	})

	t.Run("requests rejected after shutdown", func(t *testing.T) {
		t.Parallel()
		s := newSession(t, nil)
		defer s.shutdown()
		s.initialize("/ws")
		resp := s.request("shutdown", nil)
		require.Nil(t, resp.Error)
		resp = s.request("textDocument/hover", posParams("file:///x.pl", 0, 0))
		require.NotNil(t, resp.Error)
		assert.Equal(t, lsp.CodeInvalidRequest, resp.Error.Code)
	})
}

func TestDiagnosticsPublished(t *testing.T) {
	t.Parallel()

	s := newSession(t, nil)
	defer s.shutdown()
	s.initialize("/ws")

	s.openDoc("file:///ws/bad.pl", "my $x = \"unterminated\n")
	msg := s.notification("textDocument/publishDiagnostics")

	var params lsp.PublishDiagnosticsParams
	require.NoError(t, json.Unmarshal(msg.Params, &params))
	assert.Equal(t, "file:///ws/bad.pl", params.URI)

	var hasError bool
	for _, d := range params.Diagnostics {
		if d.Severity == lsp.SeverityError {
			hasError = true
		}
	}
	assert.True(t, hasError)
}

func TestHoverContent(t *testing.T) {
	t.Parallel()

	s := newSession(t, nil)
	defer s.shutdown()
	s.initialize("/ws")

	text := "# Счётчик requests.\nmy $count = 0;\n$count++;\n"
	uri := "file:///ws/hover.pl"
	s.openDoc(uri, text)

	resp := s.request("textDocument/hover", posParams(uri, 2, 2))
	var hover lsp.Hover
	decodeResult(t, resp, &hover)
	assert.Equal(t, "markdown", hover.Contents.Kind)
	assert.Contains(t, hover.Contents.Value, "my $count")
	assert.Contains(t, hover.Contents.Value, "Счётчик requests.")

	t.Run("builtin fallback", func(t *testing.T) {
		s.openDoc("file:///ws/b.pl", "print 42;\n")
		resp := s.request("textDocument/hover", posParams("file:///ws/b.pl", 0, 1))
		var hover lsp.Hover
		decodeResult(t, resp, &hover)
		assert.Contains(t, hover.Contents.Value, "built-in function")
	})
}

func TestCompletionContexts(t *testing.T) {
	t.Parallel()

	s := newSession(t, map[string]string{
		"/ws/lib/Helper.pm": "package Helper;\nsub assist { }\nsub aid { }\n",
	})
	defer s.shutdown()
	s.initialize("/ws")

	t.Run("sigil", func(t *testing.T) {
		uri := "file:///ws/c1.pl"
		s.openDoc(uri, "my $counter = 1;\nmy $x = $co")
		resp := s.request("textDocument/completion", posParams(uri, 1, 11))
		var list lsp.CompletionList
		decodeResult(t, resp, &list)
		var found bool
		for _, item := range list.Items {
			if item.Label == "$counter" {
				found = true
			}
		}
		assert.True(t, found, "scope-chain variable must be offered")
	})

	t.Run("package qualified", func(t *testing.T) {
		uri := "file:///ws/c2.pl"
		s.openDoc(uri, "use Helper;\nHelper::a")
		resp := s.request("textDocument/completion", posParams(uri, 1, 9))
		var list lsp.CompletionList
		decodeResult(t, resp, &list)
		labels := map[string]bool{}
		for _, item := range list.Items {
			labels[item.Label] = true
		}
		assert.True(t, labels["assist"])
		assert.True(t, labels["aid"])
	})

	t.Run("bare includes builtins", func(t *testing.T) {
		uri := "file:///ws/c3.pl"
		s.openDoc(uri, "pri")
		resp := s.request("textDocument/completion", posParams(uri, 0, 3))
		var list lsp.CompletionList
		decodeResult(t, resp, &list)
		var found bool
		for _, item := range list.Items {
			if item.Label == "print" {
				found = true
			}
		}
		assert.True(t, found)
	})
}

func TestWorkspaceSymbol(t *testing.T) {
	t.Parallel()

	s := newSession(t, map[string]string{
		"/ws/lib/Alpha.pm": "package Alpha;\nsub find_things { }\n",
		"/ws/lib/Beta.pm":  "package Beta;\nsub find_stuff { }\nsub other { }\n",
	})
	defer s.shutdown()
	s.initialize("/ws")

	resp := s.request("workspace/symbol", map[string]any{"query": "find"})
	var syms []lsp.SymbolInformation
	decodeResult(t, resp, &syms)

	names := map[string]bool{}
	for _, sym := range syms {
		names[sym.Name] = true
	}
	assert.True(t, names["find_things"])
	assert.True(t, names["find_stuff"])
	assert.False(t, names["other"])
}

func TestDocumentSymbolOutline(t *testing.T) {
	t.Parallel()

	s := newSession(t, nil)
	defer s.shutdown()
	s.initialize("/ws")

	uri := "file:///ws/out.pl"
	s.openDoc(uri, "package App;\nour $VERSION = 1;\nsub run { }\nsub helper { }\n")

	resp := s.request("textDocument/documentSymbol", map[string]any{
		"textDocument": map[string]any{"uri": uri},
	})
	// without hierarchical capability the flat form is returned
	var flat []lsp.SymbolInformation
	decodeResult(t, resp, &flat)
	names := map[string]bool{}
	for _, sym := range flat {
		names[sym.Name] = true
	}
	assert.True(t, names["App"])
	assert.True(t, names["run"])
	assert.True(t, names["helper"])
	assert.True(t, names["VERSION"])
}

func TestSemanticTokens(t *testing.T) {
	t.Parallel()

	s := newSession(t, nil)
	defer s.shutdown()
	s.initialize("/ws")

	uri := "file:///ws/sem.pl"
	s.openDoc(uri, "my $x = 42; # note\nprint $x;\n")

	resp := s.request("textDocument/semanticTokens/full", map[string]any{
		"textDocument": map[string]any{"uri": uri},
	})
	var toks lsp.SemanticTokens
	decodeResult(t, resp, &toks)
	require.NotEmpty(t, toks.Data)
	require.Zero(t, len(toks.Data)%5, "data must be groups of five")

	// summing the line deltas gives the line of the last token
	line := 0
	for i := 0; i < len(toks.Data); i += 5 {
		line += int(toks.Data[i])
	}
	assert.Equal(t, 1, line, "tokens span both lines")
}

func TestCallHierarchy(t *testing.T) {
	t.Parallel()

	s := newSession(t, nil)
	defer s.shutdown()
	s.initialize("/ws")

	uri := "file:///ws/ch.pl"
	text := "sub leaf { 1 }\nsub mid { leaf(); }\nmid();\n"
	s.openDoc(uri, text)

	resp := s.request("textDocument/prepareCallHierarchy", posParams(uri, 0, 5))
	var items []lsp.CallHierarchyItem
	decodeResult(t, resp, &items)
	require.Len(t, items, 1)
	assert.Equal(t, "leaf", items[0].Name)

	incoming := s.request("callHierarchy/incomingCalls", map[string]any{"item": items[0]})
	var calls []lsp.CallHierarchyIncomingCall
	decodeResult(t, incoming, &calls)
	require.NotEmpty(t, calls)
	var fromMid bool
	for _, c := range calls {
		if c.From.Name == "mid" {
			fromMid = true
		}
	}
	assert.True(t, fromMid)

	prepMid := s.request("textDocument/prepareCallHierarchy", posParams(uri, 1, 5))
	var midItems []lsp.CallHierarchyItem
	decodeResult(t, prepMid, &midItems)
	require.Len(t, midItems, 1)

	outgoing := s.request("callHierarchy/outgoingCalls", map[string]any{"item": midItems[0]})
	var outs []lsp.CallHierarchyOutgoingCall
	decodeResult(t, outgoing, &outs)
	require.NotEmpty(t, outs)
	assert.Equal(t, "leaf", outs[0].To.Name)
}

func TestInlayHints(t *testing.T) {
	t.Parallel()

	s := newSession(t, nil)
	defer s.shutdown()
	s.initialize("/ws")

	uri := "file:///ws/ih.pl"
	text := "sub add($left, $right) { }\nadd(1, 2);\n"
	s.openDoc(uri, text)

	resp := s.request("textDocument/inlayHint", map[string]any{
		"textDocument": map[string]any{"uri": uri},
		"range": map[string]any{
			"start": map[string]any{"line": 0, "character": 0},
			"end":   map[string]any{"line": 2, "character": 0},
		},
	})
	var hints []struct {
		Position lsp.Position `json:"position"`
		Label    string       `json:"label"`
		Kind     int          `json:"kind"`
	}
	decodeResult(t, resp, &hints)
	require.Len(t, hints, 2)
	assert.Equal(t, "$left:", hints[0].Label)
	assert.Equal(t, "$right:", hints[1].Label)
	assert.Equal(t, 1, hints[0].Position.Line)

	t.Run("disabled by configuration", func(t *testing.T) {
		s.notifyServer("workspace/didChangeConfiguration", map[string]any{
			"settings": map[string]any{
				"perlls": map[string]any{"inlayHints": map[string]any{"enabled": false}},
			},
		})
		require.Eventually(t, func() bool {
			return !s.srv.config.get().InlayHints.Enabled
		}, time.Second, 5*time.Millisecond)

		resp := s.request("textDocument/inlayHint", map[string]any{
			"textDocument": map[string]any{"uri": uri},
			"range": map[string]any{
				"start": map[string]any{"line": 0, "character": 0},
				"end":   map[string]any{"line": 2, "character": 0},
			},
		})
		var off []json.RawMessage
		decodeResult(t, resp, &off)
		assert.Empty(t, off)
	})
}

func TestReferencesIncludeDeclarationFlag(t *testing.T) {
	t.Parallel()

	s := newSession(t, nil)
	defer s.shutdown()
	s.initialize("/ws")

	uri := "file:///ws/refs.pl"
	s.openDoc(uri, "my $v = 1; print $v; $v = 2;")

	params := posParams(uri, 0, 4)
	params["context"] = map[string]any{"includeDeclaration": true}
	resp := s.request("textDocument/references", params)
	var withDecl []lsp.Location
	decodeResult(t, resp, &withDecl)
	assert.Len(t, withDecl, 3)

	params["context"] = map[string]any{"includeDeclaration": false}
	resp = s.request("textDocument/references", params)
	var withoutDecl []lsp.Location
	decodeResult(t, resp, &withoutDecl)
	assert.Len(t, withoutDecl, 2)
}
