package cmd

import (
	"bytes"
	"context"
	"io"
	"os"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.perlls.io/perlls/fsext"
)

// newGlobalTestState builds a globalState against an in-memory
// filesystem and captured output, mirroring what newGlobalState does with
// the real OS.
func newGlobalTestState(t *testing.T, args []string) (*globalState, *bytes.Buffer, *[]int) {
	t.Helper()

	var out bytes.Buffer
	outMutex := &sync.Mutex{}
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	exitCodes := &[]int{}
	defaultFlags := getDefaultFlags()
	gs := &globalState{
		ctx:          context.Background(),
		fs:           fsext.NewMemMapFs(),
		getwd:        func() (string, error) { return "/", nil },
		args:         append([]string{"perlls"}, args...),
		envVars:      map[string]string{},
		defaultFlags: defaultFlags,
		flags:        defaultFlags,
		outMutex:     outMutex,
		stdOut:       &consoleWriter{writer: &out, mutex: outMutex},
		stdErr:       &consoleWriter{writer: io.Discard, mutex: outMutex},
		stdIn:        bytes.NewReader(nil),
		osExit:       func(code int) { *exitCodes = append(*exitCodes, code) },
		signalNotify: func(chan<- os.Signal, ...os.Signal) {},
		signalStop:   func(chan<- os.Signal) {},
		logger:       logger,
		fallbackLogger: logger,
	}
	gs.flags.LogOutput = "none"
	return gs, &out, exitCodes
}

func TestCheckCleanFiles(t *testing.T) {
	t.Parallel()

	gs, out, exits := newGlobalTestState(t, []string{"check", "/proj"})
	require.NoError(t, fsext.WriteFile(gs.fs, "/proj/ok.pl", []byte("use strict;\nmy $x = 1;\n"), 0o644))
	require.NoError(t, fsext.WriteFile(gs.fs, "/proj/lib/M.pm", []byte("package M;\nsub f { 1 }\n1;\n"), 0o644))

	ExecuteWithGlobalState(gs, func() {})

	assert.Empty(t, *exits, "clean files exit zero")
	assert.Contains(t, out.String(), "2 file(s) checked")
}

func TestCheckBrokenFile(t *testing.T) {
	t.Parallel()

	gs, out, exits := newGlobalTestState(t, []string{"check", "/proj/bad.pl"})
	require.NoError(t, fsext.WriteFile(gs.fs, "/proj/bad.pl", []byte("my $x = \"unterminated\n"), 0o644))

	ExecuteWithGlobalState(gs, func() {})

	require.Len(t, *exits, 1)
	assert.Equal(t, 3, (*exits)[0], "check problems map to the dedicated exit code")
	assert.Contains(t, out.String(), "error")
	assert.Contains(t, out.String(), "bad.pl")
}

func TestCheckMissingPath(t *testing.T) {
	t.Parallel()

	gs, _, exits := newGlobalTestState(t, []string{"check", "/no/such/file.pl"})
	ExecuteWithGlobalState(gs, func() {})
	require.Len(t, *exits, 1)
	assert.Equal(t, 2, (*exits)[0])
}

func TestVersionCmd(t *testing.T) {
	t.Parallel()

	gs, out, exits := newGlobalTestState(t, []string{"version"})
	ExecuteWithGlobalState(gs, func() {})
	assert.Empty(t, *exits)
	assert.Contains(t, out.String(), "perlls v")
}

func TestUnsupportedLogOutput(t *testing.T) {
	t.Parallel()

	gs, _, exits := newGlobalTestState(t, []string{"version"})
	gs.flags.LogOutput = "loki"
	ExecuteWithGlobalState(gs, func() {})
	require.Len(t, *exits, 1)
	assert.Equal(t, -1, (*exits)[0])
}
