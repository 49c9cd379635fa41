package log

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopCloser struct {
	io.Writer
	closed chan struct{}
}

func (nc *nopCloser) Close() error {
	nc.closed <- struct{}{}
	return nil
}

func TestFileHookFromConfigLine(t *testing.T) {
	t.Parallel()

	tests := [...]struct {
		line       string
		err        bool
		errMessage string
	}{
		{line: "file", err: true},
		{line: fmt.Sprintf("file=%s/perlls.log,level=info", os.TempDir()), err: false},
		{line: "file=./", err: true},
		{line: "file=,level=info", err: true, errMessage: "filepath must not be empty"},
		{line: "file=/tmp/perlls.log,level=tea", err: true},
		{line: "file=/tmp/perlls.log,unknown", err: true},
		{line: "file=/tmp/perlls.log,level=", err: true},
		{line: "file=/tmp/perlls.log,level=,", err: true},
		{
			line:       "file=/tmp/perlls.log,unknown=something",
			err:        true,
			errMessage: "unknown logfile config key unknown",
		},
		{
			line:       "unknown=something",
			err:        true,
			errMessage: "logfile configuration should be in the form `file=path-to-local-file` but is `unknown=something`",
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.line, func(t *testing.T) {
			t.Parallel()

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			res, err := FileHookFromConfigLine(ctx, logrus.New(), test.line)

			if test.err {
				require.Error(t, err)
				if test.errMessage != "" {
					require.Equal(t, test.errMessage, err.Error())
				}
				return
			}

			require.NoError(t, err)
			assert.NotNil(t, res.(*fileHook).w)
		})
	}
}

func TestFileHookFire(t *testing.T) {
	t.Parallel()

	var buffer bytes.Buffer
	nc := &nopCloser{
		Writer: &buffer,
		closed: make(chan struct{}),
	}

	hook := &fileHook{
		fallbackLogger: logrus.New(),
		loglines:       make(chan []byte),
		w:              nc,
		bw:             bufio.NewWriter(nc),
		levels:         logrus.AllLevels,
		done:           make(chan struct{}),
	}

	ctx, cancel := context.WithCancel(context.Background())

	hook.loglines = hook.loop(ctx)

	logger := logrus.New()
	logger.AddHook(hook)
	logger.SetOutput(io.Discard)

	logger.Info("example log line")

	time.Sleep(10 * time.Millisecond)

	cancel()
	<-nc.closed
	<-hook.Done()

	assert.Contains(t, buffer.String(), "example log line")
}
