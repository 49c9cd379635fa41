package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"go.perlls.io/perlls/errext"
	"go.perlls.io/perlls/errext/exitcodes"
	"go.perlls.io/perlls/rpc"
	"go.perlls.io/perlls/server"
)

// getRunCmd builds `perlls run`, the main entry: serve the LSP over
// stdio, or over a websocket when --address is set.
func getRunCmd(gs *globalState) *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Start the language server",
		Long: `Start the language server.

By default the server speaks the Language Server Protocol on
stdin/stdout, which is how editors launch it. With --address it serves
the same protocol over a websocket instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithCancel(gs.ctx)
			defer cancel()
			stopSignals := handleSignals(gs, cancel)
			defer stopSignals()

			opts := server.Options{
				Logger: gs.logger,
				FS:     gs.fs,
				Config: server.DefaultConfig(),
			}

			if gs.flags.Address != "" {
				err := rpc.ListenWebSocket(gs.flags.Address, gs.logger, func(conn rpc.Conn) {
					srv := server.New(conn, opts)
					if err := srv.Run(ctx); err != nil {
						gs.logger.WithError(err).Warn("session ended")
					}
				})
				return errext.WithExitCodeIfNone(err, exitcodes.TransportFailed)
			}

			conn := rpc.NewStream(gs.stdIn, rawStdout(gs), nil)
			srv := server.New(conn, opts)
			if err := srv.Run(ctx); err != nil && ctx.Err() == nil {
				return errext.WithExitCodeIfNone(
					errext.WithHint(err, "the editor may have terminated the session"),
					exitcodes.TransportFailed)
			}
			return nil
		},
	}
	return runCmd
}

// rawStdout bypasses the TTY-aware console writer: protocol frames must
// reach the client byte-exact.
func rawStdout(gs *globalState) *consoleWriter {
	return &consoleWriter{writer: gs.stdOut.writer, isTTY: false, mutex: gs.outMutex}
}
