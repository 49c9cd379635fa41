// Package cmd implements the perlls command line interface.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	stdlog "log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/mstoykov/envconfig"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"go.perlls.io/perlls/errext"
	"go.perlls.io/perlls/fsext"
	"go.perlls.io/perlls/log"
)

// globalFlags contains global config values that apply to all perlls
// sub-commands.
type globalFlags struct {
	Quiet     bool   `envconfig:"PERLLS_QUIET"`
	NoColor   bool   `envconfig:"PERLLS_NO_COLOR"`
	Verbose   bool   `envconfig:"PERLLS_VERBOSE"`
	LogOutput string `envconfig:"PERLLS_LOG_OUTPUT"`
	LogFormat string `envconfig:"PERLLS_LOG_FORMAT"`
	Address   string `envconfig:"PERLLS_ADDRESS"`
}

// globalState groups the process-external state: filesystem, env vars,
// standard streams, signals and loggers. Everything outside this struct
// treats the process as hermetic, which is what lets the integration
// tests run the whole binary in memory.
type globalState struct {
	ctx context.Context

	fs      fsext.Fs
	getwd   func() (string, error)
	args    []string
	envVars map[string]string

	defaultFlags, flags globalFlags

	outMutex       *sync.Mutex
	stdOut, stdErr *consoleWriter
	stdIn          io.Reader

	osExit       func(int)
	signalNotify func(chan<- os.Signal, ...os.Signal)
	signalStop   func(chan<- os.Signal)

	logger         *logrus.Logger
	fallbackLogger logrus.FieldLogger
}

// newGlobalState returns a globalState wired to the real OS. This should
// be the only place the os package globals are touched.
func newGlobalState(ctx context.Context) *globalState {
	isDumbTerm := os.Getenv("TERM") == "dumb"
	stdoutTTY := !isDumbTerm && (isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()))
	stderrTTY := !isDumbTerm && (isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()))
	outMutex := &sync.Mutex{}
	stdOut := &consoleWriter{writer: colorable.NewColorable(os.Stdout), isTTY: stdoutTTY, mutex: outMutex}
	stdErr := &consoleWriter{writer: colorable.NewColorable(os.Stderr), isTTY: stderrTTY, mutex: outMutex}

	envVars := buildEnvMap(os.Environ())
	_, noColorsSet := envVars["NO_COLOR"] // even empty values disable colors
	logger := &logrus.Logger{
		Out: stdErr,
		Formatter: &logrus.TextFormatter{
			ForceColors:   stderrTTY,
			DisableColors: !stderrTTY || noColorsSet || envVars["PERLLS_NO_COLOR"] != "",
		},
		Hooks: make(logrus.LevelHooks),
		Level: logrus.InfoLevel,
	}

	defaultFlags := getDefaultFlags()
	return &globalState{
		ctx:          ctx,
		fs:           fsext.NewOsFs(),
		getwd:        os.Getwd,
		args:         append(make([]string, 0, len(os.Args)), os.Args...), // copy
		envVars:      envVars,
		defaultFlags: defaultFlags,
		flags:        getFlags(defaultFlags, envVars),
		outMutex:     outMutex,
		stdOut:       stdOut,
		stdErr:       stdErr,
		stdIn:        os.Stdin,
		osExit:       os.Exit,
		signalNotify: signal.Notify,
		signalStop:   signal.Stop,
		logger:       logger,
		fallbackLogger: &logrus.Logger{ // we may modify the other one
			Out:       stdErr,
			Formatter: new(logrus.TextFormatter),
			Hooks:     make(logrus.LevelHooks),
			Level:     logrus.InfoLevel,
		},
	}
}

func getDefaultFlags() globalFlags {
	return globalFlags{
		LogOutput: "stderr",
	}
}

func getFlags(defaultFlags globalFlags, env map[string]string) globalFlags {
	result := defaultFlags
	if err := envconfig.Process("", &result, func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}); err != nil {
		// Malformed env values fall back to the defaults; the error is
		// dropped and not reported.
		result = defaultFlags
	}
	// Support https://no-color.org/, even an empty value disables color.
	if _, ok := env["NO_COLOR"]; ok {
		result.NoColor = true
	}
	return result
}

func parseEnvKeyValue(kv string) (string, string) {
	if idx := strings.IndexRune(kv, '='); idx != -1 {
		return kv[:idx], kv[idx+1:]
	}
	return kv, ""
}

func buildEnvMap(environ []string) map[string]string {
	env := make(map[string]string, len(environ))
	for _, kv := range environ {
		k, v := parseEnvKeyValue(kv)
		env[k] = v
	}
	return env
}

// rootCommand holds the state for the root perlls command.
type rootCommand struct {
	globalState *globalState

	cmd           *cobra.Command
	loggerStopped <-chan struct{}
}

func newRootCommand(gs *globalState) *rootCommand {
	c := &rootCommand{globalState: gs}
	rootCmd := &cobra.Command{
		Use:               "perlls",
		Short:             "a language server for Perl",
		Long:              "\nperlls - a language server for Perl 5.",
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.persistentPreRunE,
	}

	rootCmd.PersistentFlags().AddFlagSet(rootCmdPersistentFlagSet(gs))
	rootCmd.SetArgs(gs.args[1:])
	rootCmd.SetOut(gs.stdOut)
	rootCmd.SetErr(gs.stdErr)
	rootCmd.SetIn(gs.stdIn)

	rootCmd.AddCommand(getRunCmd(gs), getCheckCmd(gs), getVersionCmd(gs))

	c.cmd = rootCmd
	return c
}

func (c *rootCommand) persistentPreRunE(_ *cobra.Command, _ []string) error {
	var err error
	c.loggerStopped, err = c.setupLoggers()
	if err != nil {
		return err
	}
	stdlog.SetOutput(c.globalState.logger.Writer())
	c.globalState.logger.Debugf("perlls version: %s", fullVersion())
	return nil
}

// Execute runs the root command; called by main.main().
func Execute() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gs := newGlobalState(ctx)
	ExecuteWithGlobalState(gs, cancel)
}

// ExecuteWithGlobalState runs the CLI against a prepared globalState, the
// entry point the integration tests use.
func ExecuteWithGlobalState(gs *globalState, cancel context.CancelFunc) {
	rootCmd := newRootCommand(gs)

	if err := rootCmd.cmd.Execute(); err != nil {
		exitCode := -1
		var ecerr errext.HasExitCode
		if errors.As(err, &ecerr) {
			exitCode = int(ecerr.ExitCode())
		}

		fields := logrus.Fields{}
		var herr errext.HasHint
		if errors.As(err, &herr) {
			fields["hint"] = herr.Hint()
		}

		gs.logger.WithFields(fields).Error(err.Error())
		cancel()
		gs.osExit(exitCode)
		return
	}

	cancel()
}

func rootCmdPersistentFlagSet(gs *globalState) *pflag.FlagSet {
	flags := pflag.NewFlagSet("", pflag.ContinueOnError)

	flags.StringVar(&gs.flags.LogOutput, "log-output", gs.flags.LogOutput,
		"change the output for perlls logs, possible values are stderr,none,file[=./path.log]")
	flags.Lookup("log-output").DefValue = gs.defaultFlags.LogOutput

	flags.StringVar(&gs.flags.LogFormat, "log-format", gs.flags.LogFormat, "log output format (text or json)")
	flags.Lookup("log-format").DefValue = gs.defaultFlags.LogFormat

	flags.BoolVar(&gs.flags.NoColor, "no-color", gs.flags.NoColor, "disable colored output")
	flags.BoolVarP(&gs.flags.Verbose, "verbose", "v", gs.defaultFlags.Verbose, "enable verbose logging")
	flags.BoolVarP(&gs.flags.Quiet, "quiet", "q", gs.defaultFlags.Quiet, "disable non-essential output")
	flags.StringVarP(&gs.flags.Address, "address", "a", gs.defaultFlags.Address,
		"serve LSP over a websocket on this address instead of stdio")

	return flags
}

// RawFormatter prints the message and nothing else.
type RawFormatter struct{}

// Format renders a single log entry.
func (f RawFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	return append([]byte(entry.Message), '\n'), nil
}

// setupLoggers configures the log output per the flags. The returned
// channel closes when any asynchronous log sink has flushed after the
// global context is cancelled.
func (c *rootCommand) setupLoggers() (<-chan struct{}, error) {
	ch := make(chan struct{})
	close(ch)
	var stopped <-chan struct{} = ch

	gs := c.globalState
	if gs.flags.Verbose {
		gs.logger.SetLevel(logrus.DebugLevel)
	}

	loggerForceColors := false
	switch line := gs.flags.LogOutput; {
	case line == "stderr":
		loggerForceColors = !gs.flags.NoColor && gs.stdErr.isTTY
		gs.logger.SetOutput(gs.stdErr)
	case line == "none":
		gs.logger.SetOutput(io.Discard)
	case strings.HasPrefix(line, "file"):
		hook, err := log.FileHookFromConfigLine(gs.ctx, gs.fallbackLogger, line)
		if err != nil {
			return nil, err
		}
		gs.logger.AddHook(hook)
		if d, ok := hook.(interface{ Done() <-chan struct{} }); ok {
			stopped = d.Done()
		}
		gs.logger.SetOutput(io.Discard)
	default:
		return nil, fmt.Errorf("unsupported log output '%s'", line)
	}

	switch gs.flags.LogFormat {
	case "raw":
		gs.logger.SetFormatter(&RawFormatter{})
	case "json":
		gs.logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		gs.logger.SetFormatter(&logrus.TextFormatter{
			ForceColors: loggerForceColors, DisableColors: gs.flags.NoColor,
		})
	}
	return stopped, nil
}

// handleSignals cancels the run context on SIGINT/SIGTERM.
func handleSignals(gs *globalState, cancel context.CancelFunc) func() {
	sigCh := make(chan os.Signal, 1)
	gs.signalNotify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		if _, ok := <-sigCh; ok {
			gs.logger.Debug("signal received, shutting down")
			cancel()
		}
	}()
	return func() {
		gs.signalStop(sigCh)
		close(sigCh)
	}
}
