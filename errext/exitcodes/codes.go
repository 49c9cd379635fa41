// Package exitcodes enumerates the process exit codes the perlls binary
// uses, so scripts wrapping it get stable values.
package exitcodes

// ExitCode is the process exit status type.
type ExitCode uint8

// The exit codes.
const (
	// GenericError is any failure without a more specific code.
	GenericError ExitCode = 1
	// InvalidConfig means flags, env or the config file could not be
	// used as given.
	InvalidConfig ExitCode = 2
	// CheckFoundProblems is returned by `perlls check` when any checked
	// file has parse errors.
	CheckFoundProblems ExitCode = 3
	// TransportFailed means the stdio or socket transport broke down.
	TransportFailed ExitCode = 4
)
