package session

// Process exit codes.
const (
	ExitCodeSuccess        = 0 // session completed (or stopped by the user)
	ExitCodeDevice         = 1 // instrument communication failure, HV off
	ExitCodeConfig         = 2 // invalid configuration or arguments
	ExitCodeExistingOutput = 3 // an output file already exists
	ExitCodeStorage        = 4 // file-system or storage failure
	ExitCodeTimeout        = 5 // HV ramp or acquisition timeout
)

// ExitCode maps a Run error to a process exit code.
//
// Exit code mapping:
//   - nil: 0
//   - KindDevice, KindHVOff: 1
//   - KindConfig: 2
//   - KindExistingOutput: 3
//   - KindStorage: 4
//   - KindTimeout: 5
//
// Errors that are not *Error map to 1.
func ExitCode(err error) int {
	if err == nil {
		return ExitCodeSuccess
	}
	switch KindOf(err) {
	case KindConfig:
		return ExitCodeConfig
	case KindExistingOutput:
		return ExitCodeExistingOutput
	case KindStorage:
		return ExitCodeStorage
	case KindTimeout:
		return ExitCodeTimeout
	default:
		return ExitCodeDevice
	}
}
