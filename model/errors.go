package model

import "golang.org/x/xerrors"

var (
	// ErrDeviceUnavailable means the camera could not be acquired: permission
	// denied, no such device or the device failed to open.
	ErrDeviceUnavailable = xerrors.New("device unavailable")
	ErrModelLoadFailure  = xerrors.New("model load failure")
	// ErrInferenceFailure is transient unless the runner's policy is Halt.
	ErrInferenceFailure = xerrors.New("inference failure")
	// ErrSourceExhausted is a terminal signal, not a failure.
	ErrSourceExhausted = xerrors.New("source exhausted")

	ErrRunnerBusy = xerrors.New("runner is busy")
	ErrNoSource   = xerrors.New("no active source")
)
