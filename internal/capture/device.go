package capture

import (
	"context"

	"github.com/google/uuid"
)

// Result describes a finalized clip file. Err is set when the device failed
// mid-recording; the file fields are still best-effort populated.
type Result struct {
	ClipID     uuid.UUID
	Path       string
	SizeBytes  int64
	DurationMS int64
	Err        error
}

// FinalizeFunc is invoked exactly once per started clip, after the device
// has flushed and closed the output file (clean stop, error, or the
// max-duration cap — all of them end here).
type FinalizeFunc func(Result)

// Device drives the rig camera. The session controller never talks to a
// Device directly; the owner relays between them.
type Device interface {
	// Probe checks that the camera source is reachable. Acquiring the
	// camera for a session starts with a successful probe.
	Probe(ctx context.Context) error
	// Start begins recording a clip. done fires when the file is finalized.
	Start(clipID uuid.UUID, done FinalizeFunc) error
	// Stop asks the device to finish the active recording. The actual end
	// is reported asynchronously through the FinalizeFunc.
	Stop() error
	// Busy reports whether a recording is active.
	Busy() bool
}
