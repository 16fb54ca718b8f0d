package session

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// State is the recording session state. Exactly one is current at any time.
type State string

const (
	StateIdle                State = "idle"
	StatePermissionRequested State = "permission_requested"
	StateReady               State = "ready"
	StateRecording           State = "recording"
	StateError               State = "error"
)

// Action tells the owner what to do with the capture device after a primary
// action. The controller never drives the device itself.
type Action int

const (
	// ActionNone means the press was a no-op (wrong state, e.g. a double-tap race).
	ActionNone Action = iota
	// ActionStartCapture means the owner must start the capture device.
	ActionStartCapture
	// ActionStopCapture means the owner must tell the capture device to stop.
	// State stays Recording until the device confirms via RecordingFinished.
	ActionStopCapture
)

// Snapshot is an atomic view of the session published to consumers. Readers
// never observe a half-updated state/elapsed pair.
type Snapshot struct {
	State            State  `json:"state"`
	ElapsedMS        int64  `json:"elapsed_ms"`
	PermissionNotice bool   `json:"permission_notice"`
	Reason           string `json:"reason,omitempty"`
}

// Publisher receives session snapshots on every state change and timer tick.
type Publisher func(Snapshot)

const defaultTickInterval = time.Second

// Controller owns the recording session state machine and the duration timer.
//
// Pressing the primary control while recording does not flip the state back
// to ready: the real end of a hardware recording is asynchronous (the device
// must flush and finalize a file), so the state only changes once the owner
// confirms with RecordingFinished. Published state mirrors confirmed hardware
// truth, not operator intent.
type Controller struct {
	mu    sync.Mutex
	state State

	startedAt time.Time // monotonic reading, zero unless recording
	elapsed   time.Duration

	permissionNotice bool
	reason           string
	stopIntent       bool

	// tickGen invalidates in-flight tick loops: a loop only publishes while
	// its generation matches, so cancellation is synchronous from the
	// controller's point of view even though the ticker stops asynchronously.
	tickGen  uint64
	tickStop chan struct{}
	tick     time.Duration

	torn    bool
	publish Publisher
	log     *zap.Logger
}

// Option configures a Controller.
type Option func(*Controller)

// WithTickInterval overrides the timer tick period (default 1s).
func WithTickInterval(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.tick = d
		}
	}
}

// WithPublisher sets the snapshot publisher.
func WithPublisher(p Publisher) Option {
	return func(c *Controller) { c.publish = p }
}

// NewController creates a controller in the Idle state.
func NewController(log *zap.Logger, opts ...Option) *Controller {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Controller{
		state: StateIdle,
		tick:  defaultTickInterval,
		log:   log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Snapshot returns the current session view.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	return Snapshot{
		State:            c.state,
		ElapsedMS:        c.elapsed.Milliseconds(),
		PermissionNotice: c.permissionNotice,
		Reason:           c.reason,
	}
}

// PermissionRequested marks that the owner has started acquiring the camera.
func (c *Controller) PermissionRequested() {
	c.mu.Lock()
	if c.state == StateRecording {
		// Never mask an active recording; ignore.
		c.log.Warn("permission request ignored while recording")
		c.mu.Unlock()
		return
	}
	c.state = StatePermissionRequested
	snap, pub := c.snapshotLocked(), c.publish
	c.mu.Unlock()
	emit(pub, snap)
}

// PermissionsGranted moves the session to Ready. Ignored while Recording:
// a late grant must not claim the device is idle while a finalize is still
// outstanding.
func (c *Controller) PermissionsGranted() {
	c.mu.Lock()
	if c.state == StateRecording {
		c.log.Warn("camera grant ignored while recording")
		c.mu.Unlock()
		return
	}
	c.state = StateReady
	c.reason = ""
	snap, pub := c.snapshotLocked(), c.publish
	c.mu.Unlock()
	emit(pub, snap)
}

// PermissionDenied moves the session to Error and raises the one-shot
// permission notice. The notice stays up until AcknowledgePermissionNotice.
// Ignored while Recording for the same reason as PermissionsGranted.
func (c *Controller) PermissionDenied() {
	c.mu.Lock()
	if c.state == StateRecording {
		c.log.Warn("camera denial ignored while recording")
		c.mu.Unlock()
		return
	}
	c.stopTimerLocked()
	c.state = StateError
	c.permissionNotice = true
	c.reason = "camera access denied"
	snap, pub := c.snapshotLocked(), c.publish
	c.mu.Unlock()
	emit(pub, snap)
}

// AcknowledgePermissionNotice clears the one-shot notice so a later
// re-render does not show it again. State is left untouched.
func (c *Controller) AcknowledgePermissionNotice() {
	c.mu.Lock()
	c.permissionNotice = false
	c.mu.Unlock()
}

// PrimaryAction handles the record control press and returns what the owner
// must do with the capture device. Presses in unexpected states are no-ops.
func (c *Controller) PrimaryAction() Action {
	c.mu.Lock()
	switch c.state {
	case StateReady:
		c.state = StateRecording
		c.startedAt = time.Now()
		c.elapsed = 0
		c.stopIntent = false
		c.startTimerLocked()
		snap, pub := c.snapshotLocked(), c.publish
		c.mu.Unlock()
		emit(pub, snap)
		return ActionStartCapture
	case StateRecording:
		// Stop intent only. The transition out of Recording waits for the
		// device to confirm finalization via RecordingFinished.
		if c.stopIntent {
			c.log.Debug("stop already requested")
		}
		c.stopIntent = true
		c.mu.Unlock()
		return ActionStopCapture
	default:
		c.log.Debug("primary action ignored", zap.String("state", string(c.state)))
		c.mu.Unlock()
		return ActionNone
	}
}

// RecordingFinished is the device's confirmation that the recording has been
// finalized. Idempotent; calling it while not recording only re-zeroes the
// timer.
func (c *Controller) RecordingFinished() {
	c.mu.Lock()
	c.stopTimerLocked()
	changed := c.state == StateRecording
	if changed {
		c.state = StateReady
	}
	c.elapsed = 0
	c.startedAt = time.Time{}
	c.stopIntent = false
	snap, pub := c.snapshotLocked(), c.publish
	c.mu.Unlock()
	if changed {
		emit(pub, snap)
	}
}

// Fail moves the session to Error from any state and stops the timer.
// Retry, if wanted, is owner policy.
func (c *Controller) Fail(reason string) {
	c.mu.Lock()
	c.stopTimerLocked()
	c.state = StateError
	c.elapsed = 0
	c.startedAt = time.Time{}
	c.stopIntent = false
	c.reason = reason
	snap, pub := c.snapshotLocked(), c.publish
	c.mu.Unlock()
	c.log.Warn("session error", zap.String("reason", reason))
	emit(pub, snap)
}

// Teardown stops the timer and prevents any further publishes. Safe to call
// multiple times or with no timer running.
func (c *Controller) Teardown() {
	c.mu.Lock()
	c.torn = true
	c.publish = nil
	c.stopTimerLocked()
	c.mu.Unlock()
}

// startTimerLocked begins the repeating elapsed-time tick. Caller holds mu
// and has already set startedAt.
func (c *Controller) startTimerLocked() {
	c.stopTimerLocked()
	c.tickGen++
	gen := c.tickGen
	stop := make(chan struct{})
	c.tickStop = stop
	go c.tickLoop(gen, stop)
}

// stopTimerLocked cancels the current tick loop. Caller holds mu. Bumping
// the generation guarantees an in-flight tick that raced the stop will not
// publish.
func (c *Controller) stopTimerLocked() {
	if c.tickStop != nil {
		close(c.tickStop)
		c.tickStop = nil
	}
	c.tickGen++
}

func (c *Controller) tickLoop(gen uint64, stop <-chan struct{}) {
	ticker := time.NewTicker(c.tick)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.mu.Lock()
			if c.torn || c.tickGen != gen || c.state != StateRecording {
				c.mu.Unlock()
				return
			}
			c.elapsed = time.Since(c.startedAt)
			snap, pub := c.snapshotLocked(), c.publish
			c.mu.Unlock()
			emit(pub, snap)
		}
	}
}

func emit(pub Publisher, snap Snapshot) {
	if pub != nil {
		pub(snap)
	}
}
