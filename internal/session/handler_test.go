package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/windrig/backend/internal/capture"
	"github.com/windrig/backend/internal/models"
)

// stubDevice records calls and hands the finalize callback to the test.
type stubDevice struct {
	mu       sync.Mutex
	probeErr error
	startErr error
	probed   int
	started  int
	stopped  int
	finalize capture.FinalizeFunc
	clipID   uuid.UUID
}

func (d *stubDevice) Probe(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.probed++
	return d.probeErr
}

func (d *stubDevice) Start(clipID uuid.UUID, done capture.FinalizeFunc) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.startErr != nil {
		return d.startErr
	}
	d.started++
	d.clipID = clipID
	d.finalize = done
	return nil
}

func (d *stubDevice) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped++
	return nil
}

func (d *stubDevice) Busy() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.finalize != nil
}

// stubClipIndex records inserted clips.
type stubClipIndex struct {
	mu       sync.Mutex
	inserted []models.Clip
}

func (s *stubClipIndex) Insert(ctx context.Context, clip *models.Clip) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inserted = append(s.inserted, *clip)
	return nil
}

func (s *stubClipIndex) all() []models.Clip {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Clip, len(s.inserted))
	copy(out, s.inserted)
	return out
}

func newTestRouter(t *testing.T, device capture.Device) (*gin.Engine, *Controller) {
	return newTestRouterIndex(t, device, nil)
}

func newTestRouterIndex(t *testing.T, device capture.Device, idx ClipIndex) (*gin.Engine, *Controller) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctrl := NewController(zap.NewNop())
	t.Cleanup(ctrl.Teardown)

	h := NewHandler(context.Background(), ctrl, device, idx, nil, nil, "wind-tunnel/clips", time.Second, zap.NewNop())
	r := gin.New()
	r.GET("/rig/state", h.State)
	r.POST("/rig/lease", h.AcquireCamera)
	r.POST("/rig/record", h.PrimaryAction)
	r.POST("/rig/ack-notice", h.AcknowledgeNotice)
	return r, ctrl
}

func do(t *testing.T, r *gin.Engine, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("%s %s: status %d, body %s", method, path, w.Code, w.Body.String())
	}
	return w
}

func TestLeaseGrantedOnSuccessfulProbe(t *testing.T) {
	r, ctrl := newTestRouter(t, &stubDevice{})

	do(t, r, http.MethodPost, "/rig/lease")
	if got := ctrl.Snapshot().State; got != StateReady {
		t.Fatalf("state = %s, want %s", got, StateReady)
	}
}

func TestLeaseDeniedOnFailedProbe(t *testing.T) {
	r, ctrl := newTestRouter(t, &stubDevice{probeErr: errors.New("no route to camera")})

	do(t, r, http.MethodPost, "/rig/lease")
	snap := ctrl.Snapshot()
	if snap.State != StateError || !snap.PermissionNotice {
		t.Fatalf("snapshot = %+v, want error state with notice", snap)
	}

	do(t, r, http.MethodPost, "/rig/ack-notice")
	if ctrl.Snapshot().PermissionNotice {
		t.Fatal("notice survived acknowledge")
	}
}

func TestRecordStartStopConfirmCycle(t *testing.T) {
	dev := &stubDevice{}
	r, ctrl := newTestRouter(t, dev)
	do(t, r, http.MethodPost, "/rig/lease")

	// Press: start.
	w := do(t, r, http.MethodPost, "/rig/record")
	var body struct {
		Data struct {
			ClipID string `json:"clip_id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Data.ClipID == "" {
		t.Fatal("no clip id returned on start")
	}
	if dev.started != 1 {
		t.Fatalf("device started %d times, want 1", dev.started)
	}
	if got := ctrl.Snapshot().State; got != StateRecording {
		t.Fatalf("state = %s, want %s", got, StateRecording)
	}

	// Press again: stop requested, state holds until the device confirms.
	do(t, r, http.MethodPost, "/rig/record")
	if dev.stopped != 1 {
		t.Fatalf("device stopped %d times, want 1", dev.stopped)
	}
	if got := ctrl.Snapshot().State; got != StateRecording {
		t.Fatalf("state = %s before device confirm, want %s", got, StateRecording)
	}

	// Device error during finalize routes to the error state.
	dev.finalize(capture.Result{ClipID: dev.clipID, Err: errors.New("encoder crashed")})
	if got := ctrl.Snapshot().State; got != StateError {
		t.Fatalf("state = %s after device error, want %s", got, StateError)
	}
}

func TestLeaseRefusedWhileDeviceBusy(t *testing.T) {
	dev := &stubDevice{}
	r, ctrl := newTestRouter(t, dev)
	do(t, r, http.MethodPost, "/rig/lease")
	do(t, r, http.MethodPost, "/rig/record")
	probes := dev.probed

	// Re-leasing mid-recording must not probe the camera or disturb the
	// active session.
	do(t, r, http.MethodPost, "/rig/lease")
	if dev.probed != probes {
		t.Fatalf("device probed %d times during recording, want %d", dev.probed, probes)
	}
	if got := ctrl.Snapshot().State; got != StateRecording {
		t.Fatalf("state = %s after lease while busy, want %s", got, StateRecording)
	}
}

func TestCleanStopIndexesClip(t *testing.T) {
	dev := &stubDevice{}
	idx := &stubClipIndex{}
	r, ctrl := newTestRouterIndex(t, dev, idx)
	do(t, r, http.MethodPost, "/rig/lease")
	do(t, r, http.MethodPost, "/rig/record")
	do(t, r, http.MethodPost, "/rig/record")

	dev.finalize(capture.Result{
		ClipID:     dev.clipID,
		Path:       "/data/clips/wind-tunnel/clips/run.mp4",
		SizeBytes:  2048,
		DurationMS: 1500,
	})

	if got := ctrl.Snapshot().State; got != StateReady {
		t.Fatalf("state after clean finalize = %s, want %s", got, StateReady)
	}
	clips := idx.all()
	if len(clips) != 1 {
		t.Fatalf("indexed %d clips, want 1", len(clips))
	}
	clip := clips[0]
	if clip.ID != dev.clipID {
		t.Fatalf("indexed clip id = %s, want %s", clip.ID, dev.clipID)
	}
	if clip.Folder != "wind-tunnel/clips" || clip.MimeType != "video/mp4" {
		t.Fatalf("clip metadata = %+v", clip)
	}
	if clip.Status != models.ClipStatusRecorded {
		t.Fatalf("clip status = %s, want %s", clip.Status, models.ClipStatusRecorded)
	}
	if clip.DurationMS != 1500 || clip.SizeBytes != 2048 {
		t.Fatalf("clip file fields = %+v", clip)
	}
}

func TestRecordPressIgnoredBeforeLease(t *testing.T) {
	dev := &stubDevice{}
	r, ctrl := newTestRouter(t, dev)

	do(t, r, http.MethodPost, "/rig/record")
	if dev.started != 0 {
		t.Fatal("device started from idle")
	}
	if got := ctrl.Snapshot().State; got != StateIdle {
		t.Fatalf("state = %s, want %s", got, StateIdle)
	}
}

func TestCaptureStartFailureMovesToError(t *testing.T) {
	dev := &stubDevice{startErr: errors.New("device busy")}
	r, ctrl := newTestRouter(t, dev)
	do(t, r, http.MethodPost, "/rig/lease")

	do(t, r, http.MethodPost, "/rig/record")
	if got := ctrl.Snapshot().State; got != StateError {
		t.Fatalf("state = %s, want %s", got, StateError)
	}
}
