package session

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/windrig/backend/internal/capture"
	"github.com/windrig/backend/internal/catalog"
	"github.com/windrig/backend/internal/models"
	"github.com/windrig/backend/pkg/queue"
	"github.com/windrig/backend/pkg/response"
)

// ClipIndex records finalized clips in the media index.
type ClipIndex interface {
	Insert(ctx context.Context, clip *models.Clip) error
}

// Handler exposes the recording session over HTTP. It owns the relay between
// the state machine and the capture device: the controller decides, the
// handler drives the hardware, and the device's finalize callback feeds the
// confirmation back.
type Handler struct {
	ctrl       *Controller
	device     capture.Device
	clips      ClipIndex
	lister     *catalog.Lister
	queue      *queue.Queue
	clipFolder string
	probeTO    time.Duration
	baseCtx    context.Context
	logger     *zap.Logger
}

// NewHandler creates a session handler. baseCtx bounds background work done
// after a clip finalizes (index insert, archive enqueue, catalog refresh);
// pass the server's lifetime context.
func NewHandler(
	baseCtx context.Context,
	ctrl *Controller,
	device capture.Device,
	clips ClipIndex,
	lister *catalog.Lister,
	q *queue.Queue,
	clipFolder string,
	probeTimeout time.Duration,
	logger *zap.Logger,
) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if probeTimeout <= 0 {
		probeTimeout = 5 * time.Second
	}
	return &Handler{
		ctrl:       ctrl,
		device:     device,
		clips:      clips,
		lister:     lister,
		queue:      q,
		clipFolder: clipFolder,
		probeTO:    probeTimeout,
		baseCtx:    baseCtx,
		logger:     logger,
	}
}

// State handles GET /rig/state.
func (h *Handler) State(c *gin.Context) {
	response.OK(c, h.ctrl.Snapshot())
}

// AcquireCamera handles POST /rig/lease. Probes the camera source; a
// reachable camera grants the session, an unreachable one denies it.
func (h *Handler) AcquireCamera(c *gin.Context) {
	if h.device.Busy() {
		// The camera is mid-recording; a re-lease must not disturb it.
		h.logger.Warn("lease refused, device busy")
		response.OK(c, h.ctrl.Snapshot())
		return
	}
	h.ctrl.PermissionRequested()

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.probeTO)
	defer cancel()
	if err := h.device.Probe(ctx); err != nil {
		h.logger.Warn("camera probe failed", zap.Error(err))
		h.ctrl.PermissionDenied()
		response.OK(c, h.ctrl.Snapshot())
		return
	}
	h.ctrl.PermissionsGranted()
	response.OK(c, h.ctrl.Snapshot())
}

// PrimaryAction handles POST /rig/record: start when ready, request stop
// when recording, no-op otherwise.
func (h *Handler) PrimaryAction(c *gin.Context) {
	switch h.ctrl.PrimaryAction() {
	case ActionStartCapture:
		clipID := uuid.New()
		if err := h.device.Start(clipID, h.finalize); err != nil {
			h.logger.Error("capture start failed", zap.Error(err))
			h.ctrl.Fail("capture start failed: " + err.Error())
			response.OK(c, h.ctrl.Snapshot())
			return
		}
		response.OK(c, gin.H{"clip_id": clipID, "session": h.ctrl.Snapshot()})
	case ActionStopCapture:
		if err := h.device.Stop(); err != nil {
			// Device has no active recording; resync the state machine
			// instead of leaving it stuck in Recording.
			h.logger.Warn("capture stop failed", zap.Error(err))
			h.ctrl.RecordingFinished()
		}
		response.OK(c, h.ctrl.Snapshot())
	default:
		response.OK(c, h.ctrl.Snapshot())
	}
}

// AcknowledgeNotice handles POST /rig/ack-notice: clears the one-shot
// permission message after the UI has shown it.
func (h *Handler) AcknowledgeNotice(c *gin.Context) {
	h.ctrl.AcknowledgePermissionNotice()
	response.OK(c, h.ctrl.Snapshot())
}

// finalize runs on the device's goroutine once a clip file is closed. It
// confirms the stop to the controller, indexes the clip, queues the archive
// upload, and refreshes the catalog.
func (h *Handler) finalize(res capture.Result) {
	if res.Err != nil {
		h.ctrl.Fail("capture device error: " + res.Err.Error())
		return
	}
	h.ctrl.RecordingFinished()

	clip := &models.Clip{
		ID:          res.ClipID,
		DisplayName: "run-" + time.Now().Format("20060102-150405"),
		Folder:      h.clipFolder,
		LocalPath:   res.Path,
		DurationMS:  res.DurationMS,
		SizeBytes:   res.SizeBytes,
		MimeType:    "video/mp4",
		Status:      models.ClipStatusRecorded,
	}
	if h.clips == nil {
		return
	}
	if err := h.clips.Insert(h.baseCtx, clip); err != nil {
		h.logger.Error("index clip failed", zap.Error(err), zap.String("clip_id", res.ClipID.String()))
		return
	}
	if h.queue != nil {
		if err := h.queue.EnqueueClipArchive(h.baseCtx, queue.ClipArchivePayload{
			ClipID:    clip.ID,
			LocalPath: clip.LocalPath,
		}); err != nil {
			h.logger.Error("enqueue archive failed", zap.Error(err), zap.String("clip_id", clip.ID.String()))
		}
	}
	if h.lister != nil {
		h.lister.Refresh(h.baseCtx, h.clipFolder)
	}
	h.logger.Info("clip indexed",
		zap.String("clip_id", clip.ID.String()),
		zap.Int64("duration_ms", clip.DurationMS),
	)
}
