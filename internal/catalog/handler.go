package catalog

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/windrig/backend/internal/models"
	"github.com/windrig/backend/pkg/response"
	"github.com/windrig/backend/pkg/storage"
)

// Handler exposes the clip catalog over HTTP.
type Handler struct {
	lister     *Lister
	repo       *Repository
	s3         *storage.S3
	clipFolder string
	baseCtx    context.Context
	logger     *zap.Logger
}

// NewHandler creates a catalog handler. baseCtx bounds refresh queries so a
// refresh survives the triggering request but dies with the server; pass the
// server's lifetime context. s3 may be nil; download URLs are then
// unavailable.
func NewHandler(baseCtx context.Context, lister *Lister, repo *Repository, s3 *storage.S3, clipFolder string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{lister: lister, repo: repo, s3: s3, clipFolder: clipFolder, baseCtx: baseCtx, logger: logger}
}

// List handles GET /rig/clips: the current catalog snapshot (items,
// loading flag, last error).
func (h *Handler) List(c *gin.Context) {
	response.OK(c, h.lister.Snapshot())
}

// Refresh handles POST /rig/clips/refresh: kicks off a re-query and returns
// immediately with the (now loading) snapshot.
func (h *Handler) Refresh(c *gin.Context) {
	h.lister.Refresh(h.baseCtx, h.clipFolder)
	response.OK(c, h.lister.Snapshot())
}

// DownloadURL handles GET /clips/:id/download-url. Only archived clips have
// a presignable S3 object.
func (h *Handler) DownloadURL(c *gin.Context) {
	clipID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid clip id")
		return
	}
	clip, err := h.repo.GetByID(c.Request.Context(), clipID)
	if err != nil {
		h.logger.Error("get clip failed", zap.Error(err), zap.String("clip_id", clipID.String()))
		response.Internal(c, "failed to load clip")
		return
	}
	if clip == nil {
		response.NotFound(c, "clip not found")
		return
	}
	if clip.Status != models.ClipStatusArchived || clip.S3Key == "" {
		response.BadRequest(c, "clip not archived yet")
		return
	}
	if h.s3 == nil {
		response.ServiceUnavailable(c, "archive storage not configured")
		return
	}
	expire := h.s3.PresignExpire()
	url, err := h.s3.PresignDownload(c.Request.Context(), clip.S3Key, expire)
	if err != nil {
		h.logger.Error("presign clip download failed", zap.Error(err), zap.String("clip_id", clipID.String()))
		response.Internal(c, "failed to generate download URL")
		return
	}
	response.OK(c, gin.H{"download_url": url, "expires_in": int(expire.Seconds())})
}
