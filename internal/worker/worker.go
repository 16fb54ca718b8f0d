package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/windrig/backend/internal/models"
	"github.com/windrig/backend/pkg/queue"
	"github.com/windrig/backend/pkg/storage"
)

// ClipStore is the slice of the media index the archive worker needs.
type ClipStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Clip, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
	MarkArchived(ctx context.Context, id uuid.UUID, s3URL, s3Key string) error
}

// Uploader streams a clip file to the archive bucket.
type Uploader interface {
	Upload(ctx context.Context, key, contentType string, body io.Reader) (string, error)
}

// ArchiveProcessor processes clip archive jobs: stream the local clip file to
// S3 and record the archive location in the index.
type ArchiveProcessor struct {
	clips  ClipStore
	s3     Uploader
	queue  *queue.Queue
	logger *zap.Logger
}

// NewArchiveProcessor creates a clip archive processor.
func NewArchiveProcessor(clips ClipStore, s3 Uploader, q *queue.Queue, logger *zap.Logger) *ArchiveProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ArchiveProcessor{clips: clips, s3: s3, queue: q, logger: logger}
}

// Process executes one clip archive job.
func (p *ArchiveProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeClipArchive {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.ClipArchivePayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	clip, err := p.clips.GetByID(ctx, payload.ClipID)
	if err != nil {
		return fmt.Errorf("load clip: %w", err)
	}
	if clip == nil {
		return fmt.Errorf("clip not found: %s", payload.ClipID)
	}
	if clip.Status == models.ClipStatusArchived {
		p.logger.Info("clip already archived", zap.String("clip_id", clip.ID.String()))
		return nil
	}

	if err := p.clips.UpdateStatus(ctx, clip.ID, models.ClipStatusArchiving); err != nil {
		return fmt.Errorf("mark archiving: %w", err)
	}

	f, err := os.Open(payload.LocalPath)
	if err != nil {
		return fmt.Errorf("open clip file: %w", err)
	}
	defer f.Close()

	key := storage.ClipKey(clip.ID.String())
	s3URL, err := p.s3.Upload(ctx, key, clip.MimeType, f)
	if err != nil {
		return fmt.Errorf("archive upload: %w", err)
	}

	if err := p.clips.MarkArchived(ctx, clip.ID, s3URL, key); err != nil {
		return fmt.Errorf("mark archived: %w", err)
	}

	p.logger.Info("clip archived",
		zap.String("clip_id", clip.ID.String()),
		zap.String("s3_key", key),
	)
	return nil
}

// markFailed settles the clip row for a job that exhausted its retries, so
// the catalog does not report it as in progress forever.
func (p *ArchiveProcessor) markFailed(ctx context.Context, job *queue.Job) {
	var payload queue.ClipArchivePayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		p.logger.Error("dead-lettered job has invalid payload", zap.String("job_id", job.ID), zap.Error(err))
		return
	}
	if err := p.clips.UpdateStatus(ctx, payload.ClipID, models.ClipStatusFailed); err != nil {
		p.logger.Error("mark clip failed", zap.String("clip_id", payload.ClipID.String()), zap.Error(err))
		return
	}
	p.logger.Warn("clip archive failed permanently", zap.String("clip_id", payload.ClipID.String()))
}

// Run starts the worker loop: dequeue, process, retry on error. A job that
// exhausts its retries lands in the DLQ and its clip is marked failed.
func (p *ArchiveProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("archive worker stopping")
			return
		default:
		}

		job, _, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				p.logger.Info("archive worker stopping")
				return
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			time.Sleep(queue.RetryBackoff)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			deadLettered, reErr := p.queue.Retry(ctx, job)
			if reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			if deadLettered {
				p.markFailed(ctx, job)
			}
			time.Sleep(queue.RetryBackoff)
		}
	}
}
