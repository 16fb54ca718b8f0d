package worker

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/windrig/backend/internal/models"
	"github.com/windrig/backend/pkg/queue"
)

// stubStore serves one clip and records status transitions.
type stubStore struct {
	mu       sync.Mutex
	clip     *models.Clip
	statuses []string
	archived bool
	s3Key    string
}

func (s *stubStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Clip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.clip == nil || s.clip.ID != id {
		return nil, nil
	}
	clip := *s.clip
	return &clip, nil
}

func (s *stubStore) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, status)
	s.clip.Status = status
	return nil
}

func (s *stubStore) MarkArchived(ctx context.Context, id uuid.UUID, s3URL, s3Key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.archived = true
	s.s3Key = s3Key
	s.clip.Status = models.ClipStatusArchived
	return nil
}

// stubUploader counts uploads.
type stubUploader struct {
	uploads int
}

func (u *stubUploader) Upload(ctx context.Context, key, contentType string, body io.Reader) (string, error) {
	u.uploads++
	return "https://archive.test/" + key, nil
}

func archiveJob(t *testing.T, clipID uuid.UUID, localPath string) *queue.Job {
	t.Helper()
	payload, err := json.Marshal(queue.ClipArchivePayload{ClipID: clipID, LocalPath: localPath})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return &queue.Job{ID: uuid.New().String(), Type: queue.JobTypeClipArchive, Payload: payload}
}

func TestProcessArchivesClip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.mp4")
	if err := os.WriteFile(path, []byte("not really mp4"), 0o644); err != nil {
		t.Fatalf("write clip file: %v", err)
	}

	clipID := uuid.New()
	store := &stubStore{clip: &models.Clip{ID: clipID, MimeType: "video/mp4", Status: models.ClipStatusRecorded}}
	up := &stubUploader{}
	p := NewArchiveProcessor(store, up, nil, zap.NewNop())

	if err := p.Process(context.Background(), archiveJob(t, clipID, path)); err != nil {
		t.Fatalf("process: %v", err)
	}
	if up.uploads != 1 {
		t.Fatalf("uploads = %d, want 1", up.uploads)
	}
	if !store.archived {
		t.Fatal("clip not marked archived")
	}
	if want := "clips/" + clipID.String() + ".mp4"; store.s3Key != want {
		t.Fatalf("s3 key = %q, want %q", store.s3Key, want)
	}
}

func TestProcessSkipsAlreadyArchivedClip(t *testing.T) {
	clipID := uuid.New()
	store := &stubStore{clip: &models.Clip{ID: clipID, Status: models.ClipStatusArchived}}
	up := &stubUploader{}
	p := NewArchiveProcessor(store, up, nil, zap.NewNop())

	if err := p.Process(context.Background(), archiveJob(t, clipID, "/nonexistent")); err != nil {
		t.Fatalf("process: %v", err)
	}
	if up.uploads != 0 {
		t.Fatalf("uploads = %d, want 0 for archived clip", up.uploads)
	}
}

func TestDeadLetteredJobMarksClipFailed(t *testing.T) {
	clipID := uuid.New()
	store := &stubStore{clip: &models.Clip{ID: clipID, Status: models.ClipStatusArchiving}}
	p := NewArchiveProcessor(store, &stubUploader{}, nil, zap.NewNop())

	p.markFailed(context.Background(), archiveJob(t, clipID, "/nonexistent"))

	if got := store.clip.Status; got != models.ClipStatusFailed {
		t.Fatalf("clip status = %s after dead-letter, want %s", got, models.ClipStatusFailed)
	}
}
