package catalog

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/windrig/backend/internal/models"
)

// stubIndex returns canned clips or an error, with an optional delay.
type stubIndex struct {
	mu    sync.Mutex
	clips []models.Clip
	err   error
	delay time.Duration
}

func (s *stubIndex) set(clips []models.Clip, err error, delay time.Duration) {
	s.mu.Lock()
	s.clips, s.err, s.delay = clips, err, delay
	s.mu.Unlock()
}

func (s *stubIndex) ListByFolder(ctx context.Context, folder string) ([]models.Clip, error) {
	s.mu.Lock()
	clips, err, delay := s.clips, s.err, s.delay
	s.mu.Unlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	out := make([]models.Clip, len(clips))
	copy(out, clips)
	return out, nil
}

func clipAt(name string, addedUnix int64) models.Clip {
	return models.Clip{
		ID:          uuid.New(),
		DisplayName: name,
		Folder:      "wind-tunnel/clips",
		Status:      models.ClipStatusRecorded,
		AddedAt:     time.Unix(addedUnix, 0),
	}
}

// waitSettled polls until the lister is no longer loading.
func waitSettled(t *testing.T, l *Lister) Snapshot {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if snap := l.Snapshot(); !snap.Loading {
			return snap
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("lister did not settle")
	return Snapshot{}
}

func TestRefreshSortsNewestFirst(t *testing.T) {
	idx := &stubIndex{clips: []models.Clip{
		clipAt("A", 10),
		clipAt("B", 30),
		clipAt("C", 20),
	}}
	l := NewLister(idx, zap.NewNop())

	l.Refresh(context.Background(), "wind-tunnel/clips")
	snap := waitSettled(t, l)

	if snap.Err != "" {
		t.Fatalf("unexpected error: %s", snap.Err)
	}
	want := []string{"B", "C", "A"}
	if len(snap.Items) != len(want) {
		t.Fatalf("got %d items, want %d", len(snap.Items), len(want))
	}
	for i, name := range want {
		if snap.Items[i].DisplayName != name {
			t.Errorf("items[%d] = %s, want %s", i, snap.Items[i].DisplayName, name)
		}
	}
}

func TestRefreshEmptyIsNotAnError(t *testing.T) {
	l := NewLister(&stubIndex{delay: 5 * time.Millisecond}, zap.NewNop())

	l.Refresh(context.Background(), "")
	if !l.Snapshot().Loading {
		t.Fatal("loading flag not raised during query")
	}
	snap := waitSettled(t, l)

	if snap.Err != "" {
		t.Fatalf("empty result reported error: %s", snap.Err)
	}
	if len(snap.Items) != 0 {
		t.Fatalf("got %d items, want 0", len(snap.Items))
	}
}

func TestRefreshFailureKeepsPreviousItems(t *testing.T) {
	idx := &stubIndex{clips: []models.Clip{clipAt("A", 10)}}
	l := NewLister(idx, zap.NewNop())

	l.Refresh(context.Background(), "wind-tunnel/clips")
	first := waitSettled(t, l)
	if len(first.Items) != 1 {
		t.Fatalf("seed refresh got %d items", len(first.Items))
	}

	idx.set(nil, errors.New("index unreachable"), 0)
	l.Refresh(context.Background(), "wind-tunnel/clips")
	snap := waitSettled(t, l)

	if snap.Err == "" {
		t.Fatal("failure produced no error value")
	}
	if snap.Loading {
		t.Fatal("loading flag stuck after failure")
	}
	if len(snap.Items) != 1 || snap.Items[0].DisplayName != "A" {
		t.Fatalf("previous items clobbered: %+v", snap.Items)
	}
}

func TestRefreshPublishesLoadingSnapshot(t *testing.T) {
	idx := &stubIndex{clips: []models.Clip{clipAt("A", 10)}, delay: 5 * time.Millisecond}
	l := NewLister(idx, zap.NewNop())

	snaps := make(chan Snapshot, 4)
	l.SetNotifier(func(snap Snapshot) { snaps <- snap })
	l.Refresh(context.Background(), "wind-tunnel/clips")

	first := <-snaps
	if !first.Loading {
		t.Fatalf("first notification = %+v, want loading", first)
	}
	second := <-snaps
	if second.Loading {
		t.Fatalf("second notification = %+v, want settled", second)
	}
	if len(second.Items) != 1 {
		t.Fatalf("settled with %d items, want 1", len(second.Items))
	}
}

func TestCancelledRefreshPublishesNothing(t *testing.T) {
	idx := &stubIndex{clips: []models.Clip{clipAt("A", 10)}, delay: 50 * time.Millisecond}
	l := NewLister(idx, zap.NewNop())

	snaps := make(chan Snapshot, 4)
	l.SetNotifier(func(snap Snapshot) { snaps <- snap })

	ctx, cancel := context.WithCancel(context.Background())
	l.Refresh(ctx, "wind-tunnel/clips")
	<-snaps // loading notification
	cancel()
	time.Sleep(80 * time.Millisecond)

	select {
	case snap := <-snaps:
		t.Fatalf("cancelled query published %+v", snap)
	default:
	}
	snap := l.Snapshot()
	if len(snap.Items) != 0 {
		t.Fatalf("cancelled query published %d items", len(snap.Items))
	}
	if snap.Loading {
		t.Fatal("loading flag stuck after cancellation")
	}
}

func TestNewerRefreshSupersedesOlder(t *testing.T) {
	slow := &stubIndex{clips: []models.Clip{clipAt("stale", 1)}, delay: 40 * time.Millisecond}
	l := NewLister(slow, zap.NewNop())

	l.Refresh(context.Background(), "wind-tunnel/clips")
	// Second refresh lands first; the slow one must be discarded.
	slow.set([]models.Clip{clipAt("fresh", 2)}, nil, 0)
	l.Refresh(context.Background(), "wind-tunnel/clips")

	time.Sleep(80 * time.Millisecond)
	snap := l.Snapshot()
	if len(snap.Items) != 1 || snap.Items[0].DisplayName != "fresh" {
		t.Fatalf("stale query overwrote newer result: %+v", snap.Items)
	}
}
