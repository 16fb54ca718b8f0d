package catalog

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/windrig/backend/internal/models"
)

// Index is the media index the lister queries. Implementations may return
// rows in any order; ordering of the published list is the lister's own
// contract.
type Index interface {
	ListByFolder(ctx context.Context, folder string) ([]models.Clip, error)
}

// Snapshot is an atomic view of the catalog. Loading distinguishes "empty
// because nothing matched" from "empty because still querying". Err is set
// on query failure; Items then still holds the previously published list.
type Snapshot struct {
	Loading bool          `json:"loading"`
	Items   []models.Clip `json:"items"`
	Err     string        `json:"error,omitempty"`
}

// Notifier receives catalog snapshots when a refresh completes or fails.
type Notifier func(Snapshot)

// Lister produces the newest-first clip list for one configured folder
// without blocking the caller. The query runs on its own goroutine; a
// generation counter plus the caller's context guarantee a superseded or
// cancelled query never publishes a stale result.
type Lister struct {
	index  Index
	log    *zap.Logger
	notify Notifier

	mu      sync.Mutex
	loading bool
	items   []models.Clip
	errMsg  string
	gen     uint64
}

// NewLister creates a lister over the given index.
func NewLister(index Index, log *zap.Logger) *Lister {
	if log == nil {
		log = zap.NewNop()
	}
	return &Lister{index: index, log: log}
}

// SetNotifier sets the snapshot notifier (e.g. the websocket hub).
func (l *Lister) SetNotifier(n Notifier) {
	l.mu.Lock()
	l.notify = n
	l.mu.Unlock()
}

// Snapshot returns the current catalog view.
func (l *Lister) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshotLocked()
}

func (l *Lister) snapshotLocked() Snapshot {
	items := make([]models.Clip, len(l.items))
	copy(items, l.items)
	return Snapshot{Loading: l.loading, Items: items, Err: l.errMsg}
}

// Refresh re-queries the index for clips under folder and publishes the
// sorted result. It returns immediately; the loading flag is raised (and a
// loading snapshot published) before the query starts, then cleared when
// the result (or failure) lands. If ctx is cancelled before the query
// completes, the result is discarded and no further snapshot is published.
func (l *Lister) Refresh(ctx context.Context, folder string) {
	l.mu.Lock()
	l.gen++
	gen := l.gen
	l.loading = true
	l.errMsg = ""
	snap, notify := l.snapshotLocked(), l.notify
	l.mu.Unlock()
	if notify != nil {
		notify(snap)
	}

	go l.run(ctx, gen, folder)
}

func (l *Lister) run(ctx context.Context, gen uint64, folder string) {
	clips, err := l.index.ListByFolder(ctx, folder)
	if ctx.Err() != nil {
		// Caller scope ended; discard whatever we got, but don't leave
		// the loading flag stuck for later snapshot readers.
		l.mu.Lock()
		if gen == l.gen {
			l.loading = false
		}
		l.mu.Unlock()
		return
	}

	l.mu.Lock()
	if gen != l.gen {
		// A newer refresh superseded this one.
		l.mu.Unlock()
		return
	}
	l.loading = false
	if err != nil {
		// Keep the previously published items so the owner can keep
		// rendering them alongside the error.
		l.errMsg = "catalog query failed: " + err.Error()
		snap, notify := l.snapshotLocked(), l.notify
		l.mu.Unlock()
		l.log.Error("catalog refresh failed", zap.String("folder", folder), zap.Error(err))
		if notify != nil {
			notify(snap)
		}
		return
	}

	// Newest first by the index's added time. Ordering is our contract,
	// not the store's.
	sort.SliceStable(clips, func(i, j int) bool {
		return clips[i].AddedAt.After(clips[j].AddedAt)
	})
	l.items = clips
	snap, notify := l.snapshotLocked(), l.notify
	l.mu.Unlock()
	l.log.Debug("catalog refreshed", zap.String("folder", folder), zap.Int("count", len(clips)))
	if notify != nil {
		notify(snap)
	}
}
