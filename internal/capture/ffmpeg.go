package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const stopGrace = 10 * time.Second

// FFmpegConfig holds settings for the ffmpeg-driven RTSP capture device.
type FFmpegConfig struct {
	SourceURL      string
	OutputDir      string // empty = os.TempDir()
	ClipFolder     string // storage sub-path shared with the catalog
	MaxDurationSec int
}

// active is one in-flight ffmpeg recording.
type active struct {
	clipID        uuid.UUID
	outputPath    string
	cmd           *exec.Cmd
	startedAt     time.Time
	stopRequested bool
}

// FFmpegDevice records the rig camera by spawning ffmpeg against the RTSP
// source and remuxing into an mp4 under OutputDir/ClipFolder. One recording
// at a time.
type FFmpegDevice struct {
	cfg FFmpegConfig
	log *zap.Logger

	mu  sync.Mutex
	cur *active
}

// NewFFmpegDevice creates the capture device.
func NewFFmpegDevice(cfg FFmpegConfig, log *zap.Logger) *FFmpegDevice {
	if cfg.OutputDir == "" {
		cfg.OutputDir = os.TempDir()
	}
	if cfg.MaxDurationSec <= 0 {
		cfg.MaxDurationSec = 600
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &FFmpegDevice{cfg: cfg, log: log}
}

// Probe checks the RTSP source with ffprobe. Honors ctx for the timeout.
func (d *FFmpegDevice) Probe(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-rtsp_transport", "tcp",
		"-select_streams", "v:0",
		"-show_entries", "stream=codec_name",
		"-of", "csv=p=0",
		"-i", d.cfg.SourceURL,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("probe %s: %w (%s)", d.cfg.SourceURL, err, string(out))
	}
	return nil
}

// Busy reports whether a recording is active.
func (d *FFmpegDevice) Busy() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cur != nil
}

// Start spawns ffmpeg recording one clip. done fires once the process exits
// and the file is closed, however the recording ended.
func (d *FFmpegDevice) Start(clipID uuid.UUID, done FinalizeFunc) error {
	d.mu.Lock()
	if d.cur != nil {
		d.mu.Unlock()
		return errors.New("recording already in progress")
	}

	dir := filepath.Join(d.cfg.OutputDir, filepath.FromSlash(d.cfg.ClipFolder))
	if err := os.MkdirAll(dir, 0750); err != nil {
		d.mu.Unlock()
		return fmt.Errorf("create clip dir: %w", err)
	}
	outputPath := filepath.Join(dir, clipID.String()+".mp4")

	// Copy streams without re-encoding; -t caps runaway recordings.
	cmd := exec.Command("ffmpeg",
		"-rtsp_transport", "tcp",
		"-i", d.cfg.SourceURL,
		"-c", "copy",
		"-t", fmt.Sprintf("%d", d.cfg.MaxDurationSec),
		"-y",
		outputPath,
	)
	if err := cmd.Start(); err != nil {
		d.mu.Unlock()
		return fmt.Errorf("start ffmpeg: %w", err)
	}

	rec := &active{
		clipID:     clipID,
		outputPath: outputPath,
		cmd:        cmd,
		startedAt:  time.Now(),
	}
	d.cur = rec
	d.mu.Unlock()

	d.log.Info("recording started",
		zap.String("clip_id", clipID.String()),
		zap.String("output", outputPath),
	)

	go d.waitAndFinalize(rec, done)
	return nil
}

// waitAndFinalize blocks on ffmpeg exit, then reports the finalized file.
func (d *FFmpegDevice) waitAndFinalize(rec *active, done FinalizeFunc) {
	waitErr := rec.cmd.Wait()

	d.mu.Lock()
	stopRequested := rec.stopRequested
	if d.cur == rec {
		d.cur = nil
	}
	d.mu.Unlock()

	res := Result{
		ClipID:     rec.clipID,
		Path:       rec.outputPath,
		DurationMS: time.Since(rec.startedAt).Milliseconds(),
	}
	if info, err := os.Stat(rec.outputPath); err == nil {
		res.SizeBytes = info.Size()
	}
	// ffmpeg exits non-zero on SIGINT even when the file was finalized
	// cleanly, so a requested stop is not a device error.
	if waitErr != nil && !stopRequested {
		res.Err = fmt.Errorf("ffmpeg exited: %w", waitErr)
		d.log.Error("recording failed", zap.String("clip_id", rec.clipID.String()), zap.Error(waitErr))
	} else {
		d.log.Info("recording finalized",
			zap.String("clip_id", rec.clipID.String()),
			zap.Int64("size_bytes", res.SizeBytes),
			zap.Int64("duration_ms", res.DurationMS),
		)
	}
	if done != nil {
		done(res)
	}
}

// Stop interrupts the active ffmpeg so it flushes and finalizes the mp4.
// Escalates to SIGKILL after a grace period. The end of the recording is
// still reported through the FinalizeFunc passed to Start.
func (d *FFmpegDevice) Stop() error {
	d.mu.Lock()
	rec := d.cur
	if rec == nil {
		d.mu.Unlock()
		return errors.New("no active recording")
	}
	rec.stopRequested = true
	cmd := rec.cmd
	d.mu.Unlock()

	if cmd.Process != nil {
		_ = cmd.Process.Signal(os.Interrupt)
	}
	go func() {
		time.Sleep(stopGrace)
		d.mu.Lock()
		stillRunning := d.cur == rec
		d.mu.Unlock()
		if stillRunning && cmd.Process != nil {
			d.log.Warn("ffmpeg did not exit after interrupt, killing",
				zap.String("clip_id", rec.clipID.String()))
			_ = cmd.Process.Kill()
		}
	}()
	return nil
}
