package pipeline_test

import (
	"bytes"
	"context"
	"errors"
	"image"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"sync/atomic"
	"testing"

	"framepipe/internal/config"
	"framepipe/internal/frames"
	"framepipe/internal/jobstate"
	"framepipe/internal/pipeline"
	"framepipe/internal/processor"
	"framepipe/internal/testsupport"
)

func newRunner(t *testing.T, cfg *config.Config, store *jobstate.Store, registry *processor.Registry) *pipeline.Runner {
	t.Helper()
	runner, err := pipeline.NewRunner(pipeline.Options{
		Config:          cfg,
		Store:           store,
		Registry:        registry,
		ProgressOutput:  &bytes.Buffer{},
		ProgressLogOnly: true,
	})
	if err != nil {
		t.Fatalf("NewRunner failed: %v", err)
	}
	return runner
}

func jobKey(t *testing.T, dir string) jobstate.JobKey {
	t.Helper()
	key, err := frames.JobKeyFor(dir)
	if err != nil {
		t.Fatalf("JobKeyFor failed: %v", err)
	}
	return key
}

func snapshot(t *testing.T, paths []string) map[string][]byte {
	t.Helper()
	out := make(map[string][]byte, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("read %s: %v", path, err)
		}
		out[path] = data
	}
	return out
}

func TestSelectMode(t *testing.T) {
	tests := []struct {
		name        string
		mode        string
		workers     int
		wantMode    pipeline.Mode
		wantWorkers int
	}{
		{name: "auto single", mode: config.ModeAuto, workers: 1, wantMode: pipeline.ModeBounded, wantWorkers: 1},
		{name: "auto many", mode: config.ModeAuto, workers: 4, wantMode: pipeline.ModeParallel, wantWorkers: 4},
		{name: "bounded ignores workers", mode: config.ModeBounded, workers: 8, wantMode: pipeline.ModeBounded, wantWorkers: 1},
		{name: "parallel", mode: config.ModeParallel, workers: 3, wantMode: pipeline.ModeParallel, wantWorkers: 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mode, workers := pipeline.SelectMode(config.Execution{Mode: tt.mode, Workers: tt.workers})
			if mode != tt.wantMode || workers != tt.wantWorkers {
				t.Fatalf("expected %s/%d, got %s/%d", tt.wantMode, tt.wantWorkers, mode, workers)
			}
		})
	}
}

func TestWrapKeepsMarkerAndCause(t *testing.T) {
	base := errors.New("boom")
	err := pipeline.Wrap(pipeline.ErrConfiguration, "validate", "bad workers", base)
	if !errors.Is(err, pipeline.ErrConfiguration) || !errors.Is(err, base) {
		t.Fatalf("expected marker and cause retained, got %v", err)
	}
	for _, fragment := range []string{"validate", "bad workers", "boom"} {
		if !strings.Contains(err.Error(), fragment) {
			t.Fatalf("expected %q in %q", fragment, err.Error())
		}
	}
}

func TestRunProcessesAllFrames(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithWorkers(3), testsupport.WithProcessors("invert"))
	store := testsupport.MustOpenStore(t, cfg)
	dir := filepath.Join(t.TempDir(), "frames")
	paths := testsupport.WriteFrames(t, dir, 10, 4, 4)
	before := snapshot(t, paths)

	summary, err := newRunner(t, cfg, store, nil).Run(context.Background(), dir)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Mode != pipeline.ModeParallel || summary.Workers != 3 {
		t.Fatalf("unexpected mode: %+v", summary)
	}
	if summary.Total != 10 || summary.Dispatched != 10 || summary.Processed != 10 || summary.Failed != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if summary.RunID == "" {
		t.Fatal("expected run id")
	}

	after := snapshot(t, paths)
	for _, path := range paths {
		if bytes.Equal(before[path], after[path]) {
			t.Fatalf("expected %s to be rewritten", filepath.Base(path))
		}
	}

	count, err := store.ProcessedCount(context.Background(), summary.JobKey)
	if err != nil {
		t.Fatalf("ProcessedCount failed: %v", err)
	}
	if count != 10 {
		t.Fatalf("expected 10 processed, got %d", count)
	}
	job, err := store.Job(context.Background(), summary.JobKey)
	if err != nil || job == nil {
		t.Fatalf("Job lookup failed: %v", err)
	}
	if job.Total != 10 || job.LastRunID != summary.RunID {
		t.Fatalf("unexpected job row: %+v", job)
	}
}

func TestRunResumesFromStoredProgress(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithWorkers(3), testsupport.WithProcessors("invert"))
	store := testsupport.MustOpenStore(t, cfg)
	dir := t.TempDir()
	paths := testsupport.WriteFrames(t, dir, 10, 4, 4)
	key := jobKey(t, dir)

	for _, id := range []string{"0002.png", "0007.png"} {
		if err := store.MarkProcessed(context.Background(), key, id, "earlier-run"); err != nil {
			t.Fatalf("MarkProcessed failed: %v", err)
		}
	}
	before := snapshot(t, paths)

	summary, err := newRunner(t, cfg, store, nil).Run(context.Background(), dir)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Skipped != 2 || summary.Dispatched != 8 || summary.Processed != 8 {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	after := snapshot(t, paths)
	for _, path := range paths {
		unchanged := bytes.Equal(before[path], after[path])
		skipped := strings.HasSuffix(path, "0002.png") || strings.HasSuffix(path, "0007.png")
		if skipped != unchanged {
			t.Fatalf("%s: skipped=%v unchanged=%v", filepath.Base(path), skipped, unchanged)
		}
	}

	count, err := store.ProcessedCount(context.Background(), key)
	if err != nil {
		t.Fatalf("ProcessedCount failed: %v", err)
	}
	if count != 10 {
		t.Fatalf("expected all 10 marked, got %d", count)
	}
	job, err := store.Job(context.Background(), key)
	if err != nil || job == nil {
		t.Fatalf("Job lookup failed: %v", err)
	}
	if job.LastRunID != summary.RunID || job.LastRunFrames != 8 {
		t.Fatalf("expected 8 frames attributed to %s, got %+v", summary.RunID, job)
	}

	again, err := newRunner(t, cfg, store, nil).Run(context.Background(), dir)
	if err != nil {
		t.Fatalf("second Run failed: %v", err)
	}
	if again.Dispatched != 0 || again.Skipped != 10 {
		t.Fatalf("expected nothing to do on rerun, got %+v", again)
	}
}

func TestRunFreshIgnoresStoredProgress(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithProcessors("invert"), testsupport.WithResume(false))
	store := testsupport.MustOpenStore(t, cfg)
	dir := t.TempDir()
	testsupport.WriteFrames(t, dir, 4, 2, 2)
	key := jobKey(t, dir)
	if err := store.MarkProcessed(context.Background(), key, "0001.png", "earlier-run"); err != nil {
		t.Fatalf("MarkProcessed failed: %v", err)
	}

	summary, err := newRunner(t, cfg, store, nil).Run(context.Background(), dir)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Skipped != 0 || summary.Processed != 4 {
		t.Fatalf("expected a full rerun, got %+v", summary)
	}
}

func TestRunRejectsZeroWorkersBeforeTouchingFrames(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithWorkers(0), testsupport.WithProcessors("invert"))
	store := testsupport.MustOpenStore(t, cfg)
	dir := t.TempDir()
	paths := testsupport.WriteFrames(t, dir, 3, 2, 2)
	before := snapshot(t, paths)

	_, err := newRunner(t, cfg, store, nil).Run(context.Background(), dir)
	if !errors.Is(err, pipeline.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	after := snapshot(t, paths)
	for _, path := range paths {
		if !bytes.Equal(before[path], after[path]) {
			t.Fatalf("expected %s untouched", filepath.Base(path))
		}
	}
	jobs, err := store.Jobs(context.Background())
	if err != nil {
		t.Fatalf("Jobs failed: %v", err)
	}
	if len(jobs) != 0 {
		t.Fatalf("expected no store state, got %+v", jobs)
	}
}

func TestRunRejectsUnknownProcessor(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithProcessors("face_swapper"))
	store := testsupport.MustOpenStore(t, cfg)
	dir := t.TempDir()
	testsupport.WriteFrames(t, dir, 2, 2, 2)

	_, err := newRunner(t, cfg, store, nil).Run(context.Background(), dir)
	if !errors.Is(err, pipeline.ErrConfiguration) || !errors.Is(err, processor.ErrUnknownProcessor) {
		t.Fatalf("expected configuration error for unknown processor, got %v", err)
	}
}

func TestRunInitializationFailureLeavesNoState(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithProcessors("watermark"))
	cfg.Processors.WatermarkPath = filepath.Join(t.TempDir(), "missing.png")
	store := testsupport.MustOpenStore(t, cfg)
	dir := t.TempDir()
	testsupport.WriteFrames(t, dir, 2, 2, 2)

	_, err := newRunner(t, cfg, store, nil).Run(context.Background(), dir)
	if !errors.Is(err, pipeline.ErrInitialization) {
		t.Fatalf("expected initialization error, got %v", err)
	}
	jobs, err := store.Jobs(context.Background())
	if err != nil {
		t.Fatalf("Jobs failed: %v", err)
	}
	if len(jobs) != 0 {
		t.Fatalf("expected no store state, got %+v", jobs)
	}
}

func TestRunIsolatesCorruptFrame(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithWorkers(2), testsupport.WithProcessors("invert"))
	store := testsupport.MustOpenStore(t, cfg)
	dir := t.TempDir()
	paths := testsupport.WriteFrames(t, dir, 6, 3, 3)
	testsupport.WriteCorrupt(t, paths[2])

	summary, err := newRunner(t, cfg, store, nil).Run(context.Background(), dir)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Failed != 1 || summary.Processed != 5 || summary.Dispatched != 6 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	ok, err := store.IsProcessed(context.Background(), summary.JobKey, "0003.png")
	if err != nil {
		t.Fatalf("IsProcessed failed: %v", err)
	}
	if ok {
		t.Fatal("expected corrupt frame to stay unmarked")
	}

	testsupport.WritePNG(t, paths[2], 3, 3, image.White)
	retry, err := newRunner(t, cfg, store, nil).Run(context.Background(), dir)
	if err != nil {
		t.Fatalf("retry Run failed: %v", err)
	}
	if retry.Dispatched != 1 || retry.Processed != 1 || retry.Skipped != 5 {
		t.Fatalf("expected only the failed frame retried, got %+v", retry)
	}
}

func frameSize(t *testing.T, path string) image.Rectangle {
	t.Helper()
	img, err := frames.Load(path)
	if err != nil {
		t.Fatalf("Load %s failed: %v", filepath.Base(path), err)
	}
	return img.Bounds()
}

func TestRunResumeResizesRemainingFrames(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithWorkers(2), testsupport.WithProcessors("resize"))
	cfg.Processors.ResizeWidth, cfg.Processors.ResizeHeight = 4, 4
	store := testsupport.MustOpenStore(t, cfg)
	dir := t.TempDir()
	paths := testsupport.WriteFrames(t, dir, 4, 8, 8)

	// First frame finished in an earlier run.
	testsupport.WritePNG(t, paths[0], 4, 4, image.White)
	if err := store.MarkProcessed(context.Background(), jobKey(t, dir), "0001.png", "earlier-run"); err != nil {
		t.Fatalf("MarkProcessed failed: %v", err)
	}

	summary, err := newRunner(t, cfg, store, nil).Run(context.Background(), dir)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if strings.Join(summary.Stages, ",") != "resize" {
		t.Fatalf("expected resize to stay active, got %v", summary.Stages)
	}
	if summary.Skipped != 1 || summary.Processed != 3 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	for _, path := range paths {
		if b := frameSize(t, path); b.Dx() != 4 || b.Dy() != 4 {
			t.Fatalf("expected %s resized to 4x4, got %v", filepath.Base(path), b)
		}
	}
}

func TestRunCorruptFirstFrameDoesNotAbortResize(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithWorkers(2), testsupport.WithProcessors("resize"))
	cfg.Processors.ResizeWidth, cfg.Processors.ResizeHeight = 4, 4
	store := testsupport.MustOpenStore(t, cfg)
	dir := t.TempDir()
	paths := testsupport.WriteFrames(t, dir, 4, 8, 8)
	testsupport.WriteCorrupt(t, paths[0])

	summary, err := newRunner(t, cfg, store, nil).Run(context.Background(), dir)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Failed != 1 || summary.Processed != 3 {
		t.Fatalf("expected only the corrupt frame to fail, got %+v", summary)
	}
	ok, err := store.IsProcessed(context.Background(), summary.JobKey, "0001.png")
	if err != nil {
		t.Fatalf("IsProcessed failed: %v", err)
	}
	if ok {
		t.Fatal("expected corrupt frame to stay unmarked")
	}
	for _, path := range paths[1:] {
		if b := frameSize(t, path); b.Dx() != 4 || b.Dy() != 4 {
			t.Fatalf("expected %s resized to 4x4, got %v", filepath.Base(path), b)
		}
	}

	again, err := newRunner(t, cfg, store, nil).Run(context.Background(), dir)
	if err != nil {
		t.Fatalf("second Run failed: %v", err)
	}
	if again.Dispatched != 1 || again.Failed != 1 {
		t.Fatalf("expected only the corrupt frame retried, got %+v", again)
	}
}

type sampleStage struct {
	sample string
}

func (s *sampleStage) Name() string { return "sample" }

func (s *sampleStage) PreCheck(context.Context) error { return nil }

func (s *sampleStage) PreStart(_ context.Context, target processor.Target) (bool, error) {
	s.sample = target.Sample
	return true, nil
}

func (s *sampleStage) ProcessFrame(_ context.Context, img image.Image) (image.Image, error) {
	return img, nil
}

func TestRunSamplesFirstPendingFrame(t *testing.T) {
	stage := &sampleStage{}
	registry := processor.NewRegistry()
	registry.Register(processor.Entry{
		Name:    "sample",
		Factory: func(config.Processors) (processor.Processor, error) { return stage, nil },
	})

	cfg := testsupport.NewConfig(t, testsupport.WithProcessors("sample"))
	store := testsupport.MustOpenStore(t, cfg)
	dir := t.TempDir()
	testsupport.WriteFrames(t, dir, 4, 2, 2)
	key := jobKey(t, dir)
	for _, id := range []string{"0001.png", "0002.png"} {
		if err := store.MarkProcessed(context.Background(), key, id, "earlier-run"); err != nil {
			t.Fatalf("MarkProcessed failed: %v", err)
		}
	}

	if _, err := newRunner(t, cfg, store, registry).Run(context.Background(), dir); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if filepath.Base(stage.sample) != "0003.png" {
		t.Fatalf("expected first pending frame as sample, got %q", stage.sample)
	}
}

func TestRunRestoresMemoryLimit(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithProcessors("invert"))
	cfg.Execution.MaxMemoryGiB = 1
	store := testsupport.MustOpenStore(t, cfg)
	dir := t.TempDir()
	testsupport.WriteFrames(t, dir, 2, 2, 2)

	before := debug.SetMemoryLimit(-1)
	if _, err := newRunner(t, cfg, store, nil).Run(context.Background(), dir); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if after := debug.SetMemoryLimit(-1); after != before {
		t.Fatalf("expected memory limit %d restored, got %d", before, after)
	}
}

type cancelStage struct {
	cancel context.CancelFunc
	calls  atomic.Int32
}

func (c *cancelStage) Name() string { return "cancel" }

func (c *cancelStage) PreCheck(context.Context) error { return nil }

func (c *cancelStage) PreStart(context.Context, processor.Target) (bool, error) { return true, nil }

func (c *cancelStage) ProcessFrame(_ context.Context, img image.Image) (image.Image, error) {
	if c.calls.Add(1) == 1 {
		c.cancel()
	}
	return img, nil
}

func TestRunStopsBetweenFramesOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stage := &cancelStage{cancel: cancel}
	registry := processor.NewRegistry()
	registry.Register(processor.Entry{
		Name:        "cancel",
		Description: "cancels the run after one frame",
		Factory:     func(config.Processors) (processor.Processor, error) { return stage, nil },
	})

	cfg := testsupport.NewConfig(t, testsupport.WithMode(config.ModeBounded), testsupport.WithProcessors("cancel"))
	store := testsupport.MustOpenStore(t, cfg)
	dir := t.TempDir()
	testsupport.WriteFrames(t, dir, 5, 2, 2)

	summary, err := newRunner(t, cfg, store, registry).Run(ctx, dir)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if !summary.Canceled || summary.Processed != 1 {
		t.Fatalf("expected the in-flight frame to finish, got %+v", summary)
	}
	count, err := store.ProcessedCount(context.Background(), summary.JobKey)
	if err != nil {
		t.Fatalf("ProcessedCount failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected the finished frame to be recorded, got %d", count)
	}
}

func TestRunRefusesConcurrentRunOfSameTarget(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithProcessors("invert"))
	store := testsupport.MustOpenStore(t, cfg)
	dir := t.TempDir()
	testsupport.WriteFrames(t, dir, 2, 2, 2)

	lock, err := jobstate.LockJob(cfg.LockDir(), jobKey(t, dir))
	if err != nil {
		t.Fatalf("LockJob failed: %v", err)
	}
	defer lock.Release()

	_, err = newRunner(t, cfg, store, nil).Run(context.Background(), dir)
	if !errors.Is(err, pipeline.ErrInitialization) || !errors.Is(err, jobstate.ErrJobLocked) {
		t.Fatalf("expected locked job error, got %v", err)
	}
}

func TestRunImageWritesOutput(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithProcessors("grayscale"))
	store := testsupport.MustOpenStore(t, cfg)
	dir := t.TempDir()
	src := filepath.Join(dir, "face.png")
	dst := filepath.Join(dir, "out.png")
	testsupport.WritePNG(t, src, 3, 3, image.Black)

	if err := newRunner(t, cfg, store, nil).RunImage(context.Background(), src, dst); err != nil {
		t.Fatalf("RunImage failed: %v", err)
	}
	if _, err := os.Stat(dst); err != nil {
		t.Fatalf("expected output image: %v", err)
	}
	if err := newRunner(t, cfg, store, nil).RunImage(context.Background(), filepath.Join(dir, "notes.txt"), ""); !errors.Is(err, pipeline.ErrConfiguration) {
		t.Fatalf("expected configuration error for non-image source, got %v", err)
	}
}
