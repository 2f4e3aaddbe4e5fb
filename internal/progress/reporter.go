package progress

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jedib0t/go-pretty/v6/progress"
	"github.com/mattn/go-isatty"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"framepipe/internal/logging"
)

const (
	defaultRefresh   = 500 * time.Millisecond
	defaultLogBucket = 5
	gib              = 1 << 30
)

// Options configures the reporter's display.
type Options struct {
	Mode         string
	Workers      int
	Providers    []string
	MaxMemoryGiB int

	Refresh   time.Duration
	LogBucket float64

	Logger *slog.Logger
	// Output receives the progress bar. Defaults to stdout.
	Output io.Writer
	// ForceLog disables the bar even on a terminal.
	ForceLog bool
}

// Snapshot is a point-in-time view of progress.
type Snapshot struct {
	Completed int64
	Total     int64
	Failed    int64
	Elapsed   time.Duration
	// Rate is frames per second completed during this run.
	Rate float64
	// ETA is zero when the rate is unknown.
	ETA time.Duration
}

// Percent returns completion in the range 0..100.
func (s Snapshot) Percent() float64 {
	if s.Total <= 0 {
		return 100
	}
	return float64(s.Completed) * 100 / float64(s.Total)
}

// Reporter tracks completed frames. Advance is safe from any goroutine and
// never blocks.
type Reporter struct {
	total     int64
	initial   int64
	completed atomic.Int64
	failed    atomic.Int64

	opts    Options
	logger  *slog.Logger
	printer *message.Printer
	now     func() time.Time
	started time.Time

	mu       sync.Mutex
	running  bool
	cancel   context.CancelFunc
	done     chan struct{}
	writer   progress.Writer
	tracker  *progress.Tracker
	sampler  *logging.ProgressSampler
	useBar   bool
	finished bool
}

// New creates a reporter for total frames, initial of which were already
// completed by earlier runs.
func New(total, initial int, opts Options) *Reporter {
	if opts.Refresh <= 0 {
		opts.Refresh = defaultRefresh
	}
	if opts.LogBucket <= 0 {
		opts.LogBucket = defaultLogBucket
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if initial < 0 {
		initial = 0
	}
	if initial > total {
		initial = total
	}
	r := &Reporter{
		total:   int64(total),
		initial: int64(initial),
		opts:    opts,
		logger:  logging.NewComponentLogger(opts.Logger, "progress"),
		printer: message.NewPrinter(language.English),
		now:     time.Now,
	}
	r.completed.Store(int64(initial))
	r.started = r.now()
	return r
}

// Advance records n more completed frames.
func (r *Reporter) Advance(n int) {
	r.completed.Add(int64(n))
}

// Fail records n frames that failed this run.
func (r *Reporter) Fail(n int) {
	r.failed.Add(int64(n))
}

// Snapshot returns the current counters with derived rate and ETA.
func (r *Reporter) Snapshot() Snapshot {
	completed := r.completed.Load()
	elapsed := r.now().Sub(r.started)
	snap := Snapshot{
		Completed: completed,
		Total:     r.total,
		Failed:    r.failed.Load(),
		Elapsed:   elapsed,
	}
	if seconds := elapsed.Seconds(); seconds > 0 {
		snap.Rate = float64(completed-r.initial) / seconds
	}
	if snap.Rate > 0 && r.total > completed {
		snap.ETA = time.Duration(float64(r.total-completed) / snap.Rate * float64(time.Second))
	}
	return snap
}

// Start launches the render loop. It returns immediately; call Stop to
// render the final state.
func (r *Reporter) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running || r.finished {
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	r.running = true
	r.useBar = !r.opts.ForceLog && isTerminal(r.opts.Output) && r.total > 0
	if r.useBar {
		r.startBar()
	} else {
		r.sampler = logging.NewProgressSampler(r.opts.LogBucket)
	}

	go r.loop(loopCtx)
}

// Stop ends the render loop and emits a final line. It is safe to call more
// than once.
func (r *Reporter) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.finished = true
	cancel, done := r.cancel, r.done
	r.mu.Unlock()

	cancel()
	<-done

	snap := r.Snapshot()
	if r.useBar {
		r.tracker.UpdateMessage(r.message(snap))
		r.tracker.SetValue(snap.Completed)
		r.tracker.MarkAsDone()
		r.writer.Stop()
		for r.writer.IsRenderInProgress() {
			time.Sleep(10 * time.Millisecond)
		}
		return
	}
	r.logger.Info("progress complete", logging.Args(r.attrs(snap, "progress_complete")...)...)
}

func (r *Reporter) loop(ctx context.Context) {
	defer close(r.done)
	ticker := time.NewTicker(r.opts.Refresh)
	defer ticker.Stop()

	r.render()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.render()
		}
	}
}

func (r *Reporter) render() {
	snap := r.Snapshot()
	if r.useBar {
		r.tracker.SetValue(snap.Completed)
		r.tracker.UpdateMessage(r.message(snap))
		return
	}
	if r.sampler.ShouldLog(snap.Percent(), r.opts.Mode) {
		r.logger.Info("progress", logging.Args(r.attrs(snap, "progress")...)...)
	}
}

func (r *Reporter) startBar() {
	pw := progress.NewWriter()
	pw.SetOutputWriter(r.opts.Output)
	pw.SetUpdateFrequency(r.opts.Refresh)
	pw.SetAutoStop(false)
	pw.SetTrackerLength(30)
	pw.SetTrackerPosition(progress.PositionRight)
	pw.SetStyle(progress.StyleDefault)
	pw.Style().Visibility.ETA = true
	pw.Style().Visibility.Speed = true
	pw.Style().Visibility.Value = true
	pw.Style().Visibility.Percentage = true

	tracker := &progress.Tracker{
		Message: "Processing",
		Total:   r.total,
		Units:   frameUnits,
	}
	pw.AppendTracker(tracker)
	tracker.SetValue(r.initial)

	r.writer = pw
	r.tracker = tracker
	go pw.Render()
}

var frameUnits = progress.Units{
	Notation:         " frames",
	NotationPosition: progress.UnitsNotationPositionAfter,
	Formatter:        progress.FormatNumber,
}

func (r *Reporter) message(snap Snapshot) string {
	msg := "Processing [" + r.Postfix() + "]"
	if snap.Failed > 0 {
		msg += r.printer.Sprintf(" failed=%d", snap.Failed)
	}
	return msg
}

// Postfix describes the execution context shown next to the counters.
func (r *Reporter) Postfix() string {
	parts := []string{
		"mode=" + valueOr(r.opts.Mode, "auto"),
		fmt.Sprintf("workers=%d", r.opts.Workers),
		"providers=" + valueOr(strings.Join(r.opts.Providers, ","), "cpu"),
		"memory=" + r.memoryUsage(),
	}
	return strings.Join(parts, " ")
}

func (r *Reporter) memoryUsage() string {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	used := fmt.Sprintf("%.2fGiB", float64(stats.Sys)/gib)
	if r.opts.MaxMemoryGiB > 0 {
		return fmt.Sprintf("%s/%dGiB", used, r.opts.MaxMemoryGiB)
	}
	return used
}

func (r *Reporter) attrs(snap Snapshot, eventType string) []logging.Attr {
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, eventType),
		logging.String("frames", r.printer.Sprintf("%d/%d", snap.Completed, snap.Total)),
		logging.String("percent", fmt.Sprintf("%.1f", snap.Percent())),
		logging.String("rate", fmt.Sprintf("%.2f/s", snap.Rate)),
		logging.Duration("elapsed", snap.Elapsed),
		logging.String("mode", valueOr(r.opts.Mode, "auto")),
		logging.Int("workers", r.opts.Workers),
		logging.String("providers", valueOr(strings.Join(r.opts.Providers, ","), "cpu")),
		logging.String("memory", r.memoryUsage()),
	}
	if snap.ETA > 0 {
		attrs = append(attrs, logging.Duration("eta", snap.ETA))
	}
	if snap.Failed > 0 {
		attrs = append(attrs, logging.Int64("failed", snap.Failed))
	}
	return attrs
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func valueOr(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
