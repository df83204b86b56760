package progress

import (
	"io"
	"os"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"golang.org/x/term"
)

// Tracker follows several tasks running at the same time, one bar per task.
type Tracker interface {
	Add(name string, total int64) Task
	// Wait blocks until every added task is done.
	Wait()
}

// Task is one tracked unit of concurrent work.
type Task interface {
	Increment()
	// Done completes the task; a non-nil error marks it failed.
	Done(err error)
}

// TrackerForWriter returns a multi-bar tracker when w is a terminal and a no-op
// tracker otherwise.
func TrackerForWriter(w io.Writer) Tracker {
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return NewMultiBar(w)
	}
	return NoOpTracker{}
}

// MultiBar renders one mpb bar per task.
type MultiBar struct {
	progress *mpb.Progress
}

// NewMultiBar creates a tracker drawing to w.
func NewMultiBar(w io.Writer) *MultiBar {
	return &MultiBar{
		progress: mpb.New(
			mpb.WithOutput(w),
			mpb.WithRefreshRate(300*time.Millisecond),
			mpb.WithWidth(60),
		),
	}
}

// Add creates a bar for a task of total units.
func (m *MultiBar) Add(name string, total int64) Task {
	bar := m.progress.New(total,
		mpb.BarStyle().Lbound("[").Filler("█").Tip("█").Padding("░").Rbound("]"),
		mpb.PrependDecorators(
			decor.Name(name, decor.WCSyncSpaceR),
			decor.CountersNoUnit("%d / %d", decor.WCSyncSpace),
		),
		mpb.AppendDecorators(
			decor.OnAbort(decor.OnComplete(decor.Percentage(decor.WCSyncSpace), "done"), "failed"),
		),
	)
	return &barTask{bar: bar}
}

// Wait blocks until all bars are complete or aborted.
func (m *MultiBar) Wait() {
	m.progress.Wait()
}

type barTask struct {
	bar *mpb.Bar
}

func (t *barTask) Increment() {
	t.bar.Increment()
}

func (t *barTask) Done(err error) {
	if err != nil {
		t.bar.Abort(false)
		return
	}
	t.bar.SetTotal(-1, true)
}

// NoOpTracker tracks nothing.
type NoOpTracker struct{}

// Add returns a task that does nothing.
func (NoOpTracker) Add(name string, total int64) Task { return noOpTask{} }

// Wait returns immediately.
func (NoOpTracker) Wait() {}

type noOpTask struct{}

func (noOpTask) Increment()     {}
func (noOpTask) Done(err error) {}
