// Package progress reports the advance of long-running phases on the terminal.
package progress

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"
)

// Reporter counts finished units of work. Implementations are safe for concurrent use.
type Reporter interface {
	Start(total int64, description string)
	Increment()
	Finish()
}

// CLIProgress renders a progress bar on a terminal.
type CLIProgress struct {
	w   io.Writer
	mu  sync.Mutex
	bar *progressbar.ProgressBar
}

// NewCLIProgress creates a progress bar reporter writing to w.
func NewCLIProgress(w io.Writer) *CLIProgress {
	return &CLIProgress{w: w}
}

// ForWriter returns a progress bar when w is a terminal and a no-op reporter
// otherwise, so that redirected output stays free of control sequences.
func ForWriter(w io.Writer) Reporter {
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return NewCLIProgress(w)
	}
	return NewNoOpProgress()
}

// Start initializes the progress bar with the number of units and a description.
func (p *CLIProgress) Start(total int64, description string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bar = progressbar.NewOptions64(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(p.w),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(100),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(p.w, "\n")
		}),
		progressbar.OptionSetRenderBlankState(true),
	)
}

// Increment advances the bar by one unit.
func (p *CLIProgress) Increment() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bar != nil {
		_ = p.bar.Add(1)
	}
}

// Finish completes the progress bar.
func (p *CLIProgress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bar != nil {
		_ = p.bar.Finish()
	}
}

// NoOpProgress is a progress reporter that does nothing.
type NoOpProgress struct{}

// NewNoOpProgress creates a new no-op progress reporter.
func NewNoOpProgress() *NoOpProgress {
	return &NoOpProgress{}
}

// Start does nothing.
func (p *NoOpProgress) Start(total int64, description string) {}

// Increment does nothing.
func (p *NoOpProgress) Increment() {}

// Finish does nothing.
func (p *NoOpProgress) Finish() {}
