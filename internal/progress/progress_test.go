package progress

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"
)

func TestCLIProgress_ConcurrentIncrements(t *testing.T) {
	var buf bytes.Buffer
	p := NewCLIProgress(&buf)
	p.Start(8, "merging")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Increment()
		}()
	}
	wg.Wait()
	p.Finish()

	if !strings.Contains(buf.String(), "merging") {
		t.Errorf("Expected description in output, got %q", buf.String())
	}
	if !strings.Contains(buf.String(), "100%") {
		t.Errorf("Expected completed bar in output, got %q", buf.String())
	}
}

func TestForWriter_NotATerminal(t *testing.T) {
	if _, ok := ForWriter(&bytes.Buffer{}).(*NoOpProgress); !ok {
		t.Error("Expected no-op reporter for a buffer")
	}
}

func TestCLIProgress_IncrementBeforeStart(t *testing.T) {
	p := NewCLIProgress(&bytes.Buffer{})
	p.Increment()
	p.Finish()
}

func TestMultiBar_WaitReturnsAfterDoneAndFailed(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewMultiBar(&buf)

	ok := tracker.Add("DY", 2)
	failed := tracker.Add("WJets", 3)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		ok.Increment()
		ok.Increment()
		ok.Done(nil)
	}()
	go func() {
		defer wg.Done()
		failed.Increment()
		failed.Done(errors.New("missing fragment"))
	}()
	wg.Wait()
	tracker.Wait()
}

func TestTrackerForWriter_NotATerminal(t *testing.T) {
	tracker := TrackerForWriter(&bytes.Buffer{})
	if _, ok := tracker.(NoOpTracker); !ok {
		t.Errorf("Expected no-op tracker for a buffer, got %T", tracker)
	}
	task := tracker.Add("DY", 1)
	task.Increment()
	task.Done(nil)
	tracker.Wait()
}
