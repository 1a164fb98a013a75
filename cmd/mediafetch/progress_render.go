package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"

	"github.com/yourusername/media-fetch-go/internal/domain"
)

// progressReporter draws a bar on terminals and prints phase changes otherwise
type progressReporter struct {
	out         io.Writer
	interactive bool
}

func newProgressReporter(out io.Writer) *progressReporter {
	return &progressReporter{out: out, interactive: isTerminal(out)}
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// run consumes events until the channel is closed
func (r *progressReporter) run(events <-chan domain.ProgressEvent) {
	if !r.interactive {
		var last domain.Phase
		var lastAttempt int
		for ev := range events {
			if ev.Phase == last && ev.Attempt == lastAttempt {
				continue
			}
			last, lastAttempt = ev.Phase, ev.Attempt
			fmt.Fprintln(r.out, formatEvent(ev))
		}
		return
	}

	bar := progressbar.NewOptions(100,
		progressbar.OptionSetWriter(r.out),
		progressbar.OptionSetDescription("preparing"),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionFullWidth(),
	)
	for ev := range events {
		bar.Describe(describeEvent(ev))
		_ = bar.Set(int(ev.Percent))
	}
	_ = bar.Finish()
	fmt.Fprintln(r.out)
}

func describeEvent(ev domain.ProgressEvent) string {
	desc := string(ev.Phase)
	if ev.Attempt > 1 {
		desc = fmt.Sprintf("[attempt %d] %s", ev.Attempt, desc)
	}
	if ev.Speed != "" {
		desc += " " + ev.Speed
	}
	return desc
}

func formatEvent(ev domain.ProgressEvent) string {
	line := fmt.Sprintf("%5.1f%% %s", ev.Percent, describeEvent(ev))
	if ev.Message != "" {
		line += ": " + ev.Message
	}
	return line
}
