package ui

import (
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/term"
)

// flushStdin discards pending input from stdin so terminal response
// sequences (cursor position reports, focus events) do not corrupt the
// output.
func flushStdin() {
	FlushStdinWithTimeout(30 * time.Millisecond)
}

// Spinner is a tiny terminal spinner helper. Caller controls timing via
// time.Ticker.
type Spinner struct {
	frames []rune
	idx    int
	out    io.Writer
	colors *ColorConfig
	prefix string
	delay  time.Duration
}

func NewSpinner(out io.Writer, prefix string) *Spinner {
	if out == nil {
		out = io.Discard
	}
	return &Spinner{
		frames: []rune{'⠋', '⠙', '⠹', '⠸', '⠼', '⠴', '⠦', '⠧', '⠇', '⠏'},
		out:    out,
		colors: NewColorConfigFromGlobal(),
		prefix: prefix,
		delay:  120 * time.Millisecond,
	}
}

// Tick renders the next frame with prefix.
func (s *Spinner) Tick() {
	if s.out == nil {
		return
	}
	frame := s.frames[s.idx%len(s.frames)]
	s.idx++
	if s.colors.Enabled {
		fmt.Fprintf(s.out, "\r%s %c", s.prefix, frame)
	} else {
		fmt.Fprintf(s.out, "\r%s", s.prefix)
	}
}

// Clear erases the spinner line.
func (s *Spinner) Clear() {
	fmt.Fprint(s.out, "\r\033[K")
}

// ProgressBar renders a terminal progress bar with download statistics.
type ProgressBar struct {
	out        io.Writer
	total      int64
	current    int64
	startTime  time.Time
	lastUpdate time.Time
	isTTY      bool
	lastPct    float64 // for non-TTY threshold updates
	indent     string
}

// NewProgressBar creates a progress bar for tracking download progress.
// If total is <= 0 the bar shows bytes downloaded without a percentage.
func NewProgressBar(out io.Writer, total int64) *ProgressBar {
	if out == nil {
		out = os.Stdout
	}

	isTTY := false
	if f, ok := out.(*os.File); ok {
		isTTY = term.IsTerminal(int(f.Fd()))
	}

	if isTTY {
		// Disable focus reporting (CSI ? 1004 l) and flush any pending
		// terminal responses that could corrupt the bar.
		fmt.Fprint(out, "\033[?1004l")
		time.Sleep(10 * time.Millisecond)
		flushStdin()
	}

	return &ProgressBar{
		out:       out,
		total:     total,
		startTime: time.Now(),
		isTTY:     isTTY,
		lastPct:   -1,
		indent:    "  ",
	}
}

// Update updates the progress bar with the current byte count.
func (p *ProgressBar) Update(current int64) {
	p.current = current

	// Rate limit updates to avoid flicker (max 10/sec for TTY).
	now := time.Now()
	if p.isTTY && now.Sub(p.lastUpdate) < 100*time.Millisecond {
		return
	}
	p.lastUpdate = now

	if p.total <= 0 {
		fmt.Fprintf(p.out, "\r%sDownloading... %s", p.indent, FormatBytes(current))
		return
	}

	pct := float64(current) / float64(p.total) * 100

	if p.isTTY {
		p.renderTTY(pct)
	} else {
		// Non-TTY: print at 10% intervals.
		threshold := float64(int(pct/10) * 10)
		if threshold > p.lastPct {
			p.lastPct = threshold
			fmt.Fprintf(p.out, "%sDownloading... %.0f%%\n", p.indent, threshold)
		}
	}
}

func (p *ProgressBar) renderTTY(pct float64) {
	elapsed := time.Since(p.startTime).Seconds()
	var speed float64
	if elapsed > 0 {
		speed = float64(p.current) / elapsed
	}

	eta := ""
	if speed > 0 && p.current < p.total {
		eta = formatDuration(float64(p.total-p.current) / speed)
	} else if p.current >= p.total {
		eta = "0s"
	}

	width := 80
	if f, ok := p.out.(*os.File); ok {
		if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 0 {
			width = w
		}
	}

	// Leave room for the stats after the bar:
	// "<indent>[bar] 100.0%   9.9 GB/9.9 GB   9.9 MB/s   ETA 59m59s"
	barWidth := width - 56 - len(p.indent)
	if barWidth < 10 {
		barWidth = 10
	}
	if barWidth > 40 {
		barWidth = 40
	}

	filled := int(pct / 100 * float64(barWidth))
	if filled > barWidth {
		filled = barWidth
	}
	if filled < 0 {
		filled = 0
	}

	bar := ""
	for i := 0; i < barWidth; i++ {
		if i < filled {
			bar += "█"
		} else {
			bar += "░"
		}
	}

	// \033[K clears from cursor to end of line.
	fmt.Fprintf(p.out, "\r%s[%s] %5.1f%%   %s/%s   %s   ETA %s\033[K",
		p.indent, bar, pct,
		FormatBytes(p.current), FormatBytes(p.total),
		FormatSpeed(speed), eta,
	)
}

func formatDuration(seconds float64) string {
	if seconds < 0 {
		return "--"
	}
	if seconds < 60 {
		return fmt.Sprintf("%.0fs", seconds)
	}
	if seconds < 3600 {
		return fmt.Sprintf("%dm%ds", int(seconds)/60, int(seconds)%60)
	}
	return fmt.Sprintf("%dh%dm", int(seconds)/3600, (int(seconds)%3600)/60)
}

// Finish completes the progress bar and moves to the next line.
func (p *ProgressBar) Finish() {
	if p.isTTY {
		if p.total > 0 {
			p.renderTTY(100)
		}
		fmt.Fprintln(p.out)
		flushStdin()
	} else if p.total > 0 && p.lastPct < 100 {
		fmt.Fprintf(p.out, "%sDownloading... 100%%\n", p.indent)
	}
}
