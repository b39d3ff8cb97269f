package main

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// formatDuration renders sub-minute durations as seconds with one decimal
// and longer ones as minutes and whole seconds.
func formatDuration(d time.Duration) string {
	if d >= time.Minute {
		secs := int(d / time.Second)
		return fmt.Sprintf("%dm %ds", secs/60, secs%60)
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

var byteUnits = []string{"KB", "MB", "GB", "TB"}

// formatBytes renders n using binary units.
func formatBytes(n int64) string {
	if n < 1024 {
		return fmt.Sprintf("%d B", n)
	}
	v := float64(n) / 1024
	unit := 0
	for v >= 1024 && unit < len(byteUnits)-1 {
		v /= 1024
		unit++
	}
	return fmt.Sprintf("%.1f %s", v, byteUnits[unit])
}

const progressWidth = 30

// buildProgressBar draws done/total as a bar of the given width, with an
// arrow head until the bar is full.
func buildProgressBar(done, total, width int) string {
	var b strings.Builder
	b.Grow(width)
	filled := 0
	if total > 0 {
		filled = min(width*done/total, width)
	}
	for i := 0; i < width; i++ {
		switch {
		case total == 0:
			b.WriteByte(' ')
		case i < filled:
			b.WriteByte('=')
		case i == filled:
			b.WriteByte('>')
		default:
			b.WriteByte(' ')
		}
	}
	return b.String()
}

// progressLine is the length of the last line printProgress drew.
var progressLine int

// printProgress redraws the rebuild progress line on stderr.
func printProgress(done, total int) {
	if total == 0 {
		return
	}
	line := fmt.Sprintf("[%s] %d/%d (%d%%)", buildProgressBar(done, total, progressWidth), done, total, 100*done/total)
	progressLine = len(line)
	fmt.Fprintf(os.Stderr, "\r%s", line)
}

// clearProgress blanks the progress line.
func clearProgress() {
	if progressLine == 0 {
		return
	}
	fmt.Fprintf(os.Stderr, "\r%s\r", strings.Repeat(" ", progressLine))
	progressLine = 0
}
