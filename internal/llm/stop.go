package llm

import (
	"bytes"
	"fmt"
)

// DefaultStopMarkers are the literals whose appearance in the output is taken
// as the end of the assistant turn: a shell-style prompt or the start of the
// next chat turn.
var DefaultStopMarkers = []string{">", "User:", "Assistant:"}

// ScanMode selects how stop markers are searched for.
type ScanMode string

const (
	// ScanChunk inspects each chunk on its own. A marker split across two
	// reads is not detected.
	ScanChunk ScanMode = "chunk"

	// ScanWindow also inspects the bytes carried over from the previous
	// chunk, so markers split across reads are detected.
	ScanWindow ScanMode = "window"
)

// ParseScanMode validates a configured scan mode. Empty means ScanChunk.
func ParseScanMode(s string) (ScanMode, error) {
	switch ScanMode(s) {
	case "", ScanChunk:
		return ScanChunk, nil
	case ScanWindow:
		return ScanWindow, nil
	}
	return "", fmt.Errorf("unknown stop scan mode %q (want %q or %q)", s, ScanChunk, ScanWindow)
}

// StopDetector looks for stop markers in a stream of output chunks. It keeps
// per-stream state in window mode, so every run needs its own detector.
type StopDetector struct {
	mode    ScanMode
	markers [][]byte
	tail    []byte
	keep    int
}

// NewStopDetector creates a detector for markers, or DefaultStopMarkers when
// none are given.
func NewStopDetector(mode ScanMode, markers ...string) *StopDetector {
	if len(markers) == 0 {
		markers = DefaultStopMarkers
	}

	d := &StopDetector{mode: mode}
	for _, m := range markers {
		if m == "" {
			continue
		}
		d.markers = append(d.markers, []byte(m))
		if len(m)-1 > d.keep {
			d.keep = len(m) - 1
		}
	}
	return d
}

// Scan reports the first marker, in configured order, found in chunk. In
// window mode only matches that end inside chunk are reported.
func (d *StopDetector) Scan(chunk []byte) (string, bool) {
	if d.mode != ScanWindow {
		for _, m := range d.markers {
			if bytes.Contains(chunk, m) {
				return string(m), true
			}
		}
		return "", false
	}

	buf := make([]byte, 0, len(d.tail)+len(chunk))
	buf = append(buf, d.tail...)
	buf = append(buf, chunk...)

	for _, m := range d.markers {
		from := len(d.tail) - (len(m) - 1)
		if from < 0 {
			from = 0
		}
		if bytes.Contains(buf[from:], m) {
			return string(m), true
		}
	}

	if len(buf) > d.keep {
		buf = buf[len(buf)-d.keep:]
	}
	d.tail = append(d.tail[:0], buf...)
	return "", false
}

// ContainsStop reports whether chunk, taken on its own, contains any of the
// default stop markers.
func ContainsStop(chunk string) bool {
	_, ok := NewStopDetector(ScanChunk).Scan([]byte(chunk))
	return ok
}
