package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContainsStop(t *testing.T) {
	tests := []struct {
		chunk string
		want  bool
	}{
		{"Bonjour>", true},
		{"Bonjour", false},
		{"\nUser: next", true},
		{"Assistant: again", true},
		{"user: lowercase", false},
		{"", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ContainsStop(tt.chunk), "chunk %q", tt.chunk)
	}
}

// A marker delivered in the chunk after "Bonjour" must not be attributed to
// the first chunk.
func TestStopDetector_ChunkLocal(t *testing.T) {
	d := NewStopDetector(ScanChunk)

	_, stop := d.Scan([]byte("Bonjour"))
	assert.False(t, stop, "first chunk has no marker")

	marker, stop := d.Scan([]byte(">"))
	assert.True(t, stop)
	assert.Equal(t, ">", marker)
}

func TestStopDetector_ChunkModeMissesSplitMarker(t *testing.T) {
	d := NewStopDetector(ScanChunk)

	_, stop := d.Scan([]byte("Bonjour\nUs"))
	assert.False(t, stop)

	_, stop = d.Scan([]byte("er: la suite"))
	assert.False(t, stop, "chunk mode only sees each chunk on its own")
}

func TestStopDetector_WindowModeCatchesSplitMarker(t *testing.T) {
	d := NewStopDetector(ScanWindow)

	_, stop := d.Scan([]byte("Bonjour\nUs"))
	assert.False(t, stop)

	marker, stop := d.Scan([]byte("er: la suite"))
	assert.True(t, stop)
	assert.Equal(t, "User:", marker)
}

func TestStopDetector_WindowModeAcrossManyChunks(t *testing.T) {
	d := NewStopDetector(ScanWindow)

	for _, c := range []string{"Ass", "is", "ta", "nt"} {
		_, stop := d.Scan([]byte(c))
		require.False(t, stop, "chunk %q", c)
	}

	marker, stop := d.Scan([]byte(":"))
	assert.True(t, stop)
	assert.Equal(t, "Assistant:", marker)
}

func TestStopDetector_WindowTailIsBounded(t *testing.T) {
	d := NewStopDetector(ScanWindow)

	_, stop := d.Scan([]byte("a long chunk of ordinary output text"))
	require.False(t, stop)
	assert.Len(t, d.tail, len("Assistant:")-1)
}

func TestStopDetector_CustomMarkers(t *testing.T) {
	d := NewStopDetector(ScanChunk, "<|end|>", "")

	_, stop := d.Scan([]byte("a > b"))
	assert.False(t, stop)

	marker, stop := d.Scan([]byte("done<|end|>"))
	assert.True(t, stop)
	assert.Equal(t, "<|end|>", marker)
}

func TestParseScanMode(t *testing.T) {
	mode, err := ParseScanMode("")
	require.NoError(t, err)
	assert.Equal(t, ScanChunk, mode)

	mode, err = ParseScanMode("window")
	require.NoError(t, err)
	assert.Equal(t, ScanWindow, mode)

	_, err = ParseScanMode("sliding")
	assert.Error(t, err)
}
