package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWriter_BufferedOutputIsPlain(t *testing.T) {
	// Given a non-TTY destination
	var buf bytes.Buffer
	w := New(&buf)

	// When writing every message kind
	w.Success("indexed")
	w.Warning("slow embedder")
	w.Error("index corrupted")
	w.Header("Status")
	w.Field("documents", "12")
	w.Dim("secondary")

	// Then output carries no ANSI escape codes
	out := buf.String()
	assert.NotContains(t, out, "\x1b[")
	assert.Contains(t, out, "✓ indexed")
	assert.Contains(t, out, "! slow embedder")
	assert.Contains(t, out, "✗ index corrupted")
	assert.Contains(t, out, "Status")
	assert.Contains(t, out, "documents: 12")
}

func TestWriter_Formatted(t *testing.T) {
	var buf bytes.Buffer
	w := NewPlain(&buf)

	w.Successf("ingested %d passages", 7)
	w.Fieldf("passages", "%d", 7)

	assert.Contains(t, buf.String(), "ingested 7 passages")
	assert.Contains(t, buf.String(), "passages: 7")
}

func TestWriter_Span(t *testing.T) {
	var buf bytes.Buffer
	w := NewPlain(&buf)

	w.Span(1, "doc1", 0, 150, 0.95, "first line\nsecond line")

	out := buf.String()
	assert.Contains(t, out, "1. doc1 [0:150]")
	assert.Contains(t, out, "(score 0.9500)")
	assert.Contains(t, out, "   first line")
	assert.Contains(t, out, "   second line")
}

func TestWriter_Progress(t *testing.T) {
	var buf bytes.Buffer
	w := NewPlain(&buf)

	w.Progress(15, 30, "embedding")

	out := buf.String()
	assert.Contains(t, out, "50%")
	assert.Contains(t, out, "embedding")
	assert.Equal(t, 15, strings.Count(out, "█"))
	assert.Equal(t, 15, strings.Count(out, "░"))
}

func TestWriter_ProgressCompleteEndsLine(t *testing.T) {
	var buf bytes.Buffer
	w := NewPlain(&buf)

	w.Progress(30, 30, "done")

	assert.True(t, strings.HasSuffix(buf.String(), "\n"))
}

func TestWriter_ProgressZeroTotalSkipped(t *testing.T) {
	var buf bytes.Buffer
	w := NewPlain(&buf)

	w.Progress(0, 0, "nothing")

	assert.Empty(t, buf.String())
}

func TestIsTTY_NonFileWriter(t *testing.T) {
	assert.False(t, IsTTY(&bytes.Buffer{}))
	assert.False(t, IsTTY(nil))
}
