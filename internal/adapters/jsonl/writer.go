package jsonl

import (
	"bufio"
	"os"

	"benchprep/internal/core/record"
)

// Writer appends records to a file, one compact JSON object per line
type Writer struct {
	f     *os.File
	bw    *bufio.Writer
	lines int
}

// Create truncates/creates path for writing
func Create(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return NewWriter(f), nil
}

// NewWriter wraps an already-open file, e.g. a temp file destined for rename
func NewWriter(f *os.File) *Writer {
	return &Writer{f: f, bw: bufio.NewWriterSize(f, initialBufSize)}
}

// WriteRecord encodes rec and writes it as one line
func (w *Writer) WriteRecord(rec *record.Record) error {
	data, err := rec.Encode()
	if err != nil {
		return err
	}
	return w.WriteLine(data)
}

// WriteLine writes raw bytes plus a trailing newline
func (w *Writer) WriteLine(b []byte) error {
	if _, err := w.bw.Write(b); err != nil {
		return err
	}
	if err := w.bw.WriteByte('\n'); err != nil {
		return err
	}
	w.lines++
	return nil
}

// Lines returns the number of lines written
func (w *Writer) Lines() int { return w.lines }

// Flush pushes buffered bytes to the file
func (w *Writer) Flush() error { return w.bw.Flush() }

// Close flushes and closes; the first error wins
func (w *Writer) Close() error {
	ferr := w.bw.Flush()
	cerr := w.f.Close()
	if ferr != nil {
		return ferr
	}
	return cerr
}

// Name returns the destination path
func (w *Writer) Name() string { return w.f.Name() }
