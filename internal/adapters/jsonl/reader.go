// Package jsonl streams line-delimited JSON files without materializing them.
// One JSON object per non-blank line; blank lines are skipped; line order is
// significant and preserved
package jsonl

import (
	"bufio"
	"bytes"
	"io"
	"os"
)

const (
	maxScanTokenSize = 32 * 1024 * 1024
	initialBufSize   = 512 * 1024
)

// Reader streams non-blank lines from a line-delimited file
type Reader struct {
	rc     io.ReadCloser
	sc     *bufio.Scanner
	err    error
	lines  int   // non-blank lines yielded
	lineNo int   // physical 1-based line number of the last yielded line
	bytes  int64 // bytes consumed, blank lines included
}

// Open opens path for streaming reads
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return NewReader(f), nil
}

// NewReader wraps rc in a line streamer. The caller's Close releases rc
func NewReader(rc io.ReadCloser) *Reader {
	sc := bufio.NewScanner(rc)
	buf := make([]byte, initialBufSize)
	sc.Buffer(buf, maxScanTokenSize)
	return &Reader{rc: rc, sc: sc}
}

// Next returns the next non-blank line; io.EOF when done.
// The returned slice is a copy and stays valid across calls
func (rd *Reader) Next() ([]byte, error) {
	if rd.err != nil {
		return nil, rd.err
	}
	for {
		if !rd.sc.Scan() {
			if err := rd.sc.Err(); err != nil {
				rd.err = err
				return nil, err
			}
			rd.err = io.EOF
			return nil, io.EOF
		}
		line := rd.sc.Bytes()
		rd.lineNo++
		rd.bytes += int64(len(line) + 1) // include newline
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		cp := make([]byte, len(line))
		copy(cp, line)
		rd.lines++
		return cp, nil
	}
}

// LineNo returns the physical line number of the last line returned by Next
func (rd *Reader) LineNo() int { return rd.lineNo }

// Stats returns non-blank lines yielded and total bytes consumed so far
func (rd *Reader) Stats() (lines int, bytes int64) {
	return rd.lines, rd.bytes
}

// Close closes the underlying reader
func (rd *Reader) Close() error {
	if rd.rc == nil {
		return nil
	}
	return rd.rc.Close()
}

// CountLines counts physical lines in path (blank lines included).
// Used only to size progress totals before a streaming pass
func CountLines(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer func() { _ = f.Close() }()

	var (
		n     int
		total int64
		buf   = make([]byte, initialBufSize)
		last  byte
	)
	for {
		read, err := f.Read(buf)
		if read > 0 {
			n += bytes.Count(buf[:read], []byte{'\n'})
			total += int64(read)
			last = buf[read-1]
		}
		if err == io.EOF {
			if total > 0 && last != '\n' {
				n++ // unterminated final line still counts
			}
			return n, nil
		}
		if err != nil {
			return 0, err
		}
	}
}
