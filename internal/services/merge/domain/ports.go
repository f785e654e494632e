package domain

import (
	"context"

	"benchprep/internal/core/record"
)

// RunnerPort is the public port exposed by the module
type RunnerPort interface {
	Run(ctx context.Context, spec JobSpec) (Summary, error)
}

// LineReaderPort streams non-blank lines from one source
type LineReaderPort interface {
	// Next returns the next non-blank line or io.EOF
	Next() ([]byte, error)
	// LineNo is the physical line number of the last line returned
	LineNo() int
	// Stats returns lines yielded and bytes consumed so far
	Stats() (lines int, bytes int64)
	Close() error
}

// RecordSinkPort accepts serialized records one line at a time
type RecordSinkPort interface {
	WriteRecord(*record.Record) error
	Flush() error
	Close() error
}

// SourceOpener opens an input source for streaming
type SourceOpener interface {
	Open(path string) (LineReaderPort, error)
}

// SinkCreator creates an output sink
type SinkCreator interface {
	Create(path string) (RecordSinkPort, error)
}

// LineCounter sizes a source for progress totals (pre-pass, optional)
type LineCounter interface {
	Count(path string) (int, error)
}

// Observer receives progress callbacks. Implementations must not affect
// correctness; the engine calls them inline and ignores nothing they do
type Observer interface {
	// LookupLine fires after each secondary line is consumed
	LookupLine(lines int, bytes int64)
	// MergeRecord fires after each primary record is written to both sinks.
	// total is 0 when the pre-count is disabled
	MergeRecord(done, total int)
	// Done fires once after a successful merge pass
	Done(s Summary)
}

// NopObserver discards all callbacks
type NopObserver struct{}

// LookupLine implements Observer
func (NopObserver) LookupLine(int, int64) {}

// MergeRecord implements Observer
func (NopObserver) MergeRecord(int, int) {}

// Done implements Observer
func (NopObserver) Done(Summary) {}
