// Package service implements the streaming merge: a hash join that fully
// indexes the secondary source, then streams the primary source once and
// writes two projections of each merged record in lock-step.
//
// The asymmetry is deliberate and load-bearing: the secondary pass tolerates
// malformed lines (warn and skip), the primary pass does not (first bad line
// aborts the run). Peak memory is bounded by the secondary key space, never
// by the primary dataset
package service

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"

	"benchprep/internal/core/record"
	perr "benchprep/internal/platform/errors"
	"benchprep/internal/platform/logger"
	"benchprep/internal/platform/validate"
	"benchprep/internal/services/merge/domain"
)

const sampleRawMax = 2048 // max bytes of raw JSON to log when sampling a bad line

// Config holds configuration options for the merge service
type Config struct {
	// Precount runs a line-count pre-pass over the primary source so the
	// observer gets a known total. Off means total=0 (unknown)
	Precount bool

	// SlowParseWarn logs a warning when a single secondary line takes longer
	// than this to parse; <=0 -> 1s
	SlowParseWarn time.Duration
}

// Service implements the merge service
type Service struct {
	Sources domain.SourceOpener
	Sinks   domain.SinkCreator
	Counter domain.LineCounter
	Obs     domain.Observer
	Cfg     Config
}

// New constructs the merge service
func New(src domain.SourceOpener, sinks domain.SinkCreator, counter domain.LineCounter, obs domain.Observer, cfg Config) *Service {
	if src == nil {
		panic("merge.Service requires a non nil SourceOpener")
	}
	if sinks == nil {
		panic("merge.Service requires a non nil SinkCreator")
	}
	if obs == nil {
		obs = domain.NopObserver{}
	}
	if cfg.SlowParseWarn <= 0 {
		cfg.SlowParseWarn = time.Second
	}
	return &Service{Sources: src, Sinks: sinks, Counter: counter, Obs: obs, Cfg: cfg}
}

// Run validates the spec and executes both passes end to end
func (s *Service) Run(ctx context.Context, spec domain.JobSpec) (domain.Summary, error) {
	var zero domain.Summary

	if err := validate.Struct(spec); err != nil {
		return zero, perr.WithOp(err, "merge.Run")
	}

	ctx = logger.WithRun(ctx, uuid.NewString(), "")

	lookup, err := s.runLookupPass(ctx, spec.SecondaryPath)
	if err != nil {
		return zero, err
	}

	total := 0
	if s.Cfg.Precount && s.Counter != nil {
		n, err := s.Counter.Count(spec.PrimaryPath)
		if err != nil {
			// sizing only; the merge pass proceeds with an unknown total
			logger.C(ctx).Warn().Err(err).Str("path", spec.PrimaryPath).Msg("merge: line pre-count failed")
		} else {
			total = n
		}
	}

	return s.runMergePass(ctx, spec, lookup, total)
}

func (s *Service) runLookupPass(ctx context.Context, path string) (domain.Lookup, error) {
	ctx = logger.WithRun(ctx, "", "lookup")
	log := logger.C(ctx)
	log.Info().Str("path", path).Msg("lookup: building from secondary source")

	rd, err := s.Sources.Open(path)
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeIO, "open secondary source %s", path)
	}

	start := time.Now()
	lookup, lerr := s.BuildLookup(ctx, rd, s.Obs)
	if cerr := rd.Close(); cerr != nil && lerr == nil {
		lerr = perr.Wrap(cerr, perr.ErrorCodeIO, "close secondary source")
	}
	if lerr != nil {
		return nil, lerr
	}

	log.Info().
		Int("keys", len(lookup)).
		Dur("elapsed", time.Since(start)).
		Msg("lookup: built")
	return lookup, nil
}

// BuildLookup streams the secondary source once and indexes the retained
// projection per key. Parse failures are warnings, never fatal; records
// without a key are skipped silently; duplicate keys keep the last
// occurrence in source order. An empty source yields an empty lookup
func (s *Service) BuildLookup(ctx context.Context, rd domain.LineReaderPort, obs domain.Observer) (domain.Lookup, error) {
	if obs == nil {
		obs = domain.NopObserver{}
	}
	log := logger.C(ctx)
	lookup := domain.Lookup{}

	for {
		line, err := rd.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, perr.Wrap(err, perr.ErrorCodeIO, "read secondary source")
		}

		t0 := time.Now()
		rec, perrs := record.Parse(line)
		if perrs != nil {
			log.Warn().Int("line", rd.LineNo()).Err(perrs).Msg("lookup: skipping malformed line")
			continue
		}
		if d := time.Since(t0); d > s.Cfg.SlowParseWarn {
			log.Warn().Int("line", rd.LineNo()).Dur("elapsed", d).Msg("lookup: slow parse")
		}

		key, ok := rec.String(domain.KeyField)
		if !ok || key == "" {
			continue
		}

		entry := domain.LookupEntry{}
		if v, ok := rec.Get(domain.FieldLocations); ok {
			entry.Locations = v
		}
		if v, ok := rec.Get(domain.FieldFindings); ok {
			entry.Findings = v
		}
		lookup[key] = entry // last occurrence wins

		lines, bytes := rd.Stats()
		obs.LookupLine(lines, bytes)
	}
	return lookup, nil
}

func (s *Service) runMergePass(ctx context.Context, spec domain.JobSpec, lookup domain.Lookup, total int) (domain.Summary, error) {
	ctx = logger.WithRun(ctx, "", "merge")
	log := logger.C(ctx)
	var zero domain.Summary

	rd, err := s.Sources.Open(spec.PrimaryPath)
	if err != nil {
		return zero, perr.Wrapf(err, perr.ErrorCodeIO, "open primary source %s", spec.PrimaryPath)
	}
	defer func() {
		if cerr := rd.Close(); cerr != nil {
			log.Error().Err(cerr).Msg("merge: failed to close primary source")
		}
	}()

	sinkFull, err := s.Sinks.Create(spec.FullOutPath)
	if err != nil {
		return zero, perr.Wrapf(err, perr.ErrorCodeIO, "create sink %s", spec.FullOutPath)
	}
	sinkLoc, err := s.Sinks.Create(spec.LocationsOutPath)
	if err != nil {
		if cerr := sinkFull.Close(); cerr != nil {
			log.Error().Err(cerr).Msg("merge: failed to close sink")
		}
		return zero, perr.Wrapf(err, perr.ErrorCodeIO, "create sink %s", spec.LocationsOutPath)
	}
	// Close flushes; on a fatal mid-pass error this keeps every line written
	// so far intact in both sinks
	defer func() {
		if cerr := sinkFull.Close(); cerr != nil {
			log.Error().Err(cerr).Msg("merge: failed to close sink")
		}
		if cerr := sinkLoc.Close(); cerr != nil {
			log.Error().Err(cerr).Msg("merge: failed to close sink")
		}
	}()

	log.Info().
		Str("primary", spec.PrimaryPath).
		Int("keys", len(lookup)).
		Int("total", total).
		Msg("merge: starting streaming pass")

	start := time.Now()
	sum, err := s.Merge(ctx, rd, lookup, sinkFull, sinkLoc, total, s.Obs)
	if err != nil {
		return sum, err
	}

	log.Info().
		Int("records", sum.Records).
		Int("added_locations", sum.AddedLocations).
		Int("added_findings", sum.AddedFindings).
		Dur("elapsed", time.Since(start)).
		Str("out_full", spec.FullOutPath).
		Str("out_locations", spec.LocationsOutPath).
		Msg("merge: complete")
	return sum, nil
}

// Merge streams the primary source once, enriching each keyed record from
// lookup and writing the with-findings projection to sinkFull and the
// locations-only projection to sinkLoc, in primary source order.
//
// Any malformed primary line is fatal: the error carries the line number,
// and nothing is written for that line. Records without a key are dropped
// without counting
func (s *Service) Merge(
	ctx context.Context,
	rd domain.LineReaderPort,
	lookup domain.Lookup,
	sinkFull, sinkLoc domain.RecordSinkPort,
	total int,
	obs domain.Observer,
) (domain.Summary, error) {
	if obs == nil {
		obs = domain.NopObserver{}
	}
	log := logger.C(ctx)
	var sum domain.Summary

	for {
		line, err := rd.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return sum, perr.Wrap(err, perr.ErrorCodeIO, "read primary source")
		}

		rec, perrs := record.Parse(line)
		if perrs != nil {
			// the sample never reaches the error message, only debug logs
			log.Debug().
				Int("line", rd.LineNo()).
				Str("sample_raw", truncateUTF8(line, sampleRawMax)).
				Msg("merge: malformed primary line")
			return sum, perr.Wrapf(perrs, perr.ErrorCodeJSON, "primary source: malformed record at line %d", rd.LineNo())
		}

		key, ok := rec.String(domain.KeyField)
		if !ok || key == "" {
			continue
		}

		if entry, ok := lookup[key]; ok {
			if entry.Locations != nil && !record.IsNull(entry.Locations) {
				rec.Set(domain.FieldLocations, entry.Locations)
				sum.AddedLocations++
			}
			if entry.Findings != nil && !record.IsNull(entry.Findings) {
				rec.Set(domain.FieldFindings, entry.Findings)
				sum.AddedFindings++
			}
		}

		// with-findings projection: the merged record as-is
		if err := sinkFull.WriteRecord(rec); err != nil {
			return sum, perr.Wrapf(err, perr.ErrorCodeIO, "write full projection at line %d", rd.LineNo())
		}

		// locations-only projection: same record minus findings
		locOnly := rec.Clone()
		locOnly.Delete(domain.FieldFindings)
		if err := sinkLoc.WriteRecord(locOnly); err != nil {
			return sum, perr.Wrapf(err, perr.ErrorCodeIO, "write locations projection at line %d", rd.LineNo())
		}

		sum.Records++
		obs.MergeRecord(sum.Records, total)
	}

	if err := sinkFull.Flush(); err != nil {
		return sum, perr.Wrap(err, perr.ErrorCodeIO, "flush full projection sink")
	}
	if err := sinkLoc.Flush(); err != nil {
		return sum, perr.Wrap(err, perr.ErrorCodeIO, "flush locations projection sink")
	}

	obs.Done(sum)
	return sum, nil
}

// truncateUTF8 returns a string made from b, truncated to at most max bytes,
// backing up to a UTF-8 boundary if needed, and appending an ellipsis if truncated
func truncateUTF8(b []byte, max int) string {
	if max <= 0 || len(b) <= max {
		return string(b)
	}
	i := max
	// back up to the start of a rune (0b10xxxxxx indicates continuation byte)
	for i > 0 && (b[i]&0xC0) == 0x80 {
		i--
	}
	if i <= 0 {
		i = max
	}
	return string(b[:i]) + "..."
}
