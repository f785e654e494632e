package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"benchprep/internal/core/record"
	perr "benchprep/internal/platform/errors"
	"benchprep/internal/services/merge/domain"
)

// memReader streams lines from memory, mimicking the jsonl reader contract
type memReader struct {
	lines  []string
	i      int
	lineNo int
	n      int
	bytes  int64
}

func (m *memReader) Next() ([]byte, error) {
	for m.i < len(m.lines) {
		l := m.lines[m.i]
		m.i++
		m.lineNo++
		m.bytes += int64(len(l) + 1)
		if strings.TrimSpace(l) == "" {
			continue
		}
		m.n++
		return []byte(l), nil
	}
	return nil, io.EOF
}

func (m *memReader) LineNo() int { return m.lineNo }

func (m *memReader) Stats() (int, int64) { return m.n, m.bytes }

func (m *memReader) Close() error { return nil }

// memSink collects written records as encoded lines
type memSink struct {
	lines   []string
	flushed bool
	failAt  int // fail the Nth write (1-based); 0 = never
}

func (s *memSink) WriteRecord(r *record.Record) error {
	if s.failAt > 0 && len(s.lines)+1 == s.failAt {
		return errors.New("sink write failed")
	}
	b, err := r.Encode()
	if err != nil {
		return err
	}
	s.lines = append(s.lines, string(b))
	return nil
}

func (s *memSink) Flush() error { s.flushed = true; return nil }
func (s *memSink) Close() error { return nil }

// recObserver records callback invocations
type recObserver struct {
	lookupCalls int
	mergeCalls  []int
	totals      []int
	done        *domain.Summary
}

func (o *recObserver) LookupLine(int, int64) { o.lookupCalls++ }
func (o *recObserver) MergeRecord(done, total int) {
	o.mergeCalls = append(o.mergeCalls, done)
	o.totals = append(o.totals, total)
}
func (o *recObserver) Done(s domain.Summary) { o.done = &s }

func newTestService() *Service {
	return New(noopSources{}, noopSinks{}, nil, domain.NopObserver{}, Config{})
}

// the openers are unused by BuildLookup/Merge unit tests
type noopSources struct{}

func (noopSources) Open(string) (domain.LineReaderPort, error) { return &memReader{}, nil }

type noopSinks struct{}

func (noopSinks) Create(string) (domain.RecordSinkPort, error) { return &memSink{}, nil }

func buildLookup(t *testing.T, lines ...string) domain.Lookup {
	t.Helper()
	s := newTestService()
	lk, err := s.BuildLookup(context.Background(), &memReader{lines: lines}, nil)
	if err != nil {
		t.Fatalf("BuildLookup: %v", err)
	}
	return lk
}

func TestBuildLookupProjectsFields(t *testing.T) {
	lk := buildLookup(t,
		`{"instance_id":"a","locations":[1],"findings":"F","noise":true}`,
		`{"instance_id":"b","locations":null}`,
		`{"instance_id":"c"}`,
	)
	if len(lk) != 3 {
		t.Fatalf("lookup size = %d, want 3", len(lk))
	}
	a := lk["a"]
	if string(a.Locations) != `[1]` || string(a.Findings) != `"F"` {
		t.Fatalf("entry a = %+v", a)
	}
	b := lk["b"]
	if !record.IsNull(b.Locations) {
		t.Fatalf("entry b locations should be explicit null, got %s", b.Locations)
	}
	if b.Findings != nil {
		t.Fatalf("entry b findings should be absent, got %s", b.Findings)
	}
	c := lk["c"]
	if c.Locations != nil || c.Findings != nil {
		t.Fatalf("entry c should be empty, got %+v", c)
	}
}

func TestBuildLookupTolerantPolicy(t *testing.T) {
	// malformed lines and keyless records are skipped, never fatal
	lk := buildLookup(t,
		`{not json`,
		`{"no_key":1}`,
		`{"instance_id":""}`,
		``,
		`{"instance_id":"a","findings":"F"}`,
	)
	if len(lk) != 1 {
		t.Fatalf("lookup size = %d, want 1", len(lk))
	}
	if _, ok := lk["a"]; !ok {
		t.Fatalf("valid entry missing")
	}
}

func TestBuildLookupEmptySource(t *testing.T) {
	lk := buildLookup(t)
	if len(lk) != 0 {
		t.Fatalf("empty source should yield empty lookup, got %d", len(lk))
	}
}

func TestBuildLookupLastWriteWins(t *testing.T) {
	lk := buildLookup(t,
		`{"instance_id":"a","locations":[1],"findings":"first"}`,
		`{"instance_id":"a","locations":[2],"findings":"second"}`,
	)
	a := lk["a"]
	if string(a.Locations) != `[2]` || string(a.Findings) != `"second"` {
		t.Fatalf("last write should win, got %+v", a)
	}
}

func TestBuildLookupObserverFires(t *testing.T) {
	s := newTestService()
	obs := &recObserver{}
	_, err := s.BuildLookup(context.Background(), &memReader{lines: []string{
		`{"instance_id":"a"}`,
		`{"instance_id":"b"}`,
	}}, obs)
	if err != nil {
		t.Fatalf("BuildLookup: %v", err)
	}
	if obs.lookupCalls != 2 {
		t.Fatalf("observer calls = %d, want 2", obs.lookupCalls)
	}
}

func runMerge(t *testing.T, lines []string, lk domain.Lookup) (domain.Summary, *memSink, *memSink, error) {
	t.Helper()
	s := newTestService()
	full := &memSink{}
	loc := &memSink{}
	sum, err := s.Merge(context.Background(), &memReader{lines: lines}, lk, full, loc, 0, nil)
	return sum, full, loc, err
}

func TestMergeEndToEndExample(t *testing.T) {
	lk := buildLookup(t, `{"instance_id":"a","locations":[1],"findings":"F"}`)
	sum, full, loc, err := runMerge(t, []string{
		`{"instance_id":"a","text":"x"}`,
		`{"instance_id":"b","text":"y"}`,
	}, lk)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}

	wantFull := []string{
		`{"instance_id":"a","text":"x","locations":[1],"findings":"F"}`,
		`{"instance_id":"b","text":"y"}`,
	}
	wantLoc := []string{
		`{"instance_id":"a","text":"x","locations":[1]}`,
		`{"instance_id":"b","text":"y"}`,
	}
	for i := range wantFull {
		if full.lines[i] != wantFull[i] {
			t.Fatalf("full[%d] = %s, want %s", i, full.lines[i], wantFull[i])
		}
		if loc.lines[i] != wantLoc[i] {
			t.Fatalf("loc[%d] = %s, want %s", i, loc.lines[i], wantLoc[i])
		}
	}
	if sum.Records != 2 || sum.AddedLocations != 1 || sum.AddedFindings != 1 {
		t.Fatalf("summary = %+v", sum)
	}
	if !full.flushed || !loc.flushed {
		t.Fatalf("sinks not flushed after success")
	}
}

func TestMergeAbsentKeyLeavesRecordUnchanged(t *testing.T) {
	// empty lookup: record passes through as-is; locations-only drops findings
	_, full, loc, err := runMerge(t, []string{
		`{"instance_id":"a","findings":"mine","text":"x"}`,
	}, domain.Lookup{})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if full.lines[0] != `{"instance_id":"a","findings":"mine","text":"x"}` {
		t.Fatalf("full = %s", full.lines[0])
	}
	if loc.lines[0] != `{"instance_id":"a","text":"x"}` {
		t.Fatalf("loc = %s", loc.lines[0])
	}
}

func TestMergeNullNeverOverwrites(t *testing.T) {
	lk := buildLookup(t, `{"instance_id":"a","locations":null,"findings":null}`)

	// primary's own values survive a null lookup entry
	sum, full, _, err := runMerge(t, []string{
		`{"instance_id":"a","locations":[9],"findings":"orig"}`,
	}, lk)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if full.lines[0] != `{"instance_id":"a","locations":[9],"findings":"orig"}` {
		t.Fatalf("null overwrote primary: %s", full.lines[0])
	}
	if sum.AddedLocations != 0 || sum.AddedFindings != 0 {
		t.Fatalf("null merge counted as added: %+v", sum)
	}

	// and absence stays absent
	_, full2, _, err := runMerge(t, []string{`{"instance_id":"a"}`}, lk)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if full2.lines[0] != `{"instance_id":"a"}` {
		t.Fatalf("null materialized a field: %s", full2.lines[0])
	}
}

func TestMergeIndependentFieldOverwrite(t *testing.T) {
	// locations present, findings null: only locations merge
	lk := buildLookup(t, `{"instance_id":"a","locations":[1],"findings":null}`)
	sum, full, _, err := runMerge(t, []string{`{"instance_id":"a","findings":"keep"}`}, lk)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if full.lines[0] != `{"instance_id":"a","findings":"keep","locations":[1]}` {
		t.Fatalf("full = %s", full.lines[0])
	}
	if sum.AddedLocations != 1 || sum.AddedFindings != 0 {
		t.Fatalf("summary = %+v", sum)
	}
}

func TestMergeOrderAndDualProjectionConsistency(t *testing.T) {
	keys := []string{"k1", "k2", "k3", "k4", "k5"}
	var lines []string
	for _, k := range keys {
		lines = append(lines, `{"instance_id":"`+k+`","findings":"f-`+k+`"}`)
	}
	_, full, loc, err := runMerge(t, lines, domain.Lookup{})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if len(full.lines) != len(keys) || len(loc.lines) != len(keys) {
		t.Fatalf("line counts: full=%d loc=%d", len(full.lines), len(loc.lines))
	}
	for i, k := range keys {
		// order follows primary source order in both sinks
		if !strings.Contains(full.lines[i], `"`+k+`"`) || !strings.Contains(loc.lines[i], `"`+k+`"`) {
			t.Fatalf("order broken at %d: full=%s loc=%s", i, full.lines[i], loc.lines[i])
		}
		// line i of the locations output is line i of the full output minus findings
		if strings.Contains(loc.lines[i], "findings") {
			t.Fatalf("findings leaked into locations output: %s", loc.lines[i])
		}
		rebuilt := strings.Replace(full.lines[i], `,"findings":"f-`+k+`"`, "", 1)
		if loc.lines[i] != rebuilt {
			t.Fatalf("projections diverge at %d:\n full: %s\n loc:  %s", i, full.lines[i], loc.lines[i])
		}
	}
}

func TestMergeKeyDrop(t *testing.T) {
	sum, full, loc, err := runMerge(t, []string{
		`{"text":"no key"}`,
		`{"instance_id":"","text":"empty key"}`,
	}, domain.Lookup{})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if len(full.lines) != 0 || len(loc.lines) != 0 {
		t.Fatalf("keyless records reached a sink: full=%v loc=%v", full.lines, loc.lines)
	}
	if sum.Records != 0 {
		t.Fatalf("keyless records were counted: %+v", sum)
	}
}

func TestMergeMalformedPrimaryIsFatal(t *testing.T) {
	sum, full, loc, err := runMerge(t, []string{
		`{"instance_id":"a"}`,
		`{broken`,
		`{"instance_id":"c"}`,
	}, domain.Lookup{})
	if err == nil {
		t.Fatalf("expected fatal error on malformed primary line")
	}
	if !perr.IsCode(err, perr.ErrorCodeJSON) {
		t.Fatalf("code = %v, want JSON", perr.CodeOf(err))
	}
	if !strings.Contains(err.Error(), "line 2") {
		t.Fatalf("error should carry the line number: %v", err)
	}
	if strings.Contains(err.Error(), "{broken") {
		t.Fatalf("error message must not reproduce the raw line: %v", err)
	}
	// everything before the bad line is intact, nothing after it written
	if len(full.lines) != 1 || len(loc.lines) != 1 {
		t.Fatalf("sinks inconsistent after fatal error: full=%v loc=%v", full.lines, loc.lines)
	}
	if sum.Records != 1 {
		t.Fatalf("summary after abort = %+v", sum)
	}
}

func TestMergeSinkErrorPropagates(t *testing.T) {
	s := newTestService()
	full := &memSink{}
	loc := &memSink{failAt: 1}
	_, err := s.Merge(context.Background(), &memReader{lines: []string{`{"instance_id":"a"}`}},
		domain.Lookup{}, full, loc, 0, nil)
	if err == nil {
		t.Fatalf("expected error from failing sink")
	}
	if !perr.IsCode(err, perr.ErrorCodeIO) {
		t.Fatalf("code = %v, want IO", perr.CodeOf(err))
	}
}

func TestMergeObserverSeesTotals(t *testing.T) {
	s := newTestService()
	obs := &recObserver{}
	full := &memSink{}
	loc := &memSink{}
	sum, err := s.Merge(context.Background(), &memReader{lines: []string{
		`{"instance_id":"a"}`,
		`{"instance_id":"b"}`,
	}}, domain.Lookup{}, full, loc, 2, obs)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if len(obs.mergeCalls) != 2 || obs.mergeCalls[1] != 2 || obs.totals[0] != 2 {
		t.Fatalf("observer calls = %v totals = %v", obs.mergeCalls, obs.totals)
	}
	if obs.done == nil || obs.done.Records != sum.Records {
		t.Fatalf("Done not observed: %+v", obs.done)
	}
}

func TestNewDefaultsAndPanics(t *testing.T) {
	s := New(noopSources{}, noopSinks{}, nil, nil, Config{})
	if s.Cfg.SlowParseWarn <= 0 {
		t.Fatalf("SlowParseWarn default not applied")
	}
	if s.Obs == nil {
		t.Fatalf("nil observer should default to nop")
	}

	defer func() {
		if recover() == nil {
			t.Fatalf("nil SourceOpener should panic")
		}
	}()
	New(nil, noopSinks{}, nil, nil, Config{})
}

func TestTruncateUTF8(t *testing.T) {
	if got := truncateUTF8([]byte("short"), 100); got != "short" {
		t.Fatalf("no-op truncate = %q", got)
	}
	// backs up to the rune boundary instead of splitting the multibyte char
	in := []byte("aé") // 'é' is two bytes starting at index 1
	if got := truncateUTF8(in, 2); got != "a..." {
		t.Fatalf("truncate = %q, want %q", got, "a...")
	}
}
