// Package service implements the edit-location extraction transform: a
// per-record text parse that lifts the "--- EDIT LOCATIONS ---" section out
// of a problem statement into a structured edit_locations field, rewriting
// dataset files in place.
//
// The transform is stateless across records. Extraction is idempotent on
// already-clean text; edit_locations is rebuilt from the statement on every
// pass, so a record whose statement carries no section loses the field
package service

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/transform"
	"golang.org/x/text/width"

	"benchprep/internal/adapters/jsonl"
	"benchprep/internal/core/record"
	perr "benchprep/internal/platform/errors"
	"benchprep/internal/platform/logger"
	"benchprep/internal/services/extract/domain"
)

// Marker introduces the edit-location section inside a problem statement
const Marker = "--- EDIT LOCATIONS ---"

var (
	// section runs from the marker line to the first blank-blank gap or EOS
	sectionRE = regexp.MustCompile(`(?s)--- EDIT LOCATIONS ---\s*\n(.*?)(?:\n\n|\z)`)

	// one bullet entry: "• path" or "• path: L12-L40"
	entryRE = regexp.MustCompile(`\x{2022}\s*([^\n:]+)(?::\s*L(\d+)-L(\d+))?`)
)

// ExtractLocations splits a problem statement into its cleaned text and the
// structured locations parsed from the marker section. Without a marker the
// input comes back unchanged with no locations, which makes the transform
// idempotent on already-clean text. Entries that carry no L<start>-L<end>
// range get nil line bounds
func ExtractLocations(problemStatement string) (string, []domain.EditLocation) {
	m := sectionRE.FindStringSubmatchIndex(problemStatement)
	if m == nil {
		return problemStatement, nil
	}

	section := problemStatement[m[2]:m[3]]
	clean := strings.TrimRightFunc(problemStatement[:m[0]], unicode.IsSpace)

	var locs []domain.EditLocation
	for _, line := range strings.Split(section, "\n") {
		line = strings.TrimSpace(foldWidth(line))
		if line == "" {
			continue
		}
		e := entryRE.FindStringSubmatch(line)
		if e == nil {
			continue
		}
		loc := domain.EditLocation{FilePath: strings.TrimSpace(e[1])}
		if e[2] != "" {
			start, _ := strconv.Atoi(e[2])
			end, _ := strconv.Atoi(e[3])
			loc.StartLine = &start
			loc.EndLine = &end
		}
		locs = append(locs, loc)
	}
	return clean, locs
}

// foldWidth maps fullwidth forms (colons, digits) to ASCII so entry matching
// tolerates them; only the matched line is folded, never the rewritten text
func foldWidth(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			out, _, err := transform.String(width.Fold, s)
			if err != nil {
				return s
			}
			return out
		}
	}
	return s
}

// Apply rewrites one record in place: the problem statement loses its marker
// section and edit_locations is set (locations found) or removed (none).
// Returns whether the record gained an edit_locations field
func Apply(rec *record.Record, reasoning string) (bool, error) {
	ps, ok := rec.String(domain.FieldProblemStatement)
	if !ok {
		rec.Delete(domain.FieldEditLocations)
		return false, nil
	}

	clean, locs := ExtractLocations(ps)
	if clean != ps {
		// leave the original raw value untouched when nothing was stripped,
		// so clean records survive the rewrite byte for byte
		if err := rec.SetAny(domain.FieldProblemStatement, clean); err != nil {
			return false, perr.Wrap(err, perr.ErrorCodeJSON, "encode problem_statement")
		}
	}

	if len(locs) == 0 {
		rec.Delete(domain.FieldEditLocations)
		return false, nil
	}
	if err := rec.SetAny(domain.FieldEditLocations, domain.EditLocations{
		Reasoning: reasoning,
		Locations: locs,
	}); err != nil {
		return false, perr.Wrap(err, perr.ErrorCodeJSON, "encode edit_locations")
	}
	return true, nil
}

// Service implements the extract service
type Service struct{}

// New constructs the extract service
func New() *Service { return &Service{} }

// ProcessDir rewrites the named source files inside dir. Files that do not
// exist are warn-and-skip, never fatal; summaries aggregate across files
func (s *Service) ProcessDir(ctx context.Context, dir string, sets []domain.SourceType) (domain.Summary, error) {
	ctx = logger.WithRun(ctx, uuid.NewString(), "")
	log := logger.C(ctx)
	var sum domain.Summary

	for _, src := range sets {
		path := filepath.Join(dir, src.FileName())
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			log.Warn().Str("path", path).Msg("extract: file does not exist, skipping")
			continue
		}
		fs, err := s.ProcessFile(ctx, path, src)
		if err != nil {
			return sum, err
		}
		sum.Records += fs.Records
		sum.WithLocations += fs.WithLocations
	}
	return sum, nil
}

// ProcessFile rewrites path in place: every record is parsed, transformed via
// Apply and written to a temp file in the same directory, which then renames
// over the original. Malformed lines are warned and dropped, matching the
// tolerant policy of a cleanup pass over hand-assembled datasets
func (s *Service) ProcessFile(ctx context.Context, path string, src domain.SourceType) (domain.Summary, error) {
	ctx = logger.WithRun(ctx, "", string(src))
	log := logger.C(ctx)
	var zero domain.Summary

	rd, err := jsonl.Open(path)
	if err != nil {
		return zero, perr.Wrapf(err, perr.ErrorCodeIO, "open dataset %s", path)
	}
	defer func() {
		if cerr := rd.Close(); cerr != nil {
			log.Error().Err(cerr).Msg("extract: failed to close dataset")
		}
	}()

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return zero, perr.Wrap(err, perr.ErrorCodeIO, "create temp file")
	}
	w := jsonl.NewWriter(tmp)
	committed := false
	defer func() {
		if committed {
			return
		}
		_ = w.Close()
		_ = os.Remove(tmp.Name())
	}()

	log.Info().Str("path", path).Msg("extract: rewriting dataset")
	start := time.Now()

	sum, err := s.rewrite(ctx, rd, w, src.Reasoning())
	if err != nil {
		return sum, err
	}

	if err := w.Close(); err != nil {
		return sum, perr.Wrap(err, perr.ErrorCodeIO, "flush rewritten dataset")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return sum, perr.Wrapf(err, perr.ErrorCodeIO, "replace dataset %s", path)
	}
	committed = true

	log.Info().
		Int("records", sum.Records).
		Int("with_locations", sum.WithLocations).
		Int("without_locations", sum.Records-sum.WithLocations).
		Dur("elapsed", time.Since(start)).
		Msg("extract: dataset rewritten")
	return sum, nil
}

func (s *Service) rewrite(ctx context.Context, rd *jsonl.Reader, w *jsonl.Writer, reasoning string) (domain.Summary, error) {
	log := logger.C(ctx)
	var sum domain.Summary

	for {
		line, err := rd.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return sum, perr.Wrap(err, perr.ErrorCodeIO, "read dataset")
		}

		rec, perrs := record.Parse(line)
		if perrs != nil {
			log.Warn().Int("line", rd.LineNo()).Err(perrs).Msg("extract: skipping malformed line")
			continue
		}

		gained, aerr := Apply(rec, reasoning)
		if aerr != nil {
			return sum, perr.Wrapf(aerr, perr.CodeOf(aerr), "rewrite record at line %d", rd.LineNo())
		}
		if gained {
			sum.WithLocations++
		}

		if err := w.WriteRecord(rec); err != nil {
			return sum, perr.Wrapf(err, perr.ErrorCodeIO, "write record at line %d", rd.LineNo())
		}
		sum.Records++
	}
	return sum, nil
}
