package module

import (
	"strings"

	"benchprep/internal/platform/config"
	perr "benchprep/internal/platform/errors"
	"benchprep/internal/services/extract/domain"
)

// Options holds configuration options for the extract service
type Options struct {
	// Files names the dataset source files to rewrite; "all" expands to
	// every known source type
	Files []string
}

// FromConfig reads the extract options from config with CORE_EXTRACT_ prefix
func FromConfig(cfg config.Conf) Options {
	ec := cfg.Prefix("CORE_EXTRACT_")
	return Options{
		Files: ec.MayCSV("FILES", []string{"all"}),
	}
}

// ParseSets resolves file-set names into source types. "all" anywhere in
// names selects every known type; unknown names are an error
func ParseSets(names []string) ([]domain.SourceType, error) {
	var sets []domain.SourceType
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "all" {
			return domain.All(), nil
		}
		st := domain.SourceType(n)
		if !st.Valid() {
			return nil, perr.InvalidArgf("unknown file set %q (want ground_truth, ground_truth_wo_lines, artsiv or all)", n)
		}
		sets = append(sets, st)
	}
	if len(sets) == 0 {
		return domain.All(), nil
	}
	return sets, nil
}
