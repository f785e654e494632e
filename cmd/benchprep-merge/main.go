// Command benchprep-merge enriches the primary dataset (default.jsonl) with
// locations and findings from a secondary results file, writing the
// with-findings and locations-only projections next to the primary
package main

import (
	"context"
	"flag"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"

	"benchprep/internal/modkit"
	"benchprep/internal/modkit/module"
	"benchprep/internal/platform/config"
	"benchprep/internal/platform/logger"

	mergedom "benchprep/internal/services/merge/domain"
	mergemod "benchprep/internal/services/merge/module"
)

func mustSetEnv(key, val string) {
	if val != "" {
		_ = os.Setenv(key, val)
	}
}

func main() {
	var (
		fDatasetDir = flag.String("dataset-dir", "", "directory holding default.jsonl; outputs are written here")
		fOutput     = flag.String("output-jsonl", "", "secondary results file carrying locations/findings per instance")

		fPrimary = flag.String("primary", "default.jsonl", "primary dataset file name inside -dataset-dir")
		fFullOut = flag.String("out-full", "artsiv_w_findings.jsonl", "with-findings output file name inside -dataset-dir")
		fLocOut  = flag.String("out-locations", "artsiv_w_locations.jsonl", "locations-only output file name inside -dataset-dir")

		fPrecount      = flag.Bool("precount", true, "pre-count primary lines so progress logs report a total")
		fProgressEvery = flag.Int("progress-every", 0, "log progress every N records (0 = default)")
	)
	flag.Parse()

	_ = godotenv.Load()
	l := logger.Get()

	if *fDatasetDir == "" {
		l.Panic().Msg("must provide -dataset-dir")
	}
	if *fOutput == "" {
		l.Panic().Msg("must provide -output-jsonl")
	}

	// Surface opts to the module's FromConfig
	mustSetEnv("CORE_MERGE_PRECOUNT", strconv.FormatBool(*fPrecount))
	if *fProgressEvery > 0 {
		mustSetEnv("CORE_MERGE_PROGRESS_EVERY", strconv.Itoa(*fProgressEvery))
	}

	deps := modkit.Deps{
		Cfg: config.New(),
		Log: *l,
	}

	mm := mergemod.New(deps)
	module.Register(mm.Name(), mm.Ports())

	ports := mm.Ports().(mergemod.Ports)
	sum, err := ports.Runner.Run(context.Background(), mergedom.JobSpec{
		PrimaryPath:      filepath.Join(*fDatasetDir, *fPrimary),
		SecondaryPath:    *fOutput,
		FullOutPath:      filepath.Join(*fDatasetDir, *fFullOut),
		LocationsOutPath: filepath.Join(*fDatasetDir, *fLocOut),
	})
	if err != nil {
		l.Fatal().Err(err).Msg("merge failed")
	}

	l.Info().
		Int("records", sum.Records).
		Int("added_locations", sum.AddedLocations).
		Int("added_findings", sum.AddedFindings).
		Msg("merge finished")
}
