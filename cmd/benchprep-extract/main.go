// Command benchprep-extract rewrites dataset files in place, lifting edit
// locations embedded in problem statements into a structured edit_locations
// field
package main

import (
	"context"
	"flag"
	"os"

	"github.com/joho/godotenv"

	"benchprep/internal/modkit"
	"benchprep/internal/modkit/module"
	"benchprep/internal/platform/config"
	"benchprep/internal/platform/logger"

	extractmod "benchprep/internal/services/extract/module"
)

func mustSetEnv(key, val string) {
	if val != "" {
		_ = os.Setenv(key, val)
	}
}

func main() {
	var (
		fDatasetDir = flag.String("dataset-dir", ".", "directory containing the dataset files")
		fFiles      = flag.String("files", "", "comma-separated file sets: ground_truth, ground_truth_wo_lines, artsiv or all")
	)
	flag.Parse()

	_ = godotenv.Load()
	l := logger.Get()

	// Surface opts to the module's FromConfig
	mustSetEnv("CORE_EXTRACT_FILES", *fFiles)

	deps := modkit.Deps{
		Cfg: config.New(),
		Log: *l,
	}

	em := extractmod.New(deps)
	module.Register(em.Name(), em.Ports())

	sets, err := em.Sets()
	if err != nil {
		l.Panic().Err(err).Msg("bad -files")
	}

	ports := em.Ports().(extractmod.Ports)
	sum, err := ports.Runner.ProcessDir(context.Background(), *fDatasetDir, sets)
	if err != nil {
		l.Fatal().Err(err).Msg("extract failed")
	}

	l.Info().
		Int("records", sum.Records).
		Int("with_locations", sum.WithLocations).
		Msg("extract finished")
}
