package module

import (
	"context"
	"path/filepath"
	"testing"

	"benchprep/internal/modkit"
	"benchprep/internal/platform/config"
	perr "benchprep/internal/platform/errors"
	kit "benchprep/internal/platform/testkit"
	"benchprep/internal/services/merge/domain"
)

func TestFromConfigDefaults(t *testing.T) {
	opts := FromConfig(config.New())
	if !opts.Precount {
		t.Fatalf("Precount should default on")
	}
	if opts.ProgressEvery != 50000 {
		t.Fatalf("ProgressEvery default = %d", opts.ProgressEvery)
	}
}

func TestFromConfigOverrides(t *testing.T) {
	t.Setenv("CORE_MERGE_PRECOUNT", "false")
	t.Setenv("CORE_MERGE_PROGRESS_EVERY", "10")
	t.Setenv("CORE_MERGE_SLOW_PARSE_WARN", "2s")
	opts := FromConfig(config.New())
	if opts.Precount || opts.ProgressEvery != 10 || opts.SlowParseWarn.Seconds() != 2 {
		t.Fatalf("overrides not applied: %+v", opts)
	}
}

func TestModuleRunEndToEnd(t *testing.T) {
	m := New(modkit.Deps{Cfg: config.New()})
	if m.Name() != "merge" {
		t.Fatalf("Name = %q", m.Name())
	}
	ports, ok := m.Ports().(Ports)
	if !ok {
		t.Fatalf("Ports type = %T", m.Ports())
	}

	primary := kit.WriteJSONL(t, "default.jsonl",
		`{"instance_id":"a","text":"x"}`,
		`{"instance_id":"b","text":"y"}`,
	)
	secondary := kit.WriteJSONL(t, "output.jsonl",
		`{"instance_id":"a","locations":[1],"findings":"F"}`,
	)
	outDir := t.TempDir()
	fullOut := filepath.Join(outDir, "artsiv_w_findings.jsonl")
	locOut := filepath.Join(outDir, "artsiv_w_locations.jsonl")

	sum, err := ports.Runner.Run(context.Background(), domain.JobSpec{
		PrimaryPath:      primary,
		SecondaryPath:    secondary,
		FullOutPath:      fullOut,
		LocationsOutPath: locOut,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Records != 2 || sum.AddedLocations != 1 || sum.AddedFindings != 1 {
		t.Fatalf("summary = %+v", sum)
	}

	gotFull := kit.ReadLines(t, fullOut)
	wantFull := []string{
		`{"instance_id":"a","text":"x","locations":[1],"findings":"F"}`,
		`{"instance_id":"b","text":"y"}`,
	}
	gotLoc := kit.ReadLines(t, locOut)
	wantLoc := []string{
		`{"instance_id":"a","text":"x","locations":[1]}`,
		`{"instance_id":"b","text":"y"}`,
	}
	for i := range wantFull {
		if gotFull[i] != wantFull[i] {
			t.Fatalf("full[%d] = %s, want %s", i, gotFull[i], wantFull[i])
		}
		if gotLoc[i] != wantLoc[i] {
			t.Fatalf("loc[%d] = %s, want %s", i, gotLoc[i], wantLoc[i])
		}
	}
}

func TestModuleRunValidatesSpec(t *testing.T) {
	m := New(modkit.Deps{Cfg: config.New()})
	ports := m.Ports().(Ports)

	_, err := ports.Runner.Run(context.Background(), domain.JobSpec{})
	if err == nil {
		t.Fatalf("empty spec should fail validation")
	}
	if !perr.IsCode(err, perr.ErrorCodeValidation) {
		t.Fatalf("code = %v, want Validation", perr.CodeOf(err))
	}
}

func TestModuleRunMissingSecondary(t *testing.T) {
	m := New(modkit.Deps{Cfg: config.New()})
	ports := m.Ports().(Ports)

	dir := t.TempDir()
	_, err := ports.Runner.Run(context.Background(), domain.JobSpec{
		PrimaryPath:      filepath.Join(dir, "p.jsonl"),
		SecondaryPath:    filepath.Join(dir, "missing.jsonl"),
		FullOutPath:      filepath.Join(dir, "f.jsonl"),
		LocationsOutPath: filepath.Join(dir, "l.jsonl"),
	})
	if err == nil {
		t.Fatalf("missing secondary should fail")
	}
	if !perr.IsCode(err, perr.ErrorCodeIO) {
		t.Fatalf("code = %v, want IO", perr.CodeOf(err))
	}
}
