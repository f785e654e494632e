// Package module provides the merge module implementation
package module

import (
	"benchprep/internal/adapters/jsonl"
	"benchprep/internal/adapters/progress"
	"benchprep/internal/modkit"
	"benchprep/internal/services/merge/domain"
	"benchprep/internal/services/merge/service"
)

// Ports defines the merge module ports
type Ports struct {
	Runner domain.RunnerPort
}

// Module implements the merge module
type Module struct {
	deps  modkit.Deps
	ports Ports
}

// New constructs the merge module, wiring the jsonl adapters and the
// logging progress observer using config from deps.Cfg
func New(deps modkit.Deps) *Module {
	opts := FromConfig(deps.Cfg)

	obs := progress.NewLogger(progress.Options{Every: opts.ProgressEvery})

	svc := service.New(
		fileSources{}, fileSinks{}, fileCounter{}, obs,
		service.Config{
			Precount:      opts.Precount,
			SlowParseWarn: opts.SlowParseWarn,
		},
	)

	m := &Module{deps: deps}
	m.ports = Ports{Runner: svc}
	return m
}

// Name returns the module name
func (m *Module) Name() string { return "merge" }

// Ports returns the module ports
func (m *Module) Ports() any { return m.ports }

// fileSources opens jsonl files as line reader ports
type fileSources struct{}

func (fileSources) Open(path string) (domain.LineReaderPort, error) {
	rd, err := jsonl.Open(path)
	if err != nil {
		return nil, err
	}
	return rd, nil
}

// fileSinks creates jsonl files as record sink ports
type fileSinks struct{}

func (fileSinks) Create(path string) (domain.RecordSinkPort, error) {
	w, err := jsonl.Create(path)
	if err != nil {
		return nil, err
	}
	return w, nil
}

// fileCounter sizes progress totals with a line-count pre-pass
type fileCounter struct{}

func (fileCounter) Count(path string) (int, error) { return jsonl.CountLines(path) }
