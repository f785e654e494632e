// Package module provides the extract module implementation
package module

import (
	"benchprep/internal/modkit"
	"benchprep/internal/services/extract/domain"
	"benchprep/internal/services/extract/service"
)

// Ports defines the extract module ports
type Ports struct {
	Runner domain.RunnerPort
}

// Module implements the extract module
type Module struct {
	deps  modkit.Deps
	opts  Options
	ports Ports
}

// New constructs the extract module
func New(deps modkit.Deps) *Module {
	m := &Module{deps: deps, opts: FromConfig(deps.Cfg)}
	m.ports = Ports{Runner: service.New()}
	return m
}

// Name returns the module name
func (m *Module) Name() string { return "extract" }

// Ports returns the module ports
func (m *Module) Ports() any { return m.ports }

// Sets resolves the configured file sets
func (m *Module) Sets() ([]domain.SourceType, error) { return ParseSets(m.opts.Files) }
