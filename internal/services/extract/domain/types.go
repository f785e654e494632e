// Package domain holds the extract service types and ports
package domain

import "context"

// Record fields the transform reads and writes
const (
	FieldProblemStatement = "problem_statement"
	FieldEditLocations    = "edit_locations"
)

// SourceType tags where a dataset file's edit locations came from. It also
// names the file inside a dataset directory
type SourceType string

// Known dataset source types
const (
	SourceGroundTruth        SourceType = "ground_truth"
	SourceGroundTruthNoLines SourceType = "ground_truth_wo_lines"
	SourceArtsiv             SourceType = "artsiv"
)

// All lists the source types processed by default
func All() []SourceType {
	return []SourceType{SourceGroundTruth, SourceGroundTruthNoLines, SourceArtsiv}
}

// Valid reports whether s is a known source type
func (s SourceType) Valid() bool {
	switch s {
	case SourceGroundTruth, SourceGroundTruthNoLines, SourceArtsiv:
		return true
	}
	return false
}

// FileName returns the dataset file for this source type
func (s SourceType) FileName() string { return string(s) + ".jsonl" }

// Reasoning returns the provenance note stored with extracted locations
func (s SourceType) Reasoning() string {
	switch s {
	case SourceGroundTruth, SourceGroundTruthNoLines:
		return "Ground truth locations provided"
	case SourceArtsiv:
		return "Artsiv predicted locations"
	default:
		return "Locations provided"
	}
}

// EditLocation is one extracted edit site. Line numbers are null when the
// bullet entry carried no L<start>-L<end> range
type EditLocation struct {
	FilePath  string `json:"file_path"`
	StartLine *int   `json:"start_line"`
	EndLine   *int   `json:"end_line"`
}

// EditLocations is the structured edit_locations field written back to
// records whose problem statement carried a marker section
type EditLocations struct {
	Reasoning string         `json:"reasoning"`
	Locations []EditLocation `json:"locations"`
}

// Summary reports what a rewrite pass did
type Summary struct {
	Records       int // records written back
	WithLocations int // records that gained an edit_locations field
}

// RunnerPort is the public port exposed by the module
type RunnerPort interface {
	// ProcessFile rewrites one dataset file in place
	ProcessFile(ctx context.Context, path string, src SourceType) (Summary, error)
	// ProcessDir rewrites the named source files inside dir, skipping
	// files that do not exist
	ProcessDir(ctx context.Context, dir string, sets []SourceType) (Summary, error)
}
