// Package domain holds the merge service types and ports
package domain

import (
	"encoding/json/jsontext"
)

// KeyField is the join key present in both sources. Records without it are
// dropped from processing
const KeyField = "instance_id"

// Enrichment fields carried from the secondary source into primary records
const (
	FieldLocations = "locations"
	FieldFindings  = "findings"
)

// LookupEntry is the per-key projection retained from a secondary record.
// A nil value means the field was absent; an explicit JSON null is kept as
// a null value. Neither overwrites the primary record
type LookupEntry struct {
	Locations jsontext.Value
	Findings  jsontext.Value
}

// Lookup maps instance keys to their retained projections. Built fully in
// memory before the primary pass begins; read-only afterwards
type Lookup map[string]LookupEntry

// Summary reports what a merge pass did. Counters are observational and
// never affect correctness
type Summary struct {
	Records        int // records written to both sinks
	AddedLocations int // records that took locations from the lookup
	AddedFindings  int // records that took findings from the lookup
}

// JobSpec names the files of one merge run
type JobSpec struct {
	PrimaryPath      string `json:"primary_path"       validate:"required"`
	SecondaryPath    string `json:"secondary_path"     validate:"required"`
	FullOutPath      string `json:"full_out_path"      validate:"required"`
	LocationsOutPath string `json:"locations_out_path" validate:"required"`
}
