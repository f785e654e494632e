package module

import (
	"time"

	"benchprep/internal/platform/config"
)

// Options holds configuration options for the merge service
type Options struct {
	Precount      bool
	SlowParseWarn time.Duration
	ProgressEvery int
}

// FromConfig reads the merge options from config with CORE_MERGE_ prefix
func FromConfig(cfg config.Conf) Options {
	mc := cfg.Prefix("CORE_MERGE_")
	return Options{
		Precount:      mc.MayBool("PRECOUNT", true),
		SlowParseWarn: mc.MayDuration("SLOW_PARSE_WARN", time.Second),
		ProgressEvery: mc.MayInt("PROGRESS_EVERY", 50000),
	}
}
