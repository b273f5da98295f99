package pipeline

import "time"

// Config configures grouping table housekeeping.
type Config struct {
	// IdleFlushAge closes open groups that received no sample for
	// this long. Zero disables the sweep: groups for identities that
	// stop emitting stay open, matching the assumption that identity
	// cardinality stays small.
	IdleFlushAge time.Duration `yaml:"idle_flush_age"`
}
