// Package diag implements the allocator's error-counting, tracing, and
// environment-driven configuration (spec.md §6, §7) — the "external
// collaborators" spec.md §1 carves out of the core, reduced here to the
// minimum the dispatch façade actually calls into.
package diag

import (
	"strconv"

	"github.com/jorisgeer/yalloc-sub000/internal/osmem"
)

// Stats bitmask values, spec.md §6.
const (
	StatsSummary = 1 << 0
	StatsDetail  = 1 << 1
	StatsTotals  = 1 << 2
	StatsLive    = 1 << 3
	StatsConfig  = 1 << 5
)

// Trace bitmask values, spec.md §6.
const (
	TraceBasic    = 1 << 0
	TraceExtended = 1 << 1
	TraceSuppress = 1 << 2
	TraceAPIOnly  = 1 << 3
)

// Check bitmask values, spec.md §6.
const (
	CheckCountIgnore = 1 << 0
	CheckPrint       = 1 << 1
	CheckExitOnError = 1 << 2
)

// Config is the process-wide configuration read once from the
// environment, mirroring the teacher's one-time mallocinit read of
// process-global tunables.
type Config struct {
	Stats int
	Trace int
	Check int
}

// LoadConfig parses YALLOC_STATS / YALLOC_TRACE / YALLOC_CHECK. Go
// programs do not have a case-preserving getenv convention the way the
// reference C allocator's Yalloc_stats does, so the names are
// upper-cased, matching the rest of the Go ecosystem's env var style.
func LoadConfig() Config {
	return Config{
		Stats: envInt("YALLOC_STATS"),
		Trace: envInt("YALLOC_TRACE"),
		Check: envInt("YALLOC_CHECK"),
	}
}

func envInt(name string) int {
	v, ok := osmem.Getenv(name)
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

// Global is the process-wide configuration, loaded once at package init
// the same way the teacher's tunables are read during mallocinit.
var Global = LoadConfig()
