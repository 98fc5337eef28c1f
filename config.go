package yalloc

import (
	"os"

	"github.com/jorisgeer/yalloc-sub000/internal/diag"
)

// suppression loads and watches the optional file
// YALLOC_SUPPRESS_FILE names, per spec.md §6: "An optional
// suppression/config file at a known path controls per-diagnostic-
// counter enable/disable." Reading the environment and starting the
// fsnotify watch happens once at package init, the same moment Config
// loads the stats/trace/check bitmasks.
var suppression, _ = diag.NewSuppression(os.Getenv("YALLOC_SUPPRESS_FILE"))

func init() { diag.Suppress = suppression }

// DiagnosticEnabled reports whether the named diagnostic counter should
// fire, honoring the suppression file's live edits.
func DiagnosticEnabled(name string) bool {
	return suppression.Enabled(name)
}
