package space

import (
	"log/slog"

	"github.com/joshuapare/freetree/heap/dict"
)

// Config controls a Space's census policy and its dictionary.
type Config struct {
	// Name for this configuration (for diagnostics)
	Name string

	// Dict configures the underlying dictionary (nil means dict.DefaultConfig).
	// Its LockHeld predicate is always replaced by the space's own.
	Dict *dict.Config

	// CoalSurplusPercent scales the desired population into the coalesce
	// target at the start of a sweep.
	CoalSurplusPercent float64

	// SplitSurplusPercent scales the desired population when surpluses are
	// recomputed at the end of a sweep.
	SplitSurplusPercent float64

	// Logger receives space events. Nil means logger.L.
	Logger *slog.Logger
}

// Predefined configurations.
var (
	// DefaultConfig uses the production dictionary with the large-chunk
	// surplus percentages.
	DefaultConfig = Config{
		Name:                "Default",
		CoalSurplusPercent:  0.95,
		SplitSurplusPercent: 1.00,
	}

	// DebugConfig verifies the dictionary on every mutation.
	DebugConfig = Config{
		Name:                "Debug",
		Dict:                &dict.DebugConfig,
		CoalSurplusPercent:  0.95,
		SplitSurplusPercent: 1.00,
	}
)
