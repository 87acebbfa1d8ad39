package dict

import "log/slog"

// Config controls the dictionary's allocation policy and debug checks.
type Config struct {
	// Name for this configuration (for diagnostics)
	Name string

	// Verify walks the whole tree before and after every mutation and panics
	// on the first broken invariant. O(n) per operation; tests and paranoid
	// debugging only.
	Verify bool

	// Adaptive enables hint chasing in RemoveBestFit: an allocation landing
	// on a size with no surplus is redirected to a larger size that has one.
	Adaptive bool

	// AlwaysCoalesceLarge makes CoalOverPopulated report true for every size.
	AlwaysCoalesceLarge bool

	// DemandWeight is the percentage weight given to a new demand-rate sample.
	DemandWeight uint32

	// DemandPadding is the number of deviations added to the demand-rate average.
	DemandPadding float64

	// SweepThreshold is the shortest inter-sweep interval, in seconds, that
	// still yields a demand-rate sample.
	SweepThreshold float64

	// Logger receives debug events. Nil means logger.L.
	Logger *slog.Logger

	// LockHeld reports whether the caller holds the lock serializing access
	// to the dictionary. Checked only when Verify is set.
	LockHeld func() bool
}

// Predefined configurations.
var (
	// DefaultConfig is the production configuration: adaptive, no verification.
	DefaultConfig = Config{
		Name:           "Default",
		Adaptive:       true,
		DemandWeight:   75,
		DemandPadding:  1,
		SweepThreshold: 0.01,
	}

	// DebugConfig is DefaultConfig with full verification on every mutation.
	DebugConfig = Config{
		Name:           "Debug",
		Verify:         true,
		Adaptive:       true,
		DemandWeight:   75,
		DemandPadding:  1,
		SweepThreshold: 0.01,
	}

	// ExactConfig serves the best-fitting size without consulting hints.
	ExactConfig = Config{
		Name:           "Exact",
		DemandWeight:   75,
		DemandPadding:  1,
		SweepThreshold: 0.01,
	}
)
