package dict

// AllocationStats is the GC census kept for one size list. Counts are signed:
// Surplus and Desired go negative when a size is under-populated.
type AllocationStats struct {
	// Desired is the population the sizing policy wants at the end of a sweep.
	Desired int64
	// CoalDesired is the population above which coalescing into this size is preferred.
	CoalDesired int64
	// Surplus is the population above Desired; <= 0 means the size is scarce.
	Surplus int64
	// BfrSurp is Surplus as recorded at the start of the last sweep.
	BfrSurp int64
	// PrevSweep is the population at the end of the previous sweep.
	PrevSweep int64
	// BeforeSweep is the population at the start of the current sweep.
	BeforeSweep int64

	CoalBirths  int64
	CoalDeaths  int64
	SplitBirths int64
	SplitDeaths int64

	// ReturnedBytes counts bytes returned to the list since the last reset.
	ReturnedBytes uint64

	demandRate paddedAverage
}

// DemandRate returns the padded demand-rate estimate in chunks per second.
func (s *AllocationStats) DemandRate() float64 {
	return s.demandRate.paddedAvg
}

func (s *AllocationStats) initialize(splitBirth bool, weight uint32, padding float64) {
	*s = AllocationStats{demandRate: newPaddedAverage(weight, padding)}
	if splitBirth {
		s.SplitBirths = 1
	}
}

// computeDesired samples the demand seen since the previous sweep and derives
// the population needed to cover the next inter- plus intra-sweep period.
// Intervals shorter than threshold are too noisy to sample and are ignored.
func (s *AllocationStats) computeDesired(count int64, interSweepCurrent, interSweepEstimate, intraSweepEstimate, threshold float64) {
	if interSweepCurrent <= threshold {
		return
	}
	demand := s.PrevSweep - count + s.SplitBirths + s.CoalBirths - s.SplitDeaths - s.CoalDeaths
	rate := float64(demand) / interSweepCurrent
	s.demandRate.sample(rate)
	s.Desired = int64(s.demandRate.paddedAvg * (interSweepEstimate + intraSweepEstimate))
}

// add accumulates o into s, for census totals.
func (s *AllocationStats) add(o *AllocationStats) {
	s.Desired += o.Desired
	s.CoalDesired += o.CoalDesired
	s.Surplus += o.Surplus
	s.BfrSurp += o.BfrSurp
	s.PrevSweep += o.PrevSweep
	s.BeforeSweep += o.BeforeSweep
	s.CoalBirths += o.CoalBirths
	s.CoalDeaths += o.CoalDeaths
	s.SplitBirths += o.SplitBirths
	s.SplitDeaths += o.SplitDeaths
	s.ReturnedBytes += o.ReturnedBytes
}

// censusArena stores AllocationStats out of line. A size list refers to its
// entry by slot index, so the slot travels with the list's control block when
// the list is relocated.
type censusArena struct {
	slots []AllocationStats
	free  []uint32
}

func (a *censusArena) alloc() uint32 {
	if n := len(a.free); n > 0 {
		slot := a.free[n-1]
		a.free = a.free[:n-1]
		return slot
	}
	a.slots = append(a.slots, AllocationStats{})
	return uint32(len(a.slots) - 1)
}

func (a *censusArena) release(slot uint32) {
	a.slots[slot] = AllocationStats{}
	a.free = append(a.free, slot)
}

func (a *censusArena) at(slot uint32) *AllocationStats {
	return &a.slots[slot]
}

func (a *censusArena) reset() {
	a.slots = a.slots[:0]
	a.free = a.free[:0]
}

// inUse returns the number of live slots.
func (a *censusArena) inUse() int {
	return len(a.slots) - len(a.free)
}
