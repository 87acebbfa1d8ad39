package dict

import (
	"io"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// printer groups digits so large word counts stay readable.
func printer() *message.Printer {
	return message.NewPrinter(language.English)
}

// ReportStatistics writes a summary of the free space to w.
func (d *Dictionary) ReportStatistics(w io.Writer) error {
	p := printer()
	_, err := p.Fprintf(w,
		"Statistics for free dictionary %s:\n"+
			"------------------------------------\n"+
			"Total Free Space: %d\n"+
			"Max   Chunk Size: %d\n"+
			"Number of Blocks: %d\n",
		d.mem.Region, d.totalSize, d.MaxChunkSize(), d.totalFreeBlocks)
	if err != nil {
		return err
	}
	if d.totalFreeBlocks > 0 {
		if _, err := p.Fprintf(w, "Av.  Block  Size: %d\n", d.totalSize/d.totalFreeBlocks); err != nil {
			return err
		}
	}
	_, err = p.Fprintf(w, "Tree      Height: %d\n", d.TreeHeight())
	return err
}

const censusRow = "%16s %14s %14s %14s %14s %14s %14s %14s %14s %14s %14s\n"

const censusValues = "%16v %14d %14d %14d %14d %14d %14d %14d %14d %14d %14d\n"

// PrintCensus writes one census row per size, smallest first, followed by a
// total row and the growth and deficit ratios of the whole dictionary.
func (d *Dictionary) PrintCensus(w io.Writer) error {
	p := printer()
	if _, err := p.Fprintf(w, censusRow, "size", "count", "bfrsurp", "surplus",
		"desired", "prvSwep", "bfrSwep", "cBirths", "cDeaths", "sBirths", "sDeaths"); err != nil {
		return err
	}

	var total AllocationStats
	var count uint64
	var err error
	d.Ascend(func(l SizeList) bool {
		s := l.stats()
		total.add(s)
		count += l.Count()
		_, err = p.Fprintf(w, censusValues, l.Size(), l.Count(), s.BfrSurp, s.Surplus,
			s.Desired, s.PrevSweep, s.BeforeSweep, s.CoalBirths, s.CoalDeaths,
			s.SplitBirths, s.SplitDeaths)
		return err == nil
	})
	if err != nil {
		return err
	}

	if _, err := p.Fprintf(w, censusValues, "TOTAL", count, total.BfrSurp, total.Surplus,
		total.Desired, total.PrevSweep, total.BeforeSweep, total.CoalBirths, total.CoalDeaths,
		total.SplitBirths, total.SplitDeaths); err != nil {
		return err
	}
	growth, deficit := censusRatios(&total, count)
	_, err = p.Fprintf(w, "totalFree(words): %16d growth: %8.5f  deficit: %8.5f\n",
		d.totalSize, growth, deficit)
	return err
}

// censusRatios returns the net births over the previous population and the
// shortfall against the desired population, both 0 when undefined.
func censusRatios(total *AllocationStats, count uint64) (growth, deficit float64) {
	if total.PrevSweep != 0 {
		net := total.SplitBirths + total.CoalBirths - total.SplitDeaths - total.CoalDeaths
		growth = float64(net) / float64(total.PrevSweep)
	}
	if total.Desired != 0 {
		deficit = float64(total.Desired-int64(count)) / float64(total.Desired)
	}
	return growth, deficit
}

// PrintFreeLists writes every free chunk as [start,end), grouped by size in
// ascending order.
func (d *Dictionary) PrintFreeLists(w io.Writer) error {
	p := printer()
	var err error
	d.Ascend(func(l SizeList) bool {
		if _, err = p.Fprintf(w, "size %d (%d chunks, host %#x)\n",
			l.Size(), l.Count(), uint64(l.host.Addr())); err != nil {
			return false
		}
		l.Each(func(c Chunk) bool {
			suffix := ""
			if c.CantCoalesce() {
				suffix = " (cant_coalesce)"
			}
			_, err = p.Fprintf(w, "  [%#x,%#x)%s\n", uint64(c.Addr()), uint64(c.End()), suffix)
			return err == nil
		})
		return err == nil
	})
	return err
}
