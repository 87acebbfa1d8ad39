package main

import (
	"fmt"
	"math/rand"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/joshuapare/freetree/heap/dict"
	"github.com/joshuapare/freetree/heap/region"
	"github.com/joshuapare/freetree/heap/space"
	"github.com/joshuapare/freetree/internal/logger"
)

var (
	simWords      uint64
	simSteps      int
	simSeed       int64
	simMaxSize    uint64
	simAllocPct   int
	simSweepEvery int
	simPinPct     int
	simCheck      bool
	simCensus     bool
	simLists      bool
)

func init() {
	cmd := newSimulateCmd()
	cmd.Flags().Uint64Var(&simWords, "words", 1<<16, "Region size in words")
	cmd.Flags().IntVar(&simSteps, "steps", 10000, "Number of allocate/free steps")
	cmd.Flags().Int64Var(&simSeed, "seed", 1, "Random seed")
	cmd.Flags().Uint64Var(&simMaxSize, "max-size", 256, "Largest request in words")
	cmd.Flags().IntVar(&simAllocPct, "alloc-pct", 60, "Percentage of steps that allocate")
	cmd.Flags().IntVar(&simSweepEvery, "sweep-every", 500, "Run a census sweep every N steps (0 disables)")
	cmd.Flags().IntVar(&simPinPct, "pin-pct", 0, "Percentage of new blocks marked can't-coalesce")
	cmd.Flags().BoolVar(&simCheck, "check", false, "Verify the dictionary after every mutation")
	cmd.Flags().BoolVar(&simCensus, "census", false, "Print the per-size census")
	cmd.Flags().BoolVar(&simLists, "lists", false, "Print every free list")
	rootCmd.AddCommand(cmd)
}

func newSimulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a random allocation workload",
		Long: `The simulate command carves a fresh region with a seeded mix of
allocations and frees, runs census sweeps at a fixed interval, and reports the
resulting free space.

Example:
  freetreectl simulate
  freetreectl simulate --steps 50000 --max-size 1024 --census
  freetreectl simulate --check --seed 7 --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate(args)
		},
	}
	return cmd
}

// SimResult summarizes a workload run.
type SimResult struct {
	Steps     int
	Allocs    int
	Frees     int
	Failures  int
	Sweeps    int
	Requested uint64
	Stats     space.Stats
}

func runSimulate(_ []string) error {
	if simMaxSize == 0 {
		return errors.New("--max-size must be positive")
	}
	if simAllocPct < 0 || simAllocPct > 100 || simPinPct < 0 || simPinPct > 100 {
		return errors.New("percentages must be between 0 and 100")
	}

	cfg := space.DefaultConfig
	if simCheck {
		cfg = space.DebugConfig
	}
	cfg.Logger = logger.L

	sp, err := space.New(region.Region{Start: 0x100000, Words: simWords}, &cfg)
	if err != nil {
		return errors.Wrap(err, "failed to create space")
	}
	defer sp.Close()

	printVerbose("Region %s, min block %d words\n", sp.Region(), sp.MinBlock())

	res, err := simulate(sp)
	if err != nil {
		return err
	}
	if err := sp.Verify(); err != nil {
		return errors.Wrapf(err, "space is inconsistent after %d steps", res.Steps)
	}

	if jsonOut {
		return printSimJSON(sp, res)
	}
	printSimText(res)
	if simCensus || simLists {
		printInfo("\n")
		return sp.View(func(d *dict.Dictionary) error {
			if simCensus {
				if err := d.PrintCensus(os.Stdout); err != nil {
					return err
				}
			}
			if simLists {
				return d.PrintFreeLists(os.Stdout)
			}
			return nil
		})
	}
	return nil
}

func simulate(sp *space.Space) (SimResult, error) {
	rng := rand.New(rand.NewSource(simSeed))
	var live []region.Addr
	res := SimResult{Steps: simSteps}

	for step := 1; step <= simSteps; step++ {
		if len(live) == 0 || rng.Intn(100) < simAllocPct {
			words := 1 + uint64(rng.Int63n(int64(simMaxSize)))
			addr, err := sp.Allocate(words)
			switch {
			case errors.Is(err, space.ErrExhausted):
				res.Failures++
				printVerbose("step %d: %v\n", step, err)
			case err != nil:
				return res, errors.Wrapf(err, "step %d: allocate %d", step, words)
			default:
				res.Allocs++
				res.Requested += words
				live = append(live, addr)
				if simPinPct > 0 && rng.Intn(100) < simPinPct {
					if err := sp.SetCantCoalesce(addr, true); err != nil {
						return res, errors.Wrapf(err, "step %d", step)
					}
				}
			}
		} else {
			i := rng.Intn(len(live))
			if err := sp.Free(live[i]); err != nil {
				return res, errors.Wrapf(err, "step %d: free %#x", step, uint64(live[i]))
			}
			live[i] = live[len(live)-1]
			live = live[:len(live)-1]
			res.Frees++
		}

		if simSweepEvery > 0 && step%simSweepEvery == 0 {
			// Steps stand in for seconds.
			t := space.SweepTiming{
				InterSweepCurrent:  float64(simSweepEvery),
				InterSweepEstimate: float64(simSweepEvery),
				IntraSweepEstimate: 1,
			}
			if err := sp.BeginSweep(t); err != nil {
				return res, err
			}
			if err := sp.EndSweep(); err != nil {
				return res, err
			}
			res.Sweeps++
		}
	}

	res.Stats = sp.Stats()
	return res, nil
}

func printSimText(res SimResult) {
	p := message.NewPrinter(language.English)
	st := res.Stats

	printInfo("%s", p.Sprintf("Steps:        %d (%d allocations, %d frees, %d failed)\n",
		res.Steps, res.Allocs, res.Frees, res.Failures))
	printInfo("%s", p.Sprintf("Sweeps:       %d\n", st.Sweeps))
	printInfo("%s", p.Sprintf("Region:       %d words\n", st.Words))
	printInfo("%s", p.Sprintf("Live:         %d words in %d blocks\n", st.LiveWords, st.LiveBlocks))
	printInfo("%s", p.Sprintf("Free:         %d words in %d chunks\n", st.FreeWords, st.FreeBlocks))
	printInfo("%s", p.Sprintf("Largest free: %d words\n", st.MaxFree))
	printInfo("%s", p.Sprintf("Size lists:   %d (tree height %d)\n", st.Lists, st.TreeHeight))
	printInfo("%s", p.Sprintf("Frag:         %.4f\n", st.Frag))
}

func printSimJSON(sp *space.Space, res SimResult) error {
	jw := jwriter.NewWriter()
	obj := jw.Object()

	sim := obj.Name("simulation").Object()
	sim.Name("seed").Int(int(simSeed))
	sim.Name("steps").Int(res.Steps)
	sim.Name("allocations").Int(res.Allocs)
	sim.Name("frees").Int(res.Frees)
	sim.Name("failures").Int(res.Failures)
	sim.Name("sweeps").Int(res.Sweeps)
	sim.Name("requestedWords").Int(int(res.Requested))
	sim.Name("liveWords").Int(int(res.Stats.LiveWords))
	sim.Name("liveBlocks").Int(int(res.Stats.LiveBlocks))
	sim.Name("frag").Float64(res.Stats.Frag)
	sim.End()

	err := sp.View(func(d *dict.Dictionary) error {
		obj.Name("dictionary")
		d.WriteJSONTo(&jw)
		return nil
	})
	if err != nil {
		return err
	}
	obj.End()

	if err := jw.Error(); err != nil {
		return err
	}
	if _, err := os.Stdout.Write(jw.Bytes()); err != nil {
		return err
	}
	_, err = fmt.Fprintln(os.Stdout)
	return err
}
