package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/joshuapare/heapkit/heap/mspace"
	"github.com/joshuapare/heapkit/internal/workload"
)

var (
	benchFlags workloadFlags
	benchNoCap bool
)

func init() {
	cmd := newBenchCmd()
	benchFlags.register(cmd, workload.DefaultConfig.Ops, workload.DefaultConfig.Slots)
	cmd.Flags().BoolVar(&benchNoCap, "no-cap", false, "Do not shrink the workload to fit free host memory")
	rootCmd.AddCommand(cmd)
}

func newBenchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Run a random allocation workload and report the heap afterwards",
		Long: `The bench command replays a deterministic mix of malloc, free and
realloc calls, checking every block's contents along the way, and reports
timing, live bytes, and how much memory the heap took from the system.

Example:
  heapctl bench
  heapctl bench --ops 100000 --max-size 1048576 --seed 7
  heapctl bench --profile uniform --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBench()
		},
	}
	return cmd
}

type benchReport struct {
	Result       workload.Result `json:"result"`
	Footprint    uintptr         `json:"footprint"`
	MaxFootprint uintptr         `json:"max_footprint"`
	Mallinfo     mspace.Mallinfo `json:"mallinfo"`
	Stats        mspace.Stats    `json:"stats"`
}

func runBench() error {
	cfg, err := benchFlags.config()
	if err != nil {
		return err
	}
	if !benchNoCap {
		if capped := workload.CapToFreeMemory(cfg); capped.Slots != cfg.Slots {
			printVerbose("Reducing slots from %d to %d to fit free memory\n", cfg.Slots, capped.Slots)
			cfg = capped
		}
	}

	s, release, err := workSpace(benchFlags.arena)
	if err != nil {
		return err
	}
	defer release()

	printVerbose("Running %d operations over %d slots (seed %d)\n", cfg.Ops, cfg.Slots, cfg.Seed)
	res, err := workload.Run(s, cfg)
	if err != nil {
		return fmt.Errorf("workload failed: %w", err)
	}
	if err := s.Verify(); err != nil {
		return fmt.Errorf("heap failed verification: %w", err)
	}

	report := benchReport{
		Result:       res,
		Footprint:    s.Footprint(),
		MaxFootprint: s.MaxFootprint(),
		Mallinfo:     s.Mallinfo(),
		Stats:        s.Stats(),
	}
	if jsonOut {
		return printJSON(report)
	}

	printInfo("\nWorkload:\n")
	printInfo("  Operations: %d (%d allocs, %d frees, %d reallocs)\n",
		cfg.Ops, res.Allocs, res.Frees, res.Reallocs)
	printInfo("  Failures:   %d\n", res.Failures)
	printInfo("  Elapsed:    %s\n", res.Elapsed)
	if res.Elapsed > 0 {
		printInfo("  Rate:       %s ops/s\n",
			humanize.Comma(int64(float64(cfg.Ops)/res.Elapsed.Seconds())))
	}
	printInfo("  Peak live:  %s\n", humanize.IBytes(uint64(res.PeakLive)))

	printInfo("\nHeap:\n")
	printInfo("  Footprint:     %s\n", humanize.IBytes(uint64(report.Footprint)))
	printInfo("  Max footprint: %s\n", humanize.IBytes(uint64(report.MaxFootprint)))
	printInfo("  In use:        %s\n", humanize.IBytes(uint64(report.Mallinfo.Uordblks)))
	printInfo("  Free:          %s in %d chunks\n",
		humanize.IBytes(uint64(report.Mallinfo.Fordblks)), report.Mallinfo.Ordblks)
	printInfo("  Direct maps:   %d\n", report.Stats.DirectMaps)
	printInfo("  Segments:      %d\n", report.Stats.Segments)
	return nil
}
