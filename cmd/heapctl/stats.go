package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/joshuapare/heapkit/heap/mspace"
	"github.com/joshuapare/heapkit/internal/workload"
)

var statsFlags workloadFlags

func init() {
	cmd := newStatsCmd()
	statsFlags.register(cmd, 2000, 256)
	rootCmd.AddCommand(cmd)
}

func newStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show mallinfo and operation counters after a workload",
		Long: `The stats command runs a workload, keeps its surviving blocks live, and
prints the heap summary (mallinfo) together with the allocator's operation
counters: where requests were served from, how often chunks coalesced,
segment and direct-map activity, and trims.

Example:
  heapctl stats
  heapctl stats --ops 50000 --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats()
		},
	}
	return cmd
}

type statsReport struct {
	Live     int             `json:"live_blocks"`
	Mallinfo mspace.Mallinfo `json:"mallinfo"`
	Stats    mspace.Stats    `json:"stats"`
}

func runStats() error {
	cfg, err := statsFlags.config()
	if err != nil {
		return err
	}
	s, release, err := workSpace(statsFlags.arena)
	if err != nil {
		return err
	}
	defer release()

	ops, err := workload.Generate(cfg)
	if err != nil {
		return err
	}
	r := workload.NewRunner(s, cfg.Slots)
	defer r.Release()
	if _, err := r.Run(ops); err != nil {
		return fmt.Errorf("workload failed: %w", err)
	}

	report := statsReport{Live: len(r.Live()), Mallinfo: s.Mallinfo(), Stats: s.Stats()}
	if jsonOut {
		return printJSON(report)
	}

	mi, st := report.Mallinfo, report.Stats
	printInfo("\nHeap Summary:\n")
	printInfo("  Live blocks:     %d\n", report.Live)
	printInfo("  Arena:           %s\n", humanize.IBytes(uint64(mi.Arena)))
	printInfo("  Mapped:          %s\n", humanize.IBytes(uint64(mi.Hblkhd)))
	printInfo("  In use:          %s\n", humanize.IBytes(uint64(mi.Uordblks)))
	printInfo("  Free:            %s in %d chunks\n", humanize.IBytes(uint64(mi.Fordblks)), mi.Ordblks)
	printInfo("  Releasable:      %s\n", humanize.IBytes(uint64(mi.Keepcost)))
	printInfo("  Peak footprint:  %s\n", humanize.IBytes(uint64(mi.Usmblks)))

	printInfo("\nOperations:\n")
	printInfo("  malloc:  %s\n", humanize.Comma(int64(st.MallocCalls)))
	printInfo("  free:    %s\n", humanize.Comma(int64(st.FreeCalls)))
	printInfo("  realloc: %s (%s in place)\n",
		humanize.Comma(int64(st.ReallocCalls)), humanize.Comma(int64(st.ReallocInPlace)))

	printInfo("\nServed from:\n")
	printInfo("  small bins:        %s\n", humanize.Comma(int64(st.SmallBinHits)))
	printInfo("  tree bins:         %s\n", humanize.Comma(int64(st.TreeHits)))
	printInfo("  designated victim: %s\n", humanize.Comma(int64(st.DVHits)))
	printInfo("  top:               %s\n", humanize.Comma(int64(st.TopHits)))
	printInfo("  system:            %s\n", humanize.Comma(int64(st.SysAllocs)))

	printInfo("\nMaintenance:\n")
	printInfo("  coalesced:   %d backward, %d forward\n", st.CoalesceBackward, st.CoalesceForward)
	printInfo("  segments:    %d added, %d released\n", st.Segments, st.ReleasedSegments)
	printInfo("  direct maps: %d mapped, %d unmapped, %d resized\n",
		st.DirectMaps, st.DirectUnmaps, st.DirectResizes)
	printInfo("  trims:       %d (%s returned)\n", st.Trims, humanize.IBytes(st.TrimmedBytes))
	printVerbose("  %s\n", mi)
	return nil
}
