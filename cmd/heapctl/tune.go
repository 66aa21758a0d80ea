package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/joshuapare/heapkit/heap"
	"github.com/joshuapare/heapkit/heap/mspace"
	"github.com/joshuapare/heapkit/internal/workload"
)

var (
	tuneMmapThreshold string
	tuneTrimThreshold string
	tuneGranularity   string
	tuneBench         bool
)

func init() {
	cmd := newTuneCmd()
	cmd.Flags().StringVar(&tuneMmapThreshold, "mmap-threshold", "", "Request size served by direct mapping (e.g. 256KiB)")
	cmd.Flags().StringVar(&tuneTrimThreshold, "trim-threshold", "", "Free top size that triggers trimming (e.g. 2MiB)")
	cmd.Flags().StringVar(&tuneGranularity, "granularity", "", "Segment growth unit, a power of two of at least a page (e.g. 64KiB)")
	cmd.Flags().BoolVar(&tuneBench, "bench", false, "Run the default workload with the new parameters")
	rootCmd.AddCommand(cmd)
}

func newTuneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tune",
		Short: "Validate and apply allocator parameters",
		Long: `The tune command validates allocator parameters the way mallopt does,
applies them to this process, and reports the resulting values. Sizes
accept units such as 64KiB or 2MB. With --bench the default workload runs
under the new settings. To make settings stick for other programs, export
HEAPKIT_MMAP_THRESHOLD, HEAPKIT_TRIM_THRESHOLD or HEAPKIT_GRANULARITY.

Example:
  heapctl tune --granularity 256KiB
  heapctl tune --mmap-threshold 1MiB --trim-threshold 8MiB --bench`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTune()
		},
	}
	return cmd
}

type tuneReport struct {
	Granularity   uintptr          `json:"granularity"`
	TrimThreshold uintptr          `json:"trim_threshold"`
	MmapThreshold uintptr          `json:"mmap_threshold"`
	Bench         *workload.Result `json:"bench,omitempty"`
	Footprint     uintptr          `json:"footprint,omitempty"`
}

func runTune() error {
	settings := []struct {
		raw   string
		param mspace.Param
	}{
		{tuneGranularity, mspace.Granularity},
		{tuneTrimThreshold, mspace.TrimThreshold},
		{tuneMmapThreshold, mspace.MmapThreshold},
	}
	for _, s := range settings {
		if s.raw == "" {
			continue
		}
		v, err := humanize.ParseBytes(s.raw)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", s.param, s.raw, err)
		}
		if heap.Mallopt(int(s.param), int(v)) != 1 {
			return fmt.Errorf("%s %s rejected: %w", s.param, s.raw, mspace.ErrInvalidParam)
		}
		printVerbose("Set %s to %s\n", s.param, humanize.IBytes(v))
	}

	report := tuneReport{
		Granularity:   mspace.GetParam(mspace.Granularity),
		TrimThreshold: mspace.GetParam(mspace.TrimThreshold),
		MmapThreshold: mspace.GetParam(mspace.MmapThreshold),
	}
	if tuneBench {
		s, release, err := workSpace(true)
		if err != nil {
			return err
		}
		defer release()
		res, err := workload.Run(s, workload.CapToFreeMemory(workload.DefaultConfig))
		if err != nil {
			return fmt.Errorf("workload failed: %w", err)
		}
		report.Bench = &res
		report.Footprint = s.MaxFootprint()
	}

	if jsonOut {
		return printJSON(report)
	}
	printInfo("\nParameters:\n")
	printInfo("  Granularity:    %s\n", humanize.IBytes(uint64(report.Granularity)))
	printInfo("  Trim threshold: %s\n", humanize.IBytes(uint64(report.TrimThreshold)))
	printInfo("  Mmap threshold: %s\n", humanize.IBytes(uint64(report.MmapThreshold)))
	if report.Bench != nil {
		printInfo("\nWorkload:\n")
		printInfo("  Elapsed:       %s\n", report.Bench.Elapsed)
		printInfo("  Max footprint: %s\n", humanize.IBytes(uint64(report.Footprint)))
	}
	return nil
}
