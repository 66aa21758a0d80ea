package main

import (
	"runtime"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/joshuapare/heapkit/heap"
	"github.com/joshuapare/heapkit/heap/mspace"
	"github.com/joshuapare/heapkit/internal/workload"
)

func init() {
	rootCmd.AddCommand(newSysinfoCmd())
}

func newSysinfoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sysinfo",
		Short: "Show host memory, page size and allocator parameters",
		Long: `The sysinfo command reports the host's physical memory, the page size,
the process-wide allocator parameters (after any HEAPKIT_* environment
overrides), and the footprint of the default space.

Example:
  heapctl sysinfo
  heapctl sysinfo --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSysinfo()
		},
	}
	return cmd
}

type sysinfoReport struct {
	OS               string  `json:"os"`
	Arch             string  `json:"arch"`
	PageSize         uintptr `json:"page_size"`
	MemTotal         uint64  `json:"mem_total,omitempty"`
	MemUsed          uint64  `json:"mem_used,omitempty"`
	MemFree          uint64  `json:"mem_free,omitempty"`
	Granularity      uintptr `json:"granularity"`
	TrimThreshold    uintptr `json:"trim_threshold"`
	MmapThreshold    uintptr `json:"mmap_threshold"`
	DefaultFootprint uintptr `json:"default_footprint"`
}

func runSysinfo() error {
	report := sysinfoReport{
		OS:               runtime.GOOS,
		Arch:             runtime.GOARCH,
		PageSize:         mspace.PageSize(),
		Granularity:      mspace.GetParam(mspace.Granularity),
		TrimThreshold:    mspace.GetParam(mspace.TrimThreshold),
		MmapThreshold:    mspace.GetParam(mspace.MmapThreshold),
		DefaultFootprint: heap.Footprint(),
	}
	total, used, free, err := workload.HostMemory()
	if err != nil {
		printVerbose("Host memory unavailable: %v\n", err)
	} else {
		report.MemTotal, report.MemUsed, report.MemFree = total, used, free
	}

	if jsonOut {
		return printJSON(report)
	}

	printInfo("\nHost:\n")
	printInfo("  Platform:  %s/%s\n", report.OS, report.Arch)
	printInfo("  Page size: %s\n", humanize.IBytes(uint64(report.PageSize)))
	if err == nil {
		printInfo("  Memory:    %s total, %s used, %s free\n",
			humanize.IBytes(total), humanize.IBytes(used), humanize.IBytes(free))
	}

	printInfo("\nAllocator:\n")
	printInfo("  Granularity:    %s\n", humanize.IBytes(uint64(report.Granularity)))
	printInfo("  Trim threshold: %s\n", humanize.IBytes(uint64(report.TrimThreshold)))
	printInfo("  Mmap threshold: %s\n", humanize.IBytes(uint64(report.MmapThreshold)))
	printInfo("  Default space:  %s\n", humanize.IBytes(uint64(report.DefaultFootprint)))
	return nil
}
