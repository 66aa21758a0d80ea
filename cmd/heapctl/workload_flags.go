package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joshuapare/heapkit/internal/workload"
)

// workloadFlags are the script options shared by bench, walk and stats.
type workloadFlags struct {
	ops          int
	slots        int
	minSize      uint64
	maxSize      uint64
	freeRatio    float64
	reallocRatio float64
	seed         int64
	profile      string
	arena        bool
}

func (f *workloadFlags) register(cmd *cobra.Command, ops, slots int) {
	d := workload.DefaultConfig
	cmd.Flags().IntVar(&f.ops, "ops", ops, "Number of operations to run")
	cmd.Flags().IntVar(&f.slots, "slots", slots, "Maximum number of live blocks")
	cmd.Flags().Uint64Var(&f.minSize, "min-size", uint64(d.MinSize), "Smallest request in bytes")
	cmd.Flags().Uint64Var(&f.maxSize, "max-size", uint64(d.MaxSize), "Largest request in bytes")
	cmd.Flags().Float64Var(&f.freeRatio, "free-ratio", d.FreeRatio, "Probability that a step frees a block")
	cmd.Flags().Float64Var(&f.reallocRatio, "realloc-ratio", d.ReallocRatio, "Probability that a step resizes a block")
	cmd.Flags().Int64Var(&f.seed, "seed", d.Seed, "Random seed")
	cmd.Flags().StringVar(&f.profile, "profile", "realistic", "Size distribution: realistic or uniform")
	cmd.Flags().BoolVar(&f.arena, "arena", true, "Run in a fresh arena instead of the default space")
}

func (f *workloadFlags) config() (workload.Config, error) {
	cfg := workload.Config{
		Ops:          f.ops,
		Slots:        f.slots,
		MinSize:      uintptr(f.minSize),
		MaxSize:      uintptr(f.maxSize),
		FreeRatio:    f.freeRatio,
		ReallocRatio: f.reallocRatio,
		Seed:         f.seed,
	}
	switch strings.ToLower(f.profile) {
	case "realistic":
		cfg.Profile = workload.Realistic
	case "uniform":
		cfg.Profile = workload.Uniform
	default:
		return cfg, fmt.Errorf("unknown size profile %q (want realistic or uniform)", f.profile)
	}
	return cfg, cfg.Validate()
}
