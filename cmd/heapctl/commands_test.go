package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/heapkit/heap/mspace"
)

func TestBenchCommand(t *testing.T) {
	resetFlags(t)
	output, err := captureOutput(t, runBench)
	require.NoError(t, err)
	assertContains(t, output, []string{"Workload:", "Operations: 300", "Failures:   0", "Footprint:"})

	resetFlags(t)
	jsonOut = true
	output, err = captureOutput(t, runBench)
	require.NoError(t, err)
	var report benchReport
	assertJSON(t, output, &report)
	assert.Equal(t, 300, report.Result.Allocs+report.Result.Frees+report.Result.Reallocs)
	assert.NotZero(t, report.Footprint)
}

func TestBenchRejectsBadFlags(t *testing.T) {
	resetFlags(t)
	benchFlags.profile = "lognormal"
	_, err := captureOutput(t, runBench)
	require.ErrorContains(t, err, "unknown size profile")

	resetFlags(t)
	benchFlags.minSize, benchFlags.maxSize = 100, 10
	_, err = captureOutput(t, runBench)
	require.Error(t, err)
}

func TestWalkCommand(t *testing.T) {
	resetFlags(t)
	output, err := captureOutput(t, runWalk)
	require.NoError(t, err)
	assertContains(t, output, []string{"ADDRESS", "STATE", "used", "free", "chunks,"})

	resetFlags(t)
	jsonOut = true
	output, err = captureOutput(t, runWalk)
	require.NoError(t, err)
	var chunks []chunkEntry
	assertJSON(t, output, &chunks)
	require.NotEmpty(t, chunks)
	assert.False(t, chunks[len(chunks)-1].InUse && !chunks[len(chunks)-1].Mapped,
		"the last segment chunk listed is top")
}

func TestWalkFreePages(t *testing.T) {
	resetFlags(t)
	walkFree = true
	output, err := captureOutput(t, runWalk)
	require.NoError(t, err)
	assertContains(t, output, []string{"free ranges", "whole pages"})
}

func TestStatsCommand(t *testing.T) {
	resetFlags(t)
	output, err := captureOutput(t, runStats)
	require.NoError(t, err)
	assertContains(t, output, []string{"Heap Summary:", "Live blocks:", "Served from:", "small bins:"})

	resetFlags(t)
	jsonOut = true
	output, err = captureOutput(t, runStats)
	require.NoError(t, err)
	var report statsReport
	assertJSON(t, output, &report)
	assert.Equal(t, uint64(300), report.Stats.MallocCalls+report.Stats.FreeCalls+report.Stats.ReallocCalls)
	assert.NotZero(t, report.Mallinfo.Uordblks)
}

func TestSysinfoCommand(t *testing.T) {
	resetFlags(t)
	output, err := captureOutput(t, runSysinfo)
	require.NoError(t, err)
	assertContains(t, output, []string{"Page size:", "Granularity:", "Mmap threshold:"})

	resetFlags(t)
	jsonOut = true
	output, err = captureOutput(t, runSysinfo)
	require.NoError(t, err)
	var report sysinfoReport
	assertJSON(t, output, &report)
	assert.Equal(t, mspace.PageSize(), report.PageSize)
}

func TestTuneCommand(t *testing.T) {
	old := mspace.GetParam(mspace.Granularity)
	t.Cleanup(func() { require.NoError(t, mspace.SetParam(mspace.Granularity, old)) })

	resetFlags(t)
	tuneGranularity = "256KiB"
	output, err := captureOutput(t, runTune)
	require.NoError(t, err)
	assert.Equal(t, uintptr(256<<10), mspace.GetParam(mspace.Granularity))
	assertContains(t, output, []string{"Granularity:    256 KiB"})

	resetFlags(t)
	tuneGranularity = "3000"
	_, err = captureOutput(t, runTune)
	require.ErrorIs(t, err, mspace.ErrInvalidParam)

	resetFlags(t)
	tuneTrimThreshold = "lots"
	_, err = captureOutput(t, runTune)
	require.ErrorContains(t, err, "invalid trim-threshold")
}

func TestQuietSuppressesOutput(t *testing.T) {
	resetFlags(t)
	quiet = true
	output, err := captureOutput(t, runSysinfo)
	require.NoError(t, err)
	assert.Empty(t, strings.TrimSpace(output))
}

func TestVersionCommand(t *testing.T) {
	output, err := captureOutput(t, func() error {
		versionCmd.Run(versionCmd, nil)
		return nil
	})
	require.NoError(t, err)
	assertContains(t, output, []string{"heapctl dev"})
}
