package main

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/joshuapare/heapkit/internal/workload"
)

// captureOutput captures stdout while running a function
func captureOutput(t *testing.T, fn func() error) (string, error) {
	t.Helper()

	origStdout := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("failed to create pipe: %v", err)
	}
	os.Stdout = w

	// Drain concurrently so large outputs cannot fill the pipe.
	done := make(chan bytes.Buffer)
	go func() {
		var buf bytes.Buffer
		_, _ = buf.ReadFrom(r)
		done <- buf
	}()

	fnErr := fn()

	w.Close()
	os.Stdout = origStdout
	buf := <-done
	r.Close()

	return buf.String(), fnErr
}

// assertJSON checks that output is valid JSON and decodes it into v when
// v is non-nil
func assertJSON(t *testing.T, output string, v any) {
	t.Helper()
	if v == nil {
		var result any
		v = &result
	}
	if err := json.Unmarshal([]byte(output), v); err != nil {
		t.Errorf("invalid JSON output: %v\nOutput: %s", err, output)
	}
}

// assertContains checks that output contains all expected strings
func assertContains(t *testing.T, output string, expected []string) {
	t.Helper()
	for _, want := range expected {
		if !strings.Contains(output, want) {
			t.Errorf("output missing expected string %q\nGot: %s", want, output)
		}
	}
}

// resetFlags restores the global and per-command flags to their defaults
func resetFlags(t *testing.T) {
	t.Helper()
	quiet = false
	verbose = false
	jsonOut = false
	logLevel = ""

	small := workloadFlags{
		ops:          300,
		slots:        32,
		minSize:      1,
		maxSize:      8192,
		freeRatio:    workload.DefaultConfig.FreeRatio,
		reallocRatio: workload.DefaultConfig.ReallocRatio,
		seed:         1,
		profile:      "realistic",
		arena:        true,
	}
	benchFlags, walkFlags, statsFlags = small, small, small
	benchNoCap = false
	walkFree = false
	tuneMmapThreshold, tuneTrimThreshold, tuneGranularity = "", "", ""
	tuneBench = false
}
