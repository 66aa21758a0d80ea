package workload

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/heapkit/internal/testutil"
)

func TestGenerateIsDeterministic(t *testing.T) {
	cfg := DefaultConfig
	cfg.Ops = 2000
	a, err := Generate(cfg)
	require.NoError(t, err)
	b, err := Generate(cfg)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	cfg.Seed++
	c, err := Generate(cfg)
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestGenerateRespectsSlots(t *testing.T) {
	cfg := Config{Ops: 5000, Slots: 16, MinSize: 8, MaxSize: 100, FreeRatio: 0.3, ReallocRatio: 0.2, Seed: 7}
	ops, err := Generate(cfg)
	require.NoError(t, err)
	require.Len(t, ops, 5000)

	live := make([]bool, cfg.Slots)
	for i, op := range ops {
		switch op.Kind {
		case OpAlloc:
			require.False(t, live[op.Slot], "op %d allocates an occupied slot", i)
			live[op.Slot] = true
		case OpFree:
			require.True(t, live[op.Slot], "op %d frees an empty slot", i)
			live[op.Slot] = false
		case OpRealloc:
			require.True(t, live[op.Slot], "op %d resizes an empty slot", i)
		}
		if op.Kind != OpFree {
			require.GreaterOrEqual(t, op.Size, cfg.MinSize)
			require.LessOrEqual(t, op.Size, cfg.MaxSize)
		}
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative ops", func(c *Config) { c.Ops = -1 }},
		{"no slots", func(c *Config) { c.Slots = 0 }},
		{"inverted sizes", func(c *Config) { c.MinSize, c.MaxSize = 10, 5 }},
		{"ratios above one", func(c *Config) { c.FreeRatio, c.ReallocRatio = 0.8, 0.5 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig
			tt.mutate(&cfg)
			_, err := Generate(cfg)
			assert.ErrorIs(t, err, ErrBadConfig)
		})
	}
}

func TestRunAgainstSpace(t *testing.T) {
	s := testutil.NewSpace(t)
	cfg := DefaultConfig
	cfg.Ops = 5000
	if testing.Short() {
		cfg.Ops = 500
	}

	res, err := Run(s, cfg)
	require.NoError(t, err)
	assert.Zero(t, res.Failures)
	assert.Equal(t, cfg.Ops, res.Allocs+res.Frees+res.Reallocs)
	assert.GreaterOrEqual(t, res.PeakLive, res.LiveBytes)
	require.NoError(t, s.Verify())
	assert.Equal(t, s.Stats().MallocCalls, s.Stats().FreeCalls, "every block was released")
}

func TestRunnerDetectsClobbering(t *testing.T) {
	s := testutil.NewSpace(t)
	r := NewRunner(s, 2)
	defer r.Release()

	_, err := r.Run([]Op{{Kind: OpAlloc, Slot: 0, Size: 64}, {Kind: OpAlloc, Slot: 1, Size: 64}})
	require.NoError(t, err)
	require.NoError(t, r.Verify())

	live := r.Live()
	require.Len(t, live, 2)
	unsafe.Slice((*byte)(live[1]), 64)[10]++

	err = r.Verify()
	assert.ErrorIs(t, err, ErrClobbered)
	_, err = r.Run([]Op{{Kind: OpFree, Slot: 1}})
	assert.ErrorIs(t, err, ErrClobbered)
}

func TestRunnerRejectsBadSlot(t *testing.T) {
	r := NewRunner(testutil.NewSpace(t), 1)
	_, err := r.Run([]Op{{Kind: OpAlloc, Slot: 3, Size: 8}})
	assert.ErrorIs(t, err, ErrBadConfig)
}

func TestCapToFreeMemory(t *testing.T) {
	cfg := Config{Slots: 1 << 40, MaxSize: 1 << 20}
	capped := CapToFreeMemory(cfg)
	if _, _, free, err := HostMemory(); err != nil || free == 0 {
		t.Skip("host memory not readable")
	}
	assert.Less(t, capped.Slots, cfg.Slots)
	assert.GreaterOrEqual(t, capped.Slots, 1)

	small := Config{Slots: 4, MaxSize: 64}
	assert.Equal(t, small, CapToFreeMemory(small))
}

func TestOpKindString(t *testing.T) {
	assert.Equal(t, "alloc", OpAlloc.String())
	assert.Equal(t, "realloc", OpRealloc.String())
	assert.Equal(t, "OpKind(9)", OpKind(9).String())
}
