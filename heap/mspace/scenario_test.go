package mspace

import (
	"math/rand"
	"slices"
	"sync"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type block struct {
	p    unsafe.Pointer
	n    uintptr
	seed byte
}

func TestRandomWorkload(t *testing.T) {
	for _, cfg := range []struct {
		name string
		cfg  Config
	}{
		{"default", DefaultConfig},
		{"footers", Config{Locked: true, Footers: true}},
		{"no-mmap", Config{NoMmap: true}},
	} {
		t.Run(cfg.name, func(t *testing.T) {
			s := newTestSpace(t, 0, cfg.cfg)
			rng := rand.New(rand.NewSource(42))

			live := make([]block, 0, 1000)
			for i := 0; i < 1000; i++ {
				n := uintptr(rng.Intn(4096) + 1)
				if i%97 == 0 {
					n = uintptr(rng.Intn(512<<10) + 1)
				}
				p := s.Malloc(n)
				require.NotNil(t, p, "allocation %d of %d bytes", i, n)
				b := block{p: p, n: n, seed: byte(i)}
				fill(p, n, b.seed)
				live = append(live, b)
			}
			requireVerified(t, s)

			rng.Shuffle(len(live), func(i, j int) { live[i], live[j] = live[j], live[i] })
			for _, b := range live[:500] {
				s.Free(b.p)
			}
			live = live[500:]
			requireVerified(t, s)

			// Realloc a third of the survivors.
			for i := range live {
				if i%3 != 0 {
					continue
				}
				n := uintptr(rng.Intn(8192) + 1)
				p := s.Realloc(live[i].p, n)
				require.NotNil(t, p)
				checkFill(t, p, min(n, live[i].n), live[i].seed)
				live[i].p, live[i].n = p, n
				fill(p, n, live[i].seed)
			}
			requireVerified(t, s)

			for _, b := range live {
				checkFill(t, b.p, b.n, b.seed)
			}
			assertDisjoint(t, live)

			for _, b := range live {
				s.Free(b.p)
			}
			requireVerified(t, s)
			assert.Zero(t, s.Stats().UsageErrors)
		})
	}
}

func TestFreeEveryOtherThenRefill(t *testing.T) {
	s := newTestSpace(t, 0, DefaultConfig)
	rng := rand.New(rand.NewSource(1000))

	var live []block
	fp := s.Footprint()
	alloc := func(n uintptr, seed byte) {
		p := s.Malloc(n)
		require.NotNil(t, p)
		fill(p, n, seed)
		live = append(live, block{p: p, n: n, seed: seed})
		require.GreaterOrEqual(t, s.Footprint(), fp, "footprint never shrinks without a trim")
		fp = s.Footprint()
	}

	for i := 0; i < 1000; i++ {
		alloc(uintptr(rng.Intn(4096)+1), byte(i))
	}
	kept := live[:0]
	for i, b := range live {
		if i%2 == 1 {
			s.Free(b.p)
			require.Equal(t, fp, s.Footprint())
			continue
		}
		kept = append(kept, b)
	}
	live = kept
	for i := 0; i < 500; i++ {
		alloc(uintptr(1024+rng.Intn(2049)), byte(i*3))
	}

	require.LessOrEqual(t, s.Footprint(), s.MaxFootprint())
	for _, b := range live {
		checkFill(t, b.p, b.n, b.seed)
	}
	assertDisjoint(t, live)
	requireVerified(t, s)
}

func TestFootprintConservation(t *testing.T) {
	s := newTestSpace(t, 1<<20, Config{NoMmap: true})
	rng := rand.New(rand.NewSource(3))
	var ptrs []unsafe.Pointer
	for i := 0; i < 200; i++ {
		ptrs = append(ptrs, s.Malloc(uintptr(rng.Intn(3000)+1)))
	}
	for i := 0; i < len(ptrs); i += 3 {
		s.Free(ptrs[i])
	}
	require.Equal(t, uint64(0), s.Stats().Segments, "the request fits the first segment")

	var total uintptr
	s.WalkHeap(func(ci ChunkInfo) { total += ci.Size })
	assert.Equal(t, s.Footprint(), total+s.m.topFoot)

	mi := s.Mallinfo()
	assert.Equal(t, s.Footprint(), mi.Uordblks+mi.Fordblks)
}

func assertDisjoint(t *testing.T, live []block) {
	t.Helper()
	sorted := slices.Clone(live)
	slices.SortFunc(sorted, func(a, b block) int {
		switch {
		case uintptr(a.p) < uintptr(b.p):
			return -1
		case uintptr(a.p) > uintptr(b.p):
			return 1
		}
		return 0
	})
	for i := 1; i < len(sorted); i++ {
		prev := sorted[i-1]
		require.LessOrEqual(t, uintptr(prev.p)+prev.n, uintptr(sorted[i].p), "blocks overlap")
	}
}

func TestConcurrentUse(t *testing.T) {
	s := newTestSpace(t, 0, DefaultConfig)
	const workers = 8

	var wg sync.WaitGroup
	errs := make(chan string, workers)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(int64(w)))
			var mine []block
			for i := 0; i < 2000; i++ {
				if len(mine) > 0 && rng.Intn(3) == 0 {
					j := rng.Intn(len(mine))
					b := mine[j]
					for k, c := range Bytes(b.p, b.n) {
						if c != b.seed+byte(k) {
							errs <- "block clobbered by another goroutine"
							return
						}
					}
					s.Free(b.p)
					mine[j] = mine[len(mine)-1]
					mine = mine[:len(mine)-1]
					continue
				}
				n := uintptr(rng.Intn(2048) + 1)
				p := s.Malloc(n)
				if p == nil {
					errs <- "allocation failed"
					return
				}
				b := block{p: p, n: n, seed: byte(w*31 + i)}
				fill(p, n, b.seed)
				mine = append(mine, b)
			}
			for _, b := range mine {
				s.Free(b.p)
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for msg := range errs {
		t.Error(msg)
	}
	requireVerified(t, s)
	assert.Equal(t, s.Stats().MallocCalls, s.Stats().FreeCalls)
}
