package workload

import (
	sigar "github.com/cloudfoundry/gosigar"
)

// HostMemory reports the total, used and free physical memory of the host.
func HostMemory() (total, used, free uint64, err error) {
	mem := sigar.Mem{}
	if err := mem.Get(); err != nil {
		return 0, 0, 0, err
	}
	return mem.Total, mem.Used, mem.Free, nil
}

// CapToFreeMemory shrinks cfg so that its worst case, every slot holding a
// MaxSize block, fits in a quarter of the host's free memory. The config is
// returned unchanged when host memory cannot be read.
func CapToFreeMemory(cfg Config) Config {
	_, _, free, err := HostMemory()
	if err != nil || free == 0 || cfg.MaxSize == 0 {
		return cfg
	}
	budget := free / 4
	if worst := uint64(cfg.Slots) * uint64(cfg.MaxSize); worst > budget {
		slots := int(budget / uint64(cfg.MaxSize))
		cfg.Slots = max(slots, 1)
	}
	return cfg
}
