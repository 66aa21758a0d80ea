package mspace

import (
	"fmt"

	"github.com/joshuapare/heapkit/internal/logger"
)

// Debug flag - set to true to enable verbose logging (compile-time toggle).
const debugAlloc = false

// Runtime flag for allocation tracing - controlled by HEAPKIT_LOG_ALLOC.
var logAlloc = debugAlloc || logger.Tracing()

type hexAddr uintptr

func (a hexAddr) String() string { return fmt.Sprintf("%#x", uintptr(a)) }
