package search

import (
	"time"

	"github.com/poiesic/cinevec/core"
)

// Monitor provides hooks to observe requests as they move through the engine.
// A single Monitor is shared by concurrent requests, so implementations must
// be safe for concurrent use.
type Monitor interface {
	Start(mode core.Mode)
	AfterCompose(mode core.Mode, size int)
	AfterQuery(mode core.Mode, hits int)
	AfterHydrate(mode core.Mode, hits, hydrated int)
	Fallback(from core.Mode, reason string)
	Finish(mode core.Mode, resp *Response, elapsed time.Duration, err error)
}

// noopMonitor is a no-op implementation of Monitor
type noopMonitor struct{}

var _ Monitor = noopMonitor{}

func (noopMonitor) Start(core.Mode)                                   {}
func (noopMonitor) AfterCompose(core.Mode, int)                       {}
func (noopMonitor) AfterQuery(core.Mode, int)                         {}
func (noopMonitor) AfterHydrate(core.Mode, int, int)                  {}
func (noopMonitor) Fallback(core.Mode, string)                        {}
func (noopMonitor) Finish(core.Mode, *Response, time.Duration, error) {}
