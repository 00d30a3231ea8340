package telemetry

import (
	"encoding/json"
	"sync/atomic"
	"time"
)

// DetectionFrame is one cached detection result. Values are immutable once
// stored; a new result replaces the whole frame.
type DetectionFrame struct {
	Detections []Detection
	Labels     []string
	Model      json.RawMessage
	ReceivedAt time.Time
}

// Age returns how long ago the frame was received.
func (f *DetectionFrame) Age() time.Duration {
	return time.Since(f.ReceivedAt)
}

// Cache is a single-slot holder for the most recent detection result.
// Readers always get a complete, consistent frame; there is no partial
// update and no history. A stale frame stays readable until the next result
// arrives, including across reconnects.
type Cache struct {
	slot atomic.Pointer[DetectionFrame]
}

// Store replaces the cached frame.
func (c *Cache) Store(f *DetectionFrame) {
	c.slot.Store(f)
}

// Latest returns the most recent frame, or nil before the first result.
func (c *Cache) Latest() *DetectionFrame {
	return c.slot.Load()
}
