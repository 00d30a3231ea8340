package vision

import (
	"context"
	"fmt"
	"time"
)

const (
	defaultScanStepDegrees = 45.0
	defaultScanIdle        = time.Second
)

// Scan rotates one full circle in stepDegrees increments and records the
// labels detected in each sector. Keys are "start-end" degree ranges
// ("0-45", "45-90", ...). stepDegrees <= 0 and idle <= 0 use the defaults.
func (c *Controller) Scan(ctx context.Context, labels []string, stepDegrees float64, idle time.Duration) (map[string][]string, error) {
	if stepDegrees <= 0 {
		stepDegrees = defaultScanStepDegrees
	}
	if idle <= 0 {
		idle = defaultScanIdle
	}

	if c.labels != nil && len(labels) > 0 {
		if _, err := c.labels.SetLabels(ctx, labels); err != nil {
			return nil, err
		}
	}

	steps := int(360 / stepDegrees)
	sectors := make(map[string][]string, steps)
	c.logger.Info("sector scan started", "labels", labels, "step_degrees", stepDegrees)

	for i := 0; i < steps; i++ {
		key := fmt.Sprintf("%d-%d", int(float64(i)*stepDegrees), int(float64(i+1)*stepDegrees))

		if err := c.idleFor(ctx, idle); err != nil {
			return nil, err
		}
		sectors[key] = c.sectorLabels()

		if err := c.rotator.Rotate(ctx, stepDegrees, c.cfg.Speed); err != nil {
			return nil, err
		}
	}

	return sectors, nil
}

// sectorLabels collects the distinct class names in the current cache.
func (c *Controller) sectorLabels() []string {
	frame := c.detections.Detections()
	labels := []string{}
	if frame == nil {
		return labels
	}

	seen := make(map[string]bool)
	for _, d := range frame.Detections {
		if !seen[d.ClassName] {
			seen[d.ClassName] = true
			labels = append(labels, d.ClassName)
		}
	}
	return labels
}

func (c *Controller) idleFor(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
