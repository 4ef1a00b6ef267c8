package orientation

import (
	"context"
	"math/rand"
	"time"

	"github.com/shaunagostinho/dualtrack/internal/geo"
)

// DemoSource emits simulated compass readings that follow a course
// function, e.g. the demo GPS walker's direction of travel.
type DemoSource struct {
	course   func() float64
	interval time.Duration
	noiseDeg float64
}

// NewDemoSource creates a simulated compass. course returns the true bearing
// the device is pointing at; nil means a fixed heading of north.
func NewDemoSource(course func() float64) *DemoSource {
	if course == nil {
		course = func() float64 { return 0 }
	}
	return &DemoSource{course: course, interval: 100 * time.Millisecond, noiseDeg: 2}
}

func (d *DemoSource) Name() string   { return "Demo compass (Simulated)" }
func (d *DemoSource) Connect() error { return nil }
func (d *DemoSource) Close() error   { return nil }

func (d *DemoSource) Subscribe(ctx context.Context) <-chan Reading {
	out := make(chan Reading, 1)
	go func() {
		defer close(out)
		ticker := time.NewTicker(d.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				bearing := d.course() + (rand.Float64()-0.5)*2*d.noiseDeg
				select {
				case out <- Alpha(geo.NormalizeDeg(360 - bearing)):
				default:
					// Consumer busy; only the latest value matters.
				}
			}
		}
	}()
	return out
}
