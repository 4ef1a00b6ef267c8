// Package orientation supplies compass headings: device sources, the
// single-slot heading cell the tracker reads, and compass quality scoring.
package orientation

import (
	"context"
	"log"
	"math"
)

// Reading is one device-orientation event. Alpha is the compass angle in
// degrees in the device frame (increasing counter-clockwise), nil when the
// platform could not provide one.
type Reading struct {
	Alpha *float64 `json:"alpha"`
}

// Source is the interface for orientation data sources.
type Source interface {
	Name() string
	Connect() error
	Close() error
	// Subscribe streams readings until ctx is cancelled, then closes the channel.
	Subscribe(ctx context.Context) <-chan Reading
}

// Alpha builds a Reading from a value.
func Alpha(v float64) Reading { return Reading{Alpha: &v} }

// usable reports whether r carries a real angle.
func (r Reading) usable() bool {
	return r.Alpha != nil && !math.IsNaN(*r.Alpha) && !math.IsInf(*r.Alpha, 0)
}

// Feed copies readings into cell (and monitor, if non-nil) until the channel
// closes or ctx is done. onHeading, if non-nil, runs after every usable
// reading. It is the orientation listener: it stays subscribed across
// tracking sessions.
func Feed(ctx context.Context, readings <-chan Reading, cell *Cell, monitor *QualityMonitor, onHeading func()) {
	for {
		select {
		case <-ctx.Done():
			return
		case r, ok := <-readings:
			if !ok {
				log.Printf("[compass] orientation stream closed")
				return
			}
			if !cell.Set(r) {
				continue
			}
			if monitor != nil {
				monitor.Add(*r.Alpha)
			}
			if onHeading != nil {
				onHeading()
			}
		}
	}
}
