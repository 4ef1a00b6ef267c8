package gps

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/shaunagostinho/dualtrack/internal/geo"
)

// DemoGPS generates a simulated walk around a circular block.
type DemoGPS struct {
	mu    sync.Mutex
	start time.Time
	now   func() time.Time
}

const (
	demoCenterLat = 43.6532 // Toronto
	demoCenterLon = -79.3832
	demoRadiusM   = 120.0
	demoSpeedMS   = 1.4
)

func NewDemoGPS() *DemoGPS { return &DemoGPS{now: time.Now} }

func (d *DemoGPS) Name() string { return "Demo GPS (Simulated)" }

func (d *DemoGPS) Connect() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.start.IsZero() {
		d.start = d.now()
	}
	return nil
}

func (d *DemoGPS) Close() error { return nil }

// bearingFromCenter returns the walker's bearing from the circle centre at t.
func (d *DemoGPS) bearingFromCenter(t time.Time) float64 {
	elapsed := t.Sub(d.start).Seconds()
	omega := demoSpeedMS / demoRadiusM * 180 / math.Pi // deg/s
	return geo.NormalizeDeg(elapsed * omega)
}

// Course returns the direction of travel, clockwise from north.
func (d *DemoGPS) Course() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.start.IsZero() {
		return 90
	}
	return geo.NormalizeDeg(d.bearingFromCenter(d.now()) + 90)
}

func (d *DemoGPS) Read() (*Data, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if d.start.IsZero() {
		d.start = now
	}
	b := d.bearingFromCenter(now)
	lat, lon := geo.Project(demoCenterLat, demoCenterLon, demoRadiusM, b)

	return &Data{
		Valid:       true,
		Latitude:    lat + (rand.Float64()-0.5)*2e-5,
		Longitude:   lon + (rand.Float64()-0.5)*2e-5,
		Speed:       demoSpeedMS + (rand.Float64()-0.5)*0.2,
		SpeedValid:  true,
		Heading:     geo.NormalizeDeg(b + 90),
		CourseValid: true,
		Altitude:    76,
		Satellites:  12,
		FixQuality:  1,
		HDOP:        0.8,
		Time:        now.UTC(),
	}, nil
}
