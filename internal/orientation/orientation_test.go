package orientation

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/shaunagostinho/dualtrack/internal/nmea"
)

func TestCellIgnoresMissingValues(t *testing.T) {
	var c Cell
	if _, ok := c.Heading(); ok {
		t.Fatal("empty cell should report no sample")
	}
	if c.Current() != 0 {
		t.Fatal("empty cell should read 0")
	}
	if c.Set(Reading{}) {
		t.Fatal("nil alpha accepted")
	}
	if c.Set(Alpha(math.NaN())) {
		t.Fatal("NaN alpha accepted")
	}
	if !c.Set(Alpha(42)) {
		t.Fatal("valid alpha rejected")
	}
	c.Set(Reading{})
	if h, ok := c.Heading(); !ok || h != 42 {
		t.Fatalf("heading = %v, %v", h, ok)
	}
	c.Set(Alpha(370))
	if c.Current() != 10 {
		t.Fatalf("overwrite/normalise failed: %v", c.Current())
	}
}

func TestFeed(t *testing.T) {
	ch := make(chan Reading, 4)
	ch <- Alpha(10)
	ch <- Reading{}
	ch <- Alpha(20)
	close(ch)

	var c Cell
	q := NewQualityMonitor(10)
	headings := 0
	Feed(context.Background(), ch, &c, q, func() { headings++ })

	if c.Current() != 20 {
		t.Fatalf("cell = %v", c.Current())
	}
	if headings != 2 {
		t.Fatalf("onHeading calls = %d, want 2", headings)
	}
	if got := q.Quality().Samples; got != 2 {
		t.Fatalf("monitor samples = %d, want 2", got)
	}
}

func TestParseHeading(t *testing.T) {
	body := "HCHDG,98.3,,,,"
	r, ok := ParseHeading("$" + body + "*" + nmea.Checksum(body))
	if !ok || r.Alpha == nil {
		t.Fatalf("HDG not parsed: %+v", r)
	}
	if math.Abs(*r.Alpha-261.7) > 1e-9 {
		t.Fatalf("alpha = %v, want 261.7", *r.Alpha)
	}

	r, ok = ParseHeading("$GPHDT,,T*00")
	if !ok || r.Alpha != nil {
		t.Fatalf("empty HDT should give a nil reading, got %+v", r)
	}

	if _, ok := ParseHeading("$GPRMC,1,A*00"); ok {
		t.Fatal("RMC is not a heading sentence")
	}
}

func TestScore(t *testing.T) {
	tests := []struct {
		name   string
		in     []float64
		rating string
	}{
		{"too few", []float64{1, 2}, RatingUnknown},
		{"steady", []float64{90, 90, 90, 90}, RatingGood},
		{"steady across north", []float64{359, 1, 0, 358, 2}, RatingGood},
		{"wobbly", []float64{80, 100, 85, 95, 90, 70, 110}, RatingFair},
		{"spinning", []float64{0, 90, 180, 270, 45, 135}, RatingPoor},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := Score(tt.in)
			if q.Rating != tt.rating {
				t.Fatalf("rating = %s (σ=%.2f), want %s", q.Rating, q.StdDevDeg, tt.rating)
			}
			if math.IsInf(q.StdDevDeg, 0) || math.IsNaN(q.StdDevDeg) {
				t.Fatalf("non-finite σ %v", q.StdDevDeg)
			}
		})
	}

	q := Score([]float64{359, 1, 0})
	if q.MeanDeg > 0.5 && q.MeanDeg < 359.5 {
		t.Fatalf("circular mean across north = %v", q.MeanDeg)
	}
}

func TestQualityMonitorWindow(t *testing.T) {
	q := NewQualityMonitor(4)
	for _, h := range []float64{0, 90, 180, 270} {
		q.Add(h)
	}
	if q.Quality().Rating != RatingPoor {
		t.Fatal("spread window should be poor")
	}
	for i := 0; i < 4; i++ {
		q.Add(45)
	}
	got := q.Quality()
	if got.Samples != 4 || got.Rating != RatingGood {
		t.Fatalf("window did not slide: %+v", got)
	}
}

func TestDemoSource(t *testing.T) {
	src := NewDemoSource(func() float64 { return 90 })
	src.interval = 5 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := <-src.Subscribe(ctx)
	if r.Alpha == nil {
		t.Fatal("demo reading without alpha")
	}
	// Bearing 90 ± noise maps to alpha 270 ± noise.
	if math.Abs(*r.Alpha-270) > src.noiseDeg+1e-9 {
		t.Fatalf("alpha = %v", *r.Alpha)
	}
}
