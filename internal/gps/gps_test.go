package gps

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"go.bug.st/serial"
)

func TestParseRMCAndGGA(t *testing.T) {
	var d Data
	parseRMC(&d, "$GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,161026,003.1,W*6A")
	parseGGA(&d, "$GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*47")

	if !d.Valid {
		t.Fatal("expected valid fix")
	}
	if math.Abs(d.Latitude-48.1173) > 1e-4 || math.Abs(d.Longitude-11.516667) > 1e-5 {
		t.Fatalf("position = %v, %v", d.Latitude, d.Longitude)
	}
	if !d.SpeedValid || math.Abs(d.Speed-22.4*knotsToMS) > 1e-9 {
		t.Fatalf("speed = %v (valid %v)", d.Speed, d.SpeedValid)
	}
	if !d.CourseValid || d.Heading != 84.4 {
		t.Fatalf("course = %v", d.Heading)
	}
	if d.Satellites != 8 || d.HDOP != 0.9 || d.Altitude != 545.4 || d.FixQuality != 1 {
		t.Fatalf("gga fields = %+v", d)
	}
	want := time.Date(2026, time.October, 16, 12, 35, 19, 0, time.UTC)
	if !d.Time.Equal(want) {
		t.Fatalf("time = %v, want %v", d.Time, want)
	}
}

func TestParseRMCEmptySpeed(t *testing.T) {
	var d Data
	parseRMC(&d, "$GPRMC,123519,A,4807.038,N,01131.000,E,,,161026,,*00")
	if d.SpeedValid || d.CourseValid {
		t.Fatalf("empty speed/course should be invalid: %+v", d)
	}
	f := d.Fix(5)
	if f.Speed != nil || f.Heading != nil {
		t.Fatalf("fix should carry nil speed/heading: %+v", f)
	}
}

func TestParseRMCVoid(t *testing.T) {
	d := Data{Latitude: 1, Longitude: 2}
	parseRMC(&d, "$GPRMC,123519,V,,,,,,,161026,,*00")
	if d.Valid {
		t.Fatal("void status should invalidate")
	}
	if d.Latitude != 1 || d.Longitude != 2 {
		t.Fatal("void sentence must not overwrite position")
	}
}

func TestDataFix(t *testing.T) {
	ts := time.UnixMilli(1_700_000_000_123)
	d := Data{Valid: true, Latitude: 1, Longitude: 2, Speed: 3, SpeedValid: true, Heading: 45, CourseValid: true, HDOP: 1.2, Time: ts}
	f := d.Fix(5)
	if f.Accuracy != 6 {
		t.Fatalf("accuracy = %v", f.Accuracy)
	}
	if f.Timestamp != 1_700_000_000_123 {
		t.Fatalf("timestamp = %v", f.Timestamp)
	}
	if f.Speed == nil || *f.Speed != 3 || f.Heading == nil || *f.Heading != 45 {
		t.Fatalf("speed/heading = %+v", f)
	}
	if f.SpeedOrZero() != 3 || (Fix{}).SpeedOrZero() != 0 {
		t.Fatal("SpeedOrZero")
	}
	// Default UERE
	if got := d.Fix(0).Accuracy; got != 1.2*DefaultUERE {
		t.Fatalf("default uere accuracy = %v", got)
	}
}

func TestClassify(t *testing.T) {
	if err := classify(nil); err != nil {
		t.Fatalf("nil = %v", err)
	}
	err := classify(fmt.Errorf("open: %w", &serial.PortError{}))
	if !errors.Is(err, ErrPositionUnavailable) {
		t.Fatalf("generic port error = %v", err)
	}
	err = classify(errors.New("boom"))
	if !errors.Is(err, ErrPositionUnavailable) || errors.Is(err, ErrTimeout) {
		t.Fatalf("boom = %v", err)
	}
	already := &PositionError{Code: Timeout}
	if got := classify(already); got != error(already) {
		t.Fatalf("classify should pass PositionError through, got %v", got)
	}
}

func TestPositionErrorString(t *testing.T) {
	if got := ErrTimeout.Error(); got != "gps: TIMEOUT" {
		t.Fatalf("got %q", got)
	}
	e := &PositionError{Code: PermissionDenied, Err: errors.New("denied")}
	if got := e.Error(); got != "gps: PERMISSION_DENIED: denied" {
		t.Fatalf("got %q", got)
	}
}

// stepProvider returns whatever set last stored and counts reads.
type stepProvider struct {
	mu    sync.Mutex
	data  Data
	err   error
	reads int
}

func (p *stepProvider) Name() string   { return "step" }
func (p *stepProvider) Connect() error { return nil }
func (p *stepProvider) Close() error   { return nil }

func (p *stepProvider) Read() (*Data, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reads++
	if p.err != nil {
		return nil, p.err
	}
	d := p.data
	return &d, nil
}

func (p *stepProvider) waitReads(t *testing.T, n int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for {
		p.mu.Lock()
		got := p.reads
		p.mu.Unlock()
		if got >= n {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("provider read %d times, want %d", got, n)
		}
		time.Sleep(time.Millisecond)
	}
}

func (p *stepProvider) set(lat float64, ts int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.data = Data{Valid: true, Latitude: lat, Longitude: 0, HDOP: 1, Time: time.UnixMilli(ts)}
}

func TestCurrentPositionWaitsForFreshFix(t *testing.T) {
	p := &stepProvider{}
	p.set(1, 1000)
	loc := NewPollingLocator(p, 5*time.Millisecond, 5)

	go func() {
		time.Sleep(30 * time.Millisecond)
		p.set(2, 2000)
	}()

	fix, err := loc.CurrentPosition(context.Background(), PositionOptions{EnableHighAccuracy: true, Timeout: time.Second})
	if err != nil {
		t.Fatalf("CurrentPosition: %v", err)
	}
	if fix.Latitude != 2 || fix.Timestamp != 2000 {
		t.Fatalf("got cached fix %+v", fix)
	}
}

func TestCurrentPositionTimeout(t *testing.T) {
	p := &stepProvider{}
	loc := NewPollingLocator(p, 5*time.Millisecond, 5)
	_, err := loc.CurrentPosition(context.Background(), PositionOptions{Timeout: 30 * time.Millisecond})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want timeout", err)
	}
}

func TestCurrentPositionUnavailable(t *testing.T) {
	p := &stepProvider{err: errors.New("not connected")}
	loc := NewPollingLocator(p, 5*time.Millisecond, 5)
	_, err := loc.CurrentPosition(context.Background(), PositionOptions{Timeout: 30 * time.Millisecond})
	if !errors.Is(err, ErrPositionUnavailable) {
		t.Fatalf("err = %v, want unavailable", err)
	}
}

func TestWatchPosition(t *testing.T) {
	p := &stepProvider{}
	p.set(1, 1000)
	loc := NewPollingLocator(p, 5*time.Millisecond, 5)

	ctx, cancel := context.WithCancel(context.Background())
	updates := loc.WatchPosition(ctx, PositionOptions{Timeout: 40 * time.Millisecond})

	// The fix present at subscription is never delivered.
	p.waitReads(t, 1)
	p.set(2, 2000)
	u := <-updates
	if u.Err != nil || u.Fix.Latitude != 2 {
		t.Fatalf("first update = %+v", u)
	}

	// No new fix: the watch reports a timeout and keeps going.
	u = <-updates
	if !errors.Is(u.Err, ErrTimeout) {
		t.Fatalf("expected timeout update, got %+v", u)
	}

	p.set(3, 3000)
	u = <-updates
	if u.Err != nil || u.Fix.Latitude != 3 {
		t.Fatalf("watch did not recover: %+v", u)
	}

	cancel()
	for range updates {
	}
}

// blockingProvider models a receiver on a silent serial line.
type blockingProvider struct {
	release chan struct{}
}

func (p *blockingProvider) Name() string   { return "silent" }
func (p *blockingProvider) Connect() error { return nil }
func (p *blockingProvider) Close() error   { return nil }

func (p *blockingProvider) Read() (*Data, error) {
	<-p.release
	return &Data{}, nil
}

func TestWatchPositionDoesNotBlockOnRead(t *testing.T) {
	p := &blockingProvider{release: make(chan struct{})}
	loc := NewPollingLocator(p, 5*time.Millisecond, 5)
	ctx, cancel := context.WithCancel(context.Background())
	defer close(p.release)
	defer cancel()

	returned := make(chan (<-chan Update), 1)
	go func() { returned <- loc.WatchPosition(ctx, PositionOptions{Timeout: time.Second}) }()

	select {
	case <-returned:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("WatchPosition blocked on a silent receiver")
	}
}

func TestDemoGPS(t *testing.T) {
	d := NewDemoGPS()
	base := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	now := base
	d.now = func() time.Time { return now }
	if err := d.Connect(); err != nil {
		t.Fatal(err)
	}

	first, _ := d.Read()
	now = base.Add(10 * time.Second)
	second, _ := d.Read()

	if !first.Valid || !second.SpeedValid {
		t.Fatal("demo data should be valid")
	}
	if second.Time.Sub(first.Time) != 10*time.Second {
		t.Fatalf("timestamps should follow the clock")
	}
	if c := d.Course(); c < 0 || c >= 360 {
		t.Fatalf("course out of range: %v", c)
	}
}
