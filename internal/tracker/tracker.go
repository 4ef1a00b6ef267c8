// Package tracker runs dual-source tracking sessions: every GPS fix is paired
// with a dead-reckoning estimate projected from compass heading and speed.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaunagostinho/dualtrack/internal/geo"
	"github.com/shaunagostinho/dualtrack/internal/gps"
)

// DeadReckoning is the running DR position estimate.
type DeadReckoning struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Timestamp int64   `json:"timestamp"` // Unix ms
}

// Point pairs a GPS fix with the DR estimate at the same instant.
type Point struct {
	GPS gps.Fix       `json:"gps"`
	DR  DeadReckoning `json:"dr"`
}

// DeviationM is the great-circle distance between the GPS and DR positions.
func (p Point) DeviationM() float64 {
	return geo.HaversineM(p.GPS.Latitude, p.GPS.Longitude, p.DR.Latitude, p.DR.Longitude)
}

// HeadingReader exposes the latest raw compass alpha.
type HeadingReader interface {
	Heading() (deg float64, ok bool)
}

// OffsetSource exposes the current calibration offset. *calibration.Calibrator
// satisfies it; the tracker reads it on every fix so recalibration applies to
// the next step.
type OffsetSource interface {
	Offset() float64
}

// Sink receives each point as it is appended. Sinks are called with the
// tracker's lock held and must not call back into the Tracker.
type Sink interface {
	OnPoint(sessionID string, p Point, m Metrics)
}

// Options tunes a Tracker. Zero values select the defaults.
type Options struct {
	// FallbackSpeedMS is used when a fix reports no or zero speed.
	FallbackSpeedMS float64
	// AccuracyGateM drops fixes whose accuracy is worse than this. 0 disables.
	AccuracyGateM float64
	// Position configures both the seed read and the watch.
	Position gps.PositionOptions
	// SeedTimeout bounds the seed read; 0 uses Position.Timeout.
	SeedTimeout time.Duration
	// OnError receives per-fix failures. The session continues regardless.
	OnError func(error)
}

// ErrInaccurateFix is reported through OnError when the accuracy gate
// rejects a fix.
var ErrInaccurateFix = errors.New("tracker: fix less accurate than gate")

// DefaultFallbackSpeedMS is a walking pace.
const DefaultFallbackSpeedMS = 1.0

// DefaultOptions returns high-accuracy, no-cache, 15 s per-fix options.
func DefaultOptions() Options {
	return Options{
		FallbackSpeedMS: DefaultFallbackSpeedMS,
		Position: gps.PositionOptions{
			EnableHighAccuracy: true,
			Timeout:            gps.DefaultTimeout,
			MaximumAge:         0,
		},
	}
}

// Tracker is Idle until Start and Active until Stop. All state changes are
// serialized through mu; a generation counter discards callbacks from a
// watch that has already been stopped.
type Tracker struct {
	loc     gps.Locator
	heading HeadingReader
	offset  OffsetSource
	opts    Options

	mu      sync.Mutex
	active  bool
	gen     uint64
	cancel  context.CancelFunc
	session string
	points  []Point
	dr      *DeadReckoning
	lastTs  int64
	lastErr error
	sinks   []Sink
}

// New creates an idle Tracker.
func New(loc gps.Locator, heading HeadingReader, offset OffsetSource, opts Options) *Tracker {
	if opts.FallbackSpeedMS <= 0 {
		opts.FallbackSpeedMS = DefaultFallbackSpeedMS
	}
	return &Tracker{loc: loc, heading: heading, offset: offset, opts: opts}
}

// Subscribe registers a sink for appended points.
func (t *Tracker) Subscribe(s Sink) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sinks = append(t.sinks, s)
}

// Start begins a new session and returns its id. The previous sequence is
// discarded. A seed fix is requested immediately and the watch starts; both
// run until Stop or until ctx is cancelled. Starting an active tracker
// restarts it.
func (t *Tracker) Start(ctx context.Context) string {
	t.mu.Lock()
	if t.active {
		log.Printf("[tracker] restarting active session %s", t.session)
		t.stopLocked()
	}
	t.gen++
	gen := t.gen
	t.points = nil
	t.dr = nil
	t.lastTs = 0
	t.lastErr = nil
	t.session = uuid.NewString()
	t.active = true
	wctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	session := t.session
	opts := t.opts
	t.mu.Unlock()

	log.Printf("[tracker] session %s started", session)

	go t.seed(wctx, gen, opts)
	go t.watch(wctx, gen, t.loc.WatchPosition(wctx, opts.Position))
	return session
}

// SetOptions replaces the tuning of a running tracker. Fallback speed and
// the accuracy gate apply from the next fix; position and seed timeouts
// from the next Start. OnError is kept when opts.OnError is nil.
func (t *Tracker) SetOptions(opts Options) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if opts.FallbackSpeedMS <= 0 {
		opts.FallbackSpeedMS = DefaultFallbackSpeedMS
	}
	if opts.OnError == nil {
		opts.OnError = t.opts.OnError
	}
	t.opts = opts
}

// Stop cancels the watch. Once Stop returns no further fix is processed.
// The point sequence stays readable until the next Start.
func (t *Tracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.active {
		return
	}
	t.stopLocked()
	log.Printf("[tracker] session %s stopped with %d points", t.session, len(t.points))
}

func (t *Tracker) stopLocked() {
	t.cancel()
	t.cancel = nil
	t.gen++
	t.active = false
	t.dr = nil
	t.lastTs = 0
}

func (t *Tracker) seed(ctx context.Context, gen uint64, opts Options) {
	timeout := opts.SeedTimeout
	if timeout <= 0 {
		timeout = opts.Position.Timeout
	}
	if timeout <= 0 {
		timeout = gps.DefaultTimeout
	}
	sctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	fix, err := t.loc.CurrentPosition(sctx, opts.Position)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		t.fail(gen, fmt.Errorf("seed position: %w", err))
		return
	}
	if err := t.handleFix(gen, fix); err != nil {
		t.fail(gen, err)
	}
}

func (t *Tracker) watch(ctx context.Context, gen uint64, updates <-chan gps.Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			if u.Err != nil {
				t.fail(gen, u.Err)
				continue
			}
			if err := t.handleFix(gen, u.Fix); err != nil {
				t.fail(gen, err)
			}
		}
	}
}

func (t *Tracker) fail(gen uint64, err error) {
	t.mu.Lock()
	if gen != t.gen {
		t.mu.Unlock()
		return
	}
	t.lastErr = err
	onError := t.opts.OnError
	t.mu.Unlock()

	log.Printf("[tracker] fix error: %v", err)
	if onError != nil {
		onError(err)
	}
}

// handleFix appends a point for fix. A non-nil error is a rejected fix for
// the side channel; the caller reports it after the lock is released.
func (t *Tracker) handleFix(gen uint64, fix gps.Fix) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if gen != t.gen || !t.active {
		return nil
	}
	if t.opts.AccuracyGateM > 0 && fix.Accuracy > t.opts.AccuracyGateM {
		return fmt.Errorf("%w: %.0f m (gate %.0f m)", ErrInaccurateFix, fix.Accuracy, t.opts.AccuracyGateM)
	}
	if t.dr != nil && fix.Timestamp <= t.lastTs {
		// Seed and watch can deliver the same fix; older ones are stale.
		return nil
	}

	var dr DeadReckoning
	if t.dr == nil {
		dr = DeadReckoning{Latitude: fix.Latitude, Longitude: fix.Longitude, Timestamp: fix.Timestamp}
	} else {
		dt := float64(fix.Timestamp-t.lastTs) / 1000
		speed := fix.SpeedOrZero()
		if speed <= 0 {
			speed = t.opts.FallbackSpeedMS
		}
		lat, lng := geo.Project(t.dr.Latitude, t.dr.Longitude, speed*dt, t.correctedHeading())
		dr = DeadReckoning{Latitude: lat, Longitude: lng, Timestamp: fix.Timestamp}
	}

	p := Point{GPS: fix, DR: dr}
	t.points = append(t.points, p)
	t.dr = &dr
	t.lastTs = fix.Timestamp
	t.lastErr = nil

	m := t.metricsLocked()
	for _, s := range t.sinks {
		s.OnPoint(t.session, p, m)
	}
	return nil
}

func (t *Tracker) correctedHeading() float64 {
	var raw float64
	if t.heading != nil {
		raw, _ = t.heading.Heading()
	}
	var off float64
	if t.offset != nil {
		off = t.offset.Offset()
	}
	return geo.CorrectHeading(raw, off)
}
