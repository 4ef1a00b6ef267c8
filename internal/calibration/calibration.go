// Package calibration owns the heading offset between the device compass
// frame and true/map north.
package calibration

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"sync"

	"github.com/shaunagostinho/dualtrack/internal/geo"
	"github.com/shaunagostinho/dualtrack/internal/store"
)

// OffsetKey is the durable store key holding the offset in degrees.
const OffsetKey = "heading_offset"

// HeadingReader exposes the most recent compass heading.
// orientation.Cell satisfies it.
type HeadingReader interface {
	Heading() (deg float64, ok bool)
}

// Calibrator holds the persisted heading offset. Calibrate assumes the user
// is facing true north at the moment of the call.
type Calibrator struct {
	kv      store.KV
	heading HeadingReader

	mu     sync.RWMutex
	offset float64
}

// New loads the persisted offset from kv. A missing or unparseable value
// means no correction (0).
func New(ctx context.Context, kv store.KV, heading HeadingReader) (*Calibrator, error) {
	c := &Calibrator{kv: kv, heading: heading}

	raw, err := kv.Get(ctx, OffsetKey)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return c, nil
	case err != nil:
		return nil, fmt.Errorf("calibration: load offset: %w", err)
	}

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		log.Printf("[calibration] ignoring stored offset %q: %v", raw, err)
		return c, nil
	}
	c.offset = v
	log.Printf("[calibration] loaded heading offset %.1f°", v)
	return c, nil
}

// Calibrate stores the current heading verbatim as the new offset and
// returns it. With no heading sample yet the heading counts as 0.
func (c *Calibrator) Calibrate(ctx context.Context) (float64, error) {
	h, ok := c.heading.Heading()
	if !ok {
		log.Printf("[calibration] no heading sample received yet, calibrating to 0°")
	}

	if err := c.kv.Set(ctx, OffsetKey, strconv.FormatFloat(h, 'f', -1, 64)); err != nil {
		return 0, fmt.Errorf("calibration: save offset: %w", err)
	}

	c.mu.Lock()
	c.offset = h
	c.mu.Unlock()

	log.Printf("[calibration] heading offset set to %.1f°", h)
	return h, nil
}

// Offset returns the current offset in degrees, 0 if never calibrated.
func (c *Calibrator) Offset() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.offset
}

// Correct applies the current offset to a raw compass alpha.
func (c *Calibrator) Correct(rawDeg float64) float64 {
	return geo.CorrectHeading(rawDeg, c.Offset())
}
