package gps

import (
	"context"
	"errors"
	"log"
	"time"
)

// PositionOptions configures a position request.
type PositionOptions struct {
	// EnableHighAccuracy asks for the best fix the receiver can give.
	// A polled serial receiver always delivers its best fix.
	EnableHighAccuracy bool
	// Timeout bounds the wait for one fix. Zero means DefaultTimeout.
	Timeout time.Duration
	// MaximumAge is how old a cached fix may be. Zero forces a fresh fix.
	MaximumAge time.Duration
}

// DefaultTimeout is the per-fix timeout when PositionOptions.Timeout is zero.
const DefaultTimeout = 15 * time.Second

func (o PositionOptions) timeout() time.Duration {
	if o.Timeout <= 0 {
		return DefaultTimeout
	}
	return o.Timeout
}

// Update is one delivery on a watch stream: either a Fix or an error.
type Update struct {
	Fix Fix
	Err error
}

// Locator is the geolocation surface the tracker consumes.
type Locator interface {
	// CurrentPosition returns a single fix, blocking up to opts.Timeout.
	CurrentPosition(ctx context.Context, opts PositionOptions) (Fix, error)
	// WatchPosition streams fixes until ctx is cancelled, then closes the
	// channel. Per-fix failures arrive as Updates with Err set.
	WatchPosition(ctx context.Context, opts PositionOptions) <-chan Update
}

// PollingLocator adapts a Provider to the Locator interface by polling
// Read at a fixed interval.
type PollingLocator struct {
	prov     Provider
	interval time.Duration
	uere     float64
}

// NewPollingLocator creates a Locator over prov. interval defaults to 1s.
func NewPollingLocator(prov Provider, interval time.Duration, uere float64) *PollingLocator {
	if interval <= 0 {
		interval = time.Second
	}
	return &PollingLocator{prov: prov, interval: interval, uere: uere}
}

// poll reads the provider once. ok is false when the receiver has no valid fix.
func (l *PollingLocator) poll() (fix Fix, ok bool, err error) {
	data, err := l.prov.Read()
	if err != nil {
		return Fix{}, false, classify(err)
	}
	if data == nil || !data.Valid {
		return Fix{}, false, nil
	}
	return data.Fix(l.uere), true, nil
}

// fresh reports whether fix may be delivered given the previously seen
// timestamp and the request's maximum age.
func fresh(fix Fix, seen int64, maxAge time.Duration, now time.Time) bool {
	if fix.Timestamp == seen {
		return false
	}
	if maxAge > 0 {
		return now.UnixMilli()-fix.Timestamp <= maxAge.Milliseconds()
	}
	return true
}

func (l *PollingLocator) CurrentPosition(ctx context.Context, opts PositionOptions) (Fix, error) {
	var seen int64
	fix, ok, err := l.poll()
	if ok {
		if opts.MaximumAge > 0 && fresh(fix, 0, opts.MaximumAge, time.Now()) {
			return fix, nil
		}
		seen = fix.Timestamp
	}
	lastErr := err

	deadline := time.NewTimer(opts.timeout())
	defer deadline.Stop()
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return Fix{}, ctx.Err()
		case <-deadline.C:
			if lastErr != nil {
				return Fix{}, lastErr
			}
			return Fix{}, ErrTimeout
		case <-ticker.C:
			fix, ok, err := l.poll()
			if err != nil {
				if errors.Is(err, ErrPermissionDenied) {
					return Fix{}, err
				}
				lastErr = err
				continue
			}
			if ok && fresh(fix, seen, opts.MaximumAge, time.Now()) {
				return fix, nil
			}
		}
	}
}

func (l *PollingLocator) WatchPosition(ctx context.Context, opts PositionOptions) <-chan Update {
	out := make(chan Update, 1)

	go func() {
		defer close(out)

		// Read blocks on a quiet serial line, so the subscription-time poll
		// stays off the caller's goroutine.
		var seen int64
		if opts.MaximumAge <= 0 {
			// The fix cached at subscription time is stale by definition.
			if fix, ok, _ := l.poll(); ok {
				seen = fix.Timestamp
			}
		}
		if ctx.Err() != nil {
			return
		}

		send := func(u Update) bool {
			select {
			case out <- u:
				return true
			case <-ctx.Done():
				return false
			}
		}

		timeout := opts.timeout()
		deadline := time.NewTimer(timeout)
		defer deadline.Stop()
		ticker := time.NewTicker(l.interval)
		defer ticker.Stop()
		var lastErr error

		for {
			select {
			case <-ctx.Done():
				return
			case <-deadline.C:
				err := lastErr
				if err == nil {
					err = ErrTimeout
				}
				lastErr = nil
				if !send(Update{Err: err}) {
					return
				}
				deadline.Reset(timeout)
			case <-ticker.C:
				fix, ok, err := l.poll()
				if err != nil {
					lastErr = err
					continue
				}
				if !ok || !fresh(fix, seen, opts.MaximumAge, time.Now()) {
					continue
				}
				seen = fix.Timestamp
				lastErr = nil
				if !send(Update{Fix: fix}) {
					return
				}
				deadline.Reset(timeout)
			}
		}
	}()

	log.Printf("[gps] watching %s (poll %v, timeout %v)", l.prov.Name(), l.interval, opts.timeout())
	return out
}
