package tracker

// Metrics are derived on demand from the latest point; nothing here is cached.
type Metrics struct {
	SessionID  string  `json:"sessionId"`
	Active     bool    `json:"active"`
	Points     int     `json:"points"`
	Speed      float64 `json:"speed"`      // m/s, latest reported GPS speed
	Heading    float64 `json:"heading"`    // corrected heading, degrees
	Offset     float64 `json:"offset"`     // calibration offset, degrees
	DeviationM float64 `json:"deviationM"` // latest GPS to DR distance
	LastError  string  `json:"lastError,omitempty"`
}

// Metrics returns the current derived views.
func (t *Tracker) Metrics() Metrics {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.metricsLocked()
}

func (t *Tracker) metricsLocked() Metrics {
	m := Metrics{
		SessionID: t.session,
		Active:    t.active,
		Points:    len(t.points),
		Heading:   t.correctedHeading(),
	}
	if t.offset != nil {
		m.Offset = t.offset.Offset()
	}
	if n := len(t.points); n > 0 {
		last := t.points[n-1]
		m.Speed = last.GPS.SpeedOrZero()
		m.DeviationM = last.DeviationM()
	}
	if t.lastErr != nil {
		m.LastError = t.lastErr.Error()
	}
	return m
}

// Points returns a copy of the current session's sequence in order.
func (t *Tracker) Points() []Point {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Point, len(t.points))
	copy(out, t.points)
	return out
}

// Len returns the number of points in the current sequence.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.points)
}

// Active reports whether a session is running.
func (t *Tracker) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

// Session returns the id of the current or most recent session.
func (t *Tracker) Session() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.session
}
