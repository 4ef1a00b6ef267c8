package server

import (
	"errors"
	"log"
	"sync"

	"github.com/shaunagostinho/dualtrack/internal/gps"
)

// SensorStatus tracks which sensors have been reported unavailable. Each
// sensor is announced once until it recovers.
type SensorStatus struct {
	mu          sync.Mutex
	unavailable map[string]string
	notify      func(msg string)
}

func NewSensorStatus() *SensorStatus {
	return &SensorStatus{unavailable: make(map[string]string)}
}

// Unavailable marks sensor as unavailable. It returns true the first time.
func (s *SensorStatus) Unavailable(sensor string, err error) bool {
	s.mu.Lock()
	if _, seen := s.unavailable[sensor]; seen {
		s.mu.Unlock()
		return false
	}
	msg := sensor + " unavailable: " + err.Error()
	s.unavailable[sensor] = err.Error()
	notify := s.notify
	s.mu.Unlock()

	log.Printf("[status] %s", msg)
	if notify != nil {
		notify(msg)
	}
	return true
}

// Available clears the unavailable mark for sensor. It returns true when the
// sensor had been reported and has now recovered.
func (s *SensorStatus) Available(sensor string) bool {
	s.mu.Lock()
	if _, seen := s.unavailable[sensor]; !seen {
		s.mu.Unlock()
		return false
	}
	delete(s.unavailable, sensor)
	notify := s.notify
	s.mu.Unlock()

	msg := sensor + " recovered"
	log.Printf("[status] %s", msg)
	if notify != nil {
		notify(msg)
	}
	return true
}

// FixError is a tracker.Options.OnError hook: permission and availability
// failures mark the GPS unavailable, timeouts do not.
func (s *SensorStatus) FixError(err error) {
	if errors.Is(err, gps.ErrPermissionDenied) || errors.Is(err, gps.ErrPositionUnavailable) {
		s.Unavailable("gps", err)
	}
}

// Snapshot returns sensor → reason for every unavailable sensor.
func (s *SensorStatus) Snapshot() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.unavailable))
	for k, v := range s.unavailable {
		out[k] = v
	}
	return out
}

func (s *SensorStatus) setNotify(fn func(string)) {
	s.mu.Lock()
	s.notify = fn
	s.mu.Unlock()
}
