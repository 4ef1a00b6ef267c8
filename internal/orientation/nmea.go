package orientation

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/shaunagostinho/dualtrack/internal/geo"
	"github.com/shaunagostinho/dualtrack/internal/nmea"
)

// NMEASource reads heading sentences (HDT, HDG, HDM) from a serial
// fluxgate or GNSS compass.
type NMEASource struct {
	portPath string
	baudRate int
	mu       sync.Mutex
	port     *nmea.Port
}

// NMEAConfig holds configuration for the NMEA compass.
type NMEAConfig struct {
	PortPath string `yaml:"port_path" json:"portPath"`
	BaudRate int    `yaml:"baud_rate" json:"baudRate"`
}

// NewNMEA creates a new NMEA compass source.
func NewNMEA(cfg NMEAConfig) *NMEASource {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = nmea.DefaultBaudRate
	}
	return &NMEASource{portPath: cfg.PortPath, baudRate: cfg.BaudRate}
}

func (s *NMEASource) Name() string { return "NMEA compass" }

func (s *NMEASource) Connect() error {
	port, err := nmea.Open(s.portPath, s.baudRate)
	if err != nil {
		return fmt.Errorf("compass: %w", err)
	}
	s.mu.Lock()
	s.port = port
	s.mu.Unlock()
	log.Printf("[compass] connected to %s at %d baud", s.portPath, s.baudRate)
	return nil
}

func (s *NMEASource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port != nil {
		err := s.port.Close()
		s.port = nil
		return err
	}
	return nil
}

func (s *NMEASource) Subscribe(ctx context.Context) <-chan Reading {
	out := make(chan Reading, 1)
	go func() {
		defer close(out)
		for ctx.Err() == nil {
			s.mu.Lock()
			port := s.port
			var line string
			var ok bool
			if port != nil {
				line, ok = port.Next(20)
			}
			s.mu.Unlock()
			if port == nil {
				// Not connected yet; connectWithRetry owns reconnection.
				select {
				case <-ctx.Done():
					return
				case <-time.After(500 * time.Millisecond):
				}
				continue
			}
			if !ok {
				continue
			}
			r, ok := ParseHeading(line)
			if !ok {
				continue
			}
			select {
			case out <- r:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// ParseHeading extracts a Reading from an HDT/HDG/HDM sentence. NMEA
// headings are clockwise bearings; the result is converted to the
// counter-clockwise alpha convention.
func ParseHeading(line string) (Reading, bool) {
	switch nmea.Type(line) {
	case "HDT", "HDG", "HDM":
	default:
		return Reading{}, false
	}
	parts := nmea.Split(line)
	if len(parts) < 2 {
		return Reading{}, false
	}
	hdg, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return Reading{Alpha: nil}, true
	}
	return Alpha(geo.NormalizeDeg(360 - hdg)), true
}
