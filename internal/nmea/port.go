package nmea

import (
	"bufio"
	"fmt"
	"strings"
	"time"

	"go.bug.st/serial"
)

// DefaultBaudRate is the standard NMEA 0183 line rate.
const DefaultBaudRate = 4800

// Port is a serial line that yields checksum-valid NMEA sentences.
type Port struct {
	path    string
	port    serial.Port
	scanner *bufio.Scanner
}

// Open opens path at baud 8N1 with a short read timeout so Next never blocks
// for long on a silent device.
func Open(path string, baud int) (*Port, error) {
	if baud == 0 {
		baud = DefaultBaudRate
	}
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("nmea: failed to open %s: %w", path, err)
	}
	if err := port.SetReadTimeout(200 * time.Millisecond); err != nil {
		port.Close()
		return nil, fmt.Errorf("nmea: set read timeout on %s: %w", path, err)
	}
	return &Port{path: path, port: port, scanner: bufio.NewScanner(port)}, nil
}

// Next returns the next valid sentence, skipping noise and bad checksums.
// It gives up after maxLines lines and returns ok=false.
func (p *Port) Next(maxLines int) (line string, ok bool) {
	for i := 0; i < maxLines; i++ {
		if !p.scanner.Scan() {
			// A scanner that hit io.ErrNoProgress on a quiet line stays dead.
			if p.scanner.Err() != nil {
				p.scanner = bufio.NewScanner(p.port)
			}
			return "", false
		}
		line = strings.TrimSpace(p.scanner.Text())
		if ValidChecksum(line) {
			return line, true
		}
	}
	return "", false
}

// Path returns the device path.
func (p *Port) Path() string { return p.path }

// Close closes the underlying serial port.
func (p *Port) Close() error {
	return p.port.Close()
}
