package gps

import (
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/shaunagostinho/dualtrack/internal/nmea"
)

// knotsToMS converts speed over ground from knots to m/s.
const knotsToMS = 0.514444

// NMEAProvider reads standard NMEA 0183 sentences from a UART GPS.
// Compatible with u-blox NEO-M8N and any standard NMEA GPS.
type NMEAProvider struct {
	portPath string
	baudRate int
	port     *nmea.Port
	connErr  error
	mu       sync.Mutex
	last     Data
}

// NMEAConfig holds configuration for the NMEA GPS provider.
type NMEAConfig struct {
	PortPath string `yaml:"port_path" json:"portPath"`
	BaudRate int    `yaml:"baud_rate" json:"baudRate"`
}

// NewNMEA creates a new NMEA GPS provider.
func NewNMEA(cfg NMEAConfig) *NMEAProvider {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = 9600 // u-blox default
	}
	return &NMEAProvider{
		portPath: cfg.PortPath,
		baudRate: cfg.BaudRate,
	}
}

func (n *NMEAProvider) Name() string { return "NMEA GPS" }

func (n *NMEAProvider) Connect() error {
	port, err := nmea.Open(n.portPath, n.baudRate)
	n.mu.Lock()
	defer n.mu.Unlock()
	if err != nil {
		n.connErr = err
		return fmt.Errorf("gps: %w", err)
	}
	n.port = port
	n.connErr = nil
	log.Printf("[gps] connected to %s at %d baud", n.portPath, n.baudRate)
	return nil
}

func (n *NMEAProvider) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.port != nil {
		err := n.port.Close()
		n.port = nil
		return err
	}
	return nil
}

// Read reads NMEA sentences until we have a complete fix update, or timeout.
func (n *NMEAProvider) Read() (*Data, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.port == nil {
		snap := n.last
		if n.connErr != nil {
			return &snap, classify(n.connErr)
		}
		return &snap, classify(fmt.Errorf("not connected"))
	}

	// Read up to 20 lines to find RMC + GGA
	gotRMC := false
	gotGGA := false
	for i := 0; i < 20 && !(gotRMC && gotGGA); i++ {
		line, ok := n.port.Next(1)
		if !ok {
			break
		}
		switch nmea.Type(line) {
		case "RMC":
			parseRMC(&n.last, line)
			gotRMC = true
		case "GGA":
			parseGGA(&n.last, line)
			gotGGA = true
		}
	}

	snap := n.last
	return &snap, nil
}

func parseRMC(d *Data, line string) {
	// $GPRMC,hhmmss.ss,A,llll.ll,a,yyyyy.yy,a,x.x,x.x,ddmmyy,x.x,a*hh
	parts := nmea.Split(line)
	if len(parts) < 10 {
		return
	}

	d.Valid = parts[2] == "A"
	if ts, ok := nmea.ParseTime(parts[1], parts[9]); ok {
		d.Time = ts
	} else {
		d.Time = time.Now().UTC()
	}

	if !d.Valid {
		return
	}
	d.Latitude = nmea.ParseCoord(parts[3], parts[4])
	d.Longitude = nmea.ParseCoord(parts[5], parts[6])

	d.SpeedValid = false
	if spd, err := strconv.ParseFloat(parts[7], 64); err == nil {
		d.Speed = spd * knotsToMS
		d.SpeedValid = true
	}
	d.CourseValid = false
	if hdg, err := strconv.ParseFloat(parts[8], 64); err == nil {
		d.Heading = hdg
		d.CourseValid = true
	}
}

func parseGGA(d *Data, line string) {
	// $GPGGA,hhmmss.ss,llll.ll,a,yyyyy.yy,a,x,xx,x.x,x.x,M,x.x,M,x.x,xxxx*hh
	parts := nmea.Split(line)
	if len(parts) < 11 {
		return
	}

	if fix, err := strconv.Atoi(parts[6]); err == nil {
		d.FixQuality = fix
	}
	if sats, err := strconv.Atoi(parts[7]); err == nil {
		d.Satellites = sats
	}
	if hdop, err := strconv.ParseFloat(parts[8], 64); err == nil {
		d.HDOP = hdop
	}
	if alt, err := strconv.ParseFloat(parts[9], 64); err == nil {
		d.Altitude = alt
	}
}
