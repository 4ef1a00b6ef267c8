package gps

import "time"

// Provider is the interface for GPS data sources.
type Provider interface {
	Name() string
	Connect() error
	Close() error
	// Read returns the latest GPS state. May block briefly.
	Read() (*Data, error)
}

// Data holds the receiver state assembled from the most recent sentences.
type Data struct {
	Valid       bool      `json:"valid"`       // Fix is valid
	Latitude    float64   `json:"latitude"`    // Decimal degrees
	Longitude   float64   `json:"longitude"`   // Decimal degrees
	Speed       float64   `json:"speed"`       // m/s
	SpeedValid  bool      `json:"speedValid"`  // Receiver reported a speed
	Heading     float64   `json:"heading"`     // Course over ground, degrees true
	CourseValid bool      `json:"courseValid"` // Receiver reported a course
	Altitude    float64   `json:"altitude"`    // Meters
	Satellites  int       `json:"satellites"`  // Sats in use
	FixQuality  int       `json:"fixQuality"`  // 0=none, 1=GPS, 2=DGPS
	HDOP        float64   `json:"hdop"`        // Horizontal dilution
	Time        time.Time `json:"time"`        // UTC fix time
}

// Fix is a single reported position sample. Immutable once captured.
type Fix struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Accuracy  float64  `json:"accuracy"`  // meters
	Speed     *float64 `json:"speed"`     // m/s, nil if not reported
	Heading   *float64 `json:"heading"`   // degrees true, nil if not reported
	Timestamp int64    `json:"timestamp"` // Unix ms
}

// DefaultUERE is the user-equivalent range error in meters used to turn
// HDOP into a horizontal accuracy estimate.
const DefaultUERE = 5.0

// Fix converts receiver state into a Fix. Accuracy is HDOP scaled by uere;
// a receiver that reports no HDOP gets an accuracy of 0 (unknown).
func (d *Data) Fix(uere float64) Fix {
	if uere <= 0 {
		uere = DefaultUERE
	}
	f := Fix{
		Latitude:  d.Latitude,
		Longitude: d.Longitude,
		Accuracy:  d.HDOP * uere,
		Timestamp: d.Time.UnixMilli(),
	}
	if d.SpeedValid {
		v := d.Speed
		f.Speed = &v
	}
	if d.CourseValid {
		h := d.Heading
		f.Heading = &h
	}
	return f
}

// SpeedOrZero returns the reported speed, or 0 when none was reported.
func (f Fix) SpeedOrZero() float64 {
	if f.Speed == nil {
		return 0
	}
	return *f.Speed
}
