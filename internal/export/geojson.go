package export

import (
	"encoding/json"
	"io"

	"github.com/shaunagostinho/dualtrack/internal/tracker"
)

// Source tags on the two exported lines.
const (
	SourceGPS           = "gps"
	SourceDeadReckoning = "deadReckoning"
)

type featureCollection struct {
	Type     string    `json:"type"`
	Features []feature `json:"features"`
}

type feature struct {
	Type       string            `json:"type"`
	Properties map[string]string `json:"properties"`
	Geometry   lineString        `json:"geometry"`
}

type lineString struct {
	Type        string       `json:"type"`
	Coordinates [][2]float64 `json:"coordinates"` // [lng, lat]
}

// WriteGeoJSON writes a FeatureCollection holding the GPS path and the DR
// path as two LineStrings.
func WriteGeoJSON(w io.Writer, points []tracker.Point) error {
	gpsLine := make([][2]float64, len(points))
	drLine := make([][2]float64, len(points))
	for i, p := range points {
		gpsLine[i] = [2]float64{p.GPS.Longitude, p.GPS.Latitude}
		drLine[i] = [2]float64{p.DR.Longitude, p.DR.Latitude}
	}
	fc := featureCollection{
		Type: "FeatureCollection",
		Features: []feature{
			{
				Type:       "Feature",
				Properties: map[string]string{"source": SourceGPS},
				Geometry:   lineString{Type: "LineString", Coordinates: gpsLine},
			},
			{
				Type:       "Feature",
				Properties: map[string]string{"source": SourceDeadReckoning},
				Geometry:   lineString{Type: "LineString", Coordinates: drLine},
			},
		},
	}
	return json.NewEncoder(w).Encode(fc)
}
