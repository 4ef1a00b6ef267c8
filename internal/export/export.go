// Package export writes a tracked session as CSV, GeoJSON or JSON.
package export

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/shaunagostinho/dualtrack/internal/tracker"
)

// ErrNothingToExport is returned for sessions with fewer than two points.
// Callers decide whether to tell the user; it is not a tracking failure.
var ErrNothingToExport = errors.New("export: session has fewer than two points")

// MinPoints is the smallest session worth exporting.
const MinPoints = 2

// Format is an export file format.
type Format string

const (
	CSV     Format = "csv"
	GeoJSON Format = "geojson"
	JSON    Format = "json"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case CSV, GeoJSON, JSON:
		return f, nil
	}
	return "", fmt.Errorf("export: unknown format %q", s)
}

// ContentType returns the MIME type for f.
func (f Format) ContentType() string {
	switch f {
	case CSV:
		return "text/csv"
	case GeoJSON:
		return "application/geo+json"
	}
	return "application/json"
}

// Filename builds a download name for a session.
func (f Format) Filename(sessionID string) string {
	return fmt.Sprintf("dualtrack_%s.%s", sessionID, f)
}

// Write encodes points to w in format f.
func Write(w io.Writer, f Format, points []tracker.Point) error {
	if len(points) < MinPoints {
		return ErrNothingToExport
	}
	switch f {
	case CSV:
		return WriteCSV(w, points)
	case GeoJSON:
		return WriteGeoJSON(w, points)
	case JSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(points)
	}
	return fmt.Errorf("export: unknown format %q", f)
}

// CSVHeader is the column layout shared by exports and live recordings.
var CSVHeader = []string{"timestamp", "gps_lat", "gps_lng", "gps_accuracy", "dr_lat", "dr_lng"}

// timestampLayout is ISO 8601 with milliseconds.
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// CSVRow formats one point in CSVHeader order.
func CSVRow(p tracker.Point) []string {
	return []string{
		time.UnixMilli(p.GPS.Timestamp).UTC().Format(timestampLayout),
		strconv.FormatFloat(p.GPS.Latitude, 'f', -1, 64),
		strconv.FormatFloat(p.GPS.Longitude, 'f', -1, 64),
		strconv.FormatFloat(p.GPS.Accuracy, 'f', -1, 64),
		strconv.FormatFloat(p.DR.Latitude, 'f', -1, 64),
		strconv.FormatFloat(p.DR.Longitude, 'f', -1, 64),
	}
}

// WriteCSV writes the header and one row per point.
func WriteCSV(w io.Writer, points []tracker.Point) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}
	for _, p := range points {
		if err := cw.Write(CSVRow(p)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
