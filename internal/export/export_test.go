package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"testing"

	"github.com/shaunagostinho/dualtrack/internal/gps"
	"github.com/shaunagostinho/dualtrack/internal/tracker"
)

func samplePoints() []tracker.Point {
	return []tracker.Point{
		{
			GPS: gps.Fix{Latitude: 43.65, Longitude: -79.38, Accuracy: 4, Timestamp: 1_760_000_000_000},
			DR:  tracker.DeadReckoning{Latitude: 43.65, Longitude: -79.38, Timestamp: 1_760_000_000_000},
		},
		{
			GPS: gps.Fix{Latitude: 43.6501, Longitude: -79.3802, Accuracy: 6.5, Timestamp: 1_760_000_001_250},
			DR:  tracker.DeadReckoning{Latitude: 43.65009, Longitude: -79.38, Timestamp: 1_760_000_001_250},
		},
	}
}

func TestShortSessions(t *testing.T) {
	for _, n := range []int{0, 1} {
		var buf bytes.Buffer
		err := Write(&buf, CSV, samplePoints()[:n])
		if !errors.Is(err, ErrNothingToExport) {
			t.Fatalf("%d points: err = %v", n, err)
		}
		if buf.Len() != 0 {
			t.Fatalf("%d points: wrote %q", n, buf.String())
		}
	}
}

func TestCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, CSV, samplePoints()); err != nil {
		t.Fatal(err)
	}
	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d", len(rows))
	}
	want := []string{"timestamp", "gps_lat", "gps_lng", "gps_accuracy", "dr_lat", "dr_lng"}
	for i, h := range want {
		if rows[0][i] != h {
			t.Fatalf("header = %v", rows[0])
		}
	}
	got := rows[2]
	if got[0] != "2025-10-09T08:53:21.250Z" {
		t.Fatalf("timestamp = %q", got[0])
	}
	if got[1] != "43.6501" || got[2] != "-79.3802" || got[3] != "6.5" || got[4] != "43.65009" || got[5] != "-79.38" {
		t.Fatalf("row = %v", got)
	}
}

func TestGeoJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, GeoJSON, samplePoints()); err != nil {
		t.Fatal(err)
	}
	var fc struct {
		Type     string `json:"type"`
		Features []struct {
			Properties map[string]string `json:"properties"`
			Geometry   struct {
				Type        string      `json:"type"`
				Coordinates [][]float64 `json:"coordinates"`
			} `json:"geometry"`
		} `json:"features"`
	}
	if err := json.Unmarshal(buf.Bytes(), &fc); err != nil {
		t.Fatal(err)
	}
	if fc.Type != "FeatureCollection" || len(fc.Features) != 2 {
		t.Fatalf("collection = %+v", fc)
	}
	if fc.Features[0].Properties["source"] != "gps" || fc.Features[1].Properties["source"] != "deadReckoning" {
		t.Fatalf("sources = %v / %v", fc.Features[0].Properties, fc.Features[1].Properties)
	}
	line := fc.Features[1].Geometry
	if line.Type != "LineString" || len(line.Coordinates) != 2 {
		t.Fatalf("dr geometry = %+v", line)
	}
	// GeoJSON positions are [lng, lat].
	if line.Coordinates[1][0] != -79.38 || line.Coordinates[1][1] != 43.65009 {
		t.Fatalf("dr position = %v", line.Coordinates[1])
	}
}

func TestJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, JSON, samplePoints()); err != nil {
		t.Fatal(err)
	}
	var pts []tracker.Point
	if err := json.Unmarshal(buf.Bytes(), &pts); err != nil {
		t.Fatal(err)
	}
	if len(pts) != 2 || pts[1].GPS.Accuracy != 6.5 {
		t.Fatalf("points = %+v", pts)
	}
}

func TestParseFormat(t *testing.T) {
	for _, s := range []string{"csv", "geojson", "json"} {
		f, err := ParseFormat(s)
		if err != nil || string(f) != s {
			t.Fatalf("ParseFormat(%q) = %v, %v", s, f, err)
		}
	}
	if _, err := ParseFormat("kml"); err == nil {
		t.Fatal("kml should be rejected")
	}
	if GeoJSON.ContentType() != "application/geo+json" || CSV.Filename("abc") != "dualtrack_abc.csv" {
		t.Fatal("format helpers")
	}
}
