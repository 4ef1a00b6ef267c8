package logger

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/shaunagostinho/dualtrack/internal/gps"
	"github.com/shaunagostinho/dualtrack/internal/tracker"
)

func point(ts int64) tracker.Point {
	return tracker.Point{
		GPS: gps.Fix{Latitude: 1, Longitude: 2, Accuracy: 3, Timestamp: ts},
		DR:  tracker.DeadReckoning{Latitude: 1, Longitude: 2, Timestamp: ts},
	}
}

func readDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	return rows
}

func TestDisabledWritesNothing(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "rec")
	l := New(Config{Path: dir})
	l.OnPoint("s1", point(1), tracker.Metrics{})
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatalf("disabled logger created %s", dir)
	}
}

func TestRotationPerSessionAndSize(t *testing.T) {
	dir := t.TempDir()
	l := New(Config{Enabled: true, Path: dir, MaxRows: 2})
	defer l.Close()

	for i := int64(0); i < 3; i++ {
		l.OnPoint("a", point(i), tracker.Metrics{})
	}
	l.OnPoint("b", point(10), tracker.Metrics{})
	l.Close()

	names := readDir(t, dir)
	if len(names) != 3 {
		t.Fatalf("files = %v, want 3", names)
	}
	rows := readCSV(t, filepath.Join(dir, names[0]))
	if len(rows) != 3 || rows[0][0] != "timestamp" {
		t.Fatalf("first file rows = %v", rows)
	}
}

func TestSetEnabled(t *testing.T) {
	dir := t.TempDir()
	l := New(Config{Path: dir})
	if l.IsEnabled() {
		t.Fatal("should start disabled")
	}
	l.SetEnabled(true)
	l.OnPoint("s", point(1), tracker.Metrics{})
	l.SetEnabled(false)
	l.OnPoint("s", point(2), tracker.Metrics{})

	names := readDir(t, dir)
	if len(names) != 1 {
		t.Fatalf("files = %v", names)
	}
	if rows := readCSV(t, filepath.Join(dir, names[0])); len(rows) != 2 {
		t.Fatalf("rows = %v", rows)
	}
}
