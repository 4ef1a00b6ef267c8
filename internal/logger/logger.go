package logger

import (
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/shaunagostinho/dualtrack/internal/export"
	"github.com/shaunagostinho/dualtrack/internal/tracker"
)

// Logger records tracked points to CSV files, one file per session, with
// automatic rotation. It is a tracker.Sink.
type Logger struct {
	mu      sync.Mutex
	dir     string
	maxRows int
	enabled bool
	now     func() time.Time

	file    *os.File
	writer  *csv.Writer
	session string
	part    int
	rows    int
}

// Config holds logger configuration.
type Config struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
	MaxRows int    `yaml:"max_rows" json:"maxRows"`
}

const (
	defaultMaxRows = 100_000 // ~28 hrs at 1 Hz
)

// New creates a new Logger.
func New(cfg Config) *Logger {
	if cfg.Path == "" {
		cfg.Path = "/var/log/dualtrack"
	}
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = defaultMaxRows
	}
	return &Logger{
		dir:     cfg.Path,
		maxRows: cfg.MaxRows,
		enabled: cfg.Enabled,
		now:     time.Now,
	}
}

// SetEnabled allows toggling logging at runtime.
func (l *Logger) SetEnabled(on bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.enabled = on
	if !on && l.file != nil {
		l.closeFile()
	}
}

// IsEnabled returns whether logging is active.
func (l *Logger) IsEnabled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.enabled
}

// OnPoint appends p to the session's file.
func (l *Logger) OnPoint(sessionID string, p tracker.Point, _ tracker.Metrics) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.enabled {
		return
	}

	// Open/rotate file if needed
	if l.writer == nil || sessionID != l.session || l.rows >= l.maxRows {
		if err := l.rotateFile(sessionID); err != nil {
			log.Printf("[recorder] rotate failed: %v", err)
			return
		}
	}

	if err := l.writer.Write(export.CSVRow(p)); err != nil {
		log.Printf("[recorder] write failed: %v", err)
		return
	}
	l.writer.Flush()
	l.rows++
}

// Close flushes and closes the current log file.
func (l *Logger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closeFile()
}

func (l *Logger) rotateFile(sessionID string) error {
	l.closeFile()

	if sessionID != l.session {
		l.session = sessionID
		l.part = 0
	}
	l.part++

	if err := os.MkdirAll(l.dir, 0755); err != nil {
		return fmt.Errorf("mkdir %s: %w", l.dir, err)
	}

	filename := fmt.Sprintf("track_%s_%s_%03d.csv", l.now().Format("2006-01-02_150405"), sessionID, l.part)
	path := filepath.Join(l.dir, filename)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	l.file = f
	l.writer = csv.NewWriter(f)
	l.rows = 0

	// Write header
	if err := l.writer.Write(export.CSVHeader); err != nil {
		return err
	}
	l.writer.Flush()

	log.Printf("[recorder] opened %s", path)
	return nil
}

func (l *Logger) closeFile() {
	if l.writer != nil {
		l.writer.Flush()
		l.writer = nil
	}
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}
}
