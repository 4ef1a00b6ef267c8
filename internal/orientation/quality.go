package orientation

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/stat"

	"github.com/shaunagostinho/dualtrack/internal/geo"
)

// Rating buckets for compass stability.
const (
	RatingUnknown = "unknown"
	RatingGood    = "good"
	RatingFair    = "fair"
	RatingPoor    = "poor"
)

const (
	goodStdDevDeg = 5.0
	fairStdDevDeg = 15.0
	minSamples    = 3
)

// Quality summarises the spread of recent compass headings.
type Quality struct {
	Samples   int     `json:"samples"`
	MeanDeg   float64 `json:"meanDeg"`   // circular mean
	StdDevDeg float64 `json:"stdDevDeg"` // circular standard deviation
	Rating    string  `json:"rating"`
}

// QualityMonitor keeps a sliding window of headings for quality scoring.
type QualityMonitor struct {
	mu     sync.Mutex
	window []float64
	next   int
	full   bool
}

// NewQualityMonitor creates a monitor over the last size samples.
func NewQualityMonitor(size int) *QualityMonitor {
	if size < minSamples {
		size = 50
	}
	return &QualityMonitor{window: make([]float64, size)}
}

// Add records a heading sample in degrees.
func (q *QualityMonitor) Add(deg float64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.window[q.next] = deg
	q.next = (q.next + 1) % len(q.window)
	if q.next == 0 {
		q.full = true
	}
}

// Quality scores the current window.
func (q *QualityMonitor) Quality() Quality {
	q.mu.Lock()
	n := q.next
	if q.full {
		n = len(q.window)
	}
	samples := make([]float64, n)
	copy(samples, q.window[:n])
	q.mu.Unlock()
	return Score(samples)
}

// Score rates headings (degrees) by circular standard deviation
// σ = sqrt(-2 ln R̄): good below 5°, fair below 15°, poor otherwise.
func Score(headings []float64) Quality {
	res := Quality{Samples: len(headings), Rating: RatingUnknown}
	if len(headings) < minSamples {
		return res
	}
	rad := make([]float64, len(headings))
	sines := make([]float64, len(headings))
	cosines := make([]float64, len(headings))
	for i, h := range headings {
		rad[i] = h * math.Pi / 180
		sines[i] = math.Sin(rad[i])
		cosines[i] = math.Cos(rad[i])
	}
	s, c := stat.Mean(sines, nil), stat.Mean(cosines, nil)
	rBar := math.Hypot(s, c)

	res.MeanDeg = geo.NormalizeDeg(stat.CircularMean(rad, nil) * 180 / math.Pi)
	switch {
	case rBar >= 1:
		res.StdDevDeg = 0
	case rBar < 1e-9:
		// Uniformly spread headings; keep the value finite for JSON.
		res.StdDevDeg = 180
	default:
		res.StdDevDeg = math.Min(180, math.Sqrt(-2*math.Log(rBar))*180/math.Pi)
	}

	switch {
	case res.StdDevDeg < goodStdDevDeg:
		res.Rating = RatingGood
	case res.StdDevDeg < fairStdDevDeg:
		res.Rating = RatingFair
	default:
		res.Rating = RatingPoor
	}
	return res
}
