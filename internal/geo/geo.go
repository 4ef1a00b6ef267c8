// Package geo holds the small-distance geodesy used for dead reckoning and
// GPS/DR comparison.
package geo

import "math"

const (
	// EquatorialRadiusM is the WGS84 semi-major axis, used for DR projection.
	EquatorialRadiusM = 6378137.0
	// MeanRadiusM is the mean Earth radius, used for haversine distances.
	MeanRadiusM = 6371000.0
)

// Project moves (lat, lng) forward by meters along headingDeg (clockwise
// from north) using a first-order planar approximation. Valid for short
// steps only; it is not a great-circle solver.
func Project(lat, lng, meters, headingDeg float64) (float64, float64) {
	h := headingDeg * math.Pi / 180
	newLat := lat + (meters*math.Cos(h))/EquatorialRadiusM*(180/math.Pi)
	newLng := lng + (meters*math.Sin(h))/(EquatorialRadiusM*math.Cos(lat*math.Pi/180))*(180/math.Pi)
	return newLat, newLng
}

// HaversineM calculates the great-circle distance in meters between two
// lat/lon points.
func HaversineM(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return MeanRadiusM * c
}

// CorrectHeading converts a raw compass alpha (device frame, increasing
// counter-clockwise) and a calibration offset into a bearing clockwise from
// north in [0, 360).
func CorrectHeading(rawDeg, offsetDeg float64) float64 {
	h := math.Mod(360-rawDeg-offsetDeg+360, 360)
	if h < 0 {
		h += 360
	}
	// -0 and float rounding up to exactly 360
	if h >= 360 || h == 0 {
		return 0
	}
	return h
}

// NormalizeDeg maps any angle into [0, 360).
func NormalizeDeg(deg float64) float64 {
	d := math.Mod(deg, 360)
	if d < 0 {
		d += 360
	}
	if d >= 360 {
		return 0
	}
	return d
}
