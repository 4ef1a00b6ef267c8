// Package nmea holds the NMEA 0183 framing shared by the GPS and compass
// providers: checksum validation, field splitting and coordinate/time parsing.
package nmea

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// Split splits a sentence into fields and strips the checksum suffix.
// The first field is the talker+type tag without the leading $.
func Split(line string) []string {
	// Strip checksum: everything after *
	if idx := strings.Index(line, "*"); idx >= 0 {
		line = line[:idx]
	}
	line = strings.TrimPrefix(line, "$")
	return strings.Split(line, ",")
}

// Type returns the sentence type without the two-letter talker ID,
// e.g. "RMC" for both $GPRMC and $GNRMC.
func Type(line string) string {
	line = strings.TrimPrefix(line, "$")
	if idx := strings.IndexAny(line, ",*"); idx >= 0 {
		line = line[:idx]
	}
	if len(line) < 5 {
		return ""
	}
	return line[2:]
}

// ValidChecksum checks the XOR checksum after *.
func ValidChecksum(line string) bool {
	if !strings.HasPrefix(line, "$") {
		return false
	}
	idx := strings.Index(line, "*")
	if idx < 0 || idx+3 > len(line) {
		return false
	}
	body := line[1:idx] // Between $ and *
	var calc byte
	for i := 0; i < len(body); i++ {
		calc ^= body[i]
	}
	expected, err := strconv.ParseUint(line[idx+1:idx+3], 16, 8)
	if err != nil {
		return false
	}
	return byte(expected) == calc
}

// Checksum returns the two-digit hex checksum for a sentence body
// (the text between $ and *).
func Checksum(body string) string {
	var calc byte
	for i := 0; i < len(body); i++ {
		calc ^= body[i]
	}
	return strings.ToUpper(strconv.FormatUint(uint64(calc)|0x100, 16)[1:])
}

// ParseCoord converts NMEA ddmm.mmmm format to decimal degrees.
func ParseCoord(raw, dir string) float64 {
	if raw == "" || dir == "" {
		return 0
	}
	val, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	deg := math.Floor(val / 100)
	min := val - deg*100
	result := deg + min/60

	if dir == "S" || dir == "W" {
		result = -result
	}
	return result
}

// ParseTime combines an RMC time (hhmmss.ss) and date (ddmmyy) into a UTC
// time. ok is false if either field is malformed.
func ParseTime(hms, dmy string) (t time.Time, ok bool) {
	if len(hms) < 6 || len(dmy) != 6 {
		return time.Time{}, false
	}
	hh, err1 := strconv.Atoi(hms[0:2])
	mm, err2 := strconv.Atoi(hms[2:4])
	secs, err3 := strconv.ParseFloat(hms[4:], 64)
	day, err4 := strconv.Atoi(dmy[0:2])
	mon, err5 := strconv.Atoi(dmy[2:4])
	yy, err6 := strconv.Atoi(dmy[4:6])
	for _, err := range []error{err1, err2, err3, err4, err5, err6} {
		if err != nil {
			return time.Time{}, false
		}
	}
	whole := math.Floor(secs)
	nanos := int(math.Round((secs - whole) * 1e9))
	return time.Date(2000+yy, time.Month(mon), day, hh, mm, int(whole), nanos, time.UTC), true
}
