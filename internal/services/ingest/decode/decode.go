// Package decode turns raw canvas CSV fields into typed values.
// Every failure is a *perr.Error with one of the Malformed* codes
package decode

import (
	"strconv"
	"strings"
	"time"

	perr "rplace/internal/platform/errors"
	"rplace/internal/services/ingest/domain"
)

const (
	dateTime = "2006-01-02 15:04:05"
	maxFrac  = 6 // postgres timestamp keeps microseconds
)

// layouts accepted after the UTC suffix has been handled
var offsetLayouts = []string{
	dateTime + "Z07:00",
	dateTime + " Z07:00",
	dateTime + " -0700",
}

// Timestamp parses "YYYY-MM-DD HH:MM:SS[.fraction] UTC" or the same with an
// explicit offset ("+HH:MM", "+HHMM", "Z"). The result is in UTC
func Timestamp(s string) (time.Time, error) {
	if err := checkShape(s); err != nil {
		return time.Time{}, err
	}
	if body, ok := strings.CutSuffix(s, " UTC"); ok {
		t, err := time.ParseInLocation(dateTime, body, time.UTC)
		if err != nil {
			return time.Time{}, malformedTimestamp(s, err)
		}
		return t, nil
	}
	var last error
	for _, l := range offsetLayouts {
		t, err := time.Parse(l, s)
		if err == nil {
			return t.UTC(), nil
		}
		last = err
	}
	return time.Time{}, malformedTimestamp(s, last)
}

// checkShape pins the fixed width "YYYY-MM-DD HH:MM:SS" prefix and the fraction
// length; time.Parse alone accepts one digit hours and truncates long fractions
func checkShape(s string) error {
	if len(s) < len(dateTime) {
		return shapeError(s, "want YYYY-MM-DD HH:MM:SS")
	}
	for i := 0; i < len(dateTime); i++ {
		want := dateTime[i]
		switch c := s[i]; {
		case want >= '0' && want <= '9':
			if c < '0' || c > '9' {
				return shapeError(s, "want YYYY-MM-DD HH:MM:SS")
			}
		case c != want:
			return shapeError(s, "want YYYY-MM-DD HH:MM:SS")
		}
	}
	rest := s[len(dateTime):]
	if !strings.HasPrefix(rest, ".") {
		return nil
	}
	n := 0
	for n+1 < len(rest) && rest[n+1] >= '0' && rest[n+1] <= '9' {
		n++
	}
	if n == 0 || n > maxFrac {
		return shapeError(s, "fraction must have 1 to "+strconv.Itoa(maxFrac)+" digits")
	}
	return nil
}

func shapeError(s, why string) error {
	return perr.WithField(perr.Newf(perr.ErrorCodeMalformedTimestamp, "timestamp %q: %s", s, why), "timestamp")
}

func malformedTimestamp(s string, cause error) error {
	return perr.WithField(perr.Wrapf(cause, perr.ErrorCodeMalformedTimestamp, "timestamp %q", s), "timestamp")
}

// Color parses "#RRGGBB" into its 24 bit value
func Color(s string) (int32, error) {
	hex, ok := strings.CutPrefix(s, "#")
	if !ok || len(hex) == 0 || len(hex) > 6 {
		return 0, malformedColor(s, nil)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return 0, malformedColor(s, err)
	}
	return int32(v), nil
}

func malformedColor(s string, cause error) error {
	var err error
	if cause != nil {
		err = perr.Wrapf(cause, perr.ErrorCodeMalformedColor, "color %q", s)
	} else {
		err = perr.Newf(perr.ErrorCodeMalformedColor, "color %q: want # and up to 6 hex digits", s)
	}
	return perr.WithField(err, "pixel_color")
}

var brackets = map[byte]byte{'[': ']', '(': ')', '{': '}'}

// Coordinates parses "x,y" or "x1,y1,x2,y2", optionally wrapped in one pair of brackets
func Coordinates(s string) (domain.Placement, error) {
	body := strings.TrimSpace(s)
	if len(body) >= 2 {
		if closer, ok := brackets[body[0]]; ok && body[len(body)-1] == closer {
			body = body[1 : len(body)-1]
		}
	}

	parts := strings.Split(body, ",")
	if len(parts) != 2 && len(parts) != 4 {
		return domain.Placement{}, perr.WithField(perr.Newf(perr.ErrorCodeMalformedCoordinates,
			"coordinate %q: want 2 or 4 integers, got %d values", s, len(parts)), "coordinate")
	}

	vals := make([]int32, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseInt(strings.TrimSpace(p), 10, 32)
		if err != nil {
			return domain.Placement{}, perr.WithField(perr.Wrapf(err, perr.ErrorCodeMalformedCoordinates,
				"coordinate %q: value %d", s, i), "coordinate")
		}
		vals[i] = int32(v)
	}

	pl := domain.Placement{X1: vals[0], Y1: vals[1]}
	if len(vals) == 4 {
		pl.X2, pl.Y2 = &vals[2], &vals[3]
	}
	return pl, nil
}

// Pixel decodes timestamp, color and coordinate of rec in that order.
// ID and UserID are left for the caller; errors carry the record ordinal and raw line
func Pixel(rec domain.Record) (domain.Pixel, error) {
	at, err := Timestamp(rec.Timestamp)
	if err != nil {
		return domain.Pixel{}, perr.WithRecord(err, rec.Ordinal, rec.Raw())
	}
	color, err := Color(rec.Color)
	if err != nil {
		return domain.Pixel{}, perr.WithRecord(err, rec.Ordinal, rec.Raw())
	}
	pl, err := Coordinates(rec.Coordinate)
	if err != nil {
		return domain.Pixel{}, perr.WithRecord(err, rec.Ordinal, rec.Raw())
	}
	return domain.Pixel{At: at, Color: color, Placement: pl}, nil
}
