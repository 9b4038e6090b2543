package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/yanqian/cycleroute/internal/domain/planner"
)

// coordinatePrecision rounds to about 110 m, well inside a forecast grid cell.
const coordinatePrecision = 3

func roundedKey(lat, lng float64) string {
	return strconv.FormatFloat(lat, 'f', coordinatePrecision, 64) + "," +
		strconv.FormatFloat(lng, 'f', coordinatePrecision, 64)
}

// digest keeps keys short for routes with thousands of points.
func digest(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:16])
}

func locationsKey(locations []planner.Location) string {
	parts := make([]string, len(locations))
	for i, loc := range locations {
		parts[i] = roundedKey(loc.Lat, loc.Lng)
	}
	return digest(parts...)
}

func coordinatesKey(coords []planner.Coordinate) string {
	parts := make([]string, len(coords))
	for i, c := range coords {
		parts[i] = roundedKey(c.Lat(), c.Lng())
	}
	return digest(parts...)
}

// minuteKey keys route forecasts, whose sampled arrival hours depend on the
// exact departure.
func minuteKey(t time.Time) string {
	return t.UTC().Truncate(time.Minute).Format("200601021504")
}

func hourKey(t time.Time) string {
	return t.UTC().Truncate(time.Hour).Format("2006010215")
}
