package planner

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Prompt section headings, in emission order.
const (
	SectionRouteOverview   = "Route Overview"
	SectionPreferences     = "User Preferences"
	SectionElevation       = "Elevation Profile"
	SectionWeather         = "Weather Forecast"
	SectionSegments        = "Route Segments"
	SectionWarnings        = "Warnings"
	SectionGear            = "Recommended Gear"
	SectionAnalysisRequest = "Analysis Request"
)

const maxForecastLines = 5

// SummarizeRouteStats aggregates per-segment values. Totals are plain sums.
func SummarizeRouteStats(segments []RouteSegment) RouteStats {
	stats := RouteStats{
		NumSegments:         len(segments),
		SurfaceDistribution: make(map[SurfaceType]float64),
	}
	for _, seg := range segments {
		stats.TotalDistanceKm += seg.DistanceKm
		stats.TotalElevationGainM += seg.ElevationGainM
		stats.TotalElevationLossM += seg.ElevationLossM
		stats.TotalDurationMin += seg.EstimatedDurationMin
		stats.SurfaceDistribution[seg.SurfaceType] += seg.DistanceKm
	}
	return stats
}

// ContextInput is everything the analyzer serializes into a prompt.
type ContextInput struct {
	Origin           Location
	Destination      Location
	DepartureTime    time.Time
	Segments         []RouteSegment
	Forecasts        []WeatherForecast
	ElevationProfile []float64
	Preferences      RoutePreferences
	Warnings         []string
	Gear             []string
	Language         string
}

// RouteAnalyzer builds statistics and the narrative prompt. It performs no I/O.
type RouteAnalyzer struct{}

// NewRouteAnalyzer returns the analyzer.
func NewRouteAnalyzer() RouteAnalyzer {
	return RouteAnalyzer{}
}

// SummarizeRouteStats is the method form of the package function.
func (RouteAnalyzer) SummarizeRouteStats(segments []RouteSegment) RouteStats {
	return SummarizeRouteStats(segments)
}

// BuildContext renders the prompt. Section order is fixed.
func (RouteAnalyzer) BuildContext(in ContextInput) string {
	var b strings.Builder
	stats := SummarizeRouteStats(in.Segments)

	section(&b, SectionRouteOverview)
	fmt.Fprintf(&b, "- **Origin:** %s\n", in.Origin.Label())
	fmt.Fprintf(&b, "- **Destination:** %s\n", in.Destination.Label())
	if !in.DepartureTime.IsZero() {
		fmt.Fprintf(&b, "- **Departure:** %s UTC\n", in.DepartureTime.UTC().Format("2006-01-02 15:04"))
	}
	fmt.Fprintf(&b, "- **Total Distance:** %.1f km\n", stats.TotalDistanceKm)
	fmt.Fprintf(&b, "- **Total Elevation Gain:** %.0f m\n", stats.TotalElevationGainM)
	fmt.Fprintf(&b, "- **Total Elevation Loss:** %.0f m\n", stats.TotalElevationLossM)
	fmt.Fprintf(&b, "- **Estimated Duration:** %s\n", formatDuration(stats.TotalDurationMin))
	fmt.Fprintf(&b, "- **Segments:** %d\n", stats.NumSegments)
	if dist := formatSurfaces(stats); dist != "" {
		fmt.Fprintf(&b, "- **Surfaces:** %s\n", dist)
	}

	section(&b, SectionPreferences)
	fmt.Fprintf(&b, "- **Difficulty:** %s\n", in.Preferences.Difficulty)
	fmt.Fprintf(&b, "- **Avoid Traffic:** %s\n", yesNo(in.Preferences.AvoidTraffic))
	fmt.Fprintf(&b, "- **Prefer Scenic Routes:** %s\n", yesNo(in.Preferences.PreferScenic))
	if in.Preferences.MaxDistanceKm != nil {
		fmt.Fprintf(&b, "- **Max Distance:** %.1f km\n", *in.Preferences.MaxDistanceKm)
	}
	if in.Preferences.MaxElevationGainM != nil {
		fmt.Fprintf(&b, "- **Max Elevation Gain:** %.1f m\n", *in.Preferences.MaxElevationGainM)
	}

	section(&b, SectionElevation)
	writeElevation(&b, in.ElevationProfile, in.Segments)

	section(&b, SectionWeather)
	writeWeather(&b, in.Forecasts)

	section(&b, SectionSegments)
	for i, seg := range in.Segments {
		fmt.Fprintf(&b, "%d. %.1f km, +%.0f m / -%.0f m, %s, %s\n",
			i+1, seg.DistanceKm, seg.ElevationGainM, seg.ElevationLossM,
			formatDuration(seg.EstimatedDurationMin), seg.SurfaceType)
	}

	section(&b, SectionWarnings)
	writeList(&b, in.Warnings, "None")

	section(&b, SectionGear)
	writeList(&b, in.Gear, "Standard cycling gear")

	section(&b, SectionAnalysisRequest)
	language := strings.TrimSpace(in.Language)
	if language == "" {
		language = "English"
	}
	fmt.Fprintf(&b, "Using the data above, write practical advice for the cyclist in %s. Cover:\n", language)
	b.WriteString("1. **Overall Assessment**: difficulty relative to the stated preferences\n")
	b.WriteString("2. **Highlights**: scenic or notable stretches worth knowing about\n")
	b.WriteString("3. **Challenges**: climbs, surfaces and weather to prepare for\n")
	b.WriteString("4. **Timing Recommendations**: pacing, rest and resupply points\n")
	b.WriteString("5. **Safety Considerations**: wind, rain, temperature and traffic\n")
	b.WriteString("6. **Alternative Suggestions**: adjustments if conditions worsen\n")

	return b.String()
}

func section(b *strings.Builder, title string) {
	if b.Len() > 0 {
		b.WriteString("\n")
	}
	b.WriteString("## ")
	b.WriteString(title)
	b.WriteString("\n")
}

func writeElevation(b *strings.Builder, profile []float64, segments []RouteSegment) {
	if len(profile) == 0 {
		b.WriteString("No elevation data available\n")
		return
	}
	minE, maxE, sum := math.Inf(1), math.Inf(-1), 0.0
	for _, e := range profile {
		minE = math.Min(minE, e)
		maxE = math.Max(maxE, e)
		sum += e
	}
	fmt.Fprintf(b, "- **Minimum Elevation:** %.0f m\n", minE)
	fmt.Fprintf(b, "- **Maximum Elevation:** %.0f m\n", maxE)
	fmt.Fprintf(b, "- **Average Elevation:** %.0f m\n", sum/float64(len(profile)))
	if len(profile) > 1 {
		gain, loss := CalculateElevationStats(profile)
		fmt.Fprintf(b, "- **Profile Gain / Loss:** +%.0f m / -%.0f m\n", gain, loss)
	}

	steepest, gradient := -1, 0.0
	for i, seg := range segments {
		if seg.DistanceKm <= 0 {
			continue
		}
		if g := seg.ElevationGainM / (seg.DistanceKm * 1000); g > gradient {
			steepest, gradient = i, g
		}
	}
	if steepest >= 0 {
		fmt.Fprintf(b, "- **Steepest Climb:** segment %d, %.1f%% average gradient\n", steepest+1, gradient*100)
	}
}

func writeWeather(b *strings.Builder, forecasts []WeatherForecast) {
	if len(forecasts) == 0 {
		b.WriteString("No weather data available\n")
		return
	}
	w := summarizeWeather(forecasts)
	fmt.Fprintf(b, "- **Average Temperature:** %.1f°C\n", w.avgTemp)
	fmt.Fprintf(b, "- **Maximum Wind Speed:** %.1f m/s\n", w.maxWind)
	fmt.Fprintf(b, "- **Average Precipitation Probability:** %.0f%%\n", w.avgPrecip)

	var conditions []string
	seen := make(map[string]struct{})
	for _, f := range forecasts {
		if f.Description == "" {
			continue
		}
		if _, ok := seen[f.Description]; ok {
			continue
		}
		seen[f.Description] = struct{}{}
		conditions = append(conditions, f.Description)
	}
	if len(conditions) > 0 {
		fmt.Fprintf(b, "- **Expected Conditions:** %s\n", strings.Join(conditions, ", "))
	}

	for i, f := range forecasts {
		if i >= maxForecastLines {
			fmt.Fprintf(b, "- ...and %d more samples\n", len(forecasts)-maxForecastLines)
			break
		}
		fmt.Fprintf(b, "- %s: %s, %.1f°C, wind %.1f m/s, precipitation %.0f%%\n",
			f.Time.UTC().Format("15:04"), f.Description, f.Temperature, f.WindSpeed, f.PrecipitationProbability)
	}
}

func writeList(b *strings.Builder, items []string, empty string) {
	if len(items) == 0 {
		b.WriteString(empty)
		b.WriteString("\n")
		return
	}
	for _, item := range items {
		b.WriteString("- ")
		b.WriteString(item)
		b.WriteString("\n")
	}
}

func formatDuration(minutes int) string {
	return fmt.Sprintf("%dh %dm", minutes/60, minutes%60)
}

func formatSurfaces(stats RouteStats) string {
	var parts []string
	for _, surface := range []SurfaceType{SurfacePaved, SurfaceGravel, SurfaceDirt} {
		if km, ok := stats.SurfaceDistribution[surface]; ok && km > 0 {
			parts = append(parts, fmt.Sprintf("%s %.1f km", surface, km))
		}
	}
	return strings.Join(parts, ", ")
}

func yesNo(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}
