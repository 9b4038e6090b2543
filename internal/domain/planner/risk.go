package planner

import (
	"fmt"
	"math"

	apperrors "github.com/yanqian/cycleroute/pkg/errors"
)

// Risk thresholds. Weather and climb comparisons are strict.
const (
	StrongWindMS          = 10.0
	SevereWindMS          = 15.0
	RainLikelyPct         = 50.0
	HeavyRainPct          = 70.0
	ColdTemperatureC      = 5.0
	HotTemperatureC       = 35.0
	HardClimbM            = 2000.0
	ModerateClimbM        = 1000.0
	LongDistanceKm        = 100.0
	SteepGradient         = 0.08
	ThunderstormCode      = 95
	LongRideMinutes       = 180
	UnpavedMajorityPct    = 50.0
	UnpavedSignificantPct = 20.0
)

// Risk score weights. Each term is normalized to [0, 1] before weighting, so
// the weights sum to the maximum score.
const (
	WeightWind          = 25.0
	WeightPrecipitation = 25.0
	WeightClimb         = 30.0
	WeightTemperature   = 20.0

	windScaleMS       = 20.0
	climbScaleMPerKm  = 30.0
	temperatureScaleC = 15.0
)

var baseGear = []string{
	"Helmet",
	"Water bottles (at least 2)",
	"Repair kit (spare tube, tire levers, pump)",
	"Bike lights (front and rear)",
}

// RiskAssessor derives warnings, gear and a risk score. It performs no I/O.
type RiskAssessor struct{}

// NewRiskAssessor returns the assessor.
func NewRiskAssessor() RiskAssessor {
	return RiskAssessor{}
}

// Assess runs AssessRoute and RiskScore together.
func (r RiskAssessor) Assess(segments []RouteSegment, forecasts []WeatherForecast, prefs RoutePreferences) (RiskAssessment, error) {
	warnings, gear, err := r.AssessRoute(segments, forecasts, prefs)
	if err != nil {
		return RiskAssessment{}, err
	}
	score, err := r.RiskScore(segments, forecasts)
	if err != nil {
		return RiskAssessment{}, err
	}
	return RiskAssessment{Warnings: warnings, RecommendedGear: gear, RiskScore: score}, nil
}

// AssessRoute returns ordered warnings and a duplicate-free gear list.
func (RiskAssessor) AssessRoute(segments []RouteSegment, forecasts []WeatherForecast, prefs RoutePreferences) ([]string, []string, error) {
	if len(segments) == 0 {
		return nil, nil, apperrors.Wrap(CodeInvalidInput, "risk assessment requires at least one segment", nil)
	}
	a := &assessment{warnings: []string{}, gear: newGearList()}
	a.gear.add(baseGear...)

	stats := SummarizeRouteStats(segments)
	a.weather(forecasts)
	a.elevation(segments, stats, prefs)
	a.distance(stats)
	a.surface(stats)

	return a.warnings, a.gear.items, nil
}

// RiskScore combines peak wind, max precipitation probability, climb per
// kilometre and temperature extremity into a score in [0, 100]. The score is
// non-decreasing in each input.
func (RiskAssessor) RiskScore(segments []RouteSegment, forecasts []WeatherForecast) (float64, error) {
	if len(segments) == 0 {
		return 0, apperrors.Wrap(CodeInvalidInput, "risk score requires at least one segment", nil)
	}
	stats := SummarizeRouteStats(segments)

	score := WeightClimb * climbFactor(stats)
	if len(forecasts) > 0 {
		w := summarizeWeather(forecasts)
		score += WeightWind * clamp01(w.maxWind/windScaleMS)
		score += WeightPrecipitation * clamp01(w.maxPrecip/100)
		extremity := math.Max(0, math.Max(ColdTemperatureC-w.minTemp, w.maxTemp-HotTemperatureC))
		score += WeightTemperature * clamp01(extremity/temperatureScaleC)
	}
	score = math.Max(0, math.Min(100, score))
	return math.Round(score*10) / 10, nil
}

func climbFactor(stats RouteStats) float64 {
	if stats.TotalElevationGainM <= 0 {
		return 0
	}
	distance := math.Max(stats.TotalDistanceKm, 1)
	return clamp01(stats.TotalElevationGainM / distance / climbScaleMPerKm)
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

type weatherSummary struct {
	maxWind      float64
	avgWind      float64
	maxPrecip    float64
	avgPrecip    float64
	minTemp      float64
	maxTemp      float64
	avgTemp      float64
	thunderstorm bool
}

func summarizeWeather(forecasts []WeatherForecast) weatherSummary {
	s := weatherSummary{minTemp: math.Inf(1), maxTemp: math.Inf(-1)}
	for _, f := range forecasts {
		s.maxWind = math.Max(s.maxWind, f.WindSpeed)
		s.maxPrecip = math.Max(s.maxPrecip, f.PrecipitationProbability)
		s.minTemp = math.Min(s.minTemp, f.Temperature)
		s.maxTemp = math.Max(s.maxTemp, f.Temperature)
		s.avgWind += f.WindSpeed
		s.avgPrecip += f.PrecipitationProbability
		s.avgTemp += f.Temperature
		if f.WeatherCode >= ThunderstormCode {
			s.thunderstorm = true
		}
	}
	if n := float64(len(forecasts)); n > 0 {
		s.avgWind /= n
		s.avgPrecip /= n
		s.avgTemp /= n
	}
	return s
}

type assessment struct {
	warnings []string
	gear     *gearList
}

func (a *assessment) warn(format string, args ...any) {
	a.warnings = append(a.warnings, fmt.Sprintf(format, args...))
}

func (a *assessment) weather(forecasts []WeatherForecast) {
	if len(forecasts) == 0 {
		return
	}
	w := summarizeWeather(forecasts)

	if w.maxWind > StrongWindMS {
		if w.maxWind > SevereWindMS {
			a.warn("strong wind: up to %.1f m/s expected, consider postponing the ride", w.maxWind)
			a.gear.add("Windproof jacket", "Eye protection (glasses)")
		} else {
			a.warn("strong wind: up to %.1f m/s expected, crosswinds may affect stability", w.maxWind)
			a.gear.add("Windproof jacket")
		}
	}
	if w.maxPrecip > RainLikelyPct {
		a.warn("rain likely: %.0f%% chance of precipitation along the route", w.maxPrecip)
		a.gear.add("Packable rain jacket", "Waterproof bag for electronics")
		if w.maxPrecip > HeavyRainPct {
			a.gear.add("Waterproof shoe covers", "Fenders")
		}
	}
	if w.minTemp < ColdTemperatureC {
		a.warn("extreme temperature: as low as %.1f°C, dress in layers and protect extremities", w.minTemp)
		a.gear.add("Thermal layers", "Insulated gloves", "Leg warmers or tights")
	}
	if w.maxTemp > HotTemperatureC {
		a.warn("extreme temperature: up to %.1f°C, start early and drink often", w.maxTemp)
		a.gear.add("Extra hydration", "Sunscreen (SPF 30+)", "Electrolyte drink mix")
	}
	if w.thunderstorm {
		a.warn("thunderstorms possible: avoid riding during storms")
	}
}

func (a *assessment) elevation(segments []RouteSegment, stats RouteStats, prefs RoutePreferences) {
	gain := stats.TotalElevationGainM

	if prefs.MaxElevationGainM != nil && gain > *prefs.MaxElevationGainM {
		a.warn("elevation gain %.0f m exceeds your %.0f m limit", gain, *prefs.MaxElevationGainM)
	}

	switch {
	case gain > HardClimbM:
		a.warn("hard climbing: %.0f m of total elevation gain, suited to experienced riders", gain)
		a.gear.add("Extra energy gels or bars", "Electrolyte supplements")
		if prefs.Difficulty == DifficultyEasy || prefs.Difficulty == DifficultyModerate {
			a.warn("difficulty mismatch: route is harder than the requested %s difficulty", prefs.Difficulty)
		}
	case gain > ModerateClimbM:
		a.warn("sustained climbing: %.0f m of total elevation gain, keep a steady pace", gain)
		a.gear.add("Energy bars or snacks")
	}

	steepest, gradient := -1, 0.0
	for i, seg := range segments {
		if seg.DistanceKm <= 0 {
			continue
		}
		g := seg.ElevationGainM / (seg.DistanceKm * 1000)
		if g > SteepGradient && g > gradient {
			steepest, gradient = i, g
		}
	}
	if steepest >= 0 {
		a.warn("steep climb in segment %d: %.1f%% average gradient, consider lower gearing", steepest+1, gradient*100)
	}
}

func (a *assessment) distance(stats RouteStats) {
	if stats.TotalDistanceKm >= LongDistanceKm {
		a.warn("long distance: %.1f km, plan rest stops and resupply", stats.TotalDistanceKm)
		a.gear.add("Portable phone charger", "Emergency cash or card")
	}
	if stats.TotalDurationMin > LongRideMinutes {
		a.gear.add("Chamois cream")
	}
}

func (a *assessment) surface(stats RouteStats) {
	if stats.TotalDistanceKm <= 0 {
		return
	}
	unpaved := stats.SurfaceDistribution[SurfaceGravel] + stats.SurfaceDistribution[SurfaceDirt]
	pct := unpaved / stats.TotalDistanceKm * 100
	switch {
	case pct > UnpavedMajorityPct:
		a.warn("mostly unpaved: %.0f%% of the route, a gravel or mountain bike is recommended", pct)
		a.gear.add("Wide or gravel tires", "Extra spare tube")
	case pct > UnpavedSignificantPct:
		a.warn("unpaved sections: %.0f%% of the route, check tires suit mixed terrain", pct)
		a.gear.add("All-terrain tires")
	}
}

type gearList struct {
	items []string
	seen  map[string]struct{}
}

func newGearList() *gearList {
	return &gearList{items: []string{}, seen: make(map[string]struct{})}
}

func (g *gearList) add(items ...string) {
	for _, item := range items {
		if _, ok := g.seen[item]; ok {
			continue
		}
		g.seen[item] = struct{}{}
		g.items = append(g.items, item)
	}
}
