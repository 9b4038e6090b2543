package ors

import (
	"math"

	"github.com/yanqian/cycleroute/internal/domain/planner"
	apperrors "github.com/yanqian/cycleroute/pkg/errors"
)

var surfaceClasses = map[int]planner.SurfaceType{
	1: planner.SurfacePaved, 3: planner.SurfacePaved, 4: planner.SurfacePaved,
	5: planner.SurfacePaved, 6: planner.SurfacePaved, 7: planner.SurfacePaved,
	14: planner.SurfacePaved, 18: planner.SurfacePaved,
	2: planner.SurfaceGravel, 8: planner.SurfaceGravel, 9: planner.SurfaceGravel, 10: planner.SurfaceGravel,
	11: planner.SurfaceDirt, 12: planner.SurfaceDirt, 13: planner.SurfaceDirt,
	15: planner.SurfaceDirt, 16: planner.SurfaceDirt, 17: planner.SurfaceDirt,
}

// chunk is a run of consecutive steps spanning way points [start, end].
type chunk struct {
	start, end int
	distanceM  float64
	durationS  float64
	ascentM    float64
	descentM   float64
	open       bool
}

func buildSegments(resp directionsResponse, prefs planner.RoutePreferences, targetKm float64) ([]planner.RouteSegment, error) {
	if len(resp.Features) == 0 || len(resp.Features[0].Geometry.Coordinates) == 0 {
		return nil, apperrors.Wrap(planner.CodeUpstreamUnavailable, "no route found in openrouteservice response", nil)
	}
	feature := resp.Features[0]
	raw := feature.Geometry.Coordinates

	coords := make([]planner.Coordinate, 0, len(raw))
	elevations := make([]float64, 0, len(raw))
	for _, p := range raw {
		if len(p) < 2 {
			return nil, apperrors.Wrap(planner.CodeUpstreamUnavailable, "malformed route geometry", nil)
		}
		coords = append(coords, planner.NewCoordinate(p[1], p[0]))
		if len(p) > 2 {
			elevations = append(elevations, p[2])
		}
	}
	if len(elevations) != len(coords) {
		elevations = nil
	}

	props := feature.Properties
	surfaces := props.Extras["surface"].Values
	fallback := planner.SurfacePaved
	if prefs.Difficulty == planner.DifficultyHard {
		fallback = planner.SurfaceGravel
	}

	chunks := splitSteps(props.Segments, len(coords)-1, targetKm*1000)
	if len(chunks) == 0 {
		return []planner.RouteSegment{{
			Coordinates:          coords,
			Elevations:           elevations,
			DistanceKm:           props.Summary.Distance / 1000,
			ElevationGainM:       props.Ascent,
			ElevationLossM:       props.Descent,
			EstimatedDurationMin: minutes(props.Summary.Duration),
			SurfaceType:          dominantSurface(surfaces, 0, len(coords)-1, fallback),
		}}, nil
	}

	out := make([]planner.RouteSegment, 0, len(chunks))
	for _, ch := range chunks {
		seg := planner.RouteSegment{
			Coordinates:          append([]planner.Coordinate(nil), coords[ch.start:ch.end+1]...),
			DistanceKm:           ch.distanceM / 1000,
			ElevationGainM:       ch.ascentM,
			ElevationLossM:       ch.descentM,
			EstimatedDurationMin: minutes(ch.durationS),
			SurfaceType:          dominantSurface(surfaces, ch.start, ch.end, fallback),
		}
		if elevations != nil {
			seg.Elevations = append([]float64(nil), elevations[ch.start:ch.end+1]...)
			seg.ElevationGainM, seg.ElevationLossM = planner.CalculateElevationStats(seg.Elevations)
		}
		out = append(out, seg)
	}
	return out, nil
}

// splitSteps groups steps until each chunk covers at least targetM. A
// trailing zero-length step (the arrival instruction) joins the previous
// chunk.
func splitSteps(segments []orsSegment, lastIndex int, targetM float64) []chunk {
	var (
		out     []chunk
		current chunk
	)
	for _, seg := range segments {
		for _, step := range seg.Steps {
			if len(step.WayPoints) < 2 {
				continue
			}
			from, to := clamp(step.WayPoints[0], lastIndex), clamp(step.WayPoints[1], lastIndex)
			if !current.open {
				current = chunk{start: from, end: from, open: true}
			}
			current.end = to
			current.distanceM += step.Distance
			current.durationS += step.Duration
			if seg.Distance > 0 {
				share := step.Distance / seg.Distance
				current.ascentM += seg.Ascent * share
				current.descentM += seg.Descent * share
			}
			if current.distanceM >= targetM {
				out = append(out, current)
				current = chunk{}
			}
		}
	}
	if current.open {
		if current.distanceM == 0 && len(out) > 0 {
			out[len(out)-1].end = current.end
		} else {
			out = append(out, current)
		}
	}
	return out
}

// dominantSurface returns the surface class covering the most way points
// of [start, end].
func dominantSurface(values [][]float64, start, end int, fallback planner.SurfaceType) planner.SurfaceType {
	weights := make(map[planner.SurfaceType]int)
	var pointHit planner.SurfaceType
	for _, v := range values {
		if len(v) < 3 {
			continue
		}
		from, to, code := int(v[0]), int(v[1]), int(v[2])
		class, ok := surfaceClasses[code]
		if !ok {
			continue
		}
		if from <= start && start <= to && pointHit == "" {
			pointHit = class
		}
		lo, hi := max(from, start), min(to, end)
		if hi > lo {
			weights[class] += hi - lo
		}
	}

	best, bestWeight := planner.SurfaceType(""), 0
	for _, class := range []planner.SurfaceType{planner.SurfacePaved, planner.SurfaceGravel, planner.SurfaceDirt} {
		if weights[class] > bestWeight {
			best, bestWeight = class, weights[class]
		}
	}
	switch {
	case best != "":
		return best
	case pointHit != "":
		return pointHit
	default:
		return fallback
	}
}

func minutes(seconds float64) int {
	return int(math.Round(seconds / 60))
}

func clamp(i, last int) int {
	if i < 0 {
		return 0
	}
	if i > last {
		return last
	}
	return i
}
