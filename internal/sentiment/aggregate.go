package sentiment

import (
	"fmt"
	"math"
	"strings"

	"agent-arena/internal/domain"
)

// sourceWeights are the prior reliabilities of each signal source. The
// effective weight of a reading is its prior scaled by the reading's
// own confidence.
var sourceWeights = map[domain.SourceKind]float64{
	domain.SourceSocial:    0.35,
	domain.SourceNews:      0.35,
	domain.SourceTechnical: 0.20,
	domain.SourceVolume:    0.10,
}

const unknownSourceWeight = 0.1

// Aggregate combines the available readings for a symbol into one
// composite score. It is total: with no readings it degrades to a
// neutral low-confidence fallback rather than failing, so a symbol
// always gets a sentiment.
func Aggregate(symbol string, readings []domain.SignalReading) domain.AggregatedSentiment {
	if len(readings) == 0 {
		readings = []domain.SignalReading{neutralFallback()}
	}

	var weightedSum, totalWeight float64
	details := make([]string, 0, len(readings))
	for _, r := range readings {
		prior, ok := sourceWeights[r.Source]
		if !ok {
			prior = unknownSourceWeight
		}
		weight := prior * r.Confidence
		weightedSum += r.Score * weight
		totalWeight += weight
		details = append(details, fmt.Sprintf("%s: %.3f (%d pts)", r.Source, r.Score, r.DataPoints))
	}

	score := 0.5
	if totalWeight > 0 {
		score = weightedSum / totalWeight
	}

	return domain.AggregatedSentiment{
		Symbol:     symbol,
		Score:      clamp(score, 0, 1),
		Confidence: math.Min(totalWeight, 1.0),
		Readings:   readings,
		Rationale: fmt.Sprintf("Weighted average from %d sources: %s",
			len(readings), strings.Join(details, ", ")),
	}
}

func neutralFallback() domain.SignalReading {
	return domain.SignalReading{
		Source:     domain.SourceFallback,
		Score:      0.5,
		Confidence: 0.1,
		DataPoints: 0,
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
