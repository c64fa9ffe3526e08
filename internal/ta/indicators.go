package ta

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// SMA is the simple mean of values. Returns 0 for an empty slice.
func SMA(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// Returns converts a chronological close series into period-over-period
// returns. len(out) == len(closes)-1.
func Returns(closes []float64) []float64 {
	if len(closes) < 2 {
		return nil
	}
	out := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		prev := closes[i-1]
		if prev == 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, (closes[i]-prev)/prev)
	}
	return out
}

// Volatility is the population standard deviation of returns.
func Volatility(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	mean := stat.Mean(returns, nil)
	var variance float64
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(returns))
	if variance <= 0 {
		return 0
	}
	return math.Sqrt(variance)
}

// RSI computes the relative-strength index over the trailing window of a
// chronological close series using Wilder smoothing. Returns 50 (neutral)
// when the series is too short.
func RSI(closes []float64, period int) float64 {
	if period <= 0 || len(closes) <= period {
		return 50
	}

	var gainSum, lossSum float64
	for i := 1; i <= period; i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			gainSum += delta
		} else {
			lossSum -= delta
		}
	}
	avgGain := gainSum / float64(period)
	avgLoss := lossSum / float64(period)

	for i := period + 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		gain := math.Max(delta, 0)
		loss := math.Max(-delta, 0)
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}

	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}
