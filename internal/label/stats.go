package label

import "math"

// ClassStats summarizes a classification label set: class balance plus,
// when realized returns are supplied, the hit rate per class. Used for
// sanity-checking label quality, not part of the labeling contract.
type ClassStats struct {
	Total   int     `json:"total"`
	BuyPct  float64 `json:"buy_pct"`
	SellPct float64 `json:"sell_pct"`
	HoldPct float64 `json:"hold_pct"`

	// Hit rates are NaN-free only when realized returns were provided
	BuyHitRate  float64 `json:"buy_hit_rate"`
	SellHitRate float64 `json:"sell_hit_rate"`
}

// ComputeClassStats computes class distribution and, when realized is
// non-nil (same length as labels), per-class hit rates: the fraction of BUY
// labels whose realized return was positive and SELL labels whose realized
// return was negative.
func ComputeClassStats(labels []ClassLabel, realized []float64) ClassStats {
	stats := ClassStats{Total: len(labels)}
	if len(labels) == 0 {
		return stats
	}

	var buys, sells, holds int
	var buyHits, sellHits int
	for i, l := range labels {
		switch l.Label {
		case 1:
			buys++
			if realized != nil && realized[i] > 0 {
				buyHits++
			}
		case -1:
			sells++
			if realized != nil && realized[i] < 0 {
				sellHits++
			}
		default:
			holds++
		}
	}

	n := float64(len(labels))
	stats.BuyPct = float64(buys) / n * 100
	stats.SellPct = float64(sells) / n * 100
	stats.HoldPct = float64(holds) / n * 100

	if realized != nil && buys > 0 {
		stats.BuyHitRate = float64(buyHits) / float64(buys)
	}
	if realized != nil && sells > 0 {
		stats.SellHitRate = float64(sellHits) / float64(sells)
	}
	return stats
}

// RegStats summarizes a regression label set.
type RegStats struct {
	Total             int     `json:"total"`
	MeanBps           float64 `json:"mean_bps"`
	StdBps            float64 `json:"std_bps"`
	MedianBps         float64 `json:"median_bps"`
	ClippedLowerPct   float64 `json:"clipped_lower_pct"`
	ClippedUpperPct   float64 `json:"clipped_upper_pct"`
	MeanCostImpactBps float64 `json:"mean_cost_impact_bps"`
}

// ComputeRegStats computes distribution statistics and clipping/cost
// diagnostics for a regression label set.
func ComputeRegStats(labels []RegLabel) RegStats {
	stats := RegStats{Total: len(labels)}
	if len(labels) == 0 {
		return stats
	}

	values := make([]float64, len(labels))
	var sum, costImpact float64
	var clippedLow, clippedHigh int
	for i, l := range labels {
		values[i] = l.LabelBps
		sum += l.LabelBps
		costImpact += math.Abs(l.CostAdjustedBps - l.ClippedReturnBps)
		if l.ClippedReturnBps > l.RawReturnBps {
			clippedLow++
		} else if l.ClippedReturnBps < l.RawReturnBps {
			clippedHigh++
		}
	}

	n := float64(len(labels))
	stats.MeanBps = sum / n

	var variance float64
	for _, v := range values {
		d := v - stats.MeanBps
		variance += d * d
	}
	if len(values) > 1 {
		variance /= n - 1
	}
	stats.StdBps = math.Sqrt(variance)
	stats.MedianBps = Percentile(values, 50)
	stats.ClippedLowerPct = float64(clippedLow) / n * 100
	stats.ClippedUpperPct = float64(clippedHigh) / n * 100
	stats.MeanCostImpactBps = costImpact / n
	return stats
}
