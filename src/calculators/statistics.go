package calculators

import (
	"math"
	"sort"

	"github.com/username/quantfolio/backend/src/models"
	"github.com/username/quantfolio/backend/src/utils"
)

// BuildProfitCurve aggregates transactions into one point per calendar day
// holding the latest cumulative profit observed that day. Balance and credit
// adjustments are excluded from the running sum. The result is sorted by
// date ascending with drawdowns left at zero; see CalculateDrawdowns.
func BuildProfitCurve(transactions []models.Transaction) []models.ProfitCurvePoint {
	if len(transactions) == 0 {
		return nil
	}

	sorted := make([]models.Transaction, len(transactions))
	copy(sorted, transactions)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].OpenTime.Before(sorted[j].OpenTime)
	})

	dailyProfit := make(map[string]float64)
	var cumulative float64
	for _, tx := range sorted {
		if !tx.Type.IsTrade() {
			continue
		}
		cumulative += tx.Profit
		dailyProfit[utils.DayKey(tx.OpenTime)] = cumulative
	}

	days := make([]string, 0, len(dailyProfit))
	for day := range dailyProfit {
		days = append(days, day)
	}
	sort.Strings(days)

	curve := make([]models.ProfitCurvePoint, 0, len(days))
	for _, day := range days {
		curve = append(curve, models.ProfitCurvePoint{Date: day, Profit: dailyProfit[day]})
	}
	return curve
}

// CalculateDrawdowns fills in the drawdown of every curve point as the gap
// from the running profit peak. The peak starts at zero: a curve that never
// goes positive is entirely underwater.
func CalculateDrawdowns(curve []models.ProfitCurvePoint) []models.ProfitCurvePoint {
	if len(curve) == 0 {
		return nil
	}

	result := make([]models.ProfitCurvePoint, 0, len(curve))
	var peak float64
	for _, point := range curve {
		if point.Profit > peak {
			peak = point.Profit
		}
		result = append(result, models.ProfitCurvePoint{
			Date:     point.Date,
			Profit:   point.Profit,
			Drawdown: peak - point.Profit,
		})
	}
	return result
}

// MaxDrawdown returns the largest drawdown on a curve produced by
// CalculateDrawdowns.
func MaxDrawdown(curve []models.ProfitCurvePoint) float64 {
	var max float64
	for _, point := range curve {
		if point.Drawdown > max {
			max = point.Drawdown
		}
	}
	return max
}

// CalculateStatistics derives the full metric set from a transaction list.
// Only BUY/SELL rows count as trades; an empty trade list yields the all-zero
// record. initialBalance seeds the equity-relative drawdown percentage and
// the monthly Sharpe returns.
func CalculateStatistics(transactions []models.Transaction, initialBalance float64) models.CalculatedStatistics {
	var trades []models.Transaction
	for _, tx := range transactions {
		if tx.Type.IsTrade() {
			trades = append(trades, tx)
		}
	}

	if len(trades) == 0 {
		return models.CalculatedStatistics{}
	}

	var stats models.CalculatedStatistics
	var profitTrades, lossTrades []models.Transaction
	for _, tx := range trades {
		stats.TotalNetProfit += tx.Profit
		if tx.Profit > 0 {
			profitTrades = append(profitTrades, tx)
			stats.TotalGrossProfit += tx.Profit
		} else if tx.Profit < 0 {
			lossTrades = append(lossTrades, tx)
			stats.TotalGrossLoss += -tx.Profit
		}
	}

	// Profit factor degrades to the raw gross profit when there are no
	// losing trades; callers treat it as meaningless in that case.
	if stats.TotalGrossLoss > 0 {
		stats.ProfitFactor = stats.TotalGrossProfit / stats.TotalGrossLoss
	} else {
		stats.ProfitFactor = stats.TotalGrossProfit
	}

	stats.TotalTrades = len(trades)
	stats.ProfitTrades = len(profitTrades)
	stats.LossTrades = len(lossTrades)
	stats.ExpectedPayoff = stats.TotalNetProfit / float64(stats.TotalTrades)
	stats.WinRate = float64(stats.ProfitTrades) / float64(stats.TotalTrades) * 100

	// Drawdown comes off the profit curve built from the full transaction
	// set so the curve keeps its date completeness.
	curve := CalculateDrawdowns(BuildProfitCurve(transactions))
	stats.MaxDrawdown = MaxDrawdown(curve)
	stats.MaxDrawdownPercent = maxDrawdownPercent(curve, initialBalance)

	for _, tx := range profitTrades {
		if tx.Profit > stats.LargestProfitTrade {
			stats.LargestProfitTrade = tx.Profit
		}
	}
	for _, tx := range lossTrades {
		if -tx.Profit > stats.LargestLossTrade {
			stats.LargestLossTrade = -tx.Profit
		}
	}
	if len(profitTrades) > 0 {
		stats.AverageProfitTrade = stats.TotalGrossProfit / float64(len(profitTrades))
	}
	if len(lossTrades) > 0 {
		stats.AverageLossTrade = stats.TotalGrossLoss / float64(len(lossTrades))
	}

	trackStreaks(trades, &stats)
	stats.SharpeRatio = calculateSharpeRatio(trades, initialBalance)

	return stats
}

// maxDrawdownPercent walks the curve tracking peak equity
// (initialBalance + cumulative profit) and returns the largest
// (peak-equity)/peak gap in percent. This is deliberately a different figure
// from MaxDrawdown/initialBalance.
func maxDrawdownPercent(curve []models.ProfitCurvePoint, initialBalance float64) float64 {
	if len(curve) == 0 {
		return 0
	}
	peak := initialBalance
	var maxPct float64
	for _, point := range curve {
		equity := initialBalance + point.Profit
		if equity > peak {
			peak = equity
		}
		if peak > 0 {
			if pct := (peak - equity) / peak * 100; pct > maxPct {
				maxPct = pct
			}
		}
	}
	return maxPct
}

// trackStreaks fills the consecutive win/loss counters, both by count and by
// cumulative amount. A trade with exactly zero profit falls through both
// branches: it neither extends nor resets the current streak. Known quirk of
// the metric definition, kept as-is.
func trackStreaks(trades []models.Transaction, stats *models.CalculatedStatistics) {
	var winStreak, lossStreak int
	var profitStreak, lossAmount float64

	for _, trade := range trades {
		if trade.Profit > 0 {
			winStreak++
			lossStreak = 0
			profitStreak += trade.Profit
			lossAmount = 0

			if winStreak > stats.MaxConsecutiveWins {
				stats.MaxConsecutiveWins = winStreak
			}
			if profitStreak > stats.MaxConsecutiveProfit {
				stats.MaxConsecutiveProfit = profitStreak
			}
		} else if trade.Profit < 0 {
			lossStreak++
			winStreak = 0
			lossAmount += -trade.Profit
			profitStreak = 0

			if lossStreak > stats.MaxConsecutiveLosses {
				stats.MaxConsecutiveLosses = lossStreak
			}
			if lossAmount > stats.MaxConsecutiveLoss {
				stats.MaxConsecutiveLoss = lossAmount
			}
		}
	}
}

// calculateSharpeRatio annualizes the mean/stddev of monthly percentage
// returns (relative to initialBalance, zero risk-free rate). Fewer than two
// monthly buckets or zero variance yields 0.
func calculateSharpeRatio(trades []models.Transaction, initialBalance float64) float64 {
	if len(trades) == 0 || initialBalance == 0 {
		return 0
	}

	monthlyProfit := make(map[string]float64)
	var months []string
	for _, trade := range trades {
		key := utils.MonthKey(trade.OpenTime)
		if _, seen := monthlyProfit[key]; !seen {
			months = append(months, key)
		}
		monthlyProfit[key] += trade.Profit
	}

	returns := make([]float64, 0, len(months))
	for _, month := range months {
		returns = append(returns, monthlyProfit[month]/initialBalance*100)
	}

	if len(returns) < 2 {
		return 0
	}
	stdDev := utils.StdDev(returns)
	if stdDev == 0 {
		return 0
	}
	return utils.Mean(returns) / stdDev * math.Sqrt(12)
}

// NormalizeProfitCurve rescales every point so the observed max drawdown
// maps onto targetDrawdown. A zero observed drawdown or empty curve is
// returned unchanged; the scale factor is never a division by zero.
func NormalizeProfitCurve(curve []models.ProfitCurvePoint, maxDrawdown, targetDrawdown float64) []models.ProfitCurvePoint {
	if len(curve) == 0 || maxDrawdown == 0 {
		return curve
	}

	scaleFactor := targetDrawdown / maxDrawdown
	normalized := make([]models.ProfitCurvePoint, 0, len(curve))
	for _, point := range curve {
		normalized = append(normalized, models.ProfitCurvePoint{
			Date:     point.Date,
			Profit:   point.Profit * scaleFactor,
			Drawdown: point.Drawdown * scaleFactor,
		})
	}
	return normalized
}

// NormalizeStatistics linearly rescales every currency-denominated field.
// Ratios, percentages and trade counts are dimensionless and stay untouched.
func NormalizeStatistics(stats models.CalculatedStatistics, scaleFactor float64) models.CalculatedStatistics {
	scaled := stats
	scaled.TotalNetProfit = stats.TotalNetProfit * scaleFactor
	scaled.TotalGrossProfit = stats.TotalGrossProfit * scaleFactor
	scaled.TotalGrossLoss = stats.TotalGrossLoss * scaleFactor
	scaled.ExpectedPayoff = stats.ExpectedPayoff * scaleFactor
	scaled.MaxDrawdown = stats.MaxDrawdown * scaleFactor
	scaled.LargestProfitTrade = stats.LargestProfitTrade * scaleFactor
	scaled.LargestLossTrade = stats.LargestLossTrade * scaleFactor
	scaled.AverageProfitTrade = stats.AverageProfitTrade * scaleFactor
	scaled.AverageLossTrade = stats.AverageLossTrade * scaleFactor
	scaled.MaxConsecutiveProfit = stats.MaxConsecutiveProfit * scaleFactor
	scaled.MaxConsecutiveLoss = stats.MaxConsecutiveLoss * scaleFactor
	return scaled
}
