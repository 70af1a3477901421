package services

import (
	"math"
	"sort"

	"github.com/username/quantfolio/backend/src/calculators"
	"github.com/username/quantfolio/backend/src/models"
	"github.com/username/quantfolio/backend/src/utils"
)

const (
	// Max drawdown is defined to represent this share of capital, so
	// capital = maxDrawdown / capitalDrawdownRatio.
	capitalDrawdownRatio = 0.20

	daysPerYear    = 365.25
	tradingDaysAnn = 252
)

type portfolioServiceImpl struct {
	targetDrawdown float64
}

func NewPortfolioService(targetDrawdown float64) PortfolioService {
	return &portfolioServiceImpl{targetDrawdown: targetDrawdown}
}

// Aggregate combines the selected strategies' normalized curves over the
// inclusive [startDate, endDate] window. Empty bounds leave that side open.
// Every degenerate window yields zeroed metrics, never NaN.
func (s *portfolioServiceImpl) Aggregate(strategies []models.StrategyRecord, startDate, endDate string) *models.PortfolioResult {
	result := &models.PortfolioResult{
		Curve: []models.ProfitCurvePoint{},
		Stats: models.PortfolioStats{StrategyCount: len(strategies)},
	}
	if len(strategies) == 0 {
		return result
	}

	combined := combineCurves(strategies)
	maxDrawdown := calculators.MaxDrawdown(combined)

	initialCapital := s.targetDrawdown * float64(len(strategies))
	if maxDrawdown > 0 {
		initialCapital = maxDrawdown / capitalDrawdownRatio
	}
	result.Stats.InitialCapital = utils.RoundFloat(initialCapital, 2)
	result.ForwardTestStartDate = earliestForwardStart(strategies)

	window := filterWindow(combined, startDate, endDate)
	result.Curve = window
	if len(window) == 0 {
		return result
	}

	s.computeWindowStats(&result.Stats, window, initialCapital)
	return result
}

// combineCurves walks the union of all curve dates carrying each strategy's
// last known cumulative profit forward, so a strategy without a point on a
// date keeps contributing its most recent value.
func combineCurves(strategies []models.StrategyRecord) []models.ProfitCurvePoint {
	dateSet := make(map[string]struct{})
	profitByDate := make([]map[string]float64, len(strategies))
	for i, strategy := range strategies {
		profitByDate[i] = make(map[string]float64, len(strategy.ProfitCurve))
		for _, point := range strategy.ProfitCurve {
			dateSet[point.Date] = struct{}{}
			profitByDate[i][point.Date] = point.Profit
		}
	}

	dates := make([]string, 0, len(dateSet))
	for date := range dateSet {
		dates = append(dates, date)
	}
	sort.Strings(dates)

	lastKnown := make([]float64, len(strategies))
	combined := make([]models.ProfitCurvePoint, 0, len(dates))
	for _, date := range dates {
		total := 0.0
		for i := range strategies {
			if profit, ok := profitByDate[i][date]; ok {
				lastKnown[i] = profit
			}
			total += lastKnown[i]
		}
		combined = append(combined, models.ProfitCurvePoint{
			Date:   date,
			Profit: utils.RoundFloat(total, 2),
		})
	}
	return calculators.CalculateDrawdowns(combined)
}

// filterWindow keeps points inside the inclusive range. Day keys sort
// lexicographically, so plain string comparison is enough.
func filterWindow(curve []models.ProfitCurvePoint, startDate, endDate string) []models.ProfitCurvePoint {
	window := make([]models.ProfitCurvePoint, 0, len(curve))
	for _, point := range curve {
		if startDate != "" && point.Date < startDate {
			continue
		}
		if endDate != "" && point.Date > endDate {
			continue
		}
		window = append(window, point)
	}
	return window
}

// computeWindowStats fills the ratio metrics for the filtered window. The
// drawdown peak resets to the window's start equity, so Max Drawdown % is
// window-relative, not global.
func (s *portfolioServiceImpl) computeWindowStats(stats *models.PortfolioStats, window []models.ProfitCurvePoint, initialCapital float64) {
	startEquity := initialCapital + window[0].Profit
	endEquity := initialCapital + window[len(window)-1].Profit

	stats.TotalProfit = utils.RoundFloat(window[len(window)-1].Profit-window[0].Profit, 2)
	if startEquity != 0 {
		stats.TotalProfitPercent = utils.RoundFloat((endEquity-startEquity)/startEquity*100, 2)
	}

	peak := startEquity
	maxDrawdown, maxDrawdownPct := 0.0, 0.0
	for _, point := range window {
		equity := initialCapital + point.Profit
		if equity > peak {
			peak = equity
		}
		drawdown := peak - equity
		if drawdown > maxDrawdown {
			maxDrawdown = drawdown
		}
		if peak > 0 {
			if pct := drawdown / peak * 100; pct > maxDrawdownPct {
				maxDrawdownPct = pct
			}
		}
	}
	stats.MaxDrawdown = utils.RoundFloat(maxDrawdown, 2)
	stats.MaxDrawdownPercent = utils.RoundFloat(maxDrawdownPct, 2)

	if len(window) < 2 {
		return
	}

	stats.AnnualizedReturn = annualizedReturn(stats.TotalProfitPercent, window[0].Date, window[len(window)-1].Date)
	if stats.MaxDrawdownPercent > 0 {
		stats.CalmarRatio = utils.RoundFloat(stats.AnnualizedReturn/stats.MaxDrawdownPercent, 2)
	}
	stats.SharpeRatio = dailySharpe(window, initialCapital)
}

// annualizedReturn converts the window's total return to CAGR. A single-day
// window reports the raw percentage with no extrapolation.
func annualizedReturn(totalProfitPct float64, firstDate, lastDate string) float64 {
	first := utils.ParseDayKey(firstDate)
	last := utils.ParseDayKey(lastDate)
	if first.IsZero() || last.IsZero() {
		return 0
	}
	years := last.Sub(first).Hours() / 24 / daysPerYear
	if years <= 0 {
		return totalProfitPct
	}

	growth := 1 + totalProfitPct/100
	if growth <= 0 {
		// Total loss or worse; CAGR is undefined.
		return 0
	}
	cagr := math.Pow(growth, 1/years) - 1
	return utils.RoundFloat(cagr*100, 2)
}

// dailySharpe annualizes the mean/stddev of day-over-day equity returns.
func dailySharpe(window []models.ProfitCurvePoint, initialCapital float64) float64 {
	returns := make([]float64, 0, len(window)-1)
	for i := 1; i < len(window); i++ {
		prev := initialCapital + window[i-1].Profit
		if prev == 0 {
			continue
		}
		current := initialCapital + window[i].Profit
		returns = append(returns, (current-prev)/prev)
	}
	if len(returns) < 2 {
		return 0
	}

	stddev := utils.StdDev(returns)
	if stddev == 0 {
		return 0
	}
	sharpe := utils.Mean(returns) / stddev * math.Sqrt(tradingDaysAnn)
	return utils.RoundFloat(sharpe, 2)
}

// earliestForwardStart returns the first forward-test start date among the
// selection, for the chart's backtest/forward divider.
func earliestForwardStart(strategies []models.StrategyRecord) string {
	earliest := ""
	for _, strategy := range strategies {
		if !strategy.HasForwardTest || strategy.ForwardTestStartDate == "" {
			continue
		}
		if earliest == "" || strategy.ForwardTestStartDate < earliest {
			earliest = strategy.ForwardTestStartDate
		}
	}
	return earliest
}
