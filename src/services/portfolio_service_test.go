package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/username/quantfolio/backend/src/models"
)

func strategyWithCurve(magic int, points ...models.ProfitCurvePoint) models.StrategyRecord {
	return models.StrategyRecord{
		MagicNumber: magic,
		ProfitCurve: points,
	}
}

func point(date string, profit float64) models.ProfitCurvePoint {
	return models.ProfitCurvePoint{Date: date, Profit: profit}
}

func TestAggregateEmptySelection(t *testing.T) {
	t.Parallel()

	result := NewPortfolioService(1000).Aggregate(nil, "", "")

	assert.Empty(t, result.Curve)
	assert.Zero(t, result.Stats.StrategyCount)
	assert.Zero(t, result.Stats.TotalProfit)
	assert.Zero(t, result.Stats.SharpeRatio)
}

func TestAggregateCarryForwardUnion(t *testing.T) {
	t.Parallel()

	strategies := []models.StrategyRecord{
		strategyWithCurve(1, point("2024-01-01", 100), point("2024-01-03", 200)),
		strategyWithCurve(2, point("2024-01-02", 50), point("2024-01-03", 30)),
	}

	result := NewPortfolioService(1000).Aggregate(strategies, "", "")

	// Strategy 1 contributes its last known 100 on Jan 2; strategy 2
	// contributes 0 until its first point.
	require.Len(t, result.Curve, 3)
	assert.InDelta(t, 100.0, result.Curve[0].Profit, 0.01)
	assert.InDelta(t, 150.0, result.Curve[1].Profit, 0.01)
	assert.InDelta(t, 230.0, result.Curve[2].Profit, 0.01)

	// No drawdown, so capital falls back to targetDrawdown x count.
	assert.InDelta(t, 2000.0, result.Stats.InitialCapital, 0.01)
	assert.Equal(t, 2, result.Stats.StrategyCount)
	assert.InDelta(t, 130.0, result.Stats.TotalProfit, 0.01)
	assert.InDelta(t, 6.19, result.Stats.TotalProfitPercent, 0.01)
	assert.Zero(t, result.Stats.MaxDrawdown)
	assert.Zero(t, result.Stats.CalmarRatio)
	assert.InDelta(t, 72.29, result.Stats.SharpeRatio, 0.02)
	assert.Greater(t, result.Stats.AnnualizedReturn, 0.0)
}

func TestAggregateWindowRelativeDrawdown(t *testing.T) {
	t.Parallel()

	strategies := []models.StrategyRecord{
		strategyWithCurve(1,
			point("2024-01-01", 100),
			point("2024-01-02", -50),
			point("2024-01-03", 80),
		),
	}

	result := NewPortfolioService(1000).Aggregate(strategies, "", "")

	// Global max drawdown 150 implies capital 150/0.20 = 750.
	assert.InDelta(t, 750.0, result.Stats.InitialCapital, 0.01)
	assert.InDelta(t, 150.0, result.Stats.MaxDrawdown, 0.01)
	assert.InDelta(t, 17.65, result.Stats.MaxDrawdownPercent, 0.01)
	assert.InDelta(t, -20.0, result.Stats.TotalProfit, 0.01)
	assert.InDelta(t, -2.35, result.Stats.TotalProfitPercent, 0.01)
}

func TestAggregateDateWindowFilter(t *testing.T) {
	t.Parallel()

	strategies := []models.StrategyRecord{
		strategyWithCurve(1,
			point("2024-01-01", 100),
			point("2024-01-02", 150),
			point("2024-01-03", 200),
		),
	}

	result := NewPortfolioService(1000).Aggregate(strategies, "2024-01-02", "2024-01-03")

	require.Len(t, result.Curve, 2)
	assert.Equal(t, "2024-01-02", result.Curve[0].Date)
	assert.InDelta(t, 50.0, result.Stats.TotalProfit, 0.01)
}

func TestAggregateSinglePointWindowZeroesRatios(t *testing.T) {
	t.Parallel()

	strategies := []models.StrategyRecord{
		strategyWithCurve(1,
			point("2024-01-01", 100),
			point("2024-01-02", 150),
		),
	}

	result := NewPortfolioService(1000).Aggregate(strategies, "2024-01-02", "2024-01-02")

	require.Len(t, result.Curve, 1)
	assert.Zero(t, result.Stats.TotalProfit)
	assert.Zero(t, result.Stats.TotalProfitPercent)
	assert.Zero(t, result.Stats.AnnualizedReturn)
	assert.Zero(t, result.Stats.SharpeRatio)
	assert.Zero(t, result.Stats.CalmarRatio)
}

func TestAggregateEmptyWindow(t *testing.T) {
	t.Parallel()

	strategies := []models.StrategyRecord{
		strategyWithCurve(1, point("2024-01-01", 100)),
	}

	result := NewPortfolioService(1000).Aggregate(strategies, "2025-01-01", "2025-12-31")

	assert.Empty(t, result.Curve)
	assert.Zero(t, result.Stats.TotalProfit)
	assert.Equal(t, 1, result.Stats.StrategyCount)
	assert.Greater(t, result.Stats.InitialCapital, 0.0)
}

func TestAggregateForwardStartMarker(t *testing.T) {
	t.Parallel()

	withForward := strategyWithCurve(1, point("2024-01-01", 10))
	withForward.HasForwardTest = true
	withForward.ForwardTestStartDate = "2024-02-01"
	laterForward := strategyWithCurve(2, point("2024-01-01", 10))
	laterForward.HasForwardTest = true
	laterForward.ForwardTestStartDate = "2024-03-01"

	result := NewPortfolioService(1000).Aggregate(
		[]models.StrategyRecord{laterForward, withForward}, "", "")

	assert.Equal(t, "2024-02-01", result.ForwardTestStartDate)
}
