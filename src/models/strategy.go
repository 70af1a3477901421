package models

// StrategyRecord is the reconciled, normalized unit the portfolio layer
// consumes: backtest and forward-test transactions merged into one series and
// rescaled so the maximum drawdown equals the configured target unit.
// Records are recomputed on every refresh; consumers treat them as read-only.
type StrategyRecord struct {
	MagicNumber int    `json:"magic_number"`
	Name        string `json:"name"`
	Symbol      string `json:"symbol"`
	Timeframe   string `json:"timeframe"`

	TotalProfit        float64 `json:"total_profit"`
	TotalTrades        int     `json:"total_trades"`
	WinRate            float64 `json:"win_rate"`
	ProfitFactor       float64 `json:"profit_factor"`
	MaxDrawdown        float64 `json:"max_drawdown"`
	MaxDrawdownPercent float64 `json:"max_drawdown_percent"`
	SharpeRatio        float64 `json:"sharpe_ratio"`

	ProfitCurve    []ProfitCurvePoint `json:"profit_curve"`
	Transactions   []Transaction      `json:"transactions"` // merged + rescaled, kept for re-aggregation
	MonthlyProfits map[string]float64 `json:"monthly_profits"`

	HasForwardTest       bool   `json:"has_forward_test"`
	ForwardTestStartDate string `json:"forward_test_start_date,omitempty"` // YYYY-MM-DD
}

// PortfolioStats is the summary the aggregator computes for a strategy
// selection over a date window.
type PortfolioStats struct {
	StrategyCount      int     `json:"strategy_count"`
	TotalProfit        float64 `json:"total_profit"`
	TotalProfitPercent float64 `json:"total_profit_percent"`
	AnnualizedReturn   float64 `json:"annualized_return"`
	MaxDrawdown        float64 `json:"max_drawdown"`
	MaxDrawdownPercent float64 `json:"max_drawdown_percent"` // window-relative
	SharpeRatio        float64 `json:"sharpe_ratio"`
	CalmarRatio        float64 `json:"calmar_ratio"`
	InitialCapital     float64 `json:"initial_capital"`
}

// PortfolioResult is the combined curve plus stats for a selection and range.
type PortfolioResult struct {
	Curve                []ProfitCurvePoint `json:"curve"`
	Stats                PortfolioStats     `json:"stats"`
	ForwardTestStartDate string             `json:"forward_test_start_date,omitempty"`
}
