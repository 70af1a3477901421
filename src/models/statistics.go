package models

// ProfitCurvePoint is one daily sample of a strategy's cumulative profit
// curve. Profit is cumulative since inception in the transaction currency;
// Drawdown is the non-negative gap from the running peak at that day.
type ProfitCurvePoint struct {
	Date     string  `json:"date"` // calendar day, YYYY-MM-DD
	Profit   float64 `json:"profit"`
	Drawdown float64 `json:"drawdown"`
}

// CalculatedStatistics is the full metric set derived from a transaction
// list. It is computed fresh from transactions every time and never mutated,
// only replaced.
type CalculatedStatistics struct {
	TotalNetProfit   float64 `json:"total_net_profit"`
	TotalGrossProfit float64 `json:"total_gross_profit"`
	TotalGrossLoss   float64 `json:"total_gross_loss"`
	ProfitFactor     float64 `json:"profit_factor"`
	ExpectedPayoff   float64 `json:"expected_payoff"`

	MaxDrawdown        float64 `json:"max_drawdown"`         // currency units
	MaxDrawdownPercent float64 `json:"max_drawdown_percent"` // relative to peak equity

	TotalTrades  int     `json:"total_trades"`
	ProfitTrades int     `json:"profit_trades"`
	LossTrades   int     `json:"loss_trades"`
	WinRate      float64 `json:"win_rate"`

	SharpeRatio float64 `json:"sharpe_ratio"`

	LargestProfitTrade float64 `json:"largest_profit_trade"`
	LargestLossTrade   float64 `json:"largest_loss_trade"`
	AverageProfitTrade float64 `json:"average_profit_trade"`
	AverageLossTrade   float64 `json:"average_loss_trade"`

	MaxConsecutiveWins   int     `json:"max_consecutive_wins"`
	MaxConsecutiveLosses int     `json:"max_consecutive_losses"`
	MaxConsecutiveProfit float64 `json:"max_consecutive_profit"`
	MaxConsecutiveLoss   float64 `json:"max_consecutive_loss"`
}
