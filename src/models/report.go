package models

import "time"

// ReportMetadata holds the identification block of a backtest report.
// MagicNumber is the join key across backtest and forward-test sources;
// zero means the report could not be attributed to a strategy.
type ReportMetadata struct {
	MagicNumber   int    `json:"magic_number"`
	CustomComment string `json:"custom_comment,omitempty"`
	AccountNumber string `json:"account_number,omitempty"`
	Broker        string `json:"broker,omitempty"`
	Currency      string `json:"currency"`
	Leverage      int    `json:"leverage,omitempty"`
}

// ReportSummary carries the pre-computed metrics exactly as the source tool
// reported them. Only Symbol, Period and the trade counts are displayed;
// risk metrics are always recomputed from transactions and these values are
// never trusted for them.
type ReportSummary struct {
	Symbol string `json:"symbol"`
	Period string `json:"period"`

	TotalNetProfit float64 `json:"total_net_profit"`
	GrossProfit    float64 `json:"gross_profit"`
	GrossLoss      float64 `json:"gross_loss"`
	ProfitFactor   float64 `json:"profit_factor"`
	ExpectedPayoff float64 `json:"expected_payoff"`

	AbsoluteDrawdown        float64 `json:"absolute_drawdown"`
	MaximalDrawdown         float64 `json:"maximal_drawdown"`
	MaximalDrawdownPercent  float64 `json:"maximal_drawdown_percent"`
	RelativeDrawdown        float64 `json:"relative_drawdown"`
	RelativeDrawdownPercent float64 `json:"relative_drawdown_percent"`

	TotalTrades    int     `json:"total_trades"`
	ShortPositions int     `json:"short_positions"`
	LongPositions  int     `json:"long_positions"`
	ProfitTrades   int     `json:"profit_trades"`
	LossTrades     int     `json:"loss_trades"`
	WinRate        float64 `json:"win_rate"`

	LargestProfitTrade float64 `json:"largest_profit_trade"`
	LargestLossTrade   float64 `json:"largest_loss_trade"`
	AverageProfitTrade float64 `json:"average_profit_trade"`
	AverageLossTrade   float64 `json:"average_loss_trade"`

	MaxConsecutiveWins   int     `json:"max_consecutive_wins"`
	MaxConsecutiveLosses int     `json:"max_consecutive_losses"`
	MaxConsecutiveProfit float64 `json:"max_consecutive_profit"`
	MaxConsecutiveLoss   float64 `json:"max_consecutive_loss"`
}

// EquityPoint is one sample of the sequential equity trace derived while
// parsing a report.
type EquityPoint struct {
	Date   time.Time `json:"date"`
	Equity float64   `json:"equity"`
}

// BacktestReport is the full parse result for one backtest spreadsheet.
type BacktestReport struct {
	Metadata       ReportMetadata     `json:"metadata"`
	Summary        ReportSummary      `json:"summary"`
	Transactions   []Transaction      `json:"transactions"`
	MonthlyProfits map[string]float64 `json:"monthly_profits"` // keyed YYYY-MM
	DailyEquity    []EquityPoint      `json:"daily_equity"`
}

// ForwardTestData is the parse result of a forward-test execution log:
// transactions grouped per magic number plus the global time bounds.
// MagicNumbers preserves first-appearance order so iteration over the groups
// is deterministic.
type ForwardTestData struct {
	TradesByMagic map[int][]Transaction `json:"trades_by_magic"`
	MagicNumbers  []int                 `json:"magic_numbers"`
	StartDate     time.Time             `json:"start_date"`
	EndDate       time.Time             `json:"end_date"`
}
