package models

import (
	"strings"
	"time"
)

// TradeType classifies a row of a trade history export.
type TradeType string

const (
	TradeBuy     TradeType = "BUY"
	TradeSell    TradeType = "SELL"
	TradeBalance TradeType = "BALANCE" // deposit/withdrawal style balance adjustment
	TradeCredit  TradeType = "CREDIT"  // broker credit adjustment
)

// ParseTradeType maps the free-form type cell of a report row to a TradeType.
// Unrecognised values default to BUY, matching the source reports where the
// type column is only ever one of these four families.
func ParseTradeType(s string) TradeType {
	normalized := strings.ToLower(s)
	switch {
	case strings.Contains(normalized, "buy"):
		return TradeBuy
	case strings.Contains(normalized, "sell"):
		return TradeSell
	case strings.Contains(normalized, "balance"):
		return TradeBalance
	case strings.Contains(normalized, "credit"):
		return TradeCredit
	}
	return TradeBuy
}

// IsTrade reports whether the type participates in trade statistics.
// Balance and credit adjustments are carried in the raw stream but excluded
// from profit/drawdown computation.
func (t TradeType) IsTrade() bool {
	return t == TradeBuy || t == TradeSell
}

// TransactionSource tags where a transaction was ingested from.
type TransactionSource string

const (
	SourceBacktest TransactionSource = "backtest"
	SourceForward  TransactionSource = "forward"
)

// Transaction is the unified record for one closed trade or account event,
// regardless of whether it came from a backtest spreadsheet or a forward-test
// log. Fields the forward log cannot provide (Balance, ClosePrice) are left
// zero and reconstructed downstream when needed.
type Transaction struct {
	ID         int               `json:"id"`
	Type       TradeType         `json:"type"`
	Source     TransactionSource `json:"source"`
	OpenTime   time.Time         `json:"open_time"`
	CloseTime  time.Time         `json:"close_time,omitempty"` // zero value means "same as open"
	Symbol     string            `json:"symbol"`
	Volume     float64           `json:"volume"` // signed lot size
	OpenPrice  float64           `json:"open_price"`
	ClosePrice float64           `json:"close_price,omitempty"`
	Commission float64           `json:"commission"`
	Swap       float64           `json:"swap"`
	Profit     float64           `json:"profit"`
	Balance    float64           `json:"balance,omitempty"` // running account balance as reported, 0 if unknown
	Comment    string            `json:"comment,omitempty"`
}

// EffectiveCloseTime returns the close time, falling back to the open time
// for single-timestamp report layouts.
func (t Transaction) EffectiveCloseTime() time.Time {
	if t.CloseTime.IsZero() {
		return t.OpenTime
	}
	return t.CloseTime
}
