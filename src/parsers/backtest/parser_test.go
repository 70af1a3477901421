package backtest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/username/quantfolio/backend/src/models"
	"github.com/username/quantfolio/backend/src/parsers"
)

// serial for 2024-01-02 00:00 UTC: (days since 1899-12-30)
const serialJan2_2024 = "45293"

func englishReportGrid() parsers.Grid {
	return parsers.Grid{
		{"Expert:", "MACrossEA (12345)"},
		{"Broker:", "Deus Markets Ltd"},
		{"Account:", "880123"},
		{"Deposit:", "10 000.00 USD"},
		{"Leverage:", "1:100"},
		{"Symbol", "XAUUSD"},
		{"Period", "H1 (2023.01.01 - 2024.01.01)"},
		{"Total Net Profit:", "1 234.50"},
		{"Gross Profit:", "2 000.00"},
		{"Gross Loss:", "-765.50"},
		{"Profit Factor:", "2.61"},
		{"Expected Payoff:", "12.35"},
		{"Maximal Drawdown:", "4.56% (456.00)"},
		{"Total Trades:", "100"},
		{"Profit Trades (% of total):", "60"},
		{"Loss Trades (% of total):", "40"},
		{"Orders"},
		{"Time", "Order", "Symbol", "Type", "Volume", "Price"},
		{serialJan2_2024, "900", "XAUUSD", "buy limit", "0.10", "2050.00"},
		{"Deals"},
		{"Time", "Deal", "Symbol", "Type", "Volume", "Price", "Commission", "Swap", "Profit", "Balance", "Comment"},
		{serialJan2_2024, "1", "XAUUSD", "buy", "0.10", "2050.00", "-0.70", "0.00", "100.00", "10100.00", ""},
		{"45294", "2", "XAUUSD", "sell", "0.10", "2060.00", "-0.70", "-0.10", "-40.00", "10060.00", ""},
		{"not-a-date", "3", "XAUUSD", "buy", "0.10", "2070.00", "0", "0", "15.00", "0", ""},
	}
}

func TestParseEnglishReport(t *testing.T) {
	t.Parallel()

	report, err := NewParser().Parse(englishReportGrid())
	require.NoError(t, err)

	assert.Equal(t, 12345, report.Metadata.MagicNumber)
	assert.Equal(t, "Deus Markets Ltd", report.Metadata.Broker)
	assert.Equal(t, "880123", report.Metadata.AccountNumber)
	assert.Equal(t, "USD", report.Metadata.Currency)
	assert.Equal(t, 100, report.Metadata.Leverage)

	assert.Equal(t, "XAUUSD", report.Summary.Symbol)
	assert.InDelta(t, 1234.50, report.Summary.TotalNetProfit, 1e-9)
	assert.InDelta(t, 2000.00, report.Summary.GrossProfit, 1e-9)
	assert.InDelta(t, 765.50, report.Summary.GrossLoss, 1e-9)
	assert.InDelta(t, 2.61, report.Summary.ProfitFactor, 1e-9)
	assert.InDelta(t, 4.56, report.Summary.MaximalDrawdownPercent, 1e-9)
	assert.InDelta(t, 456.00, report.Summary.MaximalDrawdown, 1e-9)
	assert.Equal(t, 100, report.Summary.TotalTrades)
	assert.InDelta(t, 60.0, report.Summary.WinRate, 1e-9)

	// Orders section must be skipped; invalid-date rows dropped.
	require.Len(t, report.Transactions, 2)
	first := report.Transactions[0]
	assert.Equal(t, models.TradeBuy, first.Type)
	assert.Equal(t, models.SourceBacktest, first.Source)
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), first.OpenTime)
	assert.InDelta(t, 100.0, first.Profit, 1e-9)
	assert.InDelta(t, 10100.0, first.Balance, 1e-9)
	assert.Equal(t, models.TradeSell, report.Transactions[1].Type)
}

func TestParsePolishSidePanelLayout(t *testing.T) {
	t.Parallel()

	grid := parsers.Grid{
		{"Expert:", "", "", "TrendEA (777)"},
		{"", "", "", "", "Zysk netto:", "", "", "500.00", "Strata brutto:", "", "", "-200.00"},
		{"", "", "", "", "Współczynnik zysku:", "", "", "3.5", "Oczekiwana wypłata:", "", "", "5.00"},
		{"", "", "", "", "Maksymalne obsunięcie salda:", "", "", "2.00% (250.00)"},
		{"Transakcje"},
		{"Czas", "Transakcja", "Symbol", "Typ", "Wolumen", "Cena", "Prowizja", "Swap", "Zysk", "Saldo", "Komentarz"},
		{serialJan2_2024, "1", "EURUSD", "sell", "0.20", "1.1000", "0", "0", "50.00", "0", ""},
	}

	report, err := NewParser().Parse(grid)
	require.NoError(t, err)

	assert.Equal(t, 777, report.Metadata.MagicNumber)
	assert.InDelta(t, 500.0, report.Summary.TotalNetProfit, 1e-9)
	assert.InDelta(t, 200.0, report.Summary.GrossLoss, 1e-9)
	assert.InDelta(t, 3.5, report.Summary.ProfitFactor, 1e-9)
	assert.InDelta(t, 5.0, report.Summary.ExpectedPayoff, 1e-9)
	assert.InDelta(t, 2.0, report.Summary.MaximalDrawdownPercent, 1e-9)
	assert.InDelta(t, 250.0, report.Summary.MaximalDrawdown, 1e-9)
	require.Len(t, report.Transactions, 1)
	assert.Equal(t, models.TradeSell, report.Transactions[0].Type)
}

func TestParseSeparateCloseLayout(t *testing.T) {
	t.Parallel()

	grid := parsers.Grid{
		{"Magic Number:", "4242"},
		{"#", "Open Time", "Type", "Symbol", "Volume", "Open Price", "S/L", "Close Price", "T/P", "Close Time", "Commission", "Swap", "Profit", "Balance", "Comment"},
		{"7", serialJan2_2024, "buy", "GBPUSD", "0.50", "1.2700", "0", "1.2750", "0", "45294", "-1.00", "0", "250.00", "10250.00", "tp hit"},
	}

	report, err := NewParser().Parse(grid)
	require.NoError(t, err)
	require.Len(t, report.Transactions, 1)

	tx := report.Transactions[0]
	assert.Equal(t, 7, tx.ID)
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), tx.OpenTime)
	assert.Equal(t, time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), tx.CloseTime)
	assert.InDelta(t, 1.2750, tx.ClosePrice, 1e-9)
	assert.Equal(t, "tp hit", tx.Comment)
}

func TestParseNoDealsTable(t *testing.T) {
	t.Parallel()

	report, err := NewParser().Parse(parsers.Grid{
		{"Expert:", "Something (99)"},
		{"Total Net Profit:", "10.00"},
	})
	require.NoError(t, err)
	assert.Empty(t, report.Transactions)
	assert.Equal(t, 99, report.Metadata.MagicNumber)
}

func TestParseEmptyGrid(t *testing.T) {
	t.Parallel()

	_, err := NewParser().Parse(nil)
	assert.ErrorIs(t, err, ErrEmptyGrid)
}

func TestDrawdownCrossDerivation(t *testing.T) {
	t.Parallel()

	grid := parsers.Grid{
		{"Deposit:", "10 000.00 USD"},
		{"Maximal Drawdown:", "750.00"},
	}
	report, err := NewParser().Parse(grid)
	require.NoError(t, err)
	assert.InDelta(t, 750.0, report.Summary.MaximalDrawdown, 1e-9)
	assert.InDelta(t, 7.5, report.Summary.MaximalDrawdownPercent, 1e-9)
}

func TestDeriveMetricsBalancePassthrough(t *testing.T) {
	t.Parallel()

	report, err := NewParser().Parse(englishReportGrid())
	require.NoError(t, err)

	// Balances are present, so the equity trace takes them directly.
	require.Len(t, report.DailyEquity, 2)
	assert.InDelta(t, 10100.0, report.DailyEquity[0].Equity, 1e-9)
	assert.InDelta(t, 10060.0, report.DailyEquity[1].Equity, 1e-9)

	assert.InDelta(t, 60.0, report.MonthlyProfits["2024-01"], 1e-9)
}

func TestDeriveMetricsRunningSum(t *testing.T) {
	t.Parallel()

	grid := parsers.Grid{
		{"Deals"},
		{"Time", "Deal", "Symbol", "Type", "Volume", "Price", "Commission", "Swap", "Profit", "Balance", "Comment"},
		{serialJan2_2024, "1", "XAUUSD", "buy", "0.10", "2050.00", "0", "0", "100.00", "", ""},
		{"45294", "2", "XAUUSD", "sell", "0.10", "2060.00", "0", "0", "-40.00", "", ""},
	}
	report, err := NewParser().Parse(grid)
	require.NoError(t, err)

	// No balances: seeded trace plus one point per trade.
	require.Len(t, report.DailyEquity, 3)
	assert.InDelta(t, 1000.0, report.DailyEquity[0].Equity, 1e-9)
	assert.InDelta(t, 1100.0, report.DailyEquity[1].Equity, 1e-9)
	assert.InDelta(t, 1060.0, report.DailyEquity[2].Equity, 1e-9)
}

func TestParseCellTime(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cell string
		want time.Time
	}{
		{"excel_serial", "45293", time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)},
		{"dotted_datetime", "2024.01.02 15:30:00", time.Date(2024, 1, 2, 15, 30, 0, 0, time.UTC)},
		{"iso_date", "2024-01-02", time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)},
		{"empty", "", time.Time{}},
		{"garbage", "hello", time.Time{}},
		{"small_serial", "42", time.Time{}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, parseCellTime(tt.cell))
		})
	}
}
