package services

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/username/quantfolio/backend/src/config"
	"github.com/username/quantfolio/backend/src/logger"
	"github.com/username/quantfolio/backend/src/models"
)

func TestMain(m *testing.M) {
	logger.InitLogger("error")
	os.Exit(m.Run())
}

func newTestLoader(t *testing.T) (*loaderServiceImpl, *config.AppConfig) {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.AppConfig{
		BacktestDataPath: filepath.Join(dir, "backtest"),
		ForwardDataPath:  filepath.Join(dir, "forward"),
		NamesFilePath:    filepath.Join(dir, "names.json"),
		TargetDrawdown:   1000,
		InitialBalance:   10000,
	}
	svc := NewLoaderService(cfg, cache.New(DefaultCacheExpiration, CacheCleanupInterval))
	return svc.(*loaderServiceImpl), cfg
}

func backtestTrade(day int, profit float64) models.Transaction {
	open := time.Date(2024, 1, day, 10, 0, 0, 0, time.UTC)
	return models.Transaction{
		Type:      models.TradeBuy,
		Source:    models.SourceBacktest,
		OpenTime:  open,
		CloseTime: open.Add(time.Hour),
		Symbol:    "EURUSD",
		Volume:    0.1,
		Profit:    profit,
	}
}

func forwardTrade(day int, profit float64) models.Transaction {
	tx := backtestTrade(day, profit)
	tx.Source = models.SourceForward
	tx.CloseTime = time.Time{}
	return tx
}

func testReport(magic int, transactions ...models.Transaction) *models.BacktestReport {
	return &models.BacktestReport{
		Metadata: models.ReportMetadata{MagicNumber: magic},
		Summary:  models.ReportSummary{Symbol: "EURUSD", Period: "H1"},
		Transactions: transactions,
	}
}

func TestReconcileBacktestOnly(t *testing.T) {
	svc, _ := newTestLoader(t)

	// Curve 100, 50, 200: max drawdown 50, so the scale factor is 20.
	report := testReport(12345,
		backtestTrade(1, 100),
		backtestTrade(2, -50),
		backtestTrade(3, 150),
	)

	record, ok := svc.reconcile(report, nil, nil)
	require.True(t, ok)

	assert.Equal(t, 12345, record.MagicNumber)
	assert.Equal(t, "Strategy 12345", record.Name)
	assert.Equal(t, "EURUSD", record.Symbol)
	assert.Equal(t, "H1", record.Timeframe)
	assert.InDelta(t, 4000.0, record.TotalProfit, 0.01)
	assert.InDelta(t, 1000.0, record.MaxDrawdown, 0.01)
	assert.Equal(t, 3, record.TotalTrades)
	assert.False(t, record.HasForwardTest)
	assert.Empty(t, record.ForwardTestStartDate)

	require.Len(t, record.ProfitCurve, 3)
	assert.InDelta(t, 2000.0, record.ProfitCurve[0].Profit, 0.01)
	assert.InDelta(t, 1000.0, record.ProfitCurve[1].Profit, 0.01)
	assert.InDelta(t, 4000.0, record.ProfitCurve[2].Profit, 0.01)
}

func TestReconcileMergesForwardWithBacktestScale(t *testing.T) {
	svc, _ := newTestLoader(t)

	report := testReport(12345,
		backtestTrade(1, 100),
		backtestTrade(2, -50),
		backtestTrade(3, 150),
	)
	fwd := []models.Transaction{forwardTrade(4, 50)}

	record, ok := svc.reconcile(report, fwd, nil)
	require.True(t, ok)

	// The forward trade is rescaled by the backtest-derived factor of 20.
	assert.InDelta(t, 5000.0, record.TotalProfit, 0.01)
	assert.Equal(t, 4, record.TotalTrades)
	assert.True(t, record.HasForwardTest)
	assert.Equal(t, "2024-01-04", record.ForwardTestStartDate)
	require.Len(t, record.Transactions, 4)
	assert.Equal(t, models.SourceForward, record.Transactions[3].Source)
	assert.InDelta(t, 1000.0, record.Transactions[3].Profit, 0.01)
}

func TestReconcileSecondNormalizationPass(t *testing.T) {
	svc, _ := newTestLoader(t)

	// Backtest alone has max drawdown 50 (factor 20), but the forward loss
	// deepens the merged drawdown to 1200, so a second pass rescales by 5/6.
	report := testReport(777,
		backtestTrade(1, 100),
		backtestTrade(2, -50),
	)
	fwd := []models.Transaction{forwardTrade(3, -10)}

	record, ok := svc.reconcile(report, fwd, nil)
	require.True(t, ok)

	assert.InDelta(t, 1000.0, record.MaxDrawdown, 0.01)
	assert.InDelta(t, 666.67, record.TotalProfit, 0.01)
	require.Len(t, record.ProfitCurve, 3)
	assert.InDelta(t, 1000.0, record.ProfitCurve[2].Drawdown, 0.01)
}

func TestReconcileEmptyReportExcluded(t *testing.T) {
	svc, _ := newTestLoader(t)

	_, ok := svc.reconcile(testReport(42), nil, nil)
	assert.False(t, ok)
}

func TestReconcileNameOverride(t *testing.T) {
	svc, _ := newTestLoader(t)

	record, ok := svc.reconcile(testReport(42, backtestTrade(1, 10)), nil, map[int]string{42: "Breakout EU"})
	require.True(t, ok)
	assert.Equal(t, "Breakout EU", record.Name)
}

func TestRefreshWithoutDataDirectories(t *testing.T) {
	svc, _ := newTestLoader(t)

	records, err := svc.Refresh()
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestLoadNameOverridesFromFile(t *testing.T) {
	svc, cfg := newTestLoader(t)

	require.NoError(t, os.WriteFile(cfg.NamesFilePath, []byte(`{"12345":"Momentum GU","bogus":"ignored"}`), 0o644))

	names := svc.loadNameOverrides()
	assert.Equal(t, map[int]string{12345: "Momentum GU"}, names)
}

func TestSetStrategyNamePersists(t *testing.T) {
	svc, cfg := newTestLoader(t)

	require.NoError(t, svc.SetStrategyName(42, "Range Scalper"))
	require.NoError(t, svc.SetStrategyName(43, "Trend Rider"))

	raw, err := os.ReadFile(cfg.NamesFilePath)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"42": "Range Scalper"`)
	assert.Contains(t, string(raw), `"43": "Trend Rider"`)

	names := svc.loadNameOverrides()
	assert.Equal(t, "Range Scalper", names[42])
	assert.Equal(t, "Trend Rider", names[43])
}

func TestStoreForwardLogReplacesPrevious(t *testing.T) {
	svc, cfg := newTestLoader(t)

	require.NoError(t, svc.StoreForwardLog("week1.csv", strings.NewReader("old")))
	require.NoError(t, svc.StoreForwardLog("week2.csv", strings.NewReader("new")))

	entries, err := os.ReadDir(cfg.ForwardDataPath)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "week2.csv", entries[0].Name())
}

func writeReportFixture(t *testing.T, path string) {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	rows := [][]interface{}{
		{"Expert", "12345"},
		{"Symbol", "EURUSD"},
		{"Period", "H1"},
		{"Deposit", "10000", "USD"},
		{"Deals"},
		{"Time", "Deal", "Symbol", "Type", "Volume", "Price", "Commission", "Swap", "Profit", "Balance", "Comment"},
		{"2024.01.02 10:00:00", "1", "EURUSD", "buy", "0.10", "1.0850", "0", "0", "100", "", ""},
		{"2024.01.03 10:00:00", "2", "EURUSD", "sell", "0.10", "1.0900", "0", "0", "-50", "", ""},
		{"2024.01.04 10:00:00", "3", "EURUSD", "buy", "0.10", "1.0800", "0", "0", "150", "", ""},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}
	require.NoError(t, f.SaveAs(path))
}

func TestRefreshEndToEnd(t *testing.T) {
	svc, cfg := newTestLoader(t)

	require.NoError(t, os.MkdirAll(cfg.BacktestDataPath, 0o755))
	require.NoError(t, os.MkdirAll(cfg.ForwardDataPath, 0o755))
	writeReportFixture(t, filepath.Join(cfg.BacktestDataPath, "12345.xlsx"))

	forwardLog := "Ticket,Magic,Open Date,Open Time,Type,Symbol,Volume,Open Price,Close Price,Profit,Swap,Commission,Comment\n" +
		"9001,12345,01/05/2024,09:00:00,Buy,EURUSD,0.10,1.0800,1.0850,50.00,0,0,live\n"
	require.NoError(t, os.WriteFile(filepath.Join(cfg.ForwardDataPath, "forward.csv"), []byte(forwardLog), 0o644))
	require.NoError(t, os.WriteFile(cfg.NamesFilePath, []byte(`{"12345":"Fixture Bot"}`), 0o644))

	records, err := svc.Refresh()
	require.NoError(t, err)
	require.Len(t, records, 1)

	record := records[0]
	assert.Equal(t, 12345, record.MagicNumber)
	assert.Equal(t, "Fixture Bot", record.Name)
	assert.Equal(t, "EURUSD", record.Symbol)
	assert.Equal(t, "H1", record.Timeframe)
	assert.True(t, record.HasForwardTest)
	assert.Equal(t, "2024-01-05", record.ForwardTestStartDate)

	// Backtest drawdown 50 scales everything by 20; the forward trade adds
	// another 1000 on top of the backtest's 4000.
	assert.InDelta(t, 5000.0, record.TotalProfit, 0.01)
	assert.InDelta(t, 1000.0, record.MaxDrawdown, 0.01)
	assert.Equal(t, 4, record.TotalTrades)

	// The second call hits the cache and returns the same result.
	cached, err := svc.GetStrategies()
	require.NoError(t, err)
	require.Len(t, cached, 1)
	assert.Equal(t, record.MagicNumber, cached[0].MagicNumber)
}

func TestStoreBacktestReportWrites(t *testing.T) {
	svc, cfg := newTestLoader(t)

	require.NoError(t, svc.StoreBacktestReport("12345.xlsx", strings.NewReader("payload")))

	raw, err := os.ReadFile(filepath.Join(cfg.BacktestDataPath, "12345.xlsx"))
	require.NoError(t, err)
	assert.Equal(t, "payload", string(raw))
}
