package database

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/username/quantfolio/backend/src/logger"
	"github.com/username/quantfolio/backend/src/models"
)

func TestMain(m *testing.M) {
	logger.InitLogger("error")
	dir, err := os.MkdirTemp("", "quantfolio-db-test")
	if err != nil {
		panic(err)
	}
	InitDB(filepath.Join(dir, "test.db"))
	code := m.Run()
	DB.Close()
	os.RemoveAll(dir)
	os.Exit(code)
}

func TestStrategySnapshotRoundTrip(t *testing.T) {
	record := models.StrategyRecord{
		MagicNumber:          12345,
		Name:                 "Momentum GU",
		Symbol:               "GBPUSD",
		TotalProfit:          4200.5,
		TotalTrades:          87,
		WinRate:              61.2,
		ProfitFactor:         1.7,
		MaxDrawdown:          1000,
		MaxDrawdownPercent:   8.4,
		SharpeRatio:          1.3,
		HasForwardTest:       true,
		ForwardTestStartDate: "2024-03-01",
	}
	require.NoError(t, SaveStrategySnapshot(record))

	// Upsert replaces, never duplicates.
	record.TotalProfit = 4300
	require.NoError(t, SaveStrategySnapshot(record))

	records, err := ListStrategySnapshots()
	require.NoError(t, err)

	var found *models.StrategyRecord
	for i := range records {
		if records[i].MagicNumber == 12345 {
			require.Nil(t, found, "snapshot duplicated on upsert")
			found = &records[i]
		}
	}
	require.NotNil(t, found)
	assert.InDelta(t, 4300.0, found.TotalProfit, 0.001)
	assert.True(t, found.HasForwardTest)
	assert.Equal(t, "2024-03-01", found.ForwardTestStartDate)
}

func TestDeleteStrategySnapshot(t *testing.T) {
	require.NoError(t, SaveStrategySnapshot(models.StrategyRecord{MagicNumber: 555, Name: "Doomed"}))
	require.NoError(t, UpsertStrategyName(555, "Doomed"))

	require.NoError(t, DeleteStrategySnapshot(555))

	names, err := GetStrategyNames()
	require.NoError(t, err)
	assert.NotContains(t, names, 555)

	assert.ErrorIs(t, DeleteStrategySnapshot(555), sql.ErrNoRows)
}

func TestStrategyNames(t *testing.T) {
	require.NoError(t, UpsertStrategyName(42, "Breakout EU"))
	require.NoError(t, UpsertStrategyName(42, "Breakout EU v2"))

	names, err := GetStrategyNames()
	require.NoError(t, err)
	assert.Equal(t, "Breakout EU v2", names[42])

	require.NoError(t, DeleteStrategyName(42))
	names, err = GetStrategyNames()
	require.NoError(t, err)
	assert.NotContains(t, names, 42)
}

func TestPortfolioCRUD(t *testing.T) {
	id, err := CreatePortfolio("Live Set", 1000, []int{101, 102})
	require.NoError(t, err)

	portfolio, err := GetPortfolio(id)
	require.NoError(t, err)
	assert.Equal(t, "Live Set", portfolio.Name)
	assert.InDelta(t, 1000.0, portfolio.TargetDrawdown, 0.001)
	assert.Equal(t, []int{101, 102}, portfolio.MagicNumbers)

	require.NoError(t, UpdatePortfolio(id, "Live Set v2", 2000, []int{103}))
	portfolio, err = GetPortfolio(id)
	require.NoError(t, err)
	assert.Equal(t, "Live Set v2", portfolio.Name)
	assert.Equal(t, []int{103}, portfolio.MagicNumbers)

	require.NoError(t, SetPortfolioStrategies(id, []int{104, 105}))
	portfolio, err = GetPortfolio(id)
	require.NoError(t, err)
	assert.Equal(t, []int{104, 105}, portfolio.MagicNumbers)

	portfolios, err := ListPortfolios()
	require.NoError(t, err)
	var seen bool
	for _, p := range portfolios {
		if p.ID == id {
			seen = true
			assert.Equal(t, []int{104, 105}, p.MagicNumbers)
		}
	}
	assert.True(t, seen)

	require.NoError(t, DeletePortfolio(id))
	_, err = GetPortfolio(id)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.ErrorIs(t, DeletePortfolio(id), sql.ErrNoRows)
}

func TestPortfolioMissingIDs(t *testing.T) {
	assert.ErrorIs(t, UpdatePortfolio(999999, "x", 1, nil), sql.ErrNoRows)
	assert.ErrorIs(t, SetPortfolioStrategies(999999, nil), sql.ErrNoRows)
}
