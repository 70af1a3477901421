package services

import (
	"errors"
	"io"

	"github.com/username/quantfolio/backend/src/models"
)

var (
	ErrParsingFailed    = errors.New("parsing failed")
	ErrStrategyNotFound = errors.New("strategy not found")
	ErrEmptySelection   = errors.New("no strategies selected")
)

// StrategyService is the reconciliation pipeline: it turns the backtest and
// forward-test source files into normalized StrategyRecords.
type StrategyService interface {
	// GetStrategies returns the reconciled records, loading from source files
	// on a cold cache.
	GetStrategies() ([]models.StrategyRecord, error)
	GetStrategy(magicNumber int) (*models.StrategyRecord, error)
	// Refresh drops the cache and recomputes everything from the source
	// files. Safe to re-run at any time.
	Refresh() ([]models.StrategyRecord, error)
	InvalidateCache()

	// StoreBacktestReport writes an uploaded report into the backtest data
	// directory. StoreForwardLog replaces any previous forward log.
	StoreBacktestReport(filename string, file io.Reader) error
	StoreForwardLog(filename string, file io.Reader) error
	SetStrategyName(magicNumber int, name string) error
}

// PortfolioService combines a selection of reconciled strategies over a date
// window into one curve plus summary statistics.
type PortfolioService interface {
	Aggregate(strategies []models.StrategyRecord, startDate, endDate string) *models.PortfolioResult
}
