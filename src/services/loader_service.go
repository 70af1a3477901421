package services

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/username/quantfolio/backend/src/calculators"
	"github.com/username/quantfolio/backend/src/config"
	"github.com/username/quantfolio/backend/src/database"
	"github.com/username/quantfolio/backend/src/logger"
	"github.com/username/quantfolio/backend/src/models"
	"github.com/username/quantfolio/backend/src/parsers"
	"github.com/username/quantfolio/backend/src/parsers/backtest"
	"github.com/username/quantfolio/backend/src/parsers/forward"
	"github.com/username/quantfolio/backend/src/utils"
)

const (
	// Cache for the full reconciled result set; refresh and uploads
	// invalidate, reads repopulate.
	ckStrategyRecords = "res_strategy_records"

	DefaultCacheExpiration = 15 * time.Minute
	CacheCleanupInterval   = 30 * time.Minute

	// Backtest files have no ordering dependency between strategies, so they
	// parse concurrently up to this bound.
	maxParseWorkers = 4
)

var filenameDigitsRe = regexp.MustCompile(`\d+`)

type loaderServiceImpl struct {
	cfg            *config.AppConfig
	backtestParser *backtest.Parser
	forwardParser  *forward.Parser
	reportCache    *cache.Cache
}

func NewLoaderService(cfg *config.AppConfig, reportCache *cache.Cache) StrategyService {
	return &loaderServiceImpl{
		cfg:            cfg,
		backtestParser: backtest.NewParser(),
		forwardParser:  forward.NewParser(),
		reportCache:    reportCache,
	}
}

func (s *loaderServiceImpl) GetStrategies() ([]models.StrategyRecord, error) {
	if cached, found := s.reportCache.Get(ckStrategyRecords); found {
		if records, ok := cached.([]models.StrategyRecord); ok {
			return records, nil
		}
	}
	return s.Refresh()
}

func (s *loaderServiceImpl) GetStrategy(magicNumber int) (*models.StrategyRecord, error) {
	records, err := s.GetStrategies()
	if err != nil {
		return nil, err
	}
	for i := range records {
		if records[i].MagicNumber == magicNumber {
			return &records[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %d", ErrStrategyNotFound, magicNumber)
}

func (s *loaderServiceImpl) InvalidateCache() {
	s.reportCache.Delete(ckStrategyRecords)
}

// Refresh recomputes every StrategyRecord from the source files. Individual
// file failures are logged and skipped; only the absence of the data
// directory itself is surfaced as an empty (not error) result.
func (s *loaderServiceImpl) Refresh() ([]models.StrategyRecord, error) {
	startTime := time.Now()
	logger.L.Info("Strategy refresh START", "backtestPath", s.cfg.BacktestDataPath)

	reports := s.parseBacktestReports()
	forwardData := s.loadForwardData()
	names := s.loadNameOverrides()

	records := make([]models.StrategyRecord, 0, len(reports))
	for _, report := range reports {
		var forwardTrades []models.Transaction
		if forwardData != nil {
			forwardTrades = forwardData.TradesByMagic[report.Metadata.MagicNumber]
		}
		record, ok := s.reconcile(report, forwardTrades, names)
		if !ok {
			continue
		}
		records = append(records, record)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].MagicNumber < records[j].MagicNumber
	})

	s.reportCache.Set(ckStrategyRecords, records, DefaultCacheExpiration)
	s.snapshotRecords(records)

	logger.L.Info("Strategy refresh DONE",
		"strategies", len(records),
		"durationMs", time.Since(startTime).Milliseconds())
	return records, nil
}

// parseBacktestReports reads every .xlsx in the backtest directory
// concurrently. A file that fails to parse or carries no magic number is
// logged and dropped without failing the batch.
func (s *loaderServiceImpl) parseBacktestReports() []*models.BacktestReport {
	entries, err := os.ReadDir(s.cfg.BacktestDataPath)
	if err != nil {
		logger.L.Warn("Backtest data directory unreadable, no strategies loaded",
			"path", s.cfg.BacktestDataPath, "error", err)
		return nil
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".xlsx") {
			continue
		}
		names = append(names, entry.Name())
	}

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		reports []*models.BacktestReport
	)
	sem := make(chan struct{}, maxParseWorkers)

	for _, name := range names {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			report, err := s.parseOneReport(filepath.Join(s.cfg.BacktestDataPath, name))
			if err != nil {
				logger.L.Error("Skipping backtest report", "file", name, "error", err)
				return
			}
			if report.Metadata.MagicNumber == 0 {
				// Fall back to digits in the filename before giving up.
				if m := filenameDigitsRe.FindString(name); m != "" {
					report.Metadata.MagicNumber, _ = strconv.Atoi(m)
				}
			}
			if report.Metadata.MagicNumber == 0 {
				logger.L.Warn("Backtest report has no magic number, skipping", "file", name)
				return
			}

			mu.Lock()
			reports = append(reports, report)
			mu.Unlock()
		}(name)
	}
	wg.Wait()

	return reports
}

func (s *loaderServiceImpl) parseOneReport(path string) (*models.BacktestReport, error) {
	grid, err := parsers.ReadGrid(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParsingFailed, err)
	}
	report, err := s.backtestParser.Parse(grid)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParsingFailed, err)
	}
	return report, nil
}

// loadForwardData parses the forward log if one exists. At most one log is
// expected; when several are present the lexicographically first wins.
func (s *loaderServiceImpl) loadForwardData() *models.ForwardTestData {
	entries, err := os.ReadDir(s.cfg.ForwardDataPath)
	if err != nil {
		logger.L.Info("No forward data directory, proceeding backtest-only",
			"path", s.cfg.ForwardDataPath)
		return nil
	}

	var csvNames []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".csv") {
			continue
		}
		csvNames = append(csvNames, entry.Name())
	}
	if len(csvNames) == 0 {
		return nil
	}
	sort.Strings(csvNames)

	path := filepath.Join(s.cfg.ForwardDataPath, csvNames[0])
	file, err := os.Open(path)
	if err != nil {
		logger.L.Error("Failed to open forward log, proceeding backtest-only",
			"file", path, "error", err)
		return nil
	}
	defer file.Close()

	data, err := s.forwardParser.Parse(file)
	if err != nil {
		logger.L.Error("Failed to parse forward log, proceeding backtest-only",
			"file", path, "error", err)
		return nil
	}
	logger.L.Info("Forward log loaded",
		"file", csvNames[0], "strategies", len(data.MagicNumbers))
	return data
}

// reconcile merges a backtest report with its forward trades into one
// normalized record. The scale factor is always derived from the backtest
// drawdown and reused for the forward rows, anchoring both halves to the
// same risk unit.
func (s *loaderServiceImpl) reconcile(report *models.BacktestReport, forwardTrades []models.Transaction, names map[int]string) (models.StrategyRecord, bool) {
	magic := report.Metadata.MagicNumber
	if len(report.Transactions) == 0 {
		logger.L.Warn("Backtest report yielded no transactions, excluding strategy", "magicNumber", magic)
		return models.StrategyRecord{}, false
	}

	backtestStats := calculators.CalculateStatistics(report.Transactions, s.cfg.InitialBalance)
	scaleFactor := 1.0
	if backtestStats.MaxDrawdown > 0 {
		scaleFactor = s.cfg.TargetDrawdown / backtestStats.MaxDrawdown
	}

	merged := make([]models.Transaction, 0, len(report.Transactions)+len(forwardTrades))
	merged = append(merged, rescaleTransactions(report.Transactions, scaleFactor)...)
	merged = append(merged, rescaleTransactions(forwardTrades, scaleFactor)...)
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].OpenTime.Before(merged[j].OpenTime)
	})

	stats := calculators.CalculateStatistics(merged, s.cfg.InitialBalance)
	curve := calculators.CalculateDrawdowns(calculators.BuildProfitCurve(merged))

	// The merge can shift where the peak falls, so one more pass forces the
	// drawdown to land exactly on the target.
	curve = calculators.NormalizeProfitCurve(curve, stats.MaxDrawdown, s.cfg.TargetDrawdown)
	if stats.MaxDrawdown > 0 {
		stats = calculators.NormalizeStatistics(stats, s.cfg.TargetDrawdown/stats.MaxDrawdown)
	}

	record := models.StrategyRecord{
		MagicNumber:        magic,
		Name:               names[magic],
		Symbol:             report.Summary.Symbol,
		Timeframe:          report.Summary.Period,
		TotalProfit:        stats.TotalNetProfit,
		TotalTrades:        stats.TotalTrades,
		WinRate:            stats.WinRate,
		ProfitFactor:       stats.ProfitFactor,
		MaxDrawdown:        stats.MaxDrawdown,
		MaxDrawdownPercent: stats.MaxDrawdownPercent,
		SharpeRatio:        stats.SharpeRatio,
		ProfitCurve:        curve,
		Transactions:       merged,
		MonthlyProfits:     monthlyProfits(merged),
	}
	if record.Name == "" {
		record.Name = fmt.Sprintf("Strategy %d", magic)
	}
	if record.Symbol == "" && len(merged) > 0 {
		record.Symbol = merged[0].Symbol
	}
	if len(forwardTrades) > 0 {
		record.HasForwardTest = true
		record.ForwardTestStartDate = utils.DayKey(forwardTrades[0].OpenTime)
	}
	return record, true
}

// rescaleTransactions multiplies the currency-denominated trade fields by
// factor. Dimensionless fields and prices are untouched.
func rescaleTransactions(transactions []models.Transaction, factor float64) []models.Transaction {
	out := make([]models.Transaction, len(transactions))
	for i, tx := range transactions {
		tx.Profit *= factor
		tx.Commission *= factor
		tx.Swap *= factor
		out[i] = tx
	}
	return out
}

func monthlyProfits(transactions []models.Transaction) map[string]float64 {
	monthly := make(map[string]float64)
	for _, tx := range transactions {
		if !tx.Type.IsTrade() {
			continue
		}
		monthly[utils.MonthKey(tx.EffectiveCloseTime())] += tx.Profit
	}
	return monthly
}

// loadNameOverrides merges the names file with database overrides; the
// database wins on conflict.
func (s *loaderServiceImpl) loadNameOverrides() map[int]string {
	names := make(map[int]string)

	raw, err := os.ReadFile(s.cfg.NamesFilePath)
	if err == nil {
		var byKey map[string]string
		if err := json.Unmarshal(raw, &byKey); err != nil {
			logger.L.Warn("Names file is not valid JSON, ignoring",
				"file", s.cfg.NamesFilePath, "error", err)
		} else {
			for key, name := range byKey {
				if magic, err := strconv.Atoi(key); err == nil {
					names[magic] = name
				}
			}
		}
	}

	if database.DB != nil {
		dbNames, err := database.GetStrategyNames()
		if err != nil {
			logger.L.Warn("Failed to load name overrides from database", "error", err)
			return names
		}
		for magic, name := range dbNames {
			names[magic] = name
		}
	}
	return names
}

// snapshotRecords persists the headline figures so the dashboard has data
// across restarts. Best effort; failures never fail the refresh.
func (s *loaderServiceImpl) snapshotRecords(records []models.StrategyRecord) {
	if database.DB == nil {
		return
	}
	for _, record := range records {
		if err := database.SaveStrategySnapshot(record); err != nil {
			logger.L.Error("Failed to snapshot strategy",
				"magicNumber", record.MagicNumber, "error", err)
		}
	}
}

func (s *loaderServiceImpl) StoreBacktestReport(filename string, file io.Reader) error {
	if err := os.MkdirAll(s.cfg.BacktestDataPath, 0o755); err != nil {
		return fmt.Errorf("failed to create backtest data directory: %w", err)
	}
	if err := writeFile(filepath.Join(s.cfg.BacktestDataPath, filename), file); err != nil {
		return err
	}
	s.InvalidateCache()
	return nil
}

// StoreForwardLog replaces the previous forward log: at most one log is live
// at a time, so older .csv files are removed first.
func (s *loaderServiceImpl) StoreForwardLog(filename string, file io.Reader) error {
	if err := os.MkdirAll(s.cfg.ForwardDataPath, 0o755); err != nil {
		return fmt.Errorf("failed to create forward data directory: %w", err)
	}

	entries, err := os.ReadDir(s.cfg.ForwardDataPath)
	if err != nil {
		return fmt.Errorf("failed to read forward data directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".csv") {
			continue
		}
		if err := os.Remove(filepath.Join(s.cfg.ForwardDataPath, entry.Name())); err != nil {
			logger.L.Warn("Failed to remove previous forward log",
				"file", entry.Name(), "error", err)
		}
	}

	if err := writeFile(filepath.Join(s.cfg.ForwardDataPath, filename), file); err != nil {
		return err
	}
	s.InvalidateCache()
	return nil
}

// SetStrategyName persists a display-name override to the names file and,
// when a database is attached, to the override table as well.
func (s *loaderServiceImpl) SetStrategyName(magicNumber int, name string) error {
	names := make(map[string]string)
	if raw, err := os.ReadFile(s.cfg.NamesFilePath); err == nil {
		if err := json.Unmarshal(raw, &names); err != nil {
			logger.L.Warn("Names file is not valid JSON, rewriting", "file", s.cfg.NamesFilePath)
			names = make(map[string]string)
		}
	}
	names[strconv.Itoa(magicNumber)] = name

	encoded, err := json.MarshalIndent(names, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode names file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.cfg.NamesFilePath), 0o755); err != nil {
		return fmt.Errorf("failed to create names file directory: %w", err)
	}
	if err := os.WriteFile(s.cfg.NamesFilePath, encoded, 0o644); err != nil {
		return fmt.Errorf("failed to write names file: %w", err)
	}

	if database.DB != nil {
		if err := database.UpsertStrategyName(magicNumber, name); err != nil {
			return err
		}
	}
	s.InvalidateCache()
	return nil
}

func writeFile(path string, file io.Reader) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer out.Close()
	if _, err := io.Copy(out, file); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return out.Close()
}
