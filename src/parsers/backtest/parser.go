package backtest

import (
	"errors"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/username/quantfolio/backend/src/logger"
	"github.com/username/quantfolio/backend/src/models"
	"github.com/username/quantfolio/backend/src/parsers"
	"github.com/username/quantfolio/backend/src/utils"
)

// ErrEmptyGrid is returned when the workbook decoded to nothing at all.
// A grid without a recognizable deals table is NOT an error; it yields an
// empty transaction list.
var ErrEmptyGrid = errors.New("backtest report grid is empty")

// equitySeed seeds the derived equity trace when the report carries no
// running balance column.
const equitySeed = 1000.0

const metadataScanRows = 30

var digitsRe = regexp.MustCompile(`\d+`)

// compoundDrawdownRe matches the "percent% (absolute)" drawdown cell form.
var compoundDrawdownRe = regexp.MustCompile(`^\s*(-?[\d\s.,]+)%\s*\(\s*(-?[\d\s.,]+)\s*\)\s*$`)

type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

// Parse converts a raw report grid into metadata, summary and transactions.
// Malformed rows are skipped with a debug log; only an empty grid is fatal.
func (p *Parser) Parse(grid parsers.Grid) (*models.BacktestReport, error) {
	if len(grid) == 0 {
		return nil, ErrEmptyGrid
	}

	metadata, deposit := parseMetadata(grid)
	summary := parseSummary(grid, deposit)
	transactions := parseTransactions(grid)
	monthlyProfits, dailyEquity := deriveMetrics(transactions)

	return &models.BacktestReport{
		Metadata:       metadata,
		Summary:        summary,
		Transactions:   transactions,
		MonthlyProfits: monthlyProfits,
		DailyEquity:    dailyEquity,
	}, nil
}

// parseMetadata scans the leading rows for the identification block. The
// value column is locale-dependent, so every candidate offset is tried.
// Returns the metadata plus the deposit amount, which parseSummary needs to
// cross-derive drawdown percent/absolute figures.
func parseMetadata(grid parsers.Grid) (models.ReportMetadata, float64) {
	metadata := models.ReportMetadata{Currency: "USD"}
	var deposit float64

	limit := metadataScanRows
	if len(grid) < limit {
		limit = len(grid)
	}

	for i := 0; i < limit; i++ {
		label := normalizeLabel(grid.Cell(i, 0))
		if label == "" {
			continue
		}

		switch {
		case strings.Contains(label, "expert") || strings.Contains(label, "magic") || strings.Contains(label, "parameters"):
			if n, ok := findIntValue(grid, i); ok && metadata.MagicNumber == 0 {
				metadata.MagicNumber = n
			}
		case strings.Contains(label, "deposit"):
			if v, ok := findNumericValue(grid, i, 0); ok {
				deposit = v
			}
			if code := findCurrencyCode(grid, i); code != "" {
				metadata.Currency = code
			}
		case strings.Contains(label, "currency"):
			if code := findCurrencyCode(grid, i); code != "" {
				metadata.Currency = code
			}
		case strings.Contains(label, "account"):
			if v := firstNonEmptyValue(grid, i); v != "" {
				metadata.AccountNumber = v
			}
		case strings.Contains(label, "broker") || strings.Contains(label, "company"):
			if v := firstNonEmptyValue(grid, i); v != "" {
				metadata.Broker = v
			}
		case strings.Contains(label, "leverage"):
			// Leverage cells read "1:100"; the ratio's right side is the figure.
			for _, offset := range valueOffsets {
				if groups := digitsRe.FindAllString(grid.Cell(i, offset), -1); len(groups) > 0 {
					metadata.Leverage, _ = strconv.Atoi(groups[len(groups)-1])
					break
				}
			}
		case strings.Contains(label, "comment"):
			if v := firstNonEmptyValue(grid, i); v != "" {
				metadata.CustomComment = v
			}
		}
	}

	return metadata, deposit
}

// parseSummary walks every row against the summary rule table, plus the
// compound-form drawdown labels. Percent and absolute drawdown are
// cross-derived from the deposit when the report only carries one of them.
func parseSummary(grid parsers.Grid, deposit float64) models.ReportSummary {
	var summary models.ReportSummary

	for i := range grid {
		for _, anchor := range labelAnchors {
			label := normalizeLabel(grid.Cell(i, anchor))
			if label == "" {
				continue
			}

			if matchTokens(label, [][]string{{"symbol"}}, nil) && summary.Symbol == "" {
				summary.Symbol = firstNonEmptyValueAt(grid, i, anchor)
			}
			if matchTokens(label, [][]string{{"period"}, {"okres"}}, nil) && summary.Period == "" {
				summary.Period = firstNonEmptyValueAt(grid, i, anchor)
			}

			for _, rule := range summaryRules {
				if !matchTokens(label, rule.tokens, rule.exclude) {
					continue
				}
				if v, ok := findNumericValue(grid, i, anchor); ok {
					rule.assign(&summary, v)
				}
			}

			if matchTokens(label, maximalDrawdownTokens, nil) {
				pct, absVal, ok := findDrawdownValue(grid, i, anchor, strings.Contains(label, "%"))
				if ok {
					if absVal != 0 {
						summary.MaximalDrawdown = absVal
					}
					if pct != 0 {
						summary.MaximalDrawdownPercent = pct
					}
				}
			}
			if matchTokens(label, relativeDrawdownTokens, nil) {
				pct, absVal, ok := findDrawdownValue(grid, i, anchor, strings.Contains(label, "%"))
				if ok {
					if absVal != 0 {
						summary.RelativeDrawdown = absVal
					}
					if pct != 0 {
						summary.RelativeDrawdownPercent = pct
					}
				}
			}
		}
	}

	// Cross-derive whichever drawdown figure the report omitted.
	if deposit > 0 {
		if summary.MaximalDrawdown != 0 && summary.MaximalDrawdownPercent == 0 {
			summary.MaximalDrawdownPercent = summary.MaximalDrawdown / deposit * 100
		}
		if summary.MaximalDrawdownPercent != 0 && summary.MaximalDrawdown == 0 {
			summary.MaximalDrawdown = summary.MaximalDrawdownPercent / 100 * deposit
		}
	}

	if summary.TotalTrades > 0 {
		summary.WinRate = float64(summary.ProfitTrades) / float64(summary.TotalTrades) * 100
	}

	return summary
}

// parseTransactions locates the deals table and parses every row below its
// header until the grid ends. A similarly-labelled "orders" section is
// skipped entirely. Rows without a valid timestamp are dropped.
func parseTransactions(grid parsers.Grid) []models.Transaction {
	headerRow := findDealsHeader(grid)
	if headerRow < 0 {
		if logger.L != nil {
			logger.L.Debug("No deals table header found in report grid")
		}
		return nil
	}

	separateCloseLayout := isSeparateCloseLayout(grid, headerRow)

	var transactions []models.Transaction
	for i := headerRow + 1; i < len(grid); i++ {
		if len(grid[i]) < 5 {
			continue
		}
		tx, ok := parseDealRow(grid, i, separateCloseLayout)
		if !ok {
			if logger.L != nil {
				logger.L.Debug("Skipping malformed deal row", "row", i)
			}
			continue
		}
		transactions = append(transactions, tx)
	}
	return transactions
}

// findDealsHeader prefers an explicit "deals"/"transactions" section label
// (header row is the next row), then falls back to the first row whose first
// cell looks like a time/ticket header. Rows inside an "orders" section are
// never accepted.
func findDealsHeader(grid parsers.Grid) int {
	inOrdersSection := false
	fallback := -1

	for i := range grid {
		first := normalizeLabel(grid.Cell(i, 0))
		switch first {
		case "orders", "zlecenia":
			inOrdersSection = true
			continue
		case "deals", "transactions", "transakcje":
			return i + 1
		}

		if fallback < 0 && !inOrdersSection && looksLikeDealHeader(first) {
			fallback = i
		}
	}
	return fallback
}

func looksLikeDealHeader(first string) bool {
	return strings.Contains(first, "time") || strings.Contains(first, "#") || first == "ticket" || first == "czas"
}

// isSeparateCloseLayout distinguishes the two observed deal layouts: the
// single-timestamp layout has the time in column 0, the open/close layout
// leads with the ticket and keeps its open time in column 1 and close time
// in column 9.
func isSeparateCloseLayout(grid parsers.Grid, headerRow int) bool {
	for i := headerRow + 1; i < len(grid); i++ {
		if len(grid[i]) < 5 {
			continue
		}
		if !parseCellTime(grid.Cell(i, 0)).IsZero() {
			return false
		}
		if !parseCellTime(grid.Cell(i, 1)).IsZero() {
			return true
		}
	}
	return false
}

func parseDealRow(grid parsers.Grid, row int, separateClose bool) (models.Transaction, bool) {
	var tx models.Transaction
	tx.Source = models.SourceBacktest

	if separateClose {
		tx.OpenTime = parseCellTime(grid.Cell(row, 1))
		tx.ID = parseIntCell(grid.Cell(row, 0))
		tx.Type = models.ParseTradeType(grid.Cell(row, 2))
		tx.Symbol = grid.Cell(row, 3)
		tx.Volume, _ = parseNumber(grid.Cell(row, 4))
		tx.OpenPrice, _ = parseNumber(grid.Cell(row, 5))
		tx.ClosePrice, _ = parseNumber(grid.Cell(row, 7))
		tx.CloseTime = parseCellTime(grid.Cell(row, 9))
		tx.Commission, _ = parseNumber(grid.Cell(row, 10))
		tx.Swap, _ = parseNumber(grid.Cell(row, 11))
		tx.Profit, _ = parseNumber(grid.Cell(row, 12))
		tx.Balance, _ = parseNumber(grid.Cell(row, 13))
		tx.Comment = grid.Cell(row, 14)
	} else {
		tx.OpenTime = parseCellTime(grid.Cell(row, 0))
		tx.ID = parseIntCell(grid.Cell(row, 1))
		tx.Symbol = grid.Cell(row, 2)
		tx.Type = models.ParseTradeType(grid.Cell(row, 3))
		tx.Volume, _ = parseNumber(grid.Cell(row, 4))
		tx.OpenPrice, _ = parseNumber(grid.Cell(row, 5))
		tx.Commission, _ = parseNumber(grid.Cell(row, 6))
		tx.Swap, _ = parseNumber(grid.Cell(row, 7))
		tx.Profit, _ = parseNumber(grid.Cell(row, 8))
		tx.Balance, _ = parseNumber(grid.Cell(row, 9))
		tx.Comment = grid.Cell(row, 10)
	}

	if tx.OpenTime.IsZero() {
		return models.Transaction{}, false
	}
	return tx, true
}

// deriveMetrics builds the monthly profit map and the sequential equity
// trace. When the report carries non-zero running balances the trace takes
// them directly; otherwise it reconstructs equity from a fixed seed plus the
// running profit sum.
func deriveMetrics(transactions []models.Transaction) (map[string]float64, []models.EquityPoint) {
	monthly := make(map[string]float64)
	if len(transactions) == 0 {
		return monthly, nil
	}

	sorted := make([]models.Transaction, len(transactions))
	copy(sorted, transactions)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].OpenTime.Before(sorted[j].OpenTime)
	})

	for _, tx := range sorted {
		if tx.Type.IsTrade() {
			monthly[utils.MonthKey(tx.OpenTime)] += tx.Profit
		}
	}

	hasBalances := false
	for _, tx := range sorted {
		if tx.Balance != 0 {
			hasBalances = true
			break
		}
	}

	var equity []models.EquityPoint
	if hasBalances {
		for _, tx := range sorted {
			if tx.Balance == 0 {
				continue
			}
			equity = append(equity, models.EquityPoint{Date: tx.EffectiveCloseTime(), Equity: tx.Balance})
		}
		return monthly, equity
	}

	running := equitySeed
	equity = append(equity, models.EquityPoint{Date: sorted[0].OpenTime, Equity: running})
	for _, tx := range sorted {
		if !tx.Type.IsTrade() {
			continue
		}
		running += tx.Profit
		equity = append(equity, models.EquityPoint{Date: tx.EffectiveCloseTime(), Equity: running})
	}
	return monthly, equity
}

// --- cell helpers ---

// parseNumber parses a numeric cell, tolerating currency suffixes, embedded
// thousands separators (spaces or commas) and percent signs.
func parseNumber(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' || r == '-' {
			b.WriteRune(r)
		}
	}
	cleaned := b.String()
	if cleaned == "" || cleaned == "-" {
		return 0, false
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func parseIntCell(s string) int {
	if m := digitsRe.FindString(s); m != "" {
		n, _ := strconv.Atoi(m)
		return n
	}
	return 0
}

// parseCellTime accepts a spreadsheet date serial or a date string. Invalid
// cells yield the zero time, which callers treat as "no transaction".
func parseCellTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if serial, err := strconv.ParseFloat(s, 64); err == nil {
		// Serials below ~1000 are not plausible dates (year < 1902).
		if serial < 1000 {
			return time.Time{}
		}
		return utils.FromExcelSerial(serial)
	}
	layouts := []string{
		"2006.01.02 15:04:05",
		"2006.01.02 15:04",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05Z07:00",
		"2006.01.02",
		"2006-01-02",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// findNumericValue tries every candidate offset right of the label anchor
// and returns the first cell that parses as a number.
func findNumericValue(grid parsers.Grid, row, anchor int) (float64, bool) {
	for _, offset := range valueOffsets {
		if v, ok := parseNumber(grid.Cell(row, anchor+offset)); ok {
			return v, true
		}
	}
	return 0, false
}

func findIntValue(grid parsers.Grid, row int) (int, bool) {
	for _, offset := range valueOffsets {
		if m := digitsRe.FindString(grid.Cell(row, offset)); m != "" {
			n, err := strconv.Atoi(m)
			if err == nil {
				return n, true
			}
		}
	}
	return 0, false
}

// findDrawdownValue handles both drawdown cell forms: the compound
// "percent% (absolute)" string yields both figures at once; a plain number
// is a percent or an absolute depending on the label.
func findDrawdownValue(grid parsers.Grid, row, anchor int, labelIsPercent bool) (pct, absVal float64, ok bool) {
	for _, offset := range valueOffsets {
		cell := grid.Cell(row, anchor+offset)
		if cell == "" {
			continue
		}
		if m := compoundDrawdownRe.FindStringSubmatch(cell); m != nil {
			p, okP := parseNumber(m[1])
			a, okA := parseNumber(m[2])
			if okP || okA {
				return p, a, true
			}
			continue
		}
		if v, okV := parseNumber(cell); okV {
			if labelIsPercent {
				return v, 0, true
			}
			return 0, v, true
		}
	}
	return 0, 0, false
}

func firstNonEmptyValue(grid parsers.Grid, row int) string {
	return firstNonEmptyValueAt(grid, row, 0)
}

func firstNonEmptyValueAt(grid parsers.Grid, row, anchor int) string {
	for _, offset := range valueOffsets {
		if v := grid.Cell(row, anchor+offset); v != "" {
			return v
		}
	}
	return ""
}

func findCurrencyCode(grid parsers.Grid, row int) string {
	for _, offset := range valueOffsets {
		cell := grid.Cell(row, offset)
		if cell == "" {
			continue
		}
		if len(cell) == 3 && strings.ToUpper(cell) == cell && !strings.ContainsAny(cell, "0123456789") {
			return cell
		}
		// Deposit cells run "10 000.00 USD"; take a trailing 3-letter code.
		fields := strings.Fields(cell)
		if len(fields) > 1 {
			last := fields[len(fields)-1]
			if len(last) == 3 && strings.ToUpper(last) == last && !strings.ContainsAny(last, "0123456789") {
				return last
			}
		}
	}
	return ""
}
