package forward

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/username/quantfolio/backend/src/logger"
	"github.com/username/quantfolio/backend/src/models"
)

// commentTag marks a transaction as forward-test-sourced in its free-text
// comment, alongside the structured Source field.
const commentTag = "[forward]"

// minRowFields is the shortest row the export can produce and still carry
// every field we need.
const minRowFields = 10

type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

// Parse reads a comma-delimited forward-test execution log and groups its
// rows per magic number. Rows that cannot be attributed (magic 0 or
// unparseable) or dated are skipped; they never fail the whole file.
func (p *Parser) Parse(file io.Reader) (*models.ForwardTestData, error) {
	raw, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read forward log: %w", err)
	}

	content := string(raw)
	comma := ','

	// Some exports lead with a separator declaration ("sep=,").
	if strings.HasPrefix(strings.ToLower(content), "sep=") {
		line, rest, found := strings.Cut(content, "\n")
		if found {
			content = rest
		} else {
			content = ""
		}
		decl := strings.TrimSpace(line[len("sep="):])
		if decl != "" {
			comma = rune(decl[0])
		}
	}

	reader := csv.NewReader(strings.NewReader(content))
	reader.Comma = comma
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read forward log header: %w", err)
	}
	cols := resolveColumns(header)

	data := &models.ForwardTestData{
		TradesByMagic: make(map[int][]models.Transaction),
	}
	var minTime, maxTime time.Time

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			if logger.L != nil {
				logger.L.Debug("Skipping unreadable forward log row", "error", err)
			}
			continue
		}
		if len(record) < minRowFields {
			continue
		}

		magic := parseIntField(field(record, cols.magic))
		if magic == 0 {
			// Magic 0 means the trade cannot be attributed to a strategy.
			continue
		}

		openTime := parseRowTime(field(record, cols.openDate), field(record, cols.openTime))
		if openTime.IsZero() {
			continue
		}

		tx := models.Transaction{
			ID:         parseIntField(field(record, cols.ticket)),
			Type:       classifySide(field(record, cols.side)),
			Source:     models.SourceForward,
			OpenTime:   openTime,
			Symbol:     field(record, cols.symbol),
			Volume:     parseFloatField(field(record, cols.volume)),
			OpenPrice:  parseFloatField(field(record, cols.openPrice)),
			ClosePrice: parseFloatField(field(record, cols.closePrice)),
			Profit:     parseFloatField(field(record, cols.profit)),
			Swap:       parseFloatField(field(record, cols.swap)),
			Commission: parseFloatField(field(record, cols.commission)),
			Comment:    strings.TrimSpace(commentTag + " " + field(record, cols.comment)),
			// Balance stays zero: forward logs carry no running balance.
		}

		if _, seen := data.TradesByMagic[magic]; !seen {
			data.MagicNumbers = append(data.MagicNumbers, magic)
		}
		data.TradesByMagic[magic] = append(data.TradesByMagic[magic], tx)

		if minTime.IsZero() || openTime.Before(minTime) {
			minTime = openTime
		}
		if maxTime.IsZero() || openTime.After(maxTime) {
			maxTime = openTime
		}
	}

	for magic := range data.TradesByMagic {
		group := data.TradesByMagic[magic]
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].OpenTime.Before(group[j].OpenTime)
		})
		data.TradesByMagic[magic] = group
	}

	if minTime.IsZero() {
		now := time.Now().UTC()
		minTime, maxTime = now, now
	}
	data.StartDate = minTime
	data.EndDate = maxTime

	return data, nil
}

// columnIndexes holds the resolved position of each field. Column order is
// not stable across export versions, so positions come from header matching,
// never fixed offsets.
type columnIndexes struct {
	ticket, magic, openDate, openTime, side, symbol, volume int
	openPrice, closePrice, profit, swap, commission, comment int
}

func resolveColumns(header []string) columnIndexes {
	return columnIndexes{
		ticket:     findColumn(header, []string{"ticket"}, nil),
		magic:      findColumn(header, []string{"magic"}, nil),
		openDate:   findColumn(header, []string{"open date", "opendate", "date"}, []string{"close"}),
		openTime:   findColumn(header, []string{"open time", "opentime", "time"}, []string{"close", "date"}),
		side:       findColumn(header, []string{"type", "side"}, nil),
		symbol:     findColumn(header, []string{"symbol", "instrument"}, nil),
		volume:     findColumn(header, []string{"volume", "lots", "size"}, nil),
		openPrice:  findColumn(header, []string{"open price", "openprice", "price"}, []string{"close"}),
		closePrice: findColumn(header, []string{"close price", "closeprice"}, nil),
		profit:     findColumn(header, []string{"net profit", "netprofit", "profit"}, nil),
		swap:       findColumn(header, []string{"swap"}, nil),
		commission: findColumn(header, []string{"commission"}, nil),
		comment:    findColumn(header, []string{"comment"}, nil),
	}
}

// findColumn returns the index of the first header cell containing any
// candidate substring (case-insensitive), or -1. More specific candidates
// must come first.
func findColumn(header []string, candidates, exclude []string) int {
	for _, candidate := range candidates {
		for i, cell := range header {
			name := strings.ToLower(strings.TrimSpace(cell))
			if !strings.Contains(name, candidate) {
				continue
			}
			excluded := false
			for _, ex := range exclude {
				if strings.Contains(name, ex) {
					excluded = true
					break
				}
			}
			if !excluded {
				return i
			}
		}
	}
	return -1
}

func field(record []string, idx int) string {
	if idx < 0 || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

func classifySide(s string) models.TradeType {
	if strings.Contains(strings.ToLower(s), "buy") {
		return models.TradeBuy
	}
	return models.TradeSell
}

func parseIntField(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return n
}

// parseFloatField strips thousands-separator commas before parsing.
func parseFloatField(s string) float64 {
	cleaned := strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0
	}
	return v
}

var rowTimeLayouts = []string{
	"01/02/2006 15:04:05",
	"01/02/2006 15:04",
	"2006/01/02 15:04:05",
	"2006/01/02 15:04",
}

var dashTimeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"01-02-2006 15:04:05",
	"01-02-2006 15:04",
}

// parseRowTime assembles an open time from a slash-delimited date field and
// a colon-delimited time field; when that fails it retries with slashes
// normalized to dashes. Unparseable rows yield the zero time.
func parseRowTime(dateStr, timeStr string) time.Time {
	combined := strings.TrimSpace(dateStr + " " + timeStr)
	for _, layout := range rowTimeLayouts {
		if t, err := time.Parse(layout, combined); err == nil {
			return t.UTC()
		}
	}
	normalized := strings.ReplaceAll(combined, "/", "-")
	for _, layout := range dashTimeLayouts {
		if t, err := time.Parse(layout, normalized); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
