package backtest

import (
	"strings"

	"github.com/username/quantfolio/backend/src/models"
)

// summaryRule binds a family of label spellings to a summary field. The
// report tooling emits labels in English or Polish depending on the terminal
// locale, and the cell holding the value sits at a locale-dependent offset
// from the label, so rules carry token alternatives rather than fixed
// positions. New report variants extend this table instead of branching in
// the parser.
type summaryRule struct {
	// tokens: the label matches when it contains every token of at least one
	// alternative (alternatives are separate []string entries).
	tokens [][]string
	// exclude: the label never matches when it contains any of these.
	exclude []string
	assign  func(s *models.ReportSummary, v float64)
}

// valueOffsets are the candidate distances from a label cell to its value
// cell, tried in order. Observed layouts put the value 1 or 3 columns to the
// right of the label, for labels anchored at columns 0, 4 and 8 (main block,
// left panel, right panel).
var valueOffsets = []int{1, 3}

// labelAnchors are the columns a label cell may sit in.
var labelAnchors = []int{0, 4, 8}

var summaryRules = []summaryRule{
	{
		tokens: [][]string{{"total net profit"}, {"zysk netto"}},
		assign: func(s *models.ReportSummary, v float64) { s.TotalNetProfit = v },
	},
	{
		tokens:  [][]string{{"gross profit"}, {"zysk brutto"}},
		exclude: []string{"loss", "strata"},
		assign:  func(s *models.ReportSummary, v float64) { s.GrossProfit = v },
	},
	{
		tokens: [][]string{{"gross loss"}, {"strata brutto"}},
		assign: func(s *models.ReportSummary, v float64) { s.GrossLoss = abs(v) },
	},
	{
		tokens: [][]string{{"profit factor"}, {"wspolczynnik zysku"}},
		assign: func(s *models.ReportSummary, v float64) { s.ProfitFactor = v },
	},
	{
		tokens: [][]string{{"expected payoff"}, {"oczekiwana wyplata"}},
		assign: func(s *models.ReportSummary, v float64) { s.ExpectedPayoff = v },
	},
	{
		tokens: [][]string{{"absolute drawdown"}, {"obsuniecie absolutne"}},
		assign: func(s *models.ReportSummary, v float64) { s.AbsoluteDrawdown = v },
	},
	{
		tokens: [][]string{{"total trades"}, {"total deals"}, {"liczba transakcji"}},
		assign: func(s *models.ReportSummary, v float64) { s.TotalTrades = int(v) },
	},
	{
		tokens: [][]string{{"short", "won"}, {"krotkie pozycje"}},
		assign: func(s *models.ReportSummary, v float64) { s.ShortPositions = int(v) },
	},
	{
		tokens: [][]string{{"long", "won"}, {"dlugie pozycje"}},
		assign: func(s *models.ReportSummary, v float64) { s.LongPositions = int(v) },
	},
	{
		tokens: [][]string{{"profit trades"}, {"transakcje zyskowne"}},
		assign: func(s *models.ReportSummary, v float64) { s.ProfitTrades = int(v) },
	},
	{
		tokens: [][]string{{"loss trades"}, {"transakcje stratne"}},
		assign: func(s *models.ReportSummary, v float64) { s.LossTrades = int(v) },
	},
	{
		tokens:  [][]string{{"largest", "profit"}, {"najbardziej zyskowna"}},
		exclude: []string{"loss", "stratna"},
		assign:  func(s *models.ReportSummary, v float64) { s.LargestProfitTrade = v },
	},
	{
		tokens: [][]string{{"largest", "loss"}, {"najbardziej stratna"}},
		assign: func(s *models.ReportSummary, v float64) { s.LargestLossTrade = abs(v) },
	},
	{
		tokens:  [][]string{{"average", "profit"}, {"srednia zyskowna"}},
		exclude: []string{"loss", "stratna"},
		assign:  func(s *models.ReportSummary, v float64) { s.AverageProfitTrade = v },
	},
	{
		tokens: [][]string{{"average", "loss"}, {"srednia stratna"}},
		assign: func(s *models.ReportSummary, v float64) { s.AverageLossTrade = abs(v) },
	},
	{
		tokens: [][]string{{"maximum consecutive wins"}, {"maksymalne kolejne wygrane"}},
		assign: func(s *models.ReportSummary, v float64) { s.MaxConsecutiveWins = int(v) },
	},
	{
		tokens: [][]string{{"maximum consecutive losses"}, {"maksymalne kolejne przegrane"}},
		assign: func(s *models.ReportSummary, v float64) { s.MaxConsecutiveLosses = int(v) },
	},
	{
		tokens: [][]string{{"maximal consecutive profit"}, {"maksymalny kolejny zysk"}},
		assign: func(s *models.ReportSummary, v float64) { s.MaxConsecutiveProfit = v },
	},
	{
		tokens: [][]string{{"maximal consecutive loss"}, {"maksymalna kolejna strata"}},
		assign: func(s *models.ReportSummary, v float64) { s.MaxConsecutiveLoss = abs(v) },
	},
}

// drawdownTokens match the maximal/relative drawdown labels, which carry the
// compound "percent% (absolute)" form handled outside the plain rule table.
var (
	maximalDrawdownTokens  = [][]string{{"maximal drawdown"}, {"maksymalne obsuniecie"}}
	relativeDrawdownTokens = [][]string{{"relative drawdown"}, {"wzgledne obsuniecie"}}
)

// polishFold maps Polish diacritics to ASCII so token matching can stay
// plain-lowercase on both report locales.
var polishFold = strings.NewReplacer(
	"ą", "a", "ć", "c", "ę", "e", "ł", "l", "ń", "n",
	"ó", "o", "ś", "s", "ź", "z", "ż", "z",
)

func normalizeLabel(label string) string {
	return polishFold.Replace(strings.ToLower(strings.TrimSpace(label)))
}

func matchTokens(label string, alternatives [][]string, exclude []string) bool {
	for _, ex := range exclude {
		if strings.Contains(label, ex) {
			return false
		}
	}
	for _, alt := range alternatives {
		all := true
		for _, token := range alt {
			if !strings.Contains(label, token) {
				all = false
				break
			}
		}
		if all {
			return true
		}
	}
	return false
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
