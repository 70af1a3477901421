package parsers

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Grid is the raw row-major cell grid of a spreadsheet report. Cells hold
// the raw stored value: date serials arrive as numeric strings, not
// formatted dates.
type Grid [][]string

// Cell returns the trimmed cell value at (row, col), or "" when the
// coordinates fall outside the ragged grid.
func (g Grid) Cell(row, col int) string {
	if row < 0 || row >= len(g) {
		return ""
	}
	r := g[row]
	if col < 0 || col >= len(r) {
		return ""
	}
	return strings.TrimSpace(r[col])
}

// ReadGrid loads the first sheet of an xlsx workbook into a Grid.
func ReadGrid(path string) (Grid, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook %s: %w", path, err)
	}
	defer f.Close()
	return gridFromFile(f)
}

// ReadGridFrom loads the first sheet of an xlsx workbook from a reader.
func ReadGridFrom(r io.Reader) (Grid, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()
	return gridFromFile(f)
}

func gridFromFile(f *excelize.File) (Grid, error) {
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheets[0], err)
	}
	return Grid(rows), nil
}
