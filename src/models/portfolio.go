package models

// SavedPortfolio is a persisted strategy selection that can be re-aggregated
// on demand.
type SavedPortfolio struct {
	ID             int64   `json:"id"`
	Name           string  `json:"name"`
	TargetDrawdown float64 `json:"target_drawdown"`
	MagicNumbers   []int   `json:"magic_numbers"`
	CreatedAt      string  `json:"created_at"`
	UpdatedAt      string  `json:"updated_at"`
}
