package database

import (
	"database/sql"
	"fmt"

	"github.com/username/quantfolio/backend/src/models"
)

// SaveStrategySnapshot upserts the headline figures of a reconciled strategy.
// Snapshots survive restarts so the dashboard has data before the first refresh.
func SaveStrategySnapshot(record models.StrategyRecord) error {
	_, err := DB.Exec(`
		INSERT INTO strategy_snapshots (
			magic_number, name, symbol, total_profit, total_trades, win_rate,
			profit_factor, max_drawdown, max_drawdown_percent, sharpe_ratio,
			has_forward_test, forward_test_start_date, refreshed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(magic_number) DO UPDATE SET
			name = excluded.name,
			symbol = excluded.symbol,
			total_profit = excluded.total_profit,
			total_trades = excluded.total_trades,
			win_rate = excluded.win_rate,
			profit_factor = excluded.profit_factor,
			max_drawdown = excluded.max_drawdown,
			max_drawdown_percent = excluded.max_drawdown_percent,
			sharpe_ratio = excluded.sharpe_ratio,
			has_forward_test = excluded.has_forward_test,
			forward_test_start_date = excluded.forward_test_start_date,
			refreshed_at = CURRENT_TIMESTAMP`,
		record.MagicNumber, record.Name, record.Symbol, record.TotalProfit,
		record.TotalTrades, record.WinRate, record.ProfitFactor,
		record.MaxDrawdown, record.MaxDrawdownPercent, record.SharpeRatio,
		record.HasForwardTest, record.ForwardTestStartDate,
	)
	if err != nil {
		return fmt.Errorf("failed to save snapshot for strategy %d: %w", record.MagicNumber, err)
	}
	return nil
}

// ListStrategySnapshots returns the persisted headline figures, most
// profitable first.
func ListStrategySnapshots() ([]models.StrategyRecord, error) {
	rows, err := DB.Query(`
		SELECT magic_number, name, symbol, total_profit, total_trades, win_rate,
			profit_factor, max_drawdown, max_drawdown_percent, sharpe_ratio,
			has_forward_test, forward_test_start_date
		FROM strategy_snapshots
		ORDER BY total_profit DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list strategy snapshots: %w", err)
	}
	defer rows.Close()

	var records []models.StrategyRecord
	for rows.Next() {
		var record models.StrategyRecord
		var forwardStart sql.NullString
		if err := rows.Scan(
			&record.MagicNumber, &record.Name, &record.Symbol,
			&record.TotalProfit, &record.TotalTrades, &record.WinRate,
			&record.ProfitFactor, &record.MaxDrawdown, &record.MaxDrawdownPercent,
			&record.SharpeRatio, &record.HasForwardTest, &forwardStart,
		); err != nil {
			return nil, fmt.Errorf("failed to scan strategy snapshot: %w", err)
		}
		record.ForwardTestStartDate = forwardStart.String
		records = append(records, record)
	}
	return records, rows.Err()
}

// DeleteStrategySnapshot removes a persisted snapshot and its name override.
func DeleteStrategySnapshot(magicNumber int) error {
	result, err := DB.Exec("DELETE FROM strategy_snapshots WHERE magic_number = ?", magicNumber)
	if err != nil {
		return fmt.Errorf("failed to delete snapshot for strategy %d: %w", magicNumber, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check snapshot delete: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return DeleteStrategyName(magicNumber)
}

// SetPortfolioStrategies replaces a portfolio's membership without touching
// its name or target drawdown.
func SetPortfolioStrategies(id int64, magicNumbers []int) error {
	var exists int
	err := DB.QueryRow("SELECT COUNT(1) FROM portfolios WHERE id = ?", id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check portfolio %d: %w", id, err)
	}
	if exists == 0 {
		return sql.ErrNoRows
	}

	tx, err := DB.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin portfolio transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM portfolio_strategies WHERE portfolio_id = ?", id); err != nil {
		return fmt.Errorf("failed to clear portfolio %d members: %w", id, err)
	}
	for _, magic := range magicNumbers {
		if _, err := tx.Exec(
			"INSERT INTO portfolio_strategies (portfolio_id, magic_number) VALUES (?, ?)",
			id, magic,
		); err != nil {
			return fmt.Errorf("failed to attach strategy %d to portfolio %d: %w", magic, id, err)
		}
	}
	if _, err := tx.Exec("UPDATE portfolios SET updated_at = CURRENT_TIMESTAMP WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to touch portfolio %d: %w", id, err)
	}
	return tx.Commit()
}

// UpsertStrategyName stores a display-name override for a magic number.
func UpsertStrategyName(magicNumber int, name string) error {
	_, err := DB.Exec(`
		INSERT INTO strategy_names (magic_number, name, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(magic_number) DO UPDATE SET
			name = excluded.name,
			updated_at = CURRENT_TIMESTAMP`,
		magicNumber, name,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert name for strategy %d: %w", magicNumber, err)
	}
	return nil
}

func DeleteStrategyName(magicNumber int) error {
	_, err := DB.Exec("DELETE FROM strategy_names WHERE magic_number = ?", magicNumber)
	if err != nil {
		return fmt.Errorf("failed to delete name for strategy %d: %w", magicNumber, err)
	}
	return nil
}

// GetStrategyNames returns every stored name override keyed by magic number.
func GetStrategyNames() (map[int]string, error) {
	rows, err := DB.Query("SELECT magic_number, name FROM strategy_names")
	if err != nil {
		return nil, fmt.Errorf("failed to load strategy names: %w", err)
	}
	defer rows.Close()

	names := make(map[int]string)
	for rows.Next() {
		var magic int
		var name string
		if err := rows.Scan(&magic, &name); err != nil {
			return nil, fmt.Errorf("failed to scan strategy name: %w", err)
		}
		names[magic] = name
	}
	return names, rows.Err()
}

// CreatePortfolio stores a named strategy selection and its members in one
// transaction.
func CreatePortfolio(name string, targetDrawdown float64, magicNumbers []int) (int64, error) {
	tx, err := DB.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin portfolio transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(
		"INSERT INTO portfolios (name, target_drawdown) VALUES (?, ?)",
		name, targetDrawdown,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert portfolio %q: %w", name, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read portfolio id: %w", err)
	}

	for _, magic := range magicNumbers {
		if _, err := tx.Exec(
			"INSERT INTO portfolio_strategies (portfolio_id, magic_number) VALUES (?, ?)",
			id, magic,
		); err != nil {
			return 0, fmt.Errorf("failed to attach strategy %d to portfolio %q: %w", magic, name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit portfolio %q: %w", name, err)
	}
	return id, nil
}

// UpdatePortfolio replaces a portfolio's name, target drawdown and membership.
func UpdatePortfolio(id int64, name string, targetDrawdown float64, magicNumbers []int) error {
	tx, err := DB.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin portfolio transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(
		"UPDATE portfolios SET name = ?, target_drawdown = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		name, targetDrawdown, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update portfolio %d: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check portfolio update: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}

	if _, err := tx.Exec("DELETE FROM portfolio_strategies WHERE portfolio_id = ?", id); err != nil {
		return fmt.Errorf("failed to clear portfolio %d members: %w", id, err)
	}
	for _, magic := range magicNumbers {
		if _, err := tx.Exec(
			"INSERT INTO portfolio_strategies (portfolio_id, magic_number) VALUES (?, ?)",
			id, magic,
		); err != nil {
			return fmt.Errorf("failed to attach strategy %d to portfolio %d: %w", magic, id, err)
		}
	}

	return tx.Commit()
}

func DeletePortfolio(id int64) error {
	tx, err := DB.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin portfolio transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM portfolio_strategies WHERE portfolio_id = ?", id); err != nil {
		return fmt.Errorf("failed to delete portfolio %d members: %w", id, err)
	}
	result, err := tx.Exec("DELETE FROM portfolios WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete portfolio %d: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check portfolio delete: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}

	return tx.Commit()
}

// GetPortfolio loads one saved portfolio with its member magic numbers.
func GetPortfolio(id int64) (*models.SavedPortfolio, error) {
	portfolio := &models.SavedPortfolio{ID: id}
	err := DB.QueryRow(
		"SELECT name, target_drawdown, created_at, updated_at FROM portfolios WHERE id = ?", id,
	).Scan(&portfolio.Name, &portfolio.TargetDrawdown, &portfolio.CreatedAt, &portfolio.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to load portfolio %d: %w", id, err)
	}

	rows, err := DB.Query(
		"SELECT magic_number FROM portfolio_strategies WHERE portfolio_id = ? ORDER BY magic_number", id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load portfolio %d members: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var magic int
		if err := rows.Scan(&magic); err != nil {
			return nil, fmt.Errorf("failed to scan portfolio member: %w", err)
		}
		portfolio.MagicNumbers = append(portfolio.MagicNumbers, magic)
	}
	return portfolio, rows.Err()
}

// ListPortfolios returns every saved portfolio with members populated.
func ListPortfolios() ([]models.SavedPortfolio, error) {
	rows, err := DB.Query("SELECT id, name, target_drawdown, created_at, updated_at FROM portfolios ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list portfolios: %w", err)
	}
	defer rows.Close()

	var portfolios []models.SavedPortfolio
	for rows.Next() {
		var p models.SavedPortfolio
		if err := rows.Scan(&p.ID, &p.Name, &p.TargetDrawdown, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan portfolio: %w", err)
		}
		portfolios = append(portfolios, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range portfolios {
		memberRows, err := DB.Query(
			"SELECT magic_number FROM portfolio_strategies WHERE portfolio_id = ? ORDER BY magic_number",
			portfolios[i].ID,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to load portfolio %d members: %w", portfolios[i].ID, err)
		}
		for memberRows.Next() {
			var magic int
			if err := memberRows.Scan(&magic); err != nil {
				memberRows.Close()
				return nil, fmt.Errorf("failed to scan portfolio member: %w", err)
			}
			portfolios[i].MagicNumbers = append(portfolios[i].MagicNumbers, magic)
		}
		if err := memberRows.Err(); err != nil {
			memberRows.Close()
			return nil, err
		}
		memberRows.Close()
	}
	return portfolios, nil
}
