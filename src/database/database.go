package database

import (
	"database/sql"
	stdlog "log"

	"github.com/username/quantfolio/backend/src/logger"
	_ "modernc.org/sqlite"
)

var DB *sql.DB

func InitDB(databasePath string) {
	db, err := sql.Open("sqlite", databasePath)
	if err != nil {
		stdlog.Fatalf("failed to open database at %s: %v", databasePath, err)
	}

	DB = db

	if logger.L != nil {
		logger.L.Info("Checking database migrations", "databasePath", databasePath)
	} else {
		stdlog.Println("Checking database migrations for:", databasePath)
	}
	migrateStrategySnapshots()

	createTableStatement := `
	CREATE TABLE IF NOT EXISTS strategy_names (
		magic_number INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS portfolios (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		target_drawdown REAL NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS portfolio_strategies (
		portfolio_id INTEGER NOT NULL,
		magic_number INTEGER NOT NULL,
		FOREIGN KEY(portfolio_id) REFERENCES portfolios(id),
		UNIQUE(portfolio_id, magic_number)
	);

	CREATE TABLE IF NOT EXISTS strategy_snapshots (
		magic_number INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		symbol TEXT,
		total_profit REAL,
		total_trades INTEGER,
		win_rate REAL,
		profit_factor REAL,
		max_drawdown REAL,
		max_drawdown_percent REAL,
		sharpe_ratio REAL,
		has_forward_test BOOLEAN DEFAULT FALSE,
		forward_test_start_date TEXT,
		refreshed_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	`

	_, err = DB.Exec(createTableStatement)
	if err != nil {
		if logger.L != nil {
			logger.L.Error("failed to create tables", "error", err)
		}
		stdlog.Fatalf("failed to create tables: %v", err)
	}
	if logger.L != nil {
		logger.L.Info("Database tables ensured/created.")
	} else {
		stdlog.Println("Database tables ensured/created.")
	}
}

func migrateStrategySnapshots() {
	var tableName string
	err := DB.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='strategy_snapshots'").Scan(&tableName)
	if err != nil {
		if err == sql.ErrNoRows {
			if logger.L != nil {
				logger.L.Info("'strategy_snapshots' table does not exist, no migration needed as table will be created.")
			} else {
				stdlog.Println("'strategy_snapshots' table does not exist, no migration needed as table will be created.")
			}
			return
		}
		if logger.L != nil {
			logger.L.Error("Error checking for 'strategy_snapshots' table", "error", err)
		} else {
			stdlog.Printf("Error checking for 'strategy_snapshots' table: %v", err)
		}
		return
	}

	rows, err := DB.Query("PRAGMA table_info(strategy_snapshots)")
	if err != nil {
		if logger.L != nil {
			logger.L.Error("Error querying table schema for 'strategy_snapshots'", "error", err)
		} else {
			stdlog.Printf("Error querying table schema for 'strategy_snapshots': %v", err)
		}
		return
	}
	defer rows.Close()

	columnExists := make(map[string]bool)
	for rows.Next() {
		var cid, pk int
		var name, dataType string
		var notnullVal int
		var dfltValue interface{}

		if err := rows.Scan(&cid, &name, &dataType, &notnullVal, &dfltValue, &pk); err != nil {
			if logger.L != nil {
				logger.L.Error("Error scanning column info for 'strategy_snapshots'", "error", err)
			} else {
				stdlog.Printf("Error scanning column info for 'strategy_snapshots': %v", err)
			}
			return
		}
		columnExists[name] = true
	}
	if err = rows.Err(); err != nil {
		if logger.L != nil {
			logger.L.Error("Error iterating over column info for 'strategy_snapshots'", "error", err)
		} else {
			stdlog.Printf("Error iterating over column info for 'strategy_snapshots': %v", err)
		}
		return
	}

	if _, ok := columnExists["has_forward_test"]; !ok {
		_, err := DB.Exec("ALTER TABLE strategy_snapshots ADD COLUMN has_forward_test BOOLEAN DEFAULT FALSE")
		if err != nil {
			logger.L.Error("Error adding 'has_forward_test' column to 'strategy_snapshots' table", "error", err)
		} else {
			logger.L.Info("Added 'has_forward_test' column to 'strategy_snapshots' table")
		}
	}
	if _, ok := columnExists["forward_test_start_date"]; !ok {
		_, err := DB.Exec("ALTER TABLE strategy_snapshots ADD COLUMN forward_test_start_date TEXT")
		if err != nil {
			logger.L.Error("Error adding 'forward_test_start_date' column to 'strategy_snapshots' table", "error", err)
		} else {
			logger.L.Info("Added 'forward_test_start_date' column to 'strategy_snapshots' table")
		}
	}
	if _, ok := columnExists["sharpe_ratio"]; !ok {
		_, err := DB.Exec("ALTER TABLE strategy_snapshots ADD COLUMN sharpe_ratio REAL")
		if err != nil {
			logger.L.Error("Error adding 'sharpe_ratio' column to 'strategy_snapshots' table", "error", err)
		} else {
			logger.L.Info("Added 'sharpe_ratio' column to 'strategy_snapshots' table")
		}
	}
}
