package database

import (
	"database/sql"
	stdlog "log"

	"github.com/smalcash/backend/src/logger"
	_ "modernc.org/sqlite"
)

var DB *sql.DB

func InitDB(databasePath string) {
	db, err := sql.Open("sqlite", databasePath)
	if err != nil {
		stdlog.Fatalf("failed to open database at %s: %v", databasePath, err)
	}

	DB = db

	// WAL lets the sync engine read while a checkout writes; busy_timeout
	// serializes the rare write/write collision instead of failing it.
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=FULL",
	} {
		if _, err := DB.Exec(pragma); err != nil {
			stdlog.Fatalf("failed to set database pragma %q: %v", pragma, err)
		}
	}

	if logger.L != nil {
		logger.L.Info("Checking database migrations", "databasePath", databasePath)
	} else {
		stdlog.Println("Checking database migrations for:", databasePath)
	}
	migrateSalesTable()

	createTableStatement := `
	CREATE TABLE IF NOT EXISTS sales (
		local_id INTEGER PRIMARY KEY AUTOINCREMENT,
		uuid TEXT NOT NULL UNIQUE,
		vendor_id TEXT NOT NULL,
		register_id TEXT NOT NULL,
		operator TEXT NOT NULL,
		lines TEXT NOT NULL,
		gross_total REAL NOT NULL,
		fee REAL NOT NULL,
		sale_day TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		synchronized BOOLEAN NOT NULL DEFAULT FALSE,
		remote_id TEXT,
		sync_error TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_sales_unsynced ON sales(synchronized, local_id);
	CREATE INDEX IF NOT EXISTS idx_sales_vendor_day ON sales(vendor_id, sale_day);

	CREATE TABLE IF NOT EXISTS item_cache (
		vendor_id TEXT NOT NULL,
		item_id TEXT NOT NULL,
		name TEXT NOT NULL,
		price REAL NOT NULL,
		deposit REAL NOT NULL DEFAULT 0,
		category TEXT,
		icon TEXT,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		refreshed_at TIMESTAMP NOT NULL,
		PRIMARY KEY(vendor_id, item_id)
	);

	CREATE TABLE IF NOT EXISTS vendor_cache (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		refreshed_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS register_cache (
		id TEXT PRIMARY KEY,
		vendor_id TEXT NOT NULL,
		name TEXT NOT NULL,
		location TEXT,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		refreshed_at TIMESTAMP NOT NULL
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

// migrateSalesTable adds columns introduced after the first release to an
// existing sales table. CREATE TABLE IF NOT EXISTS covers fresh installs.
func migrateSalesTable() {
	var tableName string
	err := DB.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='sales'").Scan(&tableName)
	if err != nil {
		if err == sql.ErrNoRows {
			if logger.L != nil {
				logger.L.Info("'sales' table does not exist, no migration needed as table will be created.")
			} else {
				stdlog.Println("'sales' table does not exist, no migration needed as table will be created.")
			}
			return
		}
		if logger.L != nil {
			logger.L.Error("Error checking for 'sales' table", "error", err)
		} else {
			stdlog.Printf("Error checking for 'sales' table: %v", err)
		}
		return
	}

	rows, err := DB.Query("PRAGMA table_info(sales)")
	if err != nil {
		if logger.L != nil {
			logger.L.Error("Error querying table schema for 'sales'", "error", err)
		} else {
			stdlog.Printf("Error querying table schema for 'sales': %v", err)
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
				logger.L.Error("Error scanning column info for 'sales'", "error", err)
			} else {
				stdlog.Printf("Error scanning column info for 'sales': %v", err)
			}
			return
		}
		columnExists[name] = true
	}
	if err = rows.Err(); err != nil {
		if logger.L != nil {
			logger.L.Error("Error iterating over column info for 'sales'", "error", err)
		} else {
			stdlog.Printf("Error iterating over column info for 'sales': %v", err)
		}
		return
	}

	if _, ok := columnExists["sync_error"]; !ok {
		_, err := DB.Exec("ALTER TABLE sales ADD COLUMN sync_error TEXT")
		if err != nil {
			logger.L.Error("Error adding 'sync_error' column to 'sales' table", "error", err)
		} else {
			logger.L.Info("Added 'sync_error' column to 'sales' table")
		}
	}

	if _, ok := columnExists["remote_id"]; !ok {
		_, err := DB.Exec("ALTER TABLE sales ADD COLUMN remote_id TEXT")
		if err != nil {
			logger.L.Error("Error adding 'remote_id' column to 'sales' table", "error", err)
		} else {
			logger.L.Info("Added 'remote_id' column to 'sales' table")
		}
	}
}
