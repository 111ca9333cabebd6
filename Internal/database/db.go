package datafeed

import (
	"database/sql"
	"fmt"
	"os"

	_ "github.com/lib/pq"
)

var DB *sql.DB

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

func InitDatabase() error {
	config := DatabaseConfig{
		Host:     getEnvOrDefault("DB_HOST", "localhost"),
		Port:     getEnvOrDefault("DB_PORT", "5432"),
		User:     getEnvOrDefault("DB_USER", "postgres"),
		Password: os.Getenv("DB_PASSWORD"), // Required - no default
		DBName:   getEnvOrDefault("DB_NAME", "rangerider"),
		SSLMode:  getEnvOrDefault("DB_SSLMODE", "disable"),
	}

	connStr := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.DBName, config.SSLMode)

	var err error
	DB, err = sql.Open("postgres", connStr)
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}

	if err = DB.Ping(); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	if err = initializeSchema(); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

// initializeSchema creates the trades table if it doesn't exist
func initializeSchema() error {
	schemaSQL := `
	CREATE TABLE IF NOT EXISTS trades (
		id TEXT PRIMARY KEY,
		strategy TEXT NOT NULL,
		symbol TEXT NOT NULL,
		contract TEXT NOT NULL,
		direction TEXT NOT NULL,
		signal_type TEXT,
		quantity TEXT NOT NULL,
		entry_price TEXT NOT NULL,
		entry_time TIMESTAMPTZ NOT NULL,
		risk_unit TEXT NOT NULL,
		stop_price TEXT,
		target_price TEXT,
		status TEXT NOT NULL DEFAULT 'OPEN',
		exit_price TEXT,
		exit_time TIMESTAMPTZ,
		exit_reason TEXT,
		realized_pnl TEXT,
		created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol);
	CREATE INDEX IF NOT EXISTS idx_trades_status ON trades(status);
	CREATE INDEX IF NOT EXISTS idx_trades_entry_time ON trades(entry_time);
	`

	_, err := DB.Exec(schemaSQL)
	return err
}

func CloseDatabase() error {
	if DB != nil {
		return DB.Close()
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func HealthCheck() error {
	if DB == nil {
		return fmt.Errorf("database connection is nil")
	}
	return DB.Ping()
}
