package postgres

import (
	"database/sql"
	"fmt"
	"log"

	"github.com/kwasham/numzy/config"

	_ "github.com/lib/pq"
)

func NewPostgresDB(cfg *config.DatabaseConfig) (*sql.DB, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Println("Successfully connected to PostgreSQL")
	return db, nil
}

func RunMigrations(db *sql.DB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS receipts (
			id UUID PRIMARY KEY,
			file_name VARCHAR(255) NOT NULL,
			content_type VARCHAR(100) NOT NULL,
			file_size BIGINT NOT NULL,
			stored_path TEXT NOT NULL,
			compressed_path TEXT,
			status VARCHAR(20) NOT NULL DEFAULT 'uploaded',
			fail_reason TEXT,
			merchant VARCHAR(255),
			address TEXT,
			receipt_number VARCHAR(100),
			purchase_date VARCHAR(50),
			purchase_time VARCHAR(50),
			payment_method VARCHAR(100),
			subtotal NUMERIC(12,2),
			tax NUMERIC(12,2),
			total NUMERIC(12,2),
			confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
			needs_manual_review BOOLEAN NOT NULL DEFAULT FALSE,
			math_error BOOLEAN NOT NULL DEFAULT FALSE,
			low_confidence BOOLEAN NOT NULL DEFAULT FALSE,
			unusual_amount BOOLEAN NOT NULL DEFAULT FALSE,
			reviewed BOOLEAN NOT NULL DEFAULT FALSE,
			review_note TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS receipt_items (
			id SERIAL PRIMARY KEY,
			receipt_id UUID NOT NULL REFERENCES receipts(id) ON DELETE CASCADE,
			description TEXT NOT NULL,
			quantity INTEGER NOT NULL DEFAULT 1,
			item_price NUMERIC(12,2) NOT NULL,
			total NUMERIC(12,2) NOT NULL,
			position INTEGER NOT NULL DEFAULT 0
		)`,

		// Indexes
		`CREATE INDEX IF NOT EXISTS idx_receipts_status ON receipts(status)`,
		`CREATE INDEX IF NOT EXISTS idx_receipts_created_at ON receipts(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_receipts_status_updated ON receipts(status, updated_at)`,
		`CREATE INDEX IF NOT EXISTS idx_receipt_items_receipt_id ON receipt_items(receipt_id)`,
	}

	for _, migration := range migrations {
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("failed to execute migration: %v", err)
		}
	}

	log.Println("Database migrations completed successfully")
	return nil
}
