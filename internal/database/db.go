package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// Open connects to MySQL and verifies the connection.
func Open(user, pass, host, port, name string) (*sql.DB, error) {
	auth := user
	if pass != "" {
		auth = fmt.Sprintf("%s:%s", user, pass)
	}
	// parseTime=true -> DATETIME -> time.Time | loc=UTC keeps times consistent
	dsn := fmt.Sprintf("%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=UTC",
		auth, host, port, name)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}

	// Pool settings
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(50)
	db.SetConnMaxLifetime(30 * time.Minute)

	// Ping with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return db, nil
}

// schemaStatements creates every table the service needs.  Statements are
// idempotent so startup can run them unconditionally.  The `active` column
// is the heart of the seat invariant: it is 1 while a row is HELD or
// CONFIRMED and NULL otherwise, so the unique index over
// (schedule_id, seat_no, active) admits at most one active reservation per
// seat while ignoring retired rows.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS seats (
		id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		schedule_id BIGINT UNSIGNED NOT NULL,
		seat_no VARCHAR(16) NOT NULL,
		price_cents INT UNSIGNED NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE KEY uq_seats_schedule_seat (schedule_id, seat_no)
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS reservations (
		id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		schedule_id BIGINT UNSIGNED NOT NULL,
		seat_no VARCHAR(16) NOT NULL,
		user_id BIGINT UNSIGNED NOT NULL,
		status VARCHAR(16) NOT NULL,
		active TINYINT NULL,
		held_at DATETIME NOT NULL,
		expires_at DATETIME NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		UNIQUE KEY uq_reservations_active (schedule_id, seat_no, active),
		KEY idx_reservations_expiry (status, active, expires_at)
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS outbox_events (
		event_id VARCHAR(64) NOT NULL PRIMARY KEY,
		topic VARCHAR(120) NOT NULL,
		event_key VARCHAR(120) NOT NULL,
		payload JSON NOT NULL,
		status VARCHAR(20) NOT NULL,
		retry_count INT NOT NULL DEFAULT 0,
		max_retry INT NOT NULL DEFAULT 10,
		next_retry_at DATETIME NOT NULL,
		published_at DATETIME NULL,
		last_error VARCHAR(500) NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		KEY idx_outbox_pending (status, next_retry_at)
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS payment_orders (
		id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		order_no VARCHAR(64) NOT NULL,
		user_id BIGINT UNSIGNED NOT NULL,
		schedule_id BIGINT UNSIGNED NOT NULL,
		seat_no VARCHAR(16) NOT NULL,
		amount_cents INT UNSIGNED NOT NULL,
		status VARCHAR(20) NOT NULL,
		fail_reason VARCHAR(255) NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		UNIQUE KEY uq_payment_orders_order_no (order_no),
		KEY idx_payment_orders_seat (schedule_id, seat_no, user_id, status)
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS consumer_dedup (
		event_id VARCHAR(64) NOT NULL PRIMARY KEY,
		processed_at DATETIME NOT NULL
	) ENGINE=InnoDB`,
}

// EnsureSchema creates any missing tables.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
