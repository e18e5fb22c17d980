package database

import (
	"context"
	"database/sql"
	"fmt"
)

// Tables used by the bundled auth and user endpoints. Timestamps are stored
// as "2006-01-02 15:04:05" UTC strings on SQLite so range comparisons on
// bound parameters behave the same on both drivers.
var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		name VARCHAR(100) NULL,
		username VARCHAR(50) NULL UNIQUE,
		email VARCHAR(255) NOT NULL UNIQUE,
		password VARCHAR(255) NOT NULL,
		role VARCHAR(50) NOT NULL DEFAULT 'user',
		status VARCHAR(20) NOT NULL DEFAULT 'active',
		email_verified_at DATETIME NULL,
		last_login_at DATETIME NULL,
		created_at DATETIME NULL,
		updated_at DATETIME NULL,
		created_by BIGINT UNSIGNED NULL,
		updated_by BIGINT UNSIGNED NULL
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
	`CREATE TABLE IF NOT EXISTS password_resets (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		email VARCHAR(255) NOT NULL,
		token CHAR(64) NOT NULL,
		expires_at DATETIME NOT NULL,
		created_at DATETIME NULL,
		created_by BIGINT UNSIGNED NULL,
		INDEX idx_password_resets_email (email),
		INDEX idx_password_resets_token (token)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
	`CREATE TABLE IF NOT EXISTS remember_tokens (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		user_id BIGINT UNSIGNED NOT NULL,
		token_hash CHAR(64) NOT NULL UNIQUE,
		expires_at DATETIME NOT NULL,
		created_at DATETIME NULL,
		CONSTRAINT fk_remember_tokens_user FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NULL,
		username TEXT NULL UNIQUE,
		email TEXT NOT NULL UNIQUE,
		password TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'user',
		status TEXT NOT NULL DEFAULT 'active',
		email_verified_at TEXT NULL,
		last_login_at TEXT NULL,
		created_at TEXT NULL,
		updated_at TEXT NULL,
		created_by INTEGER NULL,
		updated_by INTEGER NULL
	)`,
	`CREATE TABLE IF NOT EXISTS password_resets (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		email TEXT NOT NULL,
		token TEXT NOT NULL,
		expires_at TEXT NOT NULL,
		created_at TEXT NULL,
		created_by INTEGER NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_password_resets_email ON password_resets (email)`,
	`CREATE TABLE IF NOT EXISTS remember_tokens (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		token_hash TEXT NOT NULL UNIQUE,
		expires_at TEXT NOT NULL,
		created_at TEXT NULL
	)`,
}

// Migrate creates the bundled tables if they do not exist.
func Migrate(ctx context.Context, db *sql.DB, driver string) error {
	stmts := mysqlSchema
	if driver == "sqlite3" {
		stmts = sqliteSchema
	}
	for _, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
