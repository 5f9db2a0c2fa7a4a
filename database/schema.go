package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/apex/log"
)

func schemaStatements(reportsTable string) []string {
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    id CHAR(36) PRIMARY KEY,
    description TEXT NOT NULL,
    image_url TEXT NULL,
    location VARCHAR(255) NOT NULL DEFAULT '',
    latitude DECIMAL(10, 8) NOT NULL,
    longitude DECIMAL(11, 8) NOT NULL,
    user_email VARCHAR(320) NOT NULL,
    created_at TIMESTAMP(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
    INDEX idx_created_at (created_at)
) DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`, reportsTable),

		`CREATE TABLE IF NOT EXISTS report_images (
    bucket VARCHAR(64) NOT NULL,
    object_key VARCHAR(255) NOT NULL,
    content_type VARCHAR(128) NOT NULL,
    data MEDIUMBLOB NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (bucket, object_key)
)`,

		`CREATE TABLE IF NOT EXISTS users (
    id CHAR(36) PRIMARY KEY,
    email VARCHAR(320) NOT NULL,
    password_hash VARCHAR(256) NOT NULL,
    role ENUM('ambulance', 'school_bus', 'casual') NOT NULL DEFAULT 'casual',
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    UNIQUE KEY unique_email (email)
)`,

		`CREATE TABLE IF NOT EXISTS auth_tokens (
    token_hash CHAR(64) PRIMARY KEY,
    user_id CHAR(36) NOT NULL,
    expires_at TIMESTAMP NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE,
    INDEX idx_user (user_id)
)`,
	}
}

// InitializeSchema creates the tables the service needs if they are missing.
func InitializeSchema(ctx context.Context, db *sql.DB, reportsTable string) error {
	if !validIdentifier(reportsTable) {
		return fmt.Errorf("invalid reports table name %q", reportsTable)
	}
	for _, stmt := range schemaStatements(reportsTable) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	log.Infof("Database schema ready (reports table %q)", reportsTable)
	return nil
}
