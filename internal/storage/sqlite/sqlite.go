package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"stridebot/internal/storage"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStorage implements storage.Storage using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

// New creates a new SQLite storage instance
func New(dbPath string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &SQLiteStorage{db: db}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return s, nil
}

// migrate creates the database schema
func (s *SQLiteStorage) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS installations (
			id TEXT NOT NULL,
			cloud_id TEXT NOT NULL,
			conversation_id TEXT PRIMARY KEY,
			installed_by TEXT NOT NULL,
			installed_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS conversation_configs (
			conversation_id TEXT PRIMARY KEY,
			notification_level TEXT NOT NULL,
			updated_at DATETIME NOT NULL
		);
	`

	_, err := s.db.Exec(schema)
	return err
}

// SaveInstallation inserts or replaces an installation record
func (s *SQLiteStorage) SaveInstallation(ctx context.Context, installation *storage.Installation) error {
	query := `
		INSERT OR REPLACE INTO installations (id, cloud_id, conversation_id, installed_by, installed_at)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		installation.ID,
		installation.CloudID,
		installation.ConversationID,
		installation.InstalledBy,
		installation.InstalledAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save installation: %w", err)
	}
	return nil
}

// GetInstallation returns the installation for a conversation, or nil if
// the app is not installed there
func (s *SQLiteStorage) GetInstallation(ctx context.Context, conversationID string) (*storage.Installation, error) {
	query := `
		SELECT id, cloud_id, conversation_id, installed_by, installed_at
		FROM installations
		WHERE conversation_id = ?
	`
	var inst storage.Installation
	var installedAt time.Time
	err := s.db.QueryRowContext(ctx, query, conversationID).Scan(
		&inst.ID,
		&inst.CloudID,
		&inst.ConversationID,
		&inst.InstalledBy,
		&installedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get installation: %w", err)
	}
	inst.InstalledAt = installedAt.UTC()
	return &inst, nil
}

// ListInstallations returns all installation records
func (s *SQLiteStorage) ListInstallations(ctx context.Context) ([]*storage.Installation, error) {
	query := `
		SELECT id, cloud_id, conversation_id, installed_by, installed_at
		FROM installations
		ORDER BY installed_at
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list installations: %w", err)
	}
	defer rows.Close()

	var installations []*storage.Installation
	for rows.Next() {
		var inst storage.Installation
		var installedAt time.Time
		if err := rows.Scan(&inst.ID, &inst.CloudID, &inst.ConversationID, &inst.InstalledBy, &installedAt); err != nil {
			return nil, fmt.Errorf("failed to scan installation: %w", err)
		}
		inst.InstalledAt = installedAt.UTC()
		installations = append(installations, &inst)
	}
	return installations, rows.Err()
}

// DeleteInstallation removes the installation record for a conversation
func (s *SQLiteStorage) DeleteInstallation(ctx context.Context, conversationID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM installations WHERE conversation_id = ?`, conversationID)
	if err != nil {
		return fmt.Errorf("failed to delete installation: %w", err)
	}
	return nil
}

// GetConversationConfig returns the saved configuration for a
// conversation, or nil if it has never been configured
func (s *SQLiteStorage) GetConversationConfig(ctx context.Context, conversationID string) (*storage.ConversationConfig, error) {
	query := `
		SELECT conversation_id, notification_level, updated_at
		FROM conversation_configs
		WHERE conversation_id = ?
	`
	var config storage.ConversationConfig
	var updatedAt time.Time
	err := s.db.QueryRowContext(ctx, query, conversationID).Scan(
		&config.ConversationID,
		&config.NotificationLevel,
		&updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation config: %w", err)
	}
	config.UpdatedAt = updatedAt.UTC()
	return &config, nil
}

// SaveConversationConfig inserts or replaces the configuration for a
// conversation
func (s *SQLiteStorage) SaveConversationConfig(ctx context.Context, config *storage.ConversationConfig) error {
	query := `
		INSERT OR REPLACE INTO conversation_configs (conversation_id, notification_level, updated_at)
		VALUES (?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		config.ConversationID,
		config.NotificationLevel,
		config.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save conversation config: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
