package storage

import (
	"context"
	"time"
)

// Installation records where the app has been installed and by whom.
type Installation struct {
	ID             string    `json:"id"`
	CloudID        string    `json:"cloud_id"`
	ConversationID string    `json:"conversation_id"`
	InstalledBy    string    `json:"installed_by"`
	InstalledAt    time.Time `json:"installed_at"`
}

// ConversationConfig is the per-conversation configuration saved from the
// config dialog.
type ConversationConfig struct {
	ConversationID    string    `json:"conversation_id"`
	NotificationLevel string    `json:"notification_level"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Storage defines the interface for data persistence
type Storage interface {
	// Installations
	SaveInstallation(ctx context.Context, installation *Installation) error
	GetInstallation(ctx context.Context, conversationID string) (*Installation, error)
	ListInstallations(ctx context.Context) ([]*Installation, error)
	DeleteInstallation(ctx context.Context, conversationID string) error

	// Conversation configuration
	GetConversationConfig(ctx context.Context, conversationID string) (*ConversationConfig, error)
	SaveConversationConfig(ctx context.Context, config *ConversationConfig) error

	// Lifecycle
	Close() error
}
