package idgen

import (
	"github.com/google/uuid"
)

// ID prefixes for different models
const (
	PrefixInstallation = "inst_"
)

// NewInstallation generates a new installation record ID with inst_ prefix
func NewInstallation() string {
	return PrefixInstallation + uuid.New().String()
}

// New generates a generic UUID without prefix (for internal use only)
func New() string {
	return uuid.New().String()
}
