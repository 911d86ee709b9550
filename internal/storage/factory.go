// File: internal/storage/factory.go
package storage

import (
	"fmt"

	"github.com/soroscan/soroscan/pkg/utils"
)

// NewStorage creates a storage instance based on configuration
func NewStorage(config *StorageConfig) (Storage, error) {
	switch config.Type {
	case "sqlite":
		return NewSQLiteStorage(config), nil
	case "postgres", "postgresql":
		return NewPostgreSQLStorage(config), nil
	default:
		return nil, utils.NewAppError(utils.ErrCodeValidation,
			"Unsupported storage type",
			fmt.Sprintf("storage type '%s' is not supported, use 'sqlite' or 'postgres'", config.Type))
	}
}
