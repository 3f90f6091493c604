package config

import (
	"fmt"
	"os"
	"strconv"
)

// Storage driver selectors.
const (
	StorageDriverMemory   = "memory"
	StorageDriverDynamoDB = "dynamodb"
)

// Config holds all application configuration
type Config struct {
	Environment string
	LogLevel    string

	// Storage configuration
	StorageDriver string
	AWSRegion     string
	DynamoDBTable string
	AliasIndex    string // name of a GSI over aliasIndex; no store reads it

	// Signing and integrity configuration
	VaultKeyID           string
	AssertionMethodID    string
	EnableIntegrityCheck bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		StorageDriver: getEnv("STORAGE_DRIVER", StorageDriverMemory),
		AWSRegion:     getEnv("AWS_REGION", "us-west-2"),
		DynamoDBTable: getEnv("TABLE_NAME", "auditgraph"),
		AliasIndex:    getEnv("ALIAS_INDEX_NAME", "AliasIndex"),

		VaultKeyID:           getEnv("VAULT_KEY_ID", "auditable-item-graph"),
		AssertionMethodID:    getEnv("ASSERTION_METHOD_ID", "auditable-item-graph"),
		EnableIntegrityCheck: getEnvBool("ENABLE_INTEGRITY_CHECK", true),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if all required configuration is present
func (c *Config) Validate() error {
	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverDynamoDB:
		if c.DynamoDBTable == "" {
			return fmt.Errorf("TABLE_NAME is required for the dynamodb storage driver")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.StorageDriver)
	}

	if c.VaultKeyID == "" {
		return fmt.Errorf("VAULT_KEY_ID must not be empty")
	}
	if c.AssertionMethodID == "" {
		return fmt.Errorf("ASSERTION_METHOD_ID must not be empty")
	}

	return nil
}

// getEnv retrieves an environment variable with a fallback
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// getEnvBool retrieves a boolean environment variable with a fallback
func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}
