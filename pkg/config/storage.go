package config

import (
	"fmt"
	"strings"
	"time"
)

const (
	StorageDriverMemory = "memory"
	StorageDriverSQLite = "sqlite"
)

type StorageConfig struct {
	Driver    string        `koanf:"driver"`
	Path      string        `koanf:"path"`
	Namespace string        `koanf:"namespace"`
	Key       string        `koanf:"key"`
	Timeout   time.Duration `koanf:"timeout"`
}

const defaultNamespace = "@GoMarketplace"
const defaultKey = "cart"

// StorageKey returns the namespaced key the cart snapshot is stored under, e.g. "@GoMarketplace:cart".
func (c *StorageConfig) StorageKey() string {
	return c.Namespace + ":" + c.Key
}

// String returns a string representation of the storage configuration.
func (c *StorageConfig) String() string {
	var b strings.Builder
	b.WriteString("\n--- Storage ---\n")
	b.WriteString(fmt.Sprintf("  driver: %s\n", c.Driver))
	b.WriteString(fmt.Sprintf("  path: %s\n", c.Path))
	b.WriteString(fmt.Sprintf("  key: %s\n", c.StorageKey()))
	b.WriteString(fmt.Sprintf("  timeout: %s\n", c.Timeout))
	return b.String()
}

func (c *StorageConfig) Validate() error {
	if c.Namespace == "" {
		c.Namespace = defaultNamespace
	}
	if c.Key == "" {
		c.Key = defaultKey
	}
	switch c.Driver {
	case StorageDriverMemory:
	case StorageDriverSQLite:
		if c.Path == "" {
			return fmt.Errorf("storage path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("unknown storage driver: %q", c.Driver)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("storage timeout is not configured")
	}
	return nil
}
