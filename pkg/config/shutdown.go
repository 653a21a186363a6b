package config

import (
	"fmt"
	"strings"
	"time"
)

// ShutdownConfig bounds graceful shutdown. Servers get Timeout each;
// flushing the pending cart writes afterwards gets DrainTimeout, defaulting to Timeout.
type ShutdownConfig struct {
	Timeout      time.Duration `koanf:"timeout"`
	DrainTimeout time.Duration `koanf:"draintimeout"`
}

// String returns a string representation of the ShutdownConfig.
func (c *ShutdownConfig) String() string {
	var b strings.Builder
	b.WriteString("\n--- Shutdown ---\n")
	b.WriteString(fmt.Sprintf("  timeout: %s\n", c.Timeout))
	b.WriteString(fmt.Sprintf("  draintimeout: %s\n", c.DrainTimeout))
	return b.String()
}

func (c *ShutdownConfig) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("shutdown timeout is not configured")
	}
	if c.DrainTimeout < 0 {
		return fmt.Errorf("shutdown drain timeout must not be negative")
	}
	if c.DrainTimeout == 0 {
		c.DrainTimeout = c.Timeout
	}
	return nil
}
