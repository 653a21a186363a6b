package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/abgdnv/gomarketplace/pkg/config"
)

// ServiceName is used for the environment prefix (CART_), telemetry and the NATS connection name.
const ServiceName = "cart"

// Config holds the configuration of the cart service.
type Config struct {
	HTTPServer config.HTTPConfig       `koanf:"server"`
	Log        config.LogConfig        `koanf:"log"`
	PProf      config.PProfConfig      `koanf:"pprof"`
	GRPC       config.GrpcServerConfig `koanf:"grpc"`
	Shutdown   config.ShutdownConfig   `koanf:"shutdown"`
	Storage    config.StorageConfig    `koanf:"storage"`
	NATS       config.NATSConfig       `koanf:"nats"`
	Resilience config.ResilienceConfig `koanf:"resilience"`
	Telemetry  config.TelemetryConfig  `koanf:"telemetry"`
}

// String returns a string representation of the Config.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Configuration:")
	b.WriteString(c.HTTPServer.String())
	b.WriteString(c.Log.String())
	b.WriteString(c.PProf.String())
	b.WriteString(c.GRPC.String())
	b.WriteString(c.Shutdown.String())
	b.WriteString(c.Storage.String())
	b.WriteString(c.NATS.String())
	b.WriteString(c.Resilience.String())
	b.WriteString(c.Telemetry.String())
	return b.String()
}

// Validate checks every section and reports all problems at once.
func (c *Config) Validate() error {
	sections := []struct {
		name string
		v    interface{ Validate() error }
	}{
		{"server", &c.HTTPServer},
		{"log", &c.Log},
		{"pprof", &c.PProf},
		{"grpc", &c.GRPC},
		{"shutdown", &c.Shutdown},
		{"storage", &c.Storage},
		{"nats", &c.NATS},
		{"resilience", &c.Resilience},
		{"telemetry", &c.Telemetry},
	}
	var errs []error
	for _, s := range sections {
		if err := s.v.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
		}
	}
	return errors.Join(errs...)
}
