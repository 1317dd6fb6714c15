// Package vault holds the transferable vault configuration, the payload
// encryption used on both transports, and the local activation sequence a
// receiving device runs after a successful transfer.
package vault

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ConfigVersion is the current version of the exported configuration
// document.
const ConfigVersion = 1

// ErrUnknownVault is returned when an export is requested for a vault id
// the provider does not know.
var ErrUnknownVault = errors.New("unknown vault")

// Config is the complete exportable state of a vault: where the remote
// bucket lives plus the (already encrypted at rest) credential material
// needed to reach it. It is exactly what moves between devices; the
// bucket-sync protocol itself is out of scope.
type Config struct {
	Version     int    `json:"version"`
	VaultID     string `json:"vault_id"`
	Name        string `json:"name"`
	Endpoint    string `json:"endpoint"`
	Region      string `json:"region"`
	Bucket      string `json:"bucket"`
	Credentials []byte `json:"credentials"`
}

// Validate checks the structural invariants of a received configuration.
func (c *Config) Validate() error {
	if c.Version != ConfigVersion {
		return fmt.Errorf("unsupported config version %d", c.Version)
	}
	if c.VaultID == "" {
		return errors.New("vault id is empty")
	}
	if c.Bucket == "" {
		return errors.New("bucket is empty")
	}
	if len(c.Credentials) == 0 {
		return errors.New("credentials are empty")
	}
	return nil
}

// Marshal serializes the configuration to its transfer JSON form.
func (c *Config) Marshal() ([]byte, error) {
	return json.Marshal(c)
}

// ParseConfig parses and validates a transferred configuration document.
func ParseConfig(data []byte) (*Config, error) {
	var c Config
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse vault config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid vault config: %w", err)
	}
	return &c, nil
}

// Provider yields the exportable configuration for a vault. The sending
// side's storage layer implements this; the protocol core only consumes it.
type Provider interface {
	ExportConfig(vaultID string) (*Config, error)
}
