package vault

import (
	"fmt"
	"os"
)

// FileProvider exports vault configurations stored as JSON documents on
// disk, one file per vault. It is the provider used by the CLI; app hosts
// plug their own store behind the Provider interface.
type FileProvider struct {
	path string
}

// NewFileProvider points the provider at a config document.
func NewFileProvider(path string) *FileProvider {
	return &FileProvider{path: path}
}

// ExportConfig reads, parses, and validates the document. The requested
// vault id must match the document's; a mismatch means the caller is about
// to beam the wrong vault, which is refused rather than silently served.
func (p *FileProvider) ExportConfig(vaultID string) (*Config, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read vault config: %w", err)
	}

	cfg, err := ParseConfig(data)
	if err != nil {
		return nil, err
	}
	if vaultID != "" && cfg.VaultID != vaultID {
		return nil, fmt.Errorf("%w: %q", ErrUnknownVault, vaultID)
	}
	return cfg, nil
}
