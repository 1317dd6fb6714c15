package vault

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, cfg *Config) string {
	t.Helper()
	data, err := cfg.Marshal()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "vault.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestFileProvider(t *testing.T) {
	cfg := &Config{
		Version:     ConfigVersion,
		VaultID:     "vault-1",
		Name:        "Travel",
		Endpoint:    "https://s3.example.com",
		Region:      "us-west-2",
		Bucket:      "travel-vault",
		Credentials: []byte("sealed credential blob"),
	}
	p := NewFileProvider(writeConfigFile(t, cfg))

	got, err := p.ExportConfig("vault-1")
	require.NoError(t, err)
	assert.Equal(t, cfg.Bucket, got.Bucket)

	// Empty id means "whatever the file holds".
	got, err = p.ExportConfig("")
	require.NoError(t, err)
	assert.Equal(t, "vault-1", got.VaultID)
}

func TestFileProvider_WrongVault(t *testing.T) {
	cfg := &Config{
		Version:     ConfigVersion,
		VaultID:     "vault-1",
		Name:        "Travel",
		Endpoint:    "https://s3.example.com",
		Region:      "us-west-2",
		Bucket:      "travel-vault",
		Credentials: []byte("sealed credential blob"),
	}
	p := NewFileProvider(writeConfigFile(t, cfg))

	_, err := p.ExportConfig("vault-2")
	assert.ErrorIs(t, err, ErrUnknownVault)
}

func TestFileProvider_MissingFile(t *testing.T) {
	p := NewFileProvider(filepath.Join(t.TempDir(), "absent.json"))
	_, err := p.ExportConfig("vault-1")
	assert.Error(t, err)
}

func TestFileProvider_MalformedDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o600))

	p := NewFileProvider(path)
	_, err := p.ExportConfig("vault-1")
	assert.Error(t, err)
}
