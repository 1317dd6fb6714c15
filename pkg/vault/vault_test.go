package vault

import (
	"context"
	"crypto/rand"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *Config {
	return &Config{
		Version:     ConfigVersion,
		VaultID:     "vault-1",
		Name:        "Family photos",
		Endpoint:    "https://s3.example.com",
		Region:      "eu-central-1",
		Bucket:      "family-photos",
		Credentials: []byte("sealed-credential-blob"),
	}
}

func TestConfigRoundTrip(t *testing.T) {
	cfg := testConfig()

	data, err := cfg.Marshal()
	require.NoError(t, err)

	parsed, err := ParseConfig(data)
	require.NoError(t, err)
	assert.Equal(t, cfg, parsed)
}

func TestParseConfig_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"wrong version", func(c *Config) { c.Version = 99 }},
		{"missing vault id", func(c *Config) { c.VaultID = "" }},
		{"missing bucket", func(c *Config) { c.Bucket = "" }},
		{"missing credentials", func(c *Config) { c.Credentials = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(cfg)
			data, err := cfg.Marshal()
			require.NoError(t, err)
			_, err = ParseConfig(data)
			assert.Error(t, err)
		})
	}
}

func TestEncryptDecryptPayload(t *testing.T) {
	secret := make([]byte, 32)
	_, err := rand.Read(secret)
	require.NoError(t, err)

	const sessionID = "session-123"
	plaintext := []byte(`{"vault_id":"vault-1"}`)

	sealed, err := EncryptPayload(secret, sessionID, plaintext)
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "vault-1")

	opened, err := DecryptPayload(secret, sessionID, sealed)
	require.NoError(t, err)
	assert.Equal(t, plaintext, opened)
}

func TestDecryptPayload_IntegrityFailures(t *testing.T) {
	secret := make([]byte, 32)
	_, err := rand.Read(secret)
	require.NoError(t, err)

	const sessionID = "session-123"
	sealed, err := EncryptPayload(secret, sessionID, []byte("payload"))
	require.NoError(t, err)

	t.Run("tampered ciphertext", func(t *testing.T) {
		bad := append([]byte(nil), sealed...)
		bad[len(bad)-1] ^= 0x01
		_, err := DecryptPayload(secret, sessionID, bad)
		assert.ErrorIs(t, err, ErrIntegrityCheckFailed)
	})

	t.Run("truncated", func(t *testing.T) {
		_, err := DecryptPayload(secret, sessionID, sealed[:10])
		assert.ErrorIs(t, err, ErrIntegrityCheckFailed)
	})

	t.Run("wrong session id", func(t *testing.T) {
		_, err := DecryptPayload(secret, "other-session", sealed)
		assert.ErrorIs(t, err, ErrIntegrityCheckFailed)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := make([]byte, 32)
		_, err := rand.Read(other)
		require.NoError(t, err)
		_, err = DecryptPayload(other, sessionID, sealed)
		assert.ErrorIs(t, err, ErrIntegrityCheckFailed)
	})
}

type fakeStep struct {
	called bool
	err    error
	delay  time.Duration
}

func (f *fakeStep) run(ctx context.Context) error {
	f.called = true
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return f.err
}

type fakeStore struct{ fakeStep }

func (f *fakeStore) SaveCredentials(ctx context.Context, _ *Config) error { return f.run(ctx) }

type fakeLoader struct{ fakeStep }

func (f *fakeLoader) LoadVault(ctx context.Context, _ string) error { return f.run(ctx) }

type fakeSyncer struct{ fakeStep }

func (f *fakeSyncer) SyncFromRemote(ctx context.Context, _ string) error { return f.run(ctx) }

func TestActivator_RunsAllSteps(t *testing.T) {
	store, loader, syncer := &fakeStore{}, &fakeLoader{}, &fakeSyncer{}
	a := NewActivator(store, loader, syncer, nil)

	err := a.Activate(context.Background(), testConfig())
	require.NoError(t, err)
	assert.True(t, store.called)
	assert.True(t, loader.called)
	assert.True(t, syncer.called)
}

func TestActivator_StopsOnFirstFailure(t *testing.T) {
	store := &fakeStore{}
	loader := &fakeLoader{fakeStep{err: errors.New("disk full")}}
	syncer := &fakeSyncer{}
	a := NewActivator(store, loader, syncer, nil)

	err := a.Activate(context.Background(), testConfig())
	assert.ErrorContains(t, err, "failed to load vault")
	assert.True(t, store.called)
	assert.True(t, loader.called)
	assert.False(t, syncer.called, "sync must not run after load failure")
}

func TestActivator_RejectsInvalidConfig(t *testing.T) {
	a := NewActivator(&fakeStore{}, &fakeLoader{}, &fakeSyncer{}, nil)
	cfg := testConfig()
	cfg.Bucket = ""

	err := a.Activate(context.Background(), cfg)
	assert.ErrorContains(t, err, "refusing to activate")
}
