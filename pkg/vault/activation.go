package vault

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Per-step bounds for local activation. Credential persistence is quick;
// loading and the first remote sync touch the network.
const (
	saveCredentialsTimeout = 15 * time.Second
	loadVaultTimeout       = 30 * time.Second
	initialSyncTimeout     = 30 * time.Second
)

// CredentialStore persists the received credential material on the new
// device. The at-rest format is the store's concern.
type CredentialStore interface {
	SaveCredentials(ctx context.Context, cfg *Config) error
}

// Loader opens the local vault once credentials are in place.
type Loader interface {
	LoadVault(ctx context.Context, vaultID string) error
}

// Syncer performs the first pull from the remote bucket.
type Syncer interface {
	SyncFromRemote(ctx context.Context, vaultID string) error
}

// Activator runs the three-step local activation on the receiving device:
// persist credentials, load the vault, then sync from remote. Steps run
// sequentially, best effort, each under its own timeout; there is no
// rollback on a later step failing (a half-activated vault is recoverable
// by re-running activation).
type Activator struct {
	store  CredentialStore
	loader Loader
	syncer Syncer
	logger *slog.Logger
}

// NewActivator wires the three collaborators. A nil logger falls back to
// the default slog logger.
func NewActivator(store CredentialStore, loader Loader, syncer Syncer, logger *slog.Logger) *Activator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Activator{store: store, loader: loader, syncer: syncer, logger: logger}
}

// Activate runs the full sequence for a received configuration. The first
// failing step aborts the rest.
func (a *Activator) Activate(ctx context.Context, cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("refusing to activate: %w", err)
	}

	a.logger.Info("activating vault", "vault_id", cfg.VaultID)

	if err := a.runStep(ctx, saveCredentialsTimeout, func(stepCtx context.Context) error {
		return a.store.SaveCredentials(stepCtx, cfg)
	}); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}

	if err := a.runStep(ctx, loadVaultTimeout, func(stepCtx context.Context) error {
		return a.loader.LoadVault(stepCtx, cfg.VaultID)
	}); err != nil {
		return fmt.Errorf("failed to load vault: %w", err)
	}

	if err := a.runStep(ctx, initialSyncTimeout, func(stepCtx context.Context) error {
		return a.syncer.SyncFromRemote(stepCtx, cfg.VaultID)
	}); err != nil {
		return fmt.Errorf("failed to sync from remote: %w", err)
	}

	a.logger.Info("vault activated", "vault_id", cfg.VaultID)
	return nil
}

func (a *Activator) runStep(ctx context.Context, timeout time.Duration, step func(context.Context) error) error {
	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return step(stepCtx)
}
