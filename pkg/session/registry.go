package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/vaultbeam/vaultbeam/pkg/vault"
)

// Registry is the process-wide holder of at most one active import session
// and one active export session. There is one physical camera and one
// display, so the per-role singleton is deliberate: creating a new session
// atomically cancels and replaces any prior non-terminal one for that
// role, never leaking it.
type Registry struct {
	mu            sync.Mutex
	importSession *ImportSession
	exportSession *ExportSession
	logger        *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// CreateImport starts a new import session, replacing any prior one.
func (r *Registry) CreateImport(ttl time.Duration) (*ImportSession, error) {
	s, err := NewImportSession(ttl, r.logger)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	old := r.importSession
	r.importSession = s
	r.mu.Unlock()

	if old != nil {
		old.Cancel()
	}
	return s, nil
}

// Import returns the active import session.
func (r *Registry) Import() (*ImportSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.importSession == nil {
		return nil, ErrSessionNotFound
	}
	return r.importSession, nil
}

// CancelImport cancels and drops the active import session. A missing
// session is not an error: cancel is idempotent at the registry level too.
func (r *Registry) CancelImport() {
	r.mu.Lock()
	old := r.importSession
	r.importSession = nil
	r.mu.Unlock()

	if old != nil {
		old.Cancel()
	}
}

// StartExport validates the scanned request and arms a new export session,
// replacing any prior one.
func (r *Registry) StartExport(provider vault.Provider, vaultID, requestStr string) (*ExportSession, error) {
	s, err := StartExport(provider, vaultID, requestStr, r.logger)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	old := r.exportSession
	r.exportSession = s
	r.mu.Unlock()

	if old != nil {
		old.Cancel()
	}
	return s, nil
}

// Export returns the active export session.
func (r *Registry) Export() (*ExportSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.exportSession == nil {
		return nil, ErrSessionNotFound
	}
	return r.exportSession, nil
}

// CancelExport cancels and drops the active export session.
func (r *Registry) CancelExport() {
	r.mu.Lock()
	old := r.exportSession
	r.exportSession = nil
	r.mu.Unlock()

	if old != nil {
		old.Cancel()
	}
}
