package session

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultbeam/vaultbeam/pkg/fountain"
	"github.com/vaultbeam/vaultbeam/pkg/vault"
)

type fakeProvider struct {
	cfg *vault.Config
	err error
}

func (p *fakeProvider) ExportConfig(vaultID string) (*vault.Config, error) {
	if p.err != nil {
		return nil, p.err
	}
	if p.cfg.VaultID != vaultID {
		return nil, vault.ErrUnknownVault
	}
	return p.cfg, nil
}

func newProvider() *fakeProvider {
	return &fakeProvider{cfg: &vault.Config{
		Version:     vault.ConfigVersion,
		VaultID:     "vault-1",
		Name:        "Journal",
		Endpoint:    "https://s3.example.com",
		Region:      "us-east-1",
		Bucket:      "journal-bucket",
		Credentials: []byte(strings.Repeat("credential material ", 40)),
	}}
}

func startPair(t *testing.T) (*ImportSession, *ExportSession) {
	t.Helper()

	imp, err := NewImportSession(DefaultRequestTTL, nil)
	require.NoError(t, err)

	requestStr, err := imp.Request().Encode()
	require.NoError(t, err)

	exp, err := StartExport(newProvider(), "vault-1", requestStr, nil)
	require.NoError(t, err)

	return imp, exp
}

func TestImportRequestRoundTrip(t *testing.T) {
	imp, err := NewImportSession(time.Minute, nil)
	require.NoError(t, err)

	encoded, err := imp.Request().Encode()
	require.NoError(t, err)

	decoded, err := DecodeImportRequest(encoded)
	require.NoError(t, err)
	assert.Equal(t, imp.ID(), decoded.SessionID)
	assert.Equal(t, imp.Request().ReceiverPublicKey, decoded.ReceiverPublicKey)
	assert.False(t, decoded.Expired(time.Now()))
}

func TestDecodeImportRequest_AcceptsRawJSON(t *testing.T) {
	imp, err := NewImportSession(time.Minute, nil)
	require.NoError(t, err)

	raw, err := json.Marshal(imp.Request())
	require.NoError(t, err)

	decoded, err := DecodeImportRequest(string(raw))
	require.NoError(t, err)
	assert.Equal(t, imp.ID(), decoded.SessionID)
}

func TestDecodeImportRequest_Malformed(t *testing.T) {
	tests := []string{"", "not base64 !!!", `{"version":1}`, `{"version":7,"type":"vaultbeam/import-request"}`}
	for _, input := range tests {
		_, err := DecodeImportRequest(input)
		assert.ErrorIs(t, err, ErrMalformedRequest, "input %q", input)
	}
}

func TestStartExport_ExpiredRequest(t *testing.T) {
	imp, err := NewImportSession(time.Minute, nil)
	require.NoError(t, err)

	request := *imp.Request()
	request.ExpiresAt = time.Now().Add(-time.Second)
	requestStr, err := request.Encode()
	require.NoError(t, err)

	_, err = StartExport(newProvider(), "vault-1", requestStr, nil)
	assert.ErrorIs(t, err, ErrExpiredRequest)
}

func TestStartExport_UnknownVault(t *testing.T) {
	imp, err := NewImportSession(time.Minute, nil)
	require.NoError(t, err)
	requestStr, err := imp.Request().Encode()
	require.NoError(t, err)

	_, err = StartExport(newProvider(), "no-such-vault", requestStr, nil)
	assert.ErrorIs(t, err, vault.ErrUnknownVault)
}

func TestQRTransfer_EndToEnd(t *testing.T) {
	imp, exp := startPair(t)

	info := exp.Info()
	assert.Equal(t, imp.ID(), info.SessionID)
	assert.Len(t, info.SASCode, 6)
	assert.Greater(t, info.TotalFrames, 0)
	assert.Greater(t, info.PayloadBytes, 0)

	var progress ImportProgress
	for i := 0; !progress.Complete; i++ {
		require.Less(t, i, 10000, "transfer did not converge")

		frame, err := exp.NextFrame()
		require.NoError(t, err)

		progress, err = imp.SubmitFrame(frame)
		require.NoError(t, err)
	}

	// SAS derived independently on both ends must match byte for byte.
	assert.Equal(t, exp.SAS(), progress.SASCode)
	assert.Equal(t, StateDecoding, imp.State())

	plaintext, err := imp.Complete()
	require.NoError(t, err)
	assert.Equal(t, StateComplete, imp.State())

	cfg, err := vault.ParseConfig(plaintext)
	require.NoError(t, err)
	assert.Equal(t, "vault-1", cfg.VaultID)
	assert.Equal(t, "journal-bucket", cfg.Bucket)
}

func TestQRTransfer_DuplicatesAndNoiseIgnored(t *testing.T) {
	imp, exp := startPair(t)

	frame, err := exp.NextFrame()
	require.NoError(t, err)

	p1, err := imp.SubmitFrame(frame)
	require.NoError(t, err)
	require.Equal(t, 1, p1.FramesReceived)
	assert.NotEmpty(t, p1.SASCode, "SAS must be known after the first valid frame")

	// Duplicate of the same frame is not double-counted.
	p2, err := imp.SubmitFrame(frame)
	require.NoError(t, err)
	assert.Equal(t, 1, p2.FramesReceived)

	// Scanning noise is dropped silently.
	for _, noise := range []string{"", "WIFI:S:guest;;", "https://example.com", "VB1:%%%"} {
		p, err := imp.SubmitFrame(noise)
		require.NoError(t, err)
		assert.Equal(t, 1, p.FramesReceived)
	}

	// A frame from an unrelated session is dropped too.
	other, otherExp := startPair(t)
	_ = other
	foreign, err := otherExp.NextFrame()
	require.NoError(t, err)
	p3, err := imp.SubmitFrame(foreign)
	require.NoError(t, err)
	assert.Equal(t, 1, p3.FramesReceived)
}

func TestQRTransfer_TamperedStreamFailsIntegrity(t *testing.T) {
	imp, exp := startPair(t)

	// Corrupt the payload bytes of every frame while keeping the framing
	// valid. The decoder will reconstruct, but the AEAD tag must reject it
	// and the session must land in error, never surfacing plaintext.
	var lastErr error
	for i := 0; i < 10000 && imp.State() != StateError; i++ {
		frame, err := exp.NextFrame()
		require.NoError(t, err)

		sym, err := fountain.DecodeFrame(frame)
		require.NoError(t, err)
		sym.Data[0] ^= 0xff
		_, lastErr = imp.SubmitFrame(fountain.EncodeFrame(sym))
	}

	assert.Equal(t, StateError, imp.State())
	assert.ErrorIs(t, lastErr, vault.ErrIntegrityCheckFailed)

	_, err := imp.Complete()
	assert.ErrorIs(t, err, ErrSessionTerminal)
}

func TestImportSession_SubmitAfterTerminal(t *testing.T) {
	imp, exp := startPair(t)

	frame, err := exp.NextFrame()
	require.NoError(t, err)

	imp.Cancel()
	assert.Equal(t, StateCancelled, imp.State())

	p, err := imp.SubmitFrame(frame)
	assert.ErrorIs(t, err, ErrSessionTerminal)
	assert.Zero(t, p.FramesReceived, "cancelled session must not accumulate frames")

	// Cancel is idempotent.
	imp.Cancel()
	assert.Equal(t, StateCancelled, imp.State())
}

func TestImportSession_CompleteBeforeDecodeFinishes(t *testing.T) {
	imp, exp := startPair(t)

	frame, err := exp.NextFrame()
	require.NoError(t, err)
	_, err = imp.SubmitFrame(frame)
	require.NoError(t, err)

	_, err = imp.Complete()
	assert.ErrorIs(t, err, ErrNotComplete)
}

func TestExportSession_CancelStopsFrames(t *testing.T) {
	_, exp := startPair(t)

	_, err := exp.NextFrame()
	require.NoError(t, err)

	exp.Cancel()
	_, err = exp.NextFrame()
	assert.ErrorIs(t, err, ErrSessionTerminal)

	exp.Cancel() // idempotent
	assert.Equal(t, StateCancelled, exp.State())
}

func TestDistinctSessionsYieldDistinctSAS(t *testing.T) {
	_, exp1 := startPair(t)
	_, exp2 := startPair(t)

	assert.NotEqual(t, exp1.SAS(), exp2.SAS(),
		"independent sessions should disagree on SAS with overwhelming probability")
}

func TestImportSession_ConcurrentSubmitAndProgress(t *testing.T) {
	imp, exp := startPair(t)

	frames := make([]string, 0, 200)
	for i := 0; i < 200; i++ {
		frame, err := exp.NextFrame()
		require.NoError(t, err)
		frames = append(frames, frame)
	}

	var wg sync.WaitGroup
	wg.Add(3)

	go func() {
		defer wg.Done()
		for _, f := range frames[:100] {
			_, _ = imp.SubmitFrame(f)
		}
	}()
	go func() {
		defer wg.Done()
		for _, f := range frames[100:] {
			_, _ = imp.SubmitFrame(f)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			p := imp.Progress()
			assert.GreaterOrEqual(t, p.EstimatedPercent, 0.0)
		}
	}()

	wg.Wait()

	if imp.Progress().Complete {
		plaintext, err := imp.Complete()
		require.NoError(t, err)
		_, err = vault.ParseConfig(plaintext)
		require.NoError(t, err)
	}
}

func TestRegistry_SingletonPerRole(t *testing.T) {
	reg := NewRegistry(nil)

	_, err := reg.Import()
	assert.ErrorIs(t, err, ErrSessionNotFound)

	first, err := reg.CreateImport(time.Minute)
	require.NoError(t, err)

	second, err := reg.CreateImport(time.Minute)
	require.NoError(t, err)

	assert.Equal(t, StateCancelled, first.State(), "replaced session must be cancelled, not leaked")
	assert.NotEqual(t, first.ID(), second.ID())

	got, err := reg.Import()
	require.NoError(t, err)
	assert.Equal(t, second.ID(), got.ID())

	reg.CancelImport()
	assert.Equal(t, StateCancelled, second.State())
	_, err = reg.Import()
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRegistry_ExportLifecycle(t *testing.T) {
	reg := NewRegistry(nil)

	imp, err := reg.CreateImport(time.Minute)
	require.NoError(t, err)
	requestStr, err := imp.Request().Encode()
	require.NoError(t, err)

	exp, err := reg.StartExport(newProvider(), "vault-1", requestStr)
	require.NoError(t, err)

	got, err := reg.Export()
	require.NoError(t, err)
	assert.Equal(t, exp.ID(), got.ID())

	reg.CancelExport()
	assert.Equal(t, StateCancelled, exp.State())
	_, err = reg.Export()
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestStateTransitions(t *testing.T) {
	tests := []struct {
		from, to State
		ok       bool
	}{
		{StateCreated, StateAwaitingFrames, true},
		{StateCreated, StateExporting, true},
		{StateAwaitingFrames, StateDecoding, true},
		{StateDecoding, StateComplete, true},
		{StateExporting, StateComplete, true},
		{StateDecoding, StateCancelled, true},
		{StateExporting, StateError, true},
		{StateComplete, StateDecoding, false},
		{StateCancelled, StateAwaitingFrames, false},
		{StateError, StateComplete, false},
		{StateAwaitingFrames, StateComplete, false},
	}

	for _, tt := range tests {
		assert.Equalf(t, tt.ok, tt.from.CanTransitionTo(tt.to),
			"%s -> %s", tt.from, tt.to)
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "awaiting_frames", StateAwaitingFrames.String())
	assert.Equal(t, "complete", StateComplete.String())
	assert.Equal(t, "unknown", State(42).String())
}

func TestErrorsAreDistinct(t *testing.T) {
	sentinels := []error{ErrSessionNotFound, ErrSessionTerminal, ErrExpiredRequest, ErrNotComplete, ErrMalformedRequest}
	for i, a := range sentinels {
		for j, b := range sentinels {
			if i != j {
				assert.False(t, errors.Is(a, b))
			}
		}
	}
}
