package pairing

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultbeam/vaultbeam/pkg/discovery"
	"github.com/vaultbeam/vaultbeam/pkg/vault"
)

// fakeAdapter serves a fixed device set so tests never touch real mDNS.
type fakeAdapter struct {
	devices []discovery.Device
}

func (f *fakeAdapter) Announce(ctx context.Context, _ discovery.Announcement) error {
	<-ctx.Done()
	return nil
}

func (f *fakeAdapter) Browse(ctx context.Context) <-chan discovery.Result {
	ch := make(chan discovery.Result, 1)
	ch <- discovery.Result{Devices: f.devices}
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch
}

type fakeProvider struct {
	cfg *vault.Config
}

func (p *fakeProvider) ExportConfig(vaultID string) (*vault.Config, error) {
	if p.cfg == nil || p.cfg.VaultID != vaultID {
		return nil, vault.ErrUnknownVault
	}
	return p.cfg, nil
}

func newProvider() *fakeProvider {
	return &fakeProvider{cfg: &vault.Config{
		Version:     vault.ConfigVersion,
		VaultID:     "vault-1",
		Name:        "Travel",
		Endpoint:    "https://s3.example.com",
		Region:      "us-west-2",
		Bucket:      "travel-vault",
		Credentials: []byte(strings.Repeat("secret ", 32)),
	}}
}

// startReceiver brings up a listening receiver on an ephemeral port and
// returns it plus the device entry a sender would discover.
func startReceiver(t *testing.T, ctx context.Context) (*Service, discovery.Device) {
	t.Helper()

	receiver := NewService("dev-a", "Alice's laptop", 0, &fakeAdapter{}, newProvider(), nil)
	require.NoError(t, receiver.StartPairingMode(ctx))
	t.Cleanup(receiver.StopPairingMode)

	device := discovery.Device{
		ID:   "dev-a",
		Name: "Alice's laptop",
		IP:   net.ParseIP("127.0.0.1"),
		Port: receiver.Port(),
	}
	return receiver, device
}

func startSender(t *testing.T, ctx context.Context, target discovery.Device) *Service {
	t.Helper()

	sender := NewService("dev-b", "Bob's phone", 0, &fakeAdapter{devices: []discovery.Device{target}}, newProvider(), nil)
	require.NoError(t, sender.StartDiscovery(ctx))
	t.Cleanup(sender.StopDiscovery)

	require.Eventually(t, func() bool {
		return len(sender.Devices()) == 1
	}, 2*time.Second, 10*time.Millisecond, "discovery snapshot never arrived")

	return sender
}

func TestPairing_EndToEnd(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	receiver, device := startReceiver(t, ctx)
	sender := startSender(t, ctx, device)

	require.NoError(t, sender.InitiatePairing(ctx, "dev-a", "vault-1"))

	senderStatus := sender.Status()
	receiverStatus := receiver.Status()
	assert.Equal(t, StateVerifying, senderStatus.State)
	assert.Equal(t, StateVerifying, receiverStatus.State)
	require.NotEmpty(t, senderStatus.VerificationCode)
	assert.Equal(t, senderStatus.VerificationCode, receiverStatus.VerificationCode,
		"both devices must derive the same verification code")
	require.NotNil(t, receiverStatus.ConnectedDevice)
	assert.Equal(t, "dev-b", receiverStatus.ConnectedDevice.ID)

	// Sender confirms first: nothing may move yet.
	require.NoError(t, sender.ConfirmPairingAsSender(ctx))
	time.Sleep(100 * time.Millisecond)
	assert.Nil(t, receiver.ReceivedVaultConfig(), "payload must wait for double confirmation")

	// Receiver confirms; the poll loop now delivers the payload.
	require.NoError(t, receiver.ConfirmPairing())
	require.Eventually(t, func() bool {
		return receiver.Status().State == StateSuccess
	}, 5*time.Second, 50*time.Millisecond, "transfer never completed")

	require.Eventually(t, func() bool {
		return sender.Status().State == StateSuccess
	}, 2*time.Second, 10*time.Millisecond)

	cfgJSON := receiver.ReceivedVaultConfig()
	require.NotNil(t, cfgJSON)
	cfg, err := vault.ParseConfig(cfgJSON)
	require.NoError(t, err)
	assert.Equal(t, "vault-1", cfg.VaultID)
	assert.Equal(t, "travel-vault", cfg.Bucket)
}

func TestPairing_ReceiverConfirmsFirst(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	receiver, device := startReceiver(t, ctx)
	sender := startSender(t, ctx, device)

	require.NoError(t, sender.InitiatePairing(ctx, "dev-a", "vault-1"))
	require.NoError(t, receiver.ConfirmPairing())
	require.NoError(t, sender.ConfirmPairingAsSender(ctx))

	require.Eventually(t, func() bool {
		return receiver.Status().State == StateSuccess
	}, 5*time.Second, 50*time.Millisecond)
	require.NotNil(t, receiver.ReceivedVaultConfig())
}

func TestPairing_OneSidedConfirmationNeverTransfers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	receiver, device := startReceiver(t, ctx)
	sender := startSender(t, ctx, device)

	require.NoError(t, sender.InitiatePairing(ctx, "dev-a", "vault-1"))

	// Receiver confirms, sender never does.
	require.NoError(t, receiver.ConfirmPairing())
	time.Sleep(300 * time.Millisecond)

	assert.Equal(t, StateVerifying, receiver.Status().State,
		"receiver must wait in verifying indefinitely")
	assert.Equal(t, StateVerifying, sender.Status().State)
	assert.Nil(t, receiver.ReceivedVaultConfig())

	// Explicit stop is the only way out.
	receiver.StopPairingMode()
	assert.Equal(t, StateIdle, receiver.Status().State)
}

func TestPairing_StopDuringTransfer(t *testing.T) {
	// The sender's payload send reads the session secret while
	// StopPairingMode zeroes key material; racing the two must never
	// corrupt state on either side.
	for i := 0; i < 5; i++ {
		ctx, cancel := context.WithCancel(context.Background())

		receiver, device := startReceiver(t, ctx)
		sender := startSender(t, ctx, device)

		require.NoError(t, sender.InitiatePairing(ctx, "dev-a", "vault-1"))
		require.NoError(t, receiver.ConfirmPairing())

		done := make(chan struct{})
		go func() {
			defer close(done)
			// May fail with a conflict when the stop wins the race.
			_ = sender.ConfirmPairingAsSender(ctx)
		}()
		receiver.StopPairingMode()
		<-done

		require.Eventually(t, func() bool {
			state := receiver.Status().State
			return state == StateIdle || state == StateSuccess
		}, 2*time.Second, 10*time.Millisecond)
		cancel()
	}
}

func TestPairing_FirstConnectorWins(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	receiver, device := startReceiver(t, ctx)
	_ = receiver

	first := startSender(t, ctx, device)
	require.NoError(t, first.InitiatePairing(ctx, "dev-a", "vault-1"))

	second := NewService("dev-c", "Carol's tablet", 0, &fakeAdapter{devices: []discovery.Device{device}}, newProvider(), nil)
	require.NoError(t, second.StartDiscovery(ctx))
	t.Cleanup(second.StopDiscovery)
	require.Eventually(t, func() bool { return len(second.Devices()) == 1 }, 2*time.Second, 10*time.Millisecond)

	err := second.InitiatePairing(ctx, "dev-a", "vault-1")
	assert.ErrorIs(t, err, ErrPeerBusy)
	assert.Equal(t, StateError, second.Status().State)
}

func TestPairing_ConfirmWithoutSession(t *testing.T) {
	svc := NewService("dev-x", "X", 0, &fakeAdapter{}, newProvider(), nil)

	assert.ErrorIs(t, svc.ConfirmPairing(), ErrNotVerifying)
	assert.ErrorIs(t, svc.ConfirmPairingAsSender(context.Background()), ErrNotVerifying)
}

func TestPairing_InitiateUnknownDevice(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sender := NewService("dev-b", "Bob", 0, &fakeAdapter{}, newProvider(), nil)
	require.NoError(t, sender.StartDiscovery(ctx))
	t.Cleanup(sender.StopDiscovery)

	err := sender.InitiatePairing(ctx, "ghost", "vault-1")
	assert.ErrorIs(t, err, ErrNetwork)
}

func TestPairing_StopDiscoveryPrunesDevices(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	device := discovery.Device{ID: "dev-a", Name: "A", IP: net.ParseIP("127.0.0.1"), Port: 1}
	sender := startSender(t, ctx, device)

	sender.StopDiscovery()
	assert.Empty(t, sender.Devices(), "stale entries must be pruned when discovery halts")
	assert.Equal(t, StateIdle, sender.Status().State)
}

func TestPairingStateTransitions(t *testing.T) {
	tests := []struct {
		from, to State
		ok       bool
	}{
		{StateIdle, StateListening, true},
		{StateIdle, StateDiscovering, true},
		{StateListening, StateVerifying, true},
		{StateDiscovering, StateConnecting, true},
		{StateConnecting, StateVerifying, true},
		{StateVerifying, StateTransferring, true},
		{StateTransferring, StateSuccess, true},
		{StateVerifying, StateError, true},
		{StateSuccess, StateIdle, true},
		{StateIdle, StateVerifying, false},
		{StateIdle, StateError, false},
		{StateSuccess, StateError, false},
		{StateListening, StateTransferring, false},
	}

	for _, tt := range tests {
		assert.Equalf(t, tt.ok, tt.from.CanTransitionTo(tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestPairingStateString(t *testing.T) {
	assert.Equal(t, "verifying", StateVerifying.String())
	assert.Equal(t, "success", StateSuccess.String())
	assert.Equal(t, "unknown", State(99).String())
}
