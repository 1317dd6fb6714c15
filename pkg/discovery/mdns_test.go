package discovery

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAnnounceStopsOnCancel(t *testing.T) {
	// mDNS can be flaky in CI; keep it out of short runs.
	if testing.Short() {
		t.Skip("Skipping mDNS test in short mode")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	adapter := &MDNSAdapter{}
	announcement := Announcement{
		DeviceID:   "device-test-1",
		DeviceName: "test-device",
		Port:       47800,
	}

	done := make(chan error, 1)
	go func() {
		done <- adapter.Announce(ctx, announcement)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err, "cancellation is the normal shutdown path")
	case <-time.After(5 * time.Second):
		t.Fatal("announce did not stop after cancel")
	}
}

func TestBrowseFindsAnnouncedDevice(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping mDNS test in short mode")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	adapter := &MDNSAdapter{}
	go func() {
		_ = adapter.Announce(ctx, Announcement{
			DeviceID:   "device-test-2",
			DeviceName: "browse-target",
			Port:       47801,
		})
	}()
	time.Sleep(300 * time.Millisecond)

	browseCtx, browseCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer browseCancel()

	for result := range adapter.Browse(browseCtx) {
		if result.Error != nil {
			t.Fatalf("browse failed: %v", result.Error)
		}
		for _, d := range result.Devices {
			if d.ID == "device-test-2" {
				assert.Equal(t, "browse-target", d.Name)
				assert.Equal(t, 47801, d.Port)
				return
			}
		}
	}
	t.Fatal("announced device never appeared in browse results")
}
