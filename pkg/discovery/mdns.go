package discovery

import (
	"context"
	"fmt"
	"sync"

	"github.com/brutella/dnssd"
)

// MDNSAdapter implements Adapter on top of multicast DNS.
type MDNSAdapter struct{}

// Announce registers the device's service instance and responds to mDNS
// queries until the context is cancelled. Context cancellation is the
// normal shutdown path, not an error.
func (m *MDNSAdapter) Announce(ctx context.Context, a Announcement) error {
	text := map[string]string{
		"id":   a.DeviceID,
		"name": a.DeviceName,
	}

	cfg := dnssd.Config{
		Name:   a.DeviceName,
		Type:   ServiceType,
		Domain: DefaultDomain,
		// mDNS multicasts to the local segment; no fixed IPs needed.
		IPs:  nil,
		Text: text,
		Port: a.Port,
	}

	service, err := dnssd.NewService(cfg)
	if err != nil {
		return fmt.Errorf("failed to create mDNS service: %w", err)
	}

	rp, err := dnssd.NewResponder()
	if err != nil {
		return fmt.Errorf("failed to create mDNS responder: %w", err)
	}

	if _, err = rp.Add(service); err != nil {
		return fmt.Errorf("failed to add mDNS service: %w", err)
	}

	if err = rp.Respond(ctx); err != nil {
		if err == context.Canceled {
			return nil
		}
		return fmt.Errorf("failed to respond to mDNS queries: %w", err)
	}

	return nil
}

// Browse watches the local network for pairing-capable devices. Each add
// or removal produces a fresh snapshot on the returned channel; the
// channel closes when the context is cancelled.
func (m *MDNSAdapter) Browse(ctx context.Context) <-chan Result {
	var (
		mu      sync.Mutex
		entries = make(map[string]Device)
		outCh   = make(chan Result, 10)
	)

	sendSnapshot := func() {
		mu.Lock()
		snapshot := make([]Device, 0, len(entries))
		for _, d := range entries {
			snapshot = append(snapshot, d)
		}
		mu.Unlock()
		select {
		case outCh <- Result{Devices: snapshot}:
		default:
		}
	}

	sendError := func(err error) {
		select {
		case outCh <- Result{Error: err}:
		default:
		}
	}

	addFn := func(e dnssd.BrowseEntry) {
		d := Device{
			ID:   e.Text["id"],
			Name: e.Text["name"],
			Port: e.Port,
		}
		if d.Name == "" {
			d.Name = e.Name
		}
		if len(e.IPs) > 0 {
			d.IP = e.IPs[0]
		}
		mu.Lock()
		entries[browseKey(e)] = d
		mu.Unlock()
		sendSnapshot()
	}

	rmvFn := func(e dnssd.BrowseEntry) {
		mu.Lock()
		delete(entries, browseKey(e))
		mu.Unlock()
		sendSnapshot()
	}

	go func() {
		defer close(outCh)
		service := fmt.Sprintf("%s.%s.", ServiceType, DefaultDomain)
		if err := dnssd.LookupType(ctx, service, addFn, rmvFn); err != nil && err != context.Canceled {
			sendError(fmt.Errorf("mDNS lookup failed: %w", err))
		}
	}()

	return outCh
}

func browseKey(e dnssd.BrowseEntry) string {
	return fmt.Sprintf("%s:%s:%s", e.Name, e.Type, e.Domain)
}
