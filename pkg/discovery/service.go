// Package discovery announces a device on the local network and browses
// for peers, backed by mDNS. Results are a live, replaceable snapshot set:
// entries appear and disappear as devices come and go, and the whole set
// is invalidated when discovery stops.
package discovery

import (
	"context"
	"net"
)

const (
	// ServiceType is the mDNS service type under which pairing-capable
	// devices announce themselves.
	ServiceType = "_vaultbeam._tcp"
	// DefaultDomain is the mDNS domain.
	DefaultDomain = "local"
)

// Device is one discoverable peer. Entries are ephemeral: they are only
// meaningful while discovery is running.
type Device struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	IP   net.IP `json:"ip"`
	Port int    `json:"port"`
}

// Announcement describes how this device presents itself.
type Announcement struct {
	DeviceID   string
	DeviceName string
	Port       int
}

// Result carries either a fresh snapshot of the currently visible device
// set or a browse error.
type Result struct {
	Devices []Device
	Error   error
}

// Adapter abstracts the discovery backend so tests can substitute a fake.
type Adapter interface {
	// Announce broadcasts this device until the context is cancelled.
	Announce(ctx context.Context, a Announcement) error
	// Browse streams snapshots of the visible device set until the
	// context is cancelled.
	Browse(ctx context.Context) <-chan Result
}
