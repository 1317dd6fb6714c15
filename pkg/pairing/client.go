package pairing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/vaultbeam/vaultbeam/pkg/discovery"
)

const deviceIDHeader = "X-Device-ID"

// deviceIDInjector is a client-side middleware that stamps every request
// with this device's id.
type deviceIDInjector struct {
	deviceID string
	next     http.RoundTripper
}

func (t *deviceIDInjector) RoundTrip(req *http.Request) (*http.Response, error) {
	req.Header.Set(deviceIDHeader, t.deviceID)
	return t.next.RoundTrip(req)
}

// Client talks to a peer device's pairing API.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a client bound to a discovered peer, configured to
// inject the local device id into each request.
func NewClient(deviceID string, peer discovery.Device) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &deviceIDInjector{
				deviceID: deviceID,
				next:     http.DefaultTransport,
			},
		},
		baseURL: "http://" + net.JoinHostPort(peer.IP.String(), strconv.Itoa(peer.Port)),
	}
}

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s request: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusConflict:
		return ErrPeerBusy
	default:
		return fmt.Errorf("%w: %s responded %s", ErrNetwork, path, resp.Status)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%w: bad %s response: %v", ErrNetwork, path, err)
		}
	}
	return nil
}

// Handshake opens the exchange and returns the receiver's ephemeral key.
func (c *Client) Handshake(ctx context.Context, req handshakeRequest) (*handshakeResponse, error) {
	var resp handshakeResponse
	if err := c.post(ctx, "/v1/pair/handshake", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Confirm reports the sender's confirmation and learns whether the
// receiver's user has confirmed too.
func (c *Client) Confirm(ctx context.Context, sessionID string) (*confirmationStatus, error) {
	var resp confirmationStatus
	payload := map[string]string{"session_id": sessionID}
	if err := c.post(ctx, "/v1/pair/confirm", payload, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ConfirmationStatus polls the receiver's confirmation state without
// changing anything.
func (c *Client) ConfirmationStatus(ctx context.Context, sessionID string) (*confirmationStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/v1/pair/confirmation?session_id=%s", c.baseURL, sessionID), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create confirmation request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: confirmation poll responded %s", ErrNetwork, resp.Status)
	}

	var status confirmationStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("%w: bad confirmation response: %v", ErrNetwork, err)
	}
	return &status, nil
}

// SendPayload ships the sealed vault configuration. Accepted only after
// both sides confirmed.
func (c *Client) SendPayload(ctx context.Context, req payloadRequest) error {
	return c.post(ctx, "/v1/pair/payload", req, nil)
}
