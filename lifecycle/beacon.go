package lifecycle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/clementus360/proxy-share/protocol"
)

const beaconTimeout = 3 * time.Second

// Beacon delivers a notice outside the websocket, without waiting for it.
type Beacon interface {
	Send(b protocol.Beacon)
}

// HTTPBeacon posts beacons as JSON.
type HTTPBeacon struct {
	URL    string
	Client *http.Client
}

func NewHTTPBeacon(url string) *HTTPBeacon {
	return &HTTPBeacon{URL: url, Client: &http.Client{Timeout: beaconTimeout}}
}

func (h *HTTPBeacon) Send(b protocol.Beacon) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), beaconTimeout)
		defer cancel()
		if err := h.Post(ctx, b); err != nil {
			log.Printf("Error sending beacon: %v", err)
		}
	}()
}

// Post sends b and waits for the response.
func (h *HTTPBeacon) Post(ctx context.Context, b protocol.Beacon) error {
	body, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("encode beacon: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build beacon request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("post beacon: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("post beacon: status %d", resp.StatusCode)
	}
	return nil
}
