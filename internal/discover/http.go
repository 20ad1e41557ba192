package discover

import (
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultUserAgent identifies the tool to registries; crates.io rejects
// anonymous clients.
const DefaultUserAgent = "disperse (https://github.com/papapumpkin/disperse)"

// maxResponse caps how much of a registry response is read.
const maxResponse = 16 << 20

// fetch sends req and returns the body of a 200 response. A nil client
// gets a 30 second timeout.
func fetch(client *http.Client, userAgent string, req *http.Request) ([]byte, error) {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	req.Header.Set("User-Agent", userAgent)
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("%s %s returned %d: %s", req.Method, req.URL.Path, resp.StatusCode, body)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponse))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", req.URL.Path, err)
	}
	return body, nil
}
