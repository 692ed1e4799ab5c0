// Package heartbeat sends tallierd's liveness ping to an external
// heartbeat collector, restored from original_source/tallier.py's
// harold.heartbeat('tallier', int(self.flush_interval * 3)) call. Harold
// itself isn't in the example pack, so this speaks a generic HTTP POST
// heartbeat protocol instead of Harold's wire format.
package heartbeat

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// requestTimeout bounds a single heartbeat POST so a slow or unreachable
// collector cannot stall the flush cycle that triggers it.
const requestTimeout = 5 * time.Second

// Client posts periodic liveness pings for a named service to a
// heartbeat collector's HTTP endpoint.
type Client struct {
	endpoint string
	http     *http.Client
}

// New returns a Client posting to endpoint.
func New(endpoint string) *Client {
	return &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: requestTimeout},
	}
}

// Beat reports that service is alive and expected to beat again within
// ttl, matching the service-name/ttl pair tallier.py passes to
// harold.heartbeat.
func (c *Client) Beat(ctx context.Context, service string, ttl time.Duration) error {
	form := url.Values{
		"service": {service},
		"ttl":     {strconv.Itoa(int(ttl.Seconds()))},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("building heartbeat request: %w", err)
	}
	req.URL.RawQuery = form.Encode()

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("sending heartbeat to %s: %w", c.endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("heartbeat collector %s returned %s", c.endpoint, resp.Status)
	}
	return nil
}
