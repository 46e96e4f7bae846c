// Package discover finds a browser's websocket debugger URL via its
// /json/version and /json/list HTTP endpoints.
package discover

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
)

// DefaultEndpoint is the default remote debugging HTTP endpoint.
const DefaultEndpoint = "http://localhost:9222"

// Version is the shape of /json/version.
type Version struct {
	Browser              string `json:"Browser"`
	ProtocolVersion      string `json:"Protocol-Version"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

// TargetInfo is one entry of /json/list.
type TargetInfo struct {
	ID                   string `json:"id"`
	Type                 string `json:"type"`
	Title                string `json:"title"`
	URL                  string `json:"url"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

// Client queries one browser's HTTP debugging endpoint.
type Client struct {
	endpoint string
	http     *http.Client
}

// New returns a Client for endpoint, forcing its host to an IP address:
// since Chrome 66+, the remote debugging HTTP server rejects any Host
// header other than an IP address or "localhost".
func New(endpoint string) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Client{endpoint: forceIP(endpoint), http: &http.Client{}}
}

func (c *Client) doReq(ctx context.Context, path string, v interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+path, nil)
	if err != nil {
		return err
	}
	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, v)
}

// Version fetches /json/version, which carries the browser-wide websocket
// debugger URL used to drive the Target domain.
func (c *Client) Version(ctx context.Context) (*Version, error) {
	v := new(Version)
	if err := c.doReq(ctx, "/json/version", v); err != nil {
		return nil, err
	}
	return v, nil
}

// ListTargets fetches /json/list, the set of currently open targets.
func (c *Client) ListTargets(ctx context.Context) ([]TargetInfo, error) {
	var l []TargetInfo
	if err := c.doReq(ctx, "/json/list", &l); err != nil {
		return nil, err
	}
	return l, nil
}

// forceIP rewrites urlstr's host to its resolved IP address, leaving
// "localhost" untouched.
func forceIP(urlstr string) string {
	i := strings.Index(urlstr, "://")
	if i == -1 {
		return urlstr
	}
	scheme := urlstr[:i+3]
	rest := urlstr[i+3:]
	host, path := rest, ""
	if j := strings.Index(rest, "/"); j != -1 {
		host, path = rest[:j], rest[j:]
	}
	hostname, port := host, ""
	if j := strings.Index(host, ":"); j != -1 {
		hostname, port = host[:j], host[j:]
	}
	if strings.EqualFold(hostname, "localhost") {
		return urlstr
	}
	addr, err := net.ResolveIPAddr("ip", hostname)
	if err != nil {
		return urlstr
	}
	return fmt.Sprintf("%s%s%s%s", scheme, addr.IP.String(), port, path)
}
