package capabilities

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"
)

// ManagementAPICapability detects a reachable container management API.
type ManagementAPICapability struct {
	url       string
	client    *http.Client
	once      sync.Once
	available bool
	version   string
}

// NewManagementAPICapability creates a probe for the API at url.
func NewManagementAPICapability(url string) *ManagementAPICapability {
	return &ManagementAPICapability{
		url:     strings.TrimRight(url, "/"),
		client:  &http.Client{Timeout: 5 * time.Second},
		version: "unknown",
	}
}

// Name returns the name of the capability
func (c *ManagementAPICapability) Name() string {
	return CapabilityManagementAPI
}

// Version returns the API version header reported by the server.
func (c *ManagementAPICapability) Version() string {
	c.IsAvailable()
	return c.version
}

// IsAvailable checks that the API status endpoint answers with 2xx.
func (c *ManagementAPICapability) IsAvailable() bool {
	c.once.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url+"/api/status", nil)
		if err != nil {
			return
		}
		resp, err := c.client.Do(req)
		if err != nil {
			return
		}
		defer resp.Body.Close()
		if resp.StatusCode/100 != 2 {
			return
		}
		if v := resp.Header.Get("X-API-Version"); v != "" {
			c.version = v
		}
		c.available = true
	})
	return c.available
}
