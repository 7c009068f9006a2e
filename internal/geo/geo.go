// Package geo resolves a best-effort location snapshot from an IP address.
package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dharsanguruparan/PartnerGate/internal/model"
)

// ErrUnresolvable is returned for addresses that cannot be located, such as
// loopback or private ranges.
var ErrUnresolvable = errors.New("address not resolvable")

// Locator looks up the location of an IP.
type Locator interface {
	Lookup(ctx context.Context, ip string) (*model.Geolocation, error)
}

// Client queries an ip-api compatible JSON endpoint.
type Client struct {
	endpoint string
	http     *http.Client
}

func NewClient(endpoint string, timeout time.Duration) *Client {
	return &Client{
		endpoint: strings.TrimRight(endpoint, "/") + "/",
		http:     &http.Client{Timeout: timeout},
	}
}

type lookupResponse struct {
	Status     string  `json:"status"`
	Message    string  `json:"message"`
	City       string  `json:"city"`
	RegionName string  `json:"regionName"`
	Country    string  `json:"country"`
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
}

func (c *Client) Lookup(ctx context.Context, ip string) (*model.Geolocation, error) {
	addr := net.ParseIP(ip)
	if addr == nil || addr.IsLoopback() || addr.IsPrivate() || addr.IsUnspecified() {
		return nil, ErrUnresolvable
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+url.PathEscape(addr.String()), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geolocation request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geolocation status %d", resp.StatusCode)
	}
	var body lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode geolocation: %w", err)
	}
	if body.Status != "" && body.Status != "success" {
		return nil, fmt.Errorf("geolocation failed: %s", body.Message)
	}
	return &model.Geolocation{
		City:    body.City,
		Region:  body.RegionName,
		Country: body.Country,
		Lat:     body.Lat,
		Lon:     body.Lon,
	}, nil
}

// Static returns the same answer for every lookup.
type Static struct {
	Location *model.Geolocation
	Err      error
}

func (s Static) Lookup(context.Context, string) (*model.Geolocation, error) {
	return s.Location, s.Err
}
