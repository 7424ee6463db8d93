// Package transport builds the HTTP clients used for catalog and segment
// traffic, one per network route.
package transport

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/net/proxy"
)

// Route selects the network path for a request.
type Route int

const (
	RouteDirect Route = iota
	RouteProxy
)

func (r Route) String() string {
	switch r {
	case RouteDirect:
		return "direct"
	case RouteProxy:
		return "proxy"
	default:
		return "unknown"
	}
}

const (
	DialTimeout           = 10 * time.Second
	TLSHandshakeTimeout   = 10 * time.Second
	ResponseHeaderTimeout = 15 * time.Second
	IdleConnTimeout       = 90 * time.Second
	MaxIdleConns          = 10
)

var ErrNoProxy = errors.New("no proxy configured")

// Clients holds one *http.Client per route. The proxy client is nil when no
// proxy URL was configured.
type Clients struct {
	direct   *http.Client
	proxied  *http.Client
	proxyURL *url.URL
}

// NewClients builds the route clients. proxyURL may be empty; otherwise it
// must be socks5://, socks5h://, http:// or https://.
func NewClients(proxyURL string) (*Clients, error) {
	c := &Clients{
		direct: &http.Client{Transport: newTransport()},
	}

	if proxyURL == "" {
		return c, nil
	}

	u, err := url.Parse(proxyURL)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy URL: %w", err)
	}

	tr := newTransport()
	switch u.Scheme {
	case "socks5", "socks5h":
		dialer, err := proxy.FromURL(u, &net.Dialer{Timeout: DialTimeout})
		if err != nil {
			return nil, fmt.Errorf("failed to create socks dialer: %w", err)
		}
		contextDialer, ok := dialer.(proxy.ContextDialer)
		if !ok {
			return nil, fmt.Errorf("socks dialer for %s does not support contexts", u.Host)
		}
		tr.DialContext = contextDialer.DialContext
	case "http", "https":
		tr.Proxy = http.ProxyURL(u)
	default:
		return nil, fmt.Errorf("unsupported proxy scheme %q", u.Scheme)
	}

	c.proxied = &http.Client{Transport: tr}
	c.proxyURL = u
	return c, nil
}

func newTransport() *http.Transport {
	return &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: DialTimeout,
		}).DialContext,
		TLSHandshakeTimeout:   TLSHandshakeTimeout,
		ResponseHeaderTimeout: ResponseHeaderTimeout,
		MaxIdleConns:          MaxIdleConns,
		IdleConnTimeout:       IdleConnTimeout,
	}
}

// For returns the client for route, or ErrNoProxy when the proxy route is
// requested without a proxy.
func (c *Clients) For(route Route) (*http.Client, error) {
	if route == RouteProxy {
		if c.proxied == nil {
			return nil, ErrNoProxy
		}
		return c.proxied, nil
	}
	return c.direct, nil
}

func (c *Clients) ProxyConfigured() bool {
	return c.proxied != nil
}

// ProxyHost returns host:port of the proxy for logging, or "".
func (c *Clients) ProxyHost() string {
	if c.proxyURL == nil {
		return ""
	}
	return c.proxyURL.Host
}
