package entity

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"
)

// ProxyEvictionThreshold is the retry count at which a proxy is removed.
const ProxyEvictionThreshold = 10

// Proxy mirrors a row of the `proxies` table.
type Proxy struct {
	ID          int64
	IP          string
	Port        int
	Protocol    string
	Country     string
	Anonymity   string
	LatencyMS   *int
	Username    string
	Password    string
	IsValid     bool
	RetryCount  int
	LastChecked *time.Time
	LastUsed    *time.Time
	CreatedAt   time.Time
}

// HasCredentials reports whether the proxy authenticates with user/pass.
func (p Proxy) HasCredentials() bool {
	return p.Username != "" || p.Password != ""
}

// Evicted reports whether the proxy crossed the eviction threshold.
func (p Proxy) Evicted() bool {
	return p.RetryCount >= ProxyEvictionThreshold
}

// Address returns host:port.
func (p Proxy) Address() string {
	return net.JoinHostPort(p.IP, strconv.Itoa(p.Port))
}

// URL builds the proxy URL used by HTTP transports, including credentials.
func (p Proxy) URL() *url.URL {
	u := &url.URL{Scheme: p.Protocol, Host: p.Address()}
	if p.HasCredentials() {
		u.User = url.UserPassword(p.Username, p.Password)
	}
	return u
}

// Key identifies a proxy the same way the unique index does.
func (p Proxy) Key() string {
	return fmt.Sprintf("%s://%s", p.Protocol, p.Address())
}

// ProxyStats summarizes the pool.
type ProxyStats struct {
	Total   int `json:"total"`
	Active  int `json:"active"`
	Evicted int `json:"evicted"`
}
