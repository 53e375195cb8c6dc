package usecase

import (
	"bufio"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/aymanashrafmounir/Ais-Scrapy/internal/entity"
)

const defaultProxyProtocol = "http"

var supportedProxyProtocols = map[string]bool{
	"http":    true,
	"https":   true,
	"socks5":  true,
	"socks5h": true,
}

// ParseProxyList reads one proxy per line in the form ip:port or
// ip:port:user:pass, optionally prefixed with scheme://. Blank lines and
// lines starting with # are skipped. Lines that cannot be parsed are
// reported in errs and do not stop the parse.
func ParseProxyList(text string) (proxies []entity.Proxy, errs []error) {
	scanner := bufio.NewScanner(strings.NewReader(text))
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		p, err := ParseProxyLine(line)
		if err != nil {
			errs = append(errs, fmt.Errorf("line %d: %w", lineNum, err))
			continue
		}
		proxies = append(proxies, p)
	}
	if err := scanner.Err(); err != nil {
		errs = append(errs, err)
	}
	return proxies, errs
}

// ParseProxyLine parses a single proxy entry.
func ParseProxyLine(line string) (entity.Proxy, error) {
	protocol := defaultProxyProtocol
	rest := strings.TrimSpace(line)
	if i := strings.Index(rest, "://"); i >= 0 {
		protocol = strings.ToLower(rest[:i])
		rest = rest[i+3:]
		if !supportedProxyProtocols[protocol] {
			return entity.Proxy{}, fmt.Errorf("unsupported protocol %q", protocol)
		}
	}

	parts := strings.Split(rest, ":")
	if len(parts) != 2 && len(parts) != 4 {
		return entity.Proxy{}, fmt.Errorf("invalid proxy format %q (expected ip:port or ip:port:user:pass)", line)
	}

	ip := strings.TrimSpace(parts[0])
	if ip == "" {
		return entity.Proxy{}, fmt.Errorf("missing host in %q", line)
	}
	if strings.ContainsAny(ip, " /") || (net.ParseIP(ip) == nil && !validHostname(ip)) {
		return entity.Proxy{}, fmt.Errorf("invalid host %q", ip)
	}
	port, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil || port <= 0 || port > 65535 {
		return entity.Proxy{}, fmt.Errorf("invalid port in %q", line)
	}

	p := entity.Proxy{IP: ip, Port: port, Protocol: protocol, IsValid: true}
	if len(parts) == 4 {
		p.Username = strings.TrimSpace(parts[2])
		p.Password = strings.TrimSpace(parts[3])
	}
	return p, nil
}

func validHostname(host string) bool {
	for _, r := range host {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.':
		default:
			return false
		}
	}
	return true
}
