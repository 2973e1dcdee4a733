package grist

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/goware/urlx"
)

var ErrInsecureServerURL = errors.New("grist server url must use https")

// NormalizeServerURL parses the URL of a Grist instance entered by a user. The
// scheme defaults to https, and plain http is only accepted for loopback
// hosts. The result has no trailing slash, query or fragment.
func NormalizeServerURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("grist server url is required")
	}

	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	u, err := urlx.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid grist server url: %w", err)
	}

	switch u.Scheme {
	case "https":
	case "http":
		if !isLoopback(u.Hostname()) {
			return "", ErrInsecureServerURL
		}
	default:
		return "", fmt.Errorf("invalid grist server url: unsupported scheme %q", u.Scheme)
	}

	if u.User != nil {
		return "", errors.New("invalid grist server url: credentials are not allowed")
	}

	u.RawQuery = ""
	u.Fragment = ""

	normalized, err := urlx.Normalize(u)
	if err != nil {
		return "", fmt.Errorf("invalid grist server url: %w", err)
	}

	normalized = strings.TrimRight(normalized, "/")
	normalized = strings.TrimSuffix(normalized, "/api")
	return normalized, nil
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
