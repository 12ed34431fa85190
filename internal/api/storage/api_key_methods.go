package storage

import (
	"net"
	"strings"
)

// IsExpired reports whether the key is past its valid_until time.
func (k *APIKey) IsExpired(now int64) bool {
	return k.ValidUntil >= 0 && k.ValidUntil <= now
}

// IsIPAllowed checks if the given IP is allowed for this key.
// Supports both exact IP matching and CIDR notation.
func (k *APIKey) IsIPAllowed(ip string) bool {
	if len(k.AllowedFrom) == 0 {
		return true // No restrictions
	}

	clientIP := net.ParseIP(ip)
	if clientIP == nil {
		return false // Invalid IP format
	}

	for _, allowed := range k.AllowedFrom {
		if allowed == ip {
			return true
		}

		if strings.Contains(allowed, "/") {
			_, network, err := net.ParseCIDR(allowed)
			if err == nil && network.Contains(clientIP) {
				return true
			}
		} else {
			// Also try exact IP match via net.IP for normalization
			allowedIP := net.ParseIP(allowed)
			if allowedIP != nil && allowedIP.Equal(clientIP) {
				return true
			}
		}
	}
	return false
}
