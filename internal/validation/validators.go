// Package validation holds the input checks shared by the panel commands.
// Checks return an error describing the problem; callers map failures to
// their own message keys.
package validation

import (
	"fmt"
	"net"
	"net/mail"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/idna"
)

var (
	// One DNS label: alphanumeric, inner dashes, max 63 chars
	labelRegex = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)

	// Valid identifier: alphanumeric, dash, underscore
	identifierRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

	dateRegex = regexp.MustCompile(`^(19|20)\d\d-(0[1-9]|1[012])-(0[1-9]|[12][0-9]|3[01])$`)

	// Digits or -1, as used by the fcgid starter / maxrequests fields
	fcgidNumberRegex = regexp.MustCompile(`^(\d+|-1)$`)

	portPrefixRegex = regexp.MustCompile(`:\d+$`)
	schemeRegex     = regexp.MustCompile(`^https?://`)
)

// NormalizeDomain strips a trailing ":port" and a leading http(s):// from
// input, lowercases it and converts it to its ASCII (punycode) form.
func NormalizeDomain(input string) (string, error) {
	d := strings.TrimSpace(input)
	d = portPrefixRegex.ReplaceAllString(d, "")
	d = schemeRegex.ReplaceAllString(d, "")
	d = strings.TrimSuffix(d, ".")
	ascii, err := idna.Punycode.ToASCII(strings.ToLower(d))
	if err != nil {
		return "", fmt.Errorf("invalid domain %q: %w", input, err)
	}
	return ascii, nil
}

// DomainToUnicode converts an ASCII domain back to its display form.
// Undecodable input is returned unchanged.
func DomainToUnicode(domain string) string {
	u, err := idna.Punycode.ToUnicode(domain)
	if err != nil {
		return domain
	}
	return u
}

// ValidateDomain checks the label syntax of an ASCII domain name.
func ValidateDomain(domain string) error {
	if domain == "" {
		return fmt.Errorf("domain cannot be empty")
	}
	if len(domain) > 253 {
		return fmt.Errorf("domain too long (max 253 characters): %s", domain)
	}
	labels := strings.Split(domain, ".")
	if len(labels) < 2 {
		return fmt.Errorf("domain needs at least two labels: %s", domain)
	}
	for _, l := range labels {
		if !labelRegex.MatchString(l) {
			return fmt.Errorf("invalid domain label %q in %s", l, domain)
		}
	}
	return nil
}

// ValidateIdentifier validates a general identifier (theme names, module names)
func ValidateIdentifier(id string) error {
	if id == "" {
		return fmt.Errorf("identifier cannot be empty")
	}

	if len(id) > 255 {
		return fmt.Errorf("identifier too long (max 255 characters)")
	}

	if !identifierRegex.MatchString(id) {
		return fmt.Errorf("invalid identifier: %s (must be alphanumeric with -_)", id)
	}

	return nil
}

// ValidateIP validates a single IPv4 or IPv6 address and returns it in
// canonical (compressed) form.
func ValidateIP(s string) (string, error) {
	ip := net.ParseIP(strings.TrimSpace(s))
	if ip == nil {
		return "", fmt.Errorf("invalid IP address: %s", s)
	}
	return ip.String(), nil
}

// IsIPv6 reports whether s is an IPv6 address.
func IsIPv6(s string) bool {
	ip := net.ParseIP(s)
	return ip != nil && ip.To4() == nil
}

// ValidateIPOrCIDR validates an IP address or CIDR range
func ValidateIPOrCIDR(s string) error {
	if s == "" {
		return fmt.Errorf("IP/CIDR cannot be empty")
	}

	// Try parsing as CIDR first
	if strings.Contains(s, "/") {
		_, _, err := net.ParseCIDR(s)
		if err != nil {
			return fmt.Errorf("invalid CIDR: %w", err)
		}
		return nil
	}

	if net.ParseIP(s) == nil {
		return fmt.Errorf("invalid IP address: %s", s)
	}

	return nil
}

// ValidatePortNumber validates a port number
func ValidatePortNumber(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("invalid port number: %d (must be 1-65535)", port)
	}
	return nil
}

// ParsePort parses a decimal port string.
func ParsePort(s string) (int, error) {
	if s == "" || strings.TrimLeft(s, "0123456789") != "" {
		return 0, fmt.Errorf("invalid port: %q", s)
	}
	p, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid port: %q", s)
	}
	return p, ValidatePortNumber(p)
}

// ValidateDate checks a YYYY-MM-DD date between 1900 and 2099.
func ValidateDate(s string) error {
	if !dateRegex.MatchString(s) {
		return fmt.Errorf("invalid date: %s (expected YYYY-MM-DD)", s)
	}
	return nil
}

// IsEmptyDate reports whether s means "no date".
func IsEmptyDate(s string) bool {
	return s == "" || s == "0" || s == "0000-00-00"
}

// ValidateFcgidNumber accepts digits or -1.
func ValidateFcgidNumber(s string) error {
	if !fcgidNumberRegex.MatchString(s) {
		return fmt.Errorf("invalid value %q (digits or -1)", s)
	}
	return nil
}

// ValidateRegex checks value against pattern.
func ValidateRegex(value, pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("bad pattern %q: %w", pattern, err)
	}
	if !re.MatchString(value) {
		return fmt.Errorf("value %q does not match %s", value, pattern)
	}
	return nil
}

// ValidateText rejects NUL bytes and returns s with CRLF normalized to LF.
func ValidateText(s string) (string, error) {
	if strings.ContainsRune(s, 0) {
		return "", fmt.Errorf("null byte in text")
	}
	return strings.ReplaceAll(s, "\r\n", "\n"), nil
}

// ValidateEmail checks a bare address (no display name).
func ValidateEmail(s string) error {
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s || addr.Name != "" {
		return fmt.Errorf("invalid email address: %s", s)
	}
	return nil
}

// IsURL reports whether s is an absolute http(s) URL with a host.
func IsURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// ValidateAllowlist checks if a value is in an allowed list
func ValidateAllowlist(value string, allowed []string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("value not in allowlist: %s", value)
}
