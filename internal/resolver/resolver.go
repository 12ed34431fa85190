// Package resolver looks up the addresses a domain currently points at.
// The Let's Encrypt DNS check compares them with the panel's own IPs before
// a certificate is requested.
package resolver

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"
)

// Resolver queries a fixed list of nameservers.
type Resolver struct {
	Servers []string // host:port
	Timeout time.Duration
}

// New builds a resolver from resolv.conf, falling back to localhost.
func New(resolvConf string) *Resolver {
	r := &Resolver{Timeout: 2 * time.Second}
	if resolvConf == "" {
		resolvConf = "/etc/resolv.conf"
	}
	if cfg, err := dns.ClientConfigFromFile(resolvConf); err == nil {
		for _, s := range cfg.Servers {
			r.Servers = append(r.Servers, net.JoinHostPort(s, cfg.Port))
		}
		if cfg.Timeout > 0 {
			r.Timeout = time.Duration(cfg.Timeout) * time.Second
		}
	}
	if len(r.Servers) == 0 {
		r.Servers = []string{"127.0.0.1:53"}
	}
	return r
}

// LookupHost returns the AAAA addresses of host and, with tryA, its A
// addresses first. Addresses are in compressed form. An empty result is
// not an error.
func (r *Resolver) LookupHost(ctx context.Context, host string, tryA bool) ([]string, error) {
	var out []string
	if tryA {
		ips, err := r.query(ctx, host, dns.TypeA)
		if err != nil {
			return nil, err
		}
		out = append(out, ips...)
	}
	ips, err := r.query(ctx, host, dns.TypeAAAA)
	if err != nil {
		return nil, err
	}
	return append(out, ips...), nil
}

func (r *Resolver) query(ctx context.Context, host string, qtype uint16) ([]string, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(strings.ToLower(host)), qtype)
	m.RecursionDesired = true

	c := new(dns.Client)
	c.Timeout = r.Timeout

	var lastErr error
	for _, server := range r.Servers {
		resp, _, err := c.ExchangeContext(ctx, m, server)
		if err != nil {
			lastErr = err
			continue
		}
		if resp.Rcode != dns.RcodeSuccess && resp.Rcode != dns.RcodeNameError {
			lastErr = fmt.Errorf("%s: %s", server, dns.RcodeToString[resp.Rcode])
			continue
		}

		var ips []string
		for _, rr := range resp.Answer {
			switch v := rr.(type) {
			case *dns.A:
				if qtype == dns.TypeA {
					ips = append(ips, v.A.String())
				}
			case *dns.AAAA:
				if qtype == dns.TypeAAAA {
					ips = append(ips, v.AAAA.String())
				}
			}
		}
		return ips, nil
	}
	return nil, fmt.Errorf("lookup %s %s: %w", host, dns.TypeToString[qtype], lastErr)
}
