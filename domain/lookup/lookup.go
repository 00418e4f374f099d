package lookup

import (
	"context"
	"net"
	"strings"
	"time"

	"github.com/Murilovisque/logs/v3"
	"github.com/miekg/dns"
)

const queryTimeout = 5 * time.Second

// Resolver turns a host name into its addresses for the blocking UI. It is a
// pure helper: failures are logged and collapse to an empty result, never an
// error the caller has to handle.
type Resolver struct {
	server string
	logger logs.Logger
}

func NewResolver() *Resolver {
	cfg, _ := dns.ClientConfigFromFile("/etc/resolv.conf")
	if cfg == nil || len(cfg.Servers) == 0 {
		cfg = &dns.ClientConfig{Servers: []string{"1.1.1.1"}, Port: "53"}
	}
	return &Resolver{
		server: net.JoinHostPort(cfg.Servers[0], cfg.Port),
		logger: logs.NewChildLogger(logs.FixedFieldValue("component", "lookup")),
	}
}

// Resolve returns the deduplicated A and AAAA addresses of host.
func (r *Resolver) Resolve(ctx context.Context, host string) []string {
	host = strings.TrimSpace(host)
	if host == "" {
		r.logger.Error("lookup received an empty host")
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	c := new(dns.Client)
	var ips []string
	seen := make(map[string]bool)
	var lastErr error
	for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
		m := new(dns.Msg)
		m.SetQuestion(dns.Fqdn(host), qtype)
		resp, _, err := c.ExchangeContext(ctx, m, r.server)
		if err != nil {
			lastErr = err
			continue
		}
		if resp == nil || resp.Rcode != dns.RcodeSuccess {
			continue
		}
		for _, a := range resp.Answer {
			var ip string
			switch rr := a.(type) {
			case *dns.A:
				ip = rr.A.String()
			case *dns.AAAA:
				ip = rr.AAAA.String()
			default:
				continue
			}
			if !seen[ip] {
				seen[ip] = true
				ips = append(ips, ip)
			}
		}
	}
	if len(ips) == 0 {
		if lastErr != nil {
			r.logger.Errorf("lookup for '%s' failed. Error: %v", host, lastErr)
		} else {
			r.logger.Infof("lookup for '%s' returned no addresses", host)
		}
	}
	return ips
}
