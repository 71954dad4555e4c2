// Package dnscache resolves hostnames to IP addresses off the reactor
// loops, with a TTL cache and single-flight de-duplication so a TTL
// expiry stampede issues one wire query instead of one per waiting
// socket.
package dnscache

import (
	"net"
	"sync"
	"time"

	"github.com/miekg/dns"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/yexxx/myNetWorkLib/errs"
	"github.com/yexxx/myNetWorkLib/xlog"
)

// DefaultTTL is how long a successful resolution stays cached; a
// smaller record TTL in the answer shortens it, a larger one does not
// extend it.
const DefaultTTL = 60 * time.Second

// DefaultQueryTimeout bounds a single upstream DNS round-trip.
const DefaultQueryTimeout = 5 * time.Second

type entry struct {
	addrs   []net.IPAddr
	expires time.Time
}

// Cache resolves A/AAAA records via github.com/miekg/dns against the
// resolvers in /etc/resolv.conf, caching successful answers until
// their TTL elapses.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry

	group  singleflight.Group
	client *dns.Client
	config *dns.ClientConfig

	log *zap.Logger
}

// New builds a Cache reading resolvers from resolvPath (typically
// "/etc/resolv.conf").
func New(resolvPath string) (*Cache, error) {
	cfg, err := dns.ClientConfigFromFile(resolvPath)
	if err != nil {
		return nil, errs.Wrap(errs.Dns, err, "read resolv.conf")
	}
	return &Cache{
		entries: make(map[string]entry),
		client:  &dns.Client{Timeout: DefaultQueryTimeout},
		config:  cfg,
		log:     xlog.Base().Named("dnscache"),
	}, nil
}

var (
	defaultOnce sync.Once
	defaultC    *Cache
)

// Default returns the process-wide cache, lazily built from
// /etc/resolv.conf on first use. If that file can't be read, Default
// falls back to a cache pointed at the loopback resolver 127.0.0.1:53,
// so name resolution degrades to "every lookup fails" rather than a
// nil-pointer panic.
func Default() *Cache {
	defaultOnce.Do(func() {
		c, err := New("/etc/resolv.conf")
		if err != nil {
			c = &Cache{
				entries: make(map[string]entry),
				client:  &dns.Client{Timeout: DefaultQueryTimeout},
				config:  &dns.ClientConfig{Servers: []string{"127.0.0.1"}, Port: "53"},
				log:     xlog.Base().Named("dnscache"),
			}
		}
		defaultC = c
	})
	return defaultC
}

// Lookup resolves host, serving from cache when unexpired. A literal
// IP is returned immediately without touching the network or the
// cache. Blocking: callers run this on a worker-pool goroutine, never
// on a reactor loop.
func (c *Cache) Lookup(host string) ([]net.IPAddr, error) {
	if ip := net.ParseIP(host); ip != nil {
		return []net.IPAddr{{IP: ip}}, nil
	}

	if addrs, ok := c.fromCache(host); ok {
		return addrs, nil
	}

	v, err, _ := c.group.Do(host, func() (interface{}, error) {
		return c.resolve(host)
	})
	if err != nil {
		return nil, err
	}
	return v.([]net.IPAddr), nil
}

func (c *Cache) fromCache(host string) ([]net.IPAddr, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[host]
	if !ok || time.Now().After(e.expires) {
		return nil, false
	}
	return e.addrs, true
}

func (c *Cache) resolve(host string) ([]net.IPAddr, error) {
	fqdn := dns.Fqdn(host)
	var addrs []net.IPAddr
	ttl := DefaultTTL

	for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
		a, recordTTL, err := c.query(fqdn, qtype)
		if err != nil {
			c.log.Warn("dns query failed", zap.String("host", host), zap.Error(err))
			continue
		}
		addrs = append(addrs, a...)
		if recordTTL > 0 && recordTTL < ttl {
			ttl = recordTTL
		}
	}

	if len(addrs) == 0 {
		return nil, errs.New(errs.Dns, "no address records for "+host)
	}

	c.mu.Lock()
	c.entries[host] = entry{addrs: addrs, expires: time.Now().Add(ttl)}
	c.mu.Unlock()

	return addrs, nil
}

func (c *Cache) query(fqdn string, qtype uint16) ([]net.IPAddr, time.Duration, error) {
	m := new(dns.Msg)
	m.SetQuestion(fqdn, qtype)
	m.RecursionDesired = true

	var lastErr error
	for _, server := range c.config.Servers {
		addr := net.JoinHostPort(server, c.config.Port)
		resp, _, err := c.client.Exchange(m, addr)
		if err != nil {
			lastErr = err
			continue
		}
		if resp.Rcode != dns.RcodeSuccess {
			lastErr = errs.New(errs.Dns, dns.RcodeToString[resp.Rcode])
			continue
		}
		return recordsToAddrs(resp.Answer), minTTL(resp.Answer), nil
	}
	if lastErr == nil {
		lastErr = errs.New(errs.Dns, "no resolvers configured")
	}
	return nil, 0, lastErr
}

func recordsToAddrs(rrs []dns.RR) []net.IPAddr {
	var out []net.IPAddr
	for _, rr := range rrs {
		switch r := rr.(type) {
		case *dns.A:
			out = append(out, net.IPAddr{IP: r.A})
		case *dns.AAAA:
			out = append(out, net.IPAddr{IP: r.AAAA})
		}
	}
	return out
}

func minTTL(rrs []dns.RR) time.Duration {
	var min uint32
	for _, rr := range rrs {
		h := rr.Header()
		if min == 0 || h.Ttl < min {
			min = h.Ttl
		}
	}
	return time.Duration(min) * time.Second
}
