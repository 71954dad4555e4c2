package dnscache

import (
	"net"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/require"
)

func TestLookupLiteralIPBypassesCache(t *testing.T) {
	_, err := New("/nonexistent/resolv.conf")
	require.Error(t, err)

	c := &Cache{entries: make(map[string]entry)}
	addrs, err := c.Lookup("127.0.0.1")
	require.NoError(t, err)
	require.Len(t, addrs, 1)
	require.True(t, addrs[0].IP.Equal(net.ParseIP("127.0.0.1")))
	require.Empty(t, c.entries) // literal IP never populates the cache
}

func TestFromCacheHonorsTTLExpiry(t *testing.T) {
	c := &Cache{entries: make(map[string]entry)}
	c.entries["stale.example"] = entry{
		addrs:   []net.IPAddr{{IP: net.ParseIP("10.0.0.1")}},
		expires: time.Now().Add(-time.Second),
	}
	_, ok := c.fromCache("stale.example")
	require.False(t, ok)

	c.entries["fresh.example"] = entry{
		addrs:   []net.IPAddr{{IP: net.ParseIP("10.0.0.2")}},
		expires: time.Now().Add(time.Minute),
	}
	addrs, ok := c.fromCache("fresh.example")
	require.True(t, ok)
	require.Len(t, addrs, 1)
}

func TestRecordsToAddrsCollectsAAndAAAA(t *testing.T) {
	rrs := []dns.RR{
		&dns.A{Hdr: dns.RR_Header{Name: "h.", Rrtype: dns.TypeA}, A: net.ParseIP("1.2.3.4")},
		&dns.AAAA{Hdr: dns.RR_Header{Name: "h.", Rrtype: dns.TypeAAAA}, AAAA: net.ParseIP("::1")},
	}
	addrs := recordsToAddrs(rrs)
	require.Len(t, addrs, 2)
}

func TestMinTTLPicksSmallest(t *testing.T) {
	rrs := []dns.RR{
		&dns.A{Hdr: dns.RR_Header{Name: "h.", Rrtype: dns.TypeA, Ttl: 300}, A: net.ParseIP("1.2.3.4")},
		&dns.A{Hdr: dns.RR_Header{Name: "h.", Rrtype: dns.TypeA, Ttl: 30}, A: net.ParseIP("1.2.3.5")},
	}
	require.Equal(t, 30*time.Second, minTTL(rrs))
}
