package source

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/martinsuchenak/ipamd/internal/log"
	"github.com/martinsuchenak/ipamd/pkg/cidrtree"
)

// Common TCP ports probed for liveness (no special privileges required)
var probePorts = []int{80, 443, 22, 3389, 23, 21, 25, 53, 110, 143, 993, 995}

const (
	probeTimeout = 2 * time.Second

	// probeMinPrefix bounds the sweep size. A /22 is 1024 hosts; anything
	// wider takes too long for a sync pass.
	probeMinPrefix = 22

	maxConcurrentHosts = 5
	maxConcurrentPorts = 10
)

// ProbeSource discovers live hosts inside an IPv4 block by attempting TCP
// connections to a set of common ports. Hosts that answer on at least one
// port are reported as /32 leases.
type ProbeSource struct {
	cidr string
}

// NewProbeSource creates a probe source sweeping the given IPv4 CIDR.
func NewProbeSource(cidr string) *ProbeSource {
	return &ProbeSource{cidr: cidr}
}

func (p *ProbeSource) Name() string {
	return "probe:" + p.cidr
}

// Fetch sweeps the configured block and returns a record per live host.
func (p *ProbeSource) Fetch(ctx context.Context) ([]Record, error) {
	prefix, err := netip.ParsePrefix(p.cidr)
	if err != nil {
		return nil, fmt.Errorf("parsing probe CIDR %q: %w", p.cidr, err)
	}
	if !prefix.Addr().Is4() {
		return nil, fmt.Errorf("probe CIDR %q: only IPv4 blocks can be swept", p.cidr)
	}
	if prefix.Bits() < probeMinPrefix {
		return nil, fmt.Errorf("probe CIDR %q: prefix wider than /%d", p.cidr, probeMinPrefix)
	}

	ips := hostAddrs(prefix)
	log.Info("Starting host probe sweep", "cidr", p.cidr, "hosts", len(ips))

	sem := make(chan struct{}, maxConcurrentHosts)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var records []Record

	for _, ip := range ips {
		wg.Add(1)
		go func(ip netip.Addr) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			select {
			case <-ctx.Done():
				return
			default:
			}

			if !probeHost(ctx, ip) {
				return
			}

			rec := Record{
				CIDR: netip.PrefixFrom(ip, ip.BitLen()).String(),
				Kind: cidrtree.KindEIP,
				Tags: []string{"discovered=tcp"},
			}
			if hostname := reverseLookup(ip); hostname != "" {
				rec.Tags = append(rec.Tags, "hostname="+hostname)
			}

			mu.Lock()
			records = append(records, rec)
			mu.Unlock()

			log.Debug("Live host found", "ip", ip)
		}(ip)
	}

	wg.Wait()

	log.Info("Host probe sweep completed", "cidr", p.cidr, "live", len(records))
	return records, nil
}

// probeHost reports whether the host answers a TCP connect on any probed port.
func probeHost(ctx context.Context, ip netip.Addr) bool {
	sem := make(chan struct{}, maxConcurrentPorts)

	var wg sync.WaitGroup
	var mu sync.Mutex
	alive := false

	for _, port := range probePorts {
		wg.Add(1)
		go func(port int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			select {
			case <-ctx.Done():
				return
			default:
			}

			address := fmt.Sprintf("%s:%d", ip, port)
			conn, err := net.DialTimeout("tcp", address, probeTimeout)
			if err == nil {
				conn.Close()
				mu.Lock()
				alive = true
				mu.Unlock()
			}
		}(port)
	}

	wg.Wait()
	return alive
}

// hostAddrs lists the usable host addresses of an IPv4 prefix, skipping the
// network and broadcast addresses for blocks of /30 and wider.
func hostAddrs(prefix netip.Prefix) []netip.Addr {
	first := prefix.Masked().Addr()

	var addrs []netip.Addr
	for addr := first; prefix.Contains(addr); addr = addr.Next() {
		addrs = append(addrs, addr)
	}

	if prefix.Bits() <= 30 && len(addrs) > 2 {
		addrs = addrs[1 : len(addrs)-1]
	}
	return addrs
}

// reverseLookup returns the first PTR name for the address, or "".
func reverseLookup(ip netip.Addr) string {
	names, err := net.LookupAddr(ip.String())
	if err != nil || len(names) == 0 {
		return ""
	}
	return names[0]
}
