package source

import (
	"context"
	"net/netip"

	"github.com/martinsuchenak/ipamd/pkg/cidrtree"
)

// Record is one CIDR reported by a source
type Record struct {
	CIDR string
	Kind cidrtree.Kind
	Tags []string
}

// Source feeds CIDRs into the registry. Fetch returns the full current
// inventory of the source; the syncer registers what it gets.
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]Record, error)
}

// hostCIDR turns a bare address into full-width CIDR notation. Invalid
// input is passed through and rejected downstream by the registry.
func hostCIDR(ip string) string {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return ip
	}
	if addr.Is4() {
		return ip + "/32"
	}
	return ip + "/128"
}
