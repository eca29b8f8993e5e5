package source

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gosnmp/gosnmp"
	"github.com/martinsuchenak/ipamd/internal/log"
	"github.com/martinsuchenak/ipamd/pkg/cidrtree"
)

// oidIPNetToMediaPhysAddress is the ARP table column (RFC 1213). Each
// row's OID suffix carries ifIndex followed by the IPv4 address.
const oidIPNetToMediaPhysAddress = ".1.3.6.1.2.1.4.22.1.2"

const snmpTimeout = 5 * time.Second

// SNMPSource walks a router's ARP table and reports every entry as a
// leased /32. This catches addresses handed out on the network that no
// provider inventory knows about.
type SNMPSource struct {
	target    string
	community string
}

// NewSNMPSource creates a source polling the given SNMP v2c target
func NewSNMPSource(target, community string) *SNMPSource {
	return &SNMPSource{target: target, community: community}
}

// Name returns the source identifier
func (ss *SNMPSource) Name() string {
	return "snmp:" + ss.target
}

// Fetch walks ipNetToMediaPhysAddress and returns one EIP record per
// ARP entry
func (ss *SNMPSource) Fetch(ctx context.Context) ([]Record, error) {
	client := &gosnmp.GoSNMP{
		Target:    ss.target,
		Port:      161,
		Community: ss.community,
		Version:   gosnmp.Version2c,
		Timeout:   snmpTimeout,
		Retries:   1,
		Context:   ctx,
	}

	if err := client.Connect(); err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", ss.target, err)
	}
	defer client.Conn.Close()

	var records []Record
	err := client.BulkWalk(oidIPNetToMediaPhysAddress, func(pdu gosnmp.SnmpPDU) error {
		ip, ok := ipFromARPRow(pdu.Name)
		if !ok {
			log.Debug("Skipping unparsable ARP row", "oid", pdu.Name)
			return nil
		}
		records = append(records, Record{
			CIDR: ip + "/32",
			Kind: cidrtree.KindEIP,
			Tags: []string{"discovered=arp", "router=" + ss.target},
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking ARP table on %s: %w", ss.target, err)
	}

	log.Info("ARP walk completed", "target", ss.target, "entries", len(records))
	return records, nil
}

// ipFromARPRow extracts the IPv4 address from an ipNetToMedia row OID,
// which ends in <ifIndex>.<a>.<b>.<c>.<d>
func ipFromARPRow(oid string) (string, bool) {
	parts := strings.Split(strings.TrimPrefix(oid, "."), ".")
	if len(parts) < 4 {
		return "", false
	}
	octets := parts[len(parts)-4:]
	for _, o := range octets {
		n, err := strconv.Atoi(o)
		if err != nil || n < 0 || n > 255 {
			return "", false
		}
	}
	return strings.Join(octets, "."), true
}
