package source

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/martinsuchenak/ipamd/pkg/cidrtree"
)

// FileProvider reads a cloud inventory export from a JSON file. The
// export mirrors what a provider API returns: VPCs with their subnets
// and allocated elastic IPs:
//
//	{
//	  "vpcs": [
//	    {"id": "vpc-1", "cidr": "10.1.0.0/16",
//	     "subnets": [{"id": "subnet-1", "cidr": "10.1.1.0/24"}]}
//	  ],
//	  "elastic_ips": ["203.0.113.7"]
//	}
type FileProvider struct {
	name string
	path string
}

type cloudSubnet struct {
	ID   string `json:"id"`
	CIDR string `json:"cidr"`
}

type cloudVPC struct {
	ID      string        `json:"id"`
	CIDR    string        `json:"cidr"`
	Subnets []cloudSubnet `json:"subnets,omitempty"`
}

type cloudExport struct {
	VPCs       []cloudVPC `json:"vpcs"`
	ElasticIPs []string   `json:"elastic_ips,omitempty"`
}

// NewFileProvider creates a provider-export source with the given name
func NewFileProvider(name, path string) *FileProvider {
	return &FileProvider{name: name, path: path}
}

// Name returns the source identifier
func (fp *FileProvider) Name() string {
	return fp.name
}

// Fetch reads the export and flattens it into CIDR records. VPC and
// subnet IDs become tags so the hierarchy stays traceable to the
// provider inventory.
func (fp *FileProvider) Fetch(ctx context.Context) ([]Record, error) {
	data, err := os.ReadFile(fp.path)
	if err != nil {
		return nil, fmt.Errorf("reading provider export: %w", err)
	}

	var export cloudExport
	if err := json.Unmarshal(data, &export); err != nil {
		return nil, fmt.Errorf("parsing provider export: %w", err)
	}

	var records []Record
	for _, vpc := range export.VPCs {
		records = append(records, Record{
			CIDR: vpc.CIDR,
			Kind: cidrtree.KindVPC,
			Tags: []string{"vpc=" + vpc.ID, "provider=" + fp.name},
		})
		for _, subnet := range vpc.Subnets {
			records = append(records, Record{
				CIDR: subnet.CIDR,
				Kind: cidrtree.KindSubnet,
				Tags: []string{"subnet=" + subnet.ID, "vpc=" + vpc.ID, "provider=" + fp.name},
			})
		}
	}
	for _, ip := range export.ElasticIPs {
		records = append(records, Record{
			CIDR: hostCIDR(ip),
			Kind: cidrtree.KindEIP,
			Tags: []string{"provider=" + fp.name},
		})
	}
	return records, nil
}
