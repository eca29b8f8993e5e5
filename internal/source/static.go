package source

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/martinsuchenak/ipamd/pkg/cidrtree"
)

// StaticFile reads a hand-maintained CIDR inventory from a JSON file.
// The file holds a list of blocks with optional tags and type:
//
//	{"cidrs": [{"cidr": "10.0.0.0/8", "tags": ["rfc1918"], "type": "STATIC"}]}
type StaticFile struct {
	path string
}

type staticEntry struct {
	CIDR string   `json:"cidr"`
	Tags []string `json:"tags,omitempty"`
	Type string   `json:"type,omitempty"`
}

type staticFileFormat struct {
	CIDRs []staticEntry `json:"cidrs"`
}

// NewStaticFile creates a source reading from the given path
func NewStaticFile(path string) *StaticFile {
	return &StaticFile{path: path}
}

// Name returns the source identifier
func (sf *StaticFile) Name() string {
	return "static-file"
}

// Fetch reads and parses the inventory file
func (sf *StaticFile) Fetch(ctx context.Context) ([]Record, error) {
	data, err := os.ReadFile(sf.path)
	if err != nil {
		return nil, fmt.Errorf("reading static inventory: %w", err)
	}

	var file staticFileFormat
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing static inventory: %w", err)
	}

	records := make([]Record, 0, len(file.CIDRs))
	for _, entry := range file.CIDRs {
		kind := cidrtree.KindStatic
		if entry.Type != "" {
			kind = cidrtree.ParseKind(entry.Type)
		}
		records = append(records, Record{
			CIDR: entry.CIDR,
			Kind: kind,
			Tags: entry.Tags,
		})
	}
	return records, nil
}
