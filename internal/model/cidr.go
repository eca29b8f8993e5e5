package model

import (
	"time"

	"github.com/martinsuchenak/ipamd/pkg/cidrtree"
)

// CIDRRecord is one registered address block as it moves between the
// collaborators, the registry and storage.
type CIDRRecord struct {
	ID        string        `json:"id,omitempty"`
	CIDR      string        `json:"cidr"`
	Kind      cidrtree.Kind `json:"kind"`
	Tags      []string      `json:"tags,omitempty"`
	Source    string        `json:"source,omitempty"` // collaborator that produced the record
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// CIDRFilter holds filter criteria for listing registered blocks.
type CIDRFilter struct {
	Tag  string        // only blocks carrying this tag
	Kind cidrtree.Kind // only blocks of this kind
}

// Matches reports whether the record passes the filter.
func (f *CIDRFilter) Matches(rec *CIDRRecord) bool {
	if f == nil {
		return true
	}
	if f.Kind != "" && rec.Kind != f.Kind {
		return false
	}
	if f.Tag != "" {
		found := false
		for _, tag := range rec.Tags {
			if tag == f.Tag {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// FreeBlockRequest asks for an unused block of the requested size beneath a
// registered parent.
type FreeBlockRequest struct {
	Parent       string `json:"parent"`
	PrefixLength int    `json:"prefix_length"`
}

// FreeBlockResponse carries the first-fit result of a free-block search.
type FreeBlockResponse struct {
	Parent string `json:"parent"`
	CIDR   string `json:"cidr"`
}
