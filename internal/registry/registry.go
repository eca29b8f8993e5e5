package registry

import (
	"sort"
	"sync"

	"github.com/martinsuchenak/ipamd/internal/model"
	"github.com/martinsuchenak/ipamd/internal/storage"
	"github.com/martinsuchenak/ipamd/pkg/cidrtree"
)

// Registry is the authoritative in-memory view of the CIDR hierarchy.
// The containment tree answers topology queries; the storage backend
// keeps records durable across restarts.
type Registry struct {
	mu    sync.RWMutex
	tree  *cidrtree.Tree
	store storage.Storage

	// tag -> set of canonical CIDR strings
	tagIndex map[string]map[string]struct{}
}

// New creates an empty registry backed by the given storage
func New(store storage.Storage) *Registry {
	return &Registry{
		tree:     cidrtree.NewTree(),
		store:    store,
		tagIndex: make(map[string]map[string]struct{}),
	}
}

// Load rebuilds the tree from persisted records. Called once at startup.
func (r *Registry) Load() error {
	records, err := r.store.ListCIDRs(nil)
	if err != nil {
		return err
	}

	entries := make([]cidrtree.Entry, 0, len(records))
	for _, rec := range records {
		block, err := cidrtree.Parse(rec.CIDR)
		if err != nil {
			return err
		}
		entries = append(entries, cidrtree.Entry{Block: block, Kind: rec.Kind, Tags: rec.Tags})
	}

	tree := cidrtree.NewTree()
	if err := tree.BuildFromList(entries); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tree = tree
	r.tagIndex = make(map[string]map[string]struct{})
	for _, rec := range records {
		block, _ := cidrtree.Parse(rec.CIDR)
		r.indexTags(block.String(), rec.Tags)
	}
	return nil
}

// Register inserts or updates a CIDR. Tags accumulate across repeated
// registrations of the same block; a non-UNKNOWN kind overrides the
// stored one.
func (r *Registry) Register(cidr string, kind cidrtree.Kind, tags []string, source string) (*model.CIDRRecord, error) {
	block, err := cidrtree.Parse(cidr)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	node, err := r.tree.Insert(block, kind, tags)
	if err != nil {
		return nil, err
	}

	rec := &model.CIDRRecord{
		CIDR:   node.CIDR(),
		Kind:   node.Kind(),
		Tags:   node.Tags(),
		Source: source,
	}
	if err := r.store.UpsertCIDR(rec); err != nil {
		return nil, err
	}

	r.indexTags(node.CIDR(), tags)
	return rec, nil
}

// Deregister removes a CIDR; its children are re-parented to the next
// containing block.
func (r *Registry) Deregister(cidr string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	node, err := r.tree.FindNode(cidr)
	if err != nil {
		return err
	}
	canonical := node.CIDR()
	tags := node.Tags()

	if err := r.tree.Remove(canonical); err != nil {
		return err
	}
	if err := r.store.DeleteCIDR(canonical); err != nil && err != storage.ErrCIDRNotFound {
		return err
	}

	for _, tag := range tags {
		if set, ok := r.tagIndex[tag]; ok {
			delete(set, canonical)
			if len(set) == 0 {
				delete(r.tagIndex, tag)
			}
		}
	}
	return nil
}

// List returns persisted records, optionally filtered by tag or kind
func (r *Registry) List(filter *model.CIDRFilter) ([]*model.CIDRRecord, error) {
	records, err := r.store.ListCIDRs(filter)
	if err != nil {
		return nil, err
	}
	out := make([]*model.CIDRRecord, len(records))
	for i := range records {
		out[i] = &records[i]
	}
	return out, nil
}

// Get returns the persisted record for a registered CIDR
func (r *Registry) Get(cidr string) (*model.CIDRRecord, error) {
	r.mu.RLock()
	node, err := r.tree.FindNode(cidr)
	r.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	return r.store.GetCIDR(node.CIDR())
}

// TagsOf returns the sorted tags attached to a registered CIDR
func (r *Registry) TagsOf(cidr string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	node, err := r.tree.FindNode(cidr)
	if err != nil {
		return nil, err
	}
	return node.Tags(), nil
}

// KindOf returns the kind of a registered CIDR
func (r *Registry) KindOf(cidr string) (cidrtree.Kind, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	node, err := r.tree.FindNode(cidr)
	if err != nil {
		return "", err
	}
	return node.Kind(), nil
}

// CIDRsWithTag returns every registered CIDR carrying the tag, in
// canonical order
func (r *Registry) CIDRsWithTag(tag string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set, ok := r.tagIndex[tag]
	if !ok {
		return []string{}
	}
	out := make([]string, 0, len(set))
	for cidr := range set {
		out = append(out, cidr)
	}
	sort.Slice(out, func(i, j int) bool {
		a := cidrtree.MustParse(out[i])
		b := cidrtree.MustParse(out[j])
		return a.Less(b)
	})
	return out
}

// Children returns the immediate children of a registered CIDR. An
// empty argument selects the top-level blocks.
func (r *Registry) Children(cidr string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tree.ChildrenOf(cidr)
}

// Ancestors returns the chain of containing blocks, outermost first
func (r *Registry) Ancestors(cidr string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tree.AncestorsOf(cidr)
}

// FreeBlock finds the first unallocated sub-block of the given prefix
// length inside a registered parent
func (r *Registry) FreeBlock(parent string, prefixLen int) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	block, err := r.tree.FindFreeBlock(parent, prefixLen)
	if err != nil {
		return "", err
	}
	return block.String(), nil
}

// Nested returns the hierarchy rooted at the given CIDR as a nested
// structure. An empty argument returns the whole tree.
func (r *Registry) Nested(cidr string) (cidrtree.NestedNode, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tree.Nested(cidr)
}

// Render returns a printable tree rooted at the given CIDR
func (r *Registry) Render(cidr string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tree.Render(cidr)
}

// LookupIP returns the narrowest registered block containing the IP
func (r *Registry) LookupIP(ip string) (*model.CIDRRecord, error) {
	r.mu.RLock()
	node, err := r.tree.LookupIP(ip)
	r.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	rec, err := r.store.GetCIDR(node.CIDR())
	if err == storage.ErrCIDRNotFound {
		// Block known to the tree but not persisted (e.g. storage
		// lagging behind); answer from the tree.
		return &model.CIDRRecord{CIDR: node.CIDR(), Kind: node.Kind(), Tags: node.Tags()}, nil
	}
	return rec, err
}

// Len returns the number of registered CIDRs
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tree.Len()
}

func (r *Registry) indexTags(cidr string, tags []string) {
	for _, tag := range tags {
		set, ok := r.tagIndex[tag]
		if !ok {
			set = make(map[string]struct{})
			r.tagIndex[tag] = set
		}
		set[cidr] = struct{}{}
	}
}
