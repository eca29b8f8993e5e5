package registry

import (
	"errors"
	"reflect"
	"testing"

	"github.com/martinsuchenak/ipamd/internal/storage"
	"github.com/martinsuchenak/ipamd/pkg/cidrtree"
)

func setupTestRegistry(t *testing.T) *Registry {
	t.Helper()

	store, err := storage.NewSQLiteStorage(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create test storage: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return New(store)
}

func TestRegistry_RegisterAndQuery(t *testing.T) {
	reg := setupTestRegistry(t)

	for _, c := range []struct {
		cidr string
		kind cidrtree.Kind
		tags []string
	}{
		{"10.0.0.0/8", cidrtree.KindStatic, []string{"rfc1918"}},
		{"10.1.0.0/16", cidrtree.KindVPC, []string{"env=prod"}},
		{"10.1.1.0/24", cidrtree.KindSubnet, []string{"env=prod", "az=a"}},
	} {
		if _, err := reg.Register(c.cidr, c.kind, c.tags, "test"); err != nil {
			t.Fatalf("Register(%s) error = %v", c.cidr, err)
		}
	}

	children, err := reg.Children("10.1.0.0/16")
	if err != nil {
		t.Fatalf("Children() error = %v", err)
	}
	if !reflect.DeepEqual(children, []string{"10.1.1.0/24"}) {
		t.Errorf("Expected children [10.1.1.0/24], got %v", children)
	}

	ancestors, err := reg.Ancestors("10.1.1.0/24")
	if err != nil {
		t.Fatalf("Ancestors() error = %v", err)
	}
	if !reflect.DeepEqual(ancestors, []string{"10.0.0.0/8", "10.1.0.0/16"}) {
		t.Errorf("Expected ancestors [10.0.0.0/8 10.1.0.0/16], got %v", ancestors)
	}

	rec, err := reg.Get("10.1.0.0/16")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if rec.Kind != cidrtree.KindVPC {
		t.Errorf("Expected kind VPC, got %s", rec.Kind)
	}
}

func TestRegistry_RegisterNormalizesHostBits(t *testing.T) {
	reg := setupTestRegistry(t)

	rec, err := reg.Register("10.0.0.5/24", cidrtree.KindStatic, nil, "test")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if rec.CIDR != "10.0.0.0/24" {
		t.Errorf("Expected canonical 10.0.0.0/24, got %s", rec.CIDR)
	}

	tags, err := reg.TagsOf("10.0.0.99/24")
	if err != nil {
		t.Errorf("Expected lookup by equivalent text to succeed, got %v", err)
	}
	if len(tags) != 0 {
		t.Errorf("Expected no tags, got %v", tags)
	}
}

func TestRegistry_TagIndex(t *testing.T) {
	reg := setupTestRegistry(t)

	mustRegister := func(cidr string, tags []string) {
		if _, err := reg.Register(cidr, cidrtree.KindUnknown, tags, "test"); err != nil {
			t.Fatalf("Register(%s) error = %v", cidr, err)
		}
	}
	mustRegister("10.2.0.0/16", []string{"env=prod"})
	mustRegister("10.1.0.0/16", []string{"env=prod"})
	mustRegister("10.3.0.0/16", []string{"env=dev"})

	got := reg.CIDRsWithTag("env=prod")
	if !reflect.DeepEqual(got, []string{"10.1.0.0/16", "10.2.0.0/16"}) {
		t.Errorf("Expected sorted prod CIDRs, got %v", got)
	}

	if got := reg.CIDRsWithTag("missing"); len(got) != 0 {
		t.Errorf("Expected empty result for unknown tag, got %v", got)
	}
}

func TestRegistry_DuplicateRegisterMergesTags(t *testing.T) {
	reg := setupTestRegistry(t)

	if _, err := reg.Register("10.0.0.0/16", cidrtree.KindUnknown, []string{"a"}, "test"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	rec, err := reg.Register("10.0.0.0/16", cidrtree.KindVPC, []string{"b"}, "test")
	if err != nil {
		t.Fatalf("Register() duplicate error = %v", err)
	}

	if rec.Kind != cidrtree.KindVPC {
		t.Errorf("Expected kind override to VPC, got %s", rec.Kind)
	}
	if !reflect.DeepEqual(rec.Tags, []string{"a", "b"}) {
		t.Errorf("Expected merged tags [a b], got %v", rec.Tags)
	}

	if reg.Len() != 1 {
		t.Errorf("Expected a single registered block, got %d", reg.Len())
	}
}

func TestRegistry_DeregisterReparents(t *testing.T) {
	reg := setupTestRegistry(t)

	for _, cidr := range []string{"10.0.0.0/8", "10.1.0.0/16", "10.1.1.0/24"} {
		if _, err := reg.Register(cidr, cidrtree.KindUnknown, []string{"t"}, "test"); err != nil {
			t.Fatalf("Register(%s) error = %v", cidr, err)
		}
	}

	if err := reg.Deregister("10.1.0.0/16"); err != nil {
		t.Fatalf("Deregister() error = %v", err)
	}

	children, err := reg.Children("10.0.0.0/8")
	if err != nil {
		t.Fatalf("Children() error = %v", err)
	}
	if !reflect.DeepEqual(children, []string{"10.1.1.0/24"}) {
		t.Errorf("Expected /24 re-parented under /8, got %v", children)
	}

	got := reg.CIDRsWithTag("t")
	if !reflect.DeepEqual(got, []string{"10.0.0.0/8", "10.1.1.0/24"}) {
		t.Errorf("Expected tag index pruned, got %v", got)
	}

	if err := reg.Deregister("10.9.0.0/16"); !errors.Is(err, cidrtree.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unregistered block, got %v", err)
	}
}

func TestRegistry_LoadRebuildsTree(t *testing.T) {
	dir := t.TempDir()

	store, err := storage.NewSQLiteStorage(dir)
	if err != nil {
		t.Fatalf("NewSQLiteStorage() error = %v", err)
	}
	reg := New(store)
	for _, cidr := range []string{"10.1.1.0/24", "10.0.0.0/8", "10.1.0.0/16"} {
		if _, err := reg.Register(cidr, cidrtree.KindUnknown, []string{"persisted"}, "test"); err != nil {
			t.Fatalf("Register(%s) error = %v", cidr, err)
		}
	}
	store.Close()

	store2, err := storage.NewSQLiteStorage(dir)
	if err != nil {
		t.Fatalf("NewSQLiteStorage() reopen error = %v", err)
	}
	defer store2.Close()

	reloaded := New(store2)
	if err := reloaded.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	ancestors, err := reloaded.Ancestors("10.1.1.0/24")
	if err != nil {
		t.Fatalf("Ancestors() error = %v", err)
	}
	if !reflect.DeepEqual(ancestors, []string{"10.0.0.0/8", "10.1.0.0/16"}) {
		t.Errorf("Expected rebuilt hierarchy, got %v", ancestors)
	}
	if got := reloaded.CIDRsWithTag("persisted"); len(got) != 3 {
		t.Errorf("Expected 3 tagged CIDRs after reload, got %v", got)
	}
}

func TestRegistry_FreeBlockAndLookup(t *testing.T) {
	reg := setupTestRegistry(t)

	for _, cidr := range []string{"10.0.0.0/16", "10.0.0.0/24", "10.0.1.0/24"} {
		if _, err := reg.Register(cidr, cidrtree.KindUnknown, nil, "test"); err != nil {
			t.Fatalf("Register(%s) error = %v", cidr, err)
		}
	}

	free, err := reg.FreeBlock("10.0.0.0/16", 24)
	if err != nil {
		t.Fatalf("FreeBlock() error = %v", err)
	}
	if free != "10.0.2.0/24" {
		t.Errorf("Expected 10.0.2.0/24, got %s", free)
	}

	rec, err := reg.LookupIP("10.0.1.77")
	if err != nil {
		t.Fatalf("LookupIP() error = %v", err)
	}
	if rec.CIDR != "10.0.1.0/24" {
		t.Errorf("Expected narrowest block 10.0.1.0/24, got %s", rec.CIDR)
	}
}
