package storage

import (
	"testing"

	"github.com/martinsuchenak/ipamd/internal/model"
	"github.com/martinsuchenak/ipamd/pkg/cidrtree"
)

// setupTestStorage creates a temporary SQLite storage instance for testing
func setupTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()

	storage, err := NewSQLiteStorage(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create test storage: %v", err)
	}
	t.Cleanup(func() { storage.Close() })

	return storage
}

func TestSQLiteStorage_UpsertAndGet(t *testing.T) {
	storage := setupTestStorage(t)

	rec := &model.CIDRRecord{
		CIDR:   "10.0.0.0/16",
		Kind:   cidrtree.KindVPC,
		Tags:   []string{"env=prod", "team=net"},
		Source: "cloud",
	}

	if err := storage.UpsertCIDR(rec); err != nil {
		t.Fatalf("UpsertCIDR() error = %v", err)
	}
	if rec.ID == "" {
		t.Error("Expected an ID to be assigned on insert")
	}

	got, err := storage.GetCIDR("10.0.0.0/16")
	if err != nil {
		t.Fatalf("GetCIDR() error = %v", err)
	}
	if got.Kind != cidrtree.KindVPC {
		t.Errorf("Expected kind VPC, got %s", got.Kind)
	}
	if len(got.Tags) != 2 {
		t.Errorf("Expected 2 tags, got %v", got.Tags)
	}
	if got.Source != "cloud" {
		t.Errorf("Expected source cloud, got %s", got.Source)
	}
}

func TestSQLiteStorage_GetMissing(t *testing.T) {
	storage := setupTestStorage(t)

	if _, err := storage.GetCIDR("192.168.0.0/24"); err != ErrCIDRNotFound {
		t.Errorf("Expected ErrCIDRNotFound, got %v", err)
	}
}

func TestSQLiteStorage_UpsertMergesTags(t *testing.T) {
	storage := setupTestStorage(t)

	first := &model.CIDRRecord{CIDR: "10.1.0.0/24", Kind: cidrtree.KindStatic, Tags: []string{"a"}}
	if err := storage.UpsertCIDR(first); err != nil {
		t.Fatalf("UpsertCIDR() error = %v", err)
	}

	second := &model.CIDRRecord{CIDR: "10.1.0.0/24", Kind: cidrtree.KindSubnet, Tags: []string{"b"}}
	if err := storage.UpsertCIDR(second); err != nil {
		t.Fatalf("UpsertCIDR() error = %v", err)
	}

	if second.ID != first.ID {
		t.Errorf("Expected upsert to reuse ID %s, got %s", first.ID, second.ID)
	}

	got, err := storage.GetCIDR("10.1.0.0/24")
	if err != nil {
		t.Fatalf("GetCIDR() error = %v", err)
	}
	if got.Kind != cidrtree.KindSubnet {
		t.Errorf("Expected kind to be updated to SUBNET, got %s", got.Kind)
	}
	if len(got.Tags) != 2 || got.Tags[0] != "a" || got.Tags[1] != "b" {
		t.Errorf("Expected merged sorted tags [a b], got %v", got.Tags)
	}
}

func TestSQLiteStorage_ListWithFilter(t *testing.T) {
	storage := setupTestStorage(t)

	records := []*model.CIDRRecord{
		{CIDR: "10.0.0.0/8", Kind: cidrtree.KindStatic, Tags: []string{"core"}},
		{CIDR: "10.1.0.0/16", Kind: cidrtree.KindVPC, Tags: []string{"env=prod"}},
		{CIDR: "10.1.1.0/24", Kind: cidrtree.KindSubnet, Tags: []string{"env=prod"}},
	}
	for _, rec := range records {
		if err := storage.UpsertCIDR(rec); err != nil {
			t.Fatalf("UpsertCIDR(%s) error = %v", rec.CIDR, err)
		}
	}

	all, err := storage.ListCIDRs(nil)
	if err != nil {
		t.Fatalf("ListCIDRs() error = %v", err)
	}
	if len(all) != 3 {
		t.Errorf("Expected 3 records, got %d", len(all))
	}

	tagged, err := storage.ListCIDRs(&model.CIDRFilter{Tag: "env=prod"})
	if err != nil {
		t.Fatalf("ListCIDRs(tag) error = %v", err)
	}
	if len(tagged) != 2 {
		t.Errorf("Expected 2 records tagged env=prod, got %d", len(tagged))
	}

	vpcs, err := storage.ListCIDRs(&model.CIDRFilter{Kind: cidrtree.KindVPC})
	if err != nil {
		t.Fatalf("ListCIDRs(kind) error = %v", err)
	}
	if len(vpcs) != 1 || vpcs[0].CIDR != "10.1.0.0/16" {
		t.Errorf("Expected only the VPC record, got %v", vpcs)
	}
}

func TestSQLiteStorage_Delete(t *testing.T) {
	storage := setupTestStorage(t)

	rec := &model.CIDRRecord{CIDR: "10.0.0.0/24", Kind: cidrtree.KindStatic}
	if err := storage.UpsertCIDR(rec); err != nil {
		t.Fatalf("UpsertCIDR() error = %v", err)
	}

	if err := storage.DeleteCIDR("10.0.0.0/24"); err != nil {
		t.Fatalf("DeleteCIDR() error = %v", err)
	}

	if _, err := storage.GetCIDR("10.0.0.0/24"); err != ErrCIDRNotFound {
		t.Errorf("Expected ErrCIDRNotFound after delete, got %v", err)
	}

	if err := storage.DeleteCIDR("10.0.0.0/24"); err != ErrCIDRNotFound {
		t.Errorf("Expected ErrCIDRNotFound for double delete, got %v", err)
	}
}

func TestSQLiteStorage_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	storage, err := NewSQLiteStorage(dir)
	if err != nil {
		t.Fatalf("NewSQLiteStorage() error = %v", err)
	}
	rec := &model.CIDRRecord{CIDR: "172.16.0.0/12", Kind: cidrtree.KindStatic, Tags: []string{"lab"}}
	if err := storage.UpsertCIDR(rec); err != nil {
		t.Fatalf("UpsertCIDR() error = %v", err)
	}
	storage.Close()

	reopened, err := NewSQLiteStorage(dir)
	if err != nil {
		t.Fatalf("NewSQLiteStorage() reopen error = %v", err)
	}
	defer reopened.Close()

	got, err := reopened.GetCIDR("172.16.0.0/12")
	if err != nil {
		t.Fatalf("GetCIDR() after reopen error = %v", err)
	}
	if len(got.Tags) != 1 || got.Tags[0] != "lab" {
		t.Errorf("Expected persisted tags [lab], got %v", got.Tags)
	}
}
