package storage

import (
	"errors"

	"github.com/martinsuchenak/ipamd/internal/model"
)

var (
	ErrCIDRNotFound = errors.New("CIDR record not found")
	ErrInvalidCIDR  = errors.New("invalid CIDR text")
)

// Storage defines the persistence interface for registered CIDR records. The
// registry answers all hierarchy questions in memory; storage only keeps the
// flat record set so the tree can be rebuilt at startup.
type Storage interface {
	ListCIDRs(filter *model.CIDRFilter) ([]model.CIDRRecord, error)
	GetCIDR(cidr string) (*model.CIDRRecord, error)
	UpsertCIDR(rec *model.CIDRRecord) error
	DeleteCIDR(cidr string) error
	Close() error
}

// NewStorage creates the default SQLite-backed storage under dataDir.
func NewStorage(dataDir string) (Storage, error) {
	return NewSQLiteStorage(dataDir)
}
