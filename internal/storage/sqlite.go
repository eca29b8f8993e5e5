package storage

import (
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/google/uuid"
	"github.com/martinsuchenak/ipamd/internal/model"
	"github.com/martinsuchenak/ipamd/pkg/cidrtree"
)

//go:embed schema.sql
var schemaFS embed.FS

// SQLiteStorage implements Storage with a SQLite backend
type SQLiteStorage struct {
	mu   sync.RWMutex
	db   *sql.DB
	path string
}

// NewSQLiteStorage creates a new SQLite-based storage
func NewSQLiteStorage(dataDir string) (*SQLiteStorage, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, err
	}

	dbPath := filepath.Join(dataDir, "ipam.db")

	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	// SQLite works best with a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ss := &SQLiteStorage{
		db:   db,
		path: dbPath,
	}

	if err := ss.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	return ss, nil
}

// initSchema creates the database schema
func (ss *SQLiteStorage) initSchema() error {
	schema, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("reading schema: %w", err)
	}

	_, err = ss.db.Exec(string(schema))
	return err
}

// Close closes the database connection
func (ss *SQLiteStorage) Close() error {
	return ss.db.Close()
}

// ListCIDRs returns all stored records, optionally filtered, ordered by CIDR text
func (ss *SQLiteStorage) ListCIDRs(filter *model.CIDRFilter) ([]model.CIDRRecord, error) {
	ss.mu.RLock()
	defer ss.mu.RUnlock()

	query := `
		SELECT c.id, c.cidr, c.kind, c.source, c.created_at, c.updated_at
		FROM cidrs c
		ORDER BY c.cidr
	`

	rows, err := ss.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("querying cidrs: %w", err)
	}
	defer rows.Close()

	records, err := ss.scanRecords(rows)
	if err != nil {
		return nil, err
	}

	for i := range records {
		if err := ss.loadTags(&records[i]); err != nil {
			return nil, err
		}
	}

	if filter != nil {
		filtered := records[:0]
		for i := range records {
			if filter.Matches(&records[i]) {
				filtered = append(filtered, records[i])
			}
		}
		records = filtered
	}

	return records, nil
}

// GetCIDR retrieves one record by its canonical CIDR text
func (ss *SQLiteStorage) GetCIDR(cidr string) (*model.CIDRRecord, error) {
	ss.mu.RLock()
	defer ss.mu.RUnlock()

	return ss.getByCIDR(cidr)
}

func (ss *SQLiteStorage) getByCIDR(cidr string) (*model.CIDRRecord, error) {
	query := `
		SELECT c.id, c.cidr, c.kind, c.source, c.created_at, c.updated_at
		FROM cidrs c
		WHERE c.cidr = ?
		LIMIT 1
	`

	var rec model.CIDRRecord
	var kind string
	err := ss.db.QueryRow(query, cidr).Scan(
		&rec.ID, &rec.CIDR, &kind, &rec.Source, &rec.CreatedAt, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrCIDRNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying cidr %s: %w", cidr, err)
	}
	rec.Kind = cidrtree.Kind(kind)

	if err := ss.loadTags(&rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// UpsertCIDR inserts a record or updates the existing one for the same CIDR.
// Tags are merged, matching the registry's idempotent-registration semantics.
func (ss *SQLiteStorage) UpsertCIDR(rec *model.CIDRRecord) error {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if rec.CIDR == "" {
		return ErrInvalidCIDR
	}

	now := time.Now()

	// Resolve the existing row before opening the transaction: the pool is
	// capped at one connection, so a query against ss.db would block while
	// the transaction holds it.
	existing, err := ss.getByCIDR(rec.CIDR)
	if err != nil && err != ErrCIDRNotFound {
		return err
	}

	tx, txErr := ss.db.Begin()
	if txErr != nil {
		return fmt.Errorf("beginning transaction: %w", txErr)
	}
	defer tx.Rollback()
	if existing != nil {
		rec.ID = existing.ID
		rec.CreatedAt = existing.CreatedAt
		rec.UpdatedAt = now
		if _, err := tx.Exec(`
			UPDATE cidrs SET kind = ?, source = ?, updated_at = ? WHERE id = ?
		`, string(rec.Kind), rec.Source, rec.UpdatedAt, rec.ID); err != nil {
			return fmt.Errorf("updating cidr: %w", err)
		}
	} else {
		if rec.ID == "" {
			rec.ID = uuid.New().String()
		}
		rec.CreatedAt = now
		rec.UpdatedAt = now
		if _, err := tx.Exec(`
			INSERT INTO cidrs (id, cidr, kind, source, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, rec.ID, rec.CIDR, string(rec.Kind), rec.Source, rec.CreatedAt, rec.UpdatedAt); err != nil {
			return fmt.Errorf("inserting cidr: %w", err)
		}
	}

	if err := ss.insertTags(tx, rec.ID, rec.Tags); err != nil {
		return err
	}

	return tx.Commit()
}

// DeleteCIDR removes a record and its tags
func (ss *SQLiteStorage) DeleteCIDR(cidr string) error {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	result, err := ss.db.Exec(`DELETE FROM cidrs WHERE cidr = ?`, cidr)
	if err != nil {
		return fmt.Errorf("deleting cidr: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking delete result: %w", err)
	}
	if rows == 0 {
		return ErrCIDRNotFound
	}
	return nil
}

func (ss *SQLiteStorage) scanRecords(rows *sql.Rows) ([]model.CIDRRecord, error) {
	var records []model.CIDRRecord
	for rows.Next() {
		var rec model.CIDRRecord
		var kind string
		if err := rows.Scan(&rec.ID, &rec.CIDR, &kind, &rec.Source, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning cidr row: %w", err)
		}
		rec.Kind = cidrtree.Kind(kind)
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (ss *SQLiteStorage) loadTags(rec *model.CIDRRecord) error {
	rows, err := ss.db.Query(`SELECT tag FROM cidr_tags WHERE cidr_id = ? ORDER BY tag`, rec.ID)
	if err != nil {
		return fmt.Errorf("querying tags for %s: %w", rec.CIDR, err)
	}
	defer rows.Close()

	rec.Tags = nil
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return fmt.Errorf("scanning tag row: %w", err)
		}
		rec.Tags = append(rec.Tags, tag)
	}
	return rows.Err()
}

func (ss *SQLiteStorage) insertTags(tx *sql.Tx, cidrID string, tags []string) error {
	for _, tag := range tags {
		_, err := tx.Exec(`
			INSERT OR IGNORE INTO cidr_tags (cidr_id, tag) VALUES (?, ?)
		`, cidrID, tag)
		if err != nil {
			return fmt.Errorf("inserting tag %q: %w", tag, err)
		}
	}
	return nil
}
