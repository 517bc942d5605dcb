// Package capability detects which optional parts of the schema are present.
// The probe runs once per process; later callers get the cached answer.
package capability

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
)

// Set lists the optional features available in the store.
type Set struct {
	Bids       bool `json:"bids"`
	Assignment bool `json:"assignment"`
}

// Full is the feature set of a fully migrated store.
var Full = Set{Bids: true, Assignment: true}

// Checker reports the store's feature set.
type Checker interface {
	Load(ctx context.Context) (Set, error)
}

// Probe inspects sqlite_master and caches a successful result.
type Probe struct {
	DB *sql.DB

	mu     sync.Mutex
	loaded bool
	set    Set
}

func NewProbe(db *sql.DB) *Probe {
	return &Probe{DB: db}
}

func (p *Probe) Load(ctx context.Context) (Set, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.loaded {
		return p.set, nil
	}
	bids, err := tableExists(ctx, p.DB, "bids")
	if err != nil {
		return Set{}, fmt.Errorf("probe bids: %w", err)
	}
	assigned, err := columnExists(ctx, p.DB, "hustles", "assigned_to")
	if err != nil {
		return Set{}, fmt.Errorf("probe assigned_to: %w", err)
	}
	p.set = Set{Bids: bids, Assignment: assigned}
	p.loaded = true
	return p.set, nil
}

// Static is a Checker with a fixed answer.
type Static Set

func (s Static) Load(context.Context) (Set, error) { return Set(s), nil }

func tableExists(ctx context.Context, db *sql.DB, table string) (bool, error) {
	var n int
	err := db.QueryRowContext(ctx, `SELECT count(*) FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&n)
	return n > 0, err
}

func columnExists(ctx context.Context, db *sql.DB, table, column string) (bool, error) {
	var n int
	err := db.QueryRowContext(ctx, `SELECT count(*) FROM pragma_table_info(?) WHERE name=?`, table, column).Scan(&n)
	return n > 0, err
}
