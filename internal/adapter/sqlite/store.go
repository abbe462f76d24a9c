// Package sqlite stores published panels in a SQLite database so dashboard
// consumers can query them without rerunning the pipeline.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/couchcryptid/arvig-etl/internal/domain"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS panel_cells (
	granularity  TEXT    NOT NULL,
	key          INTEGER NOT NULL,
	time         TEXT    NOT NULL,
	category_en  TEXT    NOT NULL,
	attacks      INTEGER NOT NULL,
	name         TEXT    NOT NULL,
	state        TEXT    NOT NULL,
	pop          INTEGER NOT NULL,
	attack_pop   REAL,
	attack_pop_c TEXT    NOT NULL,
	PRIMARY KEY (granularity, key, time, category_en)
);
CREATE TABLE IF NOT EXISTS panel_refreshes (
	granularity  TEXT PRIMARY KEY,
	refreshed_at TEXT NOT NULL,
	cells        INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_panel_cells_time ON panel_cells(granularity, time);
`

// Store is a panel sink backed by SQLite.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and ensures the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Name() string { return "sqlite" }

// Store replaces every given granularity in one transaction.
func (s *Store) Store(ctx context.Context, panels []domain.Panel) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	insert, err := tx.PrepareContext(ctx, `INSERT INTO panel_cells
		(granularity, key, time, category_en, attacks, name, state, pop, attack_pop, attack_pop_c)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer insert.Close()

	for _, p := range panels {
		g := string(p.Granularity)
		if _, err = tx.ExecContext(ctx, `DELETE FROM panel_cells WHERE granularity = ?`, g); err != nil {
			return fmt.Errorf("clear %s: %w", g, err)
		}
		for _, c := range p.Cells {
			var rate sql.NullFloat64
			if c.AttackPop != nil {
				rate = sql.NullFloat64{Float64: *c.AttackPop, Valid: true}
			}
			if _, err = insert.ExecContext(ctx, g, c.Key, c.Time.String(), string(c.Category),
				c.Attacks, c.Name, c.State, c.Pop, rate, c.AttackPopBin); err != nil {
				return fmt.Errorf("insert %s cell: %w", g, err)
			}
		}
		if _, err = tx.ExecContext(ctx, `INSERT OR REPLACE INTO panel_refreshes (granularity, refreshed_at, cells) VALUES (?, ?, ?)`,
			g, p.RefreshedAt.UTC().Format(time.RFC3339), len(p.Cells)); err != nil {
			return fmt.Errorf("record %s refresh: %w", g, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Load reads back every stored panel, ordered like the aggregator emits it.
func (s *Store) Load(ctx context.Context) ([]domain.Panel, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT granularity, refreshed_at FROM panel_refreshes ORDER BY granularity`)
	if err != nil {
		return nil, fmt.Errorf("query refreshes: %w", err)
	}
	var panels []domain.Panel
	for rows.Next() {
		var g, at string
		if err := rows.Scan(&g, &at); err != nil {
			_ = rows.Close()
			return nil, err
		}
		gran, err := domain.ParseGranularity(g)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		refreshed, err := time.Parse(time.RFC3339, at)
		if err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("parse refreshed_at %q: %w", at, err)
		}
		panels = append(panels, domain.Panel{Granularity: gran, RefreshedAt: refreshed})
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}

	for i := range panels {
		if panels[i].Cells, err = s.cells(ctx, panels[i].Granularity); err != nil {
			return nil, err
		}
	}
	return panels, nil
}

func (s *Store) cells(ctx context.Context, g domain.Granularity) ([]domain.Cell, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, time, category_en, attacks, name, state, pop, attack_pop, attack_pop_c
		FROM panel_cells WHERE granularity = ? ORDER BY key, time, category_en`, string(g))
	if err != nil {
		return nil, fmt.Errorf("query %s cells: %w", g, err)
	}
	defer rows.Close()

	var out []domain.Cell
	for rows.Next() {
		var (
			c        domain.Cell
			bucket   string
			category string
			rate     sql.NullFloat64
		)
		if err := rows.Scan(&c.Key, &bucket, &category, &c.Attacks, &c.Name, &c.State, &c.Pop, &rate, &c.AttackPopBin); err != nil {
			return nil, err
		}
		if c.Time, err = domain.ParseBucket(g, bucket); err != nil {
			return nil, err
		}
		c.Category = domain.Category(category)
		if rate.Valid {
			v := rate.Float64
			c.AttackPop = &v
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}
