//go:build sqlite

package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations.sql
var migrationsSQL string

// sqliteBackend keeps every document in a single database file.
// Cache blobs and dedup entries are row-per-item so pruning stays cheap.
type sqliteBackend struct {
	db *sql.DB
}

func openSQLite(cfg Config) (Backend, error) {
	path := cfg.Path
	if path == "" {
		path = "data/sitewatch.db"
	}
	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=foreign_keys(ON)",
		url.PathEscape(path), busy.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(migrationsSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: migrate: %w", err)
	}
	return &sqliteBackend{db: db}, nil
}

func (b *sqliteBackend) LoadCache(ctx context.Context, site string) (json.RawMessage, bool, error) {
	var raw []byte
	err := b.db.QueryRowContext(ctx, `SELECT data FROM site_cache WHERE site = ?`, site).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("storage: load cache %s: %w", site, err)
	}
	return json.RawMessage(raw), true, nil
}

func (b *sqliteBackend) SaveCache(ctx context.Context, site string, data json.RawMessage) error {
	_, err := b.db.ExecContext(ctx, `
		INSERT INTO site_cache (site, data, updated_at) VALUES (?, ?, unixepoch())
		ON CONFLICT(site) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		site, []byte(data))
	if err != nil {
		return fmt.Errorf("storage: save cache %s: %w", site, err)
	}
	return nil
}

func (b *sqliteBackend) LoadDedup(ctx context.Context) (DedupState, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT site, hash, sent_at FROM dedup`)
	if err != nil {
		return nil, fmt.Errorf("storage: load dedup: %w", err)
	}
	defer rows.Close()
	state := make(DedupState)
	for rows.Next() {
		var site, hash string
		var sentAt float64
		if err := rows.Scan(&site, &hash, &sentAt); err != nil {
			return nil, fmt.Errorf("storage: scan dedup: %w", err)
		}
		m := state[site]
		if m == nil {
			m = make(map[string]float64)
			state[site] = m
		}
		m[hash] = sentAt
	}
	return state, rows.Err()
}

func (b *sqliteBackend) SaveDedup(ctx context.Context, state DedupState) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: save dedup: %w", err)
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM dedup`); err != nil {
		return fmt.Errorf("storage: save dedup: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO dedup (site, hash, sent_at) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("storage: save dedup: %w", err)
	}
	defer stmt.Close()
	for site, hashes := range state {
		for hash, sentAt := range hashes {
			if _, err := stmt.ExecContext(ctx, site, hash, sentAt); err != nil {
				return fmt.Errorf("storage: save dedup: %w", err)
			}
		}
	}
	return tx.Commit()
}

func (b *sqliteBackend) LoadSubscriptions(ctx context.Context) ([]SubscriptionRecord, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT id, is_group, sites, session FROM subscriptions ORDER BY pos`)
	if err != nil {
		return nil, fmt.Errorf("storage: load subscriptions: %w", err)
	}
	defer rows.Close()
	var recs []SubscriptionRecord
	for rows.Next() {
		var rec SubscriptionRecord
		var sites []byte
		if err := rows.Scan(&rec.ID, &rec.IsGroup, &sites, &rec.Session); err != nil {
			return nil, fmt.Errorf("storage: scan subscription: %w", err)
		}
		if len(sites) > 0 {
			if err := json.Unmarshal(sites, &rec.Sites); err != nil {
				return nil, fmt.Errorf("storage: decode subscription sites: %w", err)
			}
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func (b *sqliteBackend) SaveSubscriptions(ctx context.Context, recs []SubscriptionRecord) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: save subscriptions: %w", err)
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM subscriptions`); err != nil {
		return fmt.Errorf("storage: save subscriptions: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO subscriptions (pos, id, is_group, sites, session) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("storage: save subscriptions: %w", err)
	}
	defer stmt.Close()
	for i, rec := range recs {
		sites, err := json.Marshal(rec.Sites)
		if err != nil {
			return fmt.Errorf("storage: encode subscription sites: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, i, rec.ID, rec.IsGroup, sites, rec.Session); err != nil {
			return fmt.Errorf("storage: save subscriptions: %w", err)
		}
	}
	return tx.Commit()
}

func (b *sqliteBackend) Close() error {
	return b.db.Close()
}
