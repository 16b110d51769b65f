// Package postgres implements docstore.Store on PostgreSQL via lib/pq.
// Records are stored in a single publications table with array columns for
// authors and author links; upserts replace the row wholesale.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"pubfinder/internal/docstore"
	"pubfinder/internal/record"
	apperrors "pubfinder/pkg/errors"
	pkgpostgres "pubfinder/pkg/postgres"
)

const schema = `
CREATE TABLE IF NOT EXISTS publications (
	id               TEXT PRIMARY KEY,
	title            TEXT NOT NULL,
	authors          TEXT[] NOT NULL DEFAULT '{}',
	author_links     TEXT[] NOT NULL DEFAULT '{}',
	year             INT NOT NULL DEFAULT 0,
	url              TEXT NOT NULL,
	publication_type TEXT NOT NULL DEFAULT '',
	crawled_at       TIMESTAMPTZ NOT NULL
)`

// Store is a Postgres-backed publication store.
type Store struct {
	client *pkgpostgres.Client
}

// New creates a Store and ensures the publications table exists.
func New(ctx context.Context, client *pkgpostgres.Client) (*Store, error) {
	if _, err := client.DB.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("ensuring publications schema: %w", err)
	}
	return &Store{client: client}, nil
}

const upsertSQL = `
	INSERT INTO publications
		(id, title, authors, author_links, year, url, publication_type, crawled_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (id) DO UPDATE SET
		title = EXCLUDED.title,
		authors = EXCLUDED.authors,
		author_links = EXCLUDED.author_links,
		year = EXCLUDED.year,
		url = EXCLUDED.url,
		publication_type = EXCLUDED.publication_type,
		crawled_at = EXCLUDED.crawled_at`

func upsertArgs(rec record.Record) []any {
	return []any{
		rec.ID, rec.Title, pq.Array(rec.Authors), pq.Array(rec.AuthorLinks),
		rec.Year, rec.URL, rec.PublicationType, rec.CrawledAt,
	}
}

// Upsert inserts the record or replaces every column of the existing row.
func (s *Store) Upsert(ctx context.Context, rec record.Record) error {
	if _, err := s.client.DB.ExecContext(ctx, upsertSQL, upsertArgs(rec)...); err != nil {
		return fmt.Errorf("upserting publication %s: %w", rec.ID, err)
	}
	return nil
}

// UpsertBatch writes every record inside one transaction, so a bulk
// submission lands in the store all-or-nothing.
func (s *Store) UpsertBatch(ctx context.Context, recs []record.Record) error {
	return s.client.InTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, upsertSQL)
		if err != nil {
			return fmt.Errorf("preparing upsert: %w", err)
		}
		defer stmt.Close()
		for _, rec := range recs {
			if _, err := stmt.ExecContext(ctx, upsertArgs(rec)...); err != nil {
				return fmt.Errorf("upserting publication %s: %w", rec.ID, err)
			}
		}
		return nil
	})
}

// Get returns the record for id.
func (s *Store) Get(ctx context.Context, id string) (record.Record, error) {
	row := s.client.DB.QueryRowContext(ctx, `
		SELECT id, title, authors, author_links, year, url, publication_type, crawled_at
		FROM publications WHERE id = $1`, id)
	rec, err := scanRecord(row.Scan)
	if err == sql.ErrNoRows {
		return record.Record{}, apperrors.Newf(apperrors.ErrDocumentNotFound, 404, "id %s", id)
	}
	if err != nil {
		return record.Record{}, fmt.Errorf("querying publication %s: %w", id, err)
	}
	return rec, nil
}

// All returns an iterator streaming every row ordered by ID.
func (s *Store) All(ctx context.Context) (docstore.Iterator, error) {
	rows, err := s.client.DB.QueryContext(ctx, `
		SELECT id, title, authors, author_links, year, url, publication_type, crawled_at
		FROM publications ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying publications: %w", err)
	}
	return &iterator{rows: rows}, nil
}

// Count returns the number of stored publications.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.client.DB.QueryRowContext(ctx,
		`SELECT count(*) FROM publications`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting publications: %w", err)
	}
	return n, nil
}

type iterator struct {
	rows    *sql.Rows
	current record.Record
	err     error
}

func (it *iterator) Next() bool {
	if it.err != nil || !it.rows.Next() {
		if it.err == nil {
			it.err = it.rows.Err()
		}
		return false
	}
	it.current, it.err = scanRecord(it.rows.Scan)
	return it.err == nil
}

func (it *iterator) Record() record.Record { return it.current }

func (it *iterator) Err() error { return it.err }

func (it *iterator) Close() error { return it.rows.Close() }

func scanRecord(scan func(dest ...any) error) (record.Record, error) {
	var rec record.Record
	err := scan(
		&rec.ID, &rec.Title,
		pq.Array(&rec.Authors), pq.Array(&rec.AuthorLinks),
		&rec.Year, &rec.URL, &rec.PublicationType, &rec.CrawledAt,
	)
	return rec, err
}
