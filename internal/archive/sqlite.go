// Package archive stores the raw extracted text of uploaded documents in
// SQLite, so the retrieval store can be rebuilt (reindexed) without the
// original files.
package archive

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Document is an archived upload: the extracted text plus what ingest needs
// to reproduce the document in the store.
type Document struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Text       string    `json:"-"`
	PageCount  int       `json:"page_count"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// Archive is a SQLite-backed document archive.
type Archive struct {
	db *sql.DB
}

// Open opens or creates the archive database at dbPath and initializes the
// schema. Parent directories are created if they do not exist.
func Open(dbPath string) (*Archive, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create archive directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		text TEXT NOT NULL,
		page_count INTEGER NOT NULL DEFAULT 1,
		uploaded_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_documents_uploaded_at ON documents(uploaded_at);
	`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize archive schema: %w", err)
	}
	return &Archive{db: db}, nil
}

// Put inserts or replaces a document. A zero UploadedAt is set to now.
func (a *Archive) Put(ctx context.Context, doc *Document) error {
	if doc.UploadedAt.IsZero() {
		doc.UploadedAt = time.Now().UTC()
	}
	_, err := a.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO documents (id, name, text, page_count, uploaded_at)
		 VALUES (?, ?, ?, ?, ?)`,
		doc.ID, doc.Name, doc.Text, doc.PageCount, doc.UploadedAt)
	if err != nil {
		return fmt.Errorf("archive document %s: %w", doc.ID, err)
	}
	return nil
}

// Get returns the archived document, or sql.ErrNoRows if absent.
func (a *Archive) Get(ctx context.Context, id string) (*Document, error) {
	var doc Document
	err := a.db.QueryRowContext(ctx,
		`SELECT id, name, text, page_count, uploaded_at FROM documents WHERE id = ?`, id).
		Scan(&doc.ID, &doc.Name, &doc.Text, &doc.PageCount, &doc.UploadedAt)
	if err != nil {
		return nil, fmt.Errorf("get archived document %s: %w", id, err)
	}
	return &doc, nil
}

// Delete removes a document from the archive. Deleting an unknown id is a
// no-op.
func (a *Archive) Delete(ctx context.Context, id string) error {
	if _, err := a.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete archived document %s: %w", id, err)
	}
	return nil
}

// List returns all archived documents including their text, oldest first,
// in a stable order suitable for reindexing.
func (a *Archive) List(ctx context.Context) ([]*Document, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT id, name, text, page_count, uploaded_at FROM documents ORDER BY uploaded_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list archived documents: %w", err)
	}
	defer rows.Close()
	var docs []*Document
	for rows.Next() {
		var doc Document
		if err := rows.Scan(&doc.ID, &doc.Name, &doc.Text, &doc.PageCount, &doc.UploadedAt); err != nil {
			return nil, fmt.Errorf("scan archived document: %w", err)
		}
		docs = append(docs, &doc)
	}
	return docs, rows.Err()
}

// Count returns the number of archived documents.
func (a *Archive) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := a.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count archived documents: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (a *Archive) Close() error {
	return a.db.Close()
}
