// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package corpusindex maintains a local SQLite full-text index over the
// mirrored article corpus, so the mirror is searchable without touching
// the remote vector store.
package corpusindex

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/optibot/kbsync/internal/normalize"
)

const (
	indexDir = ".index"
	dbFile   = "corpus.db"
)

// Store manages the corpus index database under mirrorDir/.index/.
type Store struct {
	db        *sql.DB
	mirrorDir string
}

// Open opens or creates the corpus index for a mirror directory,
// creating the schema if it does not exist.
func Open(mirrorDir string) (*Store, error) {
	dbDir := filepath.Join(mirrorDir, indexDir)
	if err := os.MkdirAll(dbDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}

	dbPath := filepath.Join(dbDir, dbFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db, mirrorDir: mirrorDir}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS articles (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			title TEXT,
			path TEXT,
			content TEXT NOT NULL,
			file_mod_time TEXT
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}

	// FTS5 virtual table with triggers for sync.
	var ftsExists int
	if err := s.db.QueryRow(
		`SELECT count(*) FROM sqlite_master WHERE type='table' AND name='articles_fts'`,
	).Scan(&ftsExists); err != nil {
		return fmt.Errorf("checking FTS table: %w", err)
	}

	if ftsExists == 0 {
		ftsStatements := []string{
			`CREATE VIRTUAL TABLE articles_fts USING fts5(content, content=articles, content_rowid=rowid)`,
			`CREATE TRIGGER articles_ai AFTER INSERT ON articles BEGIN
				INSERT INTO articles_fts(rowid, content) VALUES (new.rowid, new.content);
			END`,
			`CREATE TRIGGER articles_ad AFTER DELETE ON articles BEGIN
				INSERT INTO articles_fts(articles_fts, rowid, content) VALUES('delete', old.rowid, old.content);
			END`,
			`CREATE TRIGGER articles_au AFTER UPDATE ON articles BEGIN
				INSERT INTO articles_fts(articles_fts, rowid, content) VALUES('delete', old.rowid, old.content);
				INSERT INTO articles_fts(rowid, content) VALUES (new.rowid, new.content);
			END`,
		}
		for _, stmt := range ftsStatements {
			if _, err := s.db.Exec(stmt); err != nil {
				return fmt.Errorf("creating FTS infrastructure: %w", err)
			}
		}
	}

	return nil
}

// Upsert inserts or replaces one article's index row.
func (s *Store) Upsert(ctx context.Context, id, title, path, content, modTime string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO articles (id, title, path, content, file_mod_time)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			title=excluded.title, path=excluded.path,
			content=excluded.content, file_mod_time=excluded.file_mod_time`,
		id, title, path, content, modTime,
	)
	if err != nil {
		return fmt.Errorf("indexing article %s: %w", id, err)
	}
	return nil
}

// Delete drops one article's index row; unknown ids are a no-op.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM articles WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting article %s from index: %w", id, err)
	}
	return nil
}

// SyncSummary holds counts from one index refresh.
type SyncSummary struct {
	Indexed int
	Updated int
	Skipped int
	Removed int
	Failed  int
}

// Total returns the number of files processed.
func (s SyncSummary) Total() int {
	return s.Indexed + s.Updated + s.Skipped + s.Failed
}

// Sync walks the mirror directory and reindexes Markdown files whose
// modification time changed since they were last indexed. Rows whose
// backing file disappeared are removed.
func (s *Store) Sync(ctx context.Context, w io.Writer) (SyncSummary, error) {
	entries, err := os.ReadDir(s.mirrorDir)
	if err != nil {
		return SyncSummary{}, fmt.Errorf("reading mirror directory %s: %w", s.mirrorDir, err)
	}

	var summary SyncSummary
	seen := map[string]bool{}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		id, ok := normalize.ArticleIDFromFileName(entry.Name())
		if !ok {
			continue
		}

		select {
		case <-ctx.Done():
			return summary, ctx.Err()
		default:
		}

		seen[id] = true
		path := filepath.Join(s.mirrorDir, entry.Name())

		info, err := entry.Info()
		if err != nil {
			fmt.Fprintf(w, "failed  %s: %v\n", id, err)
			summary.Failed++
			continue
		}
		modTime := info.ModTime().UTC().Format(time.RFC3339Nano)

		var storedModTime string
		err = s.db.QueryRowContext(ctx,
			`SELECT file_mod_time FROM articles WHERE id = ?`, id,
		).Scan(&storedModTime)

		if err == nil && storedModTime == modTime {
			summary.Skipped++
			continue
		}
		isUpdate := err == nil

		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(w, "failed  %s: %v\n", id, err)
			summary.Failed++
			continue
		}
		content := string(data)

		if err := s.Upsert(ctx, id, titleOf(content), path, content, modTime); err != nil {
			fmt.Fprintf(w, "failed  %s: %v\n", id, err)
			summary.Failed++
			continue
		}

		if isUpdate {
			summary.Updated++
		} else {
			summary.Indexed++
		}
	}

	removed, err := s.removeVanished(ctx, seen)
	if err != nil {
		return summary, err
	}
	summary.Removed = removed

	return summary, nil
}

// removeVanished drops index rows for articles no longer present in the
// mirror directory.
func (s *Store) removeVanished(ctx context.Context, seen map[string]bool) (int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM articles`)
	if err != nil {
		return 0, fmt.Errorf("listing indexed articles: %w", err)
	}
	defer rows.Close()

	var stale []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return 0, fmt.Errorf("scanning indexed article: %w", err)
		}
		if !seen[id] {
			stale = append(stale, id)
		}
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("listing indexed articles: %w", err)
	}

	for _, id := range stale {
		if err := s.Delete(ctx, id); err != nil {
			return 0, err
		}
	}
	return len(stale), nil
}

// titleOf extracts the title from a mirrored document's leading ATX heading.
func titleOf(content string) string {
	line, _, _ := strings.Cut(content, "\n")
	if t, ok := strings.CutPrefix(line, "# "); ok {
		return t
	}
	return ""
}

// Result is one search hit with a highlighted snippet.
type Result struct {
	ArticleID string `json:"article_id"`
	Title     string `json:"title"`
	Path      string `json:"path"`
	Snippet   string `json:"snippet"`
}

// Search runs an FTS5 query over the corpus and returns hits ranked by
// relevance.
func (s *Store) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT a.id, a.title, a.path,
		        snippet(articles_fts, 0, '[', ']', '…', 12)
		 FROM articles_fts
		 JOIN articles a ON a.rowid = articles_fts.rowid
		 WHERE articles_fts MATCH ?
		 ORDER BY bm25(articles_fts)
		 LIMIT ?`,
		ftsQuery(query), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("searching corpus: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ArticleID, &r.Title, &r.Path, &r.Snippet); err != nil {
			return nil, fmt.Errorf("scanning search result: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("searching corpus: %w", err)
	}
	return results, nil
}

// ftsQuery quotes each term so user input cannot trip FTS5 operator
// syntax.
func ftsQuery(query string) string {
	terms := strings.Fields(query)
	for i, t := range terms {
		terms[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"`
	}
	return strings.Join(terms, " ")
}
