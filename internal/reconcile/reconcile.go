// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package reconcile drives one sync run: it diffs the fetched article
// set against the ledger, mirrors new and changed articles to disk,
// pushes them to the remote index, and retires articles the source no
// longer lists. Failures are isolated per article; the ledger is saved
// once at the end of the run.
package reconcile

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/optibot/kbsync/internal/ledger"
	"github.com/optibot/kbsync/internal/normalize"
	"github.com/optibot/kbsync/pkg/types"
)

// IndexClient is the remote index surface the reconciler needs. It is
// satisfied by vectorstore.Client.
type IndexClient interface {
	EnsureStore(ctx context.Context, name, trackedID string) (string, error)
	UploadFile(ctx context.Context, path string) (string, error)
	LinkFile(ctx context.Context, storeID, fileID string) error
	UnlinkFile(ctx context.Context, storeID, fileID string) error
	DeleteFile(ctx context.Context, fileID string) error
}

// CorpusIndexer keeps the local search index in step with the mirror.
// It is satisfied by corpusindex.Store.
type CorpusIndexer interface {
	Upsert(ctx context.Context, id, title, path, content, modTime string) error
	Delete(ctx context.Context, id string) error
}

// Reconciler holds the collaborators for one run.
type Reconciler struct {
	Ledger *ledger.Ledger

	// Index is the remote index; nil runs the mirror local-only.
	Index IndexClient

	// Corpus is the local search index; nil disables local indexing.
	Corpus CorpusIndexer

	// OutputDir is the mirror directory articles are written into.
	OutputDir string

	// StoreName names the vector store when a fresh one is created.
	StoreName string

	// Out receives per-article status lines; nil discards them.
	Out io.Writer
}

// Run reconciles the fetched article set against the ledger. The
// returned error is non-nil only when the ledger could not be saved;
// every other failure is recorded in the report and the run continues.
// Entries for failed articles are left unchanged so the next run
// retries them.
func (r *Reconciler) Run(ctx context.Context, articles []types.Article) (Report, error) {
	var rep Report

	storeID := r.ensureStore(ctx, &rep)
	rep.LocalOnly = storeID == ""

	r.retireStale(ctx, articles, storeID, &rep)
	r.upsertAll(ctx, articles, storeID, &rep)

	if err := r.Ledger.Save(ctx); err != nil {
		rep.fail()
		return rep, err
	}
	return rep, nil
}

// ensureStore resolves the vector store for this run, or "" for
// local-only. A bootstrap failure downgrades the run instead of
// aborting it: the mirror still converges, only uploads are skipped.
func (r *Reconciler) ensureStore(ctx context.Context, rep *Report) string {
	if r.Index == nil {
		fmt.Fprintf(r.out(), "remote index disabled, mirroring local-only\n")
		return ""
	}

	id, err := r.Index.EnsureStore(ctx, r.StoreName, r.Ledger.StoreID())
	if err != nil {
		fmt.Fprintf(r.out(), "warning: vector store unavailable, mirroring local-only: %v\n", err)
		rep.fail()
		return ""
	}
	r.Ledger.SetStoreID(id)
	return id
}

// retireStale removes every tracked article absent from the fetched
// set: remote file first, then local mirror and index, then the ledger
// entry. Remote errors are counted but never block the local cleanup.
func (r *Reconciler) retireStale(ctx context.Context, articles []types.Article, storeID string, rep *Report) {
	listed := make(map[string]bool, len(articles))
	for _, a := range articles {
		listed[a.ID] = true
	}

	for _, id := range r.Ledger.IDs() {
		if listed[id] {
			continue
		}

		entry, _ := r.Ledger.Get(id)
		if storeID != "" && entry.OpenAIFileID != nil {
			if err := r.Index.UnlinkFile(ctx, storeID, *entry.OpenAIFileID); err != nil {
				fmt.Fprintf(r.out(), "warning: unlinking remote file for %s: %v\n", id, err)
				rep.fail()
			}
			if err := r.Index.DeleteFile(ctx, *entry.OpenAIFileID); err != nil {
				fmt.Fprintf(r.out(), "warning: deleting remote file for %s: %v\n", id, err)
				rep.fail()
			}
		}

		r.removeLocal(ctx, id)
		r.Ledger.Remove(id)
		rep.Deleted++
		fmt.Fprintf(r.out(), "deleted %s\n", id)
	}
}

// removeLocal best-effort deletes the mirrored file(s) and index row
// for a retired identifier. The mirror name embeds the title, which may
// have changed since the file was written, so matching is by id prefix.
func (r *Reconciler) removeLocal(ctx context.Context, id string) {
	matches, err := filepath.Glob(filepath.Join(r.OutputDir, id+"-*.md"))
	if err == nil {
		for _, path := range matches {
			if err := os.Remove(path); err != nil {
				fmt.Fprintf(r.out(), "warning: removing %s: %v\n", path, err)
			}
		}
	}
	if r.Corpus != nil {
		if err := r.Corpus.Delete(ctx, id); err != nil {
			fmt.Fprintf(r.out(), "warning: unindexing %s: %v\n", id, err)
		}
	}
}

// upsertAll mirrors every fetched article that is new or changed. The
// order of operations per article is: write the mirror file, refresh
// the local index, upload and link remotely, then record the entry. A
// failure before the ledger write leaves the old entry intact.
func (r *Reconciler) upsertAll(ctx context.Context, articles []types.Article, storeID string, rep *Report) {
	for _, a := range articles {
		doc, ok := normalize.Normalize(a, r.OutputDir)
		if !ok {
			fmt.Fprintf(r.out(), "skipped %s (no content)\n", a.ID)
			continue
		}

		entry, tracked := r.Ledger.Get(doc.ArticleID)
		if tracked && r.upToDate(entry, doc, a.LastModified) {
			rep.Skipped++
			fmt.Fprintf(r.out(), "skipped %s (unchanged)\n", doc.ArticleID)
			continue
		}

		if err := r.writeMirror(doc); err != nil {
			fmt.Fprintf(r.out(), "failed  %s: %v\n", doc.ArticleID, err)
			rep.Failed++
			rep.fail()
			continue
		}
		r.indexLocal(ctx, doc)

		fileID := ""
		if storeID != "" {
			var err error
			fileID, err = r.Index.UploadFile(ctx, doc.Path)
			if err != nil {
				fmt.Fprintf(r.out(), "failed  %s: %v\n", doc.ArticleID, err)
				rep.Failed++
				rep.fail()
				continue
			}
			if err := r.Index.LinkFile(ctx, storeID, fileID); err != nil {
				// The file exists remotely, so the entry is still
				// recorded; the run is marked failed for visibility.
				fmt.Fprintf(r.out(), "warning: linking %s: %v\n", doc.ArticleID, err)
				rep.fail()
			}
		}

		r.Ledger.Upsert(doc.ArticleID, doc.Fingerprint, fileID, a.LastModified)
		if tracked {
			rep.Updated++
			fmt.Fprintf(r.out(), "updated %s -> %s\n", doc.ArticleID, doc.Path)
		} else {
			rep.Added++
			fmt.Fprintf(r.out(), "added   %s -> %s\n", doc.ArticleID, doc.Path)
		}
	}
}

// upToDate reports whether a tracked article needs no work this run.
// The cheap check compares the upstream modification marker alongside
// the fingerprint; failing that, an unchanged fingerprint still counts
// as current when the mirror file actually exists on disk.
func (r *Reconciler) upToDate(e ledger.Entry, doc normalize.Document, marker string) bool {
	if e.Hash == doc.Fingerprint {
		if e.LastModified != nil && marker != "" && *e.LastModified == marker {
			return true
		}
		if _, err := os.Stat(doc.Path); err == nil {
			return true
		}
	}
	return false
}

func (r *Reconciler) writeMirror(doc normalize.Document) error {
	if err := os.MkdirAll(r.OutputDir, 0o755); err != nil {
		return fmt.Errorf("creating mirror directory: %w", err)
	}
	if err := os.WriteFile(doc.Path, []byte(doc.Content), 0o644); err != nil {
		return fmt.Errorf("writing mirror file: %w", err)
	}
	return nil
}

// indexLocal refreshes the local search index for a freshly written
// mirror file. Index failures degrade search, not the sync, so they
// only warn.
func (r *Reconciler) indexLocal(ctx context.Context, doc normalize.Document) {
	if r.Corpus == nil {
		return
	}
	modTime := ""
	if info, err := os.Stat(doc.Path); err == nil {
		modTime = info.ModTime().UTC().Format(time.RFC3339Nano)
	}
	if err := r.Corpus.Upsert(ctx, doc.ArticleID, doc.Title, doc.Path, doc.Content, modTime); err != nil {
		fmt.Fprintf(r.out(), "warning: indexing %s: %v\n", doc.ArticleID, err)
	}
}

func (r *Reconciler) out() io.Writer {
	if r.Out != nil {
		return r.Out
	}
	return io.Discard
}
