// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package ledger persists per-article sync state: content fingerprint,
// remote file id, upstream modification marker, and last update time,
// plus the single tracked vector store id.
//
// The on-disk format is one JSON document:
//
//	{"articles": {"<id>": {"hash": ..., "openai_file_id": ...,
//	 "last_modified": ..., "updated_at": ...}}, "vector_store_id": ...}
//
// and round-trips losslessly, including nulls.
package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"
)

// Entry is the tracked state for one article identifier.
type Entry struct {
	// Hash is the content fingerprint of the last successfully
	// processed revision.
	Hash string `json:"hash"`

	// OpenAIFileID is the remote file id; nil means local-only
	// (the article was mirrored but never indexed remotely).
	OpenAIFileID *string `json:"openai_file_id"`

	// LastModified is the upstream modification marker recorded at the
	// last successful sync; nil when the source provided none.
	LastModified *string `json:"last_modified"`

	// UpdatedAt is when this entry was last written, RFC 3339.
	UpdatedAt string `json:"updated_at"`
}

// state is the persisted aggregate.
type state struct {
	Articles      map[string]Entry `json:"articles"`
	VectorStoreID *string          `json:"vector_store_id"`
}

// Backend reads and writes the ledger as a single opaque blob.
type Backend interface {
	// Get returns the stored blob; ok is false when none exists yet.
	Get(ctx context.Context) (data []byte, ok bool, err error)

	// Put durably replaces the stored blob. Partial writes must never
	// be observable by a subsequent Get.
	Put(ctx context.Context, data []byte) error
}

// Ledger is the in-memory ledger for one run. A single reconciler owns
// it for the run's duration; it is not safe for concurrent use.
type Ledger struct {
	backend Backend
	state   state

	// now is stubbed in tests for stable updated_at stamps.
	now func() time.Time
}

// Load reads the ledger from its backend. A missing resource or
// malformed content yields a fresh empty ledger with a warning on
// stderr; load never fails. Only Save reports backend errors.
func Load(ctx context.Context, b Backend) *Ledger {
	l := &Ledger{
		backend: b,
		state:   state{Articles: map[string]Entry{}},
		now:     time.Now,
	}

	data, ok, err := b.Get(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: ledger unreadable, starting fresh: %v\n", err)
		return l
	}
	if !ok || len(data) == 0 {
		return l
	}

	var s state
	if err := json.Unmarshal(data, &s); err != nil {
		fmt.Fprintf(os.Stderr, "warning: ledger is corrupted, starting fresh: %v\n", err)
		return l
	}
	if s.Articles == nil {
		s.Articles = map[string]Entry{}
	}
	l.state = s
	return l
}

// Get returns the entry for id. ok is false for untracked identifiers.
func (l *Ledger) Get(id string) (Entry, bool) {
	e, ok := l.state.Articles[id]
	return e, ok
}

// Upsert replaces the entry for id wholesale and stamps updated_at with
// the current time. Empty fileID and marker are stored as nulls.
func (l *Ledger) Upsert(id, hash, fileID, marker string) {
	e := Entry{
		Hash:      hash,
		UpdatedAt: l.now().Format(time.RFC3339),
	}
	if fileID != "" {
		e.OpenAIFileID = &fileID
	}
	if marker != "" {
		e.LastModified = &marker
	}
	l.state.Articles[id] = e
}

// Remove deletes the entry for id; removing an unknown id is a no-op.
func (l *Ledger) Remove(id string) {
	delete(l.state.Articles, id)
}

// IDs returns all tracked identifiers in sorted order.
func (l *Ledger) IDs() []string {
	ids := make([]string, 0, len(l.state.Articles))
	for id := range l.state.Articles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of tracked identifiers.
func (l *Ledger) Len() int {
	return len(l.state.Articles)
}

// StoreID returns the tracked vector store id, or "" when none is set.
func (l *Ledger) StoreID() string {
	if l.state.VectorStoreID == nil {
		return ""
	}
	return *l.state.VectorStoreID
}

// SetStoreID records the vector store id; "" clears it back to null.
func (l *Ledger) SetStoreID(id string) {
	if id == "" {
		l.state.VectorStoreID = nil
		return
	}
	l.state.VectorStoreID = &id
}

// Save writes the full in-memory state through the backend. Either the
// whole state is durably written or an error is returned; a failed Save
// fails the run.
func (l *Ledger) Save(ctx context.Context) error {
	data, err := json.MarshalIndent(l.state, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding ledger: %w", err)
	}
	if err := l.backend.Put(ctx, data); err != nil {
		return fmt.Errorf("persisting ledger: %w", err)
	}
	return nil
}
