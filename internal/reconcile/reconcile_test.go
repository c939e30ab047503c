// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package reconcile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.yaml.in/yaml/v3"

	"github.com/optibot/kbsync/internal/ledger"
	"github.com/optibot/kbsync/pkg/types"
)

// fakeIndex records remote index traffic and can be primed to fail.
type fakeIndex struct {
	ensureErr    error
	linkErr      error
	unlinkErr    error
	failUploadID string

	uploads  []string
	links    []string
	unlinked []string
	deleted  []string
	n        int
}

func (f *fakeIndex) EnsureStore(_ context.Context, _, trackedID string) (string, error) {
	if f.ensureErr != nil {
		return "", f.ensureErr
	}
	if trackedID != "" {
		return trackedID, nil
	}
	return "vs-test", nil
}

func (f *fakeIndex) UploadFile(_ context.Context, path string) (string, error) {
	base := filepath.Base(path)
	if f.failUploadID != "" && strings.HasPrefix(base, f.failUploadID+"-") {
		return "", errors.New("upload rejected")
	}
	f.n++
	f.uploads = append(f.uploads, base)
	return fmt.Sprintf("file-%d", f.n), nil
}

func (f *fakeIndex) LinkFile(_ context.Context, _, fileID string) error {
	if f.linkErr != nil {
		return f.linkErr
	}
	f.links = append(f.links, fileID)
	return nil
}

func (f *fakeIndex) UnlinkFile(_ context.Context, _, fileID string) error {
	if f.unlinkErr != nil {
		return f.unlinkErr
	}
	f.unlinked = append(f.unlinked, fileID)
	return nil
}

func (f *fakeIndex) DeleteFile(_ context.Context, fileID string) error {
	f.deleted = append(f.deleted, fileID)
	return nil
}

type fakeCorpus struct {
	upserts []string
	deletes []string
}

func (f *fakeCorpus) Upsert(_ context.Context, id, _, _, _, _ string) error {
	f.upserts = append(f.upserts, id)
	return nil
}

func (f *fakeCorpus) Delete(_ context.Context, id string) error {
	f.deletes = append(f.deletes, id)
	return nil
}

func newTestLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state.json")
	return ledger.Load(context.Background(), &ledger.FileBackend{Path: path})
}

func article(id, title, body, marker string) types.Article {
	return types.Article{
		ID:           id,
		Title:        title,
		Body:         body,
		HTMLURL:      "https://help.example.com/articles/" + id,
		LastModified: marker,
	}
}

func TestRun_AddsNewArticles(t *testing.T) {
	idx := &fakeIndex{}
	led := newTestLedger(t)
	r := &Reconciler{Ledger: led, Index: idx, OutputDir: t.TempDir(), StoreName: "KB", Out: io.Discard}

	rep, err := r.Run(context.Background(), []types.Article{
		article("1", "Reset Guide", "<p>Hold the button.</p>", "t1"),
		article("2", "Billing", "<p>Invoices monthly.</p>", "t1"),
	})
	require.NoError(t, err)

	assert.Equal(t, 2, rep.Added)
	assert.Equal(t, 2, rep.Total())
	assert.False(t, rep.HasFailures())
	assert.False(t, rep.LocalOnly)

	assert.Equal(t, []string{"1-Reset-Guide.md", "2-Billing.md"}, idx.uploads)
	assert.Len(t, idx.links, 2)
	assert.Equal(t, "vs-test", led.StoreID())

	entry, ok := led.Get("1")
	require.True(t, ok)
	require.NotNil(t, entry.OpenAIFileID)
	assert.Equal(t, "file-1", *entry.OpenAIFileID)
	require.NotNil(t, entry.LastModified)
	assert.Equal(t, "t1", *entry.LastModified)

	data, err := os.ReadFile(filepath.Join(r.OutputDir, "1-Reset-Guide.md"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "# Reset Guide")
	assert.Contains(t, string(data), "Hold the button.")
}

func TestRun_SecondRunSkipsUnchanged(t *testing.T) {
	idx := &fakeIndex{}
	r := &Reconciler{Ledger: newTestLedger(t), Index: idx, OutputDir: t.TempDir(), StoreName: "KB"}

	articles := []types.Article{article("1", "A", "<p>alpha</p>", "t1")}
	_, err := r.Run(context.Background(), articles)
	require.NoError(t, err)

	rep, err := r.Run(context.Background(), articles)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Skipped)
	assert.Equal(t, 0, rep.Added)
	assert.Len(t, idx.uploads, 1, "unchanged article must not be re-uploaded")
}

func TestRun_MarkerFastPathSkipsWithoutMirrorFile(t *testing.T) {
	idx := &fakeIndex{}
	r := &Reconciler{Ledger: newTestLedger(t), Index: idx, OutputDir: t.TempDir()}

	articles := []types.Article{article("1", "A", "<p>alpha</p>", "t1")}
	_, err := r.Run(context.Background(), articles)
	require.NoError(t, err)

	// A matching marker and fingerprint skips even when the mirror file
	// is gone; only a missing marker forces the existence check.
	require.NoError(t, os.Remove(filepath.Join(r.OutputDir, "1-A.md")))
	rep, err := r.Run(context.Background(), articles)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Skipped)
}

func TestRun_RewritesMissingMirrorFile(t *testing.T) {
	idx := &fakeIndex{}
	r := &Reconciler{Ledger: newTestLedger(t), Index: idx, OutputDir: t.TempDir()}

	articles := []types.Article{article("1", "A", "<p>alpha</p>", "")}
	_, err := r.Run(context.Background(), articles)
	require.NoError(t, err)

	path := filepath.Join(r.OutputDir, "1-A.md")
	require.NoError(t, os.Remove(path))

	rep, err := r.Run(context.Background(), articles)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Updated)
	assert.FileExists(t, path)
}

func TestRun_UpdatesChangedArticle(t *testing.T) {
	idx := &fakeIndex{}
	led := newTestLedger(t)
	r := &Reconciler{Ledger: led, Index: idx, OutputDir: t.TempDir()}

	_, err := r.Run(context.Background(), []types.Article{article("1", "A", "<p>old</p>", "t1")})
	require.NoError(t, err)

	rep, err := r.Run(context.Background(), []types.Article{article("1", "A", "<p>new</p>", "t2")})
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Updated)

	entry, _ := led.Get("1")
	require.NotNil(t, entry.OpenAIFileID)
	assert.Equal(t, "file-2", *entry.OpenAIFileID)

	data, err := os.ReadFile(filepath.Join(r.OutputDir, "1-A.md"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "new")
}

func TestRun_RetiresUnlistedArticles(t *testing.T) {
	idx := &fakeIndex{}
	corpus := &fakeCorpus{}
	led := newTestLedger(t)
	r := &Reconciler{Ledger: led, Index: idx, Corpus: corpus, OutputDir: t.TempDir()}

	_, err := r.Run(context.Background(), []types.Article{article("1", "A", "<p>alpha</p>", "t1")})
	require.NoError(t, err)

	rep, err := r.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Deleted)
	assert.False(t, rep.HasFailures())

	assert.Equal(t, []string{"file-1"}, idx.unlinked, "exactly one unlink")
	assert.Equal(t, []string{"file-1"}, idx.deleted, "exactly one remote delete")
	assert.Equal(t, []string{"1"}, corpus.deletes)
	assert.Equal(t, 0, led.Len())
	assert.NoFileExists(t, filepath.Join(r.OutputDir, "1-A.md"))
}

func TestRun_RemoteDeleteFailureStillRetiresLocally(t *testing.T) {
	idx := &fakeIndex{}
	led := newTestLedger(t)
	r := &Reconciler{Ledger: led, Index: idx, OutputDir: t.TempDir()}

	_, err := r.Run(context.Background(), []types.Article{article("1", "A", "<p>alpha</p>", "t1")})
	require.NoError(t, err)

	idx.unlinkErr = errors.New("boom")
	rep, err := r.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Deleted)
	assert.True(t, rep.HasFailures())
	assert.Equal(t, 0, led.Len(), "ledger entry is dropped even when the remote cleanup fails")
}

func TestRun_EmptyBodyArticleLeftUntouched(t *testing.T) {
	idx := &fakeIndex{}
	led := newTestLedger(t)
	r := &Reconciler{Ledger: led, Index: idx, OutputDir: t.TempDir()}

	_, err := r.Run(context.Background(), []types.Article{article("1", "A", "<p>alpha</p>", "t1")})
	require.NoError(t, err)
	before, _ := led.Get("1")

	// The article is still listed by the source, just with no body: it
	// is neither retired nor reprocessed.
	rep, err := r.Run(context.Background(), []types.Article{article("1", "A", "", "t2")})
	require.NoError(t, err)
	assert.Equal(t, 0, rep.Deleted)
	assert.Equal(t, 0, rep.Failed)

	after, ok := led.Get("1")
	require.True(t, ok)
	assert.Equal(t, before, after)
}

func TestRun_UploadFailureIsolatedPerArticle(t *testing.T) {
	idx := &fakeIndex{failUploadID: "1"}
	led := newTestLedger(t)
	r := &Reconciler{Ledger: led, Index: idx, OutputDir: t.TempDir()}

	articles := []types.Article{
		article("1", "A", "<p>alpha</p>", "t1"),
		article("2", "B", "<p>beta</p>", "t1"),
	}
	rep, err := r.Run(context.Background(), articles)
	require.NoError(t, err)

	assert.Equal(t, 1, rep.Added)
	assert.Equal(t, 1, rep.Failed)
	assert.True(t, rep.HasFailures())

	_, ok := led.Get("1")
	assert.False(t, ok, "failed article must not be recorded")
	_, ok = led.Get("2")
	assert.True(t, ok)

	// The next run retries the failed article from scratch.
	idx.failUploadID = ""
	rep, err = r.Run(context.Background(), articles)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Added)
	assert.Equal(t, 1, rep.Skipped)
	assert.False(t, rep.HasFailures())
}

func TestRun_LocalOnlyWithoutIndex(t *testing.T) {
	led := newTestLedger(t)
	r := &Reconciler{Ledger: led, OutputDir: t.TempDir()}

	rep, err := r.Run(context.Background(), []types.Article{article("1", "A", "<p>alpha</p>", "t1")})
	require.NoError(t, err)
	assert.True(t, rep.LocalOnly)
	assert.Equal(t, 1, rep.Added)
	assert.False(t, rep.HasFailures())

	entry, ok := led.Get("1")
	require.True(t, ok)
	assert.Nil(t, entry.OpenAIFileID)
	assert.Equal(t, "", led.StoreID())
}

func TestRun_StoreBootstrapFailureDowngradesToLocalOnly(t *testing.T) {
	idx := &fakeIndex{ensureErr: errors.New("quota")}
	r := &Reconciler{Ledger: newTestLedger(t), Index: idx, OutputDir: t.TempDir()}

	rep, err := r.Run(context.Background(), []types.Article{article("1", "A", "<p>alpha</p>", "t1")})
	require.NoError(t, err)
	assert.True(t, rep.LocalOnly)
	assert.True(t, rep.HasFailures())
	assert.Equal(t, 1, rep.Added)
	assert.FileExists(t, filepath.Join(r.OutputDir, "1-A.md"))
	assert.Empty(t, idx.uploads)
}

func TestRun_LocalCorpusFollowsMirror(t *testing.T) {
	corpus := &fakeCorpus{}
	r := &Reconciler{Ledger: newTestLedger(t), Corpus: corpus, OutputDir: t.TempDir()}

	_, err := r.Run(context.Background(), []types.Article{article("1", "A", "<p>alpha</p>", "t1")})
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, corpus.upserts)
}

func TestReport_WriteYAML(t *testing.T) {
	rep := Report{Added: 2, Skipped: 5, Failed: 1, RunFailed: true}
	path := filepath.Join(t.TempDir(), "report.yaml")
	require.NoError(t, rep.WriteYAML(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var got Report
	require.NoError(t, yaml.Unmarshal(data, &got))
	assert.Equal(t, rep, got)
}
