// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package normalize converts raw help-center articles into mirrored
// Markdown documents with stable content fingerprints.
package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/optibot/kbsync/pkg/types"
)

// Document is the mirrored form of one article. It is derived data and
// never persisted; only its fingerprint enters the ledger.
type Document struct {
	// ArticleID is the source article identifier.
	ArticleID string

	// Title is the resolved title ("Untitled" when the source omits it).
	Title string

	// Path is the deterministic target path under the mirror directory.
	Path string

	// Content is the full rendered text: title heading, URL line, body.
	Content string

	// Fingerprint is the SHA-256 hex digest of Content. It changes if
	// and only if any byte of Content changes.
	Fingerprint string
}

// Normalize renders an article into its mirrored document. The second
// return value is false when the article carries no identifier or no
// body; such articles produce no document and the caller must leave all
// state for them untouched.
//
// Normalize is a pure function of its inputs.
func Normalize(a types.Article, outputDir string) (Document, bool) {
	if a.ID == "" || a.Body == "" {
		return Document{}, false
	}

	title := a.Title
	if title == "" {
		title = "Untitled"
	}

	body, err := HTMLToMarkdown(a.Body)
	if err != nil {
		// The parser accepts arbitrary input; a failure here means the
		// body is unusable as markup, so mirror it verbatim.
		body = strings.TrimSpace(a.Body)
	}

	content := fmt.Sprintf("# %s\n\nArticle URL: %s\n\n%s", title, a.HTMLURL, body)

	sum := sha256.Sum256([]byte(content))

	return Document{
		ArticleID:   a.ID,
		Title:       title,
		Path:        filepath.Join(outputDir, FileName(a.ID, title)),
		Content:     content,
		Fingerprint: hex.EncodeToString(sum[:]),
	}, true
}

// FileName builds the mirror file name for an article: the identifier,
// a dash, and the sanitized title. The identifier prefix keeps names
// unique even when sanitization collides two titles.
func FileName(id, title string) string {
	return id + "-" + sanitizeTitle(title) + ".md"
}

// ArticleIDFromFileName recovers the identifier prefix from a mirror
// file name. ok is false for names that don't follow the mirror scheme.
func ArticleIDFromFileName(name string) (string, bool) {
	base := strings.TrimSuffix(name, ".md")
	if base == name {
		return "", false
	}
	id, _, found := strings.Cut(base, "-")
	if !found || id == "" {
		return "", false
	}
	return id, true
}

// sanitizeTitle maps every non-alphanumeric rune to a dash and trims
// leading and trailing dashes.
func sanitizeTitle(title string) string {
	mapped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return '-'
	}, title)
	return strings.Trim(mapped, "-")
}
