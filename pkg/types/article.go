// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// Article holds one help-center article as returned by the content API.
// The source client fills LastModified from the response Last-Modified
// header when present, otherwise from the article's own updated_at field.
type Article struct {
	// ID is the article identifier, normalized to its decimal string form.
	// All ledger keys and file names derive from it.
	ID string `json:"id" yaml:"id"`

	// Title is the article title ("Untitled" when the source omits it).
	Title string `json:"title" yaml:"title"`

	// Body is the raw HTML body; may be empty for draft or placeholder
	// articles, which produce no mirrored document.
	Body string `json:"body" yaml:"body"`

	// HTMLURL is the canonical public URL of the article.
	HTMLURL string `json:"html_url" yaml:"html_url"`

	// UpdatedAt is the article-level modification timestamp from the API.
	UpdatedAt string `json:"updated_at" yaml:"updated_at"`

	// LastModified is the upstream modification marker used as the
	// fast-path change signal during reconciliation. May be empty.
	LastModified string `json:"last_modified,omitempty" yaml:"last_modified,omitempty"`
}
