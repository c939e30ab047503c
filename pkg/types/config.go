// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// HTTPConfig holds shared HTTP settings used by stages that make network requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "kbsync/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent"`
}

// SourceConfig holds settings for the help-center content source.
type SourceConfig struct {
	HTTPConfig `yaml:",inline"`

	// Domain is the help-center hostname (e.g. "support.optisigns.com").
	Domain string `json:"domain" yaml:"domain"`

	// Email is the agent email used for API token authentication.
	// Fetching is anonymous when Email or APIToken is empty.
	Email string `json:"email,omitempty" yaml:"email,omitempty"`

	// APIToken is the help-center API token paired with Email.
	APIToken string `json:"api_token,omitempty" yaml:"api_token,omitempty"`

	// PageSize is the number of articles requested per page (default 100).
	PageSize int `json:"page_size" yaml:"page_size"`
}

// IndexConfig holds settings for the remote vector index.
type IndexConfig struct {
	HTTPConfig `yaml:",inline"`

	// APIKey authenticates against the index API. Empty disables the
	// remote index entirely; runs proceed in local-only mode.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// StoreName is the vector store display name used on lazy creation.
	StoreName string `json:"store_name" yaml:"store_name"`

	// StoreExpiryDays is the last-active expiry applied to a newly
	// created store (default 20).
	StoreExpiryDays int `json:"store_expiry_days" yaml:"store_expiry_days"`
}

// MirrorConfig holds settings for the local mirror and the sync ledger.
type MirrorConfig struct {
	// OutputDir is the directory holding mirrored Markdown articles.
	OutputDir string `json:"output_dir" yaml:"output_dir"`

	// StateFile is the path of the JSON ledger when the file backend is used.
	StateFile string `json:"state_file" yaml:"state_file"`

	// StateBucket selects the object-storage ledger backend when set;
	// the ledger is kept as a single object named by StateObject.
	StateBucket string `json:"state_bucket,omitempty" yaml:"state_bucket,omitempty"`

	// StateObject is the object name inside StateBucket (default "state.json").
	StateObject string `json:"state_object,omitempty" yaml:"state_object,omitempty"`
}

// SyncConfig groups all stage configurations for a sync run.
type SyncConfig struct {
	Source SourceConfig `json:"source" yaml:"source"`
	Index  IndexConfig  `json:"index" yaml:"index"`
	Mirror MirrorConfig `json:"mirror" yaml:"mirror"`
}
