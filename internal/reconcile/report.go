// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package reconcile

import (
	"fmt"
	"io"
	"os"

	"go.yaml.in/yaml/v3"
)

// Report aggregates the outcome of one reconciliation run.
type Report struct {
	// Added counts articles written and tracked for the first time.
	Added int `yaml:"added" json:"added"`

	// Updated counts tracked articles rewritten after a content change.
	Updated int `yaml:"updated" json:"updated"`

	// Skipped counts articles whose fingerprint and marker were current.
	Skipped int `yaml:"skipped" json:"skipped"`

	// Deleted counts identifiers dropped because the source no longer
	// lists them.
	Deleted int `yaml:"deleted" json:"deleted"`

	// Failed counts articles abandoned mid-processing (write or upload
	// failure); their ledger entries were not advanced.
	Failed int `yaml:"failed" json:"failed"`

	// LocalOnly reports that the run had no usable remote store.
	LocalOnly bool `yaml:"local_only" json:"local_only"`

	// RunFailed is set by any failure during the run, including ones
	// not tied to a single article.
	RunFailed bool `yaml:"run_failed" json:"run_failed"`
}

// Total returns the number of articles accounted for.
func (r Report) Total() int {
	return r.Added + r.Updated + r.Skipped + r.Deleted + r.Failed
}

// HasFailures reports whether anything went wrong during the run.
func (r Report) HasFailures() bool {
	return r.RunFailed
}

func (r *Report) fail() {
	r.RunFailed = true
}

// Summarize prints the teacher-format one-line run summary.
func (r Report) Summarize(w io.Writer) {
	fmt.Fprintf(w, "\nSync summary: %d added, %d updated, %d skipped, %d deleted, %d failed (total: %d)\n",
		r.Added, r.Updated, r.Skipped, r.Deleted, r.Failed, r.Total())
}

// WriteYAML writes the report as a YAML artifact for schedulers and
// dashboards to pick up.
func (r Report) WriteYAML(path string) error {
	data, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}
