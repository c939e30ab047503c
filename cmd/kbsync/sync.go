// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/optibot/kbsync/internal/corpusindex"
	"github.com/optibot/kbsync/internal/httputil"
	"github.com/optibot/kbsync/internal/ledger"
	"github.com/optibot/kbsync/internal/reconcile"
	"github.com/optibot/kbsync/internal/source"
	"github.com/optibot/kbsync/internal/vectorstore"
	"github.com/optibot/kbsync/pkg/types"
)

const (
	defaultTimeout   = 60 * time.Second
	defaultUserAgent = "kbsync/0.1"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Fetch all articles and reconcile the mirror, index, and ledger",
	Long: `Sync fetches the full article listing from the help center, mirrors new
and changed articles to the output directory as Markdown, pushes them to
the vector store, and retires articles the source no longer lists. The
ledger records per-article state so unchanged articles are skipped.

A fetch failure aborts the run before anything is deleted. Individual
article failures are reported, counted, and retried on the next run.`,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().String("domain", "", "help-center hostname (e.g. support.example.com)")
	syncCmd.Flags().Int("page-size", 100, "articles requested per listing page")
	syncCmd.Flags().Duration("timeout", defaultTimeout, "HTTP request timeout")
	syncCmd.Flags().String("output-dir", "data/articles", "directory for mirrored Markdown articles")
	syncCmd.Flags().String("state-file", "data/state.json", "path of the JSON ledger")
	syncCmd.Flags().String("state-bucket", "", "store the ledger in this Cloud Storage bucket instead of a file")
	syncCmd.Flags().String("state-object", "state.json", "ledger object name inside --state-bucket")
	syncCmd.Flags().String("store-name", "Help Center KB", "vector store display name on creation")
	syncCmd.Flags().Bool("local-only", false, "mirror locally without touching the vector store")
	syncCmd.Flags().Bool("allow-empty", false, "proceed when the source lists zero articles but the ledger is non-empty")
	syncCmd.Flags().String("report-file", "", "write a YAML run report to this path")

	rootCmd.AddCommand(syncCmd)
}

func syncConfigFromFlags(cmd *cobra.Command) types.SyncConfig {
	timeout := settingDuration(cmd, "timeout", "source.timeout")

	return types.SyncConfig{
		Source: types.SourceConfig{
			HTTPConfig: types.HTTPConfig{
				Timeout:   timeout,
				UserAgent: defaultUserAgent,
			},
			Domain:   settingString(cmd, "domain", "source.domain"),
			Email:    secretDefault("zendesk-email", ""),
			APIToken: secretDefault("zendesk-api-token", ""),
			PageSize: settingInt(cmd, "page-size", "source.page_size"),
		},
		Index: types.IndexConfig{
			HTTPConfig: types.HTTPConfig{
				Timeout:   timeout,
				UserAgent: defaultUserAgent,
			},
			APIKey:          secretDefault("openai-api-key", ""),
			StoreName:       settingString(cmd, "store-name", "index.store_name"),
			StoreExpiryDays: viper.GetInt("index.store_expiry_days"),
		},
		Mirror: types.MirrorConfig{
			OutputDir:   settingString(cmd, "output-dir", "mirror.output_dir"),
			StateFile:   settingString(cmd, "state-file", "mirror.state_file"),
			StateBucket: settingString(cmd, "state-bucket", "mirror.state_bucket"),
			StateObject: settingString(cmd, "state-object", "mirror.state_object"),
		},
	}
}

// ledgerBackend selects the ledger backend: Cloud Storage when a bucket
// is configured, the local file otherwise.
func ledgerBackend(ctx context.Context, m types.MirrorConfig) (ledger.Backend, error) {
	if m.StateBucket != "" {
		return ledger.NewGCSBackend(ctx, m.StateBucket, m.StateObject)
	}
	return &ledger.FileBackend{Path: m.StateFile}, nil
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg := syncConfigFromFlags(cmd)
	if cfg.Source.Domain == "" {
		return fmt.Errorf("help-center domain required: pass --domain or set source.domain in the config")
	}
	ctx := cmd.Context()

	backend, err := ledgerBackend(ctx, cfg.Mirror)
	if err != nil {
		return err
	}
	led := ledger.Load(ctx, backend)

	src := &source.Client{
		HTTPClient: httputil.NewClient(cfg.Source.Timeout),
		Config:     cfg.Source,
	}

	fmt.Fprintf(os.Stdout, "Fetching articles from %s...\n", cfg.Source.Domain)
	articles, err := src.FetchAll(ctx)
	if err != nil {
		// Aborting here keeps the deletion pass from mistaking an
		// outage for an emptied knowledge base.
		return fmt.Errorf("fetching articles: %w", err)
	}
	fmt.Fprintf(os.Stdout, "Fetched %d article(s)\n", len(articles))

	allowEmpty, _ := cmd.Flags().GetBool("allow-empty")
	if len(articles) == 0 && led.Len() > 0 && !allowEmpty {
		return fmt.Errorf("source listed zero articles but %d are tracked; pass --allow-empty to retire them all", led.Len())
	}

	var index reconcile.IndexClient
	localOnly, _ := cmd.Flags().GetBool("local-only")
	if !localOnly && cfg.Index.APIKey != "" {
		index = &vectorstore.Client{
			HTTPClient:      httputil.NewClient(cfg.Index.Timeout),
			APIKey:          cfg.Index.APIKey,
			UserAgent:       cfg.Index.UserAgent,
			StoreExpiryDays: cfg.Index.StoreExpiryDays,
		}
	}

	var corpus reconcile.CorpusIndexer
	if store, err := corpusindex.Open(cfg.Mirror.OutputDir); err != nil {
		fmt.Fprintf(os.Stderr, "warning: corpus index unavailable: %v\n", err)
	} else {
		defer store.Close()
		corpus = store
	}

	r := &reconcile.Reconciler{
		Ledger:    led,
		Index:     index,
		Corpus:    corpus,
		OutputDir: cfg.Mirror.OutputDir,
		StoreName: cfg.Index.StoreName,
		Out:       os.Stdout,
	}

	report, runErr := r.Run(ctx, articles)
	report.Summarize(os.Stdout)

	if path, _ := cmd.Flags().GetString("report-file"); path != "" {
		if err := report.WriteYAML(path); err != nil {
			fmt.Fprintf(os.Stderr, "warning: %v\n", err)
		}
	}

	if runErr != nil {
		return runErr
	}
	if report.HasFailures() {
		return fmt.Errorf("sync completed with failures")
	}
	return nil
}
