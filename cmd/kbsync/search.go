// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/optibot/kbsync/internal/corpusindex"
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Full-text search over the mirrored article corpus",
	Long: `Search queries the local SQLite full-text index built from the mirrored
Markdown articles. The index is refreshed incrementally before each query,
so results reflect the mirror as it is on disk, without any network access.`,
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().String("output-dir", "data/articles", "directory holding the mirrored articles")
	searchCmd.Flags().Int("limit", 20, "maximum number of results")
	searchCmd.Flags().Bool("json", false, "output results as JSON")

	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	query := strings.Join(args, " ")
	if query == "" {
		return fmt.Errorf("provide a search query")
	}

	outputDir := settingString(cmd, "output-dir", "mirror.output_dir")
	limit, _ := cmd.Flags().GetInt("limit")
	ctx := cmd.Context()

	store, err := corpusindex.Open(outputDir)
	if err != nil {
		return err
	}
	defer store.Close()

	// Refresh the index before querying; status lines go to stderr so
	// stdout carries only results.
	if _, err := store.Sync(ctx, os.Stderr); err != nil {
		return err
	}

	results, err := store.Search(ctx, query, limit)
	if err != nil {
		return err
	}

	jsonOutput, _ := cmd.Flags().GetBool("json")
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	if len(results) == 0 {
		fmt.Println("No results found.")
		return nil
	}

	fmt.Fprintf(os.Stdout, "%-4s  %-10s  %-40s  %s\n", "Rank", "Article", "Title", "Snippet")
	fmt.Fprintln(os.Stdout, strings.Repeat("-", 100))
	for i, r := range results {
		title := r.Title
		if len(title) > 40 {
			title = title[:37] + "..."
		}
		fmt.Fprintf(os.Stdout, "%-4d  %-10s  %-40s  %s\n", i+1, r.ArticleID, title, r.Snippet)
	}
	fmt.Fprintf(os.Stdout, "\n%d result(s)\n", len(results))
	return nil
}
