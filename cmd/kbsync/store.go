// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/optibot/kbsync/internal/httputil"
	"github.com/optibot/kbsync/internal/ledger"
	"github.com/optibot/kbsync/internal/vectorstore"
	"github.com/optibot/kbsync/pkg/types"
)

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Inspect or clear the remote vector store",
	Long: `Store operates on the remote vector store tracked by the ledger. Use
show to report the store id and remote file counts, or clear to remove
every remote file so the next sync rebuilds the store from scratch.`,
}

var storeShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the tracked vector store id and remote file counts",
	RunE:  runStoreShow,
}

var storeClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all files from the vector store and file storage",
	Long: `Clear unlinks every file from the tracked vector store, then deletes
every file in remote file storage. Removal is best-effort: failures are
reported and the remaining files are still attempted.

With --reset-ledger the local ledger is emptied as well, so the next
sync re-mirrors and re-uploads everything.`,
	RunE: runStoreClear,
}

func init() {
	storeCmd.PersistentFlags().Duration("timeout", defaultTimeout, "HTTP request timeout")
	storeCmd.PersistentFlags().String("state-file", "data/state.json", "path of the JSON ledger")
	storeCmd.PersistentFlags().String("state-bucket", "", "read the ledger from this Cloud Storage bucket instead of a file")
	storeCmd.PersistentFlags().String("state-object", "state.json", "ledger object name inside --state-bucket")

	storeClearCmd.Flags().Bool("reset-ledger", false, "also empty the local ledger")

	storeCmd.AddCommand(storeShowCmd)
	storeCmd.AddCommand(storeClearCmd)
	rootCmd.AddCommand(storeCmd)
}

func storeClient(cmd *cobra.Command) (*vectorstore.Client, error) {
	apiKey := secretDefault("openai-api-key", "")
	if apiKey == "" {
		return nil, fmt.Errorf("no API key: put it in .secrets/openai-api-key")
	}
	return &vectorstore.Client{
		HTTPClient: httputil.NewClient(settingDuration(cmd, "timeout", "index.timeout")),
		APIKey:     apiKey,
		UserAgent:  defaultUserAgent,
	}, nil
}

func storeLedger(ctx context.Context, cmd *cobra.Command) (*ledger.Ledger, error) {
	backend, err := ledgerBackend(ctx, types.MirrorConfig{
		StateFile:   settingString(cmd, "state-file", "mirror.state_file"),
		StateBucket: settingString(cmd, "state-bucket", "mirror.state_bucket"),
		StateObject: settingString(cmd, "state-object", "mirror.state_object"),
	})
	if err != nil {
		return nil, err
	}
	return ledger.Load(ctx, backend), nil
}

func runStoreShow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	client, err := storeClient(cmd)
	if err != nil {
		return err
	}
	led, err := storeLedger(ctx, cmd)
	if err != nil {
		return err
	}

	storeID := led.StoreID()
	if storeID == "" {
		fmt.Println("No vector store tracked; run a sync first.")
		return nil
	}
	fmt.Printf("Vector store:   %s\n", storeID)
	fmt.Printf("Tracked items:  %d\n", led.Len())

	linked, err := client.ListStoreFiles(ctx, storeID)
	if err != nil {
		return err
	}
	fmt.Printf("Linked files:   %d\n", len(linked))

	all, err := client.ListFiles(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Files total:    %d\n", len(all))
	return nil
}

func runStoreClear(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	client, err := storeClient(cmd)
	if err != nil {
		return err
	}
	led, err := storeLedger(ctx, cmd)
	if err != nil {
		return err
	}

	failed := 0

	if storeID := led.StoreID(); storeID != "" {
		linked, err := client.ListStoreFiles(ctx, storeID)
		if err != nil {
			return err
		}
		for _, id := range linked {
			if err := client.UnlinkFile(ctx, storeID, id); err != nil {
				fmt.Fprintf(os.Stderr, "warning: %v\n", err)
				failed++
			}
		}
		fmt.Printf("Unlinked %d file(s) from %s\n", len(linked)-failed, storeID)
	}

	all, err := client.ListFiles(ctx)
	if err != nil {
		return err
	}
	deleted := 0
	for _, id := range all {
		if err := client.DeleteFile(ctx, id); err != nil {
			fmt.Fprintf(os.Stderr, "warning: %v\n", err)
			failed++
			continue
		}
		deleted++
	}
	fmt.Printf("Deleted %d of %d file(s) from storage\n", deleted, len(all))

	if reset, _ := cmd.Flags().GetBool("reset-ledger"); reset {
		for _, id := range led.IDs() {
			led.Remove(id)
		}
		led.SetStoreID("")
		if err := led.Save(ctx); err != nil {
			return err
		}
		fmt.Println("Ledger reset.")
	}

	if failed > 0 {
		return fmt.Errorf("%d file(s) could not be removed", failed)
	}
	return nil
}
