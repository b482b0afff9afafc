// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/research-assistant/internal/embedding"
	"github.com/pdiddy/research-assistant/internal/knowledge"
)

var knowledgeCmd = &cobra.Command{
	Use:   "knowledge",
	Short: "Manage the knowledge base (ingest, lookup, export, stats)",
	Long: `Knowledge manages the local SQLite knowledge base built from trait
YAML files under knowledge/traits/ and markdown documents under
knowledge/documents/.`,
}

// --- ingest subcommand ---

var knowledgeIngestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Index trait files and documents into the knowledge base",
	Long: `Ingest reads trait YAML files and markdown documents, chunks and
embeds the documents, and stores everything with FTS5 and vector indexes.
Unchanged files are skipped on subsequent runs. Documents are skipped when
no embedding service is configured.`,
	RunE: runKnowledgeIngest,
}

func runKnowledgeIngest(cmd *cobra.Command, args []string) error {
	store, err := knowledge.NewStore(cfg.Knowledge, logger.Named("knowledge"))
	if err != nil {
		return err
	}
	defer store.Close()

	var emb embedding.Embedder
	e, err := embedding.New(cmd.Context(), cfg.Embedding, logger.Named("embedding"))
	switch {
	case errors.Is(err, embedding.ErrNotConfigured):
		fmt.Fprintln(os.Stderr, "embedding not configured; documents will not be indexed")
	case err != nil:
		return err
	default:
		emb = e
	}

	summary, err := store.Ingest(cmd.Context(), emb, os.Stdout)
	if err != nil {
		return err
	}
	if summary.Failed > 0 {
		return fmt.Errorf("%d file(s) failed indexing", summary.Failed)
	}
	return nil
}

// --- lookup subcommand ---

var knowledgeLookupCmd = &cobra.Command{
	Use:   "lookup [query]",
	Short: "Search traits with full-text search",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runKnowledgeLookup,
}

func runKnowledgeLookup(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	store, err := knowledge.NewStore(cfg.Knowledge, logger.Named("knowledge"))
	if err != nil {
		return err
	}
	defer store.Close()

	traits, err := store.SearchTraits(cmd.Context(), strings.Join(args, " "), limit)
	if err != nil {
		return err
	}
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(traits)
	}
	if len(traits) == 0 {
		fmt.Println("No traits found.")
		return nil
	}
	fmt.Print(knowledge.FormatTraits(traits))
	fmt.Fprintf(os.Stdout, "\n%d traits\n", len(traits))
	return nil
}

// --- export subcommand ---

var knowledgeExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export all traits to YAML or JSON on stdout",
	RunE:  runKnowledgeExport,
}

func runKnowledgeExport(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	switch format {
	case "yaml", "json":
	default:
		return fmt.Errorf("unsupported format %q: use yaml or json", format)
	}

	store, err := knowledge.NewStore(cfg.Knowledge, logger.Named("knowledge"))
	if err != nil {
		return err
	}
	defer store.Close()

	return store.ExportTraits(cmd.Context(), os.Stdout, format)
}

// --- stats subcommand ---

var knowledgeStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print record counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := knowledge.NewStore(cfg.Knowledge, logger.Named("knowledge"))
		if err != nil {
			return err
		}
		defer store.Close()

		st, err := store.Stats(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("traits:    %d\ndocuments: %d\nchunks:    %d\nvector:    %t\n",
			st.Traits, st.Documents, st.Chunks, store.VecEnabled())
		return nil
	},
}

func init() {
	knowledgeLookupCmd.Flags().Int("limit", 0, "maximum results (0 = knowledge.max_results)")
	knowledgeLookupCmd.Flags().Bool("json", false, "output traits as JSON")

	knowledgeExportCmd.Flags().String("format", "yaml", "export format: yaml or json")

	knowledgeCmd.AddCommand(knowledgeIngestCmd)
	knowledgeCmd.AddCommand(knowledgeLookupCmd)
	knowledgeCmd.AddCommand(knowledgeExportCmd)
	knowledgeCmd.AddCommand(knowledgeStatsCmd)

	rootCmd.AddCommand(knowledgeCmd)
}
