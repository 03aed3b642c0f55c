package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"analytics-rag/internal/chromemdb"
	"analytics-rag/internal/helper"
	"analytics-rag/internal/ingest"
	"analytics-rag/internal/llmservice"
	"analytics-rag/internal/parser"
	"analytics-rag/internal/rag"
)

func newIngestCmd(opts *rootOptions) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "ingest [files...]",
		Short: "Parse, chunk and upsert files into the vector index",
		Long:  `Supported extensions: .csv .pdf .docx .txt .ts .tsx .md .xlsx. Other files are skipped.`,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := readFiles(args)
			if err != nil {
				return err
			}

			if dryRun {
				cfg, err := readConfig(opts.configPath)
				if err != nil {
					return err
				}
				chunks, err := ingest.NewPipeline(nil, cfg).Prepare(cmd.Context(), files)
				if err != nil {
					return err
				}
				helper.PrettyPrint(chunks)
				return nil
			}

			cfg, err := loadConfig(opts.configPath, false)
			if err != nil {
				return err
			}

			store, closeStore, err := newStore(cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			var bar *progressbar.ProgressBar
			pipeline := ingest.NewPipeline(store, cfg, ingest.WithProgress(func(done, total int) {
				if bar == nil {
					bar = getProgressBar(total, "Upserting")
				}
				_ = bar.Set(done)
			}))

			report, err := pipeline.Run(cmd.Context(), files)
			if bar != nil {
				_ = bar.Finish()
				fmt.Fprintln(cmd.ErrOrStderr())
			}
			if err != nil {
				return err
			}
			printReport(cmd, report)
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the chunks instead of writing them")
	return cmd
}

func newQueryCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "query [question]",
		Short: "Retrieve and rerank the documents relevant to a question",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts.configPath, true)
			if err != nil {
				return err
			}
			store, closeStore, err := newStore(cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			llm, err := llmservice.NewClient(cfg.LLM)
			if err != nil {
				return fmt.Errorf("error initializing LLM: %w", err)
			}

			retriever := rag.NewRetriever(store, rag.NewLLMScorer(llm, cfg.LLM.RateLimit), cfg.Retriever)
			results, err := retriever.Retrieve(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(results) == 0 {
				fmt.Fprintln(out, color.YellowString("No relevant documents found"))
				return nil
			}
			for i, r := range results {
				fmt.Fprintf(out, "%s %s %s\n",
					color.New(color.FgCyan, color.Bold).Sprintf("#%d", i+1),
					color.GreenString("relevance=%.1f", r.Relevance),
					color.BlueString("similarity=%.3f source=%s", r.Similarity, r.Source()))
				fmt.Fprintf(out, "%s\n\n", r.Content)
			}
			return nil
		},
	}
}

func newResetCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Delete the configured index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts.configPath, false)
			if err != nil {
				return err
			}
			store, closeStore, err := newStore(cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			name := cfg.VectorDB.IndexName
			deleted, err := store.DeleteIndex(cmd.Context(), name)
			if err != nil {
				return err
			}
			if deleted {
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted index %s\n", name)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Index %s does not exist\n", name)
			}
			return nil
		},
	}
}

func newIndexesCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "indexes",
		Short: "List the indexes of the configured backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts.configPath, false)
			if err != nil {
				return err
			}
			store, closeStore, err := newStore(cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			names, err := store.ListIndexes(cmd.Context())
			if err != nil {
				return err
			}
			for _, n := range names {
				fmt.Fprintln(cmd.OutOrStdout(), n)
			}
			return nil
		},
	}
}

// snapshot only applies to the embedded chromem backend
func newSnapshotCmd(opts *rootOptions) *cobra.Command {
	var key string

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Export or import the chromem index to a file",
	}
	cmd.PersistentFlags().StringVar(&key, "key", "", "32 byte encryption key")

	withManager := func(cmd *cobra.Command, fn func(m *chromemdb.VectorDBManager) error) error {
		cfg, err := loadConfig(opts.configPath, false)
		if err != nil {
			return err
		}
		store, closeStore, err := newStore(cfg)
		if err != nil {
			return err
		}
		defer closeStore()

		m, ok := store.(*chromemdb.VectorDBManager)
		if !ok {
			return fmt.Errorf("snapshots need the chromem backend, got %s", cfg.VectorDB.Backend)
		}
		if err := m.EnsureIndex(cmd.Context(), indexSpec(cfg)); err != nil {
			return err
		}
		return fn(m)
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "export [file]",
			Short: "Write the index to a file",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withManager(cmd, func(m *chromemdb.VectorDBManager) error {
					return m.Export(args[0], key)
				})
			},
		},
		&cobra.Command{
			Use:   "import [file]",
			Short: "Load the index from a file",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withManager(cmd, func(m *chromemdb.VectorDBManager) error {
					return m.Import(args[0], key)
				})
			},
		},
	)
	return cmd
}

func readFiles(paths []string) ([]parser.File, error) {
	files := make([]parser.File, 0, len(paths))
	for _, p := range paths {
		if !parser.IsSupported(p) {
			log.Warn().Str("file", p).Msg("Unsupported extension, file will be skipped")
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, &ingest.IngestionError{Op: "read", Err: fmt.Errorf("error reading %s: %w", p, err)}
		}
		files = append(files, parser.File{Name: filepath.Base(p), Data: data})
	}
	return files, nil
}

func printReport(cmd *cobra.Command, report *ingest.Report) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s %d/%d chunks written\n", color.GreenString("Done:"), report.Written, report.Total)
	if report.Truncated > 0 {
		fmt.Fprintf(out, "%s %d chunks truncated\n", color.YellowString("Note:"), report.Truncated)
	}
	for _, s := range report.Skipped {
		fmt.Fprintf(out, "%s chunk %d from %s: %s\n", color.RedString("Skipped:"), s.Index, s.Source, s.Reason)
	}
}

func getProgressBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(color.BlueString(description)),
		progressbar.OptionSetItsString("chunks"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetRenderBlankState(true),
	)
}
