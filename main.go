package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/mudler/faqrecall/pkg/config"
	"github.com/mudler/faqrecall/rag"
	"github.com/mudler/faqrecall/rag/evaluation"
	"github.com/mudler/faqrecall/rag/types"
	"github.com/mudler/xlog"
	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "faqrecall",
		Short: "Customer-support answers grounded in a scraped FAQ corpus",
		Long: `faqrecall answers customer-support questions from a help-center FAQ corpus:
it ingests pages into a vector store, retrieves the most relevant records for a
question, generates a grounded answer and scores answer quality offline.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "config file path")

	rootCmd.AddCommand(
		serveCmd(),
		askCmd(),
		evaluateCmd(),
		ingestCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(path)
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			uploadDir, _ := cmd.Flags().GetString("upload-dir")

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			p, err := newPipeline(ctx, cfg)
			if err != nil {
				return err
			}
			defer p.Close(context.Background())

			ingestor, state, err := p.ingestor()
			if err != nil {
				return err
			}
			sourceManager := rag.NewSourceManager(ingestor, state)
			sourceManager.Start(ctx)

			e := newRouter(&api{
				generator:       p.generator,
				retriever:       p.retriever,
				evaluator:       p.evaluator,
				inlineEvaluate:  cfg.API.InlineEvaluation,
				ingestor:        ingestor,
				sourceManager:   sourceManager,
				defaultProvider: cfg.GenerationProvider(),
				defaultLimit:    cfg.Retrieval.Limit,
				refreshInterval: cfg.Ingest.RefreshInterval,
				uploadDir:       uploadDir,
				background:      ctx,
			})

			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := e.Shutdown(shutdownCtx); err != nil {
					xlog.Error("Error shutting down server", "error", err)
				}
			}()

			xlog.Info("Starting API server", "address", cfg.API.Address(), "engine", cfg.Store.Engine)
			if err := e.Start(cfg.API.Address()); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().String("upload-dir", "uploads", "directory for uploaded documents")

	return cmd
}

func askCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer a single question",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			asJSON, _ := cmd.Flags().GetBool("json")

			ctx := cmd.Context()
			p, err := newPipeline(ctx, cfg)
			if err != nil {
				return err
			}
			defer p.Close(context.Background())

			answer := p.generator.Generate(ctx, strings.Join(args, " "))
			if asJSON {
				if err := printJSON(cmd, answer); err != nil {
					return err
				}
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "\nAnswer:\n%s\n", answer.Text)
				if len(answer.References) > 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "\nReferences:")
					for _, ref := range answer.References {
						fmt.Fprintf(cmd.OutOrStdout(), "- %s\n", ref)
					}
				}
			}

			if !answer.OK() {
				return fmt.Errorf("no grounded answer (%s)", answer.Outcome)
			}
			return nil
		},
	}

	cmd.Flags().Bool("json", false, "print the answer as JSON")

	return cmd
}

func evaluateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Run the batch or retrieval evaluation over a CSV test set",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			testset, _ := cmd.Flags().GetString("testset")
			resultsDir, _ := cmd.Flags().GetString("results-dir")
			limit, _ := cmd.Flags().GetInt("limit")
			if limit == 0 {
				limit = cfg.Evaluation.TestsetLimit
			}

			rows, err := evaluation.LoadTestSet(testset, limit)
			if err != nil {
				return fmt.Errorf("loading test set: %w", err)
			}
			xlog.Info("Loaded test set", "path", testset, "questions", len(rows))

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			p, err := newPipeline(ctx, cfg)
			if err != nil {
				return err
			}
			defer p.Close(context.Background())

			if retrieval, _ := cmd.Flags().GetBool("retrieval"); retrieval {
				names, _ := cmd.Flags().GetStringSlice("providers")
				return runRetrievalEvaluation(ctx, cmd, p, rows, names, resultsDir)
			}

			report, err := evaluation.NewCSVReport(evaluation.ReportPath(resultsDir, time.Now()))
			if err != nil {
				return err
			}
			defer report.Close()

			batch := evaluation.NewBatch(p.generator, p.evaluator, report, evaluation.BatchOptions{
				Workers:       cfg.Evaluation.Workers,
				MaxWait:       cfg.Evaluation.MaxWait,
				RatePerSecond: cfg.Evaluation.RatePerSecond,
				Model:         cfg.OpenAI.Model,
				Provider:      cfg.GenerationProvider(),
			})

			_, summary, err := batch.Run(ctx, rows)
			xlog.Info("Detailed results saved", "path", report.Path())
			if printErr := printJSON(cmd, summary); printErr != nil {
				return printErr
			}
			return err
		},
	}

	cmd.Flags().String("testset", filepath.Join("data", "test", "faqs.csv"), "CSV test set with question and answer columns")
	cmd.Flags().String("results-dir", "results", "directory for the detailed results CSV")
	cmd.Flags().Int("limit", 0, "evaluate only the first N questions")
	cmd.Flags().Bool("retrieval", false, "score context precision and recall of every embedding backend instead of answers")
	cmd.Flags().StringSlice("providers", nil, "embedding backends to score with --retrieval (default: all configured)")

	return cmd
}

func runRetrievalEvaluation(ctx context.Context, cmd *cobra.Command, p *pipeline, rows []evaluation.Row, names []string, resultsDir string) error {
	providers := p.providers()
	if len(names) > 0 {
		providers = nil
		for _, name := range names {
			provider, err := types.ParseProvider(name)
			if err != nil {
				return err
			}
			providers = append(providers, provider)
		}
	}
	if len(providers) == 0 {
		return errors.New("no embedding backend is configured")
	}

	cfg := p.cfg.Evaluation
	summaries := evaluation.NewRetrievalEvaluation(p.retriever, p.evaluator.Similarity(), evaluation.RetrievalOptions{
		Providers:     providers,
		Limit:         cfg.RetrievalLimit,
		Workers:       cfg.Workers,
		MaxWait:       cfg.MaxWait,
		RatePerSecond: cfg.RatePerSecond,
	}).Run(ctx, rows)

	path := evaluation.RetrievalReportPath(resultsDir, time.Now())
	if err := evaluation.WriteRetrievalReport(path, summaries); err != nil {
		return err
	}
	xlog.Info("Retrieval results saved", "path", path)

	if err := printJSON(cmd, summaries); err != nil {
		return err
	}
	return ctx.Err()
}

func ingestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest [source...]",
		Short: "Ingest web pages, sitemaps, git repositories or local files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			reset, _ := cmd.Flags().GetBool("reset")
			interval, _ := cmd.Flags().GetDuration("watch")

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			p, err := newPipeline(ctx, cfg)
			if err != nil {
				return err
			}
			defer p.Close(context.Background())

			ingestor, state, err := p.ingestor()
			if err != nil {
				return err
			}
			if reset {
				if err := state.Reset(); err != nil {
					return err
				}
			}

			stats, err := ingestor.IngestSources(ctx, args...)
			if printErr := printJSON(cmd, stats); printErr != nil {
				return printErr
			}
			if err != nil || interval == 0 {
				return err
			}

			// keep the sources fresh until interrupted
			sourceManager := rag.NewSourceManager(ingestor, state)
			for _, src := range args {
				if err := state.AddExternalSource(rag.ExternalSource{URL: src, UpdateInterval: interval, LastUpdate: time.Now()}); err != nil {
					return err
				}
			}
			sourceManager.Start(ctx)
			<-ctx.Done()
			return nil
		},
	}

	cmd.Flags().Bool("reset", false, "forget ingested page hashes and re-ingest everything")
	cmd.Flags().Duration("watch", 0, "keep running and refresh the sources at this interval")

	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "faqrecall %s\n", version)
			fmt.Fprintf(cmd.OutOrStdout(), "  commit: %s\n", commit)
		},
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
