package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"ArticlePipeline/internal/app"
	"ArticlePipeline/internal/config"
	"ArticlePipeline/internal/domain"
	"ArticlePipeline/internal/logging"
	"ArticlePipeline/internal/usecase"
)

// cli carries the state shared by all subcommands.
type cli struct {
	configPath string
	cfg        config.Config
	logger     *slog.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:   "articlepipeline",
		Short: "Ingest, decode and analyze news articles per owner",
		Long: `Collects articles from configured feeds, replaces aggregator
redirect links with publisher URLs and enriches them with a summary,
sentiment and categories.

Examples:
  articlepipeline serve                          # HTTP API and scheduler
  articlepipeline decode --owner alice           # stream a decode run
  articlepipeline analyze --owner alice --live   # stream an analyze run`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if c.configPath != "" {
				c.cfg = config.LoadFrom(c.configPath)
			} else {
				c.cfg = config.Load()
			}
			c.logger = logging.NewWithWriter(cmd.ErrOrStderr(), c.cfg.Logging.Level, c.cfg.Logging.Format)
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "YAML config file (defaults to $ARTICLE_PIPELINE_CONFIG)")

	root.AddCommand(
		c.serveCmd(),
		c.migrateCmd(),
		c.ingestCmd(),
		c.decodeCmd(),
		c.analyzeCmd(),
		c.resetCmd(),
		c.pendingCmd(),
	)
	return root
}

// withApp builds the application for one command and closes it afterwards.
func (c *cli) withApp(cmd *cobra.Command, fn func(*app.Application) error) error {
	application, err := app.New(cmd.Context(), c.cfg, c.logger)
	if err != nil {
		return err
	}
	defer application.Close()
	return fn(application)
}

func (c *cli) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the scheduler",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, func(a *app.Application) error {
				return a.Serve(cmd.Context())
			})
		},
	}
}

func (c *cli) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, func(a *app.Application) error {
				return a.Migrate(cmd.Context())
			})
		},
	}
}

func (c *cli) ingestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Fetch configured feeds and store new articles",
		RunE: func(cmd *cobra.Command, _ []string) error {
			owner, _ := cmd.Flags().GetString("owner")
			return c.withApp(cmd, func(a *app.Application) error {
				result, err := a.Pipeline().Ingest(cmd.Context(), owner)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), result)
			})
		},
	}
	ownerFlag(cmd)
	return cmd
}

func (c *cli) decodeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decode",
		Short: "Decode redirect links and stream progress as JSON lines",
		RunE: func(cmd *cobra.Command, _ []string) error {
			owner, _ := cmd.Flags().GetString("owner")
			return c.withApp(cmd, func(a *app.Application) error {
				run, err := a.Pipeline().StartDecode(cmd.Context(), owner)
				if err != nil {
					return err
				}
				return streamRun(cmd.OutOrStdout(), run)
			})
		},
	}
	ownerFlag(cmd)
	return cmd
}

func (c *cli) analyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze decoded articles",
		Long: `Analyze decoded articles. Without --live one bounded batch runs and
a summary is printed; with --live progress is streamed as JSON lines.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			owner, _ := cmd.Flags().GetString("owner")
			limit, _ := cmd.Flags().GetInt("limit")
			live, _ := cmd.Flags().GetBool("live")
			return c.withApp(cmd, func(a *app.Application) error {
				if live {
					run, err := a.Pipeline().StartAnalyze(cmd.Context(), owner, limit)
					if err != nil {
						return err
					}
					return streamRun(cmd.OutOrStdout(), run)
				}
				result, err := a.Pipeline().AnalyzeBatch(cmd.Context(), owner, limit)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), result)
			})
		},
	}
	ownerFlag(cmd)
	cmd.Flags().Int("limit", 0, "maximum articles to analyze (0 uses the configured default)")
	cmd.Flags().Bool("live", false, "stream progress events")
	return cmd
}

func (c *cli) resetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Make failed analyses eligible again",
		RunE: func(cmd *cobra.Command, _ []string) error {
			owner, _ := cmd.Flags().GetString("owner")
			return c.withApp(cmd, func(a *app.Application) error {
				n, err := a.Pipeline().ResetFailed(cmd.Context(), owner)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]int{"resetCount": n})
			})
		},
	}
	ownerFlag(cmd)
	return cmd
}

func (c *cli) pendingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pending",
		Short: "Show how many articles wait for each stage",
		RunE: func(cmd *cobra.Command, _ []string) error {
			owner, _ := cmd.Flags().GetString("owner")
			return c.withApp(cmd, func(a *app.Application) error {
				counts, err := a.Pipeline().Pending(cmd.Context(), owner)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), counts)
			})
		},
	}
	ownerFlag(cmd)
	return cmd
}

func ownerFlag(cmd *cobra.Command) {
	cmd.Flags().String("owner", "", "owner id the command acts for")
	_ = cmd.MarkFlagRequired("owner")
}

// streamRun prints every event of run as one JSON line. A failed run is
// reported as an error after its terminal event was printed.
func streamRun(w io.Writer, run *usecase.Run) error {
	enc := json.NewEncoder(w)
	for event := range run.Events() {
		if err := enc.Encode(event); err != nil {
			run.Cancel()
			usecase.Drain(run)
			return fmt.Errorf("write event: %w", err)
		}
	}

	summary := run.Wait()
	if summary.State == domain.RunFailed {
		if summary.Err != nil {
			return fmt.Errorf("%s run failed: %w", summary.Stage, summary.Err)
		}
		return errors.New("run failed")
	}
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
