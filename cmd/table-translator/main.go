// Command table-translator fills or translates the cells of CSV and XLSX
// tables through an OpenAI-compatible chat completions API.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/Sternrassler/table-translator/pkg/config"
	"github.com/Sternrassler/table-translator/pkg/fetch"
	"github.com/Sternrassler/table-translator/pkg/language"
	"github.com/Sternrassler/table-translator/pkg/logging"
	"github.com/Sternrassler/table-translator/pkg/orchestrator"
	"github.com/Sternrassler/table-translator/pkg/provider"
	"github.com/Sternrassler/table-translator/pkg/ratelimit"
	"github.com/Sternrassler/table-translator/pkg/server"
	"github.com/Sternrassler/table-translator/pkg/table"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:          "table-translator",
		Short:        "Translate the cells of CSV and XLSX tables",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("CONFIG_FILE"), "YAML config file (env: CONFIG_FILE)")

	rootCmd.AddCommand(
		newServeCmd(&configPath),
		newTranslateCmd(&configPath),
		newLanguagesCmd(),
	)
	return rootCmd
}

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup(*configPath, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			redisClient, err := connectRedis(ctx, cfg.RedisURL)
			if err != nil {
				return err
			}
			if redisClient != nil {
				defer redisClient.Close()
			}

			orch, err := buildOrchestrator(cfg, redisClient)
			if err != nil {
				return err
			}

			fetchCfg := fetch.DefaultConfig()
			fetchCfg.MaxBytes = cfg.MaxFileBytes
			fetcher := fetch.New(fetchCfg)

			srv, err := server.New(orch, fetcher, redisClient, server.Config{
				Addr:            ":" + cfg.Port,
				CORSOrigins:     cfg.CORSOrigins,
				MaxBodyBytes:    cfg.MaxBodyBytes,
				ShutdownTimeout: cfg.ShutdownTimeout,
			})
			if err != nil {
				return err
			}
			return srv.Run(ctx)
		},
	}
}

func newTranslateCmd(configPath *string) *cobra.Command {
	var (
		lang       string
		outputPath string
	)

	cmd := &cobra.Command{
		Use:   "translate <file>",
		Short: "Translate a local CSV or XLSX file and write CSV",
		Long: `Without --language, empty cells are filled from the other cells of the
same row, reading every column header as a language. With --language, every
cell of the table is translated into that language.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup(*configPath, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			target := ""
			if strings.TrimSpace(lang) != "" {
				l, err := language.Lookup(lang)
				if err != nil {
					return err
				}
				target = l.Code
			}

			tbl, err := readTable(args[0])
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			redisClient, err := connectRedis(ctx, cfg.RedisURL)
			if err != nil {
				return err
			}
			if redisClient != nil {
				defer redisClient.Close()
			}

			orch, err := buildOrchestrator(cfg, redisClient)
			if err != nil {
				return err
			}

			translated, report, err := orch.Translate(ctx, tbl, target)
			if err != nil {
				return err
			}

			if err := writeOutput(outputPath, cmd.OutOrStdout(), translated); err != nil {
				return err
			}

			logger := logging.NewLogger("cli")
			logger.Info().
				Str("run_id", report.RunID).
				Int("translated", report.Translated).
				Int("unresolved", report.Unresolved).
				Int("batches", report.Batches).
				Msg("Translation finished")
			return nil
		},
	}

	cmd.Flags().StringVarP(&lang, "language", "l", "", "Translate the whole table into this language")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output file path (default: stdout)")
	return cmd
}

func newLanguagesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "languages",
		Short: "List supported languages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			for _, l := range language.Supported() {
				fmt.Fprintf(w, "%s\t%s\n", l.Code, l.Name)
			}
			return w.Flush()
		},
	}
}

// setup loads configuration and initialises the global logger.
func setup(configPath string, logOutput io.Writer) (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, err
	}

	level, _ := logging.ParseLevel(cfg.LogLevel)
	logging.Setup(logging.Config{
		Level:   level,
		Pretty:  cfg.LogPretty,
		Output:  logOutput,
		Service: "table-translator",
	})
	return cfg, nil
}

// connectRedis returns nil when no Redis URL is configured.
func connectRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	if redisURL == "" {
		return nil, nil
	}

	opts, err := redisOptions(redisURL)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", opts.Addr, err)
	}
	logger := logging.NewLogger("cli")
	logger.Info().Str("addr", opts.Addr).Msg("Connected to Redis")
	return client, nil
}

// redisOptions accepts a redis:// URL or a bare host:port address.
func redisOptions(redisURL string) (*redis.Options, error) {
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return opts, nil
	}
	return &redis.Options{Addr: redisURL}, nil
}

// buildOrchestrator wires provider, rate limit tracking and orchestrator.
func buildOrchestrator(cfg config.Config, redisClient *redis.Client) (*orchestrator.Orchestrator, error) {
	pcfg := provider.DefaultConfig(cfg.ProviderAPIKey)
	pcfg.BaseURL = cfg.ProviderBaseURL
	pcfg.Model = cfg.ProviderModel
	pcfg.Timeout = cfg.ProviderTimeout
	pcfg.RequestsPerSecond = cfg.ProviderRPS
	pcfg.Retry.MaxAttempts = cfg.MaxRetries + 1
	if cfg.InitialBackoff > 0 {
		pcfg.Retry.InitialBackoff = cfg.InitialBackoff
	}
	if redisClient != nil {
		pcfg.Tracker = ratelimit.NewTracker(redisClient, cfg.ProviderModel, logging.NewLogger("ratelimit"))
	}

	p, err := provider.New(pcfg)
	if err != nil {
		return nil, fmt.Errorf("create provider: %w", err)
	}

	return orchestrator.New(p, orchestrator.Config{
		MaxBatchSize:   cfg.MaxBatchSize,
		MaxConcurrency: cfg.MaxConcurrency,
		ProviderModel:  cfg.ProviderModel,
		AllowPartial:   cfg.AllowPartial,
		BatchTimeout:   cfg.BatchTimeout,
	})
}

// writeOutput writes tbl as CSV to path, or to stdout when path is empty.
// A failed close is reported since it can lose buffered data.
func writeOutput(path string, stdout io.Writer, tbl *table.Table) (err error) {
	if path == "" {
		return table.WriteCSV(stdout, tbl)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close output: %w", cerr)
		}
	}()

	return table.WriteCSV(f, tbl)
}

func readTable(path string) (*table.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	tbl, err := table.Decode(filepath.Base(path), "", f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return tbl, nil
}
