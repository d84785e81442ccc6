package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SamMebarek/mlopstest/internal/config"
	"github.com/SamMebarek/mlopstest/internal/eval"
	"github.com/SamMebarek/mlopstest/internal/logging"
	"github.com/SamMebarek/mlopstest/internal/pipeline"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	paramsPath string
	logLevel   string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "pipeline",
		Short: "Pricing model pipeline: ingest, preprocess, train, evaluate",
		Long: `Runs the offline stages of the dynamic pricing model.
Each stage reads the previous stage's output from the paths in config.yaml,
so stages can be run one by one or all together with 'run'.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config/config.yaml", "Path to config.yaml")
	rootCmd.PersistentFlags().StringVarP(&paramsPath, "params", "p", "config/params.yaml", "Path to params.yaml")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override the configured log level")

	rootCmd.AddCommand(ingestCmd())
	rootCmd.AddCommand(preprocessCmd())
	rootCmd.AddCommand(trainCmd())
	rootCmd.AddCommand(evaluateCmd())
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(registryCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// env is what every command needs: the loaded config and stage dependencies
type env struct {
	cfg     *config.Config
	deps    pipeline.Deps
	closers []func() error
}

func (e *env) Close() {
	for _, c := range e.closers {
		if err := c(); err != nil {
			e.deps.Logger.Warn().Err(err).Msg("close failed")
		}
	}
}

func setup(ctx context.Context) (*env, error) {
	cfg, err := config.Load(configPath, paramsPath)
	if err != nil {
		return nil, err
	}
	level := cfg.File.Logging.Level
	if logLevel != "" {
		level = logLevel
	}
	logger := logging.New(level, cfg.File.Logging.Format, os.Stderr)

	e := &env{
		cfg: cfg,
		deps: pipeline.Deps{
			Logger:     logger,
			HTTPClient: &http.Client{Timeout: 60 * time.Second},
		},
	}

	if cfg.File.Evaluation.Sink == "redis" {
		r := cfg.File.Redis
		client, err := eval.DialRedis(ctx, r.Addr, r.Password, r.DB)
		if err != nil {
			return nil, err
		}
		e.closers = append(e.closers, client.Close)
		e.deps.Sink = eval.NewMultiSink(logger, eval.NewRedisSink(client, r.Prefix))
		logger.Debug().Str("addr", r.Addr).Msg("recording runs to redis")
	}
	return e, nil
}

// stageCmd wraps a stage runner into a command
func stageCmd(use, short string, run func(ctx context.Context, e *env) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()
			return run(cmd.Context(), e)
		},
	}
}

func ingestCmd() *cobra.Command {
	return stageCmd("ingest", "Fetch the raw CSV and store it under the raw data directory",
		func(ctx context.Context, e *env) error {
			c, err := e.cfg.Ingestion()
			if err != nil {
				return err
			}
			res, err := pipeline.RunIngestion(ctx, c, e.deps)
			if err != nil {
				return err
			}
			fmt.Printf("Ingested %d rows to %s (md5 %s)\n", res.Rows, res.Path, res.MD5)
			return nil
		})
}

func preprocessCmd() *cobra.Command {
	return stageCmd("preprocess", "Type, encode and select columns of the raw data",
		func(ctx context.Context, e *env) error {
			c, err := e.cfg.Preprocessing()
			if err != nil {
				return err
			}
			res, err := pipeline.RunPreprocessing(ctx, c, e.deps)
			if err != nil {
				return err
			}
			fmt.Printf("Wrote %d rows to %s (%d dropped)\n", res.Rows, res.Path, res.Dropped)
			return nil
		})
}

func trainCmd() *cobra.Command {
	return stageCmd("train", "Train the model, save it and register it",
		func(ctx context.Context, e *env) error {
			c, err := e.cfg.Training()
			if err != nil {
				return err
			}
			res, err := pipeline.RunTraining(ctx, c, e.deps)
			if err != nil {
				return err
			}
			fmt.Printf("=== Training ===\n")
			fmt.Printf("Version: %s\n", res.Version)
			fmt.Printf("Rows: %d train / %d test\n", res.TrainRows, res.TestRows)
			fmt.Printf("Test R2: %.4f  MAE: %.4f\n", res.R2, res.MAE)
			fmt.Printf("Saved to %s (active: %t)\n", res.ModelPath, res.Activated)
			return nil
		})
}

func evaluateCmd() *cobra.Command {
	return stageCmd("evaluate", "Score the saved model on the processed dataset",
		func(ctx context.Context, e *env) error {
			c, err := e.cfg.Evaluation()
			if err != nil {
				return err
			}
			scores, err := pipeline.RunEvaluation(ctx, c, e.deps)
			if err != nil {
				return err
			}
			printScores(scores)
			fmt.Printf("Metrics written to %s\n", c.MetricsOutputPath)
			return nil
		})
}

func runCmd() *cobra.Command {
	return stageCmd("run", "Run every stage in order",
		func(ctx context.Context, e *env) error {
			start := time.Now()
			if err := pipeline.RunAll(ctx, e.cfg, e.deps); err != nil {
				return err
			}
			e.deps.Logger.Info().Dur("elapsed", time.Since(start)).Msg("pipeline complete")
			return nil
		})
}

func printScores(r eval.Regression) {
	fmt.Printf("=== Evaluation ===\n")
	fmt.Printf("Samples: %d\n", r.NumSamples)
	fmt.Printf("R2:   %.4f", r.R2)
	if r.R2CI != [2]float64{} {
		fmt.Printf("  (95%% CI %.4f..%.4f)", r.R2CI[0], r.R2CI[1])
	}
	fmt.Printf("\nMAE:  %.4f", r.MAE)
	if r.MAECI != [2]float64{} {
		fmt.Printf("  (95%% CI %.4f..%.4f)", r.MAECI[0], r.MAECI[1])
	}
	fmt.Printf("\nRMSE: %.4f\n", r.RMSE)
}
