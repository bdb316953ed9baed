// Package cli implements the modelrouter command line: the HTTP service,
// one-shot training from the terminal and routing dry runs.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/seantiz/modelrouter/internal/backend"
	"github.com/seantiz/modelrouter/internal/backend/learn"
	"github.com/seantiz/modelrouter/internal/config"
	"github.com/seantiz/modelrouter/internal/jobs"
	"github.com/seantiz/modelrouter/internal/model"
	"github.com/seantiz/modelrouter/internal/router"
)

// Version is reported by --version.
var Version = "0.1.0"

// BuildCLI returns the root command.
func BuildCLI() *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:           "modelrouter",
		Short:         "Route prediction requests across interchangeable regression backends",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "YAML config file (MODELROUTER_* variables override it)")

	root.AddCommand(buildServeCommand(&configFile))
	root.AddCommand(buildTrainCommand(&configFile))
	root.AddCommand(buildRouteCommand(&configFile))
	return root
}

func buildServeCommand(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configFile)
			if err != nil {
				return err
			}
			logger := config.NewLogger(cmd.ErrOrStderr(), cfg.LogLevel)
			logger.Info("modelrouter: starting",
				"listen_addr", cfg.ListenAddr,
				"db_path", cfg.DBPath,
				"redis", cfg.RedisURL != "",
			)

			app, err := NewApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer app.Close()

			return app.Server().Run()
		},
	}
}

func buildTrainCommand(configFile *string) *cobra.Command {
	var params model.TrainParams

	cmd := &cobra.Command{
		Use:   "train <backend|all>",
		Short: "Train a backend, or every backend, and persist the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := params.Validate(); err != nil {
				return err
			}
			cfg, err := config.Load(*configFile)
			if err != nil {
				return err
			}
			logger := config.NewLogger(cmd.ErrOrStderr(), cfg.LogLevel)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			app, err := NewApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer app.Close()

			spec := model.JobSpec{Backend: args[0], Params: params.WithDefaults()}
			if spec.Backend != model.TrainAll && !app.Registry.Has(spec.Backend) {
				return fmt.Errorf("%w: %q", backend.ErrUnknownBackend, spec.Backend)
			}

			out := cmd.OutOrStdout()
			last := -10
			res, err := jobs.Train(ctx, app.Registry, spec, func(current, total int, message string) {
				p := model.NewProgress(current, total, message)
				if p.Percent < last+10 && p.Percent != 100 {
					return
				}
				last = p.Percent
				fmt.Fprintf(out, "%3d%% %s\n", p.Percent, p.Message)
			})
			if err != nil {
				return err
			}
			return printJSON(out, res)
		},
	}

	cmd.Flags().IntVar(&params.Epochs, "epochs", model.DefaultEpochs, "training epochs")
	cmd.Flags().Float64Var(&params.LearningRate, "learning-rate", model.DefaultLearningRate, "optimizer learning rate")
	cmd.Flags().IntSliceVar(&params.HiddenSizes, "hidden", nil, "hidden layer sizes for the mlp backend (default 64,32,16)")
	return cmd
}

func buildRouteCommand(configFile *string) *cobra.Command {
	var (
		preference                     string
		priority, datasetSize, useCase string
		features                       map[string]string
	)

	cmd := &cobra.Command{
		Use:   "route",
		Short: "Print the routing decision for a request without predicting",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configFile)
			if err != nil {
				return err
			}
			logger := config.NewLogger(cmd.ErrOrStderr(), cfg.LogLevel)

			vec := make(map[string]float64, len(features))
			for k, v := range features {
				if !learn.IsFeature(k) {
					return fmt.Errorf("unknown feature %q", k)
				}
				f, err := strconv.ParseFloat(v, 64)
				if err != nil {
					return fmt.Errorf("feature %s: %w", k, err)
				}
				vec[k] = f
			}

			roles := router.DefaultRoles()
			r, err := router.NewRouter(roles, builtins, router.DefaultWeights(roles), backend.DefaultCatalog(), logger)
			if err != nil {
				return err
			}
			res, err := r.Route(vec, preference, model.NewCriteria(priority, datasetSize, useCase))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}

	f := cmd.Flags()
	f.StringVar(&preference, "preference", model.PreferenceAuto, "explicit backend, ensemble or auto")
	f.StringVar(&priority, "priority", "", "speed, accuracy, experimental or balanced")
	f.StringVar(&datasetSize, "dataset-size", "", "small, medium or large")
	f.StringVar(&useCase, "use-case", "", "production, research or demo")
	f.StringToStringVar(&features, "feature", nil, "named feature values, e.g. MedInc=3.2")
	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
