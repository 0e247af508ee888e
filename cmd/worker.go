package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"github.com/sells-group/affiliate-scout/internal/workflow"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the Temporal worker for discovery and import workflows",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context(), "worker")
		if err != nil {
			return err
		}
		defer env.Close()

		w := worker.New(env.Temporal, cfg.Temporal.TaskQueue, worker.Options{
			MaxConcurrentActivityExecutionSize: cfg.Discovery.EvaluateConcurrency * 4,
		})
		workflow.Register(w, &workflow.Activities{
			Store:     env.Store,
			Discovery: env.Discovery,
			Importer:  env.Importer,
			Notifier:  env.Notifier,
		})

		zap.L().Info("starting worker",
			zap.String("task_queue", cfg.Temporal.TaskQueue),
			zap.String("namespace", cfg.Temporal.Namespace),
		)
		if err := w.Run(worker.InterruptCh()); err != nil {
			return eris.Wrap(err, "worker run")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
