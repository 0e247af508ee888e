package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/affiliate-scout/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "affiliate-scout",
	Short: "Affiliate and influencer discovery for product campaigns",
	Long:  "Searches YouTube, X and Stripe for promoters of a product, scores them with tiered Claude rubrics and keeps a deduplicated candidate list per campaign.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
