package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/affiliate-scout/internal/discovery"
	"github.com/sells-group/affiliate-scout/internal/model"
)

var (
	discoverCampaign   string
	discoverDifficulty string
	discoverQuota      int
	discoverLocation   string
	discoverRadius     float64
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Run discovery for one stored campaign and print the result",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		req := discovery.Request{
			CampaignID: discoverCampaign,
			Quota:      discoverQuota,
			Location:   discoverLocation,
			RadiusKM:   discoverRadius,
		}
		if discoverDifficulty != "" {
			tier, err := model.ParseTier(discoverDifficulty)
			if err != nil {
				return err
			}
			req.Difficulty = &tier
		}

		env, err := initEnv(ctx, "discover")
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Discovery.Run(ctx, req)
		if err != nil {
			return eris.Wrap(err, "discover")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	},
}

func init() {
	discoverCmd.Flags().StringVar(&discoverCampaign, "campaign", "", "campaign ID (required)")
	discoverCmd.Flags().StringVar(&discoverDifficulty, "difficulty", "", "starting tier: hard, medium or easy (default from campaign)")
	discoverCmd.Flags().IntVar(&discoverQuota, "quota", 0, "override the campaign quota")
	discoverCmd.Flags().StringVar(&discoverLocation, "location", "", "override the campaign location")
	discoverCmd.Flags().Float64Var(&discoverRadius, "radius", 0, "override the campaign search radius in km")
	_ = discoverCmd.MarkFlagRequired("campaign")
	rootCmd.AddCommand(discoverCmd)
}
