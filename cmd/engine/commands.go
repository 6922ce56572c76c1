package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/engine"
	"github.com/ignite/outreach-engine/internal/service/campaign"
)

// Engine is what the commands drive.
type Engine interface {
	LaunchCampaign(ctx context.Context, campaignID string) (*campaign.LaunchResult, error)
	GetCampaignStats(ctx context.Context, campaignID string) (*domain.CampaignStats, error)
	Run(ctx context.Context, t engine.Trigger) (any, error)
}

type opener func(ctx context.Context, configPath string) (Engine, func(), error)

var version = "dev"

func newRootCmd(open opener) *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "outreach-engine",
		Short:         "Operate the outbound delivery engine",
		Long:          `Launch campaigns, read their stats and run the periodic triggers by hand.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to configuration file")

	withEngine := func(fn func(ctx context.Context, eng Engine, out io.Writer, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			eng, closeFn, err := open(cmd.Context(), configPath)
			if err != nil {
				return err
			}
			defer closeFn()
			return fn(cmd.Context(), eng, cmd.OutOrStdout(), args)
		}
	}

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "outreach-engine %s\n", version)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "launch <campaign-id>",
		Short: "Materialize a draft campaign's send jobs",
		Args:  cobra.ExactArgs(1),
		RunE: withEngine(func(ctx context.Context, eng Engine, out io.Writer, args []string) error {
			res, err := eng.LaunchCampaign(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(out, res)
		}),
	})

	root.AddCommand(&cobra.Command{
		Use:   "stats <campaign-id>",
		Short: "Show job and recipient counts for a campaign",
		Args:  cobra.ExactArgs(1),
		RunE: withEngine(func(ctx context.Context, eng Engine, out io.Writer, args []string) error {
			stats, err := eng.GetCampaignStats(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(out, stats)
		}),
	})

	root.AddCommand(&cobra.Command{
		Use:       "trigger <name>",
		Short:     "Run one periodic operation now",
		Long:      `Valid names: dispatch, warmup, reputation, quota-reset, stale-sweep.`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"dispatch", "warmup", "reputation", "quota-reset", "stale-sweep"},
		RunE: withEngine(func(ctx context.Context, eng Engine, out io.Writer, args []string) error {
			t, err := engine.ParseTrigger(args[0])
			if err != nil {
				return err
			}
			res, err := eng.Run(ctx, t)
			if err != nil {
				return fmt.Errorf("%s: %w", t, err)
			}
			return printJSON(out, map[string]any{"trigger": t, "result": res})
		}),
	})

	root.AddCommand(&cobra.Command{
		Use:   "run-all",
		Short: "Run stale sweep, warm-up, reputation and dispatch in order",
		Args:  cobra.NoArgs,
		RunE: withEngine(func(ctx context.Context, eng Engine, out io.Writer, _ []string) error {
			results := make(map[engine.Trigger]any, len(engine.Triggers))
			for _, t := range engine.Triggers {
				res, err := eng.Run(ctx, t)
				if err != nil {
					return fmt.Errorf("%s: %w", t, err)
				}
				results[t] = res
			}
			return printJSON(out, results)
		}),
	})

	return root
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
