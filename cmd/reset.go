package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/krevetka/krevetka/internal/utils"
	"github.com/krevetka/krevetka/pkg/clock"
	"github.com/krevetka/krevetka/pkg/platform"
	"github.com/krevetka/krevetka/pkg/platform/browser"
	"github.com/krevetka/krevetka/pkg/progress"
)

// resetCmd represents the reset command
var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset today's taps in the local store",
	Long: `Reset today's tap count in the local store, the same as the in-app admin reset.
With --all every krevetka key is removed: collection, level, streak and analytics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")
		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		db, closeStore, err := openStore()
		if err != nil {
			return err
		}
		defer closeStore()

		if all {
			n, err := db.Clear(ctx, browser.DefaultPrefix)
			if err != nil {
				return fmt.Errorf("could not clear the store: %w", err)
			}
			utils.Log.Infof("removed %d keys", n)
			fmt.Fprintf(out, "Store cleared (%d keys).\n", n)
			return nil
		}

		adapter := platform.NewAdapter(browser.New(browser.Config{Store: db}), platform.AdapterConfig{Log: utils.Log})
		persist := progress.NewPersister(adapter, utils.Log)
		quota := progress.NewQuota(clock.Real{}, persist, viper.GetInt("daily_limit"))
		quota.Load(ctx, adapter)
		before := quota.Snapshot().Count
		quota.AdminReset()
		if err := persist.Close(ctx); err != nil {
			return err
		}
		if persist.Failures() > 0 {
			return fmt.Errorf("could not write the reset to the store")
		}
		fmt.Fprintf(out, "Today's taps reset (%d -> 0).\n", before)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(resetCmd)
	resetCmd.Flags().Bool("all", false, "Remove every stored key, not just today's taps")
}
