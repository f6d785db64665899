package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/krevetka/krevetka/internal/utils"
	"github.com/krevetka/krevetka/pkg/analytics"
	"github.com/krevetka/krevetka/pkg/clock"
	"github.com/krevetka/krevetka/pkg/platform"
	"github.com/krevetka/krevetka/pkg/platform/browser"
	"github.com/krevetka/krevetka/pkg/progress"
	"github.com/krevetka/krevetka/pkg/validate"
)

// statsCmd represents the stats command
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Prints level, streak, collection and analytics from the local store.",
	Long:  "Prints level, streak, collection and analytics from the local store. Nothing is written.",
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, _ := cmd.Flags().GetBool("raw")
		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		db, closeStore, err := openStore()
		if err != nil {
			return err
		}
		defer closeStore()

		if raw {
			records, err := db.Dump(ctx, browser.DefaultPrefix)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Fprintln(out, "The store is empty.")
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "KEY\tUPDATED\tVALUE\t")
			for _, r := range records {
				fmt.Fprintf(w, "%s\t%s\t%s\t\n", r.Key, r.UpdatedAt.Format("2006-01-02 15:04:05"), truncate(r.Value, 60))
			}
			w.Flush()
			return nil
		}

		cat, err := loadCatalog()
		if err != nil {
			return err
		}
		adapter := platform.NewAdapter(browser.New(browser.Config{Store: db}), platform.AdapterConfig{Log: utils.Log})
		keys := append(append([]string{}, progress.AllKeys...), analytics.KeyRollup)
		vals := adapter.StorageGet(ctx, keys)

		level := validate.Level(vals[progress.KeyLevel])
		lp := progress.ProgressFor(level.XP)
		fmt.Fprintf(out, "Level %d %s %s, %d xp (%d%%)\n", lp.Current.Level, lp.Current.Emoji, lp.Current.Title, lp.XP, lp.Percent)

		streak := validate.Streak(vals[progress.KeyStreakCount])
		fmt.Fprintf(out, "Streak %d (%s), last visit %s\n", streak, progress.TierFor(streak), orDash(validate.Date(vals[progress.KeyLastVisitDate])))

		today := clock.Day(clock.Real{}.Now())
		taps := 0
		if validate.Date(vals[progress.KeyLastTapDate]) == today {
			taps = validate.ParseInt(vals[progress.KeyTapsToday])
		}
		fmt.Fprintf(out, "Taps today %d, lifetime %d\n", taps, validate.ParseInt(vals[progress.KeyTotalTaps]))

		coll := progress.NewCollection(clock.Real{}, nil, cat, utils.Log)
		coll.Load(ctx, adapter)
		renderCollection(out, coll.Stats(), cat)

		unlocked := validate.Achievements(vals[progress.KeyAchievements])
		fmt.Fprintf(out, "Achievements %d/%d\n", len(unlocked), len(progress.Definitions))
		for _, id := range unlocked {
			if a, ok := progress.Definition(id); ok {
				fmt.Fprintf(out, "  %s %s: %s\n", a.Emoji, a.Title, a.Description)
			}
		}

		fmt.Fprintln(out)
		renderSummary(out, analytics.ParseSummary(vals[analytics.KeyRollup]))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.Flags().Bool("raw", false, "Dump every stored key instead")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
