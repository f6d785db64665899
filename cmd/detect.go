package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/krevetka/krevetka/pkg/platform"
)

// detectCmd represents the detect command
var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Print the platform a launch would be detected as",
	Example: `  krevetka detect --launch-url "https://app.example/?vk_user_id=1&sign=x"
  krevetka detect --referrer https://m.vk.com/app54437141
  krevetka detect --telegram --init-data "user=%7B%22id%22%3A7%7D"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		launchURL, _ := cmd.Flags().GetString("launch-url")
		referrer, _ := cmd.Flags().GetString("referrer")
		tg, _ := cmd.Flags().GetBool("telegram")
		initData, _ := cmd.Flags().GetString("init-data")

		env := platform.EnvironmentFromURL(launchURL, referrer)
		if tg {
			env.TelegramWebApp = true
		}
		if initData != "" {
			env.TelegramInitData = initData
		}
		fmt.Fprintln(cmd.OutOrStdout(), platform.Detect(env))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(detectCmd)
	detectCmd.Flags().String("launch-url", "", "Launch URL of the app")
	detectCmd.Flags().String("referrer", "", "Referrer of the launch")
	detectCmd.Flags().Bool("telegram", false, "The Telegram WebApp object is present")
	detectCmd.Flags().String("init-data", "", "Raw Telegram initData")
}
