package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/krevetka/krevetka/internal/utils"
	"github.com/krevetka/krevetka/pkg/progress"
	"github.com/krevetka/krevetka/pkg/session"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

var cfgFile string

const (
	LOGO = `
	    ,__,
	   (o  o)~~    krevetka
	  /(    )\    the shrimp of fate
	    ^^^^
`
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "krevetka",
	Short: "The shrimp of fate, in your terminal.",
	Long: LOGO + `krevetka draws fate cards, keeps your collection, streak and level, and
runs the same session engine the VK and Telegram mini apps use.`,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.krevetka.yaml)")

	rootCmd.PersistentFlags().StringP("loglevel", "l", "info", "Set log level. Available: debug, info, warn, error, fatal")
	rootCmd.PersistentFlags().String("store", "", "Local store path (default is ~/.config/krevetka/krevetka.sqlite)")
	rootCmd.PersistentFlags().StringP("platform", "p", "", "Force a platform profile: vk, telegram, browser, dev")
	viper.BindPFlag("storage.path", rootCmd.PersistentFlags().Lookup("store"))
	viper.BindPFlag("platform", rootCmd.PersistentFlags().Lookup("platform"))
}

func setDefaults() {
	d := session.DefaultConfig()
	viper.SetDefault("daily_limit", d.DailyLimit)
	viper.SetDefault("bonus_taps", d.BonusTaps)
	viper.SetDefault("handshake_timeout", d.HandshakeTimeout)
	viper.SetDefault("reveal_delay", d.RevealDelay)
	viper.SetDefault("diagnosis_delay", d.DiagnosisDelay)
	viper.SetDefault("achievement_toast", d.AchievementToast)
	viper.SetDefault("levelup_toast", d.LevelUpToast)
	viper.SetDefault("notify_after_taps", progress.DefaultAskAfterTaps)
	viper.SetDefault("winback_after", d.WinBackAfter)
	viper.SetDefault("platform", "")
	viper.SetDefault("storage.path", "")
	viper.SetDefault("content.path", "")
	viper.SetDefault("analytics.endpoint", "")
	viper.SetDefault("analytics.enabled", false)
	viper.SetDefault("invoice.endpoint", "")
	viper.SetDefault("vk.admin_ids", []string{})
	viper.SetDefault("vk.app_url", "")
	viper.SetDefault("telegram.admin_ids", []string{})
	viper.SetDefault("telegram.bot_username", "")
	viper.SetDefault("browser.app_url", "")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	setDefaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		viper.AddConfigPath(home)
		viper.SetConfigName(".krevetka")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("KREVETKA")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; create it with defaults.
			home, _ := homedir.Dir()
			configPath := home + "/.krevetka.yaml"
			if err := viper.SafeWriteConfigAs(configPath); err != nil {
				fmt.Fprintf(os.Stderr, "Error creating config file: %s\n", err)
			}
		}
	}

	// Init log library
	levelString, _ := rootCmd.PersistentFlags().GetString("loglevel")
	utils.SetLogLevel(levelString)
}

// sessionConfig reads the session tunables from viper.
func sessionConfig() (session.Config, error) {
	cfg := session.Config{
		DailyLimit:       viper.GetInt("daily_limit"),
		BonusTaps:        viper.GetInt("bonus_taps"),
		HandshakeTimeout: viper.GetDuration("handshake_timeout"),
		RevealDelay:      viper.GetDuration("reveal_delay"),
		DiagnosisDelay:   viper.GetDuration("diagnosis_delay"),
		AchievementToast: viper.GetDuration("achievement_toast"),
		LevelUpToast:     viper.GetDuration("levelup_toast"),
		NotifyAfterTaps:  viper.GetInt("notify_after_taps"),
		WinBackAfter:     viper.GetDuration("winback_after"),
	}
	if err := cfg.Validate(); err != nil {
		return session.Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
