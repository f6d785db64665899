package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/krevetka/krevetka/internal/utils"
	"github.com/krevetka/krevetka/pkg/collector"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the development analytics and invoice collector",
	Long: `Run a local backend for the mini app. It accepts tracker events on ` + collector.TrackPath + `,
answers invoice requests on ` + collector.InvoicePath + ` and exposes counters on ` + collector.MetricsPath + `.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		listenAddr, _ := cmd.Flags().GetString("listen")
		user, _ := cmd.Flags().GetString("user")
		pass, _ := cmd.Flags().GetString("pass")
		invoiceBase, _ := cmd.Flags().GetString("invoice-base")

		cat, err := loadCatalog()
		if err != nil {
			return err
		}
		c := collector.New(collector.Config{
			Catalog:     cat,
			InvoiceBase: invoiceBase,
			Username:    user,
			Password:    pass,
			Log:         utils.Log,
		})

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return c.ListenAndServe(ctx, listenAddr)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("listen", ":8080", "HTTP listen address")
	serveCmd.Flags().String("user", "", "Username protecting /metrics")
	serveCmd.Flags().String("pass", "", "Password protecting /metrics")
	serveCmd.Flags().String("invoice-base", "", "Prefix for generated invoice links")
}
