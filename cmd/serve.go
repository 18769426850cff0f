package cmd

import (
	"fmt"
	"os"

	"github.com/andresmejia3/biogate/internal/server"
	"github.com/spf13/cobra"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Expose the authentication pipeline over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return withSystem(cmd, func(a *app) error {
			fmt.Fprintf(os.Stderr, "🌐 Listening on %s (Ctrl+C to stop)\n", serveAddr)
			return server.New(a.sys).ListenAndServe(cmd.Context(), serveAddr)
		})
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "Listen address")
	rootCmd.AddCommand(serveCmd)
}
