package cmd

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/andresmejia3/biogate/internal/utils"
	"github.com/spf13/cobra"
)

var resetYes bool

var resetCmd = &cobra.Command{
	Use:         "reset",
	Short:       "Drop the profile and attempt tables",
	Long:        "Clears all stored customer profiles and the authentication history. The tables are recreated on the next run.",
	Annotations: map[string]string{needsDB: ""},
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		reader := bufio.NewReader(cmd.InOrStdin())

		if !resetYes && !confirm(reader, out, "⚠️  Are you sure you want to DROP all database tables?") {
			fmt.Fprintln(out, "Aborted.")
			return
		}

		fmt.Fprintln(out, "🗑️  Clearing Database...")
		if err := DB.Reset(cmd.Context()); err != nil {
			utils.Die("Failed to reset database", err, nil)
		}
		fmt.Fprintln(out, "✨ System Reset Complete.")
	},
}

func init() {
	resetCmd.Flags().BoolVarP(&resetYes, "yes", "y", false, "Skip the confirmation prompt")
	rootCmd.AddCommand(resetCmd)
}

func confirm(r *bufio.Reader, out io.Writer, question string) bool {
	fmt.Fprintf(out, "%s [y/N]: ", question)
	res, _ := r.ReadString('\n')
	res = strings.TrimSpace(strings.ToLower(res))
	return res == "y" || res == "yes"
}
