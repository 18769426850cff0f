package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/andresmejia3/biogate/internal/types"
	"github.com/andresmejia3/biogate/internal/utils"
	"github.com/spf13/cobra"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:         "history",
	Short:       "Show recorded authentication attempts, newest first",
	Annotations: map[string]string{needsDB: ""},
	Run: func(cmd *cobra.Command, args []string) {
		attempts, err := DB.ListAttempts(cmd.Context(), historyLimit)
		if err != nil {
			utils.Die("Failed to list attempts", err, nil)
		}
		printHistory(cmd.OutOrStdout(), attempts)
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum number of attempts to show (0 = all)")
	rootCmd.AddCommand(historyCmd)
}

func printHistory(out io.Writer, attempts []types.Attempt) {
	if len(attempts) == 0 {
		fmt.Fprintln(out, "No authentication attempts recorded.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "TIME\tFACE\tVOICE\tRESULT\tIDENTITY\tRECOMMENDED")
	fmt.Fprintln(w, "----\t----\t----\t------\t--------\t-----------")
	for _, a := range attempts {
		result := "❌ " + string(a.Decision.Reason)
		if a.Decision.Authorized {
			result = "✅ " + string(a.Decision.Reason)
		}
		fmt.Fprintf(w, "%s\t%s (%s %.2f)\t%s (%s %.2f)\t%s\t%s\t%s\n",
			a.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			a.FaceSample, a.Face.Label, a.Face.Confidence,
			a.VoiceSample, a.Voice.Label, a.Voice.Confidence,
			result,
			orDash(string(a.Decision.Identity)),
			orDash(a.Recommendation),
		)
	}
	w.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
