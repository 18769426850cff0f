package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

var samplesCmd = &cobra.Command{
	Use:   "samples",
	Short: "List the face and voice samples the loaders can resolve",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return withSystem(cmd, func(a *app) error {
			faces, voices := a.sys.SampleNames()
			printSamples(cmd.OutOrStdout(), faces, voices)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(samplesCmd)
}

func printSamples(out io.Writer, faces, voices []string) {
	fmt.Fprintf(out, "📸 Face samples (%d):\n", len(faces))
	for _, f := range faces {
		fmt.Fprintf(out, "   %s\n", f)
	}
	fmt.Fprintf(out, "🎤 Voice samples (%d):\n", len(voices))
	for _, v := range voices {
		fmt.Fprintf(out, "   %s\n", v)
	}
}
