package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/andresmejia3/biogate/internal/pipeline"
	"github.com/spf13/cobra"
)

var interactiveCmd = &cobra.Command{
	Use:   "interactive",
	Short: "Prompt for face and voice samples and authenticate them",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return withSystem(cmd, func(a *app) error {
			return runInteractive(cmd.Context(), a.sys, bufio.NewReader(cmd.InOrStdin()), cmd.OutOrStdout())
		})
	},
}

func init() {
	rootCmd.AddCommand(interactiveCmd)
}

// interactiveSystem is a runner that can also list its samples.
type interactiveSystem interface {
	transactionRunner
	SampleNames() (faces, voices []string)
}

// runInteractive loops until the user exits or input ends.
func runInteractive(ctx context.Context, sys interactiveSystem, in *bufio.Reader, out io.Writer) error {
	rule := strings.Repeat("=", 60)
	fmt.Fprintf(out, "\n%s\n🔧 INTERACTIVE MODE\n%s\n", rule, rule)

	for {
		if ctx.Err() != nil {
			return nil
		}
		fmt.Fprintln(out, "\nAvailable options:")
		fmt.Fprintln(out, "1. Quick Authorized Test (Loic)")
		fmt.Fprintln(out, "2. Quick Unauthorized Test")
		fmt.Fprintln(out, "3. Enter Custom Files")
		fmt.Fprintln(out, "4. View Available Files")
		fmt.Fprintln(out, "5. Exit")

		choice, ok := prompt(in, out, "\nEnter choice (1-5): ")
		if !ok {
			return nil
		}

		switch choice {
		case "1":
			runTransaction(ctx, sys, out, pipeline.Request{Scenario: "Quick Authorized Test", Face: "loic_normal", Voice: "loic.dat"})
		case "2":
			runTransaction(ctx, sys, out, pipeline.Request{Scenario: "Quick Unauthorized Test", Face: "christine_normal", Voice: "roxane"})
		case "3":
			fmt.Fprintln(out, "\nEnter Custom Files:")
			face, ok := prompt(in, out, "Face image filename (e.g., 'irene normal.jpg'): ")
			if !ok {
				return nil
			}
			voice, ok := prompt(in, out, "Voice audio filename (e.g., 'ireneeo.wav'): ")
			if !ok {
				return nil
			}
			runTransaction(ctx, sys, out, pipeline.Request{Scenario: "Custom Test", Face: face, Voice: voice})
		case "4":
			faces, voices := sys.SampleNames()
			fmt.Fprintln(out, "\nAvailable Files:")
			fmt.Fprintf(out, "📸 Face Images: %s\n", joinOrNone(faces))
			fmt.Fprintf(out, "🎤 Voice Files: %s\n", joinOrNone(voices))
		case "5":
			fmt.Fprintln(out, "Exiting interactive mode...")
			return nil
		default:
			fmt.Fprintln(out, "Invalid choice. Please enter 1-5.")
		}

		if _, ok := prompt(in, out, "\nPress Enter to continue..."); !ok {
			return nil
		}
	}
}

// prompt prints p and reads one trimmed line. ok is false once input is exhausted.
func prompt(in *bufio.Reader, out io.Writer, p string) (string, bool) {
	fmt.Fprint(out, p)
	line, err := in.ReadString('\n')
	if err != nil && line == "" {
		return "", false
	}
	return strings.TrimSpace(line), true
}

func joinOrNone(names []string) string {
	if len(names) == 0 {
		return "(none)"
	}
	return strings.Join(names, ", ")
}
