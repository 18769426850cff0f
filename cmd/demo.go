package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/andresmejia3/biogate/internal/pipeline"
	"github.com/spf13/cobra"
)

// demoStep is one of the fixed scenarios of the full demo.
type demoStep struct {
	Title string
	Req   pipeline.Request
}

var demoSteps = []demoStep{
	{"1. UNAUTHORIZED ATTEMPT SIMULATION", pipeline.Request{Scenario: "Unauthorized - Different Users", Face: "christine_normal", Voice: "roxane"}},
	{"2. FULL AUTHORIZED TRANSACTION", pipeline.Request{Scenario: "Authorized - Same User", Face: "loic_normal", Voice: "loic.dat"}},
	{"3. ANOTHER UNAUTHORIZED ATTEMPT", pipeline.Request{Scenario: "Unauthorized - Unknown Voice", Face: "irene_normal", Voice: "jollyy.waptt"}},
	{"4. AUTHORIZED TRANSACTION - IRENE", pipeline.Request{Scenario: "Authorized - Irene", Face: "irene_normal", Voice: "ireneeo"}},
}

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run the four fixed authentication scenarios",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return withSystem(cmd, func(a *app) error {
			runDemo(cmd.Context(), a.sys, cmd.OutOrStdout())
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(demoCmd)
}

// transactionRunner is what the menus need from the pipeline.
type transactionRunner interface {
	Run(ctx context.Context, req pipeline.Request) (pipeline.Transaction, error)
}

// runTransaction runs and reports one attempt. It returns whether access was granted.
func runTransaction(ctx context.Context, sys transactionRunner, out io.Writer, req pipeline.Request) bool {
	pipeline.Header(out, req)
	tx, err := sys.Run(ctx, req)
	if err != nil {
		pipeline.ReportError(out, err)
		return false
	}
	pipeline.Report(out, tx)
	return tx.Decision.Authorized
}

// runDemo executes every scenario even when one of them fails to load.
func runDemo(ctx context.Context, sys transactionRunner, out io.Writer) {
	fmt.Fprintln(out, "\n🚀 Running full demonstration...")
	granted := 0
	for _, step := range demoSteps {
		if ctx.Err() != nil {
			fmt.Fprintln(out, "\n⚠️  Demo interrupted.")
			return
		}
		fmt.Fprintf(out, "\n%s\n", step.Title)
		if runTransaction(ctx, sys, out, step.Req) {
			granted++
		}
	}

	rule := strings.Repeat("=", 60)
	fmt.Fprintf(out, "\n%s\nDEMONSTRATION COMPLETE\n%s\n", rule, rule)
	fmt.Fprintf(out, "Transactions run: %d (granted %d, denied %d)\n", len(demoSteps), granted, len(demoSteps)-granted)
	fmt.Fprintln(out, "✅ Unauthorized attempts simulated")
	fmt.Fprintln(out, "✅ Full transaction flow demonstrated")
	fmt.Fprintln(out, "✅ Trained models utilized")
	fmt.Fprintln(out, "✅ Command-line interface provided")
}
