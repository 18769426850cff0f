package cmd

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/andresmejia3/biogate/internal/pipeline"
	"github.com/andresmejia3/biogate/internal/utils"
	"github.com/spf13/cobra"
)

type authOptions struct {
	Face     string
	Voice    string
	Scenario string
	JSON     bool
}

var authOpts authOptions

// errNotAuthorized makes the process exit non-zero for a rejected attempt.
var errNotAuthorized = errors.New("access denied")

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Authenticate one face sample and one voice sample",
	Example: `  biogate auth --face "loic normal.jpg" --voice loic.dat.wav
  biogate auth --face christine_normal --voice roxane --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		if err := validateAuthFlags(&authOpts); err != nil {
			return err
		}
		return withSystem(cmd, func(a *app) error {
			return runAuth(cmd, a.sys, authOpts)
		})
	},
}

func init() {
	authCmd.Flags().StringVarP(&authOpts.Face, "face", "f", "", "Face sample name or image path")
	authCmd.Flags().StringVarP(&authOpts.Voice, "voice", "v", "", "Voice sample name or WAV path")
	authCmd.Flags().StringVar(&authOpts.Scenario, "scenario", "", "Label recorded with the attempt")
	authCmd.Flags().BoolVar(&authOpts.JSON, "json", false, "Print the transaction as JSON")
	rootCmd.AddCommand(authCmd)
}

func validateAuthFlags(opts *authOptions) error {
	if opts.Face == "" || opts.Voice == "" {
		return fmt.Errorf("both --face and --voice are required")
	}
	return nil
}

func runAuth(cmd *cobra.Command, sys transactionRunner, opts authOptions) error {
	out := cmd.OutOrStdout()
	req := pipeline.Request{Scenario: opts.Scenario, Face: opts.Face, Voice: opts.Voice}

	if !opts.JSON {
		if !runTransaction(cmd.Context(), sys, out, req) {
			cmd.SilenceErrors = true
			return errNotAuthorized
		}
		return nil
	}

	tx, err := sys.Run(cmd.Context(), req)
	if err != nil {
		utils.ShowError("Authentication could not run", err, nil)
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(tx); err != nil {
		return err
	}
	if !tx.Decision.Authorized {
		cmd.SilenceErrors = true
		return errNotAuthorized
	}
	return nil
}
