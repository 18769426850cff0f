package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/andresmejia3/biogate/internal/profile"
	"github.com/andresmejia3/biogate/internal/store"
	"github.com/andresmejia3/biogate/internal/types"
	"github.com/andresmejia3/biogate/internal/utils"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var profilesKeyColumn string

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "Manage customer profiles stored in PostgreSQL",
}

var profilesImportCmd = &cobra.Command{
	Use:         "import <merged_customer_csv>",
	Short:       "Load the merged customer CSV into the database",
	Args:        cobra.ExactArgs(1),
	Annotations: map[string]string{needsDB: ""},
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		src, err := profile.LoadCSV(args[0], profilesKeyColumn)
		if err != nil {
			utils.ShowError("Failed to read customer CSV", err, nil)
			return err
		}
		n, err := importProfiles(cmd.Context(), DB, src.All(), os.Stderr)
		if err != nil {
			utils.ShowError("Failed to import profiles", err, nil)
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✅ Imported %d customer profiles\n", n)
		return nil
	},
}

var profilesListCmd = &cobra.Command{
	Use:         "list",
	Short:       "List stored customer profiles",
	Annotations: map[string]string{needsDB: ""},
	Run: func(cmd *cobra.Command, args []string) {
		profiles, err := DB.ListProfiles(cmd.Context())
		if err != nil {
			utils.Die("Failed to list profiles", err, nil)
		}
		printProfiles(cmd.OutOrStdout(), profiles)
	},
}

func init() {
	profilesImportCmd.Flags().StringVar(&profilesKeyColumn, "key-column", profile.DefaultKeyColumn, "Customer id column")
	profilesCmd.AddCommand(profilesImportCmd, profilesListCmd)
	rootCmd.AddCommand(profilesCmd)
}

// profileWriter is the part of the store the import needs.
type profileWriter interface {
	UpsertProfile(ctx context.Context, p types.CustomerProfile) error
}

func importProfiles(ctx context.Context, db profileWriter, profiles []types.CustomerProfile, progress io.Writer) (int, error) {
	bar := progressbar.NewOptions(len(profiles),
		progressbar.OptionSetDescription("📥 Importing profiles"),
		progressbar.OptionSetWriter(progress),
		progressbar.OptionShowCount(),
	)
	n := 0
	for _, p := range profiles {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		if err := db.UpsertProfile(ctx, p); err != nil {
			return n, fmt.Errorf("customer %s: %w", p.CustomerID, err)
		}
		n++
		bar.Add(1)
	}
	bar.Finish()
	fmt.Fprintln(progress)
	return n, nil
}

func printProfiles(out io.Writer, profiles []store.ProfileSummary) {
	if len(profiles) == 0 {
		fmt.Fprintln(out, "No customer profiles found in database.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "CUSTOMER\tATTRIBUTES\tLABELS\tUPDATED")
	fmt.Fprintln(w, "--------\t----------\t------\t-------")
	for _, p := range profiles {
		fmt.Fprintf(w, "%s\t%d\t%d\t%s\n", p.CustomerID, p.Attributes, p.Labels, p.UpdatedAt.Local().Format("2006-01-02 15:04"))
	}
	w.Flush()
}
