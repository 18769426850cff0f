package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/andresmejia3/biogate/internal/logging"
	"github.com/andresmejia3/biogate/internal/store"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// Options holds the persistent flags shared by every subcommand.
type Options struct {
	ModelsPath     string
	FaceThreshold  float64
	VoiceThreshold float64
	LogLevel       string
	LogFormat      string
}

var (
	// DB is the global database connection shared by subcommands. It stays nil
	// when no database is configured and the command does not require one.
	DB *store.Store
	// dbURL is the connection string
	dbURL string

	rootOpts Options
)

// Version is the application version.
const Version = "0.1.0"

const defaultManifest = "models/manifest.yaml"

// needsDB marks commands that cannot run without PostgreSQL.
const needsDB = "needs-db"

var rootCmd = &cobra.Command{
	Use:     "biogate",
	Short:   "Face + voice authentication gate with product recommendations",
	Version: Version, // This enables the --version flag
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := logging.Setup(rootOpts.LogLevel, rootOpts.LogFormat, os.Stderr); err != nil {
			return err
		}
		if err := validateRootFlags(cmd, &rootOpts); err != nil {
			return err
		}

		_, required := cmd.Annotations[needsDB]
		url := resolveDBURL(dbURL, required)
		if url == "" {
			return nil
		}

		// Use the command's context (which will be cancellable) for the connection
		var err error
		DB, err = store.New(cmd.Context(), url)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		logrus.Debug("connected to database")
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if DB != nil {
			// Use Background here because the main context might be cancelled already (due to Ctrl+C)
			// and we still need to send the "Close" command to the DB.
			DB.Close(context.Background())
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		in, out := bufio.NewReader(cmd.InOrStdin()), cmd.OutOrStdout()
		return runMenu(in, out,
			func() error {
				return withSystem(cmd, func(a *app) error {
					runDemo(cmd.Context(), a.sys, out)
					return nil
				})
			},
			func() error {
				return withSystem(cmd, func(a *app) error {
					return runInteractive(cmd.Context(), a.sys, in, out)
				})
			},
		)
	},
}

func Execute() {
	// Create a context that listens for Ctrl+C (SIGINT) or Kill (SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// This tells Cobra not to print the version in the help text, which is cleaner.
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&dbURL, "db", "", "PostgreSQL connection string (default: built from POSTGRES_* env vars)")
	pf.StringVarP(&rootOpts.ModelsPath, "models", "m", "", "Path to the model manifest (default: $BIOGATE_MODELS or "+defaultManifest+")")
	pf.Float64Var(&rootOpts.FaceThreshold, "face-threshold", 0.5, "Minimum face confidence (overrides the manifest)")
	pf.Float64Var(&rootOpts.VoiceThreshold, "voice-threshold", 0.5, "Minimum voice confidence (overrides the manifest)")
	pf.StringVar(&rootOpts.LogLevel, "log-level", "", "Log level: debug, info, warn, error (default: $LOG_LEVEL or warn)")
	pf.StringVar(&rootOpts.LogFormat, "log-format", "text", "Log format: text or json")
}

// resolveDBURL picks the flag, then the POSTGRES_* environment. Commands that
// require a database fall back to a local default; the rest run without one.
func resolveDBURL(flag string, required bool) string {
	if flag != "" {
		return flag
	}
	if host := os.Getenv("POSTGRES_HOST"); host != "" {
		user := os.Getenv("POSTGRES_USER")
		pass := os.Getenv("POSTGRES_PASSWORD")
		name := os.Getenv("POSTGRES_DB")
		port := os.Getenv("POSTGRES_PORT")
		if port == "" {
			port = "5432"
		}
		return fmt.Sprintf("postgres://%s:%s@%s:%s/%s", user, pass, host, port, name)
	}
	if required {
		return "postgres://localhost:5432/biogate"
	}
	return ""
}

func validateRootFlags(cmd *cobra.Command, opts *Options) error {
	for _, name := range []string{"face-threshold", "voice-threshold"} {
		f := cmd.Flags().Lookup(name)
		if f == nil || !f.Changed {
			continue
		}
		v := opts.FaceThreshold
		if name == "voice-threshold" {
			v = opts.VoiceThreshold
		}
		if v < 0 || v > 1 {
			return fmt.Errorf("--%s must be between 0.0 and 1.0", name)
		}
	}
	return nil
}

// runMenu is the entry point when biogate is started without a subcommand.
// It re-prompts until it gets a valid choice.
func runMenu(in *bufio.Reader, out io.Writer, demo, interactive func() error) error {
	fmt.Fprintln(out, "BIOMETRIC AUTHENTICATION SYSTEM DEMO")
	fmt.Fprintln(out, strings.Repeat("=", 50))

	for {
		fmt.Fprintln(out, "\nChoose mode:")
		fmt.Fprintln(out, "1. Run Full Demo (All Test Scenarios)")
		fmt.Fprintln(out, "2. Interactive Mode (Enter Your Own Inputs)")
		choice, ok := prompt(in, out, "\nEnter choice (1 or 2): ")
		if !ok {
			return nil
		}

		switch choice {
		case "1":
			return demo()
		case "2":
			return interactive()
		default:
			fmt.Fprintln(out, "Invalid choice. Please enter 1 or 2.")
		}
	}
}
