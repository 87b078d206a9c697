package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"palimpsest/api/internal/backend"
	"palimpsest/api/internal/config"
	"palimpsest/api/internal/document"
)

var (
	userID string
	be     *backend.Backend
)

var rootCmd = &cobra.Command{
	Use:   "palictl",
	Short: "Inspect and edit versioned documents",
	Long: `palictl works on the document histories of the configured backends
without going through the API server.

Every command acts on one document of one user; the user defaults to
$PALIMPSEST_USER.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip initialization for help commands
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}
		if userID == "" {
			return fmt.Errorf("a user is required: pass --user or set PALIMPSEST_USER")
		}
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		be, err = backend.Open(context.Background(), cfg, cfg.Logger(os.Stderr))
		return err
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if be == nil {
			return nil
		}
		err := be.Close()
		be = nil
		return err
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&userID, "user", "u", os.Getenv("PALIMPSEST_USER"), "owner of the document")
}

func documents() *document.Service {
	return be.Documents
}

// readInput reads a file argument; "-" is stdin.
func readInput(cmd *cobra.Command, path string) (string, error) {
	if path == "-" {
		raw, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(raw), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(raw), nil
}

func printRecord(cmd *cobra.Command, head, branch string) {
	fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", head, branch)
}
