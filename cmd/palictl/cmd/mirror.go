package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"palimpsest/api/internal/mirror"
)

var mirrorLimit int

var mirrorCmd = &cobra.Command{
	Use:   "mirror",
	Short: "Inspect the plain-file mirror of the user's documents",
}

var mirrorLogCmd = &cobra.Command{
	Use:   "log",
	Short: "List the commits of the user's mirror repository",
	Long: `List the commits of the user's mirror repository, newest first.
Only available when PALIMPSEST_MIRROR=git.

Examples:
  palictl -u avery mirror log -n 10`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, ok := be.Mirror.(*mirror.Git)
		if !ok {
			return fmt.Errorf("mirror log needs the git mirror; set PALIMPSEST_MIRROR=git")
		}
		commits, err := repo.Log(userID, mirrorLimit)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		for _, c := range commits {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				c.Hash, c.CreatedAt.Format(time.DateTime), c.Author, strings.TrimSpace(c.Message))
		}
		return w.Flush()
	},
}

func init() {
	mirrorLogCmd.Flags().IntVarP(&mirrorLimit, "limit", "n", 0, "maximum number of commits (0 for all)")
	mirrorCmd.AddCommand(mirrorLogCmd)
	rootCmd.AddCommand(mirrorCmd)
}
