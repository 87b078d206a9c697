package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"palimpsest/api/internal/patch"
)

var (
	logBranch  string
	logLimit   int
	branchFrom string
)

var logCmd = &cobra.Command{
	Use:   "log <file-id>",
	Short: "List versions, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		versions, err := documents().History(context.Background(), args[0], userID, logBranch, logLimit)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		for _, v := range versions {
			fmt.Fprintf(w, "%s\t%s\t+%d -%d\t%s\n",
				v.ID, v.CreatedAt.Format(time.DateTime), v.Stats.Added, v.Stats.Removed, v.Message)
		}
		return w.Flush()
	},
}

var branchCmd = &cobra.Command{
	Use:   "branch <file-id> [name]",
	Short: "List branches, or create one",
	Long: `Without a name, list the branches of a document; the current one is
marked with '*'. With a name, create a branch at --from or the current head.
Creating a branch does not switch to it.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		if len(args) == 2 {
			b, err := documents().CreateBranch(ctx, args[0], userID, args[1], branchFrom)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s at %s\n", b.Name, b.Head)
			return nil
		}
		list, err := documents().Branches(ctx, args[0], userID)
		if err != nil {
			return err
		}
		for _, b := range list.Branches {
			mark := " "
			if b.Name == list.Current {
				mark = "*"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\t%s\n", mark, b.Name, b.Head)
		}
		return nil
	},
}

var switchCmd = &cobra.Command{
	Use:   "switch <file-id> <branch>",
	Short: "Make a branch current",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		rec, err := documents().SwitchBranch(context.Background(), args[0], userID, args[1])
		if err != nil {
			return err
		}
		printRecord(cmd, rec.Head, rec.Branch)
		return nil
	},
}

var checkoutCmd = &cobra.Command{
	Use:   "checkout <file-id> <version-id>",
	Short: "Print the content of any version",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := documents().Checkout(context.Background(), args[0], userID, args[1])
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), text)
		return nil
	},
}

var diffCmd = &cobra.Command{
	Use:   "diff <file-id> <from-version> [to-version]",
	Short: "Show the unified diff between two versions",
	Long: `Print the unified diff between two versions. Without to-version the
diff runs to the current content.`,
	Args: cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		fileID := args[0]
		from, err := documents().Checkout(ctx, fileID, userID, args[1])
		if err != nil {
			return err
		}
		var to string
		if len(args) == 3 {
			to, err = documents().Checkout(ctx, fileID, userID, args[2])
		} else {
			to, err = documents().GetCurrentContent(ctx, fileID, userID)
		}
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), patch.Diff(from, to, fileID+".md"))
		return nil
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify <file-id>",
	Short: "Replay the head and compare it with the cached record and mirror",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		report, err := documents().Verify(context.Background(), args[0], userID)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
		if !report.OK() {
			return fmt.Errorf("document %s drifted from its history", args[0])
		}
		return nil
	},
}

func init() {
	logCmd.Flags().StringVarP(&logBranch, "branch", "b", "", "branch to list (default current)")
	logCmd.Flags().IntVarP(&logLimit, "limit", "n", 0, "maximum number of versions (0 for all)")
	branchCmd.Flags().StringVar(&branchFrom, "from", "", "version the new branch starts at")
	rootCmd.AddCommand(logCmd, branchCmd, switchCmd, checkoutCmd, diffCmd, verifyCmd)
}
