package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"palimpsest/api/internal/document"
)

var initCmd = &cobra.Command{
	Use:   "init <file-id> [content-file]",
	Short: "Start the history of a document",
	Long: `Create a document and its root version. The initial content is read
from content-file ("-" for stdin); without it the document starts empty.

Examples:
  palictl init plan plan.md
  cat plan.md | palictl init plan -`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		content := ""
		if len(args) == 2 {
			var err error
			if content, err = readInput(cmd, args[1]); err != nil {
				return err
			}
		}
		rec, err := documents().CreateContext(context.Background(), args[0], userID, content)
		if err != nil {
			return err
		}
		printRecord(cmd, rec.Head, rec.Branch)
		return nil
	},
}

var catCmd = &cobra.Command{
	Use:   "cat <file-id>",
	Short: "Print the current content",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		content, err := documents().GetCurrentContent(context.Background(), args[0], userID)
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), content)
		return nil
	},
}

var updateCmd = &cobra.Command{
	Use:   "update <file-id> <content-file>",
	Short: "Replace the content and commit the difference",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		content, err := readInput(cmd, args[1])
		if err != nil {
			return err
		}
		rec, err := documents().UpdateFile(context.Background(), args[0], userID, content)
		if err != nil {
			return err
		}
		if rec == nil {
			return document.ErrContextNotFound
		}
		printRecord(cmd, rec.Head, rec.Branch)
		return nil
	},
}

var applyCmd = &cobra.Command{
	Use:   "apply <file-id> <patch-file>",
	Short: "Apply a unified diff to the current content",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		patchText, err := readInput(cmd, args[1])
		if err != nil {
			return err
		}
		rec, err := documents().ApplyPatch(context.Background(), args[0], userID, patchText)
		if err != nil {
			return err
		}
		if rec == nil {
			return document.ErrContextNotFound
		}
		printRecord(cmd, rec.Head, rec.Branch)
		return nil
	},
}

var commitMessage string

var commitCmd = &cobra.Command{
	Use:   "commit <file-id> <patch-file>",
	Short: "Commit a unified diff with a message",
	Long: `Validate a patch against the current content and commit it.

Examples:
  palictl commit plan fix.patch -m "Fix the goals"
  git diff --no-index old.md new.md | palictl commit plan - -m "Rewrite"`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		patchText, err := readInput(cmd, args[1])
		if err != nil {
			return err
		}
		rec, err := documents().CommitPatch(context.Background(), args[0], userID, patchText, commitMessage)
		if err != nil {
			return err
		}
		printRecord(cmd, rec.Head, rec.Branch)
		return nil
	},
}

func init() {
	commitCmd.Flags().StringVarP(&commitMessage, "message", "m", "", "commit message")
	rootCmd.AddCommand(initCmd, catCmd, updateCmd, applyCmd, commitCmd)
}
