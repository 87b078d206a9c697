package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"palimpsest/api/internal/document"
)

var summaryCmd = &cobra.Command{
	Use:   "summary <file-id>",
	Short: "List the sections with a short preview",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		summary, err := documents().GetSummary(context.Background(), args[0], userID)
		if err != nil {
			return err
		}
		if summary == nil {
			return document.ErrContextNotFound
		}
		out := cmd.OutOrStdout()
		for _, s := range summary.Sections {
			fmt.Fprintf(out, "%4d  %s\n", s.StartLine, s.Header)
			for _, line := range strings.Split(s.Content, "\n") {
				if line != "" {
					fmt.Fprintf(out, "      %s\n", line)
				}
			}
		}
		return nil
	},
}

var sectionCmd = &cobra.Command{
	Use:   "section <file-id> <header>",
	Short: "Print the full body of a section",
	Long: `Print the body under a header. The header is matched whole, including
its leading '#' characters.

Examples:
  palictl section plan "## Goals"`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		text, found, err := documents().GetSection(context.Background(), args[0], userID, args[1])
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("section %q not found", args[1])
		}
		fmt.Fprintln(cmd.OutOrStdout(), text)
		return nil
	},
}

var outlineCmd = &cobra.Command{
	Use:   "outline <file-id>",
	Short: "Print the table of contents and symbols",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		outline, err := documents().Outline(context.Background(), args[0], userID)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, h := range outline.Headings {
			fmt.Fprintf(out, "%s%s\n", strings.Repeat("  ", max(h.Level-1, 0)), h.Title)
		}
		if len(outline.Symbols) > 0 {
			fmt.Fprintln(out)
			for _, s := range outline.Symbols {
				fmt.Fprintf(out, "%s %s (line %d)\n", s.Kind, s.Name, s.Line)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(summaryCmd, sectionCmd, outlineCmd)
}
