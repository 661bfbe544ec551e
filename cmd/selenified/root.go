package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ahrdadan/selenified/internal/config"
	"github.com/ahrdadan/selenified/internal/report"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "selenified",
	Short:         "Run browser test scenarios and produce HTML reports",
	Long:          "Selenified runs YAML or JSON test scenarios against a browser, records every step into an HTML report, and follows runs queued on a Selenified server.",
	Version:       config.Version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "%s v%s\n", config.AppName, config.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

// plain strips the markup report cells carry
func plain(html string) string {
	if !strings.Contains(html, "<") {
		return html
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return html
	}
	return strings.TrimSpace(doc.Text())
}

// printStep writes one report row as a single line
func printStep(w io.Writer, step report.Step) {
	fmt.Fprintf(w, "%3d  %-5s  %s", step.Number, step.Status, plain(step.Action))
	if step.Expected != "" {
		fmt.Fprintf(w, " | %s", plain(step.Expected))
	}
	if step.Actual != "" {
		fmt.Fprintf(w, " | %s", plain(step.Actual))
	}
	fmt.Fprintln(w)
}
