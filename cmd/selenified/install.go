package main

import (
	"fmt"

	"github.com/ahrdadan/selenified/internal/browser"
	"github.com/spf13/cobra"
)

var installChromeCmd = &cobra.Command{
	Use:   "install-chrome",
	Short: "Install Chromium and the system libraries it needs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		revision, _ := cmd.Flags().GetInt("revision")
		skipDeps, _ := cmd.Flags().GetBool("skip-deps")
		out := cmd.OutOrStdout()
		if path, ok := browser.LookChrome(); ok && revision == 0 {
			fmt.Fprintf(out, "Chromium already installed at %s\n", path)
			return nil
		}

		res, err := browser.ChromeInstall{Revision: revision, SkipDeps: skipDeps, Out: out}.Run(cmd.Context())
		if err != nil {
			return err
		}
		switch {
		case res.Cached:
			fmt.Fprintf(out, "Chromium r%d already cached at %s\n", res.Revision, res.Path)
		case res.PackageManager != "":
			fmt.Fprintf(out, "Chromium r%d installed at %s (dependencies via %s)\n", res.Revision, res.Path, res.PackageManager)
		default:
			fmt.Fprintf(out, "Chromium r%d installed at %s\n", res.Revision, res.Path)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(installChromeCmd)
	installChromeCmd.Flags().Int("revision", 0, "Chromium revision to download (0 uses rod's default)")
	installChromeCmd.Flags().Bool("skip-deps", false, "Do not install system libraries")
}
