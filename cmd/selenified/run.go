package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/ahrdadan/selenified/internal/app"
	"github.com/ahrdadan/selenified/internal/config"
	"github.com/ahrdadan/selenified/internal/report"
	"github.com/ahrdadan/selenified/internal/scenario"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var runCmd = &cobra.Command{
	Use:   "run <scenario>...",
	Short: "Run scenarios in a local browser or on a grid",
	Long: `Run each scenario file (YAML or JSON) and write its HTML report.

Settings come from the properties file, then SELENIFIED_* environment
variables, then the flags given here. The report summaries are printed as
YAML or JSON, and the command exits non-zero when any scenario failed.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().String("config", config.DefaultPropertiesFile, "Properties file (TOML)")
	runCmd.Flags().String("browser", "", "Browser to run in (overrides the scenario's)")
	runCmd.Flags().String("hub", "", "Remote grid address (empty runs locally)")
	runCmd.Flags().String("app-url", "", "Application URL for scenarios without one")
	runCmd.Flags().Bool("headless", true, "Run local browsers headless")
	runCmd.Flags().String("output-dir", "", "Directory for HTML reports")
	runCmd.Flags().Bool("package", false, "Zip each report with its screenshots")
	runCmd.Flags().Bool("pdf", false, "Render a PDF next to each report")
	runCmd.Flags().String("format", "yaml", "Summary output format: yaml or json")
	runCmd.Flags().BoolP("verbose", "v", false, "Print every recorded step to stderr")
}

// runConfig layers the flags the user set over the properties file and env
func runConfig(cmd *cobra.Command) (*config.Config, error) {
	flags := cmd.Flags()
	path, _ := flags.GetString("config")

	cfg := config.DefaultConfig()
	if err := cfg.LoadFile(path); err != nil {
		return nil, err
	}
	cfg.ApplyEnv()

	str := func(name string, dst *string) {
		if flags.Changed(name) {
			*dst, _ = flags.GetString(name)
		}
	}
	boolean := func(name string, dst *bool) {
		if flags.Changed(name) {
			*dst, _ = flags.GetBool(name)
		}
	}
	str("browser", &cfg.Browser)
	str("hub", &cfg.Hub)
	str("app-url", &cfg.AppURL)
	str("output-dir", &cfg.OutputDir)
	boolean("headless", &cfg.Headless)
	boolean("package", &cfg.PackageResults)
	boolean("pdf", &cfg.GeneratePDF)

	cfg.Normalize()
	return cfg, nil
}

// stepPrinter prints report rows as they are recorded
type stepPrinter struct {
	w io.Writer
}

func (p stepPrinter) Publish(step report.Step) {
	fmt.Fprintf(p.w, "     %s: ", step.Test)
	printStep(p.w, step)
}

func runRun(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	if format != "yaml" && format != "json" {
		return fmt.Errorf("unsupported format: %s (use yaml or json)", format)
	}
	verbose, _ := cmd.Flags().GetBool("verbose")

	cfg, err := runConfig(cmd)
	if err != nil {
		return err
	}

	// Parse everything first so a typo fails before any browser starts
	scenarios := make([]*scenario.Scenario, 0, len(args))
	for _, path := range args {
		sc, err := scenario.Load(path)
		if err != nil {
			return err
		}
		if sc.URL == "" {
			sc.URL = cfg.AppURL
		}
		if cmd.Flags().Changed("browser") {
			sc.Browser = cfg.Browser
		}
		scenarios = append(scenarios, sc)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stderr := cmd.ErrOrStderr()
	var opts []app.Option
	if verbose {
		opts = append(opts, app.WithSink(stepPrinter{w: stderr}))
	}

	summaries := make([]report.Summary, 0, len(scenarios))
	failed := 0
	for _, sc := range scenarios {
		fmt.Fprintf(stderr, "Running %s\n", sc.Name)
		summary, err := scenario.Execute(ctx, cfg, sc, func(done, total int, step scenario.Step) {
			if !verbose {
				fmt.Fprintf(stderr, "  [%d/%d] %s\n", done, total, step)
			}
		}, opts...)
		if err != nil {
			return fmt.Errorf("%s: %w", sc.Name, err)
		}
		if !summary.Succeeded() {
			failed++
		}
		fmt.Fprintf(stderr, "%s: %s (%d steps, %d failed) %s\n", sc.Name, summary.Outcome, summary.Steps, summary.Failed, summary.File)
		summaries = append(summaries, summary)
	}

	if err := writeSummaries(cmd.OutOrStdout(), format, summaries); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d scenario(s) failed", failed, len(summaries))
	}
	return nil
}

func writeSummaries(w io.Writer, format string, summaries []report.Summary) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(summaries)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(summaries); err != nil {
		return err
	}
	return enc.Close()
}
