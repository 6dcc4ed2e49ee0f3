package main

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ajitpratap0/storepulse/pkg/connector/registry"
	"github.com/ajitpratap0/storepulse/pkg/connector/sources/appstore"
	"github.com/ajitpratap0/storepulse/pkg/connector/sources/searchads"
	"github.com/ajitpratap0/storepulse/pkg/errors"

	// Register the destination connectors
	_ "github.com/ajitpratap0/storepulse/pkg/connector/destinations"
)

var version = "0.1.0"

func main() {
	_ = godotenv.Load()

	if err := newRootCommand().Execute(); err != nil {
		os.Exit(errors.ExitCode(err))
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "storepulse",
		Short: "storepulse - app store and ads analytics extraction",
		Long: `storepulse extracts App Store Connect analytics reports and search ads
reports and loads them into JSON lines files or S3.`,
		SilenceUsage: true,
	}

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "storepulse v%s\n", version)
			fmt.Fprintf(out, "Go version: %s\n", runtime.Version())
			fmt.Fprintf(out, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List available connectors",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Available Source Connectors:")
			for _, source := range registry.GetRegistry().Sources() {
				fmt.Fprintf(out, "  - %-10s %s\n", source.Name, source.Description)
			}
			fmt.Fprintln(out, "\nAvailable Destination Connectors:")
			for _, dest := range registry.GetRegistry().Destinations() {
				fmt.Fprintf(out, "  - %-10s %s\n", dest.Name, dest.Description)
			}
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "reports",
		Short: "List the supported report types",
		Run: func(cmd *cobra.Command, args []string) {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SOURCE\tREPORT\tTABLE\tPRIMARY KEY")
			for _, r := range appstore.Reports {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", appstore.ConnectorName, r.Name, r.Resource, strings.Join(r.PrimaryKey, ","))
			}
			for _, r := range searchads.Reports {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", searchads.ConnectorName, r.Name, r.Name, strings.Join(r.Schema().PrimaryKey, ","))
			}
			_ = tw.Flush()
		},
	})

	root.AddCommand(newInitCommand())

	var opts runOptions
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run a pipeline",
		Long: `Run the pipeline described by a YAML file. ${VAR} references in the file
are expanded from the environment (and .env), and STOREPULSE_* variables
override file values.

Example:
  storepulse run --config pipeline.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd.Context(), opts)
		},
	}
	runCmd.Flags().StringVarP(&opts.configFile, "config", "c", "", "Path to the pipeline YAML file (required)")
	_ = runCmd.MarkFlagRequired("config")
	runCmd.Flags().DurationVar(&opts.timeout, "timeout", 2*time.Hour, "Pipeline timeout (0 disables it)")
	runCmd.Flags().StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides the source setting")
	runCmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")
	runCmd.Flags().BoolVar(&opts.trace, "trace", false, "Export trace spans to stderr")
	root.AddCommand(runCmd)

	return root
}
