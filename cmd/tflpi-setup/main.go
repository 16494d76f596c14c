package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/tflpi/tflpi-setup/internal/cmdrun"
	"github.com/tflpi/tflpi-setup/internal/provision"
	"github.com/tflpi/tflpi-setup/internal/setupcfg"
	"github.com/tflpi/tflpi-setup/internal/termout"
)

var (
	installDir   string
	configFile   string
	logFile      string
	skipPackages bool
	dryRun       bool
	verbose      bool
)

var rootCmd = &cobra.Command{
	Use:   "tflpi-setup",
	Short: "Provision a Raspberry Pi to run the TfL Pi e-paper display service",
	Long: `tflpi-setup prepares a Raspberry Pi for the TfL Pi display service:
it installs system packages, creates the Python environment, fetches the
Waveshare e-paper driver, enables SPI, seeds the runtime configuration and
generates the systemd unit. Every stage is idempotent, so the tool can be
re-run safely after a failure.`,
	SilenceUsage: true,
	RunE:         run,
}

func run(cmd *cobra.Command, args []string) error {
	if verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	cfg, err := setupcfg.Parse(configFile)
	if err != nil {
		return err
	}

	runner := cmdrun.NewExecRunner()
	if logFile != "" {
		if err := runner.EnableLogging(logFile); err != nil {
			return fmt.Errorf("opening log file: %w", err)
		}
	}

	st, err := provision.NewState(installDir, cfg, runner)
	if err != nil {
		return err
	}
	st.DryRun = dryRun

	steps := provision.Steps()
	if skipPackages {
		steps = withoutStep(steps, provision.StepPackages)
	}

	if err := provision.NewPipeline(steps).Run(st); err != nil {
		return err
	}

	printSummary(st)
	return nil
}

func withoutStep(steps []provision.Step, name string) []provision.Step {
	kept := steps[:0:0]
	for _, s := range steps {
		if s.Name != name {
			kept = append(kept, s)
		}
	}
	return kept
}

func printSummary(st *provision.State) {
	if st.DryRun {
		termout.PrintInfo("dry run complete; nothing was changed")
		return
	}

	termout.PrintSectionHeader("Setup complete")
	fmt.Println("Edit config.json with your TfL API key and stop IDs, then install the service:")
	fmt.Printf("  sudo cp %s /etc/systemd/system/\n", st.Path(st.Config.UnitFile))
	fmt.Println("  sudo systemctl daemon-reload")
	fmt.Println("  sudo systemctl enable --now tfl-pi.service")

	if st.RebootNeeded {
		termout.PrintWarning("SPI was just enabled; reboot before starting the service")
	}
}

func main() {
	rootCmd.Flags().StringVarP(&installDir, "dir", "d", "", "install directory (default: current directory)")
	rootCmd.Flags().StringVarP(&configFile, "config", "c", "setup.toml", "setup configuration overrides")
	rootCmd.Flags().StringVarP(&logFile, "log-file", "l", "", "duplicate command output to this file")
	rootCmd.Flags().BoolVar(&skipPackages, "skip-packages", false, "skip the system package stage")
	rootCmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "show pending actions without performing them")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
