package provision

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/tflpi/tflpi-setup/internal/cmdrun"
	"github.com/tflpi/tflpi-setup/internal/platform"
	"github.com/tflpi/tflpi-setup/internal/termout"
	"github.com/tflpi/tflpi-setup/internal/unitgen"
)

// Step names, used by the CLI to filter stages.
const (
	StepPlatformProbe = "Platform probe"
	StepPackages      = "System packages"
	StepVenv          = "Python environment"
	StepDependencies  = "Python dependencies"
	StepDriver        = "E-paper driver"
	StepSPI           = "SPI interface"
	StepConfig        = "Runtime configuration"
	StepUnit          = "Service unit"
)

// Steps returns the full provisioning sequence in execution order.
func Steps() []Step {
	venv := ensurePresent(
		StepVenv,
		"create Python virtual environment",
		func(st *State) string { return st.Path(st.Config.VenvDir) },
		createVenv,
	)
	venv.Commands = singleCommand(venvCommand)

	driver := ensurePresent(
		StepDriver,
		"fetch Waveshare e-paper driver",
		func(st *State) string { return st.Path(st.Config.Driver.TargetDir) },
		fetchDriver,
	)
	driver.Commands = func(st *State) []cmdrun.Call {
		return []cmdrun.Call{cloneCommand(st, "<temp-dir>")}
	}

	return []Step{
		{
			Name:        StepPlatformProbe,
			Description: "detect host platform",
			Run:         probePlatform,
		},
		{
			Name:        StepPackages,
			Description: "install system packages",
			Run:         installPackages,
			Commands:    aptCommands,
		},
		venv,
		{
			Name:        StepDependencies,
			Description: "install Python dependencies",
			Run:         installDependencies,
			Commands:    singleCommand(pipCommand),
		},
		driver,
		{
			Name:        StepSPI,
			Description: "enable the SPI interface",
			Check:       spiEnabled,
			Run:         enableSPI,
			Commands:    singleCommand(spiCommand),
		},
		ensurePresent(
			StepConfig,
			"create runtime configuration from example",
			func(st *State) string { return st.Path(st.Config.ConfigFile) },
			materializeConfig,
		),
		{
			Name:        StepUnit,
			Description: "generate systemd service unit",
			Run:         generateUnit,
		},
	}
}

func singleCommand(build func(*State) cmdrun.Call) func(*State) []cmdrun.Call {
	return func(st *State) []cmdrun.Call {
		return []cmdrun.Call{build(st)}
	}
}

// probePlatform reports the detected hardware. Diagnostic only: a missing or
// foreign descriptor degrades to a warning, never a pipeline failure.
func probePlatform(st *State) error {
	model, err := platform.Probe(st.Config.ModelPath)
	if err != nil {
		logrus.Debugf("platform probe failed: %v", err)
		termout.PrintWarning("could not detect platform; hardware-specific steps may not work")
		return nil
	}
	st.Model = model
	if !platform.IsRaspberryPi(model) {
		termout.PrintWarning(fmt.Sprintf("detected %q, not a Raspberry Pi; hardware-specific steps may not work", model))
		return nil
	}
	termout.PrintInfo("detected " + model)
	return nil
}

// aptCommands builds the index refresh and install invocations for the
// package manifest.
func aptCommands(st *State) []cmdrun.Call {
	installArgs := append([]string{"install", "-y"}, st.Config.Packages...)
	return []cmdrun.Call{
		st.privileged("apt-get", "update"),
		st.privileged("apt-get", installArgs...),
	}
}

// installPackages refreshes the apt index and installs the package manifest.
// apt itself is idempotent, so the stage carries no precondition check.
func installPackages(st *State) error {
	cmds := aptCommands(st)
	if err := st.run(cmds[0]); err != nil {
		return fmt.Errorf("refreshing package index: %w", err)
	}
	if err := st.run(cmds[1]); err != nil {
		return fmt.Errorf("installing packages: %w", err)
	}
	return nil
}

func venvCommand(st *State) cmdrun.Call {
	return st.command("python3", "-m", "venv", st.Path(st.Config.VenvDir))
}

func createVenv(st *State) error {
	return st.run(venvCommand(st))
}

func pipCommand(st *State) cmdrun.Call {
	pip := filepath.Join(st.Path(st.Config.VenvDir), "bin", "pip")
	return st.command(pip, "install", "-r", st.Path(st.Config.RequirementsFile))
}

// installDependencies installs the pip manifest into the virtual environment
// by invoking the environment's own pip, which is what activation amounts to
// for a non-interactive install.
func installDependencies(st *State) error {
	return st.run(pipCommand(st))
}

// cloneCommand builds the shallow clone of the vendor repository into dest.
func cloneCommand(st *State, dest string) cmdrun.Call {
	return st.command("git", "clone", "--depth", "1", st.Config.Driver.Repo, dest)
}

// fetchDriver clones the vendor repository into a temporary directory,
// promotes the driver package into the project tree and removes the clone.
// The deferred removal runs on the failure path too, so a broken clone or
// copy never leaves temporary artifacts behind.
func fetchDriver(st *State) error {
	tmp, err := os.MkdirTemp("", "e-paper-clone-")
	if err != nil {
		return fmt.Errorf("creating temporary clone directory: %w", err)
	}
	defer os.RemoveAll(tmp)

	if err := st.run(cloneCommand(st, tmp)); err != nil {
		return fmt.Errorf("cloning %s: %w", st.Config.Driver.Repo, err)
	}

	src := filepath.Join(tmp, filepath.FromSlash(st.Config.Driver.Subdir))
	if !exists(src) {
		return fmt.Errorf("clone of %s has no %s directory", st.Config.Driver.Repo, st.Config.Driver.Subdir)
	}

	dst := st.Path(st.Config.Driver.TargetDir)
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("creating driver parent directory: %w", err)
	}
	if err := copyDir(src, dst); err != nil {
		return fmt.Errorf("copying driver into project: %w", err)
	}
	return nil
}

// spiEnabled reports whether the boot configuration already carries the SPI
// parameter. A missing boot config counts as not enabled.
func spiEnabled(st *State) (bool, error) {
	found, err := fileContainsLine(st.Config.BootConfigPath, st.Config.SPIParam)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("reading %s: %w", st.Config.BootConfigPath, err)
	}
	return found, nil
}

func spiCommand(st *State) cmdrun.Call {
	return st.privileged("raspi-config", "nonint", "do_spi", "0")
}

func enableSPI(st *State) error {
	if err := st.run(spiCommand(st)); err != nil {
		return fmt.Errorf("enabling SPI via raspi-config: %w", err)
	}
	st.RebootNeeded = true
	return nil
}

// materializeConfig seeds the live configuration from the shipped example.
// Guarded by the existence check in Steps, so operator-entered API keys in an
// existing config.json are never clobbered.
func materializeConfig(st *State) error {
	src := st.Path(st.Config.ConfigExample)
	if !exists(src) {
		return fmt.Errorf("config example %s not found", src)
	}
	return copyFile(src, st.Path(st.Config.ConfigFile))
}

func generateUnit(st *State) error {
	return unitgen.Generate(
		st.Path(st.Config.UnitTemplate),
		st.Path(st.Config.UnitFile),
		st.User,
		st.WorkDir,
	)
}
