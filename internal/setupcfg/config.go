// Package setupcfg holds the tunable paths and manifests of the provisioning
// workflow. Every value has a default matching a stock TfL Pi checkout; an
// optional TOML file can override any of them.
package setupcfg

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/sirupsen/logrus"

	"github.com/tflpi/tflpi-setup/internal/platform"
)

// DriverConfig describes where the vendor e-paper driver comes from and where
// it lands in the project tree.
type DriverConfig struct {
	// Repo is the git URL of the vendor driver repository.
	Repo string `toml:"repo"`
	// Subdir is the path inside the clone that holds the Python driver package.
	Subdir string `toml:"subdir"`
	// TargetDir is the project-relative directory the driver is copied to.
	TargetDir string `toml:"target_dir"`
}

// Config is the full configuration of the provisioning workflow.
type Config struct {
	// Packages is the list of system packages installed by apt.
	Packages []string `toml:"packages"`

	Driver DriverConfig `toml:"driver"`

	// ModelPath is the platform descriptor probed at startup.
	ModelPath string `toml:"model_path"`

	// BootConfigPath is the firmware boot configuration checked for the SPI
	// parameter.
	BootConfigPath string `toml:"boot_config"`
	// SPIParam is the exact boot configuration line that enables SPI.
	SPIParam string `toml:"spi_param"`

	// VenvDir is the project-relative Python virtual environment directory.
	VenvDir string `toml:"venv_dir"`
	// RequirementsFile is the pip dependency manifest.
	RequirementsFile string `toml:"requirements_file"`

	// ConfigExample and ConfigFile are the template and live application
	// configuration paths. ConfigFile is never overwritten once present.
	ConfigExample string `toml:"config_example"`
	ConfigFile    string `toml:"config_file"`

	// UnitTemplate and UnitFile are the systemd unit template and its
	// generated output.
	UnitTemplate string `toml:"unit_template"`
	UnitFile     string `toml:"unit_file"`
}

// Default returns the configuration for a stock TfL Pi checkout.
func Default() Config {
	return Config{
		Packages: []string{
			"python3",
			"python3-pip",
			"python3-venv",
			"git",
			"libopenjp2-7",
			"libtiff6",
		},
		Driver: DriverConfig{
			Repo:      "https://github.com/waveshare/e-Paper",
			Subdir:    "RaspberryPi_JetsonNano/python/lib/waveshare_epd",
			TargetDir: "lib/waveshare_epd",
		},
		ModelPath:        platform.ModelPath,
		BootConfigPath:   "/boot/config.txt",
		SPIParam:         "dtparam=spi=on",
		VenvDir:          "venv",
		RequirementsFile: "requirements.txt",
		ConfigExample:    "config.example.json",
		ConfigFile:       "config.json",
		UnitTemplate:     "tfl-pi.service.template",
		UnitFile:         "tfl-pi.service",
	}
}

// Parse loads the configuration from file on top of the defaults. A missing
// file is not an error; the defaults apply unchanged.
func Parse(file string) (Config, error) {
	config := Default()

	_, err := toml.DecodeFile(file, &config)
	if err != nil {
		// Return error only when we failed to decode the file.
		// A non-existing config isn't an error, use defaults in this case.
		if !os.IsNotExist(err) {
			return config, fmt.Errorf("parsing %s: %w", file, err)
		}
		logrus.Debugf("no setup config at %s, using defaults", file)
	}

	if len(config.Packages) == 0 {
		return config, fmt.Errorf("package list in %s must not be empty", file)
	}

	return config, nil
}
