package provision

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"

	"github.com/tflpi/tflpi-setup/internal/cmdrun"
	"github.com/tflpi/tflpi-setup/internal/setupcfg"
)

// State holds the ambient facts captured once at workflow start and threaded
// through every stage. Stages never re-query the environment themselves.
type State struct {
	// User is the account the generated service unit runs as. When the
	// installer itself runs under sudo this is the invoking account, not root.
	User string

	// WorkDir is the absolute install directory; project-relative paths
	// resolve against it.
	WorkDir string

	// Model is the hardware descriptor filled in by the platform probe stage.
	Model string

	// Sudo indicates privileged commands must be prefixed with sudo because
	// the installer is not running as root.
	Sudo bool

	// RebootNeeded is set by stages that changed boot configuration.
	RebootNeeded bool

	// DryRun makes the sequencer narrate pending effects without performing
	// them.
	DryRun bool

	Config setupcfg.Config
	Runner cmdrun.Runner
}

// NewState captures the invoking user and install directory. An empty dir
// means the current working directory.
func NewState(dir string, cfg setupcfg.Config, runner cmdrun.Runner) (*State, error) {
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("determining install directory: %w", err)
		}
		dir = wd
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving install directory: %w", err)
	}

	username, err := invokingUser()
	if err != nil {
		return nil, fmt.Errorf("determining invoking user: %w", err)
	}

	return &State{
		User:    username,
		WorkDir: abs,
		Sudo:    os.Geteuid() != 0,
		Config:  cfg,
		Runner:  runner,
	}, nil
}

// invokingUser returns the operator account. Under sudo the real account is
// taken from SUDO_USER so the service does not end up bound to root.
func invokingUser() (string, error) {
	if su := os.Getenv("SUDO_USER"); su != "" {
		return su, nil
	}
	u, err := user.Current()
	if err != nil {
		return "", err
	}
	return u.Username, nil
}

// Path resolves a project-relative path against the install directory.
// Absolute paths pass through unchanged.
func (s *State) Path(rel string) string {
	if filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(s.WorkDir, rel)
}

// command builds an invocation for the runner.
func (s *State) command(name string, args ...string) cmdrun.Call {
	return cmdrun.Call{Name: name, Args: args}
}

// privileged builds an invocation prefixed with sudo when the installer
// itself lacks root.
func (s *State) privileged(name string, args ...string) cmdrun.Call {
	if s.Sudo {
		return cmdrun.Call{Name: "sudo", Args: append([]string{name}, args...)}
	}
	return cmdrun.Call{Name: name, Args: args}
}

// run hands an invocation to the runner.
func (s *State) run(c cmdrun.Call) error {
	return s.Runner.Run(c.Name, c.Args...)
}
