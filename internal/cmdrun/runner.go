// Package cmdrun wraps invocation of external tools behind a small interface
// so provisioning steps can be exercised in tests without touching the system.
package cmdrun

import (
	"io"
	"os"
	"os/exec"
	"strings"
)

// Runner executes external commands on behalf of a provisioning step. It is
// deliberately a single operation: every stage's unit of work is "invoke a
// tool, stream its output, report success or failure".
type Runner interface {
	// Run executes name with args, streaming output to the operator.
	// A non-zero exit status is returned as an error.
	Run(name string, args ...string) error
}

// ExecRunner runs commands on the real system.
type ExecRunner struct {
	logWriter io.Writer
}

// NewExecRunner creates a runner whose command output goes to the process
// stdout/stderr.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

// EnableLogging duplicates all command output to the given logfile,
// tee-style, in addition to stdout.
func (r *ExecRunner) EnableLogging(logPath string) error {
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	r.logWriter = io.MultiWriter(os.Stdout, f)
	return nil
}

func (r *ExecRunner) Run(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	if r.logWriter != nil {
		cmd.Stdout = r.logWriter
		cmd.Stderr = r.logWriter
	} else {
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
	}
	return cmd.Run()
}

// Call records a single command invocation seen by a Recorder.
type Call struct {
	Name string
	Args []string
}

// String renders the call the way it would appear on a shell command line.
func (c Call) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	return c.Name + " " + strings.Join(c.Args, " ")
}

// Recorder is a fake Runner for tests. It records every invocation and never
// touches the system. Behavior per command is scripted through Handler and
// FailWith.
type Recorder struct {
	Calls []Call

	// Handler, when set, is invoked for every Run call and may simulate the
	// command's side effects (e.g. populating a clone directory).
	Handler func(name string, args []string) error

	// FailWith maps a command name to the error Run should return for it.
	FailWith map[string]error
}

func (r *Recorder) Run(name string, args ...string) error {
	r.Calls = append(r.Calls, Call{Name: name, Args: args})
	if err, ok := r.FailWith[name]; ok {
		return err
	}
	if r.Handler != nil {
		return r.Handler(name, args)
	}
	return nil
}

// CallLines returns the recorded invocations as shell-style strings, one per
// call, for easy assertion on exact command sequences.
func (r *Recorder) CallLines() []string {
	lines := make([]string, len(r.Calls))
	for i, c := range r.Calls {
		lines[i] = c.String()
	}
	return lines
}

// Invoked reports whether any recorded call used the given command name.
func (r *Recorder) Invoked(name string) bool {
	return r.InvocationCount(name) > 0
}

// InvocationCount counts recorded calls to the given command name.
func (r *Recorder) InvocationCount(name string) int {
	n := 0
	for _, c := range r.Calls {
		if c.Name == name {
			n++
		}
	}
	return n
}

var _ Runner = (*ExecRunner)(nil)
var _ Runner = (*Recorder)(nil)
