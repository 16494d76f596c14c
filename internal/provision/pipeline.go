// Package provision implements the idempotent provisioning pipeline that
// prepares a Raspberry Pi to run the TfL Pi display service.
package provision

import (
	"fmt"

	"github.com/tflpi/tflpi-setup/internal/cmdrun"
	"github.com/tflpi/tflpi-setup/internal/termout"
)

// Step is one provisioning stage. Check is a side-effect-free precondition:
// when it reports true the stage's effect is already in place and Run is
// skipped. A nil Check means the stage always runs.
type Step struct {
	Name        string
	Description string
	Check       func(*State) (bool, error)
	Run         func(*State) error

	// Commands lists the external commands Run would invoke, so a dry run
	// can show the operator the exact command lines. Nil for stages whose
	// effect is a pure file operation.
	Commands func(*State) []cmdrun.Call
}

// Pipeline executes an ordered sequence of steps, halting on the first
// failure. Already-completed stages of a previous invocation are skipped via
// their Check, which is what makes re-running the whole pipeline safe.
type Pipeline struct {
	Steps []Step
}

// NewPipeline wraps the given steps.
func NewPipeline(steps []Step) *Pipeline {
	return &Pipeline{Steps: steps}
}

// Run drives the steps in order. The first failing step aborts the run and
// its error is returned unwrapped beyond naming the step; no cleanup or
// rollback is attempted.
func (p *Pipeline) Run(st *State) error {
	for i, step := range p.Steps {
		termout.PrintStageHeader(i+1, step.Name)

		if step.Check != nil {
			satisfied, err := step.Check(st)
			if err != nil {
				return fmt.Errorf("%s: checking precondition: %w", step.Name, err)
			}
			if satisfied {
				termout.PrintSkip(step.Description + " — already in place")
				continue
			}
		}

		if st.DryRun {
			termout.PrintInfo("dry run: would " + step.Description)
			if step.Commands != nil {
				for _, c := range step.Commands(st) {
					termout.PrintCommand(c.String())
				}
			}
			continue
		}

		termout.PrintInfo(step.Description + "...")
		if err := step.Run(st); err != nil {
			return fmt.Errorf("%s: %w", step.Name, err)
		}
		termout.PrintSuccess(step.Description + " done")
	}
	return nil
}

// ensurePresent builds a step whose effect is satisfied exactly when path
// exists. Environment creation, driver fetch and config materialization all
// share this shape.
func ensurePresent(name, desc string, path func(*State) string, materialize func(*State) error) Step {
	return Step{
		Name:        name,
		Description: desc,
		Check: func(st *State) (bool, error) {
			return exists(path(st)), nil
		},
		Run: materialize,
	}
}
