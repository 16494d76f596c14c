// Package unitgen renders the systemd unit for the display service from a
// template, binding it to the operator account and install directory.
package unitgen

import (
	"fmt"
	"os"
	"strings"

	"github.com/coreos/go-systemd/v22/unit"
)

// Placeholder tokens recognized in the unit template.
const (
	UserPlaceholder    = "{{USER}}"
	WorkDirPlaceholder = "{{WORKING_DIR}}"
)

// Render substitutes the user and working-directory placeholders in the
// template and verifies the result is a well-formed systemd unit with no
// placeholders left over.
func Render(template []byte, user, workDir string) ([]byte, error) {
	if user == "" {
		return nil, fmt.Errorf("unit user must not be empty")
	}
	if workDir == "" {
		return nil, fmt.Errorf("unit working directory must not be empty")
	}

	out := strings.ReplaceAll(string(template), UserPlaceholder, user)
	out = strings.ReplaceAll(out, WorkDirPlaceholder, workDir)

	if i := strings.Index(out, "{{"); i >= 0 {
		line := out[i:]
		if j := strings.IndexByte(line, '\n'); j >= 0 {
			line = line[:j]
		}
		return nil, fmt.Errorf("unit template contains unknown placeholder near %q", line)
	}

	if _, err := unit.Deserialize(strings.NewReader(out)); err != nil {
		return nil, fmt.Errorf("generated unit does not parse: %w", err)
	}

	return []byte(out), nil
}

// Generate reads templatePath, renders it for user and workDir, and writes
// the result to outPath. The output is rewritten on every call so it always
// reflects the current invocation.
func Generate(templatePath, outPath, user, workDir string) error {
	template, err := os.ReadFile(templatePath)
	if err != nil {
		return fmt.Errorf("reading unit template: %w", err)
	}

	rendered, err := Render(template, user, workDir)
	if err != nil {
		return err
	}

	if err := os.WriteFile(outPath, rendered, 0644); err != nil {
		return fmt.Errorf("writing unit file: %w", err)
	}
	return nil
}

// Options deserializes a rendered unit into its option list. Used to inspect
// generated units without re-implementing systemd's parser.
func Options(rendered []byte) ([]*unit.UnitOption, error) {
	return unit.Deserialize(strings.NewReader(string(rendered)))
}
