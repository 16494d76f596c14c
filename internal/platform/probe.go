// Package platform detects the host hardware this tool is provisioning.
package platform

import (
	"os"
	"strings"
)

// ModelPath is the device-tree descriptor exposed by the Raspberry Pi kernel.
const ModelPath = "/proc/device-tree/model"

// Probe reads the hardware model string from the given descriptor path.
// The device-tree file is NUL-terminated; the terminator is stripped.
func Probe(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	model := strings.TrimRight(string(data), "\x00")
	return strings.TrimSpace(model), nil
}

// IsRaspberryPi reports whether a probed model string identifies a Raspberry Pi.
func IsRaspberryPi(model string) bool {
	return strings.Contains(model, "Raspberry Pi")
}
