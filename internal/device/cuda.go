//go:build cuda

package device

import (
	"fmt"

	"gorgonia.org/cu"
)

func probeCUDA() (string, bool) {
	n, err := cu.NumDevices()
	if err != nil || n == 0 {
		return "", false
	}
	name, err := cu.Device(0).Name()
	if err != nil {
		name = "device0"
	}
	return fmt.Sprintf("devices=%d name=%q", n, name), true
}
