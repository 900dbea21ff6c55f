// Package device picks the compute device reported for a training run.
package device

import (
	"fmt"
	"runtime"

	"github.com/klauspost/cpuid/v2"
)

// Device names the selected backend.
type Device struct {
	Name   string // "cuda" or "cpu"
	Detail string
}

func (d Device) String() string {
	return d.Name
}

// Select returns cuda when an accelerator is visible and cpu otherwise.
func Select() Device {
	if name, ok := probeCUDA(); ok {
		return Device{Name: "cuda", Detail: name}
	}
	return Device{Name: "cpu", Detail: cpuDetail()}
}

func cpuDetail() string {
	return fmt.Sprintf("brand=%q cores=%d threads=%d avx2=%t avx512f=%t fma3=%t gomaxprocs=%d",
		cpuid.CPU.BrandName,
		cpuid.CPU.PhysicalCores,
		cpuid.CPU.LogicalCores,
		cpuid.CPU.Supports(cpuid.AVX2),
		cpuid.CPU.Supports(cpuid.AVX512F),
		cpuid.CPU.Supports(cpuid.FMA3),
		runtime.GOMAXPROCS(0),
	)
}
