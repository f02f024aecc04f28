// Package capacity sizes the worker pool from host memory and CPU.
package capacity

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

const (
	// MemoryPerWorker is the memory budget reserved for each worker.
	MemoryPerWorker uint64 = 8 * 1024 * 1024

	// WorkerCeiling caps the optimal worker count regardless of host size.
	WorkerCeiling = 2000

	workersPerCore       = 6
	optimalMemoryPercent = 80
	safeMemoryPercent    = 90
)

// Profile describes the host and the worker counts derived from it.
type Profile struct {
	TotalMemory     uint64 `json:"total_memory" yaml:"total_memory"`
	FreeMemory      uint64 `json:"free_memory" yaml:"free_memory"`
	CPUCores        int    `json:"cpu_cores" yaml:"cpu_cores"`
	OptimalWorkers  int    `json:"optimal_workers" yaml:"optimal_workers"`
	MaxSafeWorkers  int    `json:"max_safe_workers" yaml:"max_safe_workers"`
	MemoryPerWorker uint64 `json:"memory_per_worker" yaml:"memory_per_worker"`
}

// Estimate derives the optimal and maximum safe worker counts.
func Estimate(totalMemory, freeMemory uint64, cpuCores int) Profile {
	if cpuCores < 0 {
		cpuCores = 0
	}
	maxByMemory := workersForMemory(freeMemory, optimalMemoryPercent)
	maxByCPU := cpuCores * workersPerCore

	return Profile{
		TotalMemory:     totalMemory,
		FreeMemory:      freeMemory,
		CPUCores:        cpuCores,
		OptimalWorkers:  min(maxByMemory, maxByCPU, WorkerCeiling),
		MaxSafeWorkers:  workersForMemory(freeMemory, safeMemoryPercent),
		MemoryPerWorker: MemoryPerWorker,
	}
}

// workersForMemory returns floor(free*percent/100 / MemoryPerWorker).
// Dividing before multiplying keeps the intermediate within uint64 for any real host.
func workersForMemory(free uint64, percent uint64) int {
	budget := free/100*percent + (free%100)*percent/100
	return int(budget / MemoryPerWorker)
}

// Resolve maps a requested worker count onto the profile. Zero or negative
// selects the optimal count. Requests above the safe maximum are clamped and
// reported through the second return value.
func Resolve(requested int, p Profile) (actual int, clamped bool) {
	if requested <= 0 {
		return p.OptimalWorkers, false
	}
	if requested > p.MaxSafeWorkers {
		return p.MaxSafeWorkers, true
	}
	return requested, false
}

// Detect reads host memory and logical core count and estimates a profile.
func Detect(ctx context.Context) (Profile, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return Profile{}, fmt.Errorf("read host memory: %w", err)
	}

	cores, err := cpu.CountsWithContext(ctx, true)
	if err != nil || cores <= 0 {
		cores = runtime.NumCPU()
	}

	return Estimate(vm.Total, vm.Available, cores), nil
}

// ProcessMemory returns the resident set size of the current process.
func ProcessMemory(ctx context.Context) (uint64, error) {
	proc, err := process.NewProcessWithContext(ctx, int32(os.Getpid()))
	if err != nil {
		return 0, err
	}
	info, err := proc.MemoryInfoWithContext(ctx)
	if err != nil {
		return 0, err
	}
	if info == nil {
		return 0, nil
	}
	return info.RSS, nil
}
