// Package cgroup manages one named control group per container, populated
// from the configuration's CPU multiplier and memory limit.
//
// It drives cgroups by writing directly to the control files rather than
// going through a client library, auto-detecting whether the host uses the
// unified (v2) hierarchy or the legacy split cpu/memory controllers (v1)
// and writing the matching set of files either way.
package cgroup

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/kazurin775/picotin/pkg/config"
	"github.com/kazurin775/picotin/pkg/perr"
	"github.com/sirupsen/logrus"
)

// UnifiedRoot is where a cgroup v2 hierarchy is normally mounted.
const UnifiedRoot = "/sys/fs/cgroup"

// cpuPeriodUsec is the fixed CPU accounting period.
const cpuPeriodUsec = 100000

// Handle refers to a single container's cgroup, named picotin-<id>.
type Handle struct {
	id     string
	path   string
	v2     bool
	cpu    *int64 // quota in microseconds, nil if unset
	memory *int64 // hard limit in bytes, nil if unset
	log    *logrus.Entry
}

// detectV2 reports whether the host uses the unified (v2) cgroup
// hierarchy, identified by the presence of cgroup.controllers at the root —
// the same signal runc and containerd's cgroup drivers use.
func detectV2() bool {
	_, err := os.Stat(filepath.Join(UnifiedRoot, "cgroup.controllers"))
	return err == nil
}

// Create builds a new cgroup named picotin-<id> and populates it with the
// CPU and memory limits named in config.ContainerConfig.
func Create(id string, cfg config.ContainerConfig, log *logrus.Entry) (*Handle, error) {
	if cfg.HasCPUMultiplier && (math.IsNaN(cfg.CPUMultiplier) || math.IsInf(cfg.CPUMultiplier, 0) || cfg.CPUMultiplier < 0) {
		return nil, perr.New(perr.InvalidInput, fmt.Sprintf("CPU multiplier %v is not a finite, non-negative number", cfg.CPUMultiplier))
	}

	h := &Handle{
		id:  fmt.Sprintf("picotin-%s", id),
		v2:  detectV2(),
		log: log,
	}
	h.path = filepath.Join(UnifiedRoot, h.id)
	if !h.v2 {
		// Legacy hierarchy: cpu and memory controllers live under separate
		// subtrees, each with their own picotin-<id> directory.
		h.path = h.id
	}

	log.WithField("cgroup", h.id).Debug("creating cgroup")

	if err := h.create(); err != nil {
		return nil, err
	}

	if cfg.HasCPUMultiplier {
		quota := int64(math.Round(cfg.CPUMultiplier * cpuPeriodUsec))
		h.cpu = &quota
		log.WithFields(logrus.Fields{"cgroup": h.id, "multiplier": cfg.CPUMultiplier, "quota": quota}).Debug("setting CPU limit")
		if err := h.writeCPU(quota); err != nil {
			h.Destroy()
			return nil, err
		}
	}

	if cfg.HasMemoryMiB {
		bytes := int64(cfg.MemoryMiB) << 20
		h.memory = &bytes
		log.WithFields(logrus.Fields{"cgroup": h.id, "mib": cfg.MemoryMiB, "bytes": bytes}).Debug("setting memory limit")
		if err := h.writeMemory(bytes); err != nil {
			h.Destroy()
			return nil, err
		}
	}

	return h, nil
}

func (h *Handle) cpuControllerPath() string {
	if h.v2 {
		return h.path
	}
	return filepath.Join(UnifiedRoot, "cpu", h.path)
}

func (h *Handle) memoryControllerPath() string {
	if h.v2 {
		return h.path
	}
	return filepath.Join(UnifiedRoot, "memory", h.path)
}

func (h *Handle) create() error {
	if h.v2 {
		if err := os.MkdirAll(h.path, 0o755); err != nil {
			return perr.Wrap(perr.KernelReject, "create cgroup directory", err)
		}
		return nil
	}

	for _, controller := range []string{"cpu", "memory"} {
		if err := os.MkdirAll(filepath.Join(UnifiedRoot, controller, h.path), 0o755); err != nil {
			return perr.Wrap(perr.KernelReject, fmt.Sprintf("create %s cgroup directory", controller), err)
		}
	}
	return nil
}

func (h *Handle) writeCPU(quotaUsec int64) error {
	if h.v2 {
		value := fmt.Sprintf("%d %d", quotaUsec, cpuPeriodUsec)
		if quotaUsec <= 0 {
			value = fmt.Sprintf("0 %d", cpuPeriodUsec)
		}
		return h.writeFile(h.cpuControllerPath(), "cpu.max", value)
	}
	if err := h.writeFile(h.cpuControllerPath(), "cpu.cfs_period_us", strconv.Itoa(cpuPeriodUsec)); err != nil {
		return err
	}
	return h.writeFile(h.cpuControllerPath(), "cpu.cfs_quota_us", strconv.FormatInt(quotaUsec, 10))
}

func (h *Handle) writeMemory(bytes int64) error {
	if h.v2 {
		if err := h.writeFile(h.memoryControllerPath(), "memory.max", strconv.FormatInt(bytes, 10)); err != nil {
			return err
		}
		return h.writeFile(h.memoryControllerPath(), "memory.swap.max", "0")
	}
	if err := h.writeFile(h.memoryControllerPath(), "memory.limit_in_bytes", strconv.FormatInt(bytes, 10)); err != nil {
		return err
	}
	return h.writeFile(h.memoryControllerPath(), "memory.swappiness", "0")
}

func (h *Handle) writeFile(dir, file, value string) error {
	p := filepath.Join(dir, file)
	if err := os.WriteFile(p, []byte(value), 0o644); err != nil {
		return perr.Wrap(perr.KernelReject, fmt.Sprintf("write %s", p), err)
	}
	return nil
}

// Duplicate returns a Handle referring to the same cgroup by name: a cheap,
// owned copy, the counterpart of the original Rust implementation's
// ContainerCgroup::try_clone. pkg/engine's Run does not use it; it jails the
// child through the Container's own Handle, from the goroutine that called
// Run.
func (h *Handle) Duplicate() *Handle {
	dup := *h
	return &dup
}

// Jail adds pid to the cgroup's task list.
func (h *Handle) Jail(pid int) error {
	file := "cgroup.procs"
	if !h.v2 {
		file = "tasks"
	}
	// Either controller subtree works for task membership in the legacy
	// hierarchy; the CPU one is as good as any.
	dir := h.cpuControllerPath()
	if h.cpu == nil && h.memory != nil {
		dir = h.memoryControllerPath()
	}

	h.log.WithFields(logrus.Fields{"cgroup": h.id, "pid": pid}).Debug("jailing pid")
	if err := os.WriteFile(filepath.Join(dir, file), []byte(strconv.Itoa(pid)), 0o644); err != nil {
		return perr.Wrap(perr.KernelReject, fmt.Sprintf("add pid %d to cgroup %s", pid, h.id), err)
	}

	if h.v2 {
		return nil
	}
	// In the legacy hierarchy each controller has its own task list.
	other := h.memoryControllerPath()
	if dir == other {
		return nil
	}
	if err := os.WriteFile(filepath.Join(other, file), []byte(strconv.Itoa(pid)), 0o644); err != nil {
		return perr.Wrap(perr.KernelReject, fmt.Sprintf("add pid %d to cgroup %s", pid, h.id), err)
	}
	return nil
}

// Destroy removes the cgroup. Errors are logged, not propagated: by the
// time Destroy runs, the caller has nothing left to unwind.
func (h *Handle) Destroy() {
	h.log.WithField("cgroup", h.id).Debug("deleting cgroup")
	if h.v2 {
		if err := os.Remove(h.path); err != nil && !os.IsNotExist(err) {
			h.log.WithError(err).WithField("cgroup", h.id).Error("failed to delete cgroup")
		}
		return
	}
	for _, controller := range []string{"cpu", "memory"} {
		p := filepath.Join(UnifiedRoot, controller, h.path)
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			h.log.WithError(err).WithField("path", p).Error("failed to delete cgroup")
		}
	}
}

// CPUQuota returns the configured CPU quota in microseconds and the fixed
// period, or ok=false if no CPU limit was configured.
func (h *Handle) CPUQuota() (quota, period int64, ok bool) {
	if h.cpu == nil {
		return 0, 0, false
	}
	return *h.cpu, cpuPeriodUsec, true
}

// MemoryLimit returns the configured memory hard limit in bytes, or
// ok=false if no memory limit was configured.
func (h *Handle) MemoryLimit() (bytes int64, ok bool) {
	if h.memory == nil {
		return 0, false
	}
	return *h.memory, true
}

// Name returns the cgroup's name, picotin-<id>.
func (h *Handle) Name() string {
	return h.id
}
