package engine

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

// New and Run need a writable cgroupfs, a creatable registry directory, and
// CAP_SYS_ADMIN to unshare namespaces, so the full lifecycle is only
// exercised on a real Linux host with root. These tests cover the state
// labels Container.State reports and the environment RunChild hands on.

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{Configured, "Configured"},
		{DirAllocated, "DirAllocated"},
		{Planned, "Planned"},
		{CgroupReady, "CgroupReady"},
		{Spawning, "Spawning"},
		{Running, "Running"},
		{Exited, "Exited"},
		{TornDown, "TornDown"},
		{State(99), "Unknown"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.state.String())
	}
}

func TestNewContainerStartsConfigured(t *testing.T) {
	var c Container
	assert.Equal(t, Configured, c.State())
}

// childEnviron must strip ChrootEnvVar before RunChild execs the target: it
// is the Run-to-RunChild handoff for the chroot path, not part of the
// target command's environment.
func TestChildEnvironStripsChrootEnvVar(t *testing.T) {
	t.Setenv(ChrootEnvVar, "/var/tmp/some-root")
	t.Setenv("PICOTIN_TEST_KEEP_ME", "1")

	env := childEnviron()

	for _, kv := range env {
		assert.NotContains(t, kv, ChrootEnvVar+"=")
	}
	assert.Contains(t, env, "PICOTIN_TEST_KEEP_ME=1")
}

func TestChildEnvironPassesThroughWhenChrootUnset(t *testing.T) {
	os.Unsetenv(ChrootEnvVar)
	t.Setenv("PICOTIN_TEST_PASSTHROUGH", "yes")

	env := childEnviron()

	assert.Contains(t, env, "PICOTIN_TEST_PASSTHROUGH=yes")
}
