package config

// ContainerConfig is the immutable, in-memory record of how to build one
// container: a root directory, a command, a CPU multiplier, a memory
// limit, and whether the container gets its own network namespace. All
// fields are optional except UnshareNet, which always has a concrete value
// (its zero value is false; main.go sets it to true unless --no-unshare-net
// is given, so CLI containers get a private net namespace by default).
type ContainerConfig struct {
	// Root, if set, is the directory the child is chrooted into.
	Root    string
	HasRoot bool

	// Command is the program (and arguments) run inside the container.
	// Defaults to a POSIX shell when empty.
	Command []string

	// CPUMultiplier interprets as: 1.0 = one full core, 0.5 = half a core,
	// 2.0 = two full cores. Unset means "no CPU limit."
	CPUMultiplier    float64
	HasCPUMultiplier bool

	// MemoryMiB is the memory hard limit in mebibytes. Unset means "no
	// memory limit."
	MemoryMiB    uint64
	HasMemoryMiB bool

	// UnshareNet requests a fresh network namespace for the container.
	UnshareNet bool
}

// DefaultCommand is used when the configuration does not name a program to
// run.
var DefaultCommand = []string{"/bin/sh"}

// CommandOrDefault returns the configured command, falling back to the
// default POSIX shell.
func (c ContainerConfig) CommandOrDefault() []string {
	if len(c.Command) == 0 {
		return DefaultCommand
	}
	return c.Command
}
