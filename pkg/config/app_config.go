// Package config handles picotin's process-wide configuration: the handful
// of knobs that come from flags or the environment rather than from a
// single container's own ContainerConfig (see container_config.go).
package config

import "os"

// DefaultRuntimeRoot is where the Runtime Registry keeps its per-container
// directories unless overridden.
const DefaultRuntimeRoot = "/var/run/picotin"

// AppConfig holds process-wide settings scoped to what a container engine
// actually needs: a debug switch for the logger and the runtime root the
// Registry operates under.
type AppConfig struct {
	Name      string
	Version   string
	Commit    string
	BuildDate string

	Debug bool

	// RuntimeRoot is the directory under which the Registry allocates
	// per-container directories. Defaults to DefaultRuntimeRoot, overridable
	// with the PICOTIN_RUNTIME_ROOT environment variable.
	RuntimeRoot string
}

// NewAppConfig builds an AppConfig, applying environment overrides.
func NewAppConfig(name, version, commit, date string, debug bool) (*AppConfig, error) {
	root := os.Getenv("PICOTIN_RUNTIME_ROOT")
	if root == "" {
		root = DefaultRuntimeRoot
	}

	if os.Getenv("PICOTIN_DEBUG") != "" {
		debug = true
	}

	return &AppConfig{
		Name:        name,
		Version:     version,
		Commit:      commit,
		BuildDate:   date,
		Debug:       debug,
		RuntimeRoot: root,
	}, nil
}
