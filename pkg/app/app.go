// Package app wires picotin's components together: one struct built once
// at startup that owns the long-lived collaborators (here, the Registry
// and logger) and exposes the operations main.go dispatches to.
package app

import (
	"strings"

	"github.com/kazurin775/picotin/pkg/config"
	"github.com/kazurin775/picotin/pkg/engine"
	"github.com/kazurin775/picotin/pkg/log"
	"github.com/kazurin775/picotin/pkg/registry"
	"github.com/kazurin775/picotin/pkg/veth"
	"github.com/sirupsen/logrus"
)

// App bootstraps picotin's Registry and Linker and exposes the two top
// level operations: creating and running a container, and linking two
// already-running ones.
type App struct {
	Config   *config.AppConfig
	Log      *logrus.Entry
	Registry *registry.Registry
	Linker   *veth.Linker
}

// NewApp bootstraps a new App.
func NewApp(cfg *config.AppConfig) (*App, error) {
	app := &App{Config: cfg}
	app.Log = log.NewLogger(cfg)
	app.Registry = registry.New(cfg.RuntimeRoot, app.Log)
	app.Linker = veth.New(app.Registry, app.Log)
	return app, nil
}

// NewContainer allocates and configures a container, ready for Run.
// Callers must defer Close on the returned Container.
func (app *App) NewContainer(ccfg config.ContainerConfig) (*engine.Container, error) {
	return engine.New(ccfg, app.Registry, app.Log)
}

// Link pairs two already-running containers with a veth link.
func (app *App) Link(a, b string) error {
	return app.Linker.Link(a, b)
}

type errorMapping struct {
	originalError string
	newError      string
}

// KnownError takes an error and tells us whether it's an error we know
// about where we can print a nicely formatted version of it rather than
// the full context chain.
func (app *App) KnownError(err error) (string, bool) {
	errorMessage := err.Error()

	mappings := []errorMapping{
		{
			originalError: "operation not permitted",
			newError:      "picotin needs CAP_SYS_ADMIN (or to run as root) to create namespaces and cgroups",
		},
		{
			originalError: "no such file or directory",
			newError:      "picotin could not find a file it depends on; check that the command and any root directory exist",
		},
	}

	for _, mapping := range mappings {
		if strings.Contains(errorMessage, mapping.originalError) {
			return mapping.newError, true
		}
	}

	return "", false
}
